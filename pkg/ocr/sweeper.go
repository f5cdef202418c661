package ocr

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// StuckLister finds documents whose extraction never reached a terminal
// state
type StuckLister interface {
	ListStuckOCR(ctx context.Context, olderThan time.Duration) ([]int64, error)
}

// Trigger is the enqueue side of the pipeline
type Trigger interface {
	Trigger(documentID int64)
}

// Sweeper re-enqueues documents left in PENDING or PROCESSING, which
// happens when the process dies between the upload commit and the OCR
// trigger, or mid-extraction.
type Sweeper struct {
	store StuckLister
	queue Trigger
	log   *logrus.Logger

	// Age a version must reach before it counts as stuck
	Threshold time.Duration
}

// NewSweeper creates a sweeper with a 15 minute stuck threshold
func NewSweeper(store StuckLister, queue Trigger, log *logrus.Logger) *Sweeper {
	if log == nil {
		log = logrus.New()
	}
	return &Sweeper{
		store:     store,
		queue:     queue,
		log:       log,
		Threshold: 15 * time.Minute,
	}
}

// Sweep runs one pass. Intended to be driven by a cron schedule.
func (s *Sweeper) Sweep(ctx context.Context) error {
	ids, err := s.store.ListStuckOCR(ctx, s.Threshold)
	if err != nil {
		s.log.WithError(err).Error("sweep: failed to list stuck documents")
		return err
	}

	for _, id := range ids {
		s.queue.Trigger(id)
	}

	if len(ids) > 0 {
		s.log.WithField("count", len(ids)).Info("sweep: re-enqueued stuck documents")
	}

	return nil
}
