package ocr

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/caselane/caselane/pkg/documents"
	"github.com/caselane/caselane/pkg/observability"
)

var queueTracer = otel.Tracer("caselane/ocr/queue")

// defaultCapacity bounds the pending queue; triggers beyond it are dropped
// and left for the sweeper to re-enqueue.
const defaultCapacity = 1024

// jobTimeout bounds one extraction run
const jobTimeout = 5 * time.Minute

// VersionStore is the slice of the document store the worker needs
type VersionStore interface {
	GetCurrentVersion(ctx context.Context, documentID int64) (*documents.Version, error)
	SetOCRStatus(ctx context.Context, versionID int64, status documents.OCRStatus, text *string) error
}

// PathResolver maps storage keys to local file paths
type PathResolver interface {
	Resolve(key string) (string, error)
}

// Queue is the in-process OCR pipeline: a bounded channel with exactly one
// consumer goroutine. Single concurrency is a property of the type, not a
// convention; there is no way to add workers.
type Queue struct {
	store     VersionStore
	files     PathResolver
	extractor *Extractor
	log       *logrus.Logger
	metrics   *observability.Metrics

	pending chan int64

	mu     sync.Mutex
	queued map[int64]struct{}
	closed bool

	wg sync.WaitGroup
}

// NewQueue creates the queue and starts its worker goroutine. metrics may
// be nil.
func NewQueue(store VersionStore, files PathResolver, extractor *Extractor, log *logrus.Logger, metrics *observability.Metrics) *Queue {
	if log == nil {
		log = logrus.New()
	}

	q := &Queue{
		store:     store,
		files:     files,
		extractor: extractor,
		log:       log,
		metrics:   metrics,
		pending:   make(chan int64, defaultCapacity),
		queued:    make(map[int64]struct{}),
	}

	q.wg.Add(1)
	go q.run()

	return q
}

// Trigger enqueues a document id for extraction. It never blocks: ids
// already waiting are deduplicated, and when the queue is full the id is
// dropped with a warning (the sweeper re-enqueues anything left PENDING).
// A document currently being processed is not in the waiting set, so
// re-triggering it enqueues a fresh run.
func (q *Queue) Trigger(documentID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.WithField("document_id", documentID).Warn("ocr trigger after shutdown, dropping")
		return
	}
	if _, waiting := q.queued[documentID]; waiting {
		return
	}

	select {
	case q.pending <- documentID:
		q.queued[documentID] = struct{}{}
		if q.metrics != nil {
			q.metrics.OCRQueueDepth.Inc()
		}
	default:
		q.log.WithField("document_id", documentID).Warn("ocr queue full, dropping trigger")
	}
}

// Close stops accepting triggers, drains already-queued work and waits for
// the worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.pending)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()

	for documentID := range q.pending {
		q.mu.Lock()
		delete(q.queued, documentID)
		q.mu.Unlock()
		if q.metrics != nil {
			q.metrics.OCRQueueDepth.Dec()
		}

		q.process(documentID)
	}
}

// process runs one extraction end to end. Every failure path is contained
// to this document: the worker loop never stops.
func (q *Queue) process(documentID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	ctx, span := queueTracer.Start(ctx, "ProcessDocument",
		trace.WithAttributes(attribute.Int64("document.id", documentID)))
	defer span.End()

	started := time.Now()

	version, err := q.store.GetCurrentVersion(ctx, documentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load current version")
		q.log.WithError(err).WithField("document_id", documentID).Error("ocr: failed to load version")
		return
	}

	if err := q.store.SetOCRStatus(ctx, version.ID, documents.OCRProcessing, nil); err != nil {
		span.RecordError(err)
		q.log.WithError(err).WithField("document_id", documentID).Error("ocr: failed to mark processing")
		return
	}

	status, text := q.extract(ctx, span, documentID, version)

	if err := q.store.SetOCRStatus(ctx, version.ID, status, text); err != nil {
		span.RecordError(err)
		q.log.WithError(err).WithField("document_id", documentID).Error("ocr: failed to store result")
		return
	}

	if q.metrics != nil {
		q.metrics.OCRJobsTotal.WithLabelValues(string(status)).Inc()
		q.metrics.OCRJobDuration.Observe(time.Since(started).Seconds())
	}

	q.log.WithFields(logrus.Fields{
		"document_id": documentID,
		"version":     version.VersionNumber,
		"status":      status,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("ocr: document processed")
}

func (q *Queue) extract(ctx context.Context, span trace.Span, documentID int64, version *documents.Version) (documents.OCRStatus, *string) {
	// Unsupported types have no extractable text; that is completion, not
	// failure.
	if !documents.SupportedMimeTypes[version.MimeType] {
		span.SetStatus(codes.Ok, "unsupported mime type")
		return documents.OCRCompleted, nil
	}

	path, err := q.files.Resolve(version.StorageKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve file path")
		q.log.WithError(err).WithField("document_id", documentID).Error("ocr: bad storage key")
		return documents.OCRFailed, nil
	}

	raw, err := q.extractor.Extract(ctx, path, version.MimeType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		q.log.WithError(err).WithFields(logrus.Fields{
			"document_id": documentID,
			"mime_type":   version.MimeType,
		}).Warn("ocr: extraction failed")
		return documents.OCRFailed, nil
	}

	text := Sanitize(raw)
	span.SetStatus(codes.Ok, "extracted")
	span.SetAttributes(attribute.Int("ocr.text_length", len(text)))
	return documents.OCRCompleted, &text
}
