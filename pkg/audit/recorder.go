package audit

import (
	"context"
	"sync"
	"time"

	"github.com/caselane/caselane/pkg/async"
	"github.com/caselane/caselane/pkg/observability"
)

// Recorder turns Events into hash-chained Entries. Writes for the same
// organization are serialized so the chain stays strictly linear; writes
// for different organizations proceed concurrently.
//
// Record never returns an error to the caller: audit logging must not
// abort the business operation it describes. Failures are logged and
// counted instead.
type Recorder struct {
	store   *Store
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	orgLocks map[int64]*sync.Mutex
}

// NewRecorder creates a recorder on top of an audit store
func NewRecorder(store *Store, logger *observability.Logger, metrics *observability.Metrics) *Recorder {
	return &Recorder{
		store:    store,
		logger:   logger,
		metrics:  metrics,
		orgLocks: make(map[int64]*sync.Mutex),
	}
}

func (r *Recorder) lockFor(organizationID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.orgLocks[organizationID]
	if !ok {
		lock = &sync.Mutex{}
		r.orgLocks[organizationID] = lock
	}
	return lock
}

// Record appends an event to the organization's chain. It blocks until the
// write completes or fails, but always returns; callers do not branch on
// audit success.
func (r *Recorder) Record(ctx context.Context, event Event) {
	entry := r.buildEntry(event)

	lock := r.lockFor(event.OrganizationID)
	lock.Lock()
	defer lock.Unlock()

	previousHash, err := r.store.LatestHash(ctx, event.OrganizationID)
	if err != nil {
		r.recordFailure(event, err)
		return
	}

	entry.LogHash = ComputeHash(previousHash, entry)

	if err := r.store.Insert(ctx, entry); err != nil {
		r.recordFailure(event, err)
		return
	}

	if r.metrics != nil {
		r.metrics.AuditWritesTotal.WithLabelValues(string(event.Action)).Inc()
	}
}

// RecordAsync records in a background goroutine, detached from the request
// context so an aborted request does not lose the entry.
func (r *Recorder) RecordAsync(event Event) {
	async.SafeGo(context.Background(), 10*time.Second, "audit record", func(ctx context.Context) error {
		r.Record(ctx, event)
		return nil
	})
}

func (r *Recorder) buildEntry(event Event) *Entry {
	summary := event.Summary
	if summary == "" {
		if event.Action == ActionUpdate && event.OldValue != nil && event.NewValue != nil {
			summary = GenerateChangeSummary(event.OldValue, event.NewValue)
		}
		if summary == "" {
			summary = defaultSummary(event)
		}
	}

	return &Entry{
		OrganizationID: event.OrganizationID,
		UserID:         event.User.ID,
		UserName:       event.User.Name,
		UserRole:       event.User.Role,
		ModuleName:     event.ModuleName,
		EntityType:     event.EntityType,
		EntityID:       event.EntityID,
		Action:         event.Action,
		Summary:        summary,
		OldValue:       event.OldValue,
		NewValue:       event.NewValue,
		IPAddress:      event.IPAddress,
		UserAgent:      event.UserAgent,
		// Postgres timestamptz stores microseconds; hash what will be read back.
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (r *Recorder) recordFailure(event Event, err error) {
	if r.metrics != nil {
		r.metrics.AuditWriteFailures.Inc()
	}
	if r.logger != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"organization_id": event.OrganizationID,
			"entity_type":     event.EntityType,
			"entity_id":       event.EntityID,
			"action_type":     event.Action,
		}).Error("audit write failed")
	}
}
