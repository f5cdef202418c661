package audit

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderRecordChainsHashes(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	recorder := NewRecorder(store, nil, nil)

	// First entry of the organization: empty previous hash.
	mock.ExpectQuery("SELECT log_hash FROM audit_logs").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"log_hash"}))
	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	recorder.Record(context.Background(), Event{
		OrganizationID: 1,
		User:           UserSnapshot{ID: 12, Name: "Jane Doe", Role: "employee"},
		ModuleName:     "cases",
		EntityType:     EntityCase,
		EntityID:       99,
		Action:         ActionCreate,
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorderGeneratesSummaryFromDiff(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	recorder := NewRecorder(store, nil, nil)

	mock.ExpectQuery("SELECT log_hash FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"log_hash"}).AddRow("prev"))

	var gotSummary string
	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs(
			int64(1), int64(12), "Jane Doe", "employee",
			"cases", "CASE", int64(99),
			"UPDATE", summaryMatcher{&gotSummary},
			sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))

	recorder.Record(context.Background(), Event{
		OrganizationID: 1,
		User:           UserSnapshot{ID: 12, Name: "Jane Doe", Role: "employee"},
		ModuleName:     "cases",
		EntityType:     EntityCase,
		EntityID:       99,
		Action:         ActionUpdate,
		OldValue:       map[string]interface{}{"status": "open"},
		NewValue:       map[string]interface{}{"status": "closed"},
	})

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, `Status changed from "open" to "closed"`, gotSummary)
}

// summaryMatcher captures the action_summary argument for later assertions
type summaryMatcher struct {
	dest *string
}

func (m summaryMatcher) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	*m.dest = s
	return true
}

func TestRecorderSwallowsWriteFailures(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	recorder := NewRecorder(store, nil, nil)

	mock.ExpectQuery("SELECT log_hash FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"log_hash"}))
	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnError(errors.New("disk full"))

	// Must not panic or propagate: audit failure never aborts the caller.
	recorder.Record(context.Background(), Event{
		OrganizationID: 1,
		User:           UserSnapshot{ID: 12, Name: "Jane Doe"},
		EntityType:     EntityCase,
		EntityID:       99,
		Action:         ActionDelete,
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorderSerializesPerOrganization(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()
	mock.MatchExpectationsInOrder(false)

	recorder := NewRecorder(store, nil, nil)

	const writes = 8
	for i := 0; i < writes; i++ {
		mock.ExpectQuery("SELECT log_hash FROM audit_logs").
			WillReturnRows(sqlmock.NewRows([]string{"log_hash"}))
		mock.ExpectQuery("INSERT INTO audit_logs").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(i + 1)))
	}

	var wg sync.WaitGroup
	for i := 0; i < writes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Record(context.Background(), Event{
				OrganizationID: 1,
				User:           UserSnapshot{ID: 12, Name: "Jane Doe"},
				EntityType:     EntityCase,
				EntityID:       99,
				Action:         ActionView,
			})
		}()
	}
	wg.Wait()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorderTruncatesTimestampToMicroseconds(t *testing.T) {
	recorder := NewRecorder(nil, nil, nil)

	entry := recorder.buildEntry(Event{
		OrganizationID: 1,
		User:           UserSnapshot{ID: 12, Name: "Jane Doe"},
		EntityType:     EntityCase,
		EntityID:       99,
		Action:         ActionCreate,
	})

	// The stored timestamptz keeps microseconds only; sub-microsecond
	// precision would make VerifyChain recompute a different hash.
	assert.Zero(t, entry.CreatedAt.Nanosecond()%1000)
	assert.Equal(t, entry.CreatedAt, entry.CreatedAt.Truncate(time.Microsecond))
}

func TestRecorderLockReuse(t *testing.T) {
	recorder := NewRecorder(nil, nil, nil)

	first := recorder.lockFor(1)
	second := recorder.lockFor(1)
	other := recorder.lockFor(2)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
}
