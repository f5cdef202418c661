package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewStore(db)
	require.NoError(t, err)

	return store, mock, func() { db.Close() }
}

func entryColumns() []string {
	return []string{
		"id", "organization_id", "user_id", "user_name", "user_role",
		"module_name", "entity_type", "entity_id",
		"action_type", "action_summary",
		"old_value", "new_value",
		"ip_address", "user_agent",
		"log_hash", "created_at",
	}
}

func TestStoreInsertAssignsID(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	entry := sampleEntry(1, "Status changed", time.Now().UTC())
	entry.LogHash = ComputeHash("", entry)

	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))

	require.NoError(t, store.Insert(context.Background(), entry))
	assert.Equal(t, int64(41), entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLatestHash(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	t.Run("empty chain returns empty string", func(t *testing.T) {
		mock.ExpectQuery("SELECT log_hash FROM audit_logs").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"log_hash"}))

		hash, err := store.LatestHash(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "", hash)
	})

	t.Run("returns newest hash", func(t *testing.T) {
		mock.ExpectQuery("SELECT log_hash FROM audit_logs").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"log_hash"}).AddRow("abc123"))

		hash, err := store.LatestHash(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "abc123", hash)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSearchFilters(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	orgID := int64(1)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(entryColumns()).AddRow(
		int64(5), orgID, int64(12), "Jane Doe", "employee",
		"cases", "CASE", int64(99),
		"UPDATE", "Status changed",
		[]byte(`{"status":"open"}`), []byte(`{"status":"closed"}`),
		"203.0.113.9", "test-agent",
		"deadbeef", now,
	)

	mock.ExpectQuery("SELECT(.+)FROM audit_logs WHERE 1=1 AND organization_id = \\$1 AND entity_type = \\$2").
		WithArgs(orgID, "CASE", 100).
		WillReturnRows(rows)

	entries, err := store.Search(context.Background(), SearchFilter{
		OrganizationID: &orgID,
		EntityType:     EntityCase,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(5), entries[0].ID)
	assert.Equal(t, "closed", entries[0].NewValue["status"])
	assert.Equal(t, "203.0.113.9", entries[0].IPAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreVerifyChain(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	buildChain := func(tamper bool) *sqlmock.Rows {
		rows := sqlmock.NewRows(entryColumns())
		previous := ""
		for i := 0; i < 3; i++ {
			entry := sampleEntry(1, "Status changed", base.Add(time.Duration(i)*time.Minute))
			entry.ID = int64(i + 1)
			entry.LogHash = ComputeHash(previous, entry)
			previous = entry.LogHash

			summary := entry.Summary
			if tamper && i == 1 {
				summary = "rewritten after the fact"
			}
			rows.AddRow(
				entry.ID, entry.OrganizationID, entry.UserID, entry.UserName, entry.UserRole,
				entry.ModuleName, string(entry.EntityType), entry.EntityID,
				string(entry.Action), summary,
				nil, nil,
				nil, nil,
				entry.LogHash, entry.CreatedAt,
			)
		}
		return rows
	}

	t.Run("valid chain", func(t *testing.T) {
		store, mock, cleanup := newTestStore(t)
		defer cleanup()

		mock.ExpectQuery("SELECT(.+)FROM audit_logs WHERE organization_id = \\$1 ORDER BY id ASC").
			WithArgs(int64(1)).
			WillReturnRows(buildChain(false))

		result, err := store.VerifyChain(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, 3, result.EntriesChecked)
		assert.Zero(t, result.FirstBadEntry)
	})

	t.Run("tampered entry reported", func(t *testing.T) {
		store, mock, cleanup := newTestStore(t)
		defer cleanup()

		mock.ExpectQuery("SELECT(.+)FROM audit_logs WHERE organization_id = \\$1 ORDER BY id ASC").
			WithArgs(int64(1)).
			WillReturnRows(buildChain(true))

		result, err := store.VerifyChain(context.Background(), 1)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, 2, result.EntriesChecked)
		assert.Equal(t, int64(2), result.FirstBadEntry)
	})
}

func TestStoreInsertError(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	entry := sampleEntry(1, "Status changed", time.Now().UTC())

	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnError(errors.New("connection reset"))

	err := store.Insert(context.Background(), entry)
	assert.Error(t, err)
}
