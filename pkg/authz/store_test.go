package authz

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetGrant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("SELECT resource_id, user_id, level FROM case_permissions").
		WithArgs(int64(100), int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"resource_id", "user_id", "level"}).
			AddRow(100, 12, "EDIT"))

	grant, err := store.GetGrant(context.Background(), ResourceCase, 100, 12)
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, LevelEdit, grant.Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGrantAbsentIsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("SELECT resource_id, user_id, level FROM document_permissions").
		WithArgs(int64(500), int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"resource_id", "user_id", "level"}))

	grant, err := store.GetGrant(context.Background(), ResourceDocument, 500, 12)
	require.NoError(t, err)
	assert.Nil(t, grant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGrantUnknownResourceType(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	_, err = store.GetGrant(context.Background(), ResourceType("HEARING"), 1, 1)
	assert.Error(t, err)
}

func TestReplaceGrants(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM case_permissions").
		WithArgs(int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO case_permissions").
		WithArgs(int64(100), int64(12), LevelView).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO case_permissions").
		WithArgs(int64(100), int64(13), LevelDelete).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err = store.ReplaceGrants(context.Background(), ResourceCase, 100, []Grant{
		{UserID: 12, Level: LevelView},
		{UserID: 13, Level: LevelDelete},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceGrantsEmptyClearsAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_permissions").
		WithArgs(int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err = store.ReplaceGrants(context.Background(), ResourceDocument, 500, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceGrantsRejectsInvalidLevel(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	err = store.ReplaceGrants(context.Background(), ResourceCase, 100, []Grant{
		{UserID: 12, Level: Level("OWNER")},
	})
	require.Error(t, err)
	// Validation happens before the transaction opens.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListGrants(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("SELECT resource_id, user_id, level FROM case_permissions").
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"resource_id", "user_id", "level"}).
			AddRow(100, 12, "VIEW").
			AddRow(100, 13, "EDIT"))

	grants, err := store.ListGrants(context.Background(), ResourceCase, 100)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, int64(12), grants[0].UserID)
	assert.Equal(t, LevelEdit, grants[1].Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}
