package users_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lumen-search/backend/pkg/services/db/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	d, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, mock
}

func TestGetByUIDCreatesMissingUser(t *testing.T) {
	d, mock := newMockDB(t)

	mock.ExpectQuery("SELECT id, email FROM users WHERE uid = ?").
		WithArgs("new-user-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO users").
		WithArgs("new-user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(31, 1))

	u := users.User{UID: "new-user-1"}
	require.NoError(t, u.GetByUID(context.Background(), d))
	assert.Equal(t, int64(31), u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetEmailOnlyFillsEmptyRows(t *testing.T) {
	d, mock := newMockDB(t)

	// The WHERE clause guards rows that already carry an email.
	mock.ExpectExec(`UPDATE users SET email = \? WHERE uid = \? AND \(email IS NULL OR email = ''\)`).
		WithArgs("u@example.com", "existing-user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := users.SetEmail(context.Background(), d, "existing-user-1", "u@example.com")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
