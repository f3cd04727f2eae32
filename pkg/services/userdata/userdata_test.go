package userdata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lumen-search/backend/cfg/envs"
	"github.com/lumen-search/backend/pkg/services/db"
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

func expectUserRow(mock sqlmock.Sqlmock, uid string, id int64) {
	mock.ExpectQuery("SELECT id, email FROM users WHERE uid").
		WithArgs(uid).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(id, uid+"@example.com"))
}

func expectNoSubscription(mock sqlmock.Sqlmock, userID int64) {
	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE user_id").
		WithArgs(userID).
		WillReturnError(sql.ErrNoRows)
}

func expectProSubscription(mock sqlmock.Sqlmock, userID int64, priceID string, periodEnd time.Time) {
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "stripe_sub_id", "stripe_customer_id", "price_id",
		"status", "current_period_end", "cancel_at_period_end",
	}).AddRow(1, userID, "sub_abc", "cus_abc", priceID, "active", periodEnd, false)
	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE user_id").
		WithArgs(userID).
		WillReturnRows(rows)
}

func expectUsage(mock sqlmock.Sqlmock, userID int64, requests, tokens, searches int64) {
	mock.ExpectQuery("SELECT (.+) FROM receipts WHERE user_id").
		WillReturnRows(sqlmock.NewRows([]string{"requests", "tokens", "searches"}).
			AddRow(requests, tokens, searches))
}

func TestGetFreeUser(t *testing.T) {
	d, mock := newMockDB(t)
	db.D = d

	expectUserRow(mock, "free-user-1", 11)
	expectNoSubscription(mock, 11)
	expectUsage(mock, 11, 12, 48_000, 3)

	svc := NewService()
	data, err := svc.Get(context.Background(), "free-user-1")
	require.NoError(t, err)
	assert.False(t, data.Pro)
	assert.Equal(t, "free", data.Plan)
	assert.Equal(t, int64(11), data.User.ID)
	assert.Equal(t, int64(FreeMonthlyRequests-12), data.FreeRequestsLeft)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProUser(t *testing.T) {
	d, mock := newMockDB(t)
	db.D = d
	envs.PRICE_ID_PRO_MONTHLY = "price_pro_monthly"

	expectUserRow(mock, "pro-user-1", 22)
	expectProSubscription(mock, 22, "price_pro_monthly", time.Now().Add(720*time.Hour))
	expectUsage(mock, 22, 500, 9_000_000, 40)

	svc := NewService()
	data, err := svc.Get(context.Background(), "pro-user-1")
	require.NoError(t, err)
	assert.True(t, data.Pro)
	assert.Equal(t, "pro-monthly", data.Plan)
	assert.Equal(t, int64(0), data.FreeRequestsLeft, "pro users have no free-tier meter")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFreeAllowanceExhausted(t *testing.T) {
	d, mock := newMockDB(t)
	db.D = d

	expectUserRow(mock, "free-user-2", 33)
	expectNoSubscription(mock, 33)
	expectUsage(mock, 33, FreeMonthlyRequests+10, 0, 0)

	svc := NewService()
	data, err := svc.Get(context.Background(), "free-user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), data.FreeRequestsLeft, "allowance never goes negative")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheServesWithinTTL(t *testing.T) {
	d, mock := newMockDB(t)
	db.D = d

	expectUserRow(mock, "cached-user-1", 44)
	expectNoSubscription(mock, 44)
	expectUsage(mock, 44, 1, 0, 0)

	svc := NewService()
	ctx := context.Background()
	first, err := svc.Get(ctx, "cached-user-1")
	require.NoError(t, err)

	// Second read inside the TTL must not touch the database.
	second, err := svc.Get(ctx, "cached-user-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	d, mock := newMockDB(t)
	db.D = d

	expectUserRow(mock, "cached-user-2", 55)
	expectNoSubscription(mock, 55)
	expectUsage(mock, 55, 1, 0, 0)

	now := time.Now()
	svc := NewService()
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := svc.Get(ctx, "cached-user-2")
	require.NoError(t, err)

	// Advance past the TTL; the user row stays in the users package cache,
	// so only subscription and usage are refetched.
	now = now.Add(cacheTTL + time.Second)
	expectNoSubscription(mock, 55)
	expectUsage(mock, 55, 2, 0, 0)

	data, err := svc.Get(ctx, "cached-user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(FreeMonthlyRequests-2), data.FreeRequestsLeft)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidate(t *testing.T) {
	d, mock := newMockDB(t)
	db.D = d

	expectUserRow(mock, "cached-user-3", 66)
	expectNoSubscription(mock, 66)
	expectUsage(mock, 66, 1, 0, 0)

	svc := NewService()
	ctx := context.Background()
	data, err := svc.Get(ctx, "cached-user-3")
	require.NoError(t, err)
	assert.False(t, data.Pro)

	svc.Invalidate("cached-user-3")

	// Post-invalidation read refetches and sees the new subscription.
	envs.PRICE_ID_PRO_YEARLY = "price_pro_yearly"
	expectProSubscription(mock, 66, "price_pro_yearly", time.Now().Add(time.Hour))
	expectUsage(mock, 66, 2, 0, 0)

	data, err = svc.Get(ctx, "cached-user-3")
	require.NoError(t, err)
	assert.True(t, data.Pro)
	assert.Equal(t, "pro-yearly", data.Plan)
	assert.NoError(t, mock.ExpectationsWereMet())
}
