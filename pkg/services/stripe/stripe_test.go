package stripe

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lumen-search/backend/cfg/envs"
	"github.com/lumen-search/backend/pkg/services/db"
	"github.com/lumen-search/backend/pkg/services/userdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v80"
)

func TestPriceForPlan(t *testing.T) {
	envs.PRICE_ID_PRO_MONTHLY = "price_monthly"
	envs.PRICE_ID_PRO_YEARLY = "price_yearly"

	assert.Equal(t, "price_yearly", priceForPlan("pro-yearly"))
	assert.Equal(t, "price_monthly", priceForPlan("pro-monthly"))
	assert.Equal(t, "price_monthly", priceForPlan(""))
	assert.Equal(t, "price_monthly", priceForPlan("bogus"))
}

func TestRecordSubscription(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mockDB.Close()
	db.D = mockDB

	mock.ExpectQuery("SELECT id, email FROM users WHERE uid = ?").
		WithArgs("uid-stripe-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(7, "sub@example.com"))
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(int64(7), "sub_123", "cus_123", "price_monthly", "active",
			sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	cl := &Client{userData: userdata.NewService()}
	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	sub := &stripego.Subscription{
		ID:               "sub_123",
		Status:           stripego.SubscriptionStatusActive,
		CurrentPeriodEnd: periodEnd,
		Customer:         &stripego.Customer{ID: "cus_123"},
		Metadata:         map[string]string{"userID": "uid-stripe-1"},
		Items: &stripego.SubscriptionItemList{
			Data: []*stripego.SubscriptionItem{
				{Price: &stripego.Price{ID: "price_monthly"}},
			},
		},
	}
	err = cl.recordSubscription(context.Background(), sub)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSubscriptionMissingUser(t *testing.T) {
	cl := &Client{userData: userdata.NewService()}
	err := cl.recordSubscription(context.Background(), &stripego.Subscription{ID: "sub_nouser"})
	assert.ErrorContains(t, err, "no userID metadata")
}
