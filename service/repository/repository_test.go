package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/devwanji/Muranga-marketplace2/service/models"
	"github.com/devwanji/Muranga-marketplace2/service/testsupport"
)

func newPendingAttempt(checkoutRequestID string) *models.PaymentAttempt {
	return &models.PaymentAttempt{
		BusinessID:        "biz-1",
		PlanID:            "plan-1",
		PhoneNumber:       "254712345678",
		Amount:            decimal.NewFromInt(200),
		CheckoutRequestID: checkoutRequestID,
		MerchantRequestID: "mr-" + checkoutRequestID,
	}
}

func TestPaymentRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(ctx, testsupport.OpenSQLite(t))

	attempt := newPendingAttempt("ws_CO_1")
	require.NoError(t, repo.Create(ctx, attempt))
	require.NotEmpty(t, attempt.GetID())

	byCheckout, err := repo.GetByCheckoutRequestID(ctx, "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, attempt.GetID(), byCheckout.GetID())
	assert.Equal(t, models.PaymentStatusPending, byCheckout.Status)
	assert.True(t, decimal.NewFromInt(200).Equal(byCheckout.Amount))

	byID, err := repo.GetByID(ctx, attempt.GetID())
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", byID.CheckoutRequestID)

	_, err = repo.GetByCheckoutRequestID(ctx, "ws_unknown")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestPaymentRepository_CheckoutRequestIDIsUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(ctx, testsupport.OpenSQLite(t))

	require.NoError(t, repo.Create(ctx, newPendingAttempt("ws_CO_dup")))
	assert.Error(t, repo.Create(ctx, newPendingAttempt("ws_CO_dup")))
}

func TestPaymentRepository_MarkTerminalOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(ctx, testsupport.OpenSQLite(t))

	attempt := newPendingAttempt("ws_CO_2")
	require.NoError(t, repo.Create(ctx, attempt))

	txDate := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	won, err := repo.MarkTerminal(ctx, attempt.GetID(), PaymentTransition{
		Status:             models.PaymentStatusCompleted,
		ResultCode:         0,
		ResultDesc:         "The service request is processed successfully.",
		MpesaReceiptNumber: "QKJ1ABC2DE",
		TransactionDate:    &txDate,
		Extra:              map[string]any{"Amount": 200},
	})
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.MarkTerminal(ctx, attempt.GetID(), PaymentTransition{
		Status:     models.PaymentStatusFailed,
		ResultCode: 1032,
		ResultDesc: "Request cancelled by user",
	})
	require.NoError(t, err)
	assert.False(t, won, "a terminal attempt must not transition again")

	stored, err := repo.GetByID(ctx, attempt.GetID())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.ResultCode)
	assert.Equal(t, 0, *stored.ResultCode)
	assert.Equal(t, "QKJ1ABC2DE", stored.MpesaReceiptNumber)
	require.NotNil(t, stored.TransactionDate)
	assert.True(t, txDate.Equal(*stored.TransactionDate))
	assert.Contains(t, stored.Extra, "Amount")
}

func TestPaymentRepository_Listing(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenSQLite(t)
	repo := NewPaymentRepository(ctx, db)

	first := newPendingAttempt("ws_CO_a")
	second := newPendingAttempt("ws_CO_b")
	other := newPendingAttempt("ws_CO_c")
	other.BusinessID = "biz-2"
	for _, a := range []*models.PaymentAttempt{first, second, other} {
		require.NoError(t, repo.Create(ctx, a))
	}

	old := time.Now().Add(-time.Hour)
	require.NoError(t, db(ctx, false).Model(&models.PaymentAttempt{}).
		Where("id = ?", first.GetID()).UpdateColumn("created_at", old).Error)

	history, err := repo.ListByBusiness(ctx, "biz-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.GetID(), history[0].GetID(), "newest first")

	stale, err := repo.ListStalePending(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, first.GetID(), stale[0].GetID())
}

func TestPaymentRepository_StalePendingPutsCheckedAttemptsLast(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenSQLite(t)
	repo := NewPaymentRepository(ctx, db)

	older := newPendingAttempt("ws_CO_older")
	newer := newPendingAttempt("ws_CO_newer")
	for i, a := range []*models.PaymentAttempt{older, newer} {
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, db(ctx, false).Model(&models.PaymentAttempt{}).
			Where("id = ?", a.GetID()).UpdateColumn("created_at", time.Now().Add(-time.Duration(2-i)*time.Hour)).Error)
	}

	stale, err := repo.ListStalePending(ctx, time.Now().Add(-time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, older.GetID(), stale[0].GetID())

	require.NoError(t, repo.MarkChecked(ctx, older.GetID(), time.Now()))

	stale, err = repo.ListStalePending(ctx, time.Now().Add(-time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, newer.GetID(), stale[0].GetID(), "a never checked attempt comes before a checked one")

	require.NoError(t, repo.MarkChecked(ctx, newer.GetID(), time.Now().Add(time.Second)))

	stale, err = repo.ListStalePending(ctx, time.Now().Add(-time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, older.GetID(), stale[0].GetID(), "checked longest ago comes first")
	require.NotNil(t, stale[0].LastCheckedAt)
}

func TestSubscriptionRepository_UpsertKeepsOneRowPerBusiness(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepository(ctx, testsupport.OpenSQLite(t))

	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	created, err := repo.Upsert(ctx, &models.Subscription{
		BusinessID: "biz-1",
		PlanID:     "monthly",
		StartDate:  start,
		EndDate:    start.AddDate(0, 1, 0),
		IsActive:   true,
		AutoRenew:  true,
	})
	require.NoError(t, err)

	renewedStart := start.AddDate(0, 2, 0)
	renewed, err := repo.Upsert(ctx, &models.Subscription{
		BusinessID: "biz-1",
		PlanID:     "yearly",
		StartDate:  renewedStart,
		EndDate:    renewedStart.AddDate(1, 0, 0),
		IsActive:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, created.GetID(), renewed.GetID(), "renewal updates the row in place")
	assert.Equal(t, "yearly", renewed.PlanID)
	assert.True(t, renewedStart.AddDate(1, 0, 0).Equal(renewed.EndDate))
	assert.True(t, renewed.AutoRenew, "renewal leaves auto renew as the business set it")

	all, err := repo.ListByBusinessIDs(ctx, []string{"biz-1", "biz-2"})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	none, err := repo.ListByBusinessIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPlanRepository_SeedDefaults(t *testing.T) {
	ctx := context.Background()
	repo := NewPlanRepository(ctx, testsupport.OpenSQLite(t))

	seeded, err := repo.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, seeded)

	seeded, err = repo.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, seeded, "seeding is skipped once the catalog has rows")

	plans, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, models.PlanTypeMonthly, plans[0].Type)
	assert.True(t, decimal.NewFromInt(200).Equal(plans[0].Amount))
	assert.Equal(t, models.PlanTypeYearly, plans[1].Type)
	assert.True(t, decimal.NewFromInt(3000).Equal(plans[1].Amount))

	plan, err := repo.GetByID(ctx, plans[1].GetID())
	require.NoError(t, err)
	assert.Equal(t, "Yearly", plan.Name)
}

func TestBusinessRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewBusinessRepository(ctx, testsupport.OpenSQLite(t))

	require.NoError(t, repo.Save(ctx, &models.Business{OwnerID: "user-1", Name: "Kangema Hardware"}))
	require.NoError(t, repo.Save(ctx, &models.Business{OwnerID: "user-1", Name: "Mathioya Dairy"}))
	require.NoError(t, repo.Save(ctx, &models.Business{OwnerID: "user-2", Name: "Kiriaini Grocers"}))

	owned, err := repo.ListByOwner(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, owned, 2)

	got, err := repo.GetByID(ctx, owned[0].GetID())
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.OwnerID)
}

func TestWithTransaction_RollsBack(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenSQLite(t)
	repo := NewPaymentRepository(ctx, db)

	boom := errors.New("boom")
	err := WithTransaction(ctx, db, func(txCtx context.Context) error {
		require.NoError(t, repo.Create(txCtx, newPendingAttempt("ws_CO_tx")))

		// visible inside the transaction
		_, getErr := repo.GetByCheckoutRequestID(txCtx, "ws_CO_tx")
		require.NoError(t, getErr)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetByCheckoutRequestID(ctx, "ws_CO_tx")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRepositories_Postgres(t *testing.T) {
	db := testsupport.OpenPostgres(t)
	ctx := context.Background()

	payments := NewPaymentRepository(ctx, db)
	subscriptions := NewSubscriptionRepository(ctx, db)

	attempt := newPendingAttempt("ws_CO_pg")
	require.NoError(t, payments.Create(ctx, attempt))

	err := WithTransaction(ctx, db, func(txCtx context.Context) error {
		won, err := payments.MarkTerminal(txCtx, attempt.GetID(), PaymentTransition{
			Status: models.PaymentStatusCompleted, ResultDesc: "ok",
		})
		if err != nil || !won {
			return errors.Join(err, errors.New("lost transition"))
		}
		sub, err := subscriptions.Upsert(txCtx, &models.Subscription{
			BusinessID: attempt.BusinessID, PlanID: attempt.PlanID,
			StartDate: time.Now(), EndDate: time.Now().AddDate(0, 1, 0), IsActive: true,
		})
		if err != nil {
			return err
		}
		return payments.LinkSubscription(txCtx, attempt.GetID(), sub.GetID())
	})
	require.NoError(t, err)

	stored, err := payments.GetByID(ctx, attempt.GetID())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.SubscriptionID)
}
