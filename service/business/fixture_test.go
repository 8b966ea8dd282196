package business

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/devwanji/Muranga-marketplace2/service/models"
	"github.com/devwanji/Muranga-marketplace2/service/repository"
	"github.com/devwanji/Muranga-marketplace2/service/testsupport"
)

var clockStart = time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu          sync.Mutex
	activations []*SubscriptionActivated
	err         error
}

func (n *recordingNotifier) Notify(_ context.Context, activation *SubscriptionActivated) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activations = append(n.activations, activation)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.activations)
}

type fixture struct {
	ctx      context.Context
	db       repository.DBProvider
	stores   Stores
	business *models.Business
	monthly  *models.SubscriptionPlan
	yearly   *models.SubscriptionPlan
	notifier *recordingNotifier
	engine   *reconciliationEngine
	clock    time.Time
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(logger)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	db := testsupport.OpenSQLite(t)
	stores := Stores{
		Payments:      repository.NewPaymentRepository(ctx, db),
		Subscriptions: repository.NewSubscriptionRepository(ctx, db),
		Plans:         repository.NewPlanRepository(ctx, db),
		Businesses:    repository.NewBusinessRepository(ctx, db),
	}

	_, err := stores.Plans.SeedDefaults(ctx)
	require.NoError(t, err)
	plans, err := stores.Plans.List(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	business := &models.Business{OwnerID: "user-1", Name: "Kangema Hardware"}
	require.NoError(t, stores.Businesses.Save(ctx, business))

	f := &fixture{
		ctx:      ctx,
		db:       db,
		stores:   stores,
		business: business,
		monthly:  plans[0],
		yearly:   plans[1],
		notifier: &recordingNotifier{},
		clock:    clockStart,
	}

	engine, err := NewReconciliationEngine(ctx, testLogger(), db, stores, f.notifier.Notify)
	require.NoError(t, err)
	f.engine = engine.(*reconciliationEngine)
	f.engine.now = func() time.Time { return f.clock }

	return f
}

func (f *fixture) pendingAttempt(t *testing.T, checkoutRequestID string, plan *models.SubscriptionPlan) *models.PaymentAttempt {
	t.Helper()

	attempt := &models.PaymentAttempt{
		BusinessID:        f.business.GetID(),
		PlanID:            plan.GetID(),
		PhoneNumber:       "254712345678",
		Amount:            decimal.NewFromInt(plan.Amount.IntPart()),
		CheckoutRequestID: checkoutRequestID,
		MerchantRequestID: "mr-" + checkoutRequestID,
	}
	require.NoError(t, f.stores.Payments.Create(f.ctx, attempt))
	return attempt
}

func successOutcome(checkoutRequestID string, source string) Outcome {
	txDate := time.Date(2024, 1, 31, 12, 0, 5, 0, time.UTC)
	return Outcome{
		CheckoutRequestID: checkoutRequestID,
		MerchantRequestID: "mr-" + checkoutRequestID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		ReceiptNumber:     "NLJ7RT61SV",
		TransactionDate:   &txDate,
		PhoneNumber:       "254712345678",
		Metadata:          map[string]any{"Amount": 200, "MpesaReceiptNumber": "NLJ7RT61SV"},
		Source:            source,
	}
}
