package business

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/devwanji/Muranga-marketplace2/service/models"
	"github.com/devwanji/Muranga-marketplace2/service/repository"
)

const (
	OutcomeSourceCallback = "callback"
	OutcomeSourcePoll     = "poll"
)

// Outcome is a provider verdict on one push, whichever path delivered it.
type Outcome struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        int
	ResultDesc        string
	ReceiptNumber     string
	TransactionDate   *time.Time
	PhoneNumber       string
	Metadata          map[string]any
	Source            string
}

func (o Outcome) Succeeded() bool {
	return o.ResultCode == models.MpesaResultCodeSuccess
}

// Result reports the stored state after reconciliation. AlreadyResolved is set when
// another delivery got there first and nothing was written by this call.
type Result struct {
	Attempt         *models.PaymentAttempt
	Subscription    *models.Subscription
	AlreadyResolved bool
}

// SubscriptionActivated is announced once per completed payment, after commit.
type SubscriptionActivated struct {
	SubscriptionID    string    `json:"subscriptionId"`
	BusinessID        string    `json:"businessId"`
	PlanID            string    `json:"planId"`
	PaymentID         string    `json:"paymentId"`
	CheckoutRequestID string    `json:"checkoutRequestId"`
	ReceiptNumber     string    `json:"receiptNumber,omitempty"`
	StartDate         time.Time `json:"startDate"`
	EndDate           time.Time `json:"endDate"`
}

type Notifier func(ctx context.Context, activation *SubscriptionActivated) error

// Stores groups the repositories the payment flow reads and writes.
type Stores struct {
	Payments      repository.PaymentRepository
	Subscriptions repository.SubscriptionRepository
	Plans         repository.PlanRepository
	Businesses    repository.BusinessRepository
}

func (s Stores) complete() bool {
	return s.Payments != nil && s.Subscriptions != nil && s.Plans != nil && s.Businesses != nil
}

type ReconciliationEngine interface {
	Reconcile(ctx context.Context, outcome Outcome) (*Result, error)
}

var errTransitionLost = errors.New("payment attempt left pending concurrently")

type reconciliationEngine struct {
	log    *logrus.Entry
	db     repository.DBProvider
	stores Stores
	notify Notifier
	now    func() time.Time
}

// NewReconciliationEngine builds the only writer of terminal payment state. notify may be nil.
func NewReconciliationEngine(_ context.Context, log *logrus.Entry, db repository.DBProvider, stores Stores, notify Notifier) (ReconciliationEngine, error) {
	if log == nil || db == nil || !stores.complete() {
		return nil, ErrorInitializationFail
	}

	return &reconciliationEngine{
		log:    log.WithField("type", "ReconciliationEngine"),
		db:     db,
		stores: stores,
		notify: notify,
		now:    time.Now,
	}, nil
}

func (e *reconciliationEngine) Reconcile(ctx context.Context, outcome Outcome) (*Result, error) {
	logger := e.log.
		WithField("checkout_request_id", outcome.CheckoutRequestID).
		WithField("source", outcome.Source).
		WithField("result_code", outcome.ResultCode)

	attempt, err := e.stores.Payments.GetByCheckoutRequestID(ctx, outcome.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("outcome for an unknown payment attempt, nothing to reconcile")
			return nil, ErrorPaymentDoesNotExist
		}
		return nil, err
	}

	if attempt.IsTerminal() {
		logger.WithField("status", attempt.Status).Debug("payment attempt already resolved")
		return e.storedResult(ctx, attempt)
	}

	var subscription *models.Subscription
	err = repository.WithTransaction(ctx, e.db, func(txCtx context.Context) error {
		won, txErr := e.stores.Payments.MarkTerminal(txCtx, attempt.GetID(), transitionFor(outcome))
		if txErr != nil {
			return txErr
		}
		if !won {
			return errTransitionLost
		}

		if !outcome.Succeeded() {
			return nil
		}

		subscription, txErr = e.activate(txCtx, attempt)
		if txErr != nil {
			return txErr
		}
		return e.stores.Payments.LinkSubscription(txCtx, attempt.GetID(), subscription.GetID())
	})
	if errors.Is(err, errTransitionLost) {
		logger.Debug("another delivery resolved the payment attempt first")
		stored, getErr := e.stores.Payments.GetByID(ctx, attempt.GetID())
		if getErr != nil {
			return nil, getErr
		}
		return e.storedResult(ctx, stored)
	}
	if err != nil {
		logger.WithError(err).Error("could not reconcile payment attempt")
		return nil, err
	}

	attempt, err = e.stores.Payments.GetByID(ctx, attempt.GetID())
	if err != nil {
		return nil, err
	}

	logger.WithField("status", attempt.Status).
		WithField("payment_id", attempt.GetID()).
		Info("payment attempt reconciled")

	if subscription != nil {
		e.announce(ctx, logger, attempt, subscription)
	}

	return &Result{Attempt: attempt, Subscription: subscription}, nil
}

// activate starts or renews the business's subscription from now, replacing any remaining period.
func (e *reconciliationEngine) activate(ctx context.Context, attempt *models.PaymentAttempt) (*models.Subscription, error) {
	plan, err := e.stores.Plans.GetByID(ctx, attempt.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("plan %s of payment %s: %w", attempt.PlanID, attempt.GetID(), ErrorPlanNotFound)
		}
		return nil, err
	}

	start := e.now().UTC()
	end, err := models.AddPlanPeriod(start, plan.Type)
	if err != nil {
		return nil, err
	}

	return e.stores.Subscriptions.Upsert(ctx, &models.Subscription{
		BusinessID: attempt.BusinessID,
		PlanID:     plan.GetID(),
		StartDate:  start,
		EndDate:    end,
		IsActive:   true,
	})
}

func (e *reconciliationEngine) announce(ctx context.Context, logger *logrus.Entry, attempt *models.PaymentAttempt, subscription *models.Subscription) {
	if e.notify == nil {
		return
	}

	err := e.notify(ctx, &SubscriptionActivated{
		SubscriptionID:    subscription.GetID(),
		BusinessID:        subscription.BusinessID,
		PlanID:            subscription.PlanID,
		PaymentID:         attempt.GetID(),
		CheckoutRequestID: attempt.CheckoutRequestID,
		ReceiptNumber:     attempt.MpesaReceiptNumber,
		StartDate:         subscription.StartDate,
		EndDate:           subscription.EndDate,
	})
	if err != nil {
		logger.WithError(err).Warn("could not announce subscription activation")
	}
}

func (e *reconciliationEngine) storedResult(ctx context.Context, attempt *models.PaymentAttempt) (*Result, error) {
	result := &Result{Attempt: attempt, AlreadyResolved: attempt.IsTerminal()}
	if attempt.Status != models.PaymentStatusCompleted {
		return result, nil
	}

	subscription, err := e.stores.Subscriptions.GetByBusinessID(ctx, attempt.BusinessID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	result.Subscription = subscription
	return result, nil
}

func transitionFor(outcome Outcome) repository.PaymentTransition {
	status := models.PaymentStatusFailed
	if outcome.Succeeded() {
		status = models.PaymentStatusCompleted
	}

	transition := repository.PaymentTransition{
		Status:            status,
		ResultCode:        outcome.ResultCode,
		ResultDesc:        outcome.ResultDesc,
		MerchantRequestID: outcome.MerchantRequestID,
		Extra:             outcome.Metadata,
	}
	if outcome.Succeeded() {
		transition.MpesaReceiptNumber = outcome.ReceiptNumber
		transition.TransactionDate = outcome.TransactionDate
	}
	return transition
}
