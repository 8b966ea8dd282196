package poller

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/devwanji/Muranga-marketplace2/service/business"
	"github.com/devwanji/Muranga-marketplace2/service/coreapi"
	"github.com/devwanji/Muranga-marketplace2/service/models"
	"github.com/devwanji/Muranga-marketplace2/service/repository"
)

const TimedOutMessage = "could not confirm payment yet, check again later"

var errStillPending = errors.New("payment attempt still pending")

// Report is what a poll learned about one attempt. TimedOut means the bounded wait ran out
// while the attempt was still pending; it is not a failure.
type Report struct {
	Attempt    *models.PaymentAttempt
	Status     string
	TimedOut   bool
	QueryError error
}

// Coordinator resolves attempts by asking the provider, for clients that cannot wait on the callback.
type Coordinator struct {
	log         *logrus.Entry
	payments    repository.PaymentRepository
	gateway     coreapi.Gateway
	engine      business.ReconciliationEngine
	interval    time.Duration
	maxAttempts int
}

func NewCoordinator(log *logrus.Entry, payments repository.PaymentRepository, gateway coreapi.Gateway,
	engine business.ReconciliationEngine, interval time.Duration, maxAttempts int) (*Coordinator, error) {
	if log == nil || payments == nil || gateway == nil || engine == nil || interval <= 0 || maxAttempts <= 0 {
		return nil, business.ErrorInitializationFail
	}

	return &Coordinator{
		log:         log.WithField("type", "PollingCoordinator"),
		payments:    payments,
		gateway:     gateway,
		engine:      engine,
		interval:    interval,
		maxAttempts: maxAttempts,
	}, nil
}

// Check performs one poll step. Terminal attempts are answered from the store without calling the provider.
func (c *Coordinator) Check(ctx context.Context, checkoutRequestID string) (*Report, error) {
	attempt, err := c.payments.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, business.ErrorPaymentDoesNotExist
		}
		return nil, err
	}

	if attempt.IsTerminal() {
		return &Report{Attempt: attempt, Status: attempt.Status}, nil
	}

	logger := c.log.WithField("checkout_request_id", checkoutRequestID)

	providerStatus, err := c.gateway.QueryStatus(ctx, checkoutRequestID)
	if err != nil {
		logger.WithError(err).Warn("status query failed, attempt stays pending")
		return &Report{Attempt: attempt, Status: attempt.Status, QueryError: err}, nil
	}
	if providerStatus.Pending {
		return &Report{Attempt: attempt, Status: attempt.Status}, nil
	}

	result, err := c.engine.Reconcile(ctx, business.Outcome{
		CheckoutRequestID: checkoutRequestID,
		MerchantRequestID: providerStatus.MerchantRequestID,
		ResultCode:        providerStatus.ResultCode,
		ResultDesc:        providerStatus.ResultDesc,
		Source:            business.OutcomeSourcePoll,
	})
	if err != nil {
		return nil, err
	}

	return &Report{Attempt: result.Attempt, Status: result.Attempt.Status}, nil
}

// Await polls every interval until the attempt is terminal, the attempts run out or ctx ends.
// Cancelling ctx only stops further polls; a reconciliation already running is not interrupted.
func (c *Coordinator) Await(ctx context.Context, checkoutRequestID string) (*Report, error) {
	var report *Report

	operation := func() error {
		r, err := c.Check(ctx, checkoutRequestID)
		if err != nil {
			if errors.Is(err, business.ErrorPaymentDoesNotExist) {
				return backoff.Permanent(err)
			}
			return err
		}

		report = r
		if r.Attempt.IsTerminal() {
			return nil
		}
		return errStillPending
	}

	schedule := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.interval), uint64(c.maxAttempts-1)),
		ctx,
	)

	err := backoff.Retry(operation, schedule)
	if err == nil {
		return report, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if report == nil || errors.Is(err, business.ErrorPaymentDoesNotExist) {
		return nil, err
	}

	c.log.WithField("checkout_request_id", checkoutRequestID).
		WithField("attempts", c.maxAttempts).
		Info("payment still pending after polling window")

	report.TimedOut = true
	return report, nil
}
