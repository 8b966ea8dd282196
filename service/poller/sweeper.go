package poller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devwanji/Muranga-marketplace2/service/repository"
)

const defaultSweepBatch = 50

type checker interface {
	Check(ctx context.Context, checkoutRequestID string) (*Report, error)
}

// Sweeper re-checks attempts left pending longer than staleAfter, for callbacks that never arrived.
type Sweeper struct {
	log        *logrus.Entry
	payments   repository.PaymentRepository
	checker    checker
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

func NewSweeper(log *logrus.Entry, payments repository.PaymentRepository, coordinator *Coordinator, interval, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		log:        log.WithField("type", "PendingPaymentSweeper"),
		payments:   payments,
		checker:    coordinator,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  defaultSweepBatch,
		now:        time.Now,
	}
}

// Sweep runs one pass and returns how many attempts reached a terminal status.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.payments.ListStalePending(ctx, s.now().Add(-s.staleAfter), s.batchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, attempt := range stale {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		report, checkErr := s.checker.Check(ctx, attempt.CheckoutRequestID)
		// checked attempts go to the back of the queue, whatever the provider answered
		if markErr := s.payments.MarkChecked(ctx, attempt.GetID(), s.now()); markErr != nil {
			s.log.WithError(markErr).
				WithField("checkout_request_id", attempt.CheckoutRequestID).
				Warn("could not record stale payment check")
		}
		if checkErr != nil {
			s.log.WithError(checkErr).
				WithField("checkout_request_id", attempt.CheckoutRequestID).
				Warn("could not check stale payment attempt")
			continue
		}
		if report.Attempt.IsTerminal() {
			resolved++
		}
	}

	if len(stale) > 0 {
		s.log.WithField("checked", len(stale)).WithField("resolved", resolved).Info("stale payment sweep done")
	}
	return resolved, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Warn("stale payment sweep failed")
			}
		}
	}
}
