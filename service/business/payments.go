package business

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/devwanji/Muranga-marketplace2/service/coreapi"
	"github.com/devwanji/Muranga-marketplace2/service/models"
)

const historyLimit = 50

type PaymentSettings struct {
	CallbackURL      string
	AccountReference string
}

type InitiateRequest struct {
	BusinessID  string
	PlanID      string
	PhoneNumber string
}

type InitiateResponse struct {
	PaymentID         string
	CheckoutRequestID string
	MerchantRequestID string
	CustomerMessage   string
}

// SubscriptionView is a subscription with its entitlement fields computed at read time.
type SubscriptionView struct {
	Subscription  *models.Subscription
	Plan          *models.SubscriptionPlan
	IsActive      bool
	IsExpired     bool
	DaysRemaining int
}

type PaymentBusiness interface {
	ListPlans(ctx context.Context) ([]*models.SubscriptionPlan, error)
	GetSubscription(ctx context.Context, businessID string) (*SubscriptionView, error)
	Initiate(ctx context.Context, request *InitiateRequest) (*InitiateResponse, error)
	History(ctx context.Context, businessID string) ([]*models.PaymentAttempt, error)
	IsEntitled(ctx context.Context, businessID string) (bool, error)
	HasActiveSubscription(ctx context.Context, ownerID string) (bool, error)
}

type paymentBusiness struct {
	log      *logrus.Entry
	gateway  coreapi.Gateway
	stores   Stores
	settings PaymentSettings
	now      func() time.Time
}

func NewPaymentBusiness(_ context.Context, log *logrus.Entry, gateway coreapi.Gateway, stores Stores, settings PaymentSettings) (PaymentBusiness, error) {
	if log == nil || gateway == nil || !stores.complete() {
		return nil, ErrorInitializationFail
	}

	return &paymentBusiness{
		log:      log.WithField("type", "PaymentBusiness"),
		gateway:  gateway,
		stores:   stores,
		settings: settings,
		now:      time.Now,
	}, nil
}

func (pb *paymentBusiness) ListPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	return pb.stores.Plans.List(ctx)
}

func (pb *paymentBusiness) GetSubscription(ctx context.Context, businessID string) (*SubscriptionView, error) {
	subscription, err := pb.stores.Subscriptions.GetByBusinessID(ctx, businessID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorSubscriptionNotFound
		}
		return nil, err
	}

	at := pb.now()
	view := &SubscriptionView{
		Subscription:  subscription,
		IsActive:      subscription.IsEntitledAt(at),
		DaysRemaining: subscription.DaysRemainingAt(at),
	}
	view.IsExpired = !view.IsActive

	plan, err := pb.stores.Plans.GetByID(ctx, subscription.PlanID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	view.Plan = plan

	return view, nil
}

// Initiate prompts the payer for the plan's price. The amount always comes from the plan catalog.
func (pb *paymentBusiness) Initiate(ctx context.Context, request *InitiateRequest) (*InitiateResponse, error) {
	if request == nil ||
		strings.TrimSpace(request.BusinessID) == "" ||
		strings.TrimSpace(request.PlanID) == "" ||
		strings.TrimSpace(request.PhoneNumber) == "" {
		return nil, ErrorInvalidPaymentRequest
	}
	if !coreapi.ValidatePhoneNumber(request.PhoneNumber) {
		return nil, ErrorInvalidPhoneNumber
	}

	business, err := pb.stores.Businesses.GetByID(ctx, request.BusinessID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorBusinessNotFound
		}
		return nil, err
	}

	plan, err := pb.stores.Plans.GetByID(ctx, request.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorPlanNotFound
		}
		return nil, err
	}

	phone := coreapi.NormalizePhoneNumber(request.PhoneNumber)
	logger := pb.log.
		WithField("business_id", business.GetID()).
		WithField("plan_id", plan.GetID())

	push, err := pb.gateway.InitiatePush(ctx, coreapi.PushRequest{
		Amount:           plan.Amount.Ceil().IntPart(),
		PhoneNumber:      phone,
		CallbackURL:      pb.settings.CallbackURL,
		AccountReference: pb.settings.AccountReference,
		Description:      fmt.Sprintf("%s subscription", plan.Name),
	})
	if err != nil {
		logger.WithError(err).Warn("stk push was not accepted")
		return nil, err
	}

	attempt := &models.PaymentAttempt{
		BusinessID:        business.GetID(),
		PlanID:            plan.GetID(),
		PhoneNumber:       phone,
		Amount:            plan.Amount,
		CheckoutRequestID: push.CheckoutRequestID,
		MerchantRequestID: push.MerchantRequestID,
		Status:            models.PaymentStatusPending,
	}
	if err = pb.stores.Payments.Create(ctx, attempt); err != nil {
		logger.WithError(err).
			WithField("checkout_request_id", push.CheckoutRequestID).
			Error("prompt was sent but the payment attempt could not be stored")
		return nil, err
	}

	logger.WithField("payment_id", attempt.GetID()).
		WithField("checkout_request_id", attempt.CheckoutRequestID).
		Info("stk push initiated")

	return &InitiateResponse{
		PaymentID:         attempt.GetID(),
		CheckoutRequestID: push.CheckoutRequestID,
		MerchantRequestID: push.MerchantRequestID,
		CustomerMessage:   push.CustomerMessage,
	}, nil
}

func (pb *paymentBusiness) History(ctx context.Context, businessID string) ([]*models.PaymentAttempt, error) {
	return pb.stores.Payments.ListByBusiness(ctx, businessID, historyLimit)
}

// IsEntitled is a pure read; a lapsed subscription is never written back as inactive.
func (pb *paymentBusiness) IsEntitled(ctx context.Context, businessID string) (bool, error) {
	subscription, err := pb.stores.Subscriptions.GetByBusinessID(ctx, businessID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return subscription.IsEntitledAt(pb.now()), nil
}

func (pb *paymentBusiness) HasActiveSubscription(ctx context.Context, ownerID string) (bool, error) {
	businesses, err := pb.stores.Businesses.ListByOwner(ctx, ownerID)
	if err != nil {
		return false, err
	}

	ids := make([]string, 0, len(businesses))
	for _, b := range businesses {
		ids = append(ids, b.GetID())
	}

	subscriptions, err := pb.stores.Subscriptions.ListByBusinessIDs(ctx, ids)
	if err != nil {
		return false, err
	}

	at := pb.now()
	for _, s := range subscriptions {
		if s.IsEntitledAt(at) {
			return true, nil
		}
	}
	return false, nil
}
