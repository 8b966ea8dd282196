package repository

import (
	"context"
	"time"

	"github.com/pitabwire/frame"
	"gorm.io/datatypes"

	"github.com/devwanji/Muranga-marketplace2/service/models"
)

// PaymentTransition carries the provider outcome written when an attempt leaves pending.
type PaymentTransition struct {
	Status             string
	ResultCode         int
	ResultDesc         string
	MerchantRequestID  string
	MpesaReceiptNumber string
	TransactionDate    *time.Time
	Extra              map[string]any
}

type PaymentRepository interface {
	GetByID(ctx context.Context, id string) (*models.PaymentAttempt, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentAttempt, error)
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]*models.PaymentAttempt, error)
	// ListStalePending returns pending attempts created before the cutoff, never checked ones first,
	// then the ones checked longest ago.
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.PaymentAttempt, error)
	MarkChecked(ctx context.Context, id string, at time.Time) error
	Create(ctx context.Context, attempt *models.PaymentAttempt) error
	// MarkTerminal reports false when the attempt was no longer pending, nothing is written then.
	MarkTerminal(ctx context.Context, id string, transition PaymentTransition) (bool, error)
	LinkSubscription(ctx context.Context, id string, subscriptionID string) error
}

type paymentRepository struct {
	abstractRepository
}

func NewPaymentRepository(_ context.Context, db DBProvider) PaymentRepository {
	return &paymentRepository{abstractRepository{db: db}}
}

func (repo *paymentRepository) GetByID(ctx context.Context, id string) (*models.PaymentAttempt, error) {
	attempt := models.PaymentAttempt{}
	err := repo.readDb(ctx).First(&attempt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (repo *paymentRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentAttempt, error) {
	attempt := models.PaymentAttempt{}
	err := repo.readDb(ctx).First(&attempt, "checkout_request_id = ?", checkoutRequestID).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (repo *paymentRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]*models.PaymentAttempt, error) {
	var attempts []*models.PaymentAttempt
	err := repo.readDb(ctx).
		Where("business_id = ?", businessID).
		Order("created_at DESC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (repo *paymentRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.PaymentAttempt, error) {
	var attempts []*models.PaymentAttempt
	err := repo.readDb(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, createdBefore).
		Order("last_checked_at IS NOT NULL").
		Order("last_checked_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (repo *paymentRepository) Create(ctx context.Context, attempt *models.PaymentAttempt) error {
	if attempt.Status == "" {
		attempt.Status = models.PaymentStatusPending
	}
	return repo.writeDb(ctx).Create(attempt).Error
}

func (repo *paymentRepository) MarkTerminal(ctx context.Context, id string, transition PaymentTransition) (bool, error) {
	updates := map[string]any{
		"status":      transition.Status,
		"result_code": transition.ResultCode,
		"result_desc": transition.ResultDesc,
		"updated_at":  time.Now().UTC(),
	}
	if transition.MerchantRequestID != "" {
		updates["merchant_request_id"] = transition.MerchantRequestID
	}
	if transition.MpesaReceiptNumber != "" {
		updates["mpesa_receipt_number"] = transition.MpesaReceiptNumber
	}
	if transition.TransactionDate != nil {
		updates["transaction_date"] = *transition.TransactionDate
	}
	if len(transition.Extra) > 0 {
		updates["extra"] = datatypes.JSONMap(transition.Extra)
	}

	result := repo.writeDb(ctx).
		Model(&models.PaymentAttempt{BaseModel: frame.BaseModel{ID: id}}).
		Where("status = ?", models.PaymentStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (repo *paymentRepository) LinkSubscription(ctx context.Context, id string, subscriptionID string) error {
	return repo.writeDb(ctx).
		Model(&models.PaymentAttempt{BaseModel: frame.BaseModel{ID: id}}).
		Updates(map[string]any{"subscription_id": subscriptionID, "updated_at": time.Now().UTC()}).Error
}

func (repo *paymentRepository) MarkChecked(ctx context.Context, id string, at time.Time) error {
	return repo.writeDb(ctx).
		Model(&models.PaymentAttempt{BaseModel: frame.BaseModel{ID: id}}).
		UpdateColumn("last_checked_at", at).Error
}
