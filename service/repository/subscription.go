package repository

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/devwanji/Muranga-marketplace2/service/models"
)

type SubscriptionRepository interface {
	GetByBusinessID(ctx context.Context, businessID string) (*models.Subscription, error)
	ListByBusinessIDs(ctx context.Context, businessIDs []string) ([]*models.Subscription, error)
	// Upsert replaces the period, plan and active flag of the business's subscription row, creating it
	// when absent. AutoRenew belongs to the business and survives renewals.
	Upsert(ctx context.Context, subscription *models.Subscription) (*models.Subscription, error)
}

type subscriptionRepository struct {
	abstractRepository
}

func NewSubscriptionRepository(_ context.Context, db DBProvider) SubscriptionRepository {
	return &subscriptionRepository{abstractRepository{db: db}}
}

func (repo *subscriptionRepository) GetByBusinessID(ctx context.Context, businessID string) (*models.Subscription, error) {
	subscription := models.Subscription{}
	err := repo.readDb(ctx).First(&subscription, "business_id = ?", businessID).Error
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (repo *subscriptionRepository) ListByBusinessIDs(ctx context.Context, businessIDs []string) ([]*models.Subscription, error) {
	var subscriptions []*models.Subscription
	if len(businessIDs) == 0 {
		return subscriptions, nil
	}

	err := repo.readDb(ctx).Where("business_id IN ?", businessIDs).Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (repo *subscriptionRepository) Upsert(ctx context.Context, subscription *models.Subscription) (*models.Subscription, error) {
	err := repo.writeDb(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan_id", "start_date", "end_date", "is_active"}),
	}).Create(subscription).Error
	if err != nil {
		return nil, err
	}

	// On conflict the generated id is discarded, the stored row keeps its own.
	return repo.GetByBusinessID(ctx, subscription.BusinessID)
}
