package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/devwanji/Muranga-marketplace2/service/models"
)

type PlanRepository interface {
	GetByID(ctx context.Context, id string) (*models.SubscriptionPlan, error)
	List(ctx context.Context) ([]*models.SubscriptionPlan, error)
	Save(ctx context.Context, plan *models.SubscriptionPlan) error
	// SeedDefaults inserts the monthly and yearly plans when the catalog is empty.
	SeedDefaults(ctx context.Context) (int, error)
}

type planRepository struct {
	abstractRepository
}

func NewPlanRepository(_ context.Context, db DBProvider) PlanRepository {
	return &planRepository{abstractRepository{db: db}}
}

func DefaultPlans() []*models.SubscriptionPlan {
	return []*models.SubscriptionPlan{
		{
			Name:        "Monthly",
			Type:        models.PlanTypeMonthly,
			Amount:      decimal.NewFromInt(200),
			Description: "Full marketplace listing for one month",
			Features:    "Business listing,Customer reviews,Contact details,Photo gallery",
		},
		{
			Name:        "Yearly",
			Type:        models.PlanTypeYearly,
			Amount:      decimal.NewFromInt(3000),
			Description: "Full marketplace listing for one year",
			Features:    "Business listing,Customer reviews,Contact details,Photo gallery,Featured placement",
		},
	}
}

func (repo *planRepository) GetByID(ctx context.Context, id string) (*models.SubscriptionPlan, error) {
	plan := models.SubscriptionPlan{}
	err := repo.readDb(ctx).First(&plan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (repo *planRepository) List(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	var plans []*models.SubscriptionPlan
	err := repo.readDb(ctx).Order("amount ASC").Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (repo *planRepository) Save(ctx context.Context, plan *models.SubscriptionPlan) error {
	return repo.writeDb(ctx).Save(plan).Error
}

func (repo *planRepository) SeedDefaults(ctx context.Context) (int, error) {
	var count int64
	err := repo.readDb(ctx).Model(&models.SubscriptionPlan{}).Count(&count).Error
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	plans := DefaultPlans()
	err = repo.writeDb(ctx).Create(&plans).Error
	if err != nil {
		return 0, err
	}
	return len(plans), nil
}
