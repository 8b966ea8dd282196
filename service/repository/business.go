package repository

import (
	"context"

	"github.com/devwanji/Muranga-marketplace2/service/models"
)

type BusinessRepository interface {
	GetByID(ctx context.Context, id string) (*models.Business, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Business, error)
	Save(ctx context.Context, business *models.Business) error
}

type businessRepository struct {
	abstractRepository
}

func NewBusinessRepository(_ context.Context, db DBProvider) BusinessRepository {
	return &businessRepository{abstractRepository{db: db}}
}

func (repo *businessRepository) GetByID(ctx context.Context, id string) (*models.Business, error) {
	business := models.Business{}
	err := repo.readDb(ctx).First(&business, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &business, nil
}

func (repo *businessRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Business, error) {
	var businesses []*models.Business
	err := repo.readDb(ctx).Find(&businesses, "owner_id = ?", ownerID).Error
	if err != nil {
		return nil, err
	}
	return businesses, nil
}

func (repo *businessRepository) Save(ctx context.Context, business *models.Business) error {
	return repo.writeDb(ctx).Save(business).Error
}
