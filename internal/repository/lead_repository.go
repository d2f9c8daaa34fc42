package repository

import (
	"context"

	"gorm.io/gorm"

	"storefront/internal/model"
)

// LeadRepository defines lead persistence operations. Leads are append-only.
type LeadRepository interface {
	Create(ctx context.Context, lead *model.Lead) error
	ListNewestFirst(ctx context.Context) ([]model.Lead, error)
}

type leadRepository struct {
	db *gorm.DB
}

// NewLeadRepository creates a new lead repository.
func NewLeadRepository(db *gorm.DB) LeadRepository {
	return &leadRepository{db: db}
}

func (r *leadRepository) Create(ctx context.Context, lead *model.Lead) error {
	return r.db.WithContext(ctx).Create(lead).Error
}

func (r *leadRepository) ListNewestFirst(ctx context.Context) ([]model.Lead, error) {
	leads := []model.Lead{}
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&leads).Error; err != nil {
		return nil, err
	}
	return leads, nil
}
