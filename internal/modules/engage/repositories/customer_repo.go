package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
)

type CustomerRepo interface {
	FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*models.Customer, error)
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error)
	// Create returns ErrDuplicate when (tenant, phone) already exists.
	Create(ctx context.Context, c *models.Customer) error
	UpdateDisplayName(ctx context.Context, tenantID, id uuid.UUID, name string) error
}

type customerRepo struct {
	db *gorm.DB
}

func NewCustomerRepo(db *gorm.DB) CustomerRepo {
	return &customerRepo{db: db}
}

func (r *customerRepo) FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*models.Customer, error) {
	var c models.Customer
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND phone = ?", tenantID, phone).
		First(&c).Error
	if err != nil {
		return nil, translate("customers.FindByPhone", err)
	}
	return &c, nil
}

func (r *customerRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&c).Error
	if err != nil {
		return nil, translate("customers.FindByID", err)
	}
	return &c, nil
}

func (r *customerRepo) Create(ctx context.Context, c *models.Customer) error {
	return translate("customers.Create", r.db.WithContext(ctx).Create(c).Error)
}

func (r *customerRepo) UpdateDisplayName(ctx context.Context, tenantID, id uuid.UUID, name string) error {
	err := r.db.WithContext(ctx).Model(&models.Customer{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("display_name", name).Error
	return translate("customers.UpdateDisplayName", err)
}
