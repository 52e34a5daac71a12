package users

import (
	"context"
	"errors"
	"time"

	"github.com/briefwire/briefwire-backend/pkg/db/models"
	"github.com/briefwire/briefwire-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a user by their UUID. Not-found is returned as (nil, nil).
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// UpdateTier sets the user's entitlement tier.
func (r *Repository) UpdateTier(ctx context.Context, id uuid.UUID, tier enums.Tier) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"tier":       tier,
			"updated_at": time.Now().UTC(),
		}).Error
}
