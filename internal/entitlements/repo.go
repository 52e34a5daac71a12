package entitlements

import (
	"context"
	"errors"

	"github.com/briefwire/briefwire-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store handles subscription persistence. Not-found lookups return (nil, nil)
// so callers branch on presence, not on sentinel errors.
type Store interface {
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	FindByLineageID(ctx context.Context, lineageID string) (*models.Subscription, error)
	Create(ctx context.Context, record *models.Subscription) error
	Update(ctx context.Context, record *models.Subscription) error
}

type store struct {
	db *gorm.DB
}

// NewStore returns a subscription store bound to the provided database.
func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var record models.Subscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *store) FindByLineageID(ctx context.Context, lineageID string) (*models.Subscription, error) {
	if lineageID == "" {
		return nil, nil
	}
	var record models.Subscription
	if err := s.db.WithContext(ctx).
		Where("lineage_id = ?", lineageID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *store) Create(ctx context.Context, record *models.Subscription) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *store) Update(ctx context.Context, record *models.Subscription) error {
	return s.db.WithContext(ctx).Save(record).Error
}
