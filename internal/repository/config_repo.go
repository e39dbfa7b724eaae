package repository

import (
	"context"
	"errors"

	"github.com/institutovalente/registry-bridge/internal/domain"
	"gorm.io/gorm"
)

// ConfigRepository is the persistence port for partner integration configs.
// At most one row is active at a time; configs are deactivated, never
// hard-deleted, because attempt history references them.
type ConfigRepository interface {
	GetActive(ctx context.Context) (*domain.IntegrationConfig, error)
	GetByID(ctx context.Context, id string) (*domain.IntegrationConfig, error)
	Save(ctx context.Context, cfg *domain.IntegrationConfig) error
	Deactivate(ctx context.Context, id string) error
}

type GormConfigRepo struct {
	db *gorm.DB
}

var _ ConfigRepository = (*GormConfigRepo)(nil)

func NewGormConfigRepo(db *gorm.DB) *GormConfigRepo {
	return &GormConfigRepo{db: db}
}

func (r *GormConfigRepo) GetActive(ctx context.Context) (*domain.IntegrationConfig, error) {
	var model ConfigModel
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("updated_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return configModelToDomain(&model), nil
}

func (r *GormConfigRepo) GetByID(ctx context.Context, id string) (*domain.IntegrationConfig, error) {
	var model ConfigModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return configModelToDomain(&model), nil
}

// Save persists a config as the single active one, deactivating any previous
// active row in the same transaction.
func (r *GormConfigRepo) Save(ctx context.Context, cfg *domain.IntegrationConfig) error {
	model := configModelFromDomain(cfg)
	if model == nil {
		return domain.ErrValidation
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if model.IsActive {
			if err := tx.Model(&ConfigModel{}).
				Where("is_active = ? AND id <> ?", true, model.ID).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(model).Error
	})
	if err != nil {
		return err
	}

	if cfg != nil {
		*cfg = *configModelToDomain(model)
	}
	return nil
}

func (r *GormConfigRepo) Deactivate(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ConfigModel{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
