package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/loopmarket/push-relay/internal/domain"
)

type DeviceTokenRepository interface {
	GetActiveByUser(ctx context.Context, userID string) ([]domain.DeviceToken, error)
	// Deactivate marks a token inactive after the transport reports it
	// unregistered. Missing tokens are not an error.
	Deactivate(ctx context.Context, token string) error
}

type GormDeviceTokenRepo struct {
	db *gorm.DB
}

func NewGormDeviceTokenRepo(db *gorm.DB) *GormDeviceTokenRepo {
	return &GormDeviceTokenRepo{db: db}
}

func (r *GormDeviceTokenRepo) GetActiveByUser(ctx context.Context, userID string) ([]domain.DeviceToken, error) {
	var models []DeviceTokenModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND active = true", userID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	tokens := make([]domain.DeviceToken, 0, len(models))
	for i := range models {
		tokens = append(tokens, *deviceTokenModelToDomain(&models[i]))
	}

	return tokens, nil
}

func (r *GormDeviceTokenRepo) Deactivate(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Model(&DeviceTokenModel{}).
		Where("token = ?", token).
		Update("active", false).Error
}
