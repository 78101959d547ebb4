package repository

import (
	"context"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
	"gorm.io/gorm"
)

type DeadLetterRepository interface {
	Create(ctx context.Context, d *domain.DeadLetter) error
}

type GormDeadLetterRepo struct {
	db *gorm.DB
}

func NewGormDeadLetterRepo(db *gorm.DB) *GormDeadLetterRepo {
	return &GormDeadLetterRepo{db: db}
}

func (r *GormDeadLetterRepo) Create(ctx context.Context, d *domain.DeadLetter) error {
	model := deadLetterModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *deadLetterModelToDomain(model)
	}
	return nil
}

// ListRecent returns the newest dead letters first.
func (r *GormDeadLetterRepo) ListRecent(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}

	var models []DeadLetterModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	letters := make([]domain.DeadLetter, 0, len(models))
	for i := range models {
		letters = append(letters, *deadLetterModelToDomain(&models[i]))
	}
	return letters, nil
}
