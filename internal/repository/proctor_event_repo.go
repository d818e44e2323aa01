package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/hirecraft/assess-go/internal/models"
)

// ProctorEventRepository exposes persistence for the append-only violation log.
type ProctorEventRepository interface {
	Append(ctx context.Context, event *models.ProctorEvent) error
	ListBySession(ctx context.Context, questionID uint, candidateID string) ([]models.ProctorEvent, error)
	CountBySession(ctx context.Context, questionID uint, candidateID string) (int64, error)
}

// NewProctorEventRepository constructs a proctor event repository.
func NewProctorEventRepository(db *gorm.DB) ProctorEventRepository {
	return &proctorEventRepository{db: db}
}

type proctorEventRepository struct {
	db *gorm.DB
}

func (r *proctorEventRepository) Append(ctx context.Context, event *models.ProctorEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *proctorEventRepository) ListBySession(ctx context.Context, questionID uint, candidateID string) ([]models.ProctorEvent, error) {
	var events []models.ProctorEvent
	err := r.db.WithContext(ctx).
		Where("question_id = ? AND candidate_id = ?", questionID, candidateID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

func (r *proctorEventRepository) CountBySession(ctx context.Context, questionID uint, candidateID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProctorEvent{}).
		Where("question_id = ? AND candidate_id = ?", questionID, candidateID).
		Count(&count).Error
	return count, err
}
