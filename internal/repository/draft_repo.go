package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hirecraft/assess-go/internal/models"
)

// DraftRepository exposes persistence operations for autosaved drafts.
type DraftRepository interface {
	Upsert(ctx context.Context, draft *models.CodeDraft) error
	Get(ctx context.Context, questionID uint, candidateID string) (models.CodeDraft, error)
}

// NewDraftRepository constructs a draft repository.
func NewDraftRepository(db *gorm.DB) DraftRepository {
	return &draftRepository{db: db}
}

type draftRepository struct {
	db *gorm.DB
}

// Upsert overwrites the single draft row for the (question, candidate) pair.
// Later autosaves always win; there is no draft history.
func (r *draftRepository) Upsert(ctx context.Context, draft *models.CodeDraft) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "question_id"}, {Name: "candidate_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"language", "code", "updated_at"}),
	}).Create(draft).Error
}

func (r *draftRepository) Get(ctx context.Context, questionID uint, candidateID string) (models.CodeDraft, error) {
	var draft models.CodeDraft
	err := r.db.WithContext(ctx).
		Where("question_id = ? AND candidate_id = ?", questionID, candidateID).
		First(&draft).Error
	if err != nil {
		return models.CodeDraft{}, err
	}
	return draft, nil
}
