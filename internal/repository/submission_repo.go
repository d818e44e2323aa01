package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hirecraft/assess-go/internal/models"
)

// SubmissionRepository exposes persistence operations for final submissions.
type SubmissionRepository interface {
	// CreateIfAbsent stores the submission unless one already exists for the
	// (question, candidate) pair. It reports whether the row was created; when
	// it was not, submission is populated with the existing row.
	CreateIfAbsent(ctx context.Context, submission *models.Submission) (bool, error)
	Get(ctx context.Context, questionID uint, candidateID string) (models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	Update(ctx context.Context, submission *models.Submission) error
	ListByQuestion(ctx context.Context, questionID uint) ([]models.Submission, error)
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) CreateIfAbsent(ctx context.Context, submission *models.Submission) (bool, error) {
	// DoNothing plus the unique (question_id, candidate_id) index makes the
	// first write win even across concurrent intake requests.
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "question_id"}, {Name: "candidate_id"}},
		DoNothing: true,
	}).Create(submission)
	if result.Error != nil {
		return false, result.Error
	}

	if result.RowsAffected > 0 {
		return true, nil
	}

	existing, err := r.Get(ctx, submission.QuestionID, submission.CandidateID)
	if err != nil {
		return false, err
	}
	*submission = existing
	return false, nil
}

func (r *submissionRepository) Get(ctx context.Context, questionID uint, candidateID string) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Where("question_id = ? AND candidate_id = ?", questionID, candidateID).
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	if submission.ID == 0 {
		return errors.New("submission id must be set")
	}
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) ListByQuestion(ctx context.Context, questionID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order("created_at ASC").
		Find(&submissions).Error
	return submissions, err
}
