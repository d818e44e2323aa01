package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hirecraft/assess-go/internal/models"
)

// QuestionQuery defines filters and pagination for the question catalog.
type QuestionQuery struct {
	Difficulty string
	Language   string
	Search     string
	Offset     int
	Limit      int
}

// QuestionRepository exposes persistence operations for assessment questions.
type QuestionRepository interface {
	List(ctx context.Context, query QuestionQuery) ([]models.Question, int64, error)
	GetByID(ctx context.Context, id uint) (models.Question, error)
	UpsertBatch(ctx context.Context, items []models.Question) (int64, error)
}

// NewQuestionRepository constructs a question repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

type questionRepository struct {
	db *gorm.DB
}

func (r *questionRepository) List(ctx context.Context, query QuestionQuery) ([]models.Question, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Question{})

	if query.Difficulty != "" {
		db = db.Where("LOWER(difficulty) = ?", strings.ToLower(query.Difficulty))
	}

	if query.Language != "" {
		like := "%" + strings.ToLower(strings.TrimSpace(query.Language)) + "%"
		db = db.Where("LOWER(languages) LIKE ?", like)
	}

	if query.Search != "" {
		pattern := "%" + strings.ToLower(query.Search) + "%"
		db = db.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}

	db = db.Order("id ASC")

	var questions []models.Question
	if err := db.Find(&questions).Error; err != nil {
		return nil, 0, err
	}

	return questions, total, nil
}

func (r *questionRepository) GetByID(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}
	return question, nil
}

func (r *questionRepository) UpsertBatch(ctx context.Context, items []models.Question) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "difficulty", "time_limit_minutes", "languages", "test_cases", "starter_code", "updated_at"}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, result.Error
}
