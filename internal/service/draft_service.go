package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/models"
	"github.com/hirecraft/assess-go/internal/repository"
)

// ErrUnsupportedLanguage indicates the question does not offer the language.
var ErrUnsupportedLanguage = errors.New("language not supported for this question")

// ErrDraftNotFound indicates no draft exists for the session yet.
var ErrDraftNotFound = errors.New("draft not found")

// DraftService persists autosaved code snapshots.
type DraftService interface {
	Save(ctx context.Context, questionID uint, candidateID string, req dto.AutosaveRequest) (dto.AutosaveResponse, error)
	Get(ctx context.Context, questionID uint, candidateID string) (dto.DraftResponse, error)
}

type draftService struct {
	drafts    repository.DraftRepository
	questions repository.QuestionRepository
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewDraftService builds a draft service.
func NewDraftService(drafts repository.DraftRepository, questions repository.QuestionRepository, logger zerolog.Logger) DraftService {
	return &draftService{
		drafts:    drafts,
		questions: questions,
		validate:  validator.New(),
		logger:    logger.With().Str("component", "draft_service").Logger(),
	}
}

// Save upserts the draft for the (question, candidate) pair. A later autosave
// always replaces the previous snapshot.
func (s *draftService) Save(ctx context.Context, questionID uint, candidateID string, req dto.AutosaveRequest) (dto.AutosaveResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.AutosaveResponse{}, err
	}

	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AutosaveResponse{}, ErrQuestionNotFound
		}
		return dto.AutosaveResponse{}, err
	}
	if !question.SupportsLanguage(req.Language) {
		return dto.AutosaveResponse{}, ErrUnsupportedLanguage
	}

	draft := models.CodeDraft{
		QuestionID:  questionID,
		CandidateID: candidateID,
		Language:    req.Language,
		Code:        req.Code,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.drafts.Upsert(ctx, &draft); err != nil {
		return dto.AutosaveResponse{}, err
	}

	s.logger.Debug().
		Uint("question_id", questionID).
		Str("candidate_id", candidateID).
		Int("code_len", len(req.Code)).
		Msg("draft saved")

	return dto.AutosaveResponse{SavedAt: draft.UpdatedAt}, nil
}

func (s *draftService) Get(ctx context.Context, questionID uint, candidateID string) (dto.DraftResponse, error) {
	draft, err := s.drafts.Get(ctx, questionID, candidateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DraftResponse{}, ErrDraftNotFound
		}
		return dto.DraftResponse{}, err
	}

	return dto.DraftResponse{
		QuestionID:  draft.QuestionID,
		CandidateID: draft.CandidateID,
		Language:    draft.Language,
		Code:        draft.Code,
		UpdatedAt:   draft.UpdatedAt,
	}, nil
}
