package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/models"
	"github.com/hirecraft/assess-go/internal/repository"
)

// ErrQuestionNotFound indicates the requested question does not exist.
var ErrQuestionNotFound = errors.New("question not found")

// questionCatalogSchema validates seed files before anything reaches the
// database. Malformed catalog entries fail the whole seed rather than
// producing half-loaded questions.
const questionCatalogSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "title", "description", "difficulty", "timeLimitMinutes", "languages", "testCases"],
    "properties": {
      "id": {"type": "integer", "minimum": 1},
      "title": {"type": "string", "minLength": 1},
      "description": {"type": "string", "minLength": 1},
      "difficulty": {"enum": ["Easy", "Medium", "Hard"]},
      "timeLimitMinutes": {"type": "integer", "minimum": 1, "maximum": 480},
      "languages": {"type": "array", "items": {"type": "string"}, "minItems": 1},
      "testCases": {
        "type": "array",
        "minItems": 1,
        "items": {
          "type": "object",
          "required": ["input", "expectedOutput"],
          "properties": {
            "input": {"type": "string"},
            "expectedOutput": {"type": "string"},
            "isHidden": {"type": "boolean"},
            "weight": {"type": "integer", "minimum": 0}
          }
        }
      },
      "starterCode": {
        "type": "object",
        "additionalProperties": {"type": "string"}
      }
    }
  }
}`

// QuestionService exposes catalog use cases.
type QuestionService interface {
	List(ctx context.Context, filter dto.QuestionFilter) (dto.QuestionListResponse, error)
	Get(ctx context.Context, id uint) (dto.QuestionResponse, error)
	SeedFromFile(ctx context.Context, path string) (int64, error)
}

type questionService struct {
	repo      repository.QuestionRepository
	sanitizer *bluemonday.Policy
	schema    *jsonschema.Schema
	logger    zerolog.Logger
}

// NewQuestionService builds a question service.
func NewQuestionService(repo repository.QuestionRepository, logger zerolog.Logger) (QuestionService, error) {
	schema, err := jsonschema.CompileString("question-catalog.json", questionCatalogSchema)
	if err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}

	return &questionService{
		repo:      repo,
		sanitizer: bluemonday.UGCPolicy(),
		schema:    schema,
		logger:    logger.With().Str("component", "question_service").Logger(),
	}, nil
}

func (s *questionService) List(ctx context.Context, filter dto.QuestionFilter) (dto.QuestionListResponse, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	questions, total, err := s.repo.List(ctx, repository.QuestionQuery{
		Difficulty: strings.TrimSpace(filter.Difficulty),
		Language:   strings.TrimSpace(filter.Language),
		Search:     strings.TrimSpace(filter.Search),
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	})
	if err != nil {
		return dto.QuestionListResponse{}, err
	}

	items := make([]dto.QuestionSummary, 0, len(questions))
	for _, q := range questions {
		items = append(items, dto.NewQuestionSummary(q))
	}

	return dto.QuestionListResponse{
		Items: items,
		Pagination: dto.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: int(total),
		},
	}, nil
}

func (s *questionService) Get(ctx context.Context, id uint) (dto.QuestionResponse, error) {
	question, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuestionResponse{}, ErrQuestionNotFound
		}
		return dto.QuestionResponse{}, err
	}

	question.Description = s.sanitizer.Sanitize(question.Description)
	return dto.NewQuestionResponse(question), nil
}

// seedEntry mirrors one catalog file entry.
type seedEntry struct {
	ID               uint              `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Difficulty       string            `json:"difficulty"`
	TimeLimitMinutes int               `json:"timeLimitMinutes"`
	Languages        []string          `json:"languages"`
	TestCases        []models.TestCase `json:"testCases"`
	StarterCode      map[string]string `json:"starterCode"`
}

// SeedFromFile validates the catalog file against the schema and upserts its
// questions. Existing questions with matching ids are updated in place.
func (s *questionService) SeedFromFile(ctx context.Context, path string) (int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog: %w", err)
	}

	var document interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&document); err != nil {
		return 0, fmt.Errorf("parse catalog: %w", err)
	}

	if err := s.schema.Validate(document); err != nil {
		return 0, fmt.Errorf("catalog failed schema validation: %w", err)
	}

	var entries []seedEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("decode catalog: %w", err)
	}

	questions := make([]models.Question, 0, len(entries))
	for _, entry := range entries {
		starter := make(map[string]string, len(entry.StarterCode))
		for lang, code := range entry.StarterCode {
			starter[strings.ToLower(lang)] = code
		}

		questions = append(questions, models.Question{
			ID:               entry.ID,
			Title:            strings.TrimSpace(entry.Title),
			Description:      s.sanitizer.Sanitize(entry.Description),
			Difficulty:       entry.Difficulty,
			TimeLimitMinutes: entry.TimeLimitMinutes,
			Languages:        datatypes.NewJSONSlice(normaliseLanguages(entry.Languages)),
			TestCases:        datatypes.NewJSONSlice(entry.TestCases),
			StarterCode:      datatypes.NewJSONType(starter),
		})
	}

	affected, err := s.repo.UpsertBatch(ctx, questions)
	if err != nil {
		return 0, err
	}

	s.logger.Info().Int64("affected", affected).Str("path", path).Msg("question catalog seeded")
	return affected, nil
}

func normaliseLanguages(languages []string) []string {
	seen := make(map[string]struct{}, len(languages))
	result := make([]string, 0, len(languages))
	for _, lang := range languages {
		trimmed := strings.ToLower(strings.TrimSpace(lang))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
