package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/models"
	"github.com/hirecraft/assess-go/internal/observability"
	"github.com/hirecraft/assess-go/internal/repository"
	"github.com/hirecraft/assess-go/pkg/review"
)

// SubjectSubmissionAccepted is the NATS subject new submissions are announced
// on for downstream consumers (scoring pipelines, notification fan-out).
const SubjectSubmissionAccepted = "assess.submission.accepted"

// reviewTimeout bounds the background AI review call.
const reviewTimeout = 90 * time.Second

// SubmissionService accepts final answers and tracks their review state.
type SubmissionService interface {
	Submit(ctx context.Context, questionID uint, candidateID string, req dto.SubmitRequest) (dto.SubmitResponse, error)
	Get(ctx context.Context, questionID uint, candidateID string) (models.Submission, error)
	ListByQuestion(ctx context.Context, questionID uint) ([]models.Submission, error)
}

// SubmissionConfig carries the collaborators of the submission service.
// NATS and Reviewer are optional; when nil the corresponding step is skipped.
type SubmissionConfig struct {
	Submissions repository.SubmissionRepository
	Questions   repository.QuestionRepository
	NATS        *nats.Conn
	Reviewer    review.Reviewer
	Logger      zerolog.Logger
}

type submissionService struct {
	submissions repository.SubmissionRepository
	questions   repository.QuestionRepository
	nats        *nats.Conn
	reviewer    review.Reviewer
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewSubmissionService builds a submission service.
func NewSubmissionService(cfg SubmissionConfig) SubmissionService {
	return &submissionService{
		submissions: cfg.Submissions,
		questions:   cfg.Questions,
		nats:        cfg.NATS,
		reviewer:    cfg.Reviewer,
		validate:    validator.New(),
		logger:      cfg.Logger.With().Str("component", "submission_service").Logger(),
	}
}

// submissionAnnouncement is the payload published on submission intake.
type submissionAnnouncement struct {
	SubmissionID   uint      `json:"submissionId"`
	QuestionID     uint      `json:"questionId"`
	CandidateID    string    `json:"candidateId"`
	Language       string    `json:"language"`
	ViolationCount int       `json:"violationCount"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// Submit stores the first submission for the (question, candidate) pair.
// Repeated calls acknowledge the stored submission without overwriting it, so
// a client that retries after a lost response cannot replace its answer.
func (s *submissionService) Submit(ctx context.Context, questionID uint, candidateID string, req dto.SubmitRequest) (dto.SubmitResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.SubmitResponse{}, err
	}

	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmitResponse{}, ErrQuestionNotFound
		}
		return dto.SubmitResponse{}, err
	}
	if !question.SupportsLanguage(req.Language) {
		return dto.SubmitResponse{}, ErrUnsupportedLanguage
	}

	submission := models.Submission{
		QuestionID:     questionID,
		CandidateID:    candidateID,
		Language:       req.Language,
		Code:           req.Code,
		ViolationCount: req.ViolationCount,
		ReviewStatus:   models.ReviewStatusNone,
	}
	created, err := s.submissions.CreateIfAbsent(ctx, &submission)
	if err != nil {
		return dto.SubmitResponse{}, err
	}
	if !created {
		s.logger.Info().
			Uint("question_id", questionID).
			Str("candidate_id", candidateID).
			Uint("submission_id", submission.ID).
			Msg("duplicate submission acknowledged")
		return dto.SubmitResponse{SubmissionID: submission.ID, ReceivedAt: submission.CreatedAt}, nil
	}

	observability.Submissions().WithLabelValues(submission.Language).Inc()
	s.announce(submission)

	if s.reviewer != nil {
		go s.reviewSubmission(submission, question)
	}

	s.logger.Info().
		Uint("question_id", questionID).
		Str("candidate_id", candidateID).
		Uint("submission_id", submission.ID).
		Int("violations", req.ViolationCount).
		Msg("submission accepted")

	return dto.SubmitResponse{SubmissionID: submission.ID, ReceivedAt: submission.CreatedAt}, nil
}

func (s *submissionService) Get(ctx context.Context, questionID uint, candidateID string) (models.Submission, error) {
	return s.submissions.Get(ctx, questionID, candidateID)
}

func (s *submissionService) ListByQuestion(ctx context.Context, questionID uint) ([]models.Submission, error) {
	return s.submissions.ListByQuestion(ctx, questionID)
}

func (s *submissionService) announce(submission models.Submission) {
	if s.nats == nil {
		return
	}

	payload, err := json.Marshal(submissionAnnouncement{
		SubmissionID:   submission.ID,
		QuestionID:     submission.QuestionID,
		CandidateID:    submission.CandidateID,
		Language:       submission.Language,
		ViolationCount: submission.ViolationCount,
		ReceivedAt:     submission.CreatedAt,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode submission announcement")
		return
	}

	if err := s.nats.Publish(SubjectSubmissionAccepted, payload); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to announce submission")
	}
}

// reviewSubmission runs the AI review off the request path. Failures mark the
// submission so staff can see the review never materialised.
func (s *submissionService) reviewSubmission(submission models.Submission, question models.Question) {
	ctx, cancel := context.WithTimeout(context.Background(), reviewTimeout)
	defer cancel()

	submission.ReviewStatus = models.ReviewStatusPending
	if err := s.submissions.Update(ctx, &submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to mark review pending")
		return
	}

	result, err := s.reviewer.Review(ctx, review.Input{
		QuestionTitle:  question.Title,
		Description:    question.Description,
		Language:       submission.Language,
		Code:           submission.Code,
		ViolationCount: submission.ViolationCount,
	})
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("review failed")
		submission.ReviewStatus = models.ReviewStatusFailed
		if updateErr := s.submissions.Update(ctx, &submission); updateErr != nil {
			s.logger.Error().Err(updateErr).Uint("submission_id", submission.ID).Msg("failed to mark review failed")
		}
		return
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to encode review")
		return
	}

	submission.ReviewStatus = models.ReviewStatusCompleted
	submission.Review = string(encoded)
	if err := s.submissions.Update(ctx, &submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to store review")
		return
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Float64("score", result.Score).
		Msg("review completed")
}
