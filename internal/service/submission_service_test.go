package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/models"
	"github.com/hirecraft/assess-go/pkg/review"
)

type stubSubmissionRepo struct {
	mu          sync.Mutex
	submissions map[string]models.Submission
	nextID      uint
	err         error
	updates     []models.Submission
}

func newStubSubmissionRepo() *stubSubmissionRepo {
	return &stubSubmissionRepo{submissions: make(map[string]models.Submission), nextID: 1}
}

func submissionKey(questionID uint, candidateID string) string {
	return fmt.Sprintf("%d/%s", questionID, candidateID)
}

func (s *stubSubmissionRepo) CreateIfAbsent(ctx context.Context, submission *models.Submission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	key := submissionKey(submission.QuestionID, submission.CandidateID)
	if existing, ok := s.submissions[key]; ok {
		*submission = existing
		return false, nil
	}
	submission.ID = s.nextID
	s.nextID++
	submission.CreatedAt = time.Now().UTC()
	s.submissions[key] = *submission
	return true, nil
}

func (s *stubSubmissionRepo) Get(ctx context.Context, questionID uint, candidateID string) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	submission, ok := s.submissions[submissionKey(questionID, candidateID)]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (s *stubSubmissionRepo) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, submission := range s.submissions {
		if submission.ID == id {
			return submission, nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (s *stubSubmissionRepo) Update(ctx context.Context, submission *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, *submission)
	s.submissions[submissionKey(submission.QuestionID, submission.CandidateID)] = *submission
	return nil
}

func (s *stubSubmissionRepo) ListByQuestion(ctx context.Context, questionID uint) ([]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Submission
	for _, submission := range s.submissions {
		if submission.QuestionID == questionID {
			result = append(result, submission)
		}
	}
	return result, nil
}

func (s *stubSubmissionRepo) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

type stubReviewer struct {
	mu     sync.Mutex
	result review.Result
	err    error
	calls  int
	done   chan struct{}
}

func (s *stubReviewer) Review(ctx context.Context, input review.Input) (review.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.done != nil {
		defer close(s.done)
	}
	if s.err != nil {
		return review.Result{}, s.err
	}
	return s.result, nil
}

func newSubmissionService(repo *stubSubmissionRepo, questions *stubQuestionRepo, reviewer review.Reviewer) SubmissionService {
	return NewSubmissionService(SubmissionConfig{
		Submissions: repo,
		Questions:   questions,
		Reviewer:    reviewer,
		Logger:      zerolog.Nop(),
	})
}

func TestSubmissionServiceAcceptsFirstSubmission(t *testing.T) {
	repo := newStubSubmissionRepo()
	questions := &stubQuestionRepo{questions: []models.Question{twoSumQuestion()}}
	svc := newSubmissionService(repo, questions, nil)

	resp, err := svc.Submit(context.Background(), 1, "cand-1", dto.SubmitRequest{
		Code: "print(1)", Language: "python", ViolationCount: 2,
	})
	require.NoError(t, err)
	require.NotZero(t, resp.SubmissionID)

	stored, err := svc.Get(context.Background(), 1, "cand-1")
	require.NoError(t, err)
	require.Equal(t, 2, stored.ViolationCount)
	require.Equal(t, models.ReviewStatusNone, stored.ReviewStatus)
}

func TestSubmissionServiceDuplicateKeepsFirst(t *testing.T) {
	repo := newStubSubmissionRepo()
	questions := &stubQuestionRepo{questions: []models.Question{twoSumQuestion()}}
	svc := newSubmissionService(repo, questions, nil)

	first, err := svc.Submit(context.Background(), 1, "cand-1", dto.SubmitRequest{Code: "first", Language: "python"})
	require.NoError(t, err)

	second, err := svc.Submit(context.Background(), 1, "cand-1", dto.SubmitRequest{Code: "second", Language: "python", ViolationCount: 5})
	require.NoError(t, err)
	require.Equal(t, first.SubmissionID, second.SubmissionID)

	stored, err := svc.Get(context.Background(), 1, "cand-1")
	require.NoError(t, err)
	require.Equal(t, "first", stored.Code)
	require.Equal(t, 0, stored.ViolationCount)
}

func TestSubmissionServiceRejectsUnknownQuestion(t *testing.T) {
	svc := newSubmissionService(newStubSubmissionRepo(), &stubQuestionRepo{}, nil)

	_, err := svc.Submit(context.Background(), 9, "cand-1", dto.SubmitRequest{Code: "x", Language: "python"})
	require.True(t, errors.Is(err, ErrQuestionNotFound))
}

func TestSubmissionServiceValidatesPayload(t *testing.T) {
	svc := newSubmissionService(newStubSubmissionRepo(), &stubQuestionRepo{}, nil)

	_, err := svc.Submit(context.Background(), 1, "cand-1", dto.SubmitRequest{Code: "x", Language: ""})
	require.Error(t, err)

	_, err = svc.Submit(context.Background(), 1, "cand-1", dto.SubmitRequest{Code: "x", Language: "python", ViolationCount: -1})
	require.Error(t, err)
}

func TestSubmissionServiceAcceptsEmptyCode(t *testing.T) {
	repo := newStubSubmissionRepo()
	questions := &stubQuestionRepo{questions: []models.Question{twoSumQuestion()}}
	svc := newSubmissionService(repo, questions, nil)

	// Timer expiry submits whatever the candidate had, even nothing.
	resp, err := svc.Submit(context.Background(), 1, "cand-1", dto.SubmitRequest{Language: "python", ViolationCount: 2})
	require.NoError(t, err)
	require.NotZero(t, resp.SubmissionID)

	stored, err := svc.Get(context.Background(), 1, "cand-1")
	require.NoError(t, err)
	require.Empty(t, stored.Code)
	require.Equal(t, 2, stored.ViolationCount)
}

func TestSubmissionServiceStoresReviewAsynchronously(t *testing.T) {
	repo := newStubSubmissionRepo()
	questions := &stubQuestionRepo{questions: []models.Question{twoSumQuestion()}}
	reviewer := &stubReviewer{
		result: review.Result{Score: 0.8, Summary: "solid", Feedback: "clean solution"},
		done:   make(chan struct{}),
	}
	svc := newSubmissionService(repo, questions, reviewer)

	_, err := svc.Submit(context.Background(), 1, "cand-1", dto.SubmitRequest{Code: "print(1)", Language: "python"})
	require.NoError(t, err)

	select {
	case <-reviewer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("review never ran")
	}

	require.Eventually(t, func() bool {
		stored, err := svc.Get(context.Background(), 1, "cand-1")
		return err == nil && stored.ReviewStatus == models.ReviewStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := svc.Get(context.Background(), 1, "cand-1")
	require.NoError(t, err)
	require.True(t, stored.HasReview())
	require.Contains(t, stored.Review, "solid")
}

func TestSubmissionServiceMarksFailedReview(t *testing.T) {
	repo := newStubSubmissionRepo()
	questions := &stubQuestionRepo{questions: []models.Question{twoSumQuestion()}}
	reviewer := &stubReviewer{err: errors.New("model unavailable"), done: make(chan struct{})}
	svc := newSubmissionService(repo, questions, reviewer)

	_, err := svc.Submit(context.Background(), 1, "cand-1", dto.SubmitRequest{Code: "print(1)", Language: "python"})
	require.NoError(t, err)

	<-reviewer.done

	require.Eventually(t, func() bool {
		stored, err := svc.Get(context.Background(), 1, "cand-1")
		return err == nil && stored.ReviewStatus == models.ReviewStatusFailed
	}, 2*time.Second, 10*time.Millisecond)
}
