package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/models"
)

type stubProctorEventRepo struct {
	mu     sync.Mutex
	events []models.ProctorEvent
	err    error
}

func (s *stubProctorEventRepo) Append(ctx context.Context, event *models.ProctorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	event.ID = uint(len(s.events) + 1)
	s.events = append(s.events, *event)
	return nil
}

func (s *stubProctorEventRepo) ListBySession(ctx context.Context, questionID uint, candidateID string) ([]models.ProctorEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.ProctorEvent
	for _, event := range s.events {
		if event.QuestionID == questionID && event.CandidateID == candidateID {
			result = append(result, event)
		}
	}
	return result, nil
}

func (s *stubProctorEventRepo) CountBySession(ctx context.Context, questionID uint, candidateID string) (int64, error) {
	events, _ := s.ListBySession(ctx, questionID, candidateID)
	return int64(len(events)), nil
}

func newProctorService(t *testing.T, repo *stubProctorEventRepo) ProctorService {
	t.Helper()
	svc, err := NewProctorService(ProctorConfig{Events: repo, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestProctorServiceRecordsEveryEvent(t *testing.T) {
	repo := &stubProctorEventRepo{}
	svc := newProctorService(t, repo)

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := svc.Record(context.Background(), 1, "cand-1", dto.ProctorEventMessage{
			Kind:       models.ViolationTabSwitch,
			OccurredAt: at.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	events, err := svc.List(context.Background(), 1, "cand-1")
	require.NoError(t, err)
	require.Len(t, events, 3)

	count, err := svc.Count(context.Background(), 1, "cand-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestProctorServiceRejectsUnknownKind(t *testing.T) {
	svc := newProctorService(t, &stubProctorEventRepo{})

	err := svc.Record(context.Background(), 1, "cand-1", dto.ProctorEventMessage{Kind: "mind_reading"})
	require.True(t, errors.Is(err, ErrUnknownViolationKind))
}

func TestProctorServiceDefaultsOccurredAt(t *testing.T) {
	repo := &stubProctorEventRepo{}
	svc := newProctorService(t, repo)

	err := svc.Record(context.Background(), 1, "cand-1", dto.ProctorEventMessage{Kind: models.ViolationWindowBlur})
	require.NoError(t, err)

	events, err := svc.List(context.Background(), 1, "cand-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.WithinDuration(t, time.Now().UTC(), events[0].OccurredAt, time.Minute)
}

func TestProctorServiceFansOutToSubscribers(t *testing.T) {
	svc := newProctorService(t, &stubProctorEventRepo{})

	ch := make(chan ProctorBroadcast, 1)
	unsubscribe := svc.Subscribe(ch)
	defer unsubscribe()

	err := svc.Record(context.Background(), 7, "cand-2", dto.ProctorEventMessage{
		Kind:       models.ViolationDevtools,
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	select {
	case event := <-ch:
		require.Equal(t, uint(7), event.QuestionID)
		require.Equal(t, models.ViolationDevtools, event.Kind)
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestProctorServiceUnsubscribeStopsDelivery(t *testing.T) {
	svc := newProctorService(t, &stubProctorEventRepo{})

	ch := make(chan ProctorBroadcast, 1)
	unsubscribe := svc.Subscribe(ch)
	unsubscribe()

	err := svc.Record(context.Background(), 1, "cand-1", dto.ProctorEventMessage{Kind: models.ViolationContextMenu})
	require.NoError(t, err)

	select {
	case <-ch:
		t.Fatal("received broadcast after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}
