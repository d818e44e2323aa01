package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/models"
	"github.com/hirecraft/assess-go/internal/observability"
	"github.com/hirecraft/assess-go/internal/repository"
)

// ErrUnknownViolationKind indicates an event kind outside the monitored set.
var ErrUnknownViolationKind = errors.New("unknown violation kind")

// ProctorChannel is the Redis pub/sub channel live violations fan out on.
const ProctorChannel = "assess:proctor:events"

// SubjectProctorEvent is the NATS subject mirroring the live violation feed.
const SubjectProctorEvent = "assess.proctor.event"

var knownViolationKinds = map[string]struct{}{
	models.ViolationTabSwitch:      {},
	models.ViolationWindowBlur:     {},
	models.ViolationContextMenu:    {},
	models.ViolationDevtools:       {},
	models.ViolationLargeClipboard: {},
}

// ProctorBroadcast is one violation as fanned out to live observers.
type ProctorBroadcast struct {
	NodeID      string    `json:"nodeId"`
	QuestionID  uint      `json:"questionId"`
	CandidateID string    `json:"candidateId"`
	Kind        string    `json:"kind"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// ProctorService records integrity violations and fans them out live.
type ProctorService interface {
	Record(ctx context.Context, questionID uint, candidateID string, msg dto.ProctorEventMessage) error
	List(ctx context.Context, questionID uint, candidateID string) ([]models.ProctorEvent, error)
	Count(ctx context.Context, questionID uint, candidateID string) (int64, error)
	Subscribe(ch chan ProctorBroadcast) func()
	Close()
}

// ProctorConfig carries the collaborators of the proctor service. Redis and
// NATS are optional; without them events are stored but not fanned out beyond
// local subscribers.
type ProctorConfig struct {
	Events repository.ProctorEventRepository
	Redis  *redis.Client
	NATS   *nats.Conn
	Logger zerolog.Logger
}

type proctorService struct {
	events repository.ProctorEventRepository
	redis  *redis.Client
	nats   *nats.Conn
	nodeID string
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[chan ProctorBroadcast]struct{}

	natsSub   *nats.Subscription
	redisSub  *redis.PubSub
	cancelSub context.CancelFunc
}

// NewProctorService builds a proctor service and joins the cross-node feed.
func NewProctorService(cfg ProctorConfig) (ProctorService, error) {
	s := &proctorService{
		events:      cfg.Events,
		redis:       cfg.Redis,
		nats:        cfg.NATS,
		nodeID:      uuid.NewString(),
		logger:      cfg.Logger.With().Str("component", "proctor_service").Logger(),
		subscribers: make(map[chan ProctorBroadcast]struct{}),
	}

	if s.nats != nil {
		sub, err := s.nats.QueueSubscribe(SubjectProctorEvent, "assess-proctor", func(msg *nats.Msg) {
			var event ProctorBroadcast
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				s.logger.Error().Err(err).Msg("discarding malformed proctor event")
				return
			}
			// Events this node published come back via its own fan-out.
			if event.NodeID == s.nodeID {
				return
			}
			s.fanOut(event)
		})
		if err != nil {
			return nil, err
		}
		s.natsSub = sub
	}

	if s.redis != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelSub = cancel
		s.redisSub = s.redis.Subscribe(ctx, ProctorChannel)
		go s.consumeRedis(ctx)
	}

	return s, nil
}

// Record validates and appends the violation, then publishes it to live
// observers. Every reported event is stored; nothing is deduplicated.
func (s *proctorService) Record(ctx context.Context, questionID uint, candidateID string, msg dto.ProctorEventMessage) error {
	if _, ok := knownViolationKinds[msg.Kind]; !ok {
		return ErrUnknownViolationKind
	}

	occurredAt := msg.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	event := models.ProctorEvent{
		QuestionID:  questionID,
		CandidateID: candidateID,
		Kind:        msg.Kind,
		OccurredAt:  occurredAt,
	}
	if err := s.events.Append(ctx, &event); err != nil {
		return err
	}
	observability.Violations().WithLabelValues(msg.Kind).Inc()

	broadcast := ProctorBroadcast{
		NodeID:      s.nodeID,
		QuestionID:  questionID,
		CandidateID: candidateID,
		Kind:        msg.Kind,
		OccurredAt:  occurredAt,
	}
	s.fanOut(broadcast)
	s.publish(ctx, broadcast)

	s.logger.Debug().
		Uint("question_id", questionID).
		Str("candidate_id", candidateID).
		Str("kind", msg.Kind).
		Msg("violation recorded")
	return nil
}

func (s *proctorService) List(ctx context.Context, questionID uint, candidateID string) ([]models.ProctorEvent, error) {
	return s.events.ListBySession(ctx, questionID, candidateID)
}

func (s *proctorService) Count(ctx context.Context, questionID uint, candidateID string) (int64, error) {
	return s.events.CountBySession(ctx, questionID, candidateID)
}

// Subscribe registers a local observer channel. The returned function removes
// it; after removal the channel is never written to again.
func (s *proctorService) Subscribe(ch chan ProctorBroadcast) func() {
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, ch)
		s.mu.Unlock()
	}
}

// Close detaches from the cross-node feed.
func (s *proctorService) Close() {
	if s.natsSub != nil {
		_ = s.natsSub.Unsubscribe()
	}
	if s.cancelSub != nil {
		s.cancelSub()
	}
	if s.redisSub != nil {
		_ = s.redisSub.Close()
	}
}

func (s *proctorService) fanOut(event ProctorBroadcast) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Slow observers drop events rather than stalling intake.
		}
	}
}

func (s *proctorService) publish(ctx context.Context, event ProctorBroadcast) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode proctor broadcast")
		return
	}

	if s.redis != nil {
		if err := s.redis.Publish(ctx, ProctorChannel, payload).Err(); err != nil {
			s.logger.Error().Err(err).Msg("failed to publish proctor event to redis")
		}
	}
	if s.nats != nil {
		if err := s.nats.Publish(SubjectProctorEvent, payload); err != nil {
			s.logger.Error().Err(err).Msg("failed to publish proctor event to nats")
		}
	}
}

func (s *proctorService) consumeRedis(ctx context.Context) {
	for {
		msg, err := s.redisSub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("proctor feed receive failed")
			return
		}

		var event ProctorBroadcast
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			s.logger.Error().Err(err).Msg("discarding malformed proctor event")
			continue
		}
		if event.NodeID == s.nodeID {
			continue
		}
		s.fanOut(event)
	}
}
