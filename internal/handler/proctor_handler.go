package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/middleware"
	"github.com/hirecraft/assess-go/internal/service"
	"github.com/hirecraft/assess-go/internal/utils"
)

// recordTimeout bounds persisting one violation from the feed.
const recordTimeout = 10 * time.Second

// ProctorHandler accepts the live violation feed over websocket and exposes
// the stored event log.
type ProctorHandler struct {
	service service.ProctorService
	logger  zerolog.Logger
}

// NewProctorHandler builds a new proctor handler.
func NewProctorHandler(service service.ProctorService, logger zerolog.Logger) *ProctorHandler {
	return &ProctorHandler{
		service: service,
		logger:  logger.With().Str("component", "proctor_handler").Logger(),
	}
}

// Register wires the handler routes into the router group.
func (h *ProctorHandler) Register(router fiber.Router) {
	router.Get("/:id/proctor", h.guardFeed, websocket.New(h.handleFeed))
	router.Get("/:id/proctor/events", h.listEvents)
}

// guardFeed validates the session key before the websocket upgrade takes over
// the connection.
func (h *ProctorHandler) guardFeed(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	questionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	candidateID := candidateIDFromRequest(c)
	if candidateID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "candidate token required")
	}
	c.Locals("question_id", questionID)
	c.Locals("candidate_id", candidateID)
	c.Locals("request_ctx", middleware.ContextWithCorrelation(context.Background(), middleware.GetCorrelationID(c)))
	return c.Next()
}

// handleFeed reads violation messages from the candidate runtime until the
// connection drops. Every message is recorded; a malformed frame closes the
// feed since the runtime only ever sends one message shape.
func (h *ProctorHandler) handleFeed(conn *websocket.Conn) {
	questionID, _ := conn.Locals("question_id").(uint)
	candidateID := fmt.Sprint(conn.Locals("candidate_id"))
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	logger := h.logger.With().
		Uint("question_id", questionID).
		Str("candidate_id", candidateID).
		Str("correlation_id", middleware.CorrelationIDFromContext(baseCtx)).
		Logger()
	logger.Info().Msg("proctor feed connected")

	defer func() {
		_ = conn.Close()
		logger.Info().Msg("proctor feed disconnected")
	}()

	for {
		var msg dto.ProctorEventMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("proctor feed read failed")
			}
			return
		}

		ctx, cancel := context.WithTimeout(baseCtx, recordTimeout)
		err := h.service.Record(ctx, questionID, candidateID, msg)
		cancel()
		if err != nil {
			logger.Error().Err(err).Str("kind", msg.Kind).Msg("failed to record violation")
		}
	}
}

func (h *ProctorHandler) listEvents(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	candidateID := candidateIDFromRequest(c)
	if candidateID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "candidate token required")
	}

	events, err := h.service.List(c.Context(), questionID, candidateID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("question_id", questionID).Msg("failed to list violations")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list violations")
	}

	return utils.SendSuccess(c, "violations retrieved", events)
}
