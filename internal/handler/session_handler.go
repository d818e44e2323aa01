package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/service"
	"github.com/hirecraft/assess-go/internal/utils"
)

// SessionHandler exposes the per-question session endpoints: autosave,
// execute and submit. All of them identify the candidate by token header.
type SessionHandler struct {
	drafts      service.DraftService
	executions  service.ExecutionService
	submissions service.SubmissionService
	logger      zerolog.Logger
}

// NewSessionHandler builds a new session handler.
func NewSessionHandler(drafts service.DraftService, executions service.ExecutionService, submissions service.SubmissionService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		drafts:      drafts,
		executions:  executions,
		submissions: submissions,
		logger:      logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register wires the handler routes into the router group.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Get("/:id/draft", h.getDraft)
	router.Post("/:id/autosave", h.autosave)
	router.Post("/:id/execute", h.execute)
	router.Post("/:id/submit", h.submit)
}

func (h *SessionHandler) autosave(c *fiber.Ctx) error {
	questionID, candidateID, errResp := h.sessionKey(c)
	if errResp != nil {
		return errResp(c)
	}

	var req dto.AutosaveRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.drafts.Save(c.Context(), questionID, candidateID, req)
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
		case errors.Is(err, service.ErrQuestionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "question not found")
		case errors.Is(err, service.ErrUnsupportedLanguage):
			return utils.SendError(c, fiber.StatusUnprocessableEntity, "language not supported for this question")
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("question_id", questionID).Msg("failed to save draft")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to save draft")
		}
	}

	return utils.SendSuccess(c, "draft saved", resp)
}

func (h *SessionHandler) getDraft(c *fiber.Ctx) error {
	questionID, candidateID, errResp := h.sessionKey(c)
	if errResp != nil {
		return errResp(c)
	}

	draft, err := h.drafts.Get(c.Context(), questionID, candidateID)
	if err != nil {
		if errors.Is(err, service.ErrDraftNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "draft not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("question_id", questionID).Msg("failed to load draft")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load draft")
	}

	return utils.SendSuccess(c, "draft retrieved", draft)
}

func (h *SessionHandler) execute(c *fiber.Ctx) error {
	questionID, candidateID, errResp := h.sessionKey(c)
	if errResp != nil {
		return errResp(c)
	}

	var req dto.ExecuteRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.executions.Execute(c.Context(), questionID, req)
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
		case errors.Is(err, service.ErrQuestionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "question not found")
		case errors.Is(err, service.ErrUnsupportedLanguage):
			return utils.SendError(c, fiber.StatusUnprocessableEntity, "language not supported for this question")
		case errors.Is(err, service.ErrExecutionTimeout):
			return utils.SendError(c, fiber.StatusGatewayTimeout, "execution timed out, try again")
		default:
			requestLogger(h.logger, c).Error().Err(err).
				Uint("question_id", questionID).
				Str("candidate_id", candidateID).
				Msg("execution failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "execution failed")
		}
	}

	return utils.SendSuccess(c, "execution finished", result)
}

func (h *SessionHandler) submit(c *fiber.Ctx) error {
	questionID, candidateID, errResp := h.sessionKey(c)
	if errResp != nil {
		return errResp(c)
	}

	var req dto.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.submissions.Submit(c.Context(), questionID, candidateID, req)
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
		case errors.Is(err, service.ErrQuestionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "question not found")
		case errors.Is(err, service.ErrUnsupportedLanguage):
			return utils.SendError(c, fiber.StatusUnprocessableEntity, "language not supported for this question")
		default:
			requestLogger(h.logger, c).Error().Err(err).
				Uint("question_id", questionID).
				Str("candidate_id", candidateID).
				Msg("failed to accept submission")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to accept submission")
		}
	}

	return utils.SendSuccess(c, "submission received", resp)
}

// sessionKey extracts the (question, candidate) pair a session endpoint acts
// on. The third return is non-nil when the request is malformed.
func (h *SessionHandler) sessionKey(c *fiber.Ctx) (uint, string, func(*fiber.Ctx) error) {
	questionID, err := parseUintParam(c, "id")
	if err != nil {
		return 0, "", func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	candidateID := candidateIDFromRequest(c)
	if candidateID == "" {
		return 0, "", func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusUnauthorized, "candidate token required")
		}
	}

	return questionID, candidateID, nil
}
