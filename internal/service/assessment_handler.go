package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/adat-tool/adat-api/internal/store"
	"github.com/adat-tool/adat-api/internal/task"
	"github.com/google/uuid"
)

// Evaluator computes an assessment result for one input.
type Evaluator interface {
	Evaluate(ctx context.Context, sessionID string, input domain.AssessmentInput) (domain.AssessmentResult, error)
}

// AssessmentOutcome is the result recorded on a successful assessment task.
type AssessmentOutcome struct {
	Status      string                  `json:"status"`
	TaskID      uuid.UUID               `json:"task_id"`
	SessionID   uuid.UUID               `json:"session_id"`
	Results     domain.AssessmentResult `json:"results"`
	Developable string                  `json:"developable"`
}

// AssessmentHandler runs assessment tasks: evaluate, write the session and
// result through to the result store, then report the outcome. The store
// write finishes before the handler returns, so a task is never marked
// SUCCESS ahead of its readable result.
type AssessmentHandler struct {
	evaluator  Evaluator
	results    store.ResultStore
	clock      clock.Clock
	sessionTTL time.Duration
	logger     *slog.Logger
}

var _ task.Handler = (*AssessmentHandler)(nil)

// NewAssessmentHandler creates the handler for task.TypeAssessment.
func NewAssessmentHandler(
	evaluator Evaluator,
	results store.ResultStore,
	clk clock.Clock,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *AssessmentHandler {
	if clk == nil {
		clk = clock.Real()
	}
	if sessionTTL <= 0 {
		sessionTTL = domain.DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AssessmentHandler{
		evaluator:  evaluator,
		results:    results,
		clock:      clk,
		sessionTTL: sessionTTL,
		logger:     logger.With(slog.String("component", "assessment_handler")),
	}
}

// Handle implements task.Handler.
func (h *AssessmentHandler) Handle(ctx context.Context, rec *task.Record) (json.RawMessage, error) {
	var input domain.AssessmentInput
	if err := json.Unmarshal(rec.Payload, &input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	res, err := h.evaluator.Evaluate(ctx, rec.SessionID.String(), input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEvaluationFailure, err)
	}

	sess, err := domain.NewSession(rec.SessionID, h.clock.Now(), h.sessionTTL)
	if err != nil {
		return nil, err
	}
	result := domain.NewToolResult(rec.SessionID, res)
	if err := h.results.SaveOutcome(ctx, sess, result); err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}

	h.logger.InfoContext(ctx, "assessment completed",
		"task_id", rec.ID,
		"session_id", rec.SessionID,
		"eligible", res.Eligible,
		"developable", result.Developable)

	return json.Marshal(AssessmentOutcome{
		Status:      StatusCompleted,
		TaskID:      rec.ID,
		SessionID:   rec.SessionID,
		Results:     res,
		Developable: result.Developable,
	})
}
