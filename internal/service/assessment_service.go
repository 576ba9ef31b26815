package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/adat-tool/adat-api/internal/platform/logger"
	"github.com/adat-tool/adat-api/internal/store"
	"github.com/adat-tool/adat-api/internal/task"
	"github.com/google/uuid"
)

// DefaultUpstreamTimeout bounds every queue and store call made on the
// request path.
const DefaultUpstreamTimeout = 5 * time.Second

// Caller-facing task status vocabulary.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TaskQueue is the part of task.Queue the service needs.
type TaskQueue interface {
	Submit(ctx context.Context, taskType string, sessionID uuid.UUID, payload any) (uuid.UUID, error)
	GetState(ctx context.Context, id uuid.UUID) (*task.Record, error)
}

// Submission is returned when an assessment has been queued.
type Submission struct {
	TaskID    uuid.UUID `json:"task_id"`
	SessionID uuid.UUID `json:"session_id"`
	// SessionGenerated reports that the caller's session id was missing or
	// malformed and a fresh one was assigned.
	SessionGenerated bool `json:"-"`
}

// TaskStatus is the caller-facing view of a task.
type TaskStatus struct {
	TaskID    uuid.UUID       `json:"task_id"`
	SessionID uuid.UUID       `json:"session_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// SessionRequest creates or refreshes a session. Omitted timestamps default
// to now and now plus the session TTL.
type SessionRequest struct {
	SessionID string     `json:"session_id"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	ExpiresBy *time.Time `json:"expires_by,omitempty"`
	IsActive  *bool      `json:"is_active,omitempty"`
}

// AssessmentService is the gateway's use-case layer.
type AssessmentService interface {
	// SubmitAssessment validates input, resolves its session id and enqueues
	// an evaluation. It never waits for the evaluation.
	SubmitAssessment(ctx context.Context, input *domain.AssessmentInput) (*Submission, error)

	// GetTaskStatus returns the state of a task. Unknown, malformed and
	// expired ids yield task.ErrTaskNotFound.
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)

	// GetResult returns the stored result for a session. A malformed id
	// yields ErrInvalidSessionID without a store call.
	GetResult(ctx context.Context, sessionID string) (*domain.ToolResult, error)

	// CreateSession upserts a session row.
	CreateSession(ctx context.Context, req *SessionRequest) (*domain.Session, error)
}

// assessmentServiceImpl implements AssessmentService
type assessmentServiceImpl struct {
	queue           TaskQueue
	results         store.ResultStore
	clock           clock.Clock
	upstreamTimeout time.Duration
	sessionTTL      time.Duration
	logger          *slog.Logger
}

// Options tunes an AssessmentService. Zero values take defaults.
type Options struct {
	UpstreamTimeout time.Duration
	SessionTTL      time.Duration
	Clock           clock.Clock
}

// NewAssessmentService creates an AssessmentService. It returns an error if
// any required dependency is nil.
func NewAssessmentService(queue TaskQueue, results store.ResultStore, opts Options, logger *slog.Logger) (AssessmentService, error) {
	if queue == nil {
		return nil, fmt.Errorf("%w: queue cannot be nil", domain.ErrValidation)
	}
	if results == nil {
		return nil, fmt.Errorf("%w: result store cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = domain.DefaultSessionTTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	return &assessmentServiceImpl{
		queue:           queue,
		results:         results,
		clock:           opts.Clock,
		upstreamTimeout: opts.UpstreamTimeout,
		sessionTTL:      opts.SessionTTL,
		logger:          logger.With(slog.String("component", "assessment_service")),
	}, nil
}

// upstream runs fn under the upstream timeout and classifies its error.
func (s *assessmentServiceImpl) upstream(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()
	return upstreamError(ctx, fn(callCtx))
}

// SubmitAssessment implements AssessmentService.SubmitAssessment
func (s *assessmentServiceImpl) SubmitAssessment(ctx context.Context, input *domain.AssessmentInput) (*Submission, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if input == nil {
		return nil, fmt.Errorf("%w: request body is required", domain.ErrValidation)
	}
	if err := input.Validate(); err != nil {
		log.Debug("assessment rejected", "error", err)
		return nil, err
	}

	sessionID, generated := input.ResolveSessionID()
	if generated && input.SessionID != "" {
		log.Info("replaced malformed session id", "session_id", sessionID)
	}

	// The enqueued payload is a copy carrying the resolved id.
	payload := *input
	payload.SessionID = sessionID.String()

	var taskID uuid.UUID
	err := s.upstream(ctx, func(ctx context.Context) error {
		var err error
		taskID, err = s.queue.Submit(ctx, task.TypeAssessment, sessionID, payload)
		return err
	})
	if err != nil {
		log.Error("failed to enqueue assessment", "error", err, "session_id", sessionID)
		return nil, NewAssessmentServiceError("submit", "failed to enqueue assessment", err)
	}

	log.Info("assessment queued",
		"task_id", taskID,
		"session_id", sessionID,
		"project_name", input.ProjectName)

	return &Submission{TaskID: taskID, SessionID: sessionID, SessionGenerated: generated}, nil
}

// GetTaskStatus implements AssessmentService.GetTaskStatus
func (s *assessmentServiceImpl) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	id, err := uuid.Parse(taskID)
	if err != nil {
		return nil, task.ErrTaskNotFound
	}

	var rec *task.Record
	err = s.upstream(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.queue.GetState(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			return nil, err
		}
		return nil, NewAssessmentServiceError("get_task_status", "failed to read task state", err)
	}

	status := &TaskStatus{TaskID: rec.ID, SessionID: rec.SessionID, Status: StatusLabel(rec.Status)}
	switch rec.Status {
	case task.StatusSuccess:
		status.Result = rec.Result
	case task.StatusFailure:
		status.Error = rec.Error
	}
	return status, nil
}

// StatusLabel maps a queue state to the caller-facing vocabulary.
func StatusLabel(s task.Status) string {
	switch s {
	case task.StatusPending:
		return StatusPending
	case task.StatusProcessing:
		return StatusProcessing
	case task.StatusSuccess:
		return StatusCompleted
	case task.StatusFailure:
		return StatusFailed
	default:
		return StatusPending
	}
}

// GetResult implements AssessmentService.GetResult
func (s *assessmentServiceImpl) GetResult(ctx context.Context, sessionID string) (*domain.ToolResult, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil || id == uuid.Nil {
		return nil, ErrInvalidSessionID
	}

	var res *domain.ToolResult
	err = s.upstream(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.results.GetResult(ctx, id)
		return err
	})
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, err
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to read result",
			"error", err, "session_id", id)
		return nil, NewAssessmentServiceError("get_result", "failed to read result", err)
	}
	return res, nil
}

// CreateSession implements AssessmentService.CreateSession
func (s *assessmentServiceImpl) CreateSession(ctx context.Context, req *SessionRequest) (*domain.Session, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", domain.ErrValidation)
	}
	id, err := uuid.Parse(req.SessionID)
	if err != nil || id == uuid.Nil {
		return nil, ErrInvalidSessionID
	}

	now := s.clock.Now().UTC()
	sess := &domain.Session{
		SessionID: id,
		CreatedAt: now,
		ExpiresBy: now.Add(s.sessionTTL),
		IsActive:  true,
	}
	if req.CreatedAt != nil {
		sess.CreatedAt = req.CreatedAt.UTC()
		if req.ExpiresBy == nil {
			sess.ExpiresBy = sess.CreatedAt.Add(s.sessionTTL)
		}
	}
	if req.ExpiresBy != nil {
		sess.ExpiresBy = req.ExpiresBy.UTC()
	}
	if req.IsActive != nil {
		sess.IsActive = *req.IsActive
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	err = s.upstream(ctx, func(ctx context.Context) error {
		return s.results.UpsertSession(ctx, sess)
	})
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to upsert session",
			"error", err, "session_id", id)
		return nil, NewAssessmentServiceError("create_session", "failed to store session", err)
	}
	return sess, nil
}
