package api

import (
	"log/slog"
	"net/http"

	"github.com/adat-tool/adat-api/internal/api/shared"
	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/adat-tool/adat-api/internal/platform/logger"
	"github.com/adat-tool/adat-api/internal/redact"
	"github.com/adat-tool/adat-api/internal/service"
	"github.com/go-chi/chi/v5"
)

// Messages accompanying non-terminal task states.
var statusMessages = map[string]string{
	service.StatusPending:    "Waiting in queue",
	service.StatusProcessing: "Assessment is being evaluated",
}

// AssessmentHandler serves the assessment gateway and results endpoints.
type AssessmentHandler struct {
	service service.AssessmentService
	logger  *slog.Logger
}

// NewAssessmentHandler creates a new AssessmentHandler
func NewAssessmentHandler(svc service.AssessmentService, logger *slog.Logger) *AssessmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssessmentHandler{
		service: svc,
		logger:  logger.With(slog.String("component", "assessment_handler")),
	}
}

// RegisterRoutes mounts the handler's endpoints on r.
func (h *AssessmentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/assess", h.SubmitAssessment)
		r.Get("/task/{task_id}", h.GetTaskStatus)
		r.Post("/sessions", h.CreateSession)
	})
	r.Get("/storage", h.GetResult)
}

// handleError writes the mapped status and a safe message for err.
func (h *AssessmentHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}

// SubmitAssessment handles POST /api/assess requests
func (h *AssessmentHandler) SubmitAssessment(w http.ResponseWriter, r *http.Request) {
	var input domain.AssessmentInput
	if err := shared.DecodeJSON(w, r, &input); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	sub, err := h.service.SubmitAssessment(r.Context(), &input)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Debug("assessment accepted",
		"task_id", sub.TaskID,
		"session_id", sub.SessionID)

	// 202: the assessment is evaluated asynchronously.
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitResponse{
		Status:    "queued",
		Message:   "Assessment queued for processing",
		TaskID:    sub.TaskID.String(),
		SessionID: sub.SessionID.String(),
	})
}

// GetTaskStatus handles GET /api/task/{task_id} requests
func (h *AssessmentHandler) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")

	st, err := h.service.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskStatusResponse{
		TaskID:  st.TaskID.String(),
		Status:  st.Status,
		Message: statusMessages[st.Status],
		Result:  st.Result,
		Error:   st.Error,
	})
}

// GetResult handles GET /storage?session_id= requests. Failures use the
// results API envelope {status: "error", reason} with a matching status
// code.
func (h *AssessmentHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetResult(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		status := MapErrorToStatusCode(err)
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.FromContextOrDefault(r.Context(), h.logger).Log(r.Context(), level, "result read failed",
			"status_code", status,
			"error", redact.Error(err))
		shared.RespondWithJSON(w, r, status, ResultResponse{
			Status: resultStatusError,
			Reason: GetSafeErrorMessage(err),
		})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ResultResponse{
		Status: resultStatusOK,
		Result: res,
	})
}

// CreateSession handles POST /api/sessions requests
func (h *AssessmentHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req service.SessionRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	sess, err := h.service.CreateSession(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, SessionResponse{Status: resultStatusOK, Session: sess})
}
