package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skywatchai/reportforge/pkg/domain"
	"github.com/skywatchai/reportforge/pkg/telemetry"
)

type reportRequest struct {
	Topic       string   `json:"topic"`
	Temperature *float64 `json:"temperature"`
	ProcessType string   `json:"process_type"`
}

type reportResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type reportResult struct {
	Topic      string `json:"topic"`
	ReportText string `json:"report_text"`
	Status     string `json:"status"`
	PDFBase64  string `json:"pdf_base64,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Handler wires the HTTP routes for the façade.
type Handler struct {
	svc     *Service
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewHandler builds the chi router for the service.
func NewHandler(svc *Service, metrics *telemetry.Metrics, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, metrics: metrics, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsAllowAll)

	r.Post("/generate-report", h.handleSubmit)
	r.Get("/report/{taskID}", h.handleReport)
	r.Get("/health", h.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	return r
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "malformed request body"})
		return
	}

	id, err := h.svc.Submit(r.Context(), SubmitRequest{
		Topic:       req.Topic,
		Temperature: req.Temperature,
		ProcessType: req.ProcessType,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
			return
		}
		h.logger.Error("submission failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, reportResponse{TaskID: id, Status: "processing"})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")

	job, err := h.svc.Poll(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Detail: "Report not found"})
			return
		}
		h.logger.Error("poll failed", "job_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, resultView(job))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// resultView maps a job record onto the polling wire shape. In-progress jobs
// expose nothing but their status; failed jobs carry the diagnostic in place
// of report text, never partial content.
func resultView(job domain.Job) reportResult {
	switch job.Status {
	case domain.StatusCompleted:
		return reportResult{
			Topic:      job.Topic,
			ReportText: job.Report,
			Status:     string(job.Status),
			PDFBase64:  base64.StdEncoding.EncodeToString(job.Document),
		}
	case domain.StatusFailed:
		return reportResult{
			Topic:      job.Topic,
			ReportText: job.Error,
			Status:     string(job.Status),
		}
	default:
		return reportResult{Status: "processing"}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// corsAllowAll mirrors the permissive CORS posture of the reference
// deployment; production deployments should narrow the origin list.
func corsAllowAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
