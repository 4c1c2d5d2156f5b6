package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/remedystack/calibration-engine/internal/models"
	"github.com/remedystack/calibration-engine/internal/services"
	"github.com/remedystack/calibration-engine/internal/utils"
)

// Handler exposes the calibration operations as a JSON API. Structured
// sentinels (empty result, insufficient data) are returned with 200 so a
// calling scheduler needs no error handling for a routine pass.
type Handler struct {
	logger  *slog.Logger
	service *services.CalibrationService
}

// NewHandler builds the API routing tree.
func NewHandler(logger *slog.Logger, service *services.CalibrationService) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger, service: service}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /api/v1/calibration/outcomes", h.recordOutcome)
	mux.HandleFunc("POST /api/v1/calibration/apply", h.applyConfidence)
	mux.HandleFunc("GET /api/v1/calibration/report", h.buildReport)
	mux.HandleFunc("GET /api/v1/calibration/trends", h.analyzeTrends)
	mux.HandleFunc("POST /api/v1/calibration/thresholds", h.adjustThresholds)
	mux.HandleFunc("GET /api/v1/calibration/thresholds/history", h.thresholdHistory)

	return logRequests(logger, mux)
}

func (h *Handler) recordOutcome(w http.ResponseWriter, r *http.Request) {
	var pred models.ConfidencePrediction
	if err := json.NewDecoder(r.Body).Decode(&pred); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.service.RecordOutcome(r.Context(), pred); err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"issue_id": pred.IssueID, "status": "recorded"})
}

type applyRequest struct {
	Confidence float64 `json:"confidence"`
}

func (h *Handler) applyConfidence(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	calibrated, err := h.service.ApplyConfidence(r.Context(), req.Confidence)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		"raw":        req.Confidence,
		"calibrated": calibrated,
	})
}

func (h *Handler) buildReport(w http.ResponseWriter, r *http.Request) {
	period := models.ReportPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = models.PeriodAll
	}

	report, err := h.service.BuildReport(r.Context(), period)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) analyzeTrends(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = n
	}

	report, err := h.service.AnalyzeTrends(r.Context(), days)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type adjustRequest struct {
	TargetSuccessRate float64 `json:"target_success_rate"`
	MinSampleSize     int     `json:"min_sample_size"`
}

func (h *Handler) adjustThresholds(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	adj, err := h.service.AdjustThresholds(r.Context(), req.TargetSuccessRate, req.MinSampleSize)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}

func (h *Handler) thresholdHistory(w http.ResponseWriter, _ *http.Request) {
	entries, err := h.service.ThresholdHistory()
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// writeFailure maps storage failures to 500 and everything else (input
// validation, range errors) to 400.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	var storageErr *utils.StorageError
	if errors.As(err, &storageErr) {
		h.logger.Error("storage failure", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Warn("encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Debug("request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
