package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kratosops/warroom/internal/ingest"
	"github.com/kratosops/warroom/internal/models"
	"github.com/kratosops/warroom/internal/pipeline"
	"github.com/kratosops/warroom/internal/services"
	"github.com/kratosops/warroom/internal/timeline"
)

// Handlers exposes the triage service over HTTP/JSON.
type Handlers struct {
	logger *slog.Logger
	svc    *services.TriageService
}

// NewRouter wires the service into a chi router.
func NewRouter(logger *slog.Logger, svc *services.TriageService) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{logger: logger, svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/detections", h.handleDetections)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleSession)
			r.Get("/alerts", h.handleAlerts)
			r.Get("/alerts.csv", h.handleAlertsCSV)
			r.Get("/summary", h.handleSummary)
			r.Get("/countermeasures", h.handleCountermeasures)
			r.Post("/playback/advance", h.playbackOp(h.svc.Advance))
			r.Post("/playback/reset", h.playbackOp(h.svc.ResetPlayback))
			r.Post("/playback/toggle-play", h.playbackOp(h.svc.TogglePlay))
			r.Post("/playback/toggle-mute", h.playbackOp(h.svc.ToggleMute))
			r.Post("/playback/scrub", h.handleScrub)
		})
	})
	return r
}

// detectionRequest carries an optional per-request override of the configured
// scoring knobs. Seed is a pointer so an explicit seed of 0 is distinguishable
// from "use the configured default".
type detectionRequest struct {
	Records       []models.RawRecord `json:"records"`
	Contamination float64            `json:"contamination"`
	Seed          *int64             `json:"seed"`
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleDetections(w http.ResponseWriter, r *http.Request) {
	var req detectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if len(req.Records) == 0 {
		h.writeError(w, http.StatusBadRequest, "records must not be empty")
		return
	}

	opts := pipeline.Options{Contamination: req.Contamination, Seed: req.Seed}
	session, err := h.svc.RunDetection(r.Context(), req.Records, opts)
	if err != nil {
		var schemaErr *ingest.SchemaError
		switch {
		case errors.As(err, &schemaErr):
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":          "batch failed schema validation",
				"row":            schemaErr.Row,
				"missing_fields": schemaErr.Missing,
			})
		case errors.Is(err, ingest.ErrUnparseableTimestamps):
			h.writeError(w, http.StatusBadRequest, "no parseable timestamps in batch")
		default:
			h.logger.Error("detection failed", slog.Any("error", err))
			h.writeError(w, http.StatusInternalServerError, "detection failed")
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

func (h *Handlers) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) handleAlerts(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	visible, err := h.svc.VisibleAlerts(chi.URLParam(r, "sessionID"), filter)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"alerts": visible, "count": len(visible)})
}

func (h *Handlers) handleAlertsCSV(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "sessionID")
	if _, err := h.svc.Session(id); err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="visible_alerts.csv"`)
	if err := h.svc.WriteAlertsCSV(w, id, filter); err != nil {
		h.logger.Error("csv export failed", slog.Any("error", err))
	}
}

func (h *Handlers) handleSummary(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	summary, err := h.svc.Summary(chi.URLParam(r, "sessionID"), filter)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) handleCountermeasures(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	plan, err := h.svc.Countermeasures(chi.URLParam(r, "sessionID"), filter)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

func (h *Handlers) handleScrub(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position int `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	session, err := h.svc.Scrub(chi.URLParam(r, "sessionID"), req.Position)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// playbackOp adapts a navigation operation into a handler.
func (h *Handlers) playbackOp(op func(string) (services.Session, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := op(chi.URLParam(r, "sessionID"))
		if err != nil {
			h.writeSessionError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, session)
	}
}

// parseFilter reads the optional severity query parameter. An unknown value
// is rejected rather than silently matching nothing.
func (h *Handlers) parseFilter(w http.ResponseWriter, r *http.Request) (timeline.Filter, bool) {
	raw := r.URL.Query().Get("severity")
	if raw == "" {
		return timeline.Filter{}, true
	}
	severity, ok := models.ParseSeverity(raw)
	if !ok {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown severity %q", raw))
		return timeline.Filter{}, false
	}
	return timeline.Filter{Severity: severity}, true
}

func (h *Handlers) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrSessionNotFound) {
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	h.logger.Error("session operation failed", slog.Any("error", err))
	h.writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{"error": msg})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response failed", slog.Any("error", err))
	}
}
