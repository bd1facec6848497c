package bridge

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/your-org/flixbridge/internal/eventlog"
	"github.com/your-org/flixbridge/internal/intake"
)

// HTTPHandler exposes the webhook and operational endpoints.
type HTTPHandler struct {
	service      *Service
	logger       *zap.Logger
	maxBodyBytes int64
	router       chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(service *Service, logger *zap.Logger, maxBodyBytes int64) *HTTPHandler {
	h := &HTTPHandler{
		service:      service,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/webhook/{source}", h.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/events", h.handleEvents)
		r.Post("/events/export", h.handleExport)
		r.Get("/intake/pending", h.handlePending)
		r.Get("/readiness", h.handleReadiness)
	})

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *HTTPHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	var payload any
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		writeRejection(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), source, payload)
	switch {
	case errors.Is(err, intake.ErrNotObject):
		writeRejection(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		var storageErr *eventlog.StorageError
		if errors.As(err, &storageErr) {
			h.logger.Error("webhook commit failed", zap.String("source", source), zap.Error(err))
			writeRejection(w, http.StatusInternalServerError, "storage failure")
			return
		}
		h.logger.Error("webhook failed", zap.String("source", source), zap.Error(err))
		writeRejection(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := map[string]any{
		"status":         "accepted",
		"id":             result.EventID,
		"correlation_id": result.CorrelationID,
		"dispatch":       result.Dispatch,
	}
	if obj, ok := payload.(map[string]any); ok {
		if title, found := intake.Field(obj, "Title"); found {
			resp["title"] = title
		}
		if year, found := intake.Field(obj, "Year"); found {
			resp["year"] = year
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, eventlog.DefaultFetchLimit)
	events, err := h.service.RecentEvents(r.Context(), limit)
	if err != nil {
		h.logger.Error("fetch events failed", zap.Error(err))
		writeRejection(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	})
}

func (h *HTTPHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, eventlog.DefaultFetchLimit)
	key, err := h.service.Export(r.Context(), limit)
	if err != nil {
		if errors.Is(err, ErrArchiveDisabled) {
			writeRejection(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.Error("export failed", zap.Error(err))
		writeRejection(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "exported",
		"key":    key,
	})
}

func (h *HTTPHandler) handlePending(w http.ResponseWriter, r *http.Request) {
	pending := h.service.Pending()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(pending),
		"pending": pending,
	})
}

func (h *HTTPHandler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"services": h.service.Readiness(),
	})
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeRejection(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{
		"status": "error",
		"reason": reason,
	})
}
