package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cuida-monitor/internal/analysis"
	"cuida-monitor/internal/index"
	"cuida-monitor/internal/models"
	"cuida-monitor/internal/repository"

	"go.uber.org/zap"
)

// EventService is the ingestion/read service behind the handlers.
type EventService interface {
	Ingest(ctx context.Context, source string, req *models.ReportEventRequest) (*models.Event, error)
	List() ([]index.Entry, int)
	Rehydrate(ctx context.Context) (int, error)
	Stats() index.Stats
}

// SummaryProvider computes the heuristic risk summary.
type SummaryProvider interface {
	Summary(ctx context.Context) (*analysis.Summary, error)
}

// EventHandler serves the event, analysis and index endpoints.
type EventHandler struct {
	events       EventService
	summary      SummaryProvider
	location     *time.Location
	maxBodyBytes int64
	logger       *zap.Logger
}

func NewEventHandler(events EventService, summary SummaryProvider, location *time.Location, maxBodyBytes int64, logger *zap.Logger) *EventHandler {
	if location == nil {
		location = time.UTC
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 64 << 10
	}
	return &EventHandler{
		events:       events,
		summary:      summary,
		location:     location,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// EventsPage is the read endpoint payload.
type EventsPage struct {
	Events []index.Entry `json:"events"`
	Total  int           `json:"total"`
}

// ReportEventResponse is returned after a successful write-through.
type ReportEventResponse struct {
	Key     int64  `json:"key"`
	EventID string `json:"event_id"`
}

// ListEvents GET /api/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	entries, total := h.events.List()
	writeJSON(w, http.StatusOK, Ok(EventsPage{Events: entries, Total: total}))
}

// ReportEvent POST /api/events (and the firmware alias /api/reportar_evento)
func (h *EventHandler) ReportEvent(w http.ResponseWriter, r *http.Request) {
	var req models.ReportEventRequest
	if err := readBodyJSON(r, h.maxBodyBytes, &req); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, Fail(err.Error()))
			return
		}
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	event, err := h.events.Ingest(r.Context(), models.SourceHTTP, &req)
	if err != nil {
		var vErr *models.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeJSON(w, http.StatusBadRequest, Fail(vErr.Error()))
		case errors.Is(err, repository.ErrStoreUnavailable):
			writeJSON(w, http.StatusInternalServerError, Fail("failed to store event"))
		default:
			h.logger.Error("Unexpected ingestion error", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		}
		return
	}

	writeJSON(w, http.StatusCreated, Ok(ReportEventResponse{Key: event.Timestamp, EventID: event.EventID}))
}

// GetAnalysis GET /api/analysis
func (h *EventHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	summary, err := h.summary.Summary(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute analysis", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to compute analysis"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}

// ExportEvents GET /api/events/export
func (h *EventHandler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	entries, _ := h.events.List()
	data, err := GenerateEventsExport(entries, h.location)
	if err != nil {
		h.logger.Error("Failed to generate events export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="cuida_events.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// RebuildIndex POST /api/index/rebuild
func (h *EventHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	n, err := h.events.Rehydrate(r.Context())
	if err != nil {
		h.logger.Error("Index rebuild failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to rebuild index"))
		return
	}
	stats := h.events.Stats()
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"replayed": n,
		"index":    stats,
	}))
}

// Health GET /healthz
func (h *EventHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"status": "ok",
		"index":  h.events.Stats(),
	}))
}
