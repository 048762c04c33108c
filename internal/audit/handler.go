package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ecclesia-app/ecclesia-access/internal/platform/httpx"
)

const maxDateRange = 90 * 24 * time.Hour

// Guard authorizes admin operations before they reach a handler.
type Guard interface {
	Require(action, subject string) func(http.Handler) http.Handler
}

// Handler exposes the audit trail over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   Guard
	now     func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, now: time.Now}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("read", "auditoria"))
		r.Get("/", h.timeline)
		r.Get("/export", h.export)
		r.Get("/decisions", h.decisions)
	})
}

type timelineRowResponse struct {
	At       time.Time `json:"at"`
	Actor    string    `json:"actor"`
	Action   string    `json:"action"`
	Entity   string    `json:"entity"`
	EntityID string    `json:"entity_id"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	rows := make([]timelineRowResponse, 0, len(result.Rows))
	for _, row := range result.Rows {
		rows = append(rows, timelineRowResponse(row))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows, "paging": result.Paging})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload, err := WriteCSV(rows)
	if err != nil {
		h.logger.Error("audit export csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

type decisionResponse struct {
	ID           string    `json:"id"`
	MemberID     int64     `json:"member_id"`
	Action       string    `json:"action"`
	Subject      string    `json:"subject"`
	ResourceType string    `json:"resource_type,omitempty"`
	Allowed      bool      `json:"allowed"`
	DecidedBy    string    `json:"decided_by"`
	At           time.Time `json:"at"`
}

func (h *Handler) decisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := DecisionFilters{}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	filters.MemberID, _ = strconv.ParseInt(q.Get("member_id"), 10, 64)
	if raw := q.Get("allowed"); raw != "" {
		allowed := raw == "true"
		filters.Allowed = &allowed
	}
	rows, paging, err := h.service.Decisions(r.Context(), filters)
	if err != nil {
		h.logger.Error("decision log", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]decisionResponse, 0, len(rows))
	for _, d := range rows {
		out = append(out, decisionResponse{
			ID:           d.ID.String(),
			MemberID:     d.MemberID,
			Action:       d.Action,
			Subject:      d.Subject,
			ResourceType: d.ResourceType,
			Allowed:      d.Allowed,
			DecidedBy:    d.DecidedBy,
			At:           d.At,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"decisions": out, "paging": paging})
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	filters := TimelineFilters{
		Actor:  q.Get("actor"),
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return TimelineFilters{}, err
		}
		filters.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return TimelineFilters{}, err
		}
		filters.To = t
	}
	// Default to the last 7 days so unbounded exports stay cheap.
	if filters.From.IsZero() && filters.To.IsZero() {
		now := h.now()
		filters.To = now
		filters.From = now.Add(-7 * 24 * time.Hour)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Sub(filters.From) > maxDateRange {
		filters.From = filters.To.Add(-maxDateRange)
	}
	return filters, nil
}
