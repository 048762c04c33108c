package rules

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/platform/httpx"
)

// Guard authorizes admin operations before they reach a handler.
type Guard interface {
	Require(action, subject string) func(http.Handler) http.Handler
}

// Handler exposes conditional rule management over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	guard     Guard
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), guard: guard}
}

// MountRoutes registers rule routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("read", "acessos"))
		r.Get("/", h.listRules)
		r.Get("/{ruleID}", h.getRule)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("manage", "acessos"))
		r.Post("/", h.createRule)
		r.Put("/{ruleID}", h.updateRule)
		r.Delete("/{ruleID}", h.deleteRule)
	})
}

type ruleResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Action       string          `json:"action"`
	Subject      string          `json:"subject"`
	ResourceType string          `json:"resource_type,omitempty"`
	Scope        string          `json:"scope"`
	ProfileID    *int64          `json:"profile_id,omitempty"`
	UserID       *int64          `json:"user_id,omitempty"`
	Condition    json.RawMessage `json:"condition"`
	Priority     int             `json:"priority"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toRuleResponse(r Rule) ruleResponse {
	return ruleResponse{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Action:       string(r.Action),
		Subject:      r.Subject,
		ResourceType: r.ResourceType,
		Scope:        string(r.Scope),
		ProfileID:    r.ProfileID,
		UserID:       r.MemberID,
		Condition:    r.Condition,
		Priority:     r.Priority,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type ruleRequest struct {
	Name         string          `json:"name" validate:"required"`
	Description  string          `json:"description"`
	Action       string          `json:"action" validate:"required"`
	Subject      string          `json:"subject" validate:"required"`
	ResourceType string          `json:"resource_type"`
	Scope        string          `json:"scope" validate:"required,oneof=global profile user"`
	ProfileID    *int64          `json:"profile_id"`
	UserID       *int64          `json:"user_id"`
	Condition    json.RawMessage `json:"condition"`
	Priority     int             `json:"priority"`
	Active       *bool           `json:"active"`
}

func (req ruleRequest) toDomain() Rule {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return Rule{
		Name:         req.Name,
		Description:  req.Description,
		Action:       catalog.Action(req.Action),
		Subject:      req.Subject,
		ResourceType: req.ResourceType,
		Scope:        Scope(req.Scope),
		ProfileID:    req.ProfileID,
		MemberID:     req.UserID,
		Condition:    req.Condition,
		Priority:     req.Priority,
		Active:       active,
	}
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListRules(r.Context())
	if err != nil {
		h.logger.Error("list rules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]ruleResponse, 0, len(list))
	for _, rule := range list {
		out = append(out, toRuleResponse(rule))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	rule, err := h.service.GetRule(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRuleResponse(rule))
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rule, err := h.service.CreateRule(r.Context(), req.toDomain())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rule := req.toDomain()
	rule.ID = id
	updated, err := h.service.UpdateRule(r.Context(), rule)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRuleResponse(updated))
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRule(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ruleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rule id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
