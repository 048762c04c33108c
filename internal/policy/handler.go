package policy

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/platform/httpx"
)

// Handler exposes the decision point and effective permission
// snapshots over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	guard     Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), guard: guard}
}

// MountRoutes registers the decision check endpoint. It is open to
// every authenticated service account.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/decisions", h.decide)
}

// MountMemberRoutes registers the effective permission snapshot under
// the member directory. Snapshots require read access.
func (h *Handler) MountMemberRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("read", "acessos"))
		r.Get("/{memberID}/permissions", h.effectivePermissions)
	})
}

type decisionRequest struct {
	UserID       int64      `json:"user_id" validate:"required"`
	Action       string     `json:"action" validate:"required"`
	Subject      string     `json:"subject" validate:"required"`
	ResourceType string     `json:"resource_type"`
	At           *time.Time `json:"at"`
}

type decisionResponse struct {
	Allowed   bool   `json:"allowed"`
	RBACState string `json:"rbac_state"`
	DecidedBy string `json:"decided_by"`
	GrantID   *int64 `json:"grant_id,omitempty"`
	RuleID    string `json:"rule_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	request := Request{
		MemberID:     req.UserID,
		Action:       catalog.Action(req.Action),
		Subject:      req.Subject,
		ResourceType: req.ResourceType,
	}
	if req.At != nil {
		request.At = *req.At
	}
	decision := h.service.Decide(r.Context(), request)

	resp := decisionResponse{
		Allowed:   decision.Allowed,
		RBACState: string(decision.RBACState),
		DecidedBy: decision.DecidedBy,
		Reason:    decision.Reason,
	}
	if decision.GrantID != 0 {
		resp.GrantID = &decision.GrantID
	}
	if decision.RuleID != uuid.Nil {
		resp.RuleID = decision.RuleID.String()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type effectivePermissionResponse struct {
	PermissionID int64  `json:"permission_id"`
	Action       string `json:"action"`
	Subject      string `json:"subject"`
	ResourceType string `json:"resource_type,omitempty"`
	State        string `json:"state"`
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "member id must be numeric")
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), memberID)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]effectivePermissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, effectivePermissionResponse{
			PermissionID: p.Permission.ID,
			Action:       string(p.Permission.Action),
			Subject:      p.Permission.Subject,
			ResourceType: p.Permission.ResourceType,
			State:        string(p.State),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}
