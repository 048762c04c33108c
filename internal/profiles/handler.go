package profiles

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ecclesia-app/ecclesia-access/internal/platform/httpx"
)

// Guard authorizes admin operations before they reach a handler.
type Guard interface {
	Require(action, subject string) func(http.Handler) http.Handler
}

// Handler exposes profile and grant management over HTTP.
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

// MountRoutes registers profile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("read", "acessos"))
		r.Get("/", h.listProfiles)
		r.Get("/{profileID}", h.getProfile)
		r.Get("/{profileID}/grants", h.listGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("manage", "acessos"))
		r.Post("/", h.createProfile)
		r.Put("/{profileID}", h.updateProfile)
		r.Delete("/{profileID}", h.deactivateProfile)
		r.Post("/{profileID}/grants/{permissionID}/toggle", h.toggleGrant)
		r.Put("/{profileID}/grants", h.replaceGrants)
	})
}

type profileResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Level       int       `json:"level"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type grantResponse struct {
	ID           int64     `json:"id"`
	ProfileID    int64     `json:"profile_id"`
	PermissionID int64     `json:"permission_id"`
	State        string    `json:"state"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toProfileResponse(p Profile) profileResponse {
	return profileResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Level:       p.Level,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toGrantResponse(g Grant) grantResponse {
	return grantResponse{
		ID:           g.ID,
		ProfileID:    g.ProfileID,
		PermissionID: g.PermissionID,
		State:        string(g.State),
		UpdatedAt:    g.UpdatedAt,
	}
}

func (h *Handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	profiles, err := h.service.ListProfiles(r.Context(), includeInactive)
	if err != nil {
		h.logger.Error("list profiles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toProfileResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"profiles": out})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	profile, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProfileResponse(profile))
}

type profileRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Level       int    `json:"level" validate:"required,min=1,max=5"`
	Active      *bool  `json:"active"`
}

func (h *Handler) createProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	profile, err := h.service.CreateProfile(r.Context(), req.Name, req.Description, req.Level)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProfileResponse(profile))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	profile, err := h.service.UpdateProfile(r.Context(), id, req.Name, req.Description, req.Level, active)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *Handler) deactivateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateProfile(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	grants, err := h.service.Grants(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantResponse(g))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": out})
}

func (h *Handler) toggleGrant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	permissionID, err := strconv.ParseInt(chi.URLParam(r, "permissionID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "permission id must be numeric")
		return
	}
	grant, err := h.service.ToggleGrant(r.Context(), id, permissionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGrantResponse(grant))
}

type replaceGrantsRequest struct {
	Grants map[string]string `json:"grants" validate:"required"`
}

func (h *Handler) replaceGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.profileID(w, r)
	if !ok {
		return
	}
	var req replaceGrantsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	states := make(map[int64]GrantState, len(req.Grants))
	for rawID, rawState := range req.Grants {
		permissionID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "grant keys must be numeric permission ids")
			return
		}
		states[permissionID] = GrantState(rawState)
	}
	if err := h.service.ReplaceGrants(r.Context(), id, states); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) profileID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "profileID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "profile id must be numeric")
		return 0, false
	}
	return id, true
}
