package roles

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vantage-cms/vantage-cms/internal/platform/httpx"
	"github.com/vantage-cms/vantage-cms/internal/rbac"
)

// Handler manages the role administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers role routes with their authorization policies.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.AuthorizationPolicy{
			PermissionSets: [][]string{{rbac.PermRoleRead}},
		}))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.AuthorizationPolicy{
			PermissionSets: [][]string{{rbac.PermRoleCreate}},
		}))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.AuthorizationPolicy{
			PermissionSets: [][]string{{rbac.PermRoleUpdate}},
		}))
		r.Put("/{id}", h.update)
		r.Post("/reseed", h.reseed)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.AuthorizationPolicy{
			PermissionSets: [][]string{{rbac.PermRoleDelete}},
		}))
		r.Delete("/many", h.deleteMany)
		r.Delete("/{id}", h.delete)
	})
}

type roleResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	Deletable   bool      `json:"deletable"`
	Color       string    `json:"color,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toRoleResponse(role rbac.Role) roleResponse {
	perms := role.Permissions
	if perms == nil {
		perms = []string{}
	}
	return roleResponse{
		ID:          role.ID.String(),
		Name:        role.Name,
		Permissions: perms,
		Deletable:   role.Deletable,
		Color:       role.Color,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ref, err := h.service.Resolve(r.Context(), rbac.UnresolvedRole(id))
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	role, _ := ref.Role()
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=64"`
	Permissions []string `json:"permissions"`
	Color       string   `json:"color" validate:"omitempty,max=32"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, httpx.ErrValidation))
		return
	}
	role, err := h.service.Create(r.Context(), req.Name, req.Permissions, req.Color)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

type updateRoleRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=2,max=64"`
	Permissions []string `json:"permissions"`
	Color       *string  `json:"color" validate:"omitempty,max=32"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, httpx.ErrValidation))
		return
	}
	role, err := h.service.Update(r.Context(), id, UpdateRoleParams{
		Name:        req.Name,
		Permissions: req.Permissions,
		Color:       req.Color,
	})
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type deleteManyRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

func (h *Handler) deleteMany(w http.ResponseWriter, r *http.Request) {
	var req deleteManyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, httpx.ErrValidation))
		return
	}
	deleted, err := h.service.DeleteMany(r.Context(), req.IDs)
	if err != nil {
		h.fail(w, "bulk delete roles", err)
		return
	}
	out := make([]string, 0, len(deleted))
	for _, id := range deleted {
		out = append(out, id.String())
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": out})
}

// reseed rebuilds the canonical roles after operational drift, e.g. a
// migration that touched the seed rows out of band.
func (h *Handler) reseed(w http.ResponseWriter, r *http.Request) {
	dir, err := h.service.Reseed(r.Context())
	if err != nil {
		h.fail(w, "reseed roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": dir.Names()})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed id %q: %w", raw, httpx.ErrValidation)
	}
	return id, nil
}
