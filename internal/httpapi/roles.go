package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	device "github.com/sharedmem/controller/internal/domains/device"
	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/pkg/xlog"
)

// RoleHandler serves the /api/permissions/roles group (spec §6).
type RoleHandler struct {
	registry *registry.Registry
	log      *xlog.Logger
}

func NewRoleHandler(reg *registry.Registry, log *xlog.Logger) *RoleHandler {
	return &RoleHandler{registry: reg, log: log.Named("httpapi.roles")}
}

func (h *RoleHandler) RegisterRoutes(r gin.IRouter) {
	roles := r.Group("/api/permissions/roles")
	{
		roles.GET("", h.List)
		roles.POST("", h.Create)
		roles.PUT("/:id", h.Update)
		roles.DELETE("/:id", h.Delete)
	}
}

// List godoc
// @Summary List roles
// @Tags Roles
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/permissions/roles [get]
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.registry.ListRoles()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

type roleRequest struct {
	Name          string `json:"name" binding:"required"`
	MaxMemoryMB   int64  `json:"max_memory_mb"`
	MayPullModels bool   `json:"may_pull_models"`
	TrustLevel    int    `json:"trust_level"`
}

// Create godoc
// @Summary Create a role
// @Tags Roles
// @Accept json
// @Produce json
// @Param request body roleRequest true "Role definition"
// @Success 201 {object} device.Role
// @Failure 400 {object} ErrorResponse
// @Router /api/permissions/roles [post]
func (h *RoleHandler) Create(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}
	role, err := h.registry.CreateRole(req.Name, req.MaxMemoryMB, req.MayPullModels, req.TrustLevel)
	if err != nil {
		h.log.Errorf("create role: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusCreated, role)
}

// Update godoc
// @Summary Update a role
// @Tags Roles
// @Accept json
// @Produce json
// @Param id path string true "Role ID"
// @Param request body roleRequest true "Role definition"
// @Success 200 {object} device.Role
// @Failure 400 {object} ErrorResponse
// @Router /api/permissions/roles/{id} [put]
func (h *RoleHandler) Update(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}
	role, err := h.registry.UpdateRole(c.Param("id"), req.Name, req.MaxMemoryMB, req.MayPullModels, req.TrustLevel)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, role)
}

// Delete godoc
// @Summary Delete a role
// @Tags Roles
// @Produce json
// @Param id path string true "Role ID"
// @Success 200 {object} SuccessResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/permissions/roles/{id} [delete]
func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.registry.DeleteRole(c.Param("id")); err != nil {
		if errors.Is(err, device.ErrRoleBuiltin) {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "cannot delete built-in role"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{OK: true})
}
