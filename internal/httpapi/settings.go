package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/pkg/xlog"
)

// SettingsHandler serves GET /api/settings and PUT /api/settings/{key}
// (spec §6). The key allow-list is enforced inside Registry.SetSetting.
type SettingsHandler struct {
	registry *registry.Registry
	log      *xlog.Logger
}

func NewSettingsHandler(reg *registry.Registry, log *xlog.Logger) *SettingsHandler {
	return &SettingsHandler{registry: reg, log: log.Named("httpapi.settings")}
}

func (h *SettingsHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/settings", h.List)
	r.PUT("/api/settings/:key", h.Set)
}

// List godoc
// @Summary List settings
// @Tags Settings
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/settings [get]
func (h *SettingsHandler) List(c *gin.Context) {
	settings, err := h.registry.ListSettings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

type setSettingRequest struct {
	Value string `json:"value"`
}

// Set godoc
// @Summary Set a setting value
// @Tags Settings
// @Accept json
// @Produce json
// @Param key path string true "Setting key"
// @Param request body setSettingRequest true "New value"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/settings/{key} [put]
func (h *SettingsHandler) Set(c *gin.Context) {
	var req setSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}
	if err := h.registry.SetSetting(c.Param("key"), req.Value); err != nil {
		if errors.Is(err, registry.ErrUnknownSettingKey) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown setting key"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{OK: true})
}
