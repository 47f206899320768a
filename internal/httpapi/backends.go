package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sharedmem/controller/internal/inferrouter"
	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/pkg/xlog"
)

// BackendsHandler serves /api/backends/config and /api/backends/models
// (spec §6), grounded on original_source/backend/src/api/backends.rs's
// masked-api-key config get/set pattern.
type BackendsHandler struct {
	registry *registry.Registry
	router   *inferrouter.Router
	log      *xlog.Logger
}

func NewBackendsHandler(reg *registry.Registry, router *inferrouter.Router, log *xlog.Logger) *BackendsHandler {
	return &BackendsHandler{registry: reg, router: router, log: log.Named("httpapi.backends")}
}

func (h *BackendsHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/backends/config", h.GetConfig)
	r.POST("/api/backends/config", h.SetConfig)
	r.GET("/api/backends/models", h.ListModels)
}

// GetConfig godoc
// @Summary Get the active backend config
// @Description Returns backend_type/backend_url with the api key masked
// @Tags Backends
// @Produce json
// @Success 200 {object} inferrouter.BackendConfig
// @Router /api/backends/config [get]
func (h *BackendsHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, inferrouter.GetBackendConfig(h.registry))
}

// SetConfig godoc
// @Summary Set the active backend config
// @Tags Backends
// @Accept json
// @Produce json
// @Param request body inferrouter.BackendConfig true "Backend configuration"
// @Success 200 {object} inferrouter.BackendConfig
// @Failure 400 {object} ErrorResponse
// @Router /api/backends/config [post]
func (h *BackendsHandler) SetConfig(c *gin.Context) {
	var cfg inferrouter.BackendConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}
	if err := inferrouter.SetBackendConfig(h.registry, cfg); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot set backend config", Details: err.Error()})
		return
	}
	c.JSON(http.StatusOK, inferrouter.GetBackendConfig(h.registry))
}

// ListModels implements GET /api/backends/models?type=&url=&api_key=
// (spec §6): validates the caller-supplied URL, proxies to its model
// listing endpoint with a 10s timeout, and normalizes errors — distinct
// from the active-backend /v1/models surface inferrouter.Router serves.
// ListModels godoc
// @Summary Probe a candidate backend's model list
// @Tags Backends
// @Produce json
// @Param url query string true "Candidate backend base URL"
// @Param api_key query string false "Bearer token to probe with"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/backends/models [get]
func (h *BackendsHandler) ListModels(c *gin.Context) {
	url := c.Query("url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "url must start with http:// or https://"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(url, "/")+"/v1/models", nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "backend unreachable"})
		return
	}
	if apiKey := c.Query("api_key"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.log.Warnf("backend model-list probe to %s failed: %v", url, err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "backend unreachable"})
		return
	}
	defer resp.Body.Close()

	c.Status(resp.StatusCode)
	c.Header("Content-Type", resp.Header.Get("Content-Type"))
	_, _ = io.Copy(c.Writer, resp.Body)
}
