package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sharedmem/controller/internal/cluster"
	device "github.com/sharedmem/controller/internal/domains/device"
	"github.com/sharedmem/controller/internal/fitplan"
	"github.com/sharedmem/controller/pkg/xlog"
)

// ClusterHandler serves the /api/cluster group (spec §6, §4.6).
type ClusterHandler struct {
	orchestrator *cluster.Orchestrator
	log          *xlog.Logger
}

func NewClusterHandler(o *cluster.Orchestrator, log *xlog.Logger) *ClusterHandler {
	return &ClusterHandler{orchestrator: o, log: log.Named("httpapi.cluster")}
}

func (h *ClusterHandler) RegisterRoutes(r gin.IRouter) {
	c := r.Group("/api/cluster")
	{
		c.GET("/status", h.Status)
		c.GET("/model-check", h.ModelCheck)
		c.POST("/inference/start", h.StartInference)
		c.POST("/inference/stop", h.StopInference)
		c.GET("/inference/status", h.InferenceStatus)
		c.POST("/rpc/start", h.StartRPC)
		c.POST("/rpc/stop", h.StopRPC)
	}
}

// Status godoc
// @Summary Get the process-supervisor status
// @Tags Cluster
// @Produce json
// @Success 200 {object} supervisor.Status
// @Router /api/cluster/status [get]
func (h *ClusterHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Status())
}

// ModelCheck godoc
// @Summary Check whether a model fits across local and peer memory
// @Description device_ids is a comma-joined list, capped at 20 entries
// @Tags Cluster
// @Produce json
// @Param path query string true "Absolute path to a .gguf model"
// @Param device_ids query string false "Comma-separated peer device ids"
// @Success 200 {object} fitplan.Analysis
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/cluster/model-check [get]
func (h *ClusterHandler) ModelCheck(c *gin.Context) {
	modelPath := c.Query("path")
	if modelPath == "" {
		modelPath = c.Query("model_path")
	}
	if modelPath == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "path query parameter is required"})
		return
	}
	peerIDs := splitDeviceIDs(c.Query("device_ids"))

	analysis, err := h.orchestrator.ModelCheck(c.Request.Context(), modelPath, peerIDs)
	if err != nil {
		h.writeClusterError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

type startInferenceRequest struct {
	ModelPath  string   `json:"model_path" binding:"required"`
	DeviceIDs  []string `json:"device_ids"`
	NGPULayers *int     `json:"n_gpu_layers"`
	CtxSize    *int     `json:"ctx_size"`
}

// StartInference godoc
// @Summary Start a (possibly distributed) inference engine
// @Tags Cluster
// @Accept json
// @Produce json
// @Param request body startInferenceRequest true "Launch parameters"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/cluster/inference/start [post]
func (h *ClusterHandler) StartInference(c *gin.Context) {
	var req startInferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}
	session, analysis, err := h.orchestrator.StartInference(c.Request.Context(), req.ModelPath, req.DeviceIDs, req.NGPULayers, req.CtxSize)
	if err != nil {
		h.writeClusterError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session, "analysis": analysis})
}

// writeClusterError maps the orchestrator/planner's sentinel errors to
// the HTTP status kinds in spec §7.
func (h *ClusterHandler) writeClusterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cluster.ErrTooManyPeers):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "at most 20 peer device ids allowed"})
	case errors.Is(err, cluster.ErrPeerNotFound), errors.Is(err, device.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "peer device not found"})
	case errors.Is(err, fitplan.ErrInvalidPath), errors.Is(err, fitplan.ErrModelNotFound):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid model path"})
	default:
		c.JSON(http.StatusConflict, ErrorResponse{Error: "cannot complete cluster operation", Details: err.Error()})
	}
}

func splitDeviceIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// StopInference godoc
// @Summary Stop the running inference engine
// @Tags Cluster
// @Produce json
// @Success 200 {object} SuccessResponse
// @Router /api/cluster/inference/stop [post]
func (h *ClusterHandler) StopInference(c *gin.Context) {
	h.orchestrator.StopInference()
	c.JSON(http.StatusOK, SuccessResponse{OK: true})
}

// InferenceStatus godoc
// @Summary Get the current inference/supervisor status
// @Tags Cluster
// @Produce json
// @Success 200 {object} supervisor.Status
// @Router /api/cluster/inference/status [get]
func (h *ClusterHandler) InferenceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Status())
}

// StartRPC godoc
// @Summary Pre-warm the rpc-agent
// @Description Lets an operator start the rpc-agent half of the supervisor before committing to an engine
// @Tags Cluster
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/cluster/rpc/start [post]
func (h *ClusterHandler) StartRPC(c *gin.Context) {
	if err := h.orchestrator.StartRPC(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "cannot start rpc-agent", Details: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{OK: true})
}

// StopRPC godoc
// @Summary Stop the rpc-agent
// @Tags Cluster
// @Produce json
// @Success 200 {object} SuccessResponse
// @Router /api/cluster/rpc/stop [post]
func (h *ClusterHandler) StopRPC(c *gin.Context) {
	h.orchestrator.StopRPC()
	c.JSON(http.StatusOK, SuccessResponse{OK: true})
}
