package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedmem/controller/internal/memorypool"
	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/pkg/xlog"
)

// GPUHandler serves GET /api/gpu: the cached per-provider memory
// snapshots, with AllocatedMB distributed proportionally to each
// provider's TotalMB share at read time, never on the aggregator's own
// tick (spec §4.2, §6). Every device's own controller exposes this same
// endpoint, which is also what registry.fetchRemoteMemory polls.
type GPUHandler struct {
	aggregator *memorypool.Aggregator
	registry   *registry.Registry
	log        *xlog.Logger
}

func NewGPUHandler(agg *memorypool.Aggregator, reg *registry.Registry, log *xlog.Logger) *GPUHandler {
	return &GPUHandler{aggregator: agg, registry: reg, log: log.Named("httpapi.gpu")}
}

func (h *GPUHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/gpu", h.Status)
}

// Status godoc
// @Summary Get memory-pool snapshots
// @Description Cached per-provider memory readings with AllocatedMB attributed at read time
// @Tags GPU
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/gpu [get]
func (h *GPUHandler) Status(c *gin.Context) {
	snapshots := h.aggregator.Snapshots()

	allocated, err := h.registry.TotalAllocatedMB()
	if err != nil {
		h.log.Errorf("sum allocated mb: %v", err)
	} else {
		snapshots = memorypool.AttributeAllocated(snapshots, allocated)
	}

	c.JSON(http.StatusOK, gin.H{"providers": snapshots, "count": len(snapshots)})
}
