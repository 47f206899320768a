package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	device "github.com/sharedmem/controller/internal/domains/device"
	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/pkg/xlog"
)

// DeviceHandler serves the /api/devices group (spec §6).
type DeviceHandler struct {
	registry *registry.Registry
	log      *xlog.Logger
}

func NewDeviceHandler(reg *registry.Registry, log *xlog.Logger) *DeviceHandler {
	return &DeviceHandler{registry: reg, log: log.Named("httpapi.devices")}
}

func (h *DeviceHandler) RegisterRoutes(r gin.IRouter) {
	devices := r.Group("/api/devices")
	{
		devices.GET("", h.List)
		devices.POST("", h.Create)
		devices.GET("/:id", h.Get)
		devices.POST("/:id/approve", h.Approve)
		devices.POST("/:id/deny", h.Deny)
		devices.PATCH("/:id/memory", h.Allocate)
		devices.DELETE("/:id", h.Delete)
	}
}

// List godoc
// @Summary List devices
// @Description List every known device and its approval status
// @Tags Devices
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/devices [get]
func (h *DeviceHandler) List(c *gin.Context) {
	devices, err := h.registry.List()
	if err != nil {
		h.log.Errorf("list devices: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

type createDeviceRequest struct {
	Name string `json:"name" binding:"required"`
	IP   string `json:"ip" binding:"required"`
	MAC  string `json:"mac"`
}

// Create godoc
// @Summary Register a device manually
// @Description Register a device by name/ip/mac without waiting for mDNS discovery
// @Tags Devices
// @Accept json
// @Produce json
// @Param request body createDeviceRequest true "Device registration data"
// @Success 201 {object} device.Device
// @Failure 400 {object} ErrorResponse
// @Router /api/devices [post]
func (h *DeviceHandler) Create(c *gin.Context) {
	var req createDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	d, err := h.registry.RegisterManual(req.Name, req.IP, req.MAC)
	if err != nil {
		h.log.Errorf("register device: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusCreated, d)
}

// Get godoc
// @Summary Get a device
// @Tags Devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} device.Device
// @Failure 404 {object} ErrorResponse
// @Router /api/devices/{id} [get]
func (h *DeviceHandler) Get(c *gin.Context) {
	d, err := h.registry.Get(c.Param("id"))
	if errors.Is(err, device.ErrDeviceNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "device not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, d)
}

type approveDeviceRequest struct {
	RoleID string `json:"role_id"`
}

// Approve godoc
// @Summary Approve a pending device
// @Tags Devices
// @Accept json
// @Produce json
// @Param id path string true "Device ID"
// @Param request body approveDeviceRequest false "Optional role override"
// @Success 200 {object} device.Device
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/devices/{id}/approve [post]
func (h *DeviceHandler) Approve(c *gin.Context) {
	var req approveDeviceRequest
	// role_id is optional — an empty body is valid (Approve defaults it).
	_ = c.ShouldBindJSON(&req)

	d, err := h.registry.Approve(c.Param("id"), req.RoleID)
	if errors.Is(err, device.ErrDeviceNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "device not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot approve device", Details: err.Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}

// Deny godoc
// @Summary Deny a pending device
// @Tags Devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/devices/{id}/deny [post]
func (h *DeviceHandler) Deny(c *gin.Context) {
	if err := h.registry.Deny(c.Param("id")); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "device not found"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot deny device", Details: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{OK: true})
}

type allocateMemoryRequest struct {
	MemoryMB int64 `json:"memory_mb"`
}

// Allocate godoc
// @Summary Set a device's allocated memory
// @Tags Devices
// @Accept json
// @Produce json
// @Param id path string true "Device ID"
// @Param request body allocateMemoryRequest true "Requested allocation in MB"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/devices/{id}/memory [patch]
func (h *DeviceHandler) Allocate(c *gin.Context) {
	var req allocateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	if err := h.registry.Allocate(c.Param("id"), req.MemoryMB); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, device.ErrDeviceNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "cannot allocate memory", Details: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "memory_mb": req.MemoryMB})
}

// Delete godoc
// @Summary Remove a device
// @Tags Devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} SuccessResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/devices/{id} [delete]
func (h *DeviceHandler) Delete(c *gin.Context) {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{OK: true})
}
