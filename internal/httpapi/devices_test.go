package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sharedmem/controller/internal/bus"
	device "github.com/sharedmem/controller/internal/domains/device"
	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/pkg/xlog"
)

// memDeviceRepo is a minimal in-memory device.Repository, enough to drive
// the devices handler's create/get/approve/deny/allocate/delete routes.
type memDeviceRepo struct {
	byID map[string]*device.Device
}

func newMemDeviceRepo() *memDeviceRepo { return &memDeviceRepo{byID: map[string]*device.Device{}} }

func (m *memDeviceRepo) List() ([]device.Device, error) {
	out := make([]device.Device, 0, len(m.byID))
	for _, d := range m.byID {
		out = append(out, *d)
	}
	return out, nil
}

func (m *memDeviceRepo) Get(id string) (*device.Device, error) {
	d, ok := m.byID[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDeviceRepo) GetByAddress(addr string) (*device.Device, error) {
	for _, d := range m.byID {
		if d.Address == addr {
			cp := *d
			return &cp, nil
		}
	}
	return nil, device.ErrDeviceNotFound
}

func (m *memDeviceRepo) Insert(d *device.Device) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	cp := *d
	m.byID[d.ID] = &cp
	return nil
}

func (m *memDeviceRepo) UpdateStatus(id string, s device.Status) error {
	d, ok := m.byID[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.Status = s
	return nil
}

func (m *memDeviceRepo) UpdateRole(id, roleID string) error {
	d, ok := m.byID[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.RoleID = roleID
	return nil
}

func (m *memDeviceRepo) UpdateAllocatedMB(id string, mb int64) error {
	d, ok := m.byID[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.AllocatedMB = mb
	return nil
}

func (m *memDeviceRepo) UpdateLastSeen(id string, t time.Time) error { return nil }

func (m *memDeviceRepo) UpdateAgentStatus(id string, s device.AgentReachability) error {
	d, ok := m.byID[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.AgentStatus = s
	return nil
}

func (m *memDeviceRepo) UpdateMemoryStats(id string, totalMB, freeMB int64) error { return nil }

func (m *memDeviceRepo) Delete(id string) error {
	if _, ok := m.byID[id]; !ok {
		return device.ErrDeviceNotFound
	}
	delete(m.byID, id)
	return nil
}

func newTestDeviceHandler(t *testing.T) (*DeviceHandler, *memDeviceRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := xlog.New(false)
	b := bus.New(log)
	repo := newMemDeviceRepo()
	reg := registry.New(repo, emptyRoleRepo{}, emptyAllocationRepo{}, emptySettingRepo{}, b, log)
	return NewDeviceHandler(reg, log), repo
}

func TestCreateDeviceRejectsMissingFields(t *testing.T) {
	h, _ := newTestDeviceHandler(t)
	router := gin.New()
	h.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/devices", strings.NewReader(`{"name":""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a request missing ip, got %d", rec.Code)
	}
}

func TestGetUnknownDeviceReturns404(t *testing.T) {
	h, _ := newTestDeviceHandler(t)
	router := gin.New()
	h.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/api/devices/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown device id, got %d", rec.Code)
	}
}

func TestDeleteUnknownDeviceReturns500(t *testing.T) {
	h, _ := newTestDeviceHandler(t)
	router := gin.New()
	h.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodDelete, "/api/devices/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 when the repository rejects an unknown id, got %d", rec.Code)
	}
}
