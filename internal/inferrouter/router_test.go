package inferrouter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sharedmem/controller/internal/bus"
	device "github.com/sharedmem/controller/internal/domains/device"
	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/internal/supervisor"
	"github.com/sharedmem/controller/pkg/xlog"
)

type nullDeviceRepo struct{}

func (nullDeviceRepo) List() ([]device.Device, error)                  { return nil, nil }
func (nullDeviceRepo) Get(id string) (*device.Device, error)           { return nil, device.ErrDeviceNotFound }
func (nullDeviceRepo) GetByAddress(a string) (*device.Device, error)   { return nil, device.ErrDeviceNotFound }
func (nullDeviceRepo) Insert(d *device.Device) error                   { return nil }
func (nullDeviceRepo) UpdateStatus(id string, s device.Status) error   { return nil }
func (nullDeviceRepo) UpdateRole(id, roleID string) error              { return nil }
func (nullDeviceRepo) UpdateAllocatedMB(id string, mb int64) error     { return nil }
func (nullDeviceRepo) UpdateLastSeen(id string, t time.Time) error     { return nil }
func (nullDeviceRepo) UpdateAgentStatus(id string, s device.AgentReachability) error {
	return nil
}
func (nullDeviceRepo) UpdateMemoryStats(id string, totalMB, freeMB int64) error { return nil }
func (nullDeviceRepo) Delete(id string) error                                  { return nil }

type nullRoleRepo struct{}

func (nullRoleRepo) List() ([]device.Role, error)        { return nil, nil }
func (nullRoleRepo) Get(id string) (*device.Role, error) { return nil, device.ErrRoleNotFound }
func (nullRoleRepo) Upsert(r *device.Role) error         { return nil }
func (nullRoleRepo) Delete(id string) error              { return nil }

type nullAllocationRepo struct{}

func (nullAllocationRepo) Insert(a *device.Allocation) error { return nil }
func (nullAllocationRepo) ListForDevice(id string) ([]device.Allocation, error) {
	return nil, nil
}

// memSettingRepo is an in-memory device.SettingRepository, enough to
// drive the backend_type/backend_url routing rule under test.
type memSettingRepo struct {
	values map[string]string
}

func newMemSettingRepo() *memSettingRepo { return &memSettingRepo{values: map[string]string{}} }

func (m *memSettingRepo) Get(key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}
func (m *memSettingRepo) Set(key, value string) error {
	m.values[key] = value
	return nil
}
func (m *memSettingRepo) List() (map[string]string, error) {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func newTestRouter(t *testing.T, settings *memSettingRepo) *Router {
	t.Helper()
	log := xlog.New(false)
	b := bus.New(log)
	reg := registry.New(nullDeviceRepo{}, nullRoleRepo{}, nullAllocationRepo{}, settings, b, log)
	sup := supervisor.New(19281, 19282, "sharedmem-definitely-not-a-real-binary", "sharedmem-definitely-not-a-real-binary", b, log)
	return New(sup, reg, log)
}

func TestListModelsFallsBackWhenLocalEngineNotRunning(t *testing.T) {
	router := newTestRouter(t, newMemSettingRepo())

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	router.ListModels(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with an empty model list, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected the empty OpenAI-shaped list, got %s", rec.Body.String())
	}
}

func TestListModelsFallsBackWhenNoBackendConfigured(t *testing.T) {
	settings := newMemSettingRepo()
	settings.values["backend_type"] = "external"
	router := newTestRouter(t, settings)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	router.ListModels(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with an empty model list, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected the empty OpenAI-shaped list, got %s", rec.Body.String())
	}
}

func TestServeProxyReturns503WhenEngineNotRunning(t *testing.T) {
	router := newTestRouter(t, newMemSettingRepo())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ChatCompletions(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the local engine isn't running, got %d", rec.Code)
	}
}

func TestServeProxyReturns503WhenExternalBackendUnconfigured(t *testing.T) {
	settings := newMemSettingRepo()
	settings.values["backend_type"] = "external"
	router := newTestRouter(t, settings)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ChatCompletions(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when backend_url is unset, got %d", rec.Code)
	}
}

func TestServeProxyForwardsToExternalBackend(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("expected the configured api key to be forwarded, got %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	settings := newMemSettingRepo()
	settings.values["backend_type"] = "external"
	settings.values["backend_url"] = upstream.URL
	settings.values["backend_api_key"] = "sk-test"
	router := newTestRouter(t, settings)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ChatCompletions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from the forwarded request, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Errorf("expected the upstream body to be streamed back, got %s", rec.Body.String())
	}
}
