package cluster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sharedmem/controller/internal/bus"
	device "github.com/sharedmem/controller/internal/domains/device"
	"github.com/sharedmem/controller/internal/fitplan"
	"github.com/sharedmem/controller/internal/memorypool"
	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/internal/supervisor"
	"github.com/sharedmem/controller/pkg/xlog"
)

// fakeDeviceRepo is a plain device.Repository backed by a fixed map,
// enough to exercise peer resolution without a database.
type fakeDeviceRepo struct {
	byID map[string]*device.Device
}

func (d *fakeDeviceRepo) List() ([]device.Device, error) {
	out := make([]device.Device, 0, len(d.byID))
	for _, dev := range d.byID {
		out = append(out, *dev)
	}
	return out, nil
}
func (d *fakeDeviceRepo) Get(id string) (*device.Device, error) {
	dev, ok := d.byID[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	cp := *dev
	return &cp, nil
}
func (d *fakeDeviceRepo) GetByAddress(address string) (*device.Device, error) {
	return nil, device.ErrDeviceNotFound
}
func (d *fakeDeviceRepo) Insert(dev *device.Device) error                     { return nil }
func (d *fakeDeviceRepo) UpdateStatus(id string, status device.Status) error  { return nil }
func (d *fakeDeviceRepo) UpdateRole(id, roleID string) error                  { return nil }
func (d *fakeDeviceRepo) UpdateAllocatedMB(id string, mb int64) error         { return nil }
func (d *fakeDeviceRepo) UpdateLastSeen(id string, t time.Time) error         { return nil }
func (d *fakeDeviceRepo) UpdateAgentStatus(id string, status device.AgentReachability) error {
	return nil
}
func (d *fakeDeviceRepo) UpdateMemoryStats(id string, totalMB, freeMB int64) error { return nil }
func (d *fakeDeviceRepo) Delete(id string) error                                  { return nil }

type nullRoleRepo struct{}

func (nullRoleRepo) List() ([]device.Role, error)        { return nil, nil }
func (nullRoleRepo) Get(id string) (*device.Role, error) { return nil, device.ErrRoleNotFound }
func (nullRoleRepo) Upsert(r *device.Role) error         { return nil }
func (nullRoleRepo) Delete(id string) error              { return nil }

type nullAllocationRepo struct{}

func (nullAllocationRepo) Insert(a *device.Allocation) error { return nil }
func (nullAllocationRepo) ListForDevice(deviceID string) ([]device.Allocation, error) {
	return nil, nil
}

type nullSettingRepo struct{}

func (nullSettingRepo) Get(key string) (string, bool, error) { return "", false, nil }
func (nullSettingRepo) Set(key, value string) error          { return nil }
func (nullSettingRepo) List() (map[string]string, error)     { return map[string]string{}, nil }

func newTestOrchestrator(t *testing.T, devices map[string]*device.Device) *Orchestrator {
	t.Helper()
	log := xlog.New(false)
	b := bus.New(log)
	reg := registry.New(&fakeDeviceRepo{byID: devices}, nullRoleRepo{}, nullAllocationRepo{}, nullSettingRepo{}, b, log)
	sup := supervisor.New(18281, 18282, "sharedmem-definitely-not-a-real-binary", "sharedmem-definitely-not-a-real-binary", b, log)
	agg := memorypool.NewAggregator(nil, memorypool.RedisOpt{Addr: "127.0.0.1:0"}, b, log)
	return New(reg, sup, agg, log)
}

func writeTempModel(t *testing.T, sizeMB int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gguf")
	if err := os.WriteFile(path, make([]byte, sizeMB*1024*1024), 0o600); err != nil {
		t.Fatalf("writing temp model: %v", err)
	}
	return path
}

func TestModelCheckRejectsTooManyPeers(t *testing.T) {
	o := newTestOrchestrator(t, map[string]*device.Device{})
	peers := make([]string, MaxPeers+1)
	for i := range peers {
		peers[i] = "peer"
	}
	_, err := o.ModelCheck(context.Background(), writeTempModel(t, 1), peers)
	if !errors.Is(err, ErrTooManyPeers) {
		t.Errorf("expected ErrTooManyPeers, got %v", err)
	}
}

func TestModelCheckRejectsUnknownPeer(t *testing.T) {
	o := newTestOrchestrator(t, map[string]*device.Device{})
	_, err := o.ModelCheck(context.Background(), writeTempModel(t, 1), []string{"missing-device"})
	if !errors.Is(err, ErrPeerNotFound) {
		t.Errorf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestModelCheckReportsModelSizeWithNoPeers(t *testing.T) {
	o := newTestOrchestrator(t, map[string]*device.Device{})
	analysis, err := o.ModelCheck(context.Background(), writeTempModel(t, 1), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analysis.FitStatus == "" {
		t.Error("expected a non-empty fit status")
	}
	if analysis.ModelSizeMB != 1 {
		t.Errorf("expected model size of 1MB, got %d", analysis.ModelSizeMB)
	}
}

func TestModelCheckRejectsInvalidPath(t *testing.T) {
	o := newTestOrchestrator(t, map[string]*device.Device{})
	_, err := o.ModelCheck(context.Background(), "relative/path.gguf", nil)
	if !errors.Is(err, fitplan.ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
}

func TestStartInferenceRejectsTooManyPeers(t *testing.T) {
	o := newTestOrchestrator(t, map[string]*device.Device{})
	peers := make([]string, MaxPeers+1)
	for i := range peers {
		peers[i] = "peer"
	}
	_, _, err := o.StartInference(context.Background(), writeTempModel(t, 1), peers, nil, nil)
	if !errors.Is(err, ErrTooManyPeers) {
		t.Errorf("expected ErrTooManyPeers, got %v", err)
	}
}

func TestStartInferenceRejectsUnknownPeer(t *testing.T) {
	o := newTestOrchestrator(t, map[string]*device.Device{})
	_, _, err := o.StartInference(context.Background(), writeTempModel(t, 1), []string{"missing"}, nil, nil)
	if !errors.Is(err, ErrPeerNotFound) {
		t.Errorf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestResolveInferenceParamsDefaultsToLiteralValues(t *testing.T) {
	layers, ctxSize := resolveInferenceParams(nil, nil)
	if layers != defaultNGPULayers {
		t.Errorf("expected default n_gpu_layers of %d, got %d", defaultNGPULayers, layers)
	}
	if ctxSize != defaultCtxSize {
		t.Errorf("expected default ctx_size of %d, got %d", defaultCtxSize, ctxSize)
	}
}

func TestResolveInferenceParamsHonorsCallerOverrides(t *testing.T) {
	layers := 12
	ctx := 8192
	gotLayers, gotCtx := resolveInferenceParams(&layers, &ctx)
	if gotLayers != 12 {
		t.Errorf("expected caller-supplied n_gpu_layers of 12, got %d", gotLayers)
	}
	if gotCtx != 8192 {
		t.Errorf("expected caller-supplied ctx_size of 8192, got %d", gotCtx)
	}
}

func TestStartInferenceDoesNotRejectOnTooLargeFit(t *testing.T) {
	o := newTestOrchestrator(t, map[string]*device.Device{})
	// A model far larger than the (zero, since no provider reported any
	// snapshot) local free MB forces fitplan.TooLarge. Spec §4.6 never
	// gates start-inference on this — only StartAgent failing against a
	// nonexistent binary should stop the call.
	_, analysis, err := o.StartInference(context.Background(), writeTempModel(t, 4096), nil, nil, nil)
	if errors.Is(err, ErrTooManyPeers) || errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("did not expect a peer-related error, got %v", err)
	}
	if analysis.FitStatus != fitplan.TooLarge {
		t.Fatalf("expected the analysis to report TooLarge, got %s", analysis.FitStatus)
	}
}
