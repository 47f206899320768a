package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sharedmem/controller/internal/bus"
	device "github.com/sharedmem/controller/internal/domains/device"
	"github.com/sharedmem/controller/pkg/xlog"
)

// fakeDeviceRepo is a minimal in-memory device.Repository, letting the
// registry's approval/allocation logic be exercised without a database.
type fakeDeviceRepo struct {
	byID map[string]*device.Device
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{byID: map[string]*device.Device{}}
}

func (f *fakeDeviceRepo) List() ([]device.Device, error) {
	out := make([]device.Device, 0, len(f.byID))
	for _, d := range f.byID {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeDeviceRepo) Get(id string) (*device.Device, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDeviceRepo) GetByAddress(address string) (*device.Device, error) {
	for _, d := range f.byID {
		if d.Address == address {
			cp := *d
			return &cp, nil
		}
	}
	return nil, device.ErrDeviceNotFound
}

func (f *fakeDeviceRepo) Insert(d *device.Device) error {
	d.ID = uuid.NewString()
	cp := *d
	f.byID[d.ID] = &cp
	return nil
}

func (f *fakeDeviceRepo) UpdateStatus(id string, status device.Status) error {
	d, ok := f.byID[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.Status = status
	return nil
}

func (f *fakeDeviceRepo) UpdateRole(id, roleID string) error {
	d, ok := f.byID[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.RoleID = roleID
	return nil
}

func (f *fakeDeviceRepo) UpdateAllocatedMB(id string, mb int64) error {
	d, ok := f.byID[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.AllocatedMB = mb
	return nil
}

func (f *fakeDeviceRepo) UpdateLastSeen(id string, t time.Time) error {
	d, ok := f.byID[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.LastSeen = t
	return nil
}

func (f *fakeDeviceRepo) UpdateAgentStatus(id string, status device.AgentReachability) error {
	d, ok := f.byID[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.AgentStatus = status
	return nil
}

func (f *fakeDeviceRepo) UpdateMemoryStats(id string, totalMB, freeMB int64) error {
	d, ok := f.byID[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.MemoryTotalMB = totalMB
	d.MemoryFreeMB = freeMB
	return nil
}

func (f *fakeDeviceRepo) Delete(id string) error {
	if _, ok := f.byID[id]; !ok {
		return device.ErrDeviceNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeRoleRepo struct {
	byID map[string]*device.Role
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{byID: map[string]*device.Role{
		device.RoleAdmin: {ID: device.RoleAdmin, Name: "admin", MaxMemoryMB: 1 << 20, TrustLevel: 3},
		device.RoleUser:  {ID: device.RoleUser, Name: "user", MaxMemoryMB: 8192, TrustLevel: 2},
		device.RoleGuest: {ID: device.RoleGuest, Name: "guest", MaxMemoryMB: 2048, TrustLevel: 1},
	}}
}

func (f *fakeRoleRepo) List() ([]device.Role, error) {
	out := make([]device.Role, 0, len(f.byID))
	for _, r := range f.byID {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRoleRepo) Get(id string) (*device.Role, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, device.ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRoleRepo) Upsert(r *device.Role) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	cp := *r
	f.byID[r.ID] = &cp
	return nil
}

func (f *fakeRoleRepo) Delete(id string) error {
	if _, ok := f.byID[id]; !ok {
		return device.ErrRoleNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeAllocationRepo struct {
	rows []device.Allocation
}

func (f *fakeAllocationRepo) Insert(a *device.Allocation) error {
	a.ID = uuid.NewString()
	f.rows = append(f.rows, *a)
	return nil
}

func (f *fakeAllocationRepo) ListForDevice(deviceID string) ([]device.Allocation, error) {
	var out []device.Allocation
	for _, a := range f.rows {
		if a.DeviceID == deviceID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeSettingRepo struct {
	values map[string]string
}

func newFakeSettingRepo() *fakeSettingRepo {
	return &fakeSettingRepo{values: map[string]string{}}
}

func (f *fakeSettingRepo) Get(key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeSettingRepo) Set(key, value string) error {
	f.values[key] = value
	return nil
}

func (f *fakeSettingRepo) List() (map[string]string, error) {
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

func newTestRegistry() (*Registry, *fakeDeviceRepo, *fakeSettingRepo) {
	devices := newFakeDeviceRepo()
	roles := newFakeRoleRepo()
	allocations := &fakeAllocationRepo{}
	settings := newFakeSettingRepo()
	b := bus.New(xlog.New(false))
	return New(devices, roles, allocations, settings, b, xlog.New(false)), devices, settings
}

func TestRegisterParksPendingByDefault(t *testing.T) {
	reg, _, _ := newTestRegistry()
	d, err := reg.Register("laptop", "10.0.0.5", "", device.DiscoveryManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != device.StatusPending {
		t.Errorf("expected pending status by default, got %s", d.Status)
	}
}

func TestRegisterAutoApprovesWhenTrusted(t *testing.T) {
	reg, _, settings := newTestRegistry()
	_ = settings.Set("trust_local_network", "true")

	d, err := reg.Register("laptop", "10.0.0.6", "", device.DiscoveryMulticast)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != device.StatusApproved {
		t.Errorf("expected auto-approval when trust_local_network is set, got %s", d.Status)
	}
	if d.RoleID != device.RoleGuest {
		t.Errorf("expected default role guest, got %s", d.RoleID)
	}
}

func TestRegisterDuplicateAddressIsIdempotent(t *testing.T) {
	reg, devices, _ := newTestRegistry()
	first, err := reg.Register("laptop", "10.0.0.7", "", device.DiscoveryManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := reg.Register("laptop-renamed", "10.0.0.7", "", device.DiscoveryManual)
	if err != nil {
		t.Fatalf("unexpected error on re-register: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected re-registering the same address to return the same device id, got %s vs %s", first.ID, second.ID)
	}
	if len(devices.byID) != 1 {
		t.Errorf("expected exactly one stored device, got %d", len(devices.byID))
	}
}

func TestApproveTransitionsPendingToApproved(t *testing.T) {
	reg, _, _ := newTestRegistry()
	d, _ := reg.Register("laptop", "10.0.0.8", "", device.DiscoveryManual)

	approved, err := reg.Approve(d.ID, device.RoleUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approved.Status != device.StatusApproved || approved.RoleID != device.RoleUser {
		t.Errorf("unexpected post-approve state: %+v", approved)
	}
}

func TestApproveRejectsNonPendingDevice(t *testing.T) {
	reg, _, _ := newTestRegistry()
	d, _ := reg.Register("laptop", "10.0.0.9", "", device.DiscoveryManual)
	if _, err := reg.Approve(d.ID, device.RoleUser); err != nil {
		t.Fatalf("unexpected error on first approve: %v", err)
	}
	if _, err := reg.Approve(d.ID, device.RoleUser); err == nil {
		t.Error("expected approving an already-approved device to fail the state machine")
	}
}

func TestDenyTransitionsPendingToDenied(t *testing.T) {
	reg, _, _ := newTestRegistry()
	d, _ := reg.Register("laptop", "10.0.0.10", "", device.DiscoveryManual)
	if err := reg.Deny(d.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := reg.Get(d.ID)
	if got.Status != device.StatusDenied {
		t.Errorf("expected denied status, got %s", got.Status)
	}
}

func TestAllocateRejectsUnapprovedDevice(t *testing.T) {
	reg, _, _ := newTestRegistry()
	d, _ := reg.Register("laptop", "10.0.0.11", "", device.DiscoveryManual)
	if err := reg.Allocate(d.ID, 1024); err != device.ErrNotApproved {
		t.Errorf("expected ErrNotApproved, got %v", err)
	}
}

func TestAllocateEnforcesRoleQuota(t *testing.T) {
	reg, _, _ := newTestRegistry()
	d, _ := reg.Register("laptop", "10.0.0.12", "", device.DiscoveryManual)
	if _, err := reg.Approve(d.ID, device.RoleGuest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// role-guest caps at 2048MB in the fake role repo.
	if err := reg.Allocate(d.ID, 4096); err != device.ErrQuotaExceeded {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
	if err := reg.Allocate(d.ID, 1024); err != nil {
		t.Errorf("expected allocation within quota to succeed, got %v", err)
	}
}

func TestTotalAllocatedMBSumsOnlyApproved(t *testing.T) {
	reg, _, _ := newTestRegistry()
	approved, _ := reg.Register("laptop", "10.0.0.13", "", device.DiscoveryManual)
	_, _ = reg.Approve(approved.ID, device.RoleGuest)
	_ = reg.Allocate(approved.ID, 1024)

	pending, _ := reg.Register("phone", "10.0.0.14", "", device.DiscoveryManual)
	_ = pending // left pending, never allocated

	total, err := reg.TotalAllocatedMB()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1024 {
		t.Errorf("expected total allocated of 1024, got %d", total)
	}
}

func TestRunDiscoveryPipelineAutoRegisters(t *testing.T) {
	reg, devices, _ := newTestRegistry()
	b := bus.New(xlog.New(false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = reg.RunDiscoveryPipeline(ctx, b)
		close(done)
	}()

	b.Publish(bus.New(bus.EventDeviceDiscovered, bus.DeviceDiscoveredPayload{
		Name: "pi", IP: "10.0.0.50", Method: "multicast",
	}))

	deadline := time.After(2 * time.Second)
	for {
		found := false
		for _, d := range devices.byID {
			if d.Address == "10.0.0.50" {
				found = true
			}
		}
		if found {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for discovery pipeline to register the device")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
