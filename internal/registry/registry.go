// Package registry implements the Device Registry (C3): the
// approval-state machine, role-bounded memory allocation, and live
// reachability probing described in spec §4.3. Transitions are driven
// through a looplab/fsm instance per call, the way the teacher's
// sys_manager/runtime wraps UserRuntime around a *fsm.FSM — built fresh
// from the device's persisted state and used only to validate the
// transition; the caller then persists the new state and only after that
// publishes the bus event, so "persisted state precedes emission"
// (spec §8) always holds.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/looplab/fsm"
	"golang.org/x/sync/errgroup"

	"github.com/sharedmem/controller/internal/bus"
	device "github.com/sharedmem/controller/internal/domains/device"
	"github.com/sharedmem/controller/pkg/xlog"
)

const (
	evApprove = "approve"
	evDeny    = "deny"
	evSuspend = "suspend"
	evOffline = "offline"

	defaultAgentPort = 8181
	probeTimeout     = 2 * time.Second
)

// Registry composes the device/role/allocation/setting repositories
// into the registration, approval, allocation, and probing operations
// spec §4.3 describes.
type Registry struct {
	devices     device.Repository
	roles       device.RoleRepository
	allocations device.AllocationRepository
	settings    device.SettingRepository
	bus         *bus.Bus
	log         *xlog.Logger
}

func New(devices device.Repository, roles device.RoleRepository, allocations device.AllocationRepository, settings device.SettingRepository, b *bus.Bus, log *xlog.Logger) *Registry {
	return &Registry{
		devices:     devices,
		roles:       roles,
		allocations: allocations,
		settings:    settings,
		bus:         b,
		log:         log.Named("registry"),
	}
}

func newDeviceFSM(current device.Status) *fsm.FSM {
	return fsm.NewFSM(string(current), fsm.Events{
		{Name: evApprove, Src: []string{string(device.StatusPending)}, Dst: string(device.StatusApproved)},
		{Name: evDeny, Src: []string{string(device.StatusPending)}, Dst: string(device.StatusDenied)},
		{Name: evSuspend, Src: []string{string(device.StatusApproved)}, Dst: string(device.StatusSuspended)},
		{Name: evOffline, Src: []string{string(device.StatusApproved)}, Dst: string(device.StatusOffline)},
	}, fsm.Callbacks{})
}

// Register implements spec §4.3's registration rule: dedupe on address,
// else auto-approve or park pending per trust_local_network.
func (r *Registry) Register(name, address, mac string, method device.DiscoveryMethod) (*device.Device, error) {
	existing, err := r.devices.GetByAddress(address)
	if err != nil && err != device.ErrDeviceNotFound {
		return nil, err
	}
	now := time.Now().UTC()
	if existing != nil {
		if err := r.devices.UpdateLastSeen(existing.ID, now); err != nil {
			return nil, err
		}
		existing.LastSeen = now
		return existing, nil
	}

	trustAll := r.settingBool("trust_local_network", false)
	defaultRole := r.settingString("default_role", "guest")
	roleID := roleIDFromKey(defaultRole)

	d := &device.Device{
		Name:            name,
		Address:         address,
		MAC:             mac,
		Status:          device.StatusPending,
		DiscoveryMethod: method,
		AgentPort:       defaultAgentPort,
		AgentStatus:     device.AgentOffline,
		FirstSeen:       now,
		LastSeen:        now,
	}
	if trustAll {
		d.Status = device.StatusApproved
		d.RoleID = roleID
	}

	if err := r.devices.Insert(d); err != nil {
		return nil, err
	}

	if trustAll {
		r.bus.Publish(bus.New(bus.EventDeviceApproved, bus.DeviceApprovedPayload{
			DeviceID: d.ID, Name: d.Name, Address: d.Address, RoleID: d.RoleID,
		}))
	} else {
		r.bus.Publish(bus.New(bus.EventDevicePendingApproval, bus.DevicePendingApprovalPayload{
			DeviceID: d.ID, Name: d.Name, Address: d.Address, DiscoveryMethod: string(method),
		}))
	}
	return d, nil
}

// roleIDFromKey maps a bare role key ("guest") to the built-in id
// ("role-guest") the way default_role is stored (spec §6 default
// "guest"); any other value is treated as an already-qualified role id.
func roleIDFromKey(key string) string {
	switch key {
	case "guest", device.RoleGuest:
		return device.RoleGuest
	case "user", device.RoleUser:
		return device.RoleUser
	case "admin", device.RoleAdmin:
		return device.RoleAdmin
	default:
		return key
	}
}

// Approve transitions pending -> approved and assigns a role.
func (r *Registry) Approve(id, roleID string) (*device.Device, error) {
	d, err := r.devices.Get(id)
	if err != nil {
		return nil, err
	}
	if roleID == "" {
		roleID = device.RoleGuest
	}

	f := newDeviceFSM(d.Status)
	if err := f.Event(context.Background(), evApprove); err != nil {
		return nil, fmt.Errorf("approve device %s: %w", id, err)
	}

	if err := r.devices.UpdateStatus(id, device.StatusApproved); err != nil {
		return nil, err
	}
	if err := r.devices.UpdateRole(id, roleID); err != nil {
		return nil, err
	}
	d.Status = device.StatusApproved
	d.RoleID = roleID

	r.bus.Publish(bus.New(bus.EventDeviceApproved, bus.DeviceApprovedPayload{
		DeviceID: d.ID, Name: d.Name, Address: d.Address, RoleID: roleID,
	}))
	return d, nil
}

// Deny transitions the device to denied.
func (r *Registry) Deny(id string) error {
	d, err := r.devices.Get(id)
	if err != nil {
		return err
	}
	f := newDeviceFSM(d.Status)
	if err := f.Event(context.Background(), evDeny); err != nil {
		return fmt.Errorf("deny device %s: %w", id, err)
	}
	if err := r.devices.UpdateStatus(id, device.StatusDenied); err != nil {
		return err
	}
	r.bus.Publish(bus.New(bus.EventDeviceDenied, bus.DeviceDeniedPayload{DeviceID: id}))
	return nil
}

// Allocate grants memoryMB to an approved device, enforcing its role's
// cap, and records an append-only allocation row (spec §4.3, invariant
// in §3: allocated MB never exceeds the role cap).
func (r *Registry) Allocate(id string, memoryMB int64) error {
	d, err := r.devices.Get(id)
	if err != nil {
		return err
	}
	if d.Status != device.StatusApproved {
		return device.ErrNotApproved
	}
	if d.RoleID == "" {
		return device.ErrNoRoleAssigned
	}
	role, err := r.roles.Get(d.RoleID)
	if err != nil {
		return err
	}
	if memoryMB > role.MaxMemoryMB {
		return device.ErrQuotaExceeded
	}

	if err := r.devices.UpdateAllocatedMB(id, memoryMB); err != nil {
		return err
	}

	// Provider is fixed to a placeholder pending the open question in
	// spec §9 ("allocation accounting vs. provider attribution").
	alloc := &device.Allocation{
		DeviceID:  id,
		MemoryMB:  memoryMB,
		Provider:  "system_ram",
		GrantedAt: time.Now().UTC(),
	}
	if err := r.allocations.Insert(alloc); err != nil {
		return err
	}

	r.bus.Publish(bus.New(bus.EventMemoryAllocated, bus.MemoryAllocatedPayload{
		DeviceID: id, MemoryMB: memoryMB,
	}))
	return nil
}

// List, Get, and Delete expose plain CRUD over the repository for the
// HTTP layer.
func (r *Registry) List() ([]device.Device, error)     { return r.devices.List() }
func (r *Registry) Get(id string) (*device.Device, error) { return r.devices.Get(id) }
func (r *Registry) Delete(id string) error              { return r.devices.Delete(id) }

// TotalAllocatedMB sums AllocatedMB across every approved device, the
// figure GET /api/gpu distributes across providers (spec §4.2).
func (r *Registry) TotalAllocatedMB() (int64, error) {
	devices, err := r.devices.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, d := range devices {
		if d.Status == device.StatusApproved {
			total += d.AllocatedMB
		}
	}
	return total, nil
}

// RegisterManual is the POST /api/devices entry point — same rule as
// Register, with discovery method fixed to "manual".
func (r *Registry) RegisterManual(name, address, mac string) (*device.Device, error) {
	return r.Register(name, address, mac, device.DiscoveryManual)
}

// Probe attempts a TCP connect to (address, agentPort); on success it
// fetches the peer's own /api/gpu status and persists total/free MB.
// On failure the previous reachability value is retained (spec §4.3).
func (r *Registry) Probe(ctx context.Context, d device.Device) device.AgentReachability {
	dialer := net.Dialer{Timeout: probeTimeout}
	addr := fmt.Sprintf("%s:%d", d.Address, d.AgentPort)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		_ = r.devices.UpdateAgentStatus(d.ID, d.AgentStatus)
		return d.AgentStatus
	}
	_ = conn.Close()

	_ = r.devices.UpdateAgentStatus(d.ID, device.AgentReady)

	if total, free, ok := fetchRemoteMemory(ctx, d.Address); ok {
		_ = r.devices.UpdateMemoryStats(d.ID, total, free)
	}
	return device.AgentReady
}

// ProbeAll probes every device in the given list in parallel via errgroup,
// matching spec §4.3's "probes run in parallel when scanning multiple
// devices". Returns the updated device list in the same order given.
func (r *Registry) ProbeAll(ctx context.Context, devices []device.Device) []device.Device {
	out := make([]device.Device, len(devices))
	copy(out, devices)

	g, gctx := errgroup.WithContext(ctx)
	for i := range out {
		i := i
		g.Go(func() error {
			status := r.Probe(gctx, out[i])
			out[i].AgentStatus = status
			if updated, err := r.devices.Get(out[i].ID); err == nil {
				out[i] = *updated
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func fetchRemoteMemory(ctx context.Context, address string) (totalMB, freeMB int64, ok bool) {
	client := http.Client{Timeout: probeTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s:8080/api/gpu", address), nil)
	if err != nil {
		return 0, 0, false
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, false
	}

	var payload struct {
		Providers []struct {
			TotalMB int64 `json:"total_mb"`
			FreeMB  int64 `json:"free_mb"`
		} `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || len(payload.Providers) == 0 {
		return 0, 0, false
	}
	for _, p := range payload.Providers {
		totalMB += p.TotalMB
		freeMB += p.FreeMB
	}
	if totalMB == 0 {
		return 0, 0, false
	}
	return totalMB, freeMB, true
}

func (r *Registry) settingString(key, fallback string) string {
	v, ok, err := r.settings.Get(key)
	if err != nil || !ok {
		return fallback
	}
	return v
}

func (r *Registry) settingBool(key string, fallback bool) bool {
	v, ok, err := r.settings.Get(key)
	if err != nil || !ok {
		return fallback
	}
	return v == "true"
}
