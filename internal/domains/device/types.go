// Package device holds the pure domain model for the Device Registry
// (spec §3, §4.3): devices, roles, allocations, and settings, plus the
// repository interfaces the registry service depends on. Mirrors the
// teacher's domains/user split between domain types and repository
// contracts, kept free of GORM so the registry package can be tested
// against an in-memory fake.
package device

import (
	"errors"
	"time"
)

// Status is the device approval-state machine's current state (spec §3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusSuspended Status = "suspended"
	StatusOffline   Status = "offline"
)

// DiscoveryMethod records how a device entered the registry.
type DiscoveryMethod string

const (
	DiscoveryMulticast DiscoveryMethod = "multicast"
	DiscoveryManual    DiscoveryMethod = "manual"
)

// AgentReachability is the last-observed liveness of a peer's agent port.
type AgentReachability string

const (
	AgentOffline    AgentReachability = "offline"
	AgentConnecting AgentReachability = "connecting"
	AgentReady      AgentReachability = "ready"
	AgentError      AgentReachability = "error"
)

// Built-in role identifiers; cannot be deleted (spec §6).
const (
	RoleAdmin = "role-admin"
	RoleUser  = "role-user"
	RoleGuest = "role-guest"
)

// Device is the persistent record of a peer (spec §3).
type Device struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Address         string            `json:"address"`
	MAC             string            `json:"mac,omitempty"`
	Hostname        string            `json:"hostname,omitempty"`
	Platform        string            `json:"platform,omitempty"`
	RoleID          string            `json:"role_id,omitempty"`
	Status          Status            `json:"status"`
	DiscoveryMethod DiscoveryMethod   `json:"discovery_method"`
	AllocatedMB     int64             `json:"allocated_mb"`
	AgentPort       int               `json:"agent_port"`
	AgentStatus     AgentReachability `json:"agent_status"`
	MemoryTotalMB   int64             `json:"memory_total_mb"`
	MemoryFreeMB    int64             `json:"memory_free_mb"`
	FirstSeen       time.Time         `json:"first_seen"`
	LastSeen        time.Time         `json:"last_seen"`
}

// Role is a quota template devices reference (spec §3).
type Role struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	MaxMemoryMB   int64     `json:"max_memory_mb"`
	MayPullModels bool      `json:"may_pull_models"`
	TrustLevel    int       `json:"trust_level"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r Role) IsBuiltin() bool {
	return r.ID == RoleAdmin || r.ID == RoleUser || r.ID == RoleGuest
}

// Allocation is an append-only audit record of a granted reservation.
type Allocation struct {
	ID        string     `json:"id"`
	DeviceID  string     `json:"device_id"`
	MemoryMB  int64      `json:"memory_mb"`
	Provider  string     `json:"provider"`
	GrantedAt time.Time  `json:"granted_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Setting is a string-keyed string-valued configuration row (spec §3, §6).
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var (
	ErrDeviceNotFound  = errors.New("device: not found")
	ErrRoleNotFound    = errors.New("device: role not found")
	ErrRoleBuiltin     = errors.New("device: role is built-in and cannot be deleted")
	ErrNotApproved     = errors.New("device: must be approved before allocating memory")
	ErrQuotaExceeded   = errors.New("device: requested memory exceeds role quota")
	ErrNoRoleAssigned  = errors.New("device: no role assigned")
)

// Repository persists Device rows.
type Repository interface {
	List() ([]Device, error)
	Get(id string) (*Device, error)
	GetByAddress(address string) (*Device, error)
	Insert(d *Device) error
	UpdateStatus(id string, status Status) error
	UpdateRole(id string, roleID string) error
	UpdateAllocatedMB(id string, mb int64) error
	UpdateLastSeen(id string, t time.Time) error
	UpdateAgentStatus(id string, status AgentReachability) error
	UpdateMemoryStats(id string, totalMB, freeMB int64) error
	Delete(id string) error
}

// RoleRepository persists Role rows.
type RoleRepository interface {
	List() ([]Role, error)
	Get(id string) (*Role, error)
	Upsert(r *Role) error
	Delete(id string) error
}

// AllocationRepository persists append-only Allocation rows.
type AllocationRepository interface {
	Insert(a *Allocation) error
	ListForDevice(deviceID string) ([]Allocation, error)
}

// SettingRepository persists Setting rows.
type SettingRepository interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	List() (map[string]string, error)
}
