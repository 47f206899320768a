// Package device holds the GORM entities backing the Device Registry
// and their conversions to/from the domain types in
// internal/domains/device, following the ToDomain/FromDomain split the
// teacher's repository/user package uses.
package device

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/sharedmem/controller/internal/domains/device"
)

// DeviceEntity is the devices table row (spec §3, §6).
type DeviceEntity struct {
	ID              string `gorm:"primaryKey;type:char(36);not null"`
	Name            string `gorm:"type:varchar(255);not null"`
	Address         string `gorm:"uniqueIndex;type:varchar(255);not null"`
	MAC             string `gorm:"column:mac;type:varchar(32)"`
	Hostname        string `gorm:"type:varchar(255)"`
	Platform        string `gorm:"type:varchar(64)"`
	RoleID          string `gorm:"column:role_id;type:varchar(64)"`
	Status          string `gorm:"type:varchar(16);not null;index"`
	DiscoveryMethod string `gorm:"column:discovery_method;type:varchar(16);not null"`
	AllocatedMB     int64  `gorm:"column:allocated_memory_mb;not null;default:0"`
	AgentPort       int    `gorm:"column:agent_port;not null"`
	AgentStatus     string `gorm:"column:agent_status;type:varchar(16);not null;default:offline"`
	MemoryTotalMB   int64  `gorm:"column:memory_total_mb;not null;default:0"`
	MemoryFreeMB    int64  `gorm:"column:memory_free_mb;not null;default:0"`
	FirstSeen       time.Time `gorm:"column:first_seen;not null"`
	LastSeen        time.Time `gorm:"column:last_seen;not null"`
}

func (DeviceEntity) TableName() string { return "devices" }

func (d *DeviceEntity) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

func (d *DeviceEntity) ToDomain() *domain.Device {
	return &domain.Device{
		ID:              d.ID,
		Name:            d.Name,
		Address:         d.Address,
		MAC:             d.MAC,
		Hostname:        d.Hostname,
		Platform:        d.Platform,
		RoleID:          d.RoleID,
		Status:          domain.Status(d.Status),
		DiscoveryMethod: domain.DiscoveryMethod(d.DiscoveryMethod),
		AllocatedMB:     d.AllocatedMB,
		AgentPort:       d.AgentPort,
		AgentStatus:     domain.AgentReachability(d.AgentStatus),
		MemoryTotalMB:   d.MemoryTotalMB,
		MemoryFreeMB:    d.MemoryFreeMB,
		FirstSeen:       d.FirstSeen,
		LastSeen:        d.LastSeen,
	}
}

func (d *DeviceEntity) FromDomain(dev *domain.Device) {
	d.ID = dev.ID
	d.Name = dev.Name
	d.Address = dev.Address
	d.MAC = dev.MAC
	d.Hostname = dev.Hostname
	d.Platform = dev.Platform
	d.RoleID = dev.RoleID
	d.Status = string(dev.Status)
	d.DiscoveryMethod = string(dev.DiscoveryMethod)
	d.AllocatedMB = dev.AllocatedMB
	d.AgentPort = dev.AgentPort
	d.AgentStatus = string(dev.AgentStatus)
	d.MemoryTotalMB = dev.MemoryTotalMB
	d.MemoryFreeMB = dev.MemoryFreeMB
	d.FirstSeen = dev.FirstSeen
	d.LastSeen = dev.LastSeen
}

func NewDeviceEntityFromDomain(dev *domain.Device) *DeviceEntity {
	e := &DeviceEntity{}
	e.FromDomain(dev)
	return e
}

// RoleEntity is the roles table row.
type RoleEntity struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)"`
	Name          string    `gorm:"type:varchar(255);not null"`
	MaxMemoryMB   int64     `gorm:"column:max_memory_mb;not null"`
	MayPullModels bool      `gorm:"column:can_pull_models;not null;default:false"`
	TrustLevel    int       `gorm:"column:trust_level;not null;default:0"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (RoleEntity) TableName() string { return "roles" }

func (r *RoleEntity) ToDomain() *domain.Role {
	return &domain.Role{
		ID:            r.ID,
		Name:          r.Name,
		MaxMemoryMB:   r.MaxMemoryMB,
		MayPullModels: r.MayPullModels,
		TrustLevel:    r.TrustLevel,
		CreatedAt:     r.CreatedAt,
	}
}

func (r *RoleEntity) FromDomain(role *domain.Role) {
	r.ID = role.ID
	r.Name = role.Name
	r.MaxMemoryMB = role.MaxMemoryMB
	r.MayPullModels = role.MayPullModels
	r.TrustLevel = role.TrustLevel
	if !role.CreatedAt.IsZero() {
		r.CreatedAt = role.CreatedAt
	}
}

// AllocationEntity is the allocations table row — append-only.
type AllocationEntity struct {
	ID        string     `gorm:"primaryKey;type:char(36)"`
	DeviceID  string     `gorm:"column:device_id;type:char(36);not null;index"`
	MemoryMB  int64      `gorm:"column:memory_mb;not null"`
	Provider  string     `gorm:"type:varchar(64);not null"`
	GrantedAt time.Time  `gorm:"column:granted_at;not null"`
	RevokedAt *time.Time `gorm:"column:revoked_at"`
}

func (AllocationEntity) TableName() string { return "allocations" }

func (a *AllocationEntity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (a *AllocationEntity) ToDomain() *domain.Allocation {
	return &domain.Allocation{
		ID:        a.ID,
		DeviceID:  a.DeviceID,
		MemoryMB:  a.MemoryMB,
		Provider:  a.Provider,
		GrantedAt: a.GrantedAt,
		RevokedAt: a.RevokedAt,
	}
}

func (a *AllocationEntity) FromDomain(alloc *domain.Allocation) {
	a.ID = alloc.ID
	a.DeviceID = alloc.DeviceID
	a.MemoryMB = alloc.MemoryMB
	a.Provider = alloc.Provider
	a.GrantedAt = alloc.GrantedAt
	a.RevokedAt = alloc.RevokedAt
}

// SettingEntity is the settings table row.
type SettingEntity struct {
	Key   string `gorm:"primaryKey;type:varchar(64)"`
	Value string `gorm:"type:text;not null"`
}

func (SettingEntity) TableName() string { return "settings" }
