package device

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "github.com/sharedmem/controller/internal/domains/device"
)

// GormDeviceRepo implements domain.Repository over GORM, converting
// between DeviceEntity and domain.Device the way GormUserRepo does.
type GormDeviceRepo struct {
	db *gorm.DB
}

func NewGormDeviceRepo(db *gorm.DB) domain.Repository {
	return &GormDeviceRepo{db: db}
}

func (g *GormDeviceRepo) List() ([]domain.Device, error) {
	var entities []DeviceEntity
	if err := g.db.Order("first_seen DESC").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make([]domain.Device, len(entities))
	for i := range entities {
		out[i] = *entities[i].ToDomain()
	}
	return out, nil
}

func (g *GormDeviceRepo) Get(id string) (*domain.Device, error) {
	var e DeviceEntity
	if err := g.db.Where("id = ?", id).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return e.ToDomain(), nil
}

func (g *GormDeviceRepo) GetByAddress(address string) (*domain.Device, error) {
	var e DeviceEntity
	if err := g.db.Where("address = ?", address).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("get device by address: %w", err)
	}
	return e.ToDomain(), nil
}

func (g *GormDeviceRepo) Insert(d *domain.Device) error {
	entity := NewDeviceEntityFromDomain(d)
	if err := g.db.Create(entity).Error; err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	*d = *entity.ToDomain()
	return nil
}

func (g *GormDeviceRepo) UpdateStatus(id string, status domain.Status) error {
	return g.updateColumn(id, "status", string(status))
}

func (g *GormDeviceRepo) UpdateRole(id string, roleID string) error {
	return g.updateColumn(id, "role_id", roleID)
}

func (g *GormDeviceRepo) UpdateAllocatedMB(id string, mb int64) error {
	return g.updateColumn(id, "allocated_memory_mb", mb)
}

func (g *GormDeviceRepo) UpdateLastSeen(id string, t time.Time) error {
	return g.updateColumn(id, "last_seen", t)
}

func (g *GormDeviceRepo) UpdateAgentStatus(id string, status domain.AgentReachability) error {
	return g.updateColumn(id, "agent_status", string(status))
}

func (g *GormDeviceRepo) UpdateMemoryStats(id string, totalMB, freeMB int64) error {
	return g.db.Model(&DeviceEntity{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"memory_total_mb": totalMB,
			"memory_free_mb":  freeMB,
		}).Error
}

func (g *GormDeviceRepo) Delete(id string) error {
	res := g.db.Where("id = ?", id).Delete(&DeviceEntity{})
	if res.Error != nil {
		return fmt.Errorf("delete device: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrDeviceNotFound
	}
	return nil
}

func (g *GormDeviceRepo) updateColumn(id, col string, val interface{}) error {
	res := g.db.Model(&DeviceEntity{}).Where("id = ?", id).Update(col, val)
	if res.Error != nil {
		return fmt.Errorf("update device %s: %w", col, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrDeviceNotFound
	}
	return nil
}

// GormRoleRepo implements domain.RoleRepository.
type GormRoleRepo struct {
	db *gorm.DB
}

func NewGormRoleRepo(db *gorm.DB) domain.RoleRepository {
	return &GormRoleRepo{db: db}
}

func (g *GormRoleRepo) List() ([]domain.Role, error) {
	var entities []RoleEntity
	if err := g.db.Order("trust_level DESC").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	out := make([]domain.Role, len(entities))
	for i := range entities {
		out[i] = *entities[i].ToDomain()
	}
	return out, nil
}

func (g *GormRoleRepo) Get(id string) (*domain.Role, error) {
	var e RoleEntity
	if err := g.db.Where("id = ?", id).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return e.ToDomain(), nil
}

func (g *GormRoleRepo) Upsert(r *domain.Role) error {
	entity := &RoleEntity{}
	entity.FromDomain(r)
	if err := g.db.Save(entity).Error; err != nil {
		return fmt.Errorf("upsert role: %w", err)
	}
	*r = *entity.ToDomain()
	return nil
}

func (g *GormRoleRepo) Delete(id string) error {
	if err := g.db.Where("id = ?", id).Delete(&RoleEntity{}).Error; err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

// GormAllocationRepo implements domain.AllocationRepository.
type GormAllocationRepo struct {
	db *gorm.DB
}

func NewGormAllocationRepo(db *gorm.DB) domain.AllocationRepository {
	return &GormAllocationRepo{db: db}
}

func (g *GormAllocationRepo) Insert(a *domain.Allocation) error {
	entity := &AllocationEntity{}
	entity.FromDomain(a)
	if err := g.db.Create(entity).Error; err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}
	*a = *entity.ToDomain()
	return nil
}

func (g *GormAllocationRepo) ListForDevice(deviceID string) ([]domain.Allocation, error) {
	var entities []AllocationEntity
	if err := g.db.Where("device_id = ?", deviceID).Order("granted_at DESC").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	out := make([]domain.Allocation, len(entities))
	for i := range entities {
		out[i] = *entities[i].ToDomain()
	}
	return out, nil
}

// GormSettingRepo implements domain.SettingRepository.
type GormSettingRepo struct {
	db *gorm.DB
}

func NewGormSettingRepo(db *gorm.DB) domain.SettingRepository {
	return &GormSettingRepo{db: db}
}

func (g *GormSettingRepo) Get(key string) (string, bool, error) {
	var e SettingEntity
	if err := g.db.Where("key = ?", key).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return e.Value, true, nil
}

func (g *GormSettingRepo) Set(key, value string) error {
	entity := SettingEntity{Key: key, Value: value}
	err := g.db.Save(&entity).Error
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func (g *GormSettingRepo) List() (map[string]string, error) {
	var entities []SettingEntity
	if err := g.db.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	out := make(map[string]string, len(entities))
	for _, e := range entities {
		out[e.Key] = e.Value
	}
	return out, nil
}
