// Package database opens the embedded relational store and runs its
// migrations, the way the teacher's internal/db.InitDB wires a GORM
// connection — pure-Go sqlite (glebarez/sqlite) here instead of
// MySQL, since this controller ships as a single-host embedded
// service with no external DB server to point at (see DESIGN.md).
package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	devicedomain "github.com/sharedmem/controller/internal/domains/device"
	deviceRepo "github.com/sharedmem/controller/internal/repository/device"
)

// Open connects to the sqlite file at path, applies AutoMigrate for the
// devices/roles/allocations/settings tables, and configures the
// connection pool per spec §5 (~10 connections).
func Open(path string, poolSize int) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(poolSize)
	sqlDB.SetMaxIdleConns(poolSize)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&deviceRepo.DeviceEntity{},
		&deviceRepo.RoleEntity{},
		&deviceRepo.AllocationEntity{},
		&deviceRepo.SettingEntity{},
	); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	return db, nil
}

// SeedBuiltins ensures the three built-in roles and the default runtime
// settings exist, matching §6's fixed role ids and the closed settings
// key set. Safe to call on every startup.
func SeedBuiltins(db *gorm.DB, defaultSettings map[string]string) error {
	builtinRoles := []deviceRepo.RoleEntity{
		{ID: devicedomain.RoleAdmin, Name: "Admin", MaxMemoryMB: 1 << 30, MayPullModels: true, TrustLevel: 100},
		{ID: devicedomain.RoleUser, Name: "User", MaxMemoryMB: 16384, MayPullModels: true, TrustLevel: 50},
		{ID: devicedomain.RoleGuest, Name: "Guest", MaxMemoryMB: 4096, MayPullModels: false, TrustLevel: 10},
	}
	for _, r := range builtinRoles {
		var existing deviceRepo.RoleEntity
		err := db.Where("id = ?", r.ID).First(&existing).Error
		if err == nil {
			continue
		}
		r.CreatedAt = time.Now().UTC()
		if err := db.Create(&r).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", r.ID, err)
		}
	}

	for key, value := range defaultSettings {
		var existing deviceRepo.SettingEntity
		err := db.Where("key = ?", key).First(&existing).Error
		if err == nil {
			continue
		}
		if err := db.Create(&deviceRepo.SettingEntity{Key: key, Value: value}).Error; err != nil {
			return fmt.Errorf("seed setting %s: %w", key, err)
		}
	}
	return nil
}
