package registry

import (
	"time"

	"github.com/google/uuid"

	device "github.com/sharedmem/controller/internal/domains/device"
)

// ListRoles, UpsertRole, and DeleteRole implement the §6
// /api/permissions/roles endpoints.
func (r *Registry) ListRoles() ([]device.Role, error) {
	return r.roles.List()
}

func (r *Registry) GetRole(id string) (*device.Role, error) {
	return r.roles.Get(id)
}

// CreateRole assigns a generated id and persists a new role.
func (r *Registry) CreateRole(name string, maxMemoryMB int64, mayPullModels bool, trustLevel int) (*device.Role, error) {
	role := &device.Role{
		ID:            "role-" + uuid.NewString(),
		Name:          name,
		MaxMemoryMB:   maxMemoryMB,
		MayPullModels: mayPullModels,
		TrustLevel:    trustLevel,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.roles.Upsert(role); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRole overwrites an existing role's fields, including built-ins
// (only deletion of built-ins is forbidden, per spec §6).
func (r *Registry) UpdateRole(id, name string, maxMemoryMB int64, mayPullModels bool, trustLevel int) (*device.Role, error) {
	existing, err := r.roles.Get(id)
	createdAt := time.Now().UTC()
	if err == nil {
		createdAt = existing.CreatedAt
	}
	role := &device.Role{
		ID:            id,
		Name:          name,
		MaxMemoryMB:   maxMemoryMB,
		MayPullModels: mayPullModels,
		TrustLevel:    trustLevel,
		CreatedAt:     createdAt,
	}
	if err := r.roles.Upsert(role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole rejects deletion of any built-in role id (spec §6, §7).
func (r *Registry) DeleteRole(id string) error {
	if device.Role{ID: id}.IsBuiltin() {
		return device.ErrRoleBuiltin
	}
	return r.roles.Delete(id)
}
