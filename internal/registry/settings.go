package registry

import "github.com/sharedmem/controller/internal/config"

// ListSettings and SetSetting implement the §6 settings endpoints. The
// closed allow-list is enforced here rather than in the HTTP layer so
// any future caller (CLI, tests) gets the same guarantee.
func (r *Registry) ListSettings() (map[string]string, error) {
	return r.settings.List()
}

func (r *Registry) SetSetting(key, value string) error {
	if !config.AllowedSettingKeys[key] {
		return ErrUnknownSettingKey
	}
	return r.settings.Set(key, value)
}

// GetSetting exposes the raw setting read used by the inference router
// and cluster orchestrator to resolve backend_type/backend_url/etc.
func (r *Registry) GetSetting(key string) (string, bool, error) {
	return r.settings.Get(key)
}
