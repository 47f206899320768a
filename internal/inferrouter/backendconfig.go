// Package inferrouter proxies OpenAI-shaped inference traffic to either
// the locally-supervised engine or a configured external backend
// (spec §4.7), grounded on the teacher's gin-handler request/response
// shaping and on original_source/backend/src/api/backends.rs for the
// masked-credential settings contract.
package inferrouter

import (
	"github.com/sharedmem/controller/internal/registry"
)

// BackendConfig is the client-facing shape of the backend_* settings
// group. APIKey is only ever populated as a request field on Set; Get
// always masks it down to APIKeySet.
type BackendConfig struct {
	BackendType string `json:"backend_type"`
	URL         string `json:"url"`
	Model       string `json:"model"`
	APIKey      string `json:"api_key,omitempty"`
	APIKeySet   bool   `json:"api_key_set"`
}

const placeholderAPIKey = "****"

// GetBackendConfig reads the backend_* settings group and masks the API
// key down to a boolean, never echoing the stored secret (spec §4.7,
// carried from api/backends.rs's "SECURITY: never return the actual key").
func GetBackendConfig(reg *registry.Registry) BackendConfig {
	backendType, _, _ := reg.GetSetting("backend_type")
	if backendType == "" {
		backendType = backendTypeLocal
	}
	url, _, _ := reg.GetSetting("backend_url")
	model, _, _ := reg.GetSetting("backend_model")
	apiKey, _, _ := reg.GetSetting("backend_api_key")

	return BackendConfig{
		BackendType: backendType,
		URL:         url,
		Model:       model,
		APIKeySet:   apiKey != "",
	}
}

// SetBackendConfig persists the backend_* settings group. The API key is
// only overwritten when the caller sends a non-empty value that isn't
// the masked placeholder the frontend echoes back unchanged — otherwise
// the previously stored key is left untouched (spec §4.7).
func SetBackendConfig(reg *registry.Registry, cfg BackendConfig) error {
	if err := reg.SetSetting("backend_type", cfg.BackendType); err != nil {
		return err
	}
	if err := reg.SetSetting("backend_url", cfg.URL); err != nil {
		return err
	}
	if err := reg.SetSetting("backend_model", cfg.Model); err != nil {
		return err
	}
	if cfg.APIKey != "" && cfg.APIKey != placeholderAPIKey {
		if err := reg.SetSetting("backend_api_key", cfg.APIKey); err != nil {
			return err
		}
	}
	return nil
}
