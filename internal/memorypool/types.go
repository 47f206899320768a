package memorypool

import "github.com/sharedmem/controller/internal/memorypool/providers"

// Provider is an alias for the per-hardware-family polling contract so
// the rest of this package can refer to it without qualifying the
// providers subpackage on every signature.
type Provider = providers.Provider

// Snapshot is a transient per-tick reading from one provider (spec §3
// "Memory Snapshot"). AllocatedMB is left zero until AttributeAllocated
// fills it in for a GET-stats response — it is never persisted.
type Snapshot struct {
	ProviderID  string         `json:"provider_id"`
	Name        string         `json:"name"`
	Kind        providers.Kind `json:"kind"`
	TotalMB     int64          `json:"total_mb"`
	UsedMB      int64          `json:"used_mb"`
	FreeMB      int64          `json:"free_mb"`
	AllocatedMB int64          `json:"allocated_mb"`
}
