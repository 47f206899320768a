// Package providers holds one memory-reading implementation per
// hardware family. Each file here is grounded on the corresponding
// provider in the original implementation's memory package, restated
// as idiomatic Go with OS-gated detection split into build-tagged
// files where the original used #[cfg(target_os = ...)].
package providers

import "context"

// Kind identifies what a Provider represents.
type Kind string

const (
	KindNvidia       Kind = "nvidia"
	KindAMD          Kind = "amd"
	KindAppleUnified Kind = "apple-unified"
	KindIntel        Kind = "intel"
	KindSystemRAM    Kind = "system-ram"
)

// Provider is implemented by every memory source this controller knows
// how to poll. Snapshot may shell out to a subprocess (nvidia-smi,
// rocm-smi, vm_stat) and must only be called from a worker-pool
// goroutine, never the request-serving goroutine (spec §4.2).
type Provider interface {
	ID() string
	DisplayName() string
	Kind() Kind
	Snapshot(ctx context.Context) (total, used, free int64, ok bool)
}
