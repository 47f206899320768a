package providers

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"
)

// SystemRamProvider is the fallback always present on every host; it
// reports physical RAM the way the reference implementation's sysinfo
// crate does, using gopsutil as the Go-ecosystem equivalent.
type SystemRamProvider struct{}

func NewSystemRAM() *SystemRamProvider { return &SystemRamProvider{} }

func (p *SystemRamProvider) ID() string          { return "system_ram" }
func (p *SystemRamProvider) DisplayName() string { return "System RAM" }
func (p *SystemRamProvider) Kind() Kind          { return KindSystemRAM }

func (p *SystemRamProvider) Snapshot(ctx context.Context) (total, used, free int64, ok bool) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, 0, false
	}
	totalMB := int64(vm.Total / (1024 * 1024))
	usedMB := int64(vm.Used / (1024 * 1024))
	freeMB := totalMB - usedMB
	if freeMB < 0 {
		freeMB = 0
	}
	return totalMB, usedMB, freeMB, true
}
