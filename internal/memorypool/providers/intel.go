package providers

import (
	"context"
)

// IntelProvider reports the integrated GPU's shared-memory pool. On
// Linux this comes from sysfs (i915/xe); precise "iGPU VRAM total" is
// not exposed by a shared-memory design, so usage is an approximation
// attributed proportionally from /proc/meminfo when no lmem sysfs node
// is present.
type IntelProvider struct {
	name         string
	totalMB      int64
	lmemUsedPath string
}

func DetectIntel(ctx context.Context) *IntelProvider {
	name, total, lmem, ok := detectIntelPlatform()
	if !ok {
		return nil
	}
	return &IntelProvider{name: name, totalMB: total, lmemUsedPath: lmem}
}

func (p *IntelProvider) ID() string          { return "intel" }
func (p *IntelProvider) DisplayName() string { return p.name }
func (p *IntelProvider) Kind() Kind          { return KindIntel }

func (p *IntelProvider) Snapshot(ctx context.Context) (total, used, free int64, ok bool) {
	usedMB := intelUsedMB(p.lmemUsedPath, p.totalMB)
	if usedMB > p.totalMB {
		usedMB = p.totalMB
	}
	freeMB := p.totalMB - usedMB
	return p.totalMB, usedMB, freeMB, true
}
