//go:build darwin

package providers

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"
)

// AppleProvider reads unified memory on Apple Silicon Macs via sysctl
// and vm_stat. It only activates when the CPU brand string confirms an
// Apple Silicon chip. Intel Macs get no GPU provider (the Intel
// provider detects only on linux) and report system RAM alone.
type AppleProvider struct {
	name    string
	totalMB int64
}

func DetectApple(ctx context.Context) *AppleProvider {
	model := sysctlString(ctx, "hw.model")
	if !isAppleSilicon(ctx) {
		return nil
	}

	memOut, err := exec.CommandContext(ctx, "sysctl", "-n", "hw.memsize").Output()
	if err != nil {
		return nil
	}
	totalBytes, err := strconv.ParseInt(strings.TrimSpace(string(memOut)), 10, 64)
	if err != nil || totalBytes == 0 {
		return nil
	}

	return &AppleProvider{
		name:    "Apple Silicon (" + model + ") Unified Memory",
		totalMB: totalBytes / (1024 * 1024),
	}
}

func isAppleSilicon(ctx context.Context) bool {
	brand := sysctlString(ctx, "machdep.cpu.brand_string")
	if brand != "" {
		return strings.HasPrefix(brand, "Apple")
	}
	cpuType := sysctlString(ctx, "hw.cputype")
	return cpuType == "16777228" // CPU_TYPE_ARM64
}

func sysctlString(ctx context.Context, key string) string {
	out, err := exec.CommandContext(ctx, "sysctl", "-n", key).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (p *AppleProvider) ID() string          { return "apple" }
func (p *AppleProvider) DisplayName() string { return p.name }
func (p *AppleProvider) Kind() Kind          { return KindAppleUnified }

func (p *AppleProvider) Snapshot(ctx context.Context) (total, used, free int64, ok bool) {
	usedMB := p.queryUsedMB(ctx)
	freeMB := p.totalMB - usedMB
	if freeMB < 0 {
		freeMB = 0
	}
	return p.totalMB, usedMB, freeMB, true
}

// queryUsedMB sums wired, active, and compressor pages from vm_stat,
// honoring the page size reported in its header line rather than
// assuming 16 KiB.
func (p *AppleProvider) queryUsedMB(ctx context.Context) int64 {
	out, err := exec.CommandContext(ctx, "vm_stat").Output()
	if err != nil {
		return 0
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	pageSize := int64(16384)
	var wired, active, compressor int64
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			if idx := strings.Index(line, "page size of "); idx >= 0 {
				rest := line[idx+len("page size of "):]
				if end := strings.IndexByte(rest, ' '); end >= 0 {
					if v, err := strconv.ParseInt(rest[:end], 10, 64); err == nil {
						pageSize = v
					}
				}
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "Pages wired down:"):
			wired = extractPages(line)
		case strings.HasPrefix(line, "Pages active:"):
			active = extractPages(line)
		case strings.HasPrefix(line, "Pages occupied by compressor:"):
			compressor = extractPages(line)
		}
	}

	usedBytes := (wired + active + compressor) * pageSize
	return usedBytes / (1024 * 1024)
}

func extractPages(line string) int64 {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	s := strings.TrimSpace(parts[1])
	s = strings.TrimSuffix(s, ".")
	s = strings.ReplaceAll(s, ",", "")
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
