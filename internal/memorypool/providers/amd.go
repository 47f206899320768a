package providers

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// AmdProvider reads VRAM via rocm-smi, falling back to the amdgpu sysfs
// interface when rocm-smi is unavailable.
type AmdProvider struct {
	name    string
	totalMB int64
}

func DetectAMD(ctx context.Context) *AmdProvider {
	if card, totalBytes, ok := queryRocmSMI(ctx, "VRAM Total Memory (B)"); ok {
		_ = card
		return &AmdProvider{name: "AMD GPU (ROCm)", totalMB: totalBytes / (1024 * 1024)}
	}

	const drmPath = "/sys/class/drm"
	entries, err := os.ReadDir(drmPath)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		memPath := filepath.Join(drmPath, e.Name(), "device", "mem_info_vram_total")
		data, err := os.ReadFile(memPath)
		if err != nil {
			continue
		}
		bytes, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil || bytes == 0 {
			continue
		}
		return &AmdProvider{name: "AMD GPU (sysfs)", totalMB: bytes / (1024 * 1024)}
	}
	return nil
}

func (p *AmdProvider) ID() string          { return "amd" }
func (p *AmdProvider) DisplayName() string { return p.name }
func (p *AmdProvider) Kind() Kind          { return KindAMD }

func (p *AmdProvider) Snapshot(ctx context.Context) (total, used, free int64, ok bool) {
	usedMB := p.queryUsedMB(ctx)
	freeMB := p.totalMB - usedMB
	if freeMB < 0 {
		freeMB = 0
	}
	return p.totalMB, usedMB, freeMB, true
}

func (p *AmdProvider) queryUsedMB(ctx context.Context) int64 {
	if _, usedBytes, ok := queryRocmSMI(ctx, "VRAM Total Used Memory (B)"); ok {
		return usedBytes / (1024 * 1024)
	}

	const drmPath = "/sys/class/drm"
	entries, err := os.ReadDir(drmPath)
	if err != nil {
		return 0
	}
	for _, e := range entries {
		memPath := filepath.Join(drmPath, e.Name(), "device", "mem_info_vram_used")
		data, err := os.ReadFile(memPath)
		if err != nil {
			continue
		}
		if b, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
			return b / (1024 * 1024)
		}
	}
	return 0
}

// queryRocmSMI shells out to rocm-smi --showmeminfo vram --json and
// extracts the named field from a card object that carries it; with
// several cards, which one is returned is not defined (map order).
func queryRocmSMI(ctx context.Context, field string) (card string, value int64, ok bool) {
	out, err := exec.CommandContext(ctx, "rocm-smi", "--showmeminfo", "vram", "--json").Output()
	if err != nil {
		return "", 0, false
	}
	var doc map[string]map[string]string
	if err := json.Unmarshal(out, &doc); err != nil {
		return "", 0, false
	}
	for name, fields := range doc {
		v, err := strconv.ParseInt(strings.TrimSpace(fields[field]), 10, 64)
		if err != nil {
			continue
		}
		return name, v, true
	}
	return "", 0, false
}
