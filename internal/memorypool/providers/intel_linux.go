//go:build linux

package providers

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// detectIntelPlatform looks for the i915 or xe kernel driver bound to a
// DRM card and reports half of system RAM as the shared iGPU pool — the
// same conservative estimate the reference implementation uses, since
// Linux exposes no precise "iGPU VRAM total" for shared-memory designs.
func detectIntelPlatform() (name string, totalMB int64, lmemUsedPath string, ok bool) {
	const drmPath = "/sys/class/drm"
	entries, err := os.ReadDir(drmPath)
	if err != nil {
		return "", 0, "", false
	}
	for _, e := range entries {
		link, err := os.Readlink(filepath.Join(drmPath, e.Name(), "device", "driver"))
		if err != nil {
			continue
		}
		if !strings.Contains(link, "i915") && !strings.Contains(link, "xe") {
			continue
		}

		total := systemTotalMB() / 2
		lmem := filepath.Join(drmPath, e.Name(), "device", "drm", "card0", "lmem0", "used")
		if _, err := os.Stat(lmem); err != nil {
			lmem = ""
		}
		return "Intel Integrated GPU", total, lmem, true
	}
	return "", 0, "", false
}

func intelUsedMB(lmemUsedPath string, totalMB int64) int64 {
	if lmemUsedPath != "" {
		if data, err := os.ReadFile(lmemUsedPath); err == nil {
			if bytes, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
				return bytes / (1024 * 1024)
			}
		}
	}

	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	var memTotalKB, memAvailKB int64
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			memTotalKB = parseMeminfoKB(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			memAvailKB = parseMeminfoKB(line)
		}
	}
	if memTotalKB == 0 {
		return 0
	}
	systemUsedMB := (memTotalKB - memAvailKB) / 1024
	ratio := float64(totalMB) / float64(memTotalKB/1024)
	return int64(float64(systemUsedMB) * ratio)
}

func parseMeminfoKB(line string) int64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseInt(fields[1], 10, 64)
	return v
}

func systemTotalMB() int64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			return parseMeminfoKB(line) / 1024
		}
	}
	return 0
}
