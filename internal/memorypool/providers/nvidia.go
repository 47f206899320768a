package providers

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
)

// NvidiaProvider reads discrete GPU memory via the nvidia-smi CLI.
type NvidiaProvider struct {
	name    string
	totalMB int64
}

// DetectNvidia probes for an NVIDIA GPU at startup. Detection blocking is
// fine here — it runs once, outside any request path.
func DetectNvidia(ctx context.Context) *NvidiaProvider {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil
	}
	line := firstLine(string(out))
	if line == "" {
		return nil
	}
	parts := strings.SplitN(line, ",", 2)
	if len(parts) != 2 {
		return nil
	}
	total, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return nil
	}
	return &NvidiaProvider{name: strings.TrimSpace(parts[0]), totalMB: total}
}

func (p *NvidiaProvider) ID() string          { return "nvidia" }
func (p *NvidiaProvider) DisplayName() string { return p.name }
func (p *NvidiaProvider) Kind() Kind          { return KindNvidia }

func (p *NvidiaProvider) Snapshot(ctx context.Context) (total, used, free int64, ok bool) {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=memory.used", "--format=csv,noheader,nounits").Output()
	var usedMB int64
	if err == nil {
		if v, perr := strconv.ParseInt(strings.TrimSpace(firstLine(string(out))), 10, 64); perr == nil {
			usedMB = v
		}
	}
	freeMB := p.totalMB - usedMB
	if freeMB < 0 {
		freeMB = 0
	}
	return p.totalMB, usedMB, freeMB, true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
