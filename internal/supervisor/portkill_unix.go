//go:build linux || darwin

// Best-effort port reclaim before (re)binding the rpc-agent, the way
// the installer's restart path shells out to fuser/lsof rather than
// trusting SO_REUSEADDR alone (original_source/backend/src/llama_cpp/mod.rs
// kills any stale process bound to the agent port before spawning a
// fresh one).
package supervisor

import (
	"os/exec"
	"strconv"
)

func reclaimPort(port int) {
	addr := strconv.Itoa(port)
	if out, err := exec.Command("lsof", "-t", "-i", ":"+addr).Output(); err == nil {
		for _, pid := range splitLines(out) {
			_ = exec.Command("kill", "-9", pid).Run()
		}
		return
	}
	// lsof absent on some minimal distros; fuser is the fallback.
	_ = exec.Command("fuser", "-k", addr+"/tcp").Run()
}

func splitLines(out []byte) []string {
	var lines []string
	start := 0
	for i, b := range out {
		if b == '\n' {
			if i > start {
				lines = append(lines, string(out[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(out) {
		lines = append(lines, string(out[start:]))
	}
	return lines
}
