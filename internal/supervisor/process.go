package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"
)

func sleepShort() { time.Sleep(50 * time.Millisecond) }

// findBinary looks on PATH first, then the well-known install directory
// used by the installer script, mirroring
// original_source/backend/src/llama_cpp/mod.rs's binary resolution.
func findBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err == nil {
		candidate := filepath.Join(home, ".sharedmem", "bin", name)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", ErrBinaryNotFound
}

// watchedCmd pairs an exec.Cmd with a background waiter so liveness can
// be checked without blocking — exec.Cmd offers no non-blocking "has
// this exited" query, so a reaper goroutine started at spawn time owns
// the Wait() call and records the outcome for reapLocked to read.
type watchedCmd struct {
	cmd    *exec.Cmd
	exited atomic.Bool
	code   atomic.Int32
}

func watch(cmd *exec.Cmd) *watchedCmd {
	w := &watchedCmd{cmd: cmd}
	go func() {
		err := cmd.Wait()
		code := 0
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		} else if err != nil {
			code = -1
		}
		w.code.Store(int32(code))
		w.exited.Store(true)
	}()
	return w
}

func (w *watchedCmd) hasExited() (bool, int) {
	if w.exited.Load() {
		return true, int(w.code.Load())
	}
	return false, 0
}

// killProcess sends SIGINT and gives the watcher a moment to observe a
// clean exit before escalating to SIGKILL.
func killProcess(w *watchedCmd) {
	if w == nil || w.cmd.Process == nil {
		return
	}
	_ = w.cmd.Process.Signal(os.Interrupt)
	for i := 0; i < 20; i++ {
		if exited, _ := w.hasExited(); exited {
			return
		}
		sleepShort()
	}
	_ = w.cmd.Process.Kill()
}
