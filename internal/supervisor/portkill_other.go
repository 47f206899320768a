//go:build !linux && !darwin

package supervisor

// reclaimPort is a no-op outside linux/darwin; the agent relies on the
// OS rejecting the bind and surfacing ErrImmediateExit instead.
func reclaimPort(port int) {}
