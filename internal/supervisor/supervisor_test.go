package supervisor

import (
	"context"
	"testing"

	"github.com/sharedmem/controller/internal/bus"
	"github.com/sharedmem/controller/pkg/xlog"
)

func newTestSupervisor() *Supervisor {
	b := bus.New(xlog.New(false))
	return New(18181, 18182, "", "", b, xlog.New(false))
}

func TestJoinComma(t *testing.T) {
	if got := joinComma(nil); got != "" {
		t.Errorf("expected empty string for nil, got %q", got)
	}
	if got := joinComma([]string{"10.0.0.2:50052"}); got != "10.0.0.2:50052" {
		t.Errorf("unexpected single-item join: %q", got)
	}
	got := joinComma([]string{"a:1", "b:2", "c:3"})
	want := "a:1,b:2,c:3"
	if got != want {
		t.Errorf("joinComma() = %q, want %q", got, want)
	}
}

func TestFindBinaryMissing(t *testing.T) {
	if _, err := findBinary("sharedmem-definitely-not-a-real-binary"); err != ErrBinaryNotFound {
		t.Errorf("expected ErrBinaryNotFound, got %v", err)
	}
}

func TestStartEngineMissingBinary(t *testing.T) {
	s := newTestSupervisor()
	_, err := s.StartEngine("/tmp/model.gguf", nil, -1, 4096)
	if err != ErrBinaryNotFound {
		t.Errorf("expected ErrBinaryNotFound when engine binary is absent, got %v", err)
	}
}

func TestStatusReflectsNoChildren(t *testing.T) {
	s := newTestSupervisor()
	st := s.Status()
	if st.AgentRunning || st.EngineRunning {
		t.Error("expected no children running before Start calls")
	}
	if st.Session != nil {
		t.Error("expected nil session before any StartEngine call")
	}
}

func TestEngineHealthyWithoutEngine(t *testing.T) {
	s := newTestSupervisor()
	if s.EngineHealthy(context.Background()) {
		t.Error("expected EngineHealthy to be false with no engine started")
	}
}

func TestReclaimPortNoop(t *testing.T) {
	// Exercises the OS-gated reclaimPort path; it must never panic even
	// when nothing is bound to the port.
	reclaimPort(19999)
}
