// Package supervisor owns the lifecycle of the two external inference
// binaries (spec §4.4): the rpc-agent and the inference engine. Ported
// from original_source/backend/src/llama_cpp/mod.rs's
// LlamaCppState/LlamaCppManager split, restyled in the teacher's
// sys_manager ticker idiom for the watchdog.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sharedmem/controller/internal/bus"
	"github.com/sharedmem/controller/internal/metrics"
	"github.com/sharedmem/controller/pkg/xlog"
)

// Kind identifies which of the two supervised processes a call targets.
type Kind int

const (
	KindAgent Kind = iota
	KindEngine
)

func (k Kind) String() string {
	if k == KindAgent {
		return "agent"
	}
	return "engine"
}

// SessionStatus is the inference session's lifecycle state (spec §3).
type SessionStatus string

const (
	SessionStarting SessionStatus = "starting"
	SessionRunning  SessionStatus = "running"
	SessionStopped  SessionStatus = "stopped"
	SessionError    SessionStatus = "error"
)

// Session is the transient record of a currently-running inference.
type Session struct {
	ID        string
	ModelPath string
	Status    SessionStatus
	Peers     []string
	StartedAt time.Time
}

var (
	ErrBinaryNotFound  = errors.New("supervisor: binary not found in PATH or ~/.sharedmem/bin")
	ErrImmediateExit   = errors.New("supervisor: child exited immediately after spawn")
	ErrSpawnFailed     = errors.New("supervisor: failed to spawn child process")
)

// process is the in-memory handle for one of the two children.
type process struct {
	watched *watchedCmd
	port    int
}

// Supervisor guards both child handles and the current session behind a
// single mutex; critical sections stay short — never hold across a
// child-process await (spec §5).
type Supervisor struct {
	mu sync.Mutex

	agent    *process
	engine   *process
	session  *Session

	agentPort  int
	enginePort int

	agentBinary  string
	engineBinary string

	client *http.Client
	bus    *bus.Bus
	log    *xlog.Logger
}

func New(agentPort, enginePort int, agentBinary, engineBinary string, b *bus.Bus, log *xlog.Logger) *Supervisor {
	if agentBinary == "" {
		agentBinary = "rpc-server"
	}
	if engineBinary == "" {
		engineBinary = "inference-server"
	}
	return &Supervisor{
		agentPort:    agentPort,
		enginePort:   enginePort,
		agentBinary:  agentBinary,
		engineBinary: engineBinary,
		client:       &http.Client{Timeout: 3 * time.Second},
		bus:          b,
		log:          log.Named("supervisor"),
	}
}

// StartAgent implements spec §4.4's Start(agent) steps: port reclaim,
// no-op if already running, spawn, liveness check after ~700ms.
func (s *Supervisor) StartAgent(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agent != nil {
		return nil
	}

	reclaimPort(s.agentPort)
	time.Sleep(400 * time.Millisecond)

	binary, err := findBinary(s.agentBinary)
	if err != nil {
		return ErrBinaryNotFound
	}

	cmd := exec.Command(binary, "--host", "0.0.0.0", "--port", strconv.Itoa(s.agentPort))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	watched := watch(cmd)

	time.Sleep(700 * time.Millisecond)
	if exited, code := watched.hasExited(); exited {
		return fmt.Errorf("%w: exit code %d", ErrImmediateExit, code)
	}

	s.agent = &process{watched: watched, port: s.agentPort}
	s.log.Infof("rpc-server ready on port %d", s.agentPort)
	s.bus.Publish(bus.New(bus.EventRPCServerReady, bus.RPCServerReadyPayload{Port: s.agentPort}))
	return nil
}

// StopAgent kills the agent if running.
func (s *Supervisor) StopAgent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agent == nil {
		return
	}
	killProcess(s.agent.watched)
	s.agent = nil
	s.bus.Publish(bus.New(bus.EventRPCServerOffline, nil))
}

// StartEngine implements spec §4.4's Start(engine): kill any existing
// engine + emit inference-stopped, build launch args from the GPU-layer
// and context-size mapping rules, spawn, record a fresh session.
func (s *Supervisor) StartEngine(modelPath string, peers []string, nGPULayers, ctxSize int) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	binary, err := findBinary(s.engineBinary)
	if err != nil {
		return nil, ErrBinaryNotFound
	}

	if s.engine != nil {
		killProcess(s.engine.watched)
		s.engine = nil
		if s.session != nil {
			s.bus.Publish(bus.New(bus.EventInferenceStopped, bus.InferenceStoppedPayload{SessionID: s.session.ID}))
		}
	}

	args := []string{
		"-m", modelPath,
		"--port", strconv.Itoa(s.enginePort),
		"--host", "0.0.0.0",
		"--ctx-size", strconv.Itoa(ctxSize),
	}
	switch {
	case nGPULayers == -1:
		args = append(args, "--n-gpu-layers", "999")
	case nGPULayers > 0:
		args = append(args, "--n-gpu-layers", strconv.Itoa(nGPULayers))
	}
	if len(peers) > 0 {
		args = append(args, "--rpc", joinComma(peers))
	}

	cmd := exec.Command(binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	watched := watch(cmd)

	session := &Session{
		ID:        uuid.NewString(),
		ModelPath: modelPath,
		Status:    SessionStarting,
		Peers:     peers,
		StartedAt: time.Now().UTC(),
	}
	s.engine = &process{watched: watched, port: s.enginePort}
	s.session = session

	s.log.Infof("inference-server starting: model=%s peers=%v port=%d n_gpu_layers=%d ctx=%d",
		modelPath, peers, s.enginePort, nGPULayers, ctxSize)
	s.bus.Publish(bus.New(bus.EventInferenceStarted, bus.InferenceStartedPayload{
		SessionID: session.ID, Model: modelPath, Peers: peers,
	}))

	sessionCopy := *session
	return &sessionCopy, nil
}

// StopEngine kills the engine and clears the session.
func (s *Supervisor) StopEngine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopEngineLocked()
}

func (s *Supervisor) stopEngineLocked() {
	if s.engine != nil {
		killProcess(s.engine.watched)
		s.engine = nil
	}
	if s.session != nil {
		s.bus.Publish(bus.New(bus.EventInferenceStopped, bus.InferenceStoppedPayload{SessionID: s.session.ID}))
		s.session = nil
	}
}

// Status is an immutable snapshot handed to external observers — never
// a reference to a live child handle (spec §9).
type Status struct {
	AgentRunning  bool
	EngineRunning bool
	AgentPort     int
	EnginePort    int
	Session       *Session
}

// Status reaps any process that has exited, then returns a consistent
// snapshot (spec §4.4's "status query reaps first").
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()

	var session *Session
	if s.session != nil {
		c := *s.session
		session = &c
	}
	return Status{
		AgentRunning:  s.agent != nil,
		EngineRunning: s.engine != nil,
		AgentPort:     s.agentPort,
		EnginePort:    s.enginePort,
		Session:       session,
	}
}

// Reap is the watchdog's single authoritative reconciliation pass
// (spec §4.4). Call on a timer; also invoked inline by Status().
func (s *Supervisor) Reap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
}

func (s *Supervisor) reapLocked() {
	if s.agent != nil {
		if exited, _ := s.agent.watched.hasExited(); exited {
			s.log.Warnf("rpc-server exited unexpectedly")
			s.agent = nil
			metrics.SupervisorRestarts.WithLabelValues("agent").Inc()
			s.bus.Publish(bus.New(bus.EventRPCServerOffline, nil))
		}
	}
	if s.engine != nil {
		if exited, _ := s.engine.watched.hasExited(); exited {
			s.log.Warnf("inference-server exited unexpectedly")
			s.engine = nil
			metrics.SupervisorRestarts.WithLabelValues("engine").Inc()
			if s.session != nil {
				s.bus.Publish(bus.New(bus.EventInferenceStopped, bus.InferenceStoppedPayload{SessionID: s.session.ID}))
				s.session = nil
			}
		}
	}
}

// EngineHealthy performs the HTTP GET /health liveness check (spec §4.4).
func (s *Supervisor) EngineHealthy(ctx context.Context) bool {
	s.mu.Lock()
	running := s.engine != nil
	port := s.enginePort
	s.mu.Unlock()
	if !running {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("http://127.0.0.1:%d/health", port), nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (s *Supervisor) EnginePort() int { return s.enginePort }
func (s *Supervisor) AgentPort() int  { return s.agentPort }

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out
}
