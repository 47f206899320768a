// Package cluster composes the Device Registry, Process Supervisor, and
// Fit Planner behind the two operations the HTTP layer needs for
// model-aware orchestration (spec §4.6), mirroring the teacher's
// explicit constructor-wiring style rather than any DI framework.
package cluster

import (
	"context"
	"errors"
	"fmt"

	device "github.com/sharedmem/controller/internal/domains/device"
	"github.com/sharedmem/controller/internal/fitplan"
	"github.com/sharedmem/controller/internal/memorypool"
	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/internal/supervisor"
	"github.com/sharedmem/controller/pkg/xlog"
)

// MaxPeers is the DoS guard spec §4.6 imposes on both start-inference
// and model-check peer lists.
const MaxPeers = 20

var (
	// ErrTooManyPeers is returned when a caller names more than MaxPeers
	// device ids in one request.
	ErrTooManyPeers = errors.New("cluster: at most 20 peer device ids allowed")
	// ErrPeerNotFound wraps a specific missing device id so callers can
	// report which id was unresolved without echoing the whole list.
	ErrPeerNotFound = errors.New("cluster: peer device not found")
)

// Orchestrator ties the registry's approved/probed device list, the
// memory-pool's local snapshot, the fit planner's pure analysis, and
// the supervisor's process lifecycle into one request-shaped API.
type Orchestrator struct {
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	memory     *memorypool.Aggregator
	log        *xlog.Logger
}

func New(reg *registry.Registry, sup *supervisor.Supervisor, mem *memorypool.Aggregator, log *xlog.Logger) *Orchestrator {
	return &Orchestrator{
		registry:   reg,
		supervisor: sup,
		memory:     mem,
		log:        log.Named("cluster"),
	}
}

// ModelCheck validates the path, sums local-free over every provider and
// the per-peer last-observed free MB for the named device ids (empty
// means no peers), and runs the fit planner (spec §4.6 model-check).
func (o *Orchestrator) ModelCheck(ctx context.Context, modelPath string, peerIDs []string) (fitplan.Analysis, error) {
	if err := fitplan.ValidateModelPath(modelPath); err != nil {
		return fitplan.Analysis{}, err
	}
	if len(peerIDs) > MaxPeers {
		return fitplan.Analysis{}, ErrTooManyPeers
	}

	peerFree, err := o.resolvePeerFreeMB(ctx, peerIDs)
	if err != nil {
		return fitplan.Analysis{}, err
	}
	return fitplan.Analyze(modelPath, o.memory.LocalFreeMB(), peerFree)
}

// defaultNGPULayers and defaultCtxSize are the literal start-inference
// defaults spec §4.6 names — not the fit planner's recommendation.
// Ground truth: original_source/backend/src/api/cluster.rs:226-227 does
// `req.n_gpu_layers.unwrap_or(-1)`, `req.ctx_size.unwrap_or(4096)`, and
// never gates start_inference on analyze_model at all (that only runs
// in the separate model-check handler).
const (
	defaultNGPULayers = -1
	defaultCtxSize    = 4096
)

// StartInference resolves each peer id via the registry, assembles
// "address:agent_port" endpoints, and launches the engine with the
// given or literal-default parameters (spec §4.6 start-inference).
// nGPULayers/ctxSize of nil select the literal defaults above; the
// caller may override either. The fit planner runs advisory-only here:
// its warnings are attached to the returned Analysis but never block
// the launch, matching the original's separation of model-check from
// start-inference.
func (o *Orchestrator) StartInference(ctx context.Context, modelPath string, peerIDs []string, nGPULayers, ctxSize *int) (*supervisor.Session, fitplan.Analysis, error) {
	if err := fitplan.ValidateModelPath(modelPath); err != nil {
		return nil, fitplan.Analysis{}, err
	}
	if len(peerIDs) > MaxPeers {
		return nil, fitplan.Analysis{}, ErrTooManyPeers
	}

	peers, err := o.resolvePeers(ctx, peerIDs)
	if err != nil {
		return nil, fitplan.Analysis{}, err
	}

	peerFree := make([]int64, 0, len(peers))
	for _, p := range peers {
		if p.MemoryFreeMB > 0 {
			peerFree = append(peerFree, p.MemoryFreeMB)
		}
	}
	analysis, err := fitplan.Analyze(modelPath, o.memory.LocalFreeMB(), peerFree)
	if err != nil {
		return nil, fitplan.Analysis{}, err
	}
	if analysis.FitStatus == fitplan.TooLarge {
		o.log.Warnf("starting inference for %s despite a too-large fit analysis: %v", modelPath, analysis.Warnings)
	}

	if err := o.supervisor.StartAgent(ctx); err != nil {
		return nil, analysis, fmt.Errorf("cluster: starting rpc-agent: %w", err)
	}

	endpoints := make([]string, 0, len(peers))
	for _, p := range peers {
		endpoints = append(endpoints, fmt.Sprintf("%s:%d", p.Address, p.AgentPort))
	}

	layers, contextSize := resolveInferenceParams(nGPULayers, ctxSize)

	session, err := o.supervisor.StartEngine(modelPath, endpoints, layers, contextSize)
	if err != nil {
		return nil, analysis, err
	}
	return session, analysis, nil
}

// resolveInferenceParams applies the literal start-inference defaults
// (spec §4.6) in place of any omitted override.
func resolveInferenceParams(nGPULayers, ctxSize *int) (layers, contextSize int) {
	layers = defaultNGPULayers
	if nGPULayers != nil {
		layers = *nGPULayers
	}
	contextSize = defaultCtxSize
	if ctxSize != nil {
		contextSize = *ctxSize
	}
	return layers, contextSize
}

// StopInference tears down the running engine, leaving the rpc-agent
// (and any peer agents) up for the next StartInference call.
func (o *Orchestrator) StopInference() {
	o.supervisor.StopEngine()
}

// StartRPC and StopRPC manage only the rpc-agent half of the
// supervisor, letting an operator pre-warm peers before committing to
// an engine (spec §6 POST /api/cluster/rpc/start|stop).
func (o *Orchestrator) StartRPC(ctx context.Context) error {
	return o.supervisor.StartAgent(ctx)
}

func (o *Orchestrator) StopRPC() {
	o.supervisor.StopAgent()
}

// Status returns the supervisor's reaped snapshot for GET /api/cluster/status.
func (o *Orchestrator) Status() supervisor.Status {
	return o.supervisor.Status()
}

// resolvePeers looks up each named device id via the registry (missing
// id -> ErrPeerNotFound, spec §4.6 "missing id -> not-found error"),
// then probes the resolved set in parallel for live free-memory figures.
func (o *Orchestrator) resolvePeers(ctx context.Context, peerIDs []string) ([]device.Device, error) {
	if len(peerIDs) == 0 {
		return nil, nil
	}
	devices := make([]device.Device, 0, len(peerIDs))
	for _, id := range peerIDs {
		d, err := o.registry.Get(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPeerNotFound, id)
		}
		devices = append(devices, *d)
	}
	return o.registry.ProbeAll(ctx, devices), nil
}

// resolvePeerFreeMB is resolvePeers restricted to the last-observed
// free-MB figures the fit planner needs (spec §4.5, §4.6 model-check).
func (o *Orchestrator) resolvePeerFreeMB(ctx context.Context, peerIDs []string) ([]int64, error) {
	peers, err := o.resolvePeers(ctx, peerIDs)
	if err != nil {
		return nil, err
	}
	free := make([]int64, 0, len(peers))
	for _, p := range peers {
		if p.MemoryFreeMB > 0 {
			free = append(free, p.MemoryFreeMB)
		}
	}
	return free, nil
}
