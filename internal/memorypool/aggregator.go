package memorypool

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis"
	"github.com/hibiken/asynq"

	"github.com/sharedmem/controller/internal/bus"
	"github.com/sharedmem/controller/pkg/xlog"
)

const tickInterval = 3 * time.Second

// snapshotCacheKey is where the latest snapshot list is mirrored in
// Redis directly (not through asynq), so a freshly-started replica of
// this process — or GET /api/gpu arriving before the first tick
// completes — can read the last-known readings instead of returning an
// empty list (spec §4.2).
const snapshotCacheKey = "sharedmem:memorypool:snapshots"

// Aggregator polls every registered Provider on a fixed interval and
// keeps the latest readings available for the fit planner and the
// external /api/gpu endpoint. Provider polls run through an in-process
// asynq worker pool rather than the goroutine driving the ticker, so a
// slow subprocess never delays the next tick (spec §4.2).
type Aggregator struct {
	providers []Provider

	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux

	redisCache *redis.Client

	bus *bus.Bus
	log *xlog.Logger

	mu    sync.RWMutex
	cache map[string]Snapshot
}

// RedisOpt is the subset of connection info the worker pool's broker
// needs; kept separate from internal/config so this package has no
// import-cycle dependency on it.
type RedisOpt struct {
	Addr string
	Pass string
}

func NewAggregator(providers []Provider, redisOpt RedisOpt, b *bus.Bus, log *xlog.Logger) *Aggregator {
	opt := asynq.RedisClientOpt{Addr: redisOpt.Addr, Password: redisOpt.Pass}

	a := &Aggregator{
		providers: providers,
		client:    asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: len(providers),
			Queues:      map[string]int{"memory": 1},
		}),
		mux: asynq.NewServeMux(),
		redisCache: redis.NewClient(&redis.Options{
			Addr:     redisOpt.Addr,
			Password: redisOpt.Pass,
		}),
		bus:   b,
		log:   log.Named("memorypool"),
		cache: make(map[string]Snapshot, len(providers)),
	}
	a.mux.HandleFunc(jobTypeSnapshot, a.handleSnapshotJob)
	return a
}

func (a *Aggregator) providerByID(id string) (Provider, bool) {
	for _, p := range a.providers {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

func (a *Aggregator) recordSnapshot(s Snapshot) {
	a.mu.Lock()
	a.cache[s.ProviderID] = s
	snapshots := a.snapshotsLocked()
	a.mu.Unlock()

	a.mirrorToRedis(snapshots)
	a.bus.Publish(bus.New(bus.EventMemoryStats, bus.MemoryStatsPayload{Snapshots: snapshots}))
}

// mirrorToRedis writes the current snapshot list straight to Redis
// (bypassing asynq entirely) so Snapshots can serve a cold start before
// the first tick completes. Best-effort: a Redis hiccup never blocks a
// tick or fails the caller.
func (a *Aggregator) mirrorToRedis(snapshots []Snapshot) {
	encoded, err := json.Marshal(snapshots)
	if err != nil {
		a.log.Warnf("encoding snapshot cache: %v", err)
		return
	}
	if err := a.redisCache.Set(snapshotCacheKey, encoded, 0).Err(); err != nil {
		a.log.Warnf("mirroring snapshots to redis: %v", err)
	}
}

func (a *Aggregator) snapshotsLocked() []Snapshot {
	out := make([]Snapshot, 0, len(a.cache))
	for _, s := range a.cache {
		out = append(out, s)
	}
	return out
}

// Snapshots returns the most recently recorded reading for every
// provider that has reported at least once. If this process hasn't
// ticked yet it falls back to the last value mirrored to Redis by
// whichever instance wrote it most recently (spec §4.2).
func (a *Aggregator) Snapshots() []Snapshot {
	a.mu.RLock()
	snapshots := a.snapshotsLocked()
	a.mu.RUnlock()
	if len(snapshots) > 0 {
		return snapshots
	}
	return a.snapshotsFromRedis()
}

func (a *Aggregator) snapshotsFromRedis() []Snapshot {
	raw, err := a.redisCache.Get(snapshotCacheKey).Result()
	if err != nil {
		return nil
	}
	var snapshots []Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshots); err != nil {
		a.log.Warnf("decoding cached snapshots: %v", err)
		return nil
	}
	return snapshots
}

// LocalFreeMB sums FreeMB across every cached provider — the figure the
// fit planner treats as this host's contribution to cluster memory.
func (a *Aggregator) LocalFreeMB() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var total int64
	for _, s := range a.cache {
		total += s.FreeMB
	}
	return total
}

// Execute implements the SystemTask-style interface used by the
// supervisor watchdog's own runner (GetName/GetInterval/Execute).
func (a *Aggregator) Execute(ctx context.Context) error {
	for _, p := range a.providers {
		task, err := newSnapshotTask(p.ID())
		if err != nil {
			a.log.Errorf("building snapshot task for %s: %v", p.ID(), err)
			continue
		}
		if _, err := a.client.EnqueueContext(ctx, task, asynq.Queue("memory")); err != nil {
			a.log.Errorf("enqueueing snapshot task for %s: %v", p.ID(), err)
		}
	}
	return nil
}

func (a *Aggregator) GetName() string            { return "MemoryPoolAggregator" }
func (a *Aggregator) GetInterval() time.Duration { return tickInterval }

// Run starts the asynq worker pool and ticks Execute on tickInterval
// until ctx is canceled, in the same per-task ticker shape the rest of
// this codebase's background jobs use.
func (a *Aggregator) Run(ctx context.Context) error {
	go func() {
		if err := a.server.Run(a.mux); err != nil {
			a.log.Errorf("memory worker pool stopped: %v", err)
		}
	}()
	defer a.server.Shutdown()
	defer a.client.Close()
	defer a.redisCache.Close()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	_ = a.Execute(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = a.Execute(ctx)
		}
	}
}

// AttributeAllocated distributes a total allocated-MB figure across
// snapshots proportionally to each provider's share of total-MB (spec
// §4.2): the last provider absorbs any rounding residue, and no
// provider is given more than its own TotalMB. Called at GET /api/gpu
// read time, never on the tick itself.
func AttributeAllocated(snapshots []Snapshot, totalAllocatedMB int64) []Snapshot {
	var grandTotal int64
	for _, s := range snapshots {
		grandTotal += s.TotalMB
	}

	out := make([]Snapshot, len(snapshots))
	copy(out, snapshots)
	if grandTotal == 0 || totalAllocatedMB == 0 || len(out) == 0 {
		return out
	}

	var distributed int64
	for i := range out[:len(out)-1] {
		share := int64(float64(out[i].TotalMB) / float64(grandTotal) * float64(totalAllocatedMB))
		if share > out[i].TotalMB {
			share = out[i].TotalMB
		}
		out[i].AllocatedMB = share
		distributed += share
	}

	last := len(out) - 1
	residue := totalAllocatedMB - distributed
	if residue > out[last].TotalMB {
		residue = out[last].TotalMB
	}
	if residue < 0 {
		residue = 0
	}
	out[last].AllocatedMB = residue
	return out
}
