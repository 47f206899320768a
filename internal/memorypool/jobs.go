package memorypool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// jobTypeSnapshot is the asynq task type for a single provider poll,
// enqueued once per provider per tick so the blocking subprocess calls
// (nvidia-smi, rocm-smi, vm_stat) run on asynq's worker pool instead of
// the goroutine driving the aggregator's ticker (spec §4.2).
const jobTypeSnapshot = "memory:snapshot"

type snapshotJobPayload struct {
	ProviderID string `json:"provider_id"`
}

func newSnapshotTask(providerID string) (*asynq.Task, error) {
	payload, err := json.Marshal(snapshotJobPayload{ProviderID: providerID})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot job payload: %w", err)
	}
	return asynq.NewTask(jobTypeSnapshot, payload), nil
}

// handleSnapshotJob is the asynq handler: look up the named provider,
// poll it, and fold the result into the aggregator's cache. Registered
// against the aggregator's own asynq.ServeMux in NewAggregator.
func (a *Aggregator) handleSnapshotJob(ctx context.Context, t *asynq.Task) error {
	var payload snapshotJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal snapshot job payload: %w", err)
	}

	provider, found := a.providerByID(payload.ProviderID)
	if !found {
		return fmt.Errorf("unknown memory provider %q", payload.ProviderID)
	}

	total, used, free, ok := provider.Snapshot(ctx)
	if !ok {
		a.log.Warnf("provider %s returned no reading", payload.ProviderID)
		return nil
	}

	a.recordSnapshot(Snapshot{
		ProviderID: provider.ID(),
		Name:       provider.DisplayName(),
		Kind:       provider.Kind(),
		TotalMB:    total,
		UsedMB:     used,
		FreeMB:     free,
	})
	return nil
}
