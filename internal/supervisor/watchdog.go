package supervisor

import (
	"context"
	"time"
)

const watchdogInterval = 5 * time.Second

// Execute implements the SystemTask-style interface (GetName/GetInterval/
// Execute) the memory-pool aggregator's own runner uses, so both
// background loops are driven the same way.
func (s *Supervisor) Execute(ctx context.Context) error {
	s.Reap()
	return nil
}

func (s *Supervisor) GetName() string            { return "ProcessSupervisor" }
func (s *Supervisor) GetInterval() time.Duration { return watchdogInterval }

// Run ticks Reap on watchdogInterval until ctx is canceled, and stops
// both children on the way out.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.StopEngine()
			s.StopAgent()
			return nil
		case <-ticker.C:
			_ = s.Execute(ctx)
		}
	}
}
