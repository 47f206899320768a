package registry

import (
	"context"

	busp "github.com/sharedmem/controller/internal/bus"
	device "github.com/sharedmem/controller/internal/domains/device"
)

// RunDiscoveryPipeline subscribes to the bus and feeds every
// device_discovered event into Register, treated as an ordinary
// consumer rather than a direct call from the discovery layer — keeping
// the registry the single source of truth for device identity and
// auto-approval policy (spec §9 "discovered-device pipeline"). Runs
// until ctx is canceled or the bus closes.
func (r *Registry) RunDiscoveryPipeline(ctx context.Context, b *busp.Bus) error {
	sub := b.Subscribe()
	for {
		event, signal, err := sub.Next(ctx)
		if err != nil || signal == busp.SignalClosed {
			return err
		}
		if signal == busp.SignalLag {
			r.log.Warnf("discovery pipeline lagged behind the bus, skipping ahead")
			continue
		}
		if event.Type != busp.EventDeviceDiscovered {
			continue
		}
		payload, ok := event.Payload.(busp.DeviceDiscoveredPayload)
		if !ok || payload.IP == "" {
			continue
		}

		method := device.DiscoveryManual
		if payload.Method == string(device.DiscoveryMulticast) {
			method = device.DiscoveryMulticast
		}
		if _, err := r.Register(payload.Name, payload.IP, "", method); err != nil {
			r.log.Errorf("auto-registering discovered device %s: %v", payload.IP, err)
		}
	}
}
