// Package discovery finds and advertises peer controllers over mDNS
// (spec §4.3 "discovered-device pipeline"), grounded on
// original_source/backend/src/discovery/mod.rs. Browsing feeds
// registry.Register through the event bus; advertising is the
// supplemented half original_source also implements but the
// distillation dropped (see DESIGN.md).
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/sharedmem/controller/internal/bus"
	"github.com/sharedmem/controller/pkg/xlog"
)

const browseInterval = 15 * time.Second

// Discovery owns both halves of mDNS participation: periodic browsing
// for peers and self-advertisement so peers can find this host too.
type Discovery struct {
	serviceName string
	agentPort   int
	bus         *bus.Bus
	log         *xlog.Logger

	server *mdns.Server
}

func New(serviceName string, agentPort int, b *bus.Bus, log *xlog.Logger) *Discovery {
	return &Discovery{
		serviceName: serviceName,
		agentPort:   agentPort,
		bus:         b,
		log:         log.Named("discovery"),
	}
}

// Advertise registers this host under serviceName so peers browsing
// the same service name can discover it (the self-advertisement
// original_source's discovery::advertise performs, restored here per
// SPEC_FULL.md's "Supplemented from original_source" section).
func (d *Discovery) Advertise(hostname string) error {
	info := []string{"sharedmem-controller"}
	service, err := mdns.NewMDNSService(hostname, d.serviceName, "", "", d.agentPort, nil, info)
	if err != nil {
		return fmt.Errorf("discovery: building mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("discovery: starting mdns server: %w", err)
	}
	d.server = server
	d.log.Infof("advertising %s on mdns as %s", d.serviceName, hostname)
	return nil
}

// Shutdown stops self-advertisement.
func (d *Discovery) Shutdown() {
	if d.server != nil {
		_ = d.server.Shutdown()
	}
}

// Run browses for peers on a timer until ctx is canceled, publishing a
// device_discovered event per entry found (spec §4.1).
func (d *Discovery) Run(ctx context.Context) error {
	ticker := time.NewTicker(browseInterval)
	defer ticker.Stop()

	d.browseOnce()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.browseOnce()
		}
	}
}

func (d *Discovery) browseOnce() {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range entries {
			d.bus.Publish(bus.New(bus.EventDeviceDiscovered, bus.DeviceDiscoveredPayload{
				IP:       ipFromEntry(e),
				Name:     e.Name,
				Hostname: e.Host,
				Method:   "multicast",
			}))
		}
	}()

	params := mdns.DefaultParams(d.serviceName)
	params.Entries = entries
	params.Timeout = 3 * time.Second
	params.DisableIPv6 = true

	if err := mdns.Query(params); err != nil {
		d.log.Warnf("mdns query failed: %v", err)
	}
	close(entries)
	<-done
}

func ipFromEntry(e *mdns.ServiceEntry) string {
	if e.AddrV4 != nil {
		return e.AddrV4.String()
	}
	if e.AddrV6 != nil {
		return e.AddrV6.String()
	}
	return ""
}
