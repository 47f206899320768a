// Package wsgateway pushes bus.Event frames to WebSocket subscribers
// (spec §4.1 "Subscriber Gateway", §6 GET /ws). Directly grounded on
// the teacher's internal/handlers/websocket package (upgrade, a
// connection-manager-style registry, and a sender/receiver goroutine
// pair per session) but rewired to push cluster events instead of
// brain-system chat output.
package wsgateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sharedmem/controller/internal/bus"
	"github.com/sharedmem/controller/internal/metrics"
	"github.com/sharedmem/controller/pkg/xlog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Gateway upgrades incoming HTTP requests to WebSocket connections and
// fans out every published bus.Event to each connected subscriber.
type Gateway struct {
	bus      *bus.Bus
	upgrader websocket.Upgrader
	log      *xlog.Logger

	mu       sync.RWMutex
	sessions map[*session]struct{}
}

func New(b *bus.Bus, log *xlog.Logger) *Gateway {
	return &Gateway{
		bus: b,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:      log.Named("wsgateway"),
		sessions: make(map[*session]struct{}),
	}
}

// ServeHTTP upgrades the connection and runs its sender/receiver
// goroutine pair until the client disconnects (spec §6 /ws).
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Errorf("websocket upgrade failed: %v", err)
		return
	}

	sess := newSession(conn, g.bus.Subscribe())
	g.register(sess)
	defer g.unregister(sess)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); sess.sendLoop(g.log) }()
	go func() { defer wg.Done(); sess.receiveLoop(g.log) }()
	wg.Wait()
}

func (g *Gateway) register(s *session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[s] = struct{}{}
	metrics.ConnectedSubscribers.Set(float64(len(g.sessions)))
	g.log.Infof("websocket subscriber connected (total=%d)", len(g.sessions))
}

func (g *Gateway) unregister(s *session) {
	g.mu.Lock()
	delete(g.sessions, s)
	count := len(g.sessions)
	g.mu.Unlock()
	metrics.ConnectedSubscribers.Set(float64(count))
	s.close()
	g.log.Infof("websocket subscriber disconnected (total=%d)", count)
}

// Count returns the number of currently connected subscribers. The
// /metrics gauge is set separately by register and unregister.
func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}
