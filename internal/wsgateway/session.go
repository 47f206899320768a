package wsgateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sharedmem/controller/internal/bus"
	"github.com/sharedmem/controller/internal/metrics"
	"github.com/sharedmem/controller/pkg/xlog"
)

// session pairs one WebSocket connection with its bus.Subscription and
// the cancel func that stops both of its goroutines when either side
// closes, mirroring the teacher's per-connection Session/cleanup shape.
type session struct {
	conn   *websocket.Conn
	sub    *bus.Subscription
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, sub *bus.Subscription) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{conn: conn, sub: sub, ctx: ctx, cancel: cancel}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close()
	})
}

// sendLoop relays bus events as JSON text frames and keeps the
// connection alive with periodic pings, exiting on SignalClosed or a
// write failure. A lag signal is logged and counted, nothing is sent to
// the client, and the loop continues.
func (s *session) sendLoop(log *xlog.Logger) {
	defer s.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	events := make(chan bus.Event)
	errs := make(chan error, 1)
	go func() {
		for {
			e, signal, err := s.sub.Next(s.ctx)
			if err != nil {
				errs <- err
				return
			}
			switch signal {
			case bus.SignalClosed:
				errs <- nil
				return
			case bus.SignalLag:
				log.Warnf("websocket subscriber lagged, oldest events dropped")
				metrics.BusSubscriberLag.Inc()
				continue
			default:
				select {
				case events <- e:
				case <-s.ctx.Done():
					return
				}
			}
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case err := <-errs:
			if err != nil {
				log.Debugf("bus subscription ended: %v", err)
			}
			return
		case e := <-events:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(e); err != nil {
				log.Debugf("websocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// receiveLoop only exists to detect client-initiated close frames and
// keep pong handling wired up; this gateway is push-only, so any data
// frame the client sends is simply discarded.
func (s *session) receiveLoop(log *xlog.Logger) {
	defer s.close()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debugf("websocket read error: %v", err)
			}
			return
		}
	}
}
