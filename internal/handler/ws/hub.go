// Package ws streams snapshots to dashboard clients over WebSocket.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"PulseScan/internal/domain/models"
	"PulseScan/internal/service/ratelimit"
	"PulseScan/internal/snapshot"
	xlogger "PulseScan/pkg/logger"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second

	maxMessageSize = 1 << 20
	maxConnsPerIP  = 5

	// 30 inbound messages per minute per connection
	readBurst     = 30
	readRefillSec = 0.5
)

// Feed hands out snapshot subscriptions. The scheduler implements it.
type Feed interface {
	Subscribe() (<-chan models.Snapshot, func())
}

// Handler upgrades /ws connections and pumps one snapshot per beat to
// each client. Slow clients receive the latest snapshot, not a backlog.
type Handler struct {
	log      *xlogger.Logger
	feed     Feed
	builder  *snapshot.Builder
	upgrader websocket.Upgrader
	limiter  *ratelimit.Limiter

	mu    sync.Mutex
	conns map[string]int
}

func NewHandler(log *xlogger.Logger, feed Feed, builder *snapshot.Builder) *Handler {
	return &Handler{
		log:     log,
		feed:    feed,
		builder: builder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		limiter: ratelimit.New(),
		conns:   make(map[string]int),
	}
}

// acquire reserves a connection slot for ip, up to maxConnsPerIP.
func (h *Handler) acquire(ip string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[ip] >= maxConnsPerIP {
		return false
	}
	h.conns[ip]++
	return true
}

func (h *Handler) release(ip string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[ip] <= 1 {
		delete(h.conns, ip)
	} else {
		h.conns[ip]--
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

func (h *Handler) Serve(c echo.Context) error {
	ip := c.RealIP()
	if !h.acquire(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "connection limit reached")
	}
	defer h.release(ip)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	snaps, cancel := h.feed.Subscribe()
	defer cancel()

	// the client draws immediately instead of waiting for the next beat
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(h.builder.Build()); err != nil {
		return nil
	}

	// reads are discarded; a read error is how we learn the peer left,
	// and a client flooding the read side gets disconnected
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxMessageSize)
		key := conn.RemoteAddr().String()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			if !h.limiter.Allow(key, readBurst, readRefillSec) {
				h.log.Warn("ws client exceeded message rate", xlogger.String("remote", key))
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "message rate exceeded"),
					time.Now().Add(writeWait))
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return nil

		case snap, ok := <-snaps:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				h.log.Debug("snapshot write failed", xlogger.Error(err))
				return nil
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
