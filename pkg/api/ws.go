package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"db-monitor/pkg/model"
)

// WSMessage is one push to a dashboard subscriber.
type WSMessage struct {
	Type       string             `json:"type"` // realtime
	InstanceID uint               `json:"instanceId"`
	Degraded   bool               `json:"degraded"`
	Payload    model.MetricReport `json:"payload"`
}

// RealtimeFunc fetches one report; Service.Realtime in production.
type RealtimeFunc func(ctx context.Context, id uint) (model.MetricReport, bool, error)

// WSHub tracks dashboard subscribers keyed by instance id. Each connection
// runs its own push loop; nothing is shared between subscribers.
type WSHub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[uint]map[*websocket.Conn]struct{}
	log      logrus.FieldLogger
}

func NewWSHub(log logrus.FieldLogger) *WSHub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[uint]map[*websocket.Conn]struct{}{},
		log:  log,
	}
}

// Serve upgrades the request and pushes a report every interval until the
// client goes away.
func (h *WSHub) Serve(w http.ResponseWriter, r *http.Request, id uint, interval time.Duration, fetch RealtimeFunc) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("id", id).Warn("ws upgrade failed")
		return
	}
	h.add(id, c)
	entry := h.log.WithField("id", id)
	entry.Info("dashboard subscriber connected")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		for {
			if _, _, err := c.NextReader(); err != nil {
				return
			}
		}
	}()
	go h.pushLoop(ctx, id, c, interval, fetch, entry)
}

func (h *WSHub) pushLoop(ctx context.Context, id uint, c *websocket.Conn, interval time.Duration, fetch RealtimeFunc, log logrus.FieldLogger) {
	defer h.remove(id, c)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, degraded, err := fetch(ctx, id)
		if err != nil {
			log.WithError(err).Warn("realtime fetch failed; closing subscriber")
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "instance unavailable"),
				time.Now().Add(time.Second))
			return
		}
		_ = c.SetWriteDeadline(time.Now().Add(interval))
		msg := WSMessage{Type: "realtime", InstanceID: id, Degraded: degraded, Payload: report}
		if err := c.WriteJSON(msg); err != nil {
			log.WithError(err).Debug("ws write failed")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Subscribers returns the number of open connections for id.
func (h *WSHub) Subscribers(id uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[id])
}

// Close disconnects every subscriber.
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		for c := range set {
			_ = c.Close()
		}
		delete(h.subs, id)
	}
}

func (h *WSHub) add(id uint, c *websocket.Conn) {
	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = map[*websocket.Conn]struct{}{}
	}
	h.subs[id][c] = struct{}{}
	h.mu.Unlock()
}

func (h *WSHub) remove(id uint, c *websocket.Conn) {
	_ = c.Close()
	h.mu.Lock()
	if set, ok := h.subs[id]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()
	h.log.WithField("id", id).Info("dashboard subscriber disconnected")
}
