package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/rpc"
)

// Hub fans pipeline events out to websocket watchers. Slow watchers are
// dropped rather than stalling a run.
type Hub struct {
	register   chan *watcher
	unregister chan *watcher
	broadcast  chan rpc.PipelineEvent
	clients    map[*watcher]bool
	count      atomic.Int64
	done       chan struct{}
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

type watcher struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	runID string
}

// NewHub builds a hub; call Run to start dispatching.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *watcher),
		unregister: make(chan *watcher),
		broadcast:  make(chan rpc.PipelineEvent, 256),
		clients:    make(map[*watcher]bool),
		done:       make(chan struct{}),
		logger:     logger,
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Run dispatches until ctx ends, then disconnects every watcher.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.count.Add(1)
		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
			}
		case ev := <-h.broadcast:
			msg, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("encode watch event", zap.Error(err))
				continue
			}
			for c := range h.clients {
				if c.runID != "" && c.runID != ev.RunID {
					continue
				}
				select {
				case c.send <- msg:
				default:
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *watcher) {
	delete(h.clients, c)
	h.count.Add(-1)
	close(c.send)
}

// Publish queues ev for broadcast. It never blocks; events are dropped when
// the queue is full.
func (h *Hub) Publish(ev rpc.PipelineEvent) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Debug("watch queue full, dropping event", zap.String("run_id", ev.RunID))
	}
}

// Watchers reports the number of connected watchers.
func (h *Hub) Watchers() int { return int(h.count.Load()) }

// ServeHTTP upgrades to a websocket. An optional run_id query parameter
// limits the feed to one run.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &watcher{hub: h, conn: conn, send: make(chan []byte, 64), runID: r.URL.Query().Get("run_id")}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (c *watcher) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

func (c *watcher) writePump() {
	defer func() {
		c.leave()
		_ = c.conn.Close()
	}()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump only watches for the peer going away.
func (c *watcher) readPump() {
	defer c.leave()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
