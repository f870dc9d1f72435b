package overlay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loqalabs/loqa-caption/internal/pipeline"
)

const (
	MessageSnapshot = "snapshot"
	MessageCaption  = "caption"
	MessageSession  = "session"
	MessagePosition = "position"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message is the envelope sent to and received from overlay clients.
type Message struct {
	Type     string          `json:"type"`
	View     *View           `json:"view,omitempty"`
	Update   *CaptionMessage `json:"update,omitempty"`
	Position *[2]int         `json:"position,omitempty"`
}

// CaptionMessage is the wire form of one caption change.
type CaptionMessage struct {
	Stream string `json:"stream"`
	Final  bool   `json:"final"`
	Text   string `json:"text"`
}

// PositionFunc persists an overlay position reported by a client.
type PositionFunc func(x, y int)

// event carries either a caption update or a session change. Both share one
// channel so Run applies them in the order the pipeline produced them.
type event struct {
	update  *pipeline.Update
	session *pipeline.SessionInfo
}

// Hub owns the view. Only Run mutates it; everything else sends to Run.
type Hub struct {
	log      *slog.Logger
	maxLines int
	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	events     chan event
	positions  chan [2]int
	quit       chan struct{}
	stopOnce   sync.Once

	mu     sync.RWMutex
	view   View
	onMove PositionFunc

	// owned by Run
	clients map[*client]struct{}
}

func NewHub(maxLines int, position [2]int, log *slog.Logger) *Hub {
	return &Hub{
		log:      log.With(slog.String("component", "overlay")),
		maxLines: maxLines,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		events:     make(chan event, 256),
		positions:  make(chan [2]int, 16),
		quit:       make(chan struct{}),
		view:       View{State: pipeline.Idle.String(), Position: position},
		clients:    make(map[*client]struct{}),
	}
}

// OnPosition sets the callback for positions reported over the websocket.
func (h *Hub) OnPosition(fn PositionFunc) {
	h.mu.Lock()
	h.onMove = fn
	h.mu.Unlock()
}

// Run applies queued changes until ctx ends, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.quit) })
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			view := h.Snapshot()
			c.trySend(&Message{Type: MessageSnapshot, View: &view})
			h.log.Debug("overlay client registered", slog.Int("client_count", len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.log.Debug("overlay client unregistered", slog.Int("client_count", len(h.clients)))
		case ev := <-h.events:
			h.handle(ev)
		case pos := <-h.positions:
			h.mu.Lock()
			h.view.Position = pos
			h.mu.Unlock()
			h.broadcast(&Message{Type: MessagePosition, Position: &pos})
		}
	}
}

func (h *Hub) handle(ev event) {
	if u := ev.update; u != nil {
		h.mu.Lock()
		applied := h.view.apply(*u, h.maxLines)
		h.mu.Unlock()
		if !applied {
			h.log.Debug("dropping caption from another session", slog.String("session_id", u.SessionID))
			return
		}
		h.broadcast(&Message{Type: MessageCaption, Update: &CaptionMessage{Stream: string(u.Stream), Final: u.Final, Text: u.Text}})
		return
	}
	if info := ev.session; info != nil {
		h.mu.Lock()
		h.view.session(*info)
		view := h.view.clone()
		h.mu.Unlock()
		h.broadcast(&Message{Type: MessageSession, View: &view})
	}
}

func (h *Hub) broadcast(msg *Message) {
	for c := range h.clients {
		if !c.trySend(msg) {
			// slow client
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Snapshot returns a copy of the current view.
func (h *Hub) Snapshot() View {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.view.clone()
}

// Publish queues a caption update. It drops the update if the hub has stopped
// or ctx ends first.
func (h *Hub) Publish(ctx context.Context, u pipeline.Update) {
	select {
	case h.events <- event{update: &u}:
	case <-h.quit:
	case <-ctx.Done():
	}
}

func (h *Hub) SessionChanged(ctx context.Context, info pipeline.SessionInfo) {
	select {
	case h.events <- event{session: &info}:
	case <-h.quit:
	case <-ctx.Done():
	}
}

// SetPosition records the overlay position and tells every client.
func (h *Hub) SetPosition(x, y int) {
	select {
	case h.positions <- [2]int{x, y}:
	case <-h.quit:
	}
}

// HandleConnection upgrades r and streams view changes until the client
// disconnects.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("remote_addr", r.RemoteAddr), slog.String("error", err.Error()))
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan *Message, 64)}
	select {
	case h.register <- c:
	case <-h.quit:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
