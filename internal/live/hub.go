// Package live pushes fresh survey results to websocket subscribers.
package live

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Clark-Hu/usbest/internal/metrics"
)

type roomMessage struct {
	surveyID string
	payload  []byte
}

type countRequest struct {
	surveyID string
	reply    chan int
}

// Hub keeps one room of subscribers per survey. All room bookkeeping happens
// on the Run goroutine.
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan roomMessage
	register   chan *Client
	unregister chan *Client
	counts     chan countRequest
	done       chan struct{}
	stopOnce   sync.Once

	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	logger         *log.Logger
	metrics        *metrics.Metrics
}

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins limits browser subscriptions to the given origins, for
// example "https://app.example.com". Without it any origin may subscribe,
// since results are public.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) {
		for _, o := range origins {
			if o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/"); o != "" {
				if h.allowedOrigins == nil {
					h.allowedOrigins = make(map[string]bool)
				}
				h.allowedOrigins[o] = true
			}
		}
	}
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger *log.Logger, m *metrics.Metrics, opts ...Option) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	h := &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan roomMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		counts:     make(chan countRequest),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger:  logger,
		metrics: m,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader.CheckOrigin = h.checkOrigin
	return h
}

// checkOrigin accepts requests without an Origin header, which browsers always
// send, so only browser pages are held to the allow list.
func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 || h.allowedOrigins["*"] {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return h.allowedOrigins[strings.TrimRight(strings.ToLower(origin), "/")]
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case c := <-h.register:
			room := h.rooms[c.surveyID]
			if room == nil {
				room = make(map[*Client]bool)
				h.rooms[c.surveyID] = room
			}
			room[c] = true
			h.metrics.LiveSubscribers(1)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			for c := range h.rooms[msg.surveyID] {
				select {
				case c.send <- msg.payload:
				default:
					h.logger.Printf("live: dropping slow subscriber of survey %s", msg.surveyID)
					h.remove(c)
				}
			}
		case req := <-h.counts:
			req.reply <- len(h.rooms[req.surveyID])
		case <-ctx.Done():
			for id := range h.rooms {
				for c := range h.rooms[id] {
					h.remove(c)
				}
			}
			return
		}
	}
}

func (h *Hub) remove(c *Client) {
	room, ok := h.rooms[c.surveyID]
	if !ok || !room[c] {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.surveyID)
	}
	h.metrics.LiveSubscribers(-1)
}

// Publish queues payload for every subscriber of the survey. It never blocks
// the caller for longer than it takes to enqueue; a full queue drops the update.
func (h *Hub) Publish(surveyID string, payload []byte) {
	select {
	case h.broadcast <- roomMessage{surveyID: surveyID, payload: payload}:
	case <-h.done:
	default:
		h.logger.Printf("live: broadcast queue full, dropping update for survey %s", surveyID)
	}
}

// Serve upgrades the request to a websocket subscribed to surveyID. initial,
// when non-nil, is sent before any broadcast.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, surveyID string, initial []byte) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), surveyID: surveyID}
	if initial != nil {
		c.send <- initial
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return nil
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// Subscribers returns how many clients are listening to a survey.
func (h *Hub) Subscribers(surveyID string) int {
	req := countRequest{surveyID: surveyID, reply: make(chan int, 1)}
	select {
	case h.counts <- req:
		return <-req.reply
	case <-h.done:
		return 0
	}
}
