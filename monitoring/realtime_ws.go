package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageBytes = 64 << 10
)

// Event types pushed to every open session.
const (
	EventModelReloaded = "model_reloaded"
	EventReloadFailed  = "reload_failed"
)

// MessageHandler turns one inbound text frame into the reply frame.
type MessageHandler func(ctx context.Context, payload []byte) []byte

// Event is a server-initiated notification.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

type session struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub tracks live assessment sessions. Each session answers its own frames
// through the handler; events are fanned out to all sessions.
type Hub struct {
	sessions   map[*session]bool
	register   chan *session
	unregister chan *session
	broadcast  chan []byte
	count      chan chan int

	upgrader websocket.Upgrader
	handler  MessageHandler
	metrics  *Metrics
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub answering frames with handler. Run must be started
// before sessions are served.
func NewHub(handler MessageHandler, metrics *Metrics, origins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[*session]bool),
		register:   make(chan *session),
		unregister: make(chan *session),
		broadcast:  make(chan []byte, 64),
		count:      make(chan chan int),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(origins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		handler: handler,
		metrics: metrics,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// Run owns the session set until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case s := <-h.register:
			h.sessions[s] = true
			if h.metrics != nil {
				h.metrics.SessionOpened()
			}
			h.logger.Debug("session opened", zap.String("session", s.id), zap.Int("sessions", len(h.sessions)))

		case s := <-h.unregister:
			if h.sessions[s] {
				delete(h.sessions, s)
				s.close()
				if h.metrics != nil {
					h.metrics.SessionClosed()
				}
			}
			h.logger.Debug("session closed", zap.String("session", s.id), zap.Int("sessions", len(h.sessions)))

		case message := <-h.broadcast:
			for s := range h.sessions {
				select {
				case s.send <- message:
				default:
					h.logger.Warn("session send queue full, dropping event", zap.String("session", s.id))
				}
			}

		case reply := <-h.count:
			reply <- len(h.sessions)

		case <-h.ctx.Done():
			for s := range h.sessions {
				delete(h.sessions, s)
				s.close()
				if h.metrics != nil {
					h.metrics.SessionClosed()
				}
			}
			return
		}
	}
}

// Stop ends Run and closes every open session.
func (h *Hub) Stop() {
	h.cancel()
}

// Sessions returns the number of open sessions.
func (h *Hub) Sessions() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.ctx.Done():
		return 0
	}
}

// Broadcast queues event for every session. It never blocks.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast queue full, dropping event", zap.String("type", event.Type))
	}
}

// ServeHTTP upgrades the request and registers a new session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s := &session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}
	select {
	case h.register <- s:
	case <-h.ctx.Done():
		conn.Close()
		return
	}
	go h.writePump(s)
	go h.readPump(s)
}

func (h *Hub) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("websocket write failed", zap.String("session", s.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (h *Hub) readPump(s *session) {
	defer func() {
		select {
		case h.unregister <- s:
		case <-h.ctx.Done():
		}
		s.close()
	}()

	s.conn.SetReadLimit(maxMessageBytes)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("session", s.id), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		reply := h.handler(h.ctx, payload)
		select {
		case s.send <- reply:
		case <-s.done:
			return
		}
	}
}
