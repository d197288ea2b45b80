package rpc

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tolelom/arcadechain/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	subscriberSlot = 256
)

// Stream fans committed events out to websocket subscribers. A subscriber
// that cannot keep up is disconnected rather than slowing block commits.
type Stream struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn   *websocket.Conn
	send   chan []byte
	filter map[events.EventType]bool
	once   sync.Once
}

func (s *subscriber) wants(t events.EventType) bool {
	return len(s.filter) == 0 || s.filter[t]
}

// NewStream subscribes to every event on emitter.
func NewStream(emitter *events.Emitter, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stream{
		log: logger.Named("stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
	emitter.SubscribeAll(s.broadcast)
	return s
}

// Subscribers returns the number of connected clients.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// ServeHTTP upgrades the request. The optional "types" query parameter is a
// comma-separated list of event types to receive.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, subscriberSlot)}
	if types := r.URL.Query().Get("types"); types != "" {
		sub.filter = make(map[events.EventType]bool)
		for _, t := range strings.Split(types, ",") {
			sub.filter[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	s.log.Debug("subscriber connected", zap.String("remote", r.RemoteAddr))

	go s.writeLoop(sub)
	s.readLoop(sub)
}

func (s *Stream) broadcast(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.send <- data:
		default:
			s.log.Warn("dropping slow subscriber", zap.String("remote", sub.conn.RemoteAddr().String()))
			s.removeLocked(sub)
		}
	}
}

func (s *Stream) remove(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(sub)
}

func (s *Stream) removeLocked(sub *subscriber) {
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	sub.once.Do(func() { close(sub.send) })
}

// readLoop only services control frames; clients do not send data.
func (s *Stream) readLoop(sub *subscriber) {
	defer func() {
		s.remove(sub)
		sub.conn.Close()
	}()
	sub.conn.SetReadLimit(512)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Stream) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case data, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.remove(sub)
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.remove(sub)
				return
			}
		}
	}
}
