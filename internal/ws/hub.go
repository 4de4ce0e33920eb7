// In-process topic hub.
//
// The hub tracks long-lived sessions and their subscriptions, and fans
// published events out to every session subscribed to a topic at publish
// time. Delivery is best-effort: there is no retained history or replay on
// (re)subscribe, and an event for a session whose outbound buffer is full or
// whose connection has closed is dropped. A reconnecting client reconciles
// through the HTTP history endpoints.
//
// Each session's inbound frames are processed one at a time in arrival order
// by its reader (see the transport handler); sessions run concurrently with
// each other. The hub itself is safe for concurrent use.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	// sessionsActive gauges the number of connected sessions.
	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_sessions_active",
		Help: "Current number of connected websocket sessions.",
	})

	// eventsPublished counts events published to the hub by event type.
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_events_published_total",
		Help: "Total number of events published to the hub.",
	}, []string{"type"})

	// eventsDropped counts events dropped because a subscriber's outbound
	// buffer was full or its session had closed.
	eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_events_dropped_total",
		Help: "Total number of events dropped on delivery.",
	})
)

func init() {
	prometheus.MustRegister(sessionsActive, eventsPublished, eventsDropped)
}

// WriteFunc delivers one event frame to a client. The hub write loop invokes
// it sequentially per session.
type WriteFunc func(ctx context.Context, ev Event) error

// Session is one authenticated connection to the hub. Identity is bound at
// connect time and fixed for the session's lifetime.
type Session struct {
	Identity string

	send   chan Event
	write  WriteFunc
	ping   func(ctx context.Context) error
	conn   *websocket.Conn // nil when attached via Attach (tests)
	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the session's lifetime context. It is canceled when the
// session is removed from the hub.
func (s *Session) Context() context.Context { return s.ctx }

// Hub fans events out to subscribed sessions by canonical topic name.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]map[string]struct{} // session -> subscribed topics
	byTopic  map[string]map[*Session]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: map[*Session]map[string]struct{}{},
		byTopic:  map[string]map[*Session]struct{}{},
	}
}

// Attach registers a session delivering frames through write. It is the
// transport-agnostic primitive behind AttachConn and the seam tests use.
func (h *Hub) Attach(identity string, write WriteFunc) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Identity: identity,
		send:     make(chan Event, 64),
		write:    write,
		ctx:      ctx,
		cancel:   cancel,
	}

	h.mu.Lock()
	h.sessions[s] = map[string]struct{}{}
	h.mu.Unlock()
	sessionsActive.Inc()

	go s.writeLoop()
	return s
}

// AttachConn registers a websocket connection as a session and starts its
// write and keep-alive loops.
func (h *Hub) AttachConn(identity string, conn *websocket.Conn) *Session {
	s := h.Attach(identity, func(ctx context.Context, ev Event) error {
		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return wsjson.Write(writeCtx, conn, ev)
	})
	s.conn = conn
	s.ping = conn.Ping
	go s.keepAlive(25 * time.Second)
	return s
}

// Remove drops a session from the hub, invalidating all of its subscriptions
// immediately. In-flight publishes to the session are dropped.
func (h *Hub) Remove(s *Session) {
	s.cancel()

	h.mu.Lock()
	if topics, ok := h.sessions[s]; ok {
		for topic := range topics {
			h.dropSubscriberLocked(topic, s)
		}
		delete(h.sessions, s)
		sessionsActive.Dec()
	}
	h.mu.Unlock()

	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

// Subscribe binds the session to a canonical topic name. The caller is
// responsible for authorization (see Authorizer). Subscribing twice is a
// no-op.
func (h *Hub) Subscribe(s *Session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s]; !ok {
		return // already removed
	}
	h.sessions[s][topic] = struct{}{}
	if h.byTopic[topic] == nil {
		h.byTopic[topic] = map[*Session]struct{}{}
	}
	h.byTopic[topic][s] = struct{}{}
}

// Unsubscribe removes a single topic binding.
func (h *Hub) Unsubscribe(s *Session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if topics, ok := h.sessions[s]; ok {
		delete(topics, topic)
	}
	h.dropSubscriberLocked(topic, s)
}

// Publish delivers ev to every session subscribed to topic at publish time.
// Sessions whose outbound buffer is full are skipped rather than blocked on.
func (h *Hub) Publish(topic string, ev Event) {
	eventsPublished.WithLabelValues(ev.Type).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.byTopic[topic] {
		select {
		case <-s.ctx.Done():
			eventsDropped.Inc()
		case s.send <- ev:
		default:
			eventsDropped.Inc()
		}
	}
}

// SessionCount returns the number of attached sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// dropSubscriberLocked removes s from a topic set, pruning empty sets.
// Callers must hold h.mu.
func (h *Hub) dropSubscriberLocked(topic string, s *Session) {
	if set, ok := h.byTopic[topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.byTopic, topic)
		}
	}
}

// Send enqueues an event directly to this session (outside topic fan-out),
// used for subscribe acknowledgments and error frames. Full buffers drop.
func (s *Session) Send(ev Event) {
	select {
	case <-s.ctx.Done():
	case s.send <- ev:
	default:
		eventsDropped.Inc()
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.send:
			if err := s.write(s.ctx, ev); err != nil {
				return
			}
		}
	}
}

// keepAlive pings the peer on every tick. A failed ping cancels the session
// so the read and write loops unwind immediately instead of waiting out the
// transport timeout on a dead peer.
func (s *Session) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
			err := s.ping(pingCtx)
			cancel()
			if err != nil {
				s.cancel()
				return
			}
		}
	}
}
