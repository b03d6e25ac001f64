package sse

import (
	"context"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/foldkeeper/foldkeeper/internal/id"
)

const (
	queueSize        = 1000
	clientBufferSize = 100
)

// Client is one connected stream. EventChan and Done are closed together
// when the client goes away.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string

	// Empty means every type.
	types map[EventType]bool
}

// Wants reports whether the client subscribed to t. Heartbeats always pass.
func (c *Client) Wants(t EventType) bool {
	return len(c.types) == 0 || t == EventHeartbeat || c.types[t]
}

func (c *Client) close() {
	close(c.Done)
	close(c.EventChan)
}

// Manager fans events out to clients. Emit queues, the Start loop delivers.
type Manager struct {
	logger    *slog.Logger
	heartbeat time.Duration
	loop      sync.WaitGroup

	// queueMu orders Emit against the close in Shutdown.
	queueMu sync.RWMutex
	queue   chan Event
	closed  bool

	mu      sync.RWMutex
	clients map[string]*Client
	latest  map[EventType]Event
	seq     uint64
}

// stateEvents describe current state rather than something that happened,
// so a new client gets the latest of each straight away.
var stateEvents = []EventType{EventPendingChanged, EventStatsUpdated}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:    logger,
		heartbeat: 30 * time.Second,
		queue:     make(chan Event, queueSize),
		clients:   make(map[string]*Client),
		latest:    make(map[EventType]Event),
	}
}

// Start delivers queued events and heartbeats until ctx is canceled or the
// manager is shut down. Run it once, in its own goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.loop.Add(1)
	defer m.loop.Done()

	tick := time.NewTicker(m.heartbeat)
	defer tick.Stop()

	m.logger.Info("event stream started")
	for {
		select {
		case ev, ok := <-m.queue:
			if !ok {
				return
			}
			m.broadcast(ev)
		case <-tick.C:
			m.broadcast(NewHeartbeatEvent())
		case <-ctx.Done():
			m.logger.Info("event stream stopping")
			m.closeAll()
			return
		}
	}
}

// Shutdown stops Emit, delivers what is already queued (until ctx expires)
// and disconnects every client. Later calls do nothing.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.queueMu.Lock()
	if m.closed {
		m.queueMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.queueMu.Unlock()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range m.queue {
			m.broadcast(ev)
		}
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("event stream shutdown timed out, queued events dropped")
	}

	m.loop.Wait()
	m.closeAll()
	m.logger.Info("event stream stopped")
	return nil
}

// broadcast numbers ev and hands it to every interested client without
// blocking. A client whose buffer is full misses the event.
func (m *Manager) broadcast(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Type != EventHeartbeat {
		m.seq++
		ev.ID = m.seq
	}
	if slices.Contains(stateEvents, ev.Type) {
		m.latest[ev.Type] = ev
	}

	var delivered, skipped, dropped int
	for _, c := range m.clients {
		if !c.Wants(ev.Type) {
			skipped++
			continue
		}
		select {
		case c.EventChan <- ev:
			delivered++
		default:
			dropped++
			m.logger.Warn("client too slow, event dropped",
				slog.String("client_id", c.ID),
				slog.String("event_type", string(ev.Type)))
		}
	}

	if ev.Type != EventHeartbeat {
		m.logger.Debug("event broadcast",
			slog.String("event_type", string(ev.Type)),
			slog.Uint64("id", ev.ID),
			slog.Int("delivered", delivered),
			slog.Int("skipped", skipped),
			slog.Int("dropped", dropped))
	}
}

// Connect registers a client for types (all when none are given) and queues
// the latest state events for it. Registration and replay happen under the
// same lock as broadcast, so nothing falls between them.
func (m *Manager) Connect(types ...EventType) (*Client, error) {
	clientID, err := id.Generate(id.PrefixClient)
	if err != nil {
		return nil, err
	}

	c := &Client{
		ID:          clientID,
		EventChan:   make(chan Event, clientBufferSize),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}
	if len(types) > 0 {
		c.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			c.types[t] = true
		}
	}

	m.mu.Lock()
	for _, t := range stateEvents {
		if ev, ok := m.latest[t]; ok && c.Wants(t) {
			c.EventChan <- ev
		}
	}
	m.clients[c.ID] = c
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("client connected",
		slog.String("client_id", c.ID),
		slog.Int("types", len(types)),
		slog.Int("total_clients", total))
	return c, nil
}

// Disconnect drops a client. Unknown ids are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	c, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
		c.close()
	}
	total := len(m.clients)
	m.mu.Unlock()

	if ok {
		m.logger.Info("client disconnected",
			slog.String("client_id", clientID),
			slog.Duration("connected_for", time.Since(c.ConnectedAt)),
			slog.Int("total_clients", total))
	}
}

// Emit queues ev without blocking. Events are dropped once the queue is full
// or the manager has shut down.
func (m *Manager) Emit(ev Event) {
	m.queueMu.RLock()
	defer m.queueMu.RUnlock()

	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		m.logger.Error("event queue full, event dropped", slog.String("event_type", string(ev.Type)))
	}
}

// Latest returns the most recent state event of type t.
func (m *Manager) Latest(t EventType) (Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.latest[t]
	return ev, ok
}

// Clients iterates the connected clients under a read lock.
func (m *Manager) Clients() iter.Seq[*Client] {
	return func(yield func(*Client) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for _, c := range m.clients {
			if !yield(c) {
				return
			}
		}
	}
}

func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.clients {
		c.close()
	}
	clear(m.clients)
}
