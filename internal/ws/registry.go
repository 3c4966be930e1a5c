package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/stacks-agent-crew/backend/internal/metrics"
)

// Conn is the transport-side surface the registry needs from a connection.
// The production implementation wraps *websocket.Conn; tests substitute
// in-memory fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Registry tracks which connections are subscribed to which channel and
// delivers messages to all of them, pruning connections whose sends fail.
// A channel with zero connections is deleted immediately.
type Registry struct {
	kind string

	mu       sync.RWMutex
	channels map[string]map[Conn]time.Time

	// now is swappable for TTL tests.
	now func() time.Time

	metrics *metrics.Metrics
}

// NewRegistry creates a registry for one channel kind (job, thread, session).
func NewRegistry(kind string, m *metrics.Metrics) *Registry {
	return &Registry{
		kind:     kind,
		channels: make(map[string]map[Conn]time.Time),
		now:      time.Now,
		metrics:  m,
	}
}

// Connect registers a connection under the channel ID, creating the channel
// on first use. The connection's last-active timestamp is initialized to now.
func (r *Registry) Connect(channelID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.channels[channelID]
	if !ok {
		conns = make(map[Conn]time.Time)
		r.channels[channelID] = conns
	}
	conns[conn] = r.now()

	if r.metrics != nil {
		r.metrics.WSConnections.WithLabelValues(r.kind).Inc()
	}
}

// Disconnect removes a connection from the channel, deleting the channel if
// it becomes empty. Calling it twice, or for an unknown channel, is a no-op.
func (r *Registry) Disconnect(channelID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.channels[channelID]
	if !ok {
		return
	}
	if _, present := conns[conn]; !present {
		return
	}

	delete(conns, conn)
	if len(conns) == 0 {
		delete(r.channels, channelID)
	}

	if r.metrics != nil {
		r.metrics.WSConnections.WithLabelValues(r.kind).Dec()
	}
}

// Send delivers a JSON-serializable message to every connection on the
// channel. A failed send drops only the failed connection and never aborts
// delivery to the others; successful sends refresh the connection's
// last-active timestamp. Sending to an unknown channel is a no-op.
func (r *Registry) Send(channelID string, message any) {
	r.mu.RLock()
	conns, ok := r.channels[channelID]
	if !ok {
		r.mu.RUnlock()
		return
	}
	// Snapshot before any network I/O so connect/disconnect interleavings
	// cannot invalidate iteration.
	targets := make([]Conn, 0, len(conns))
	for conn := range conns {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	delivered := make([]Conn, 0, len(targets))
	var failed []Conn
	for _, conn := range targets {
		if err := conn.WriteJSON(message); err != nil {
			log.Printf("Error sending message to %s WebSocket: %v", r.kind, err)
			failed = append(failed, conn)
			continue
		}
		delivered = append(delivered, conn)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok = r.channels[channelID]
	if !ok {
		return
	}
	sentAt := r.now()
	for _, conn := range delivered {
		if _, present := conns[conn]; present {
			conns[conn] = sentAt
		}
	}
	for _, conn := range failed {
		if _, present := conns[conn]; present {
			delete(conns, conn)
			if r.metrics != nil {
				r.metrics.WSConnections.WithLabelValues(r.kind).Dec()
				r.metrics.WSConnectionsDropped.WithLabelValues(r.kind, "send_error").Inc()
			}
		}
	}
	if len(conns) == 0 {
		delete(r.channels, channelID)
	}

	if r.metrics != nil {
		r.metrics.WSMessagesSent.WithLabelValues(r.kind).Add(float64(len(delivered)))
	}
}

// BroadcastError sends a fixed error payload to every connection on the
// channel.
func (r *Registry) BroadcastError(channelID, errorText string) {
	r.Send(channelID, NewErrorMessage(errorText))
}

// SweepExpired closes and removes every connection idle longer than ttl,
// deleting channels left empty. Close errors are logged and swallowed.
// It returns the number of evicted connections.
func (r *Registry) SweepExpired(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-ttl)
	evicted := 0

	for channelID, conns := range r.channels {
		for conn, lastActive := range conns {
			if lastActive.After(cutoff) {
				continue
			}
			if err := conn.Close(); err != nil {
				log.Printf("Error closing expired %s WebSocket: %v", r.kind, err)
			}
			delete(conns, conn)
			evicted++
			if r.metrics != nil {
				r.metrics.WSConnections.WithLabelValues(r.kind).Dec()
				r.metrics.WSConnectionsDropped.WithLabelValues(r.kind, "ttl").Inc()
			}
		}
		if len(conns) == 0 {
			delete(r.channels, channelID)
		}
	}

	return evicted
}

// ConnCount returns the number of connections on a channel.
func (r *Registry) ConnCount(channelID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channelID])
}

// ChannelCount returns the number of live channels.
func (r *Registry) ChannelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Close closes every connection and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for channelID, conns := range r.channels {
		for conn := range conns {
			conn.Close()
		}
		delete(r.channels, channelID)
	}
}

// Manager bundles the job, thread, and session registries and runs their
// shared TTL sweeper. It is constructed once at process start and passed by
// reference to whatever handles connections.
type Manager struct {
	Jobs     *Registry
	Threads  *Registry
	Sessions *Registry

	metrics *metrics.Metrics
}

// NewManager creates the three channel registries.
func NewManager(m *metrics.Metrics) *Manager {
	return &Manager{
		Jobs:     NewRegistry("job", m),
		Threads:  NewRegistry("thread", m),
		Sessions: NewRegistry("session", m),
		metrics:  m,
	}
}

// Run sweeps expired connections on a fixed period until the context is
// cancelled. Designed to run for the lifetime of the process.
func (m *Manager) Run(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			evicted := m.Jobs.SweepExpired(ttl)
			evicted += m.Threads.SweepExpired(ttl)
			evicted += m.Sessions.SweepExpired(ttl)
			if evicted > 0 {
				log.Printf("WebSocket sweeper evicted %d idle connections", evicted)
			}
			if m.metrics != nil {
				m.metrics.SweeperEvictions.Add(float64(evicted))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close closes all connections in all registries.
func (m *Manager) Close() {
	m.Jobs.Close()
	m.Threads.Close()
	m.Sessions.Close()
}
