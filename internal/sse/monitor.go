package sse

import (
	"sync"
	"time"
)

// connState tracks one active SSE connection's bookkeeping. The monitor
// itself never inspects session-level research state (spec §5's
// shared-resource policy reserves that for the Session Registry) — it only
// knows whether a connection is alive, errored, or has overstayed the
// whole-session timeout.
type connState struct {
	startedAt time.Time
	errored   bool
}

// Monitor is the process-wide, mutex-guarded SSE Connection Monitor (spec
// §4.8 step 5, §5's "in-memory SSE connection monitor (locked)"). One
// instance is shared across all sessions.
type Monitor struct {
	mu    sync.Mutex
	conns map[string]*connState
}

// NewMonitor constructs an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{conns: make(map[string]*connState)}
}

// Register records a freshly opened connection.
func (m *Monitor) Register(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[sessionID] = &connState{startedAt: time.Now()}
}

// MarkErrored flags a connection as errored (disconnect detected, or
// whole-session timeout elapsed). Idempotent.
func (m *Monitor) MarkErrored(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conns[sessionID]; ok {
		c.errored = true
	}
}

// IsErrored reports whether the connection has been flagged errored.
func (m *Monitor) IsErrored(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[sessionID]
	return ok && c.errored
}

// Remove deletes the connection entry, called once the orchestrator's
// run_stream handler returns (spec §4.8 step 7's post-cancellation
// cleanup).
func (m *Monitor) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, sessionID)
}

// SweepExpired marks errored every connection older than timeout, calling
// onExpired once per newly-expired session so the caller can propagate the
// cancellation into the Session Registry. Meant to be driven by a periodic
// ticker from the orchestrator (spec §5: whole-session timeout 1800 s).
func (m *Monitor) SweepExpired(timeout time.Duration, onExpired func(sessionID string)) {
	now := time.Now()
	var expired []string
	m.mu.Lock()
	for id, c := range m.conns {
		if !c.errored && now.Sub(c.startedAt) > timeout {
			c.errored = true
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		onExpired(id)
	}
}
