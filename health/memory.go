package health

import (
	"context"
	"sync"
	"time"

	"github.com/agentcore/orchestrator/core"
)

// MemoryStore is an in-process Store backed by a mutex-protected map. It is
// the fallback backend when Redis is disabled, and the backend used by
// tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Summary
	logger  core.Logger
}

// NewMemoryStore creates an empty in-memory health store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Summary),
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger wires a component-tagged logger; logs are emitted at Debug for
// routine updates and Warn when a circuit trips.
func (m *MemoryStore) SetLogger(logger core.Logger) {
	if logger == nil {
		m.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		m.logger = cal.WithComponent("orchestrator/health")
		return
	}
	m.logger = logger
}

func (m *MemoryStore) RecordSuccess(ctx context.Context, agent string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[agent] = Summary{Agent: agent, State: Healthy, LastSuccessAt: &now}
	m.logger.Debug("health record reset to healthy", map[string]interface{}{"agent": agent})
	return nil
}

func (m *MemoryStore) RecordFailure(ctx context.Context, agent string, now time.Time, policy CircuitPolicy) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.records[agent]
	if !ok {
		current = DefaultSummary(agent)
	}
	updated := applyFailure(agent, current, now, policy)
	m.records[agent] = updated

	if updated.State == Unhealthy {
		m.logger.Warn("circuit tripped", map[string]interface{}{
			"agent":                agent,
			"consecutive_failures": updated.ConsecutiveFailures,
			"circuit_open_until":   updated.CircuitOpenUntil.Format(time.RFC3339),
		})
	} else {
		m.logger.Debug("health record degraded", map[string]interface{}{
			"agent": agent, "consecutive_failures": updated.ConsecutiveFailures,
		})
	}
	return updated, nil
}

func (m *MemoryStore) Get(ctx context.Context, agent string) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.records[agent]; ok {
		return s, nil
	}
	return DefaultSummary(agent), nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Summary, 0, len(m.records))
	for _, s := range m.records {
		out = append(out, s)
	}
	return out, nil
}
