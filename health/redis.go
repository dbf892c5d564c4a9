package health

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/agentcore/orchestrator/core"
)

// agentIndexKey is a Redis set tracking every agent name ever written, so
// List can enumerate records without a namespace-wide SCAN.
const agentIndexKey = "agents"

// RedisStore is a durable Store backed by core.RedisClient against
// core.RedisDBHealth. A single orchestrator process is the only writer to
// a given Redis DB in this deployment model, so an in-process mutex around
// each read-modify-write is sufficient to satisfy the per-agent atomicity
// requirement without a Redis-side transaction.
type RedisStore struct {
	client *core.RedisClient
	mu     sync.Mutex
	logger core.Logger
}

// NewRedisStore wraps client as a Store. client should be opened against
// core.RedisDBHealth.
func NewRedisStore(client *core.RedisClient) *RedisStore {
	return &RedisStore{client: client, logger: &core.NoOpLogger{}}
}

// SetLogger wires a component-tagged logger.
func (r *RedisStore) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		r.logger = cal.WithComponent("orchestrator/health")
		return
	}
	r.logger = logger
}

func recordKey(agent string) string { return "agent:" + agent }

func (r *RedisStore) read(ctx context.Context, agent string) Summary {
	raw, err := r.client.Get(ctx, recordKey(agent))
	if err != nil || raw == "" {
		return DefaultSummary(agent)
	}
	var s Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		r.logger.Warn("health: corrupt record, treating as default", map[string]interface{}{
			"agent": agent, "error": err.Error(),
		})
		return DefaultSummary(agent)
	}
	return s
}

func (r *RedisStore) write(ctx context.Context, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, recordKey(s.Agent), string(data), 0); err != nil {
		return err
	}
	return r.client.SAdd(ctx, agentIndexKey, s.Agent)
}

func (r *RedisStore) RecordSuccess(ctx context.Context, agent string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{Agent: agent, State: Healthy, LastSuccessAt: &now}
	if err := r.write(ctx, s); err != nil {
		r.logger.Error("health: failed to persist success", map[string]interface{}{
			"agent": agent, "error": err.Error(),
		})
		return core.NewFrameworkError("health.RedisStore.RecordSuccess", "Internal", err)
	}
	return nil
}

func (r *RedisStore) RecordFailure(ctx context.Context, agent string, now time.Time, policy CircuitPolicy) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.read(ctx, agent)
	updated := applyFailure(agent, current, now, policy)

	if err := r.write(ctx, updated); err != nil {
		r.logger.Error("health: failed to persist failure", map[string]interface{}{
			"agent": agent, "error": err.Error(),
		})
		return Summary{}, core.NewFrameworkError("health.RedisStore.RecordFailure", "Internal", err)
	}
	if updated.State == Unhealthy {
		r.logger.Warn("circuit tripped", map[string]interface{}{
			"agent": agent, "consecutive_failures": updated.ConsecutiveFailures,
		})
	}
	return updated, nil
}

func (r *RedisStore) Get(ctx context.Context, agent string) (Summary, error) {
	return r.read(ctx, agent), nil
}

func (r *RedisStore) List(ctx context.Context) ([]Summary, error) {
	names, err := r.client.SMembers(ctx, agentIndexKey)
	if err != nil {
		return nil, core.NewFrameworkError("health.RedisStore.List", "Internal", err)
	}
	out := make([]Summary, 0, len(names))
	for _, name := range names {
		out = append(out, r.read(ctx, name))
	}
	return out, nil
}
