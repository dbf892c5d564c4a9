// Package health implements the Agent Health Record and Circuit Store: the
// durable per-agent bookkeeping the Plan Dispatcher consults pre-flight and
// the Retry Controller updates after every attempt.
package health

import (
	"context"
	"time"

	"github.com/agentcore/orchestrator/core"
)

// State is the three-valued health classification of an agent.
type State string

const (
	Healthy   State = "Healthy"
	Degraded  State = "Degraded"
	Unhealthy State = "Unhealthy"
)

// Summary is a point-in-time view of one agent's health record.
//
// Invariants (enforced by the Store implementations, not by this type):
//   - Healthy implies ConsecutiveFailures == 0 and CircuitOpenUntil == nil.
//   - Unhealthy implies CircuitOpenUntil is set to the instant the circuit
//     tripped plus its cooldown.
//   - Degraded means 0 < ConsecutiveFailures < failure_threshold and
//     CircuitOpenUntil is nil.
type Summary struct {
	Agent               string     `json:"agent"`
	State               State      `json:"health"`
	ConsecutiveFailures uint32     `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	CircuitOpenUntil    *time.Time `json:"circuit_open_until,omitempty"`
}

// DefaultSummary is the implicit record for an agent with no recorded
// history: healthy, zero consecutive failures, no open circuit.
func DefaultSummary(agent string) Summary {
	return Summary{Agent: agent, State: Healthy}
}

// CircuitOpen reports whether the circuit for this summary is tripped at
// instant now — i.e. the pre-flight check in the Plan Dispatcher must
// refuse dispatch.
func (s Summary) CircuitOpen(now time.Time) bool {
	return s.State == Unhealthy && s.CircuitOpenUntil != nil && s.CircuitOpenUntil.After(now)
}

// CircuitPolicy carries the two circuit-relevant fields out of an agent's
// full retry policy; RecordFailure only needs these two, not the timeout
// and backoff settings that live alongside them in core.RetryPolicy.
type CircuitPolicy struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// PolicyFrom extracts the circuit-relevant fields from a resolved retry
// policy (core.AgentsConfig.PolicyFor's return value).
func PolicyFrom(p core.RetryPolicy) CircuitPolicy {
	return CircuitPolicy{FailureThreshold: p.FailureThreshold, Cooldown: p.Cooldown}
}

// Store is the Health & Circuit Store contract. Implementations must make
// RecordSuccess/RecordFailure atomic per agent name; no ordering is
// required across distinct agents.
type Store interface {
	// RecordSuccess resets the named agent to Healthy/0, clearing any open
	// circuit.
	RecordSuccess(ctx context.Context, agent string, now time.Time) error

	// RecordFailure increments the agent's consecutive-failure counter and
	// trips the circuit once the policy's failure threshold is reached,
	// returning the record as it was left after the update.
	RecordFailure(ctx context.Context, agent string, now time.Time, policy CircuitPolicy) (Summary, error)

	// Get returns the current summary for agent, or DefaultSummary(agent)
	// if no record exists yet.
	Get(ctx context.Context, agent string) (Summary, error)

	// List returns every agent with a recorded history.
	List(ctx context.Context) ([]Summary, error)
}

// applyFailure computes the record that results from one more failure on
// top of current, per spec: failures := current.ConsecutiveFailures + 1;
// trip the circuit once failures >= policy.FailureThreshold.
func applyFailure(agent string, current Summary, now time.Time, policy CircuitPolicy) Summary {
	failures := current.ConsecutiveFailures + 1
	updated := Summary{
		Agent:               agent,
		ConsecutiveFailures: failures,
		LastSuccessAt:       current.LastSuccessAt,
		LastFailureAt:       &now,
	}
	if policy.FailureThreshold > 0 && int(failures) >= policy.FailureThreshold {
		updated.State = Unhealthy
		deadline := now.Add(policy.Cooldown)
		updated.CircuitOpenUntil = &deadline
	} else {
		updated.State = Degraded
	}
	return updated
}
