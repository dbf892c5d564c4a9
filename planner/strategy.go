// Package planner turns a user message into a dispatchable plan: which
// agent should handle it and what payload that agent should receive. The
// dispatcher treats planning as an opaque collaborator — this package
// exists only to give it a minimal, deterministic default.
package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentcore/orchestrator/core"
)

// Plan is the outcome of a successful planning decision: which agent to
// invoke and the payload it should receive.
type Plan struct {
	AgentName string
	Action    string
	Payload   json.RawMessage
}

// Strategy derives a Plan from a raw user message. Implementations may use
// an LLM, a rule table, or a fixed mapping; the dispatcher is agnostic.
type Strategy interface {
	Plan(message string) (Plan, error)
}

// TableStrategy is a deterministic default: the first matching keyword in
// Routes decides the target agent, and the entire message is forwarded
// verbatim as the payload's "message" field.
type TableStrategy struct {
	// Routes maps a lowercase keyword to the agent that should handle any
	// message containing it. Checked in Keywords order; first match wins.
	Keywords []string
	Routes   map[string]string

	// Default is used when no keyword matches. Empty means unrouted
	// messages are a planning failure.
	Default string

	// Action is the action name attached to every derived plan.
	Action string
}

// NewTableStrategy builds a TableStrategy from an ordered keyword list, a
// keyword-to-agent map, and a fallback agent (empty to disable fallback).
func NewTableStrategy(routes map[string]string, keywordOrder []string, defaultAgent, action string) *TableStrategy {
	keywords := make([]string, len(keywordOrder))
	copy(keywords, keywordOrder)
	routeCopy := make(map[string]string, len(routes))
	for k, v := range routes {
		routeCopy[strings.ToLower(k)] = v
	}
	if action == "" {
		action = "handle"
	}
	return &TableStrategy{Keywords: keywords, Routes: routeCopy, Default: defaultAgent, Action: action}
}

// Plan implements Strategy.
func (s *TableStrategy) Plan(message string) (Plan, error) {
	lower := strings.ToLower(message)

	agent := s.Default
	for _, keyword := range s.Keywords {
		if strings.Contains(lower, keyword) {
			if target, ok := s.Routes[keyword]; ok {
				agent = target
				break
			}
		}
	}

	if agent == "" {
		return Plan{}, core.NewFrameworkError("planner.Plan", "PlanningFailed",
			fmt.Errorf("no route matched message and no default agent configured"))
	}

	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return Plan{}, core.NewFrameworkError("planner.Plan", "PlanningFailed", err)
	}

	return Plan{AgentName: agent, Action: s.Action, Payload: payload}, nil
}
