package planner

import (
	"encoding/json"
	"testing"
)

func TestTableStrategyRoutesOnKeyword(t *testing.T) {
	s := NewTableStrategy(
		map[string]string{"weather": "weather-agent", "joke": "joke-agent"},
		[]string{"weather", "joke"},
		"", "handle",
	)

	plan, err := s.Plan("what's the weather like today?")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.AgentName != "weather-agent" {
		t.Errorf("AgentName = %q, want weather-agent", plan.AgentName)
	}

	var payload map[string]string
	if err := json.Unmarshal(plan.Payload, &payload); err != nil {
		t.Fatalf("Payload did not unmarshal: %v", err)
	}
	if payload["message"] != "what's the weather like today?" {
		t.Errorf("payload message = %q, want original message echoed", payload["message"])
	}
}

func TestTableStrategyFirstKeywordWins(t *testing.T) {
	s := NewTableStrategy(
		map[string]string{"weather": "weather-agent", "joke": "joke-agent"},
		[]string{"joke", "weather"},
		"", "handle",
	)

	plan, err := s.Plan("tell me a joke about the weather")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.AgentName != "joke-agent" {
		t.Errorf("AgentName = %q, want joke-agent (first keyword in order)", plan.AgentName)
	}
}

func TestTableStrategyFallsBackToDefault(t *testing.T) {
	s := NewTableStrategy(
		map[string]string{"weather": "weather-agent"},
		[]string{"weather"},
		"echo", "handle",
	)

	plan, err := s.Plan("ping")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.AgentName != "echo" {
		t.Errorf("AgentName = %q, want default echo", plan.AgentName)
	}
}

func TestTableStrategyFailsWithoutDefault(t *testing.T) {
	s := NewTableStrategy(map[string]string{"weather": "weather-agent"}, []string{"weather"}, "", "handle")

	if _, err := s.Plan("ping"); err == nil {
		t.Error("Plan() with no match and no default expected an error, got nil")
	}
}
