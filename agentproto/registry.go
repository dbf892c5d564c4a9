package agentproto

import (
	"fmt"

	"github.com/agentcore/orchestrator/core"
)

// Registry resolves an agent name to the executable that implements it.
// Planning Strategies deal only in agent names; the Executor asks a
// Registry to turn a name into something it can exec.
type Registry interface {
	Resolve(agentName string) (string, error)
}

// StaticRegistry is a fixed name-to-executable map, loaded once at startup
// from configuration (core.AgentsConfig.Executables) and never mutated
// afterward.
type StaticRegistry struct {
	executables map[string]string
}

// NewStaticRegistry builds a Registry from a name-to-executable-path map.
// The map is copied; callers may discard or mutate their original.
func NewStaticRegistry(executables map[string]string) *StaticRegistry {
	clone := make(map[string]string, len(executables))
	for name, path := range executables {
		clone[name] = path
	}
	return &StaticRegistry{executables: clone}
}

// Resolve looks up agentName in the static map.
func (r *StaticRegistry) Resolve(agentName string) (string, error) {
	path, ok := r.executables[agentName]
	if !ok {
		return "", core.NewFrameworkError("registry.Resolve", "AgentUnavailable",
			fmt.Errorf("%w: %s", core.ErrAgentUnknown, agentName))
	}
	return path, nil
}

// Names returns every agent name the registry knows about, for diagnostics
// and Planning Strategy validation at startup.
func (r *StaticRegistry) Names() []string {
	names := make([]string, 0, len(r.executables))
	for name := range r.executables {
		names = append(names, name)
	}
	return names
}
