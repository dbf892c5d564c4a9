package agentproto

import (
	"errors"
	"testing"

	"github.com/agentcore/orchestrator/core"
)

func TestStaticRegistryResolve(t *testing.T) {
	reg := NewStaticRegistry(map[string]string{
		"echo":    "/usr/local/bin/agent-echo",
		"weather": "/usr/local/bin/agent-weather",
	})

	path, err := reg.Resolve("echo")
	if err != nil {
		t.Fatalf("Resolve(echo) error = %v", err)
	}
	if path != "/usr/local/bin/agent-echo" {
		t.Errorf("Resolve(echo) = %q, want /usr/local/bin/agent-echo", path)
	}
}

func TestStaticRegistryResolveUnknown(t *testing.T) {
	reg := NewStaticRegistry(map[string]string{"echo": "/bin/echo"})

	_, err := reg.Resolve("does-not-exist")
	if !errors.Is(err, core.ErrAgentUnknown) {
		t.Errorf("Resolve(unknown) error = %v, want ErrAgentUnknown", err)
	}
}

func TestStaticRegistryNamesIsIndependentCopy(t *testing.T) {
	source := map[string]string{"echo": "/bin/echo"}
	reg := NewStaticRegistry(source)
	source["weather"] = "/bin/weather"

	if len(reg.Names()) != 1 {
		t.Errorf("registry should not observe mutations to the map it was built from, got names = %v", reg.Names())
	}
}
