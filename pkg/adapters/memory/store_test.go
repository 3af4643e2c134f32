package memory_test

import (
	"testing"

	"github.com/aretw0/agentgraph/pkg/adapters/memory"
	"github.com/aretw0/agentgraph/pkg/ports"
)

func TestCheckpointer_Contract(t *testing.T) {
	ports.RunCheckpointerContract(t, memory.New())
}
