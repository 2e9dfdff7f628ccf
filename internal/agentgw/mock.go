package agentgw

import (
	"context"
	"sync"

	igerrors "ideagraph/internal/errors"
)

// Mock is a scripted Gateway for tests: responses are queued per agent name
// and every invocation is recorded.
type Mock struct {
	mu        sync.Mutex
	responses map[string][]string
	err       error
	Calls     []MockCall
}

// MockCall records one Invoke.
type MockCall struct {
	Agent  string
	Prompt string
	Params map[string]any
}

// NewMock creates an empty mock gateway.
func NewMock() *Mock {
	return &Mock{responses: map[string][]string{}}
}

// Respond queues a raw result for the named agent. Queued results are
// consumed in order; the last one repeats.
func (m *Mock) Respond(agent, result string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[agent] = append(m.responses[agent], result)
	return m
}

// Fail makes every subsequent call return err.
func (m *Mock) Fail(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *Mock) Invoke(_ context.Context, agent, prompt string, params map[string]any) (*InvokeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Agent: agent, Prompt: prompt, Params: params})
	if m.err != nil {
		return nil, m.err
	}

	queue := m.responses[agent]
	if len(queue) == 0 {
		return nil, igerrors.Permanent(errUnknownAgent(agent))
	}
	result := queue[0]
	if len(queue) > 1 {
		m.responses[agent] = queue[1:]
	}
	return &InvokeResult{Result: result, Model: "mock"}, nil
}

func (m *Mock) ListAgents(context.Context) ([]AgentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	var agents []AgentInfo
	for name := range m.responses {
		agents = append(agents, AgentInfo{Name: name})
	}
	return agents, nil
}

type errUnknownAgent string

func (e errUnknownAgent) Error() string { return "no scripted response for agent " + string(e) }
