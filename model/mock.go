package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentswarm/core"
)

// ErrScriptExhausted is returned by MockModel when no scripted step is left.
var ErrScriptExhausted = errors.New("mock model: no scripted response left")

// MockModel is a deterministic, scripted Model for tests and examples. Each
// Generate call consumes the next step in order. Requests are recorded.
type MockModel struct {
	info     Info
	mu       sync.Mutex
	steps    []func(Request) (*Response, error)
	requests []Request
	seq      int
}

// NewMockModel constructs an empty MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: "mock", SupportsTools: true}}
}

// Reply scripts a plain text answer.
func (m *MockModel) Reply(text string) *MockModel {
	return m.Then(func(Request) (*Response, error) {
		return &Response{Message: core.Message{Role: core.RoleAssistant, Content: text}, FinishReason: "stop"}, nil
	})
}

// CallTool scripts a single tool call. args is marshalled to JSON; nil means "{}".
func (m *MockModel) CallTool(name string, args map[string]any) *MockModel {
	return m.CallTools(core.ToolCall{Name: name, Arguments: mustJSON(args)})
}

// CallTools scripts an assistant message carrying several tool calls.
// Calls without an ID get a deterministic one.
func (m *MockModel) CallTools(calls ...core.ToolCall) *MockModel {
	return m.Then(func(Request) (*Response, error) {
		out := make([]core.ToolCall, len(calls))
		for i, c := range calls {
			if c.ID == "" {
				c.ID = m.nextCallID()
			}
			if c.Arguments == "" {
				c.Arguments = "{}"
			}
			out[i] = c
		}
		return &Response{
			Message:      core.Message{Role: core.RoleAssistant, ToolCalls: out},
			FinishReason: "tool_calls",
		}, nil
	})
}

// Fail scripts an error.
func (m *MockModel) Fail(err error) *MockModel {
	return m.Then(func(Request) (*Response, error) { return nil, err })
}

// Then scripts an arbitrary step.
func (m *MockModel) Then(step func(Request) (*Response, error)) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step)
	return m
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, cloneRequest(req))
	if len(m.steps) == 0 {
		m.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	m.mu.Unlock()

	return step(req)
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// Requests returns a copy of every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Pending returns the number of scripted steps not yet consumed.
func (m *MockModel) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}

func (m *MockModel) nextCallID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return fmt.Sprintf("call_%s_%d", m.info.Name, m.seq)
}

func cloneRequest(req Request) Request {
	tools := make([]ToolDefinition, len(req.Tools))
	copy(tools, req.Tools)
	return Request{Messages: core.CloneMessages(req.Messages), Tools: tools, WebSearch: req.WebSearch}
}

func mustJSON(v map[string]any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mock model: marshal args: %v", err))
	}
	return string(b)
}
