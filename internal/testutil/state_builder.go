package testutil

import (
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/tool"
)

// StateBuilder provides a fluent helper for constructing conversation states
// in tests.
// Example:
//
//	st := NewStateBuilder().User("hi").Handoff("execute_agent", "call-1", "plan_agent").Active("plan_agent").Build()
//
// Chain only the parts you need; the retry ceiling defaults to
// core.DefaultMaxRetries.
type StateBuilder struct {
	state *core.ConversationState
}

// NewStateBuilder creates a builder over an empty state.
func NewStateBuilder() *StateBuilder {
	return &StateBuilder{state: core.NewConversationState()}
}

// User appends a user message (chainable).
func (b *StateBuilder) User(text string) *StateBuilder {
	b.state.Append(core.NewUserMessage(text))
	return b
}

// Assistant appends a plain assistant message attributed to agent (chainable).
func (b *StateBuilder) Assistant(agent, text string) *StateBuilder {
	b.state.Append(core.NewAssistantMessage(agent, text))
	return b
}

// ToolCall appends an assistant message requesting one tool call (chainable).
func (b *StateBuilder) ToolCall(agent, callID, name, args string) *StateBuilder {
	if args == "" {
		args = "{}"
	}
	b.state.Append(core.Message{
		Role:      core.RoleAssistant,
		Agent:     agent,
		ToolCalls: []core.ToolCall{{ID: callID, Name: name, Arguments: args}},
	})
	return b
}

// ToolResult appends the tool message answering callID (chainable).
func (b *StateBuilder) ToolResult(callID, name, content string) *StateBuilder {
	b.state.Append(core.NewToolMessage(callID, name, content))
	return b
}

// Handoff appends a transfer call from agent to target together with its
// synthetic result (chainable).
func (b *StateBuilder) Handoff(agent, callID, target string) *StateBuilder {
	name := tool.HandoffToolName(target)
	return b.ToolCall(agent, callID, name, "{}").ToolResult(callID, name, tool.TransferMessage(target))
}

// Active sets the active agent (chainable).
func (b *StateBuilder) Active(agent string) *StateBuilder { b.state.ActiveAgent = agent; return b }

// Errors sets the error count (chainable).
func (b *StateBuilder) Errors(n int) *StateBuilder { b.state.ErrorCount = n; return b }

// MaxRetries sets the retry ceiling (chainable).
func (b *StateBuilder) MaxRetries(n int) *StateBuilder { b.state.MaxRetries = n; return b }

// Plan toggles planning (chainable).
func (b *StateBuilder) Plan(enabled bool) *StateBuilder { b.state.PlanEnabled = enabled; return b }

// Flags sets progress flags (chainable).
func (b *StateBuilder) Flags(flags ...core.Flag) *StateBuilder {
	for _, f := range flags {
		b.state.SetFlag(f)
	}
	return b
}

// Build returns a copy of the state, so the builder can keep going.
func (b *StateBuilder) Build() *core.ConversationState { return b.state.Clone() }
