package core

import "strings"

// Role identifies the author of a Message.
type Role string

const (
	// RoleUser marks messages written by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by a model.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool results correlated to an assistant tool call.
	RoleTool Role = "tool"
	// RoleSystem marks directives. They are never persisted by agents; nodes
	// rebuild their own directive on every model call.
	RoleSystem Role = "system"
)

// ToolCall is a request, emitted by a model, to invoke a named tool with JSON
// encoded arguments.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one immutable entry of the Message Log.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCallID correlates a tool message with the assistant ToolCall it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Name carries the tool name on tool messages.
	Name string `json:"name,omitempty"`
	// ToolCalls are the calls requested by an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Agent records which swarm member produced the message.
	Agent string `json:"agent,omitempty"`
}

// NewUserMessage creates a user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// NewSystemMessage creates a system directive.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// NewAssistantMessage creates an assistant message attributed to agent.
func NewAssistantMessage(agent, text string) Message {
	return Message{Role: RoleAssistant, Content: text, Agent: agent}
}

// NewToolMessage creates a tool result answering the call with the given id.
func NewToolMessage(callID, toolName, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: toolName}
}

// HasToolCalls reports whether the message requests any tool invocation.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		copy(calls, m.ToolCalls)
		m.ToolCalls = calls
	}
	return m
}

// WithoutSystem returns the messages minus any system directives, preserving order.
func WithoutSystem(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// CloneMessages deep copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Transcript renders messages as "role: content" lines. Tool calls are listed
// by name. Used by the CLI and by log statements.
func Transcript(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		if m.Agent != "" {
			b.WriteString("[" + m.Agent + "]")
		}
		if m.Name != "" {
			b.WriteString("(" + m.Name + ")")
		}
		b.WriteString(": ")
		b.WriteString(m.Content)
		for _, tc := range m.ToolCalls {
			b.WriteString(" -> " + tc.Name + tc.Arguments)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
