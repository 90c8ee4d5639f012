package model

import (
	"context"

	"github.com/hupe1980/agentswarm/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewToolDefinition builds a function ToolDefinition.
func NewToolDefinition(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// Request is the normalized model input. Messages already contain the system
// directive as their first element when the caller wants one.
type Request struct {
	Messages []core.Message  `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	// WebSearch asks the provider to ground the answer with its own web
	// search, where it has one.
	WebSearch bool `json:"web_search,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed model turn.
type Response struct {
	ID           string       `json:"id"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface agents need to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Func adapts a plain function to the Model interface.
type Func func(ctx context.Context, req Request) (*Response, error)

// Generate implements Model.
func (f Func) Generate(ctx context.Context, req Request) (*Response, error) { return f(ctx, req) }

// Info implements Model.
func (f Func) Info() Info { return Info{Name: "func", Provider: "func", SupportsTools: true} }
