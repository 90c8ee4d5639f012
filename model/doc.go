// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models inside agentswarm.
//
// Core goals:
//   - One narrow interface: a list of messages (plus tool schemas) in, one
//     assistant message with zero or more tool calls out
//   - Normalize tool / function declarations (ToolDefinition)
//   - Facilitate lightweight scripting for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement Model in sub-packages so higher
// layers (agents, swarm) remain decoupled from vendor SDKs.
package model
