// Package core provides the foundational domain types shared by every layer of
// agentswarm:
//
//   - Message and ToolCall (the append-only Message Log)
//   - ConversationState (flat per-conversation state persisted between turns)
//   - Failure and FailureKind (the error taxonomy fed into the retry envelope)
//   - CallBudget (per-turn model call ceiling)
//
// The package has no knowledge of models, tools or routing. Higher layers
// (agent, swarm, runner) depend on it, never the other way around.
package core
