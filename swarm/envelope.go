package swarm

import (
	"fmt"

	"github.com/hupe1980/agentswarm/agent"
	"github.com/hupe1980/agentswarm/core"
)

// Phase is the state of the retry envelope after a node run.
type Phase int

const (
	// Running means the turn continues (handoff in progress).
	Running Phase = iota
	// Success means the node completed; the error count was reset.
	Success
	// RetryableFailure means a retry notice was appended and the turn ended.
	RetryableFailure
	// TerminalFailure means the retry ceiling was reached, or the failure is
	// not retryable, and the turn ended.
	TerminalFailure
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable_failure"
	case TerminalFailure:
		return "terminal_failure"
	default:
		return "unknown"
	}
}

// Envelope applies node outcomes to the conversation state and keeps the
// retry bookkeeping. There is no automatic retry: a failure always ends the
// turn, and the next user turn is the retry.
type Envelope struct{}

// Apply records out on state and returns the resulting phase. A transfer
// outcome only appends its messages and yields Running.
func (Envelope) Apply(state *core.ConversationState, agentName string, out agent.Outcome) Phase {
	out.Apply(state)

	switch out.Status {
	case agent.StatusCompleted:
		state.ErrorCount = 0
		return Success
	case agent.StatusTransfer:
		return Running
	}

	f := out.Failure
	if f == nil {
		f = core.NewFailure(core.Unexpected, agentName, fmt.Errorf("node failed without details"))
	}

	if !f.Retryable() {
		state.Append(core.NewAssistantMessage(agentName, f.UserMessage()))
		return TerminalFailure
	}

	limit := state.RetryLimit()
	state.ErrorCount++
	if state.ErrorCount >= limit {
		state.ErrorCount = limit
		state.Append(core.NewAssistantMessage(agentName, "Max retries reached: "+f.UserMessage()))
		return TerminalFailure
	}

	state.Append(core.NewAssistantMessage(agentName,
		fmt.Sprintf("Execution failed (attempt %d/%d): %s", state.ErrorCount, limit, f.UserMessage())))

	return RetryableFailure
}
