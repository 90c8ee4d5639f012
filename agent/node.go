package agent

import (
	"context"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/tool"
)

// Node is one agent in a swarm. Run must not modify state.
//
// The returned error is reserved for aborts (context cancellation); every
// other problem is reported as a failed Outcome.
type Node interface {
	Name() string
	Run(ctx context.Context, state *core.ConversationState) (Outcome, error)
}

// HandoffAware is implemented by nodes that accept handoff tools. The swarm
// calls SetHandoffs once, at construction, with the tools for the node's
// allowed targets. A node belongs to a single swarm: a second call fails
// with ErrAlreadyWired.
type HandoffAware interface {
	Node
	SetHandoffs(handoffs []tool.Tool) error
}

// Status tags an Outcome.
type Status int

const (
	// StatusCompleted means the node answered without a handoff.
	StatusCompleted Status = iota
	// StatusTransfer means the node asked to hand control to Target.
	StatusTransfer
	// StatusFailed means the node failed; Failure is set.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusTransfer:
		return "transfer"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of running a node.
type Outcome struct {
	Status Status
	// Messages are the new messages to append, in causal order. For a
	// transfer they end with the synthetic transfer tool result.
	Messages []core.Message
	// Flags are progress markers to set. On a failed outcome they belong to
	// stages that completed before the failure (see Sequential).
	Flags []core.Flag
	// Target is the requested agent for StatusTransfer.
	Target string
	// Failure is set for StatusFailed.
	Failure *core.Failure
}

// Completed builds a successful outcome.
func Completed(msgs []core.Message, flags ...core.Flag) Outcome {
	return Outcome{Status: StatusCompleted, Messages: msgs, Flags: compactFlags(flags)}
}

// Transfer builds a handoff outcome.
func Transfer(target string, msgs []core.Message, flags ...core.Flag) Outcome {
	return Outcome{Status: StatusTransfer, Target: target, Messages: msgs, Flags: compactFlags(flags)}
}

// Failed builds a failed outcome. msgs are messages that were already
// committed by earlier stages (see Sequential) and must be kept.
func Failed(f *core.Failure, msgs ...core.Message) Outcome {
	return Outcome{Status: StatusFailed, Failure: f, Messages: msgs}
}

// FailedAfter is Failed for a pipeline whose earlier stages completed: their
// messages and flags stay committed.
func FailedAfter(f *core.Failure, msgs []core.Message, flags []core.Flag) Outcome {
	return Outcome{Status: StatusFailed, Failure: f, Messages: msgs, Flags: compactFlags(flags)}
}

// Apply appends the outcome's messages to state and sets its flags.
func (o Outcome) Apply(state *core.ConversationState) {
	state.Append(core.CloneMessages(o.Messages)...)
	for _, f := range o.Flags {
		state.SetFlag(f)
	}
}

func compactFlags(flags []core.Flag) []core.Flag {
	var out []core.Flag
	for _, f := range flags {
		if f != core.FlagNone {
			out = append(out, f)
		}
	}
	return out
}
