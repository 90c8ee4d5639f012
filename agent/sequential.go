package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/tool"
)

// Sequential runs child nodes one after another on an evolving copy of the
// state. Each child sees the messages and flags produced by the ones before
// it.
//
// The pipeline stops at the first transfer or failure. Messages and flags
// committed by earlier children are carried in the outcome in both cases.
type Sequential struct {
	name     string
	children []Node
}

// NewSequential creates a pipeline named name.
func NewSequential(name string, children ...Node) *Sequential {
	return &Sequential{name: name, children: children}
}

// Name implements Node.
func (s *Sequential) Name() string { return s.name }

// Children returns the pipeline stages in order.
func (s *Sequential) Children() []Node { return append([]Node(nil), s.children...) }

// SetHandoffs forwards handoff tools to the last stage, the one that
// answers the user.
func (s *Sequential) SetHandoffs(handoffs []tool.Tool) error {
	if len(s.children) == 0 {
		return nil
	}
	if ha, ok := s.children[len(s.children)-1].(HandoffAware); ok {
		return ha.SetHandoffs(handoffs)
	}
	return nil
}

// Run implements Node.
func (s *Sequential) Run(ctx context.Context, state *core.ConversationState) (Outcome, error) {
	working := state.Clone()

	var (
		produced []core.Message
		flags    []core.Flag
	)

	for _, child := range s.children {
		out, err := child.Run(ctx, working)
		if err != nil {
			return Outcome{}, fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}

		switch out.Status {
		case StatusFailed:
			return FailedAfter(out.Failure, produced, flags), nil
		case StatusTransfer:
			return Transfer(out.Target, append(produced, out.Messages...), append(flags, out.Flags...)...), nil
		}

		out.Apply(working)
		produced = append(produced, out.Messages...)
		flags = append(flags, out.Flags...)
	}

	return Completed(produced, flags...), nil
}
