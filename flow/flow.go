// Package flow provides the model/tool execution loop used by agent nodes.
//
// A Loop repeatedly calls the model with the prompt plus everything produced
// so far, executes the tool calls the model requests (in order), appends the
// tool results and calls the model again. It stops when:
//
//   - the model answers without tool calls (completion)
//   - a handoff tool is called (transfer)
//   - a model or tool failure occurs, or the tool call bound is exceeded
//
// The loop never mutates the caller's prompt; new messages are returned.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/model"
	"github.com/hupe1980/agentswarm/tool"
)

// DefaultMaxToolCalls bounds tool executions per node invocation.
const DefaultMaxToolCalls = 10

// ToolErrorPolicy decides what a failed tool call does to the loop.
type ToolErrorPolicy int

const (
	// FailOnToolError ends the loop with a ToolExecution failure.
	FailOnToolError ToolErrorPolicy = iota
	// ReportToolError records the error as the tool result and lets the model react.
	ReportToolError
)

// Options configure a Loop.
type Options struct {
	MaxToolCalls int
	ToolErrors   ToolErrorPolicy
	// Budget caps model calls; shared across the nodes of a turn when set.
	Budget *core.CallBudget
	// WebSearch is forwarded on every model request.
	WebSearch bool
	Logger    logging.Logger
}

// Result is what one loop run produced.
type Result struct {
	// Messages are the new assistant and tool messages in causal order.
	Messages []core.Message
	// Handoff is the requested target, empty when the loop completed normally.
	Handoff string
	// ToolCalls counts executed tool calls, handoffs included.
	ToolCalls int
}

// Loop drives one agent's model/tool cycle.
type Loop struct {
	agent    string
	llm      model.Model
	tools    *tool.Registry
	executor *Executor
	opts     Options
}

// NewLoop creates a Loop for agent using llm and tools.
func NewLoop(agent string, llm model.Model, tools *tool.Registry, optFns ...func(o *Options)) *Loop {
	opts := Options{
		MaxToolCalls: DefaultMaxToolCalls,
		ToolErrors:   FailOnToolError,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxToolCalls <= 0 {
		opts.MaxToolCalls = DefaultMaxToolCalls
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Loop{
		agent:    agent,
		llm:      llm,
		tools:    tools,
		executor: NewExecutor(agent, tools, opts.Logger),
		opts:     opts,
	}
}

// Run executes the loop. Context cancellation is returned as-is so callers can
// leave the turn unresolved; every other error is a *core.Failure.
func (l *Loop) Run(ctx context.Context, prompt []core.Message) (*Result, error) {
	res := &Result{}
	defs := l.tools.Definitions()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := l.generate(ctx, prompt, res.Messages, defs)
		if err != nil {
			return nil, err
		}

		assistant := resp.Message.Clone()
		assistant.Role = core.RoleAssistant
		assistant.Agent = l.agent
		res.Messages = append(res.Messages, assistant)

		if !assistant.HasToolCalls() {
			return res, nil
		}

		if res.ToolCalls+len(assistant.ToolCalls) > l.opts.MaxToolCalls {
			return nil, core.NewFailure(core.ToolExecution, l.agent,
				fmt.Errorf("tool call limit of %d exceeded", l.opts.MaxToolCalls))
		}

		for i, call := range assistant.ToolCalls {
			out := l.executor.Execute(ctx, call)
			res.ToolCalls++

			if err := ctx.Err(); err != nil {
				return nil, err
			}

			if target, ok := tool.AsHandoff(out.Result, out.Err); ok {
				res.Messages = append(res.Messages, core.NewToolMessage(call.ID, call.Name, tool.TransferMessage(target)))
				for _, skipped := range assistant.ToolCalls[i+1:] {
					res.Messages = append(res.Messages, core.NewToolMessage(skipped.ID, skipped.Name,
						"Skipped: control was transferred to "+target))
				}
				res.Handoff = target
				return res, nil
			}

			if out.Err != nil {
				if l.opts.ToolErrors == FailOnToolError {
					return nil, core.NewFailure(core.ToolExecution, l.agent, out.Err)
				}
				res.Messages = append(res.Messages, core.NewToolMessage(call.ID, call.Name, "Error: "+out.Err.Error()))
				continue
			}

			res.Messages = append(res.Messages, core.NewToolMessage(call.ID, call.Name, tool.FormatResult(out.Result)))
		}
	}
}

func (l *Loop) generate(ctx context.Context, prompt, produced []core.Message, defs []model.ToolDefinition) (*model.Response, error) {
	if l.opts.Budget != nil {
		if err := l.opts.Budget.Spend(); err != nil {
			return nil, core.NewFailure(core.ModelInvocation, l.agent, err)
		}
	}

	msgs := make([]core.Message, 0, len(prompt)+len(produced))
	msgs = append(msgs, prompt...)
	msgs = append(msgs, produced...)

	start := time.Now()
	resp, err := l.llm.Generate(ctx, model.Request{Messages: msgs, Tools: defs, WebSearch: l.opts.WebSearch})
	dur := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		l.opts.Logger.Error("agent.model.failed", "agent", l.agent, "model", l.llm.Info().Name, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return nil, core.NewFailure(core.ModelInvocation, l.agent, err)
	}
	if resp == nil {
		return nil, core.NewFailure(core.ModelInvocation, l.agent, fmt.Errorf("model returned no response"))
	}

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	l.opts.Logger.Debug("agent.model.completed", "agent", l.agent, "model", l.llm.Info().Name, "duration_ms", dur.Milliseconds(), "tokens", tokens, "tool_calls", len(resp.Message.ToolCalls))

	return resp, nil
}
