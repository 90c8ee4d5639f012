package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/tool"
)

// Outcome is the raw result of one tool call.
type Outcome struct {
	Result   any
	Err      error
	Duration time.Duration
}

// Executor runs individual tool calls against a registry. It never panics:
// panics raised by tools are recovered into *tool.ToolError values.
type Executor struct {
	agent  string
	tools  *tool.Registry
	logger logging.Logger
}

// NewExecutor creates an executor for agent.
func NewExecutor(agent string, tools *tool.Registry, logger logging.Logger) *Executor {
	return &Executor{agent: agent, tools: tools, logger: logging.OrNoOp(logger)}
}

// Execute runs a single call.
func (e *Executor) Execute(ctx context.Context, call core.ToolCall) Outcome {
	start := time.Now()
	var out Outcome

	func() {
		defer func() {
			if r := recover(); r != nil {
				out.Result = nil
				out.Err = &tool.ToolError{Tool: call.Name, Message: fmt.Sprintf("panic: %v", r), Code: tool.CodePanic, Details: panicError(r)}
				e.logger.Error("agent.tool.panic", "agent", e.agent, "tool", call.Name, "recover", r)
			}
		}()
		out.Result, out.Err = e.call(ctx, call)
	}()

	out.Duration = time.Since(start)

	e.logger.Info(
		"agent.tool.executed",
		"agent", e.agent,
		"tool", call.Name,
		"call_id", call.ID,
		"duration_ms", out.Duration.Milliseconds(),
		"error", out.Err != nil && !tool.IsHandoff(out.Err),
	)

	return out
}

func (e *Executor) call(ctx context.Context, call core.ToolCall) (any, error) {
	impl, ok := e.tools.Get(call.Name)
	if !ok {
		return nil, tool.NewToolError(call.Name, fmt.Sprintf("tool %s not found", call.Name), tool.CodeNotFound)
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil, tool.NewToolError(call.Name, fmt.Sprintf("failed to unmarshal args: %v", err), tool.CodeArguments)
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	ctx = tool.WithCallInfo(ctx, tool.CallInfo{ID: call.ID, Agent: e.agent, Logger: e.logger})

	return impl.Call(ctx, args)
}

// panicError converts a recovered panic value to an error carrying the stack.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
