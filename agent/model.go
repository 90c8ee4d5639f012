package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/flow"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/model"
	"github.com/hupe1980/agentswarm/tool"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction Instruction
	// Trailer, when set, is appended to the prompt as a user message. It is
	// part of the prompt only and never recorded in the log.
	Trailer string
	Tools   []tool.Tool
	// ToolSource, when set, is opened on every run that gets past the Gate
	// and its tools are added after Tools. Within a swarm turn the source is
	// opened once and shared. An open error fails the run with
	// ToolInitialization.
	ToolSource tool.Source
	// MaxToolCalls bounds tool executions per run.
	MaxToolCalls int
	// Flag is set on the state when the node completes.
	Flag core.Flag
	// Gate, when it returns true, skips the node: no model call is made and
	// the node completes immediately with its Flag.
	Gate func(*core.ConversationState) bool
	// HandoffsWhen decides per run whether handoff tools are offered. Nil
	// means always.
	HandoffsWhen func(*core.ConversationState) bool
	ToolErrors   flow.ToolErrorPolicy
	// MaxModelCalls caps model calls per run; zero means unlimited. A budget
	// found in the context (set by the swarm for the whole turn) takes
	// precedence.
	MaxModelCalls int
	Logger        logging.Logger
}

// ModelAgent is a Node that drives a language model through the flow loop.
//
// The prompt it sends is the resolved directive as a system message, the
// conversation history without system messages, and the optional trailer.
type ModelAgent struct {
	name     string
	llm      model.Model
	opts     ModelAgentOptions
	mu       sync.RWMutex
	handoffs []tool.Tool
	wired    bool
}

// ErrAlreadyWired is returned by SetHandoffs when the node already belongs to
// a swarm. A node carries the routes of exactly one swarm.
var ErrAlreadyWired = errors.New("handoffs already wired")

// NewModelAgent creates a model-backed node.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:  NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		MaxToolCalls: flow.DefaultMaxToolCalls,
		ToolErrors:   flow.FailOnToolError,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &ModelAgent{name: name, llm: llm, opts: opts}
}

// Name returns the agent's unique name.
func (a *ModelAgent) Name() string { return a.name }

// Model returns the underlying model.
func (a *ModelAgent) Model() model.Model { return a.llm }

// SetHandoffs implements HandoffAware. It may be called once.
func (a *ModelAgent) SetHandoffs(handoffs []tool.Tool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.wired {
		return fmt.Errorf("agent %s: %w", a.name, ErrAlreadyWired)
	}
	a.wired = true
	a.handoffs = append([]tool.Tool(nil), handoffs...)
	return nil
}

// Handoffs returns the handoff tools currently wired into the agent.
func (a *ModelAgent) Handoffs() []tool.Tool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]tool.Tool(nil), a.handoffs...)
}

// Run implements Node.
func (a *ModelAgent) Run(ctx context.Context, state *core.ConversationState) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	if a.opts.Gate != nil && a.opts.Gate(state) {
		a.opts.Logger.Debug("agent.skipped", "agent", a.name)
		return Completed(nil, a.opts.Flag), nil
	}

	prompt, err := a.prompt(state)
	if err != nil {
		return Failed(core.NewFailure(core.Unexpected, a.name, err)), nil
	}

	extra, release, err := a.openTools(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		f := toolInitFailure(a.name, err)
		a.opts.Logger.Warn("agent.tools.failed", "agent", a.name, "error", f.Error())
		return Failed(f), nil
	}
	defer func() {
		if err := release(); err != nil {
			a.opts.Logger.Warn("agent.tools.release_failed", "agent", a.name, "error", err.Error())
		}
	}()

	registry, err := a.registry(state, extra)
	if err != nil {
		return Failed(core.NewFailure(core.ToolInitialization, a.name, err)), nil
	}

	budget := core.CallBudgetFromContext(ctx)
	if budget == nil && a.opts.MaxModelCalls > 0 {
		budget = core.NewCallBudget(a.opts.MaxModelCalls)
	}

	loop := flow.NewLoop(a.name, a.llm, registry, func(o *flow.Options) {
		o.MaxToolCalls = a.opts.MaxToolCalls
		o.ToolErrors = a.opts.ToolErrors
		o.Budget = budget
		o.WebSearch = state.WebSearchEnabled
		o.Logger = a.opts.Logger
	})

	a.opts.Logger.Debug("agent.run.start", "agent", a.name, "history", len(state.Messages), "tools", registry.Len())

	res, err := loop.Run(ctx, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		f := core.Classify(a.name, err)
		a.opts.Logger.Warn("agent.run.failed", "agent", a.name, "kind", string(f.Kind), "error", f.Error())
		return Failed(f), nil
	}

	if res.Handoff != "" {
		a.opts.Logger.Info("agent.run.transfer", "agent", a.name, "target", res.Handoff, "tool_calls", res.ToolCalls)
		return Transfer(res.Handoff, res.Messages), nil
	}

	a.opts.Logger.Info("agent.run.completed", "agent", a.name, "messages", len(res.Messages), "tool_calls", res.ToolCalls)

	return Completed(res.Messages, a.opts.Flag), nil
}

func (a *ModelAgent) prompt(state *core.ConversationState) ([]core.Message, error) {
	directive, err := a.opts.Instruction.Resolve(state)
	if err != nil {
		return nil, fmt.Errorf("resolve instruction: %w", err)
	}

	history := core.WithoutSystem(state.Messages)
	prompt := make([]core.Message, 0, len(history)+2)
	if directive != "" {
		prompt = append(prompt, core.NewSystemMessage(directive))
	}
	prompt = append(prompt, history...)
	if a.opts.Trailer != "" {
		prompt = append(prompt, core.NewUserMessage(a.opts.Trailer))
	}

	return prompt, nil
}

func (a *ModelAgent) openTools(ctx context.Context) ([]tool.Tool, func() error, error) {
	if a.opts.ToolSource == nil {
		return nil, func() error { return nil }, nil
	}
	return tool.OpenSource(ctx, a.opts.ToolSource)
}

// registry lists handoff tools first, then the agent's own tools, then the
// per-run tools.
func (a *ModelAgent) registry(state *core.ConversationState, extra []tool.Tool) (*tool.Registry, error) {
	var tools []tool.Tool
	if a.opts.HandoffsWhen == nil || a.opts.HandoffsWhen(state) {
		tools = append(tools, a.Handoffs()...)
	}
	tools = append(tools, a.opts.Tools...)
	tools = append(tools, extra...)

	return tool.NewRegistry(tools...)
}

func toolInitFailure(agentName string, err error) *core.Failure {
	var f *core.Failure
	if errors.As(err, &f) && f.Kind == core.ToolInitialization {
		return &core.Failure{Kind: f.Kind, Agent: agentName, Details: f.Details, Err: f.Err}
	}
	return core.NewFailure(core.ToolInitialization, agentName, err)
}
