// Package expert assembles the research / plan / execute agents into ready
// to use topologies: a swarm where the roles hand off to each other, and a
// fixed pipeline that researches and plans before executing.
package expert

import (
	"github.com/hupe1980/agentswarm/agent"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/model"
	"github.com/hupe1980/agentswarm/swarm"
	"github.com/hupe1980/agentswarm/tool"
)

// Agent names used by the expert topologies.
const (
	ResearchAgent = "research_agent"
	PlanAgent     = "plan_agent"
	ExecuteAgent  = "execute_agent"
	PipelineAgent = "expert"
)

// Models selects the model per role. Nil roles fall back to Execute.
type Models struct {
	Research model.Model
	Plan     model.Model
	Execute  model.Model
}

func (m Models) resolve() Models {
	if m.Research == nil {
		m.Research = m.Execute
	}
	if m.Plan == nil {
		m.Plan = m.Execute
	}
	return m
}

// Options configure the expert topologies.
type Options struct {
	ResearchInstruction agent.Instruction
	PlanInstruction     agent.Instruction
	ExecuteInstruction  agent.Instruction
	// PlanTrailer is appended to the plan prompt in the pipeline.
	PlanTrailer string
	// DefaultAgent receives turns of conversations without an active agent.
	DefaultAgent string

	ResearchMaxToolCalls int
	ExecuteMaxToolCalls  int

	// ToolSource supplies per-turn tools (MCP sessions) to research_agent
	// and execute_agent, after the static tools.
	ToolSource tool.Source

	// SwarmOptions are passed to swarm.New.
	SwarmOptions []func(o *swarm.Options)
	Logger       logging.Logger
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		ResearchInstruction:  agent.NewInstructionFromText(ResearchDirective),
		PlanInstruction:      agent.NewInstructionFromText(PlanDirective),
		ExecuteInstruction:   agent.NewInstructionFromText(ExecuteDirective),
		PlanTrailer:          PlanTrailer,
		DefaultAgent:         ExecuteAgent,
		ResearchMaxToolCalls: 5,
		ExecuteMaxToolCalls:  10,
		Logger:               logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return opts
}

// NewSwarm builds the handoff topology: research_agent, plan_agent and
// execute_agent in a full mesh, execute_agent being the default.
//
// research_agent and execute_agent get the domain tools; plan_agent only
// reasons. execute_agent is offered handoff tools only while planning is
// enabled on the conversation, so plain chats never leave it.
func NewSwarm(models Models, tools []tool.Tool, optFns ...func(o *Options)) (*swarm.Swarm, error) {
	opts := defaultOptions(optFns)
	models = models.resolve()

	research := agent.NewModelAgent(ResearchAgent, models.Research, func(o *agent.ModelAgentOptions) {
		o.Instruction = opts.ResearchInstruction
		o.Tools = tools
		o.ToolSource = opts.ToolSource
		o.MaxToolCalls = opts.ResearchMaxToolCalls
		o.Flag = core.FlagSearched
		o.Logger = opts.Logger
	})

	plan := agent.NewModelAgent(PlanAgent, models.Plan, func(o *agent.ModelAgentOptions) {
		o.Instruction = opts.PlanInstruction
		o.Flag = core.FlagPlanned
		o.Logger = opts.Logger
	})

	execute := agent.NewModelAgent(ExecuteAgent, models.Execute, func(o *agent.ModelAgentOptions) {
		o.Instruction = opts.ExecuteInstruction
		o.Tools = tools
		o.ToolSource = opts.ToolSource
		o.MaxToolCalls = opts.ExecuteMaxToolCalls
		o.HandoffsWhen = func(s *core.ConversationState) bool { return s.PlanEnabled }
		o.Logger = opts.Logger
	})

	routes := swarm.NewRouteConfig([]string{ResearchAgent, PlanAgent, ExecuteAgent}, ExecuteAgent)
	if opts.DefaultAgent != "" {
		if err := routes.SetDefault(opts.DefaultAgent); err != nil {
			return nil, &swarm.ConfigError{Agent: opts.DefaultAgent, Err: err}
		}
	}

	swarmOpts := append([]func(o *swarm.Options){func(o *swarm.Options) { o.Logger = opts.Logger }}, opts.SwarmOptions...)

	return swarm.NewFromDescriptors([]agent.Node{research, plan, execute}, routes.Descriptors(), swarmOpts...)
}

// NewPipeline builds the fixed research → plan → execute pipeline as a
// single node. Research and plan run only when planning is enabled and
// their flag is not yet set, so a conversation is researched and planned
// once and later turns go straight to execution.
func NewPipeline(models Models, tools []tool.Tool, optFns ...func(o *Options)) *agent.Sequential {
	opts := defaultOptions(optFns)
	models = models.resolve()

	research := agent.NewModelAgent(ResearchAgent, models.Research, func(o *agent.ModelAgentOptions) {
		o.Instruction = opts.ResearchInstruction
		o.Tools = tools
		o.ToolSource = opts.ToolSource
		o.MaxToolCalls = opts.ResearchMaxToolCalls
		o.Flag = core.FlagSearched
		o.Gate = gate(core.FlagSearched)
		o.Logger = opts.Logger
	})

	plan := agent.NewModelAgent(PlanAgent, models.Plan, func(o *agent.ModelAgentOptions) {
		o.Instruction = opts.PlanInstruction
		o.Trailer = opts.PlanTrailer
		o.Flag = core.FlagPlanned
		o.Gate = gate(core.FlagPlanned)
		o.Logger = opts.Logger
	})

	execute := agent.NewModelAgent(ExecuteAgent, models.Execute, func(o *agent.ModelAgentOptions) {
		o.Instruction = opts.ExecuteInstruction
		o.Tools = tools
		o.ToolSource = opts.ToolSource
		o.MaxToolCalls = opts.ExecuteMaxToolCalls
		o.Logger = opts.Logger
	})

	return agent.NewSequential(PipelineAgent, research, plan, execute)
}

// NewPipelineSwarm wraps NewPipeline in a single-member swarm so it gets the
// retry envelope and can be driven by the runner.
func NewPipelineSwarm(models Models, tools []tool.Tool, optFns ...func(o *Options)) (*swarm.Swarm, error) {
	opts := defaultOptions(optFns)
	pipeline := NewPipeline(models, tools, optFns...)

	swarmOpts := append([]func(o *swarm.Options){func(o *swarm.Options) { o.Logger = opts.Logger }}, opts.SwarmOptions...)

	return swarm.New([]agent.Node{pipeline}, PipelineAgent, nil, swarmOpts...)
}

func gate(flag core.Flag) func(*core.ConversationState) bool {
	return func(s *core.ConversationState) bool {
		return !s.PlanEnabled || s.Flag(flag)
	}
}
