package expert

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentswarm/agent"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/model"
	"github.com/hupe1980/agentswarm/swarm"
	"github.com/hupe1980/agentswarm/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readSheet() tool.Tool {
	return tool.NewFunctionTool("read_sheet", "Read a worksheet", nil, func(context.Context, map[string]any) (any, error) {
		return map[string]any{"rows": 3}, nil
	})
}

func conversation(planEnabled bool, text string) *core.ConversationState {
	s := core.NewConversationState()
	s.PlanEnabled = planEnabled
	s.Append(core.NewUserMessage(text))
	return s
}

func toolNames(defs []model.ToolDefinition) []string {
	var out []string
	for _, d := range defs {
		out = append(out, d.Function.Name)
	}
	return out
}

func TestNewSwarm_Topology(t *testing.T) {
	s, err := NewSwarm(Models{Execute: model.NewMockModel("m")}, []tool.Tool{readSheet()})
	require.NoError(t, err)

	assert.Equal(t, ExecuteAgent, s.DefaultAgent())
	assert.Equal(t, map[string][]string{
		ResearchAgent: {PlanAgent, ExecuteAgent},
		PlanAgent:     {ResearchAgent, ExecuteAgent},
		ExecuteAgent:  {ResearchAgent, PlanAgent},
	}, s.Routes())
}

func TestNewSwarm_DefaultAgent(t *testing.T) {
	s, err := NewSwarm(Models{Execute: model.NewMockModel("m")}, nil, func(o *Options) { o.DefaultAgent = PlanAgent })
	require.NoError(t, err)
	assert.Equal(t, PlanAgent, s.DefaultAgent())

	_, err = NewSwarm(Models{Execute: model.NewMockModel("m")}, nil, func(o *Options) { o.DefaultAgent = "critic" })
	var cfgErr *swarm.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, swarm.ErrUnknownAgent)
}

func TestNewSwarm_PlainChatHasNoHandoffs(t *testing.T) {
	m := model.NewMockModel("m").Reply("hi!")
	s, err := NewSwarm(Models{Execute: m}, []tool.Tool{readSheet()})
	require.NoError(t, err)

	st, err := s.Invoke(context.Background(), conversation(false, "hello"))
	require.NoError(t, err)

	assert.Equal(t, ExecuteAgent, st.ActiveAgent)
	assert.Equal(t, []string{"read_sheet"}, toolNames(m.Requests()[0].Tools))
	assert.Equal(t, ExecuteDirective, m.Requests()[0].Messages[0].Content)
}

func TestNewSwarm_PlanEnabledHandsOff(t *testing.T) {
	execute := model.NewMockModel("execute").CallTool("transfer_to_plan_agent", nil)
	plan := model.NewMockModel("plan").Reply("1. read the sheet\n2. chart it")

	s, err := NewSwarm(Models{Execute: execute, Plan: plan}, []tool.Tool{readSheet()})
	require.NoError(t, err)

	st, err := s.Invoke(context.Background(), conversation(true, "analyse my sales"))
	require.NoError(t, err)

	assert.Equal(t, []string{"transfer_to_research_agent", "transfer_to_plan_agent", "read_sheet"}, toolNames(execute.Requests()[0].Tools))
	assert.Equal(t, []string{"transfer_to_research_agent", "transfer_to_execute_agent"}, toolNames(plan.Requests()[0].Tools))

	assert.Equal(t, PlanAgent, st.ActiveAgent)
	assert.True(t, st.Planned)
	assert.False(t, st.Searched)
	assert.Equal(t, PlanAgent, st.Messages[len(st.Messages)-1].Agent)
}

func TestNewSwarm_CustomDirective(t *testing.T) {
	m := model.NewMockModel("m").Reply("ok")
	s, err := NewSwarm(Models{Execute: m}, nil, func(o *Options) {
		o.SwarmOptions = append(o.SwarmOptions, func(so *swarm.Options) { so.MaxHops = 2 })
		o.ExecuteInstruction = agent.NewInstructionFromTemplate("plan={{.PlanEnabled}}")
	})
	require.NoError(t, err)

	_, err = s.Invoke(context.Background(), conversation(false, "x"))
	require.NoError(t, err)
	assert.Equal(t, "plan=false", m.Requests()[0].Messages[0].Content)
}

func TestPipeline_PlanEnabled(t *testing.T) {
	research := model.NewMockModel("research").CallTool("read_sheet", nil).Reply("3 rows, no gaps")
	plan := model.NewMockModel("plan").Reply("1. sum rows")
	execute := model.NewMockModel("execute").Reply("total is 42")

	s, err := NewPipelineSwarm(Models{Research: research, Plan: plan, Execute: execute}, []tool.Tool{readSheet()})
	require.NoError(t, err)

	st, err := s.Invoke(context.Background(), conversation(true, "sum it"))
	require.NoError(t, err)

	assert.True(t, st.Searched)
	assert.True(t, st.Planned)
	assert.Equal(t, "total is 42", st.Messages[len(st.Messages)-1].Content)

	planPrompt := plan.Requests()[0].Messages
	assert.Equal(t, PlanTrailer, planPrompt[len(planPrompt)-1].Content)
	assert.Empty(t, plan.Requests()[0].Tools)

	// Trailers are never persisted.
	for _, m := range st.Messages {
		assert.NotEqual(t, PlanTrailer, m.Content)
	}

	// Second turn: research and plan are already done.
	execute.Reply("still 42")
	st.Append(core.NewUserMessage("and again?"))
	st, err = s.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Len(t, research.Requests(), 2)
	assert.Len(t, plan.Requests(), 1)
	assert.Equal(t, "still 42", st.Messages[len(st.Messages)-1].Content)
}

func TestPipeline_PlanDisabledGoesStraightToExecute(t *testing.T) {
	research := model.NewMockModel("research")
	plan := model.NewMockModel("plan")
	execute := model.NewMockModel("execute").Reply("done")

	pipeline := NewPipeline(Models{Research: research, Plan: plan, Execute: execute}, nil)
	out, err := pipeline.Run(context.Background(), conversation(false, "quick one"))
	require.NoError(t, err)

	assert.Empty(t, research.Requests())
	assert.Empty(t, plan.Requests())
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "done", out.Messages[0].Content)
}

func TestPipeline_ToolSource(t *testing.T) {
	opens, releases := 0, 0
	src := tool.NewSource(func(context.Context) ([]tool.Tool, func() error, error) {
		opens++
		return []tool.Tool{tool.NewActionTool(tool.Action{Name: "mcp_excel_list_sheets"})}, func() error { releases++; return nil }, nil
	})

	research := model.NewMockModel("research").Reply("two sheets")
	plan := model.NewMockModel("plan").Reply("1. merge them")
	execute := model.NewMockModel("execute").Reply("merged")

	s, err := NewPipelineSwarm(Models{Research: research, Plan: plan, Execute: execute}, []tool.Tool{readSheet()},
		func(o *Options) { o.ToolSource = src })
	require.NoError(t, err)

	_, err = s.Invoke(context.Background(), conversation(true, "merge my sheets"))
	require.NoError(t, err)

	assert.Equal(t, []string{"read_sheet", "mcp_excel_list_sheets"}, toolNames(research.Requests()[0].Tools))
	assert.Empty(t, plan.Requests()[0].Tools)
	assert.Equal(t, []string{"read_sheet", "mcp_excel_list_sheets"}, toolNames(execute.Requests()[0].Tools))
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, releases)
}

func TestNewSwarm_ToolSourceUnavailable(t *testing.T) {
	src := tool.NewSource(func(context.Context) ([]tool.Tool, func() error, error) {
		return nil, nil, core.NewFailure(core.ToolInitialization, "", errors.New("dial tcp: connection refused"))
	})
	m := model.NewMockModel("m")

	s, err := NewSwarm(Models{Execute: m}, nil, func(o *Options) { o.ToolSource = src })
	require.NoError(t, err)

	st, err := s.Invoke(context.Background(), conversation(false, "hello"))
	require.NoError(t, err)
	assert.Equal(t, "Failed to initialize tools: dial tcp: connection refused", st.Messages[len(st.Messages)-1].Content)
	assert.Empty(t, m.Requests())
}
