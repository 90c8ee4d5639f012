package swarm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/agentswarm/agent"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/model"
	"github.com/hupe1980/agentswarm/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	execute, plan, research *model.MockModel
	swarm                   *Swarm
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	f := &fixture{
		execute:  model.NewMockModel("execute"),
		plan:     model.NewMockModel("plan"),
		research: model.NewMockModel("research"),
	}
	nodes := []agent.Node{
		agent.NewModelAgent("execute", f.execute),
		agent.NewModelAgent("plan", f.plan),
		agent.NewModelAgent("research", f.research),
	}
	s, err := New(nodes, "execute", map[string][]string{"execute": {"plan", "research"}}, optFns...)
	require.NoError(t, err)
	f.swarm = s
	return f
}

func userTurn(state *core.ConversationState, text string) *core.ConversationState {
	if state == nil {
		state = core.NewConversationState()
	}
	state.Append(core.NewUserMessage(text))
	return state
}

func transferMessages(msgs []core.Message) []core.Message {
	var out []core.Message
	for _, m := range msgs {
		if m.Role == core.RoleTool && strings.HasPrefix(m.Content, "Successfully transferred to ") {
			out = append(out, m)
		}
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	a := agent.NewModelAgent("a", model.NewMockModel("a"))
	b := agent.NewModelAgent("b", model.NewMockModel("b"))

	tests := []struct {
		name   string
		nodes  []agent.Node
		def    string
		routes map[string][]string
		want   error
	}{
		{"no agents", nil, "a", nil, ErrNoAgents},
		{"duplicate", []agent.Node{a, a}, "a", nil, ErrDuplicateAgent},
		{"unknown default", []agent.Node{a, b}, "c", nil, ErrUnknownAgent},
		{"unknown source", []agent.Node{a, b}, "a", map[string][]string{"c": {"a"}}, ErrUnknownAgent},
		{"unknown target", []agent.Node{a, b}, "a", map[string][]string{"a": {"ghost"}}, ErrUnknownAgent},
		{"self route", []agent.Node{a, b}, "a", map[string][]string{"a": {"a"}}, ErrSelfRoute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.nodes, tt.def, tt.routes)
			assert.Nil(t, s)
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

type plainNode struct{ name string }

func (n plainNode) Name() string { return n.name }
func (n plainNode) Run(context.Context, *core.ConversationState) (agent.Outcome, error) {
	return agent.Completed(nil), nil
}

func TestNew_RequiresHandoffAwareSources(t *testing.T) {
	_, err := New([]agent.Node{plainNode{"a"}, plainNode{"b"}}, "a", map[string][]string{"a": {"b"}})
	assert.ErrorIs(t, err, ErrNotHandoffAware)

	// Nodes without outgoing routes need not accept handoffs.
	s, err := New([]agent.Node{plainNode{"a"}, plainNode{"b"}}, "a", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.Agents())
}

func TestNew_DirectionalWiring(t *testing.T) {
	execute := agent.NewModelAgent("execute", model.NewMockModel("e"))
	plan := agent.NewModelAgent("plan", model.NewMockModel("p"))
	research := agent.NewModelAgent("research", model.NewMockModel("r"))

	_, err := New([]agent.Node{execute, plan, research}, "execute", map[string][]string{
		"execute": {"plan", "research", "plan"},
	})
	require.NoError(t, err)

	names := func(tools []tool.Tool) []string {
		var out []string
		for _, t := range tools {
			out = append(out, t.Name())
		}
		return out
	}
	assert.Equal(t, []string{"transfer_to_plan", "transfer_to_research"}, names(execute.Handoffs()))
	assert.Empty(t, plan.Handoffs())
	assert.Empty(t, research.Handoffs())
}

func TestNewFromDescriptors(t *testing.T) {
	a := agent.NewModelAgent("a", model.NewMockModel("a"))
	b := agent.NewModelAgent("b", model.NewMockModel("b"))

	_, err := NewFromDescriptors([]agent.Node{a, b}, []Descriptor{
		{Name: "a", IsDefault: true},
		{Name: "b", IsDefault: true},
	})
	assert.ErrorIs(t, err, ErrMultipleDefaults)

	s, err := NewFromDescriptors([]agent.Node{a, b}, []Descriptor{
		{Name: "a", AllowedTargets: []string{"b"}},
		{Name: "b", IsDefault: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "b", s.DefaultAgent())
	assert.Equal(t, []Descriptor{
		{Name: "a", AllowedTargets: []string{"b"}},
		{Name: "b", IsDefault: true},
	}, s.Descriptors())
}

func TestInvoke_PlainReply(t *testing.T) {
	f := newFixture(t)
	f.execute.Reply("hello there")

	in := userTurn(nil, "hi")
	out, err := f.swarm.Invoke(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, out.Messages, 2)
	assert.Equal(t, core.RoleAssistant, out.Messages[1].Role)
	assert.Equal(t, "hello there", out.Messages[1].Content)
	assert.Equal(t, "execute", out.ActiveAgent)
	assert.Equal(t, 0, out.ErrorCount)
	assert.Len(t, in.Messages, 1)
}

func TestInvoke_HandoffWithinTurn(t *testing.T) {
	for _, style := range []tool.HandoffStyle{tool.Cooperative, tool.Bubble} {
		f := newFixture(t, func(o *Options) { o.HandoffStyle = style })
		f.execute.CallTool("transfer_to_plan", nil)
		f.plan.Reply("step 1, step 2")

		out, err := f.swarm.Invoke(context.Background(), userTurn(nil, "make a plan"))
		require.NoError(t, err)

		assert.Equal(t, "plan", out.ActiveAgent)
		transfers := transferMessages(out.Messages)
		require.Len(t, transfers, 1)
		assert.Equal(t, "Successfully transferred to plan", transfers[0].Content)

		last := out.Messages[len(out.Messages)-1]
		assert.Equal(t, "step 1, step 2", last.Content)
		assert.Equal(t, "plan", last.Agent)

		// plan saw the transfer in its history
		planReq := f.plan.Requests()[0].Messages
		assert.Equal(t, core.RoleTool, planReq[len(planReq)-1].Role)
		assert.Equal(t, 0, f.execute.Pending())
	}
}

func TestInvoke_NextTurnGoesToActiveAgent(t *testing.T) {
	f := newFixture(t)
	f.execute.CallTool("transfer_to_research", nil)
	f.research.Reply("found it").Reply("more details")

	st, err := f.swarm.Invoke(context.Background(), userTurn(nil, "search"))
	require.NoError(t, err)
	require.Equal(t, "research", st.ActiveAgent)

	st, err = f.swarm.Invoke(context.Background(), userTurn(st, "go on"))
	require.NoError(t, err)
	assert.Equal(t, "more details", st.Messages[len(st.Messages)-1].Content)
	assert.Len(t, f.execute.Requests(), 1)
}

func TestInvoke_RetryCeiling(t *testing.T) {
	f := newFixture(t)
	f.execute.Fail(errors.New("timeout")).Fail(errors.New("timeout")).Reply("finally")

	st, err := f.swarm.Invoke(context.Background(), userTurn(nil, "do it"))
	require.NoError(t, err)
	assert.Equal(t, 1, st.ErrorCount)
	assert.Equal(t, "Execution failed (attempt 1/2): Model invocation failed: timeout", st.Messages[len(st.Messages)-1].Content)

	st, err = f.swarm.Invoke(context.Background(), userTurn(st, "again"))
	require.NoError(t, err)
	assert.Equal(t, 2, st.ErrorCount)
	assert.Equal(t, "Max retries reached: Model invocation failed: timeout", st.Messages[len(st.Messages)-1].Content)

	st, err = f.swarm.Invoke(context.Background(), userTurn(st, "and again"))
	require.NoError(t, err)
	assert.Equal(t, 0, st.ErrorCount)
	assert.Equal(t, "finally", st.Messages[len(st.Messages)-1].Content)
}

func TestInvoke_ErrorCountNeverExceedsLimit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.execute.Fail(errors.New("down"))
	}

	st := core.NewConversationState()
	st.MaxRetries = 3
	for i := 0; i < 5; i++ {
		var err error
		st, err = f.swarm.Invoke(context.Background(), userTurn(st, "try"))
		require.NoError(t, err)
		assert.LessOrEqual(t, st.ErrorCount, 3)
	}
	assert.Equal(t, 3, st.ErrorCount)
}

func TestInvoke_ToolInitializationIsNotRetried(t *testing.T) {
	dup := tool.NewHandoffTool("plan")
	execute := agent.NewModelAgent("execute", model.NewMockModel("e"), func(o *agent.ModelAgentOptions) {
		o.Tools = []tool.Tool{dup}
	})
	plan := agent.NewModelAgent("plan", model.NewMockModel("p"))
	s, err := New([]agent.Node{execute, plan}, "execute", map[string][]string{"execute": {"plan"}})
	require.NoError(t, err)

	st, err := s.Invoke(context.Background(), userTurn(nil, "x"))
	require.NoError(t, err)
	assert.Equal(t, 0, st.ErrorCount)
	assert.Contains(t, st.Messages[len(st.Messages)-1].Content, "Failed to initialize tools:")
}

func TestInvoke_HopCeiling(t *testing.T) {
	am := model.NewMockModel("a").CallTool("transfer_to_b", nil).CallTool("transfer_to_b", nil)
	bm := model.NewMockModel("b").CallTool("transfer_to_a", nil).CallTool("transfer_to_a", nil)
	nodes := []agent.Node{agent.NewModelAgent("a", am), agent.NewModelAgent("b", bm)}

	s, err := New(nodes, "a", map[string][]string{"a": {"b"}, "b": {"a"}}, func(o *Options) { o.MaxHops = 3 })
	require.NoError(t, err)

	st, err := s.Invoke(context.Background(), userTurn(nil, "ping pong"))
	require.NoError(t, err)

	assert.Equal(t, "Routing failed: handoff limit of 3 exceeded", st.Messages[len(st.Messages)-1].Content)
	assert.Equal(t, "b", st.ActiveAgent)
	assert.Equal(t, 0, st.ErrorCount)
	assert.Len(t, transferMessages(st.Messages), 4)
}

func TestInvoke_UnroutedTransfer(t *testing.T) {
	sneaky := tool.NewFunctionTool("escalate", "escalates", nil, func(context.Context, map[string]any) (any, error) {
		return &tool.Transfer{Target: "research"}, nil
	})
	pm := model.NewMockModel("p").CallTool("escalate", nil)
	nodes := []agent.Node{
		agent.NewModelAgent("execute", model.NewMockModel("e").CallTool("transfer_to_plan", nil)),
		agent.NewModelAgent("plan", pm, func(o *agent.ModelAgentOptions) { o.Tools = []tool.Tool{sneaky} }),
		agent.NewModelAgent("research", model.NewMockModel("r")),
	}
	s, err := New(nodes, "execute", map[string][]string{"execute": {"plan", "research"}})
	require.NoError(t, err)

	st, err := s.Invoke(context.Background(), userTurn(nil, "x"))
	require.NoError(t, err)
	assert.Equal(t, "plan", st.ActiveAgent)
	assert.Contains(t, st.Messages[len(st.Messages)-1].Content, "is not routed")
}

func TestInvoke_UnknownActiveAgentFallsBack(t *testing.T) {
	f := newFixture(t)
	f.execute.Reply("back to default")

	st := userTurn(nil, "hi")
	st.ActiveAgent = "retired_agent"
	out, err := f.swarm.Invoke(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "execute", out.ActiveAgent)
}

func TestInvoke_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.execute.Reply("never")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := f.swarm.Invoke(ctx, userTurn(nil, "hi"))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvoke_TurnModelBudget(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxModelCalls = 1 })
	f.execute.CallTool("transfer_to_plan", nil)
	f.plan.Reply("unreachable")

	st, err := f.swarm.Invoke(context.Background(), userTurn(nil, "x"))
	require.NoError(t, err)
	assert.Equal(t, "plan", st.ActiveAgent)
	assert.Equal(t, 1, st.ErrorCount)
	assert.Contains(t, st.Messages[len(st.Messages)-1].Content, "exceeded max model calls")
}

func TestInvoke_DeterministicReplay(t *testing.T) {
	run := func() []core.Message {
		f := newFixture(t)
		f.execute.CallTool("transfer_to_research", nil)
		f.research.Reply("found").Reply("more")

		st, err := f.swarm.Invoke(context.Background(), userTurn(nil, "go"))
		require.NoError(t, err)
		st, err = f.swarm.Invoke(context.Background(), userTurn(st, "continue"))
		require.NoError(t, err)
		return st.Messages
	}

	first, second := run(), run()
	assert.Equal(t, first, second)
	assert.Len(t, first, 6)
}

func TestNew_NodeBelongsToOneSwarm(t *testing.T) {
	a := agent.NewModelAgent("a", model.NewMockModel("a"))
	b := agent.NewModelAgent("b", model.NewMockModel("b"))

	_, err := New([]agent.Node{a, b}, "a", map[string][]string{"a": {"b"}})
	require.NoError(t, err)

	_, err = New([]agent.Node{a, b}, "a", map[string][]string{"a": {"b"}})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, agent.ErrAlreadyWired)
	require.Len(t, a.Handoffs(), 1)
	assert.Equal(t, "transfer_to_b", a.Handoffs()[0].Name())
}

func TestInvoke_ToolSourceOpenedOncePerTurn(t *testing.T) {
	opens, releases := 0, 0
	src := tool.NewSource(func(context.Context) ([]tool.Tool, func() error, error) {
		opens++
		sheet := tool.NewActionTool(tool.Action{Name: "mcp_excel_read_sheet"})
		return []tool.Tool{sheet}, func() error { releases++; return nil }, nil
	})

	em := model.NewMockModel("e").CallTool("transfer_to_plan", nil)
	pm := model.NewMockModel("p").CallTool("mcp_excel_read_sheet", nil).Reply("planned")
	execute := agent.NewModelAgent("execute", em, func(o *agent.ModelAgentOptions) { o.ToolSource = src })
	plan := agent.NewModelAgent("plan", pm, func(o *agent.ModelAgentOptions) { o.ToolSource = src })
	s, err := New([]agent.Node{execute, plan}, "execute", map[string][]string{"execute": {"plan"}})
	require.NoError(t, err)

	st, err := s.Invoke(context.Background(), userTurn(nil, "plan from the sheet"))
	require.NoError(t, err)
	assert.Equal(t, "planned", st.Messages[len(st.Messages)-1].Content)
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, releases)

	pm.Reply("again")
	_, err = s.Invoke(context.Background(), userTurn(st, "once more"))
	require.NoError(t, err)
	assert.Equal(t, 2, opens)
	assert.Equal(t, 2, releases)
}

func TestInvoke_ToolSourceUnavailable(t *testing.T) {
	down := true
	src := tool.NewSource(func(context.Context) ([]tool.Tool, func() error, error) {
		if down {
			return nil, nil, core.NewFailure(core.ToolInitialization, "",
				errors.New(`connect MCP server "excel": no such file or directory`))
		}
		return nil, func() error { return nil }, nil
	})

	m := model.NewMockModel("e").Reply("back online")
	execute := agent.NewModelAgent("execute", m, func(o *agent.ModelAgentOptions) { o.ToolSource = src })
	s, err := New([]agent.Node{execute}, "execute", nil)
	require.NoError(t, err)

	st, err := s.Invoke(context.Background(), userTurn(nil, "read the sheet"))
	require.NoError(t, err)
	last := st.Messages[len(st.Messages)-1]
	assert.Equal(t, `Failed to initialize tools: connect MCP server "excel": no such file or directory`, last.Content)
	assert.Equal(t, "execute", last.Agent)
	assert.Equal(t, 0, st.ErrorCount)
	assert.Empty(t, m.Requests())

	down = false
	st, err = s.Invoke(context.Background(), userTurn(st, "try again"))
	require.NoError(t, err)
	assert.Equal(t, "back online", st.Messages[len(st.Messages)-1].Content)
}
