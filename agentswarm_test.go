package agentswarm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentswarm/config"
	"github.com/hupe1980/agentswarm/expert"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/mcp"
	"github.com/hupe1980/agentswarm/model"
	"github.com/hupe1980/agentswarm/swarm"
	"github.com/hupe1980/agentswarm/tool"
)

func withMock(m model.Model) func(o *Options) {
	return func(o *Options) {
		o.Model = m
		o.Logger = logging.NoOpLogger{}
	}
}

func TestBuild_DefaultSwarm(t *testing.T) {
	cfg := config.Defaults()
	cfg.Actions = []tool.Action{{Name: "render_chart", Description: "Render a chart"}}

	llm := model.NewMockModel("mock").Reply("Hello from execute_agent")
	app, err := Build(context.Background(), &cfg, withMock(llm))
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, []string{expert.ResearchAgent, expert.PlanAgent, expert.ExecuteAgent}, app.Swarm.Agents())
	require.Len(t, app.Tools, 1)
	assert.Equal(t, "render_chart", app.Tools[0].Name())

	res, err := app.Runner.Run(context.Background(), "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello from execute_agent", res.Reply())
	assert.Equal(t, expert.ExecuteAgent, res.State.ActiveAgent)
}

func TestBuild_PipelineWithSQLite(t *testing.T) {
	cfg := config.Defaults()
	cfg.Swarm.Mode = "pipeline"
	cfg.Checkpoint.Backend = "sqlite"
	cfg.Checkpoint.Path = filepath.Join(t.TempDir(), "state.db")

	llm := model.NewMockModel("mock").Reply("done")
	app, err := Build(context.Background(), &cfg, withMock(llm))
	require.NoError(t, err)

	assert.Equal(t, []string{expert.PipelineAgent}, app.Swarm.Agents())

	_, err = app.Runner.Run(context.Background(), "c1", "hi")
	require.NoError(t, err)

	saved, err := app.Store.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, saved.Messages, 2)

	require.NoError(t, app.Close())
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(context.Background(), nil)
	assert.Error(t, err)

	cfg := config.Defaults()
	cfg.Swarm.DefaultAgent = "critic"
	_, err = Build(context.Background(), &cfg, withMock(model.NewMockModel("m")))
	assert.ErrorIs(t, err, swarm.ErrUnknownAgent)

	cfg = config.Defaults()
	cfg.Model.Provider = "cohere"
	_, err = Build(context.Background(), &cfg, func(o *Options) { o.Logger = logging.NoOpLogger{} })
	assert.ErrorContains(t, err, `unknown model provider "cohere"`)

	cfg = config.Defaults()
	cfg.Swarm.Intents = map[string]string{"critic": "Reviews answers"}
	_, err = Build(context.Background(), &cfg, withMock(model.NewMockModel("m")))
	assert.ErrorIs(t, err, swarm.ErrUnknownAgent)

	cfg = config.Defaults()
	cfg.Checkpoint.Backend = "redis"
	_, err = Build(context.Background(), &cfg, withMock(model.NewMockModel("m")))
	assert.ErrorContains(t, err, `unknown checkpoint backend "redis"`)
}

func TestBuild_UnreachableMCPServer(t *testing.T) {
	cfg := config.Defaults()
	cfg.MCP.Servers = []mcp.ServerConfig{{Name: "excel", Transport: mcp.TransportStdio, Command: "/nonexistent-mcp-server"}}

	llm := model.NewMockModel("mock")
	app, err := Build(context.Background(), &cfg, withMock(llm))
	require.NoError(t, err)
	defer app.Close()
	require.NotNil(t, app.ToolSource)

	res, err := app.Runner.Run(context.Background(), "c1", "read my sheet")
	require.NoError(t, err)
	assert.Contains(t, res.Reply(), "Failed to initialize tools: ")
	assert.Equal(t, 0, res.State.ErrorCount)
	assert.Empty(t, llm.Requests())
}

func TestBuild_IntentsAndWebSearch(t *testing.T) {
	cfg := config.Defaults()
	cfg.Swarm.WebSearch = true
	cfg.Swarm.Intents = map[string]string{
		expert.ResearchAgent: "Questions that need looking things up",
		expert.ExecuteAgent:  "Everything else",
	}

	llm := model.NewMockModel("mock").Reply(expert.ResearchAgent).Reply("Q1 revenue was 42")
	app, err := Build(context.Background(), &cfg, withMock(llm))
	require.NoError(t, err)
	defer app.Close()

	res, err := app.Runner.Run(context.Background(), "c1", "what was Q1 revenue?")
	require.NoError(t, err)
	assert.Equal(t, "Q1 revenue was 42", res.Reply())
	assert.Equal(t, expert.ResearchAgent, res.State.ActiveAgent)
	assert.True(t, res.State.WebSearchEnabled)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.False(t, reqs[0].WebSearch)
	assert.True(t, reqs[1].WebSearch)
}
