package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/tool"
)

// mockCaller stands in for a client session.
type mockCaller struct{ mock.Mock }

func (m *mockCaller) CallTool(ctx context.Context, params *sdkmcp.CallToolParams) (*sdkmcp.CallToolResult, error) {
	args := m.Called(ctx, params)
	res, _ := args.Get(0).(*sdkmcp.CallToolResult)
	return res, args.Error(1)
}

type sheetInput struct {
	Sheet string `json:"sheet" jsonschema:"worksheet name"`
}

func newExcelServer() *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "excel-test-server", Version: "v1.0.0"}, nil)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "read_sheet", Description: "read a worksheet"},
		func(_ context.Context, _ *sdkmcp.CallToolRequest, in sheetInput) (*sdkmcp.CallToolResult, any, error) {
			if in.Sheet == "missing" {
				return nil, nil, errors.New("sheet not found")
			}
			return &sdkmcp.CallToolResult{
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "rows of " + in.Sheet}},
			}, nil, nil
		})
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "list.sheets"},
		func(context.Context, *sdkmcp.CallToolRequest, struct{}) (*sdkmcp.CallToolResult, any, error) {
			return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "Sheet1"}}}, nil, nil
		})
	return server
}

// inMemoryDial connects each config name to its own in-memory server.
func inMemoryDial(t *testing.T, servers map[string]*sdkmcp.Server) DialFunc {
	t.Helper()
	return func(ctx context.Context, cfg ServerConfig) (sdkmcp.Transport, error) {
		srv, ok := servers[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("no test server %q", cfg.Name)
		}
		clientT, serverT := sdkmcp.NewInMemoryTransports()
		ss, err := srv.Connect(ctx, serverT, nil)
		if err != nil {
			return nil, err
		}
		t.Cleanup(func() { ss.Close() })
		return clientT, nil
	}
}

func TestMapping_Resolve(t *testing.T) {
	m := DefaultMapping("http://excel:9000/sse")
	out := m.Resolve([]ServerConfig{
		{Name: "files", Transport: TransportStdio, Command: "files-mcp"},
		{Name: "excel", Transport: TransportMapped, MappedName: "mcp-excel"},
		{Name: "ghost", Transport: TransportMapped, MappedName: "nope"},
	}, nil)

	require.Len(t, out, 2)
	assert.Equal(t, "files", out[0].Name)
	assert.Equal(t, ServerConfig{Name: "excel", Transport: TransportSSE, URL: "http://excel:9000/sse"}, out[1])

	assert.Equal(t, DefaultExcelURL, DefaultMapping("")["mcp-excel"].URL)
}

func TestServerConfig_Validate(t *testing.T) {
	assert.NoError(t, ServerConfig{Name: "a", Command: "x"}.Validate())
	assert.Error(t, ServerConfig{Name: "a", Transport: TransportStdio}.Validate())
	assert.Error(t, ServerConfig{Name: "a", Transport: TransportSSE}.Validate())
	assert.NoError(t, ServerConfig{Name: "a", Transport: TransportStreamableHTTP, URL: "http://x"}.Validate())
	assert.Error(t, ServerConfig{Name: "a", Transport: TransportMapped}.Validate())
	assert.Error(t, ServerConfig{Name: "a", Transport: "carrier-pigeon"}.Validate())
}

func TestClient_ToolsAndCall(t *testing.T) {
	ctx := context.Background()
	client := NewClient([]ServerConfig{{Name: "Excel Server", Transport: TransportSSE, URL: "http://unused"}}, func(o *ClientOptions) {
		o.Dial = inMemoryDial(t, map[string]*sdkmcp.Server{"Excel Server": newExcelServer()})
	})
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	tools, err := client.Tools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)

	byName := map[string]tool.Tool{}
	for _, tl := range tools {
		byName[tl.Name()] = tl
	}
	read, ok := byName["mcp_excel_server_read_sheet"]
	require.True(t, ok, "got %v", byName)
	_, ok = byName["mcp_excel_server_list_sheets"]
	require.True(t, ok)

	assert.Equal(t, "read a worksheet", read.Description())
	assert.Equal(t, "object", read.Parameters()["type"])

	got, err := read.Call(ctx, map[string]any{"sheet": "Q1"})
	require.NoError(t, err)
	assert.Equal(t, "rows of Q1", got)

	_, err = read.Call(ctx, map[string]any{"sheet": "missing"})
	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeExecution, toolErr.Code)
	assert.Contains(t, toolErr.Message, "sheet not found")
}

func TestLoadTools(t *testing.T) {
	ctx := context.Background()
	actions := []tool.Action{{Name: "render_chart", Description: "Render a chart in the UI"}}

	tools, client, err := LoadTools(ctx,
		[]ServerConfig{{Name: "excel", Transport: TransportMapped, MappedName: "mcp-excel"}},
		actions,
		func(o *LoadOptions) {
			o.Mapping = DefaultMapping("")
			o.Client = append(o.Client, func(co *ClientOptions) {
				co.Dial = inMemoryDial(t, map[string]*sdkmcp.Server{"excel": newExcelServer()})
			})
		})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()

	require.Len(t, tools, 3)
	assert.Equal(t, "render_chart", tools[2].Name())
}

func TestLoadTools_Failures(t *testing.T) {
	ctx := context.Background()

	_, _, err := LoadTools(ctx, nil, nil)
	var f *core.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, core.ToolInitialization, f.Kind)
	assert.Equal(t, "Failed to initialize tools: no tools available", f.UserMessage())

	_, _, err = LoadTools(ctx, []ServerConfig{{Name: "down", Transport: TransportSSE, URL: "http://x"}}, nil, func(o *LoadOptions) {
		o.Client = append(o.Client, func(co *ClientOptions) {
			co.Dial = func(context.Context, ServerConfig) (sdkmcp.Transport, error) {
				return nil, errors.New("connection refused")
			}
		})
	})
	require.ErrorAs(t, err, &f)
	assert.Equal(t, core.ToolInitialization, f.Kind)
	assert.Contains(t, f.Error(), "connection refused")

	// Actions alone are enough.
	tools, client, err := LoadTools(ctx, nil, []tool.Action{{Name: "notify"}})
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.Len(t, tools, 1)
}

func TestSource_OpenPerCall(t *testing.T) {
	ctx := context.Background()
	dials := 0
	servers := map[string]*sdkmcp.Server{"excel": newExcelServer()}
	dial := inMemoryDial(t, servers)

	src := NewSource([]ServerConfig{{Name: "excel", Transport: TransportSSE, URL: "http://unused"}}, func(o *LoadOptions) {
		o.Client = append(o.Client, func(co *ClientOptions) {
			co.Dial = func(ctx context.Context, cfg ServerConfig) (sdkmcp.Transport, error) {
				dials++
				return dial(ctx, cfg)
			}
		})
	})

	for range 2 {
		tools, release, err := src.Open(ctx)
		require.NoError(t, err)
		assert.Len(t, tools, 2)
		require.NoError(t, release())
	}
	assert.Equal(t, 2, dials)
}

func TestSource_Unreachable(t *testing.T) {
	src := NewSource([]ServerConfig{{Name: "excel", Transport: TransportStdio, Command: "/nonexistent-mcp-server"}})

	_, _, err := src.Open(context.Background())
	var f *core.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, core.ToolInitialization, f.Kind)
	assert.Contains(t, f.UserMessage(), "Failed to initialize tools: ")
}

func TestNewTool_NameLimits(t *testing.T) {
	long := NewTool(nil, "a-very-long-server-name-that-keeps-going", &sdkmcp.Tool{Name: "and_an_even_longer_tool_name_for_good_measure"})
	assert.LessOrEqual(t, len(long.Name()), maxToolNameLength)
	assert.Equal(t, "unnamed", sanitize("!!!"))
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "(no content)", extractText(&sdkmcp.CallToolResult{}))
	assert.Equal(t, `{"sum":5}`, extractText(&sdkmcp.CallToolResult{StructuredContent: map[string]int{"sum": 5}}))
	assert.Equal(t, "a\nb", extractText(&sdkmcp.CallToolResult{Content: []sdkmcp.Content{
		&sdkmcp.TextContent{Text: "a"}, &sdkmcp.TextContent{Text: "b"},
	}}))
}

func TestTool_CallWithMockCaller(t *testing.T) {
	caller := &mockCaller{}
	caller.On("CallTool", mock.Anything, mock.MatchedBy(func(p *sdkmcp.CallToolParams) bool {
		return p.Name == "sum"
	})).Return(&sdkmcp.CallToolResult{StructuredContent: map[string]any{"sum": 5}}, nil).Once()
	caller.On("CallTool", mock.Anything, mock.Anything).Return(nil, errors.New("session closed")).Once()

	tl := NewTool(caller, "calc", &sdkmcp.Tool{Name: "sum"})
	assert.Equal(t, "mcp_calc_sum", tl.Name())
	assert.Equal(t, "sum", tl.RemoteName())
	assert.Equal(t, "calc", tl.Server())
	assert.Equal(t, "MCP tool from calc server", tl.Description())
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, tl.Parameters())

	got, err := tl.Call(context.Background(), map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"sum":5}`, got)

	_, err = tl.Call(context.Background(), nil)
	require.ErrorContains(t, err, "session closed")
	var toolErr *tool.ToolError
	assert.False(t, errors.As(err, &toolErr))

	caller.AssertExpectations(t)
}
