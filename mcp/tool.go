package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hupe1980/agentswarm/tool"
)

const maxToolNameLength = 64

// Caller is the part of an MCP client session a Tool needs.
type Caller interface {
	CallTool(ctx context.Context, params *sdkmcp.CallToolParams) (*sdkmcp.CallToolResult, error)
}

// Tool exposes one remote MCP tool as a tool.Tool.
type Tool struct {
	caller Caller
	server string
	def    *sdkmcp.Tool
	name   string
}

// NewTool wraps def, served by server through caller.
func NewTool(caller Caller, server string, def *sdkmcp.Tool) *Tool {
	name := fmt.Sprintf("mcp_%s_%s", sanitize(server), sanitize(def.Name))
	if len(name) > maxToolNameLength {
		name = strings.TrimRight(name[:maxToolNameLength], "_")
	}
	return &Tool{caller: caller, server: server, def: def, name: name}
}

// Name returns "mcp_<server>_<tool>", sanitised and capped at 64 characters.
func (t *Tool) Name() string { return t.name }

// RemoteName returns the tool name as known by the server.
func (t *Tool) RemoteName() string { return t.def.Name }

// Server returns the server name.
func (t *Tool) Server() string { return t.server }

func (t *Tool) Description() string {
	desc := t.def.Description
	if desc == "" {
		desc = fmt.Sprintf("MCP tool from %s server", t.server)
	}
	return desc
}

// Parameters returns the tool's input schema as a map.
func (t *Tool) Parameters() map[string]any {
	return normalizeSchema(t.def.InputSchema)
}

// Call invokes the remote tool. A result flagged as error by the server is
// returned as a *tool.ToolError.
func (t *Tool) Call(ctx context.Context, args map[string]any) (any, error) {
	info := tool.CallInfoFromContext(ctx)

	result, err := t.caller.CallTool(ctx, &sdkmcp.CallToolParams{Name: t.def.Name, Arguments: args})
	if err != nil {
		info.Logger.Warn("mcp.tool.call_failed", "server", t.server, "tool", t.def.Name, "error", err.Error())
		return nil, fmt.Errorf("tools/call %s: %w", t.def.Name, err)
	}

	text := extractText(result)
	if result.IsError {
		return nil, tool.NewToolError(t.name, text, tool.CodeExecution)
	}

	return text, nil
}

func normalizeSchema(schema any) map[string]any {
	empty := map[string]any{"type": "object", "properties": map[string]any{}}

	if schema == nil {
		return empty
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}

	var data []byte
	switch v := schema.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		b, err := json.Marshal(schema)
		if err != nil {
			return empty
		}
		data = b
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return empty
	}
	return out
}

// extractText converts SDK content blocks and structured content into text.
func extractText(result *sdkmcp.CallToolResult) string {
	var parts []string

	for _, content := range result.Content {
		switch c := content.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, c.Text)
		case *sdkmcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image: %s, %d bytes]", c.MIMEType, len(c.Data)))
		case *sdkmcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio: %s, %d bytes]", c.MIMEType, len(c.Data)))
		case *sdkmcp.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource_link: %s]", c.URI))
		case *sdkmcp.EmbeddedResource:
			if c.Resource != nil && c.Resource.Text != "" {
				parts = append(parts, c.Resource.Text)
			} else if c.Resource != nil {
				parts = append(parts, fmt.Sprintf("[embedded resource: %s]", c.Resource.URI))
			}
		}
	}

	if len(parts) == 0 && result.StructuredContent != nil {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			parts = append(parts, string(data))
		}
	}

	if len(parts) == 0 {
		return "(no content)"
	}

	return strings.Join(parts, "\n")
}
