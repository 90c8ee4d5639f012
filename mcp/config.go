package mcp

import (
	"fmt"
	"sort"

	"github.com/hupe1980/agentswarm/logging"
)

// Transport names how a server is reached.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable_http"
	// TransportMapped refers to a named connection in a Mapping.
	TransportMapped Transport = "mcp"
)

// DefaultExcelURL is the default endpoint of the "mcp-excel" mapping.
const DefaultExcelURL = "http://localhost:8000/sse"

// ServerConfig describes one MCP server connection.
type ServerConfig struct {
	// Name identifies the server; it prefixes the names of its tools.
	Name      string            `yaml:"name" json:"name"`
	Transport Transport         `yaml:"transport" json:"transport"`
	Command   string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	URL       string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	// MappedName is the Mapping key for TransportMapped entries.
	MappedName string `yaml:"mapped_name,omitempty" json:"mapped_name,omitempty"`
}

// Validate checks that the fields required by the transport are set.
func (c ServerConfig) Validate() error {
	switch c.Transport {
	case TransportStdio, "":
		if c.Command == "" {
			return fmt.Errorf("mcp server %q: stdio transport requires a command", c.Name)
		}
	case TransportSSE, TransportStreamableHTTP:
		if c.URL == "" {
			return fmt.Errorf("mcp server %q: %s transport requires a url", c.Name, c.Transport)
		}
	case TransportMapped:
		if c.MappedName == "" {
			return fmt.Errorf("mcp server %q: mcp transport requires mapped_name", c.Name)
		}
	default:
		return fmt.Errorf("mcp server %q: unknown transport %q", c.Name, c.Transport)
	}
	return nil
}

// Mapping resolves TransportMapped entries to concrete connections, so a
// client can ask for a server by name without knowing where it runs.
type Mapping map[string]ServerConfig

// DefaultMapping returns the built-in mapping: "mcp-excel" over SSE.
func DefaultMapping(excelURL string) Mapping {
	if excelURL == "" {
		excelURL = DefaultExcelURL
	}
	return Mapping{
		"mcp-excel": {Transport: TransportSSE, URL: excelURL},
	}
}

// Resolve replaces mapped entries by their connection. The entry keeps its
// own Name. Entries whose mapped name is unknown are logged and dropped.
func (m Mapping) Resolve(configs []ServerConfig, logger logging.Logger) []ServerConfig {
	logger = logging.OrNoOp(logger)
	out := make([]ServerConfig, 0, len(configs))
	for _, c := range configs {
		if c.Transport != TransportMapped {
			out = append(out, c)
			continue
		}
		conn, ok := m[c.MappedName]
		if !ok {
			logger.Warn("mcp.mapping.unknown", "server", c.Name, "mapped_name", c.MappedName, "known", m.names())
			continue
		}
		conn.Name = c.Name
		if conn.Name == "" {
			conn.Name = c.MappedName
		}
		out = append(out, conn)
	}
	return out
}

func (m Mapping) names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
