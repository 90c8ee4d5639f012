// Package mcp loads tools from Model Context Protocol servers and adapts
// them to tool.Tool.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/tool"
)

// DialFunc creates the SDK transport for a server.
type DialFunc func(ctx context.Context, cfg ServerConfig) (sdkmcp.Transport, error)

// ClientOptions configure a Client.
type ClientOptions struct {
	Name    string
	Version string
	// Dial overrides transport construction, e.g. with in-memory transports.
	Dial       DialFunc
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Client holds one session per configured server.
type Client struct {
	configs  []ServerConfig
	opts     ClientOptions
	sdk      *sdkmcp.Client
	mu       sync.Mutex
	sessions map[string]*sdkmcp.ClientSession
}

// NewClient creates a client for the given servers. Mapped entries must be
// resolved beforehand (see Mapping.Resolve).
func NewClient(configs []ServerConfig, optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		Name:    "agentswarm",
		Version: "1.0.0",
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	c := &Client{
		configs:  append([]ServerConfig(nil), configs...),
		opts:     opts,
		sessions: make(map[string]*sdkmcp.ClientSession),
	}
	if c.opts.Dial == nil {
		c.opts.Dial = c.dial
	}
	c.sdk = sdkmcp.NewClient(&sdkmcp.Implementation{Name: opts.Name, Version: opts.Version}, nil)

	return c
}

// Connect performs the MCP handshake with every server. On failure the
// sessions opened so far are closed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cfg := range c.configs {
		if _, ok := c.sessions[cfg.Name]; ok {
			continue
		}
		if err := cfg.Validate(); err != nil {
			c.closeLocked()
			return err
		}

		transport, err := c.opts.Dial(ctx, cfg)
		if err != nil {
			c.closeLocked()
			return fmt.Errorf("mcp server %q: %w", cfg.Name, err)
		}

		session, err := c.sdk.Connect(ctx, transport, nil)
		if err != nil {
			c.closeLocked()
			return fmt.Errorf("connect MCP server %q: %w", cfg.Name, err)
		}
		c.sessions[cfg.Name] = session

		c.opts.Logger.Info("mcp.server.connected", "server", cfg.Name, "transport", string(cfg.Transport))
	}

	return nil
}

// Tools lists every server's tools, in configuration order, as tool.Tool.
func (c *Client) Tools(ctx context.Context) ([]tool.Tool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []tool.Tool
	for _, cfg := range c.configs {
		session, ok := c.sessions[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("mcp server %q is not connected", cfg.Name)
		}
		n := 0
		for t, err := range session.Tools(ctx, nil) {
			if err != nil {
				return nil, fmt.Errorf("tools/list %s: %w", cfg.Name, err)
			}
			out = append(out, NewTool(session, cfg.Name, t))
			n++
		}
		c.opts.Logger.Info("mcp.server.tools", "server", cfg.Name, "tools", n)
	}

	return out, nil
}

// Close ends every session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	var errs []error
	for name, s := range c.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(c.sessions, name)
	}
	return errors.Join(errs...)
}

func (c *Client) dial(_ context.Context, cfg ServerConfig) (sdkmcp.Transport, error) {
	switch cfg.Transport {
	case TransportStdio, "":
		cmd := exec.Command(cfg.Command, cfg.Args...)
		if len(cfg.Env) > 0 {
			env := os.Environ()
			for k, v := range cfg.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			cmd.Env = env
		}
		return &sdkmcp.CommandTransport{Command: cmd}, nil
	case TransportSSE:
		return &sdkmcp.SSEClientTransport{Endpoint: cfg.URL, HTTPClient: c.httpClient(cfg)}, nil
	case TransportStreamableHTTP:
		return &sdkmcp.StreamableClientTransport{
			Endpoint:             cfg.URL,
			HTTPClient:           c.httpClient(cfg),
			DisableStandaloneSSE: true,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func (c *Client) httpClient(cfg ServerConfig) *http.Client {
	base := c.opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	if len(cfg.Headers) == 0 {
		return base
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	hc := *base
	hc.Transport = &headerTransport{headers: cfg.Headers, base: rt}
	return &hc
}

// headerTransport adds static headers to every request.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// sanitize lowercases s and replaces characters outside [a-z0-9_-] with '_'.
func sanitize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	prev := false
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
		if !ok {
			if !prev {
				b.WriteByte('_')
				prev = true
			}
			continue
		}
		prev = false
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "unnamed"
	}
	return out
}
