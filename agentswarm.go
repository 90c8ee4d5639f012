// Package agentswarm wires a complete agent swarm from a config.Config: the
// chat model, action tools, per-turn MCP tools, the expert topology, a checkpoint store
// and the turn runner.
//
// Most applications call Build once and then drive conversations through
// App.Runner:
//
//	cfg, _ := config.Load("agentswarm.yaml")
//	app, err := agentswarm.Build(ctx, cfg)
//	if err != nil { ... }
//	defer app.Close()
//	res, err := app.Runner.Run(ctx, "conversation-1", "Summarise sheet Q1")
//
// Build only returns construction errors; failures during a turn are
// recorded in the conversation by the swarm's retry envelope.
package agentswarm

import (
	"context"
	"errors"
	"fmt"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentswarm/checkpoint"
	"github.com/hupe1980/agentswarm/checkpoint/memory"
	"github.com/hupe1980/agentswarm/checkpoint/natskv"
	"github.com/hupe1980/agentswarm/checkpoint/sqlite"
	"github.com/hupe1980/agentswarm/config"
	"github.com/hupe1980/agentswarm/expert"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/mcp"
	"github.com/hupe1980/agentswarm/model"
	"github.com/hupe1980/agentswarm/model/anthropic"
	"github.com/hupe1980/agentswarm/model/openai"
	"github.com/hupe1980/agentswarm/runner"
	"github.com/hupe1980/agentswarm/swarm"
	"github.com/hupe1980/agentswarm/tool"
)

// Options overrides parts of what Build derives from the config.
type Options struct {
	// Model replaces the configured provider.
	Model model.Model
	// Tools are added after the action tools. MCP tools are not part of
	// this list; they are opened per turn.
	Tools []tool.Tool
	// Store replaces the configured checkpoint backend.
	Store checkpoint.Store
	// MCPClient options are passed to the MCP client, e.g. a custom Dial.
	MCPClient []func(o *mcp.ClientOptions)
	// Logger defaults to a SwarmLogger built from cfg.Log.
	Logger logging.Logger
}

// App is a wired swarm ready to run turns.
type App struct {
	Runner *runner.Runner
	Swarm  *swarm.Swarm
	Store  checkpoint.Store
	// Tools are the static tools: actions and Options.Tools.
	Tools []tool.Tool
	// ToolSource opens the configured MCP servers once per turn; nil without
	// servers.
	ToolSource tool.Source
	Logger     logging.Logger

	closers []func() error
}

// Build constructs an App from cfg. Resources acquired before a failure are
// released.
func Build(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(cfg.LoggerConfig()).WithComponent("agentswarm")
	}

	app := &App{Logger: opts.Logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	llm := opts.Model
	if llm == nil {
		if llm, err = newModel(cfg.Model); err != nil {
			return nil, err
		}
	}
	if cfg.Model.RequestsPerMinute > 0 {
		llm = model.NewRateLimited(llm, model.PerMinute(cfg.Model.RequestsPerMinute))
	}

	app.Tools = append(tool.ActionTools(cfg.Actions), opts.Tools...)

	if len(cfg.MCP.Servers) > 0 {
		app.ToolSource = mcp.NewSource(cfg.MCP.Servers, func(o *mcp.LoadOptions) {
			o.Mapping = cfg.MCPMapping()
			o.Client = opts.MCPClient
			o.Logger = opts.Logger
		})
	}

	var classifier swarm.Classifier
	if len(cfg.Swarm.Intents) > 0 {
		if classifier, err = swarm.NewIntentClassifier(llm, cfg.Swarm.Intents); err != nil {
			return nil, err
		}
	}

	expertOpts := func(o *expert.Options) {
		o.DefaultAgent = cfg.Swarm.DefaultAgent
		o.Logger = opts.Logger
		o.ToolSource = app.ToolSource
		o.SwarmOptions = append(o.SwarmOptions, func(so *swarm.Options) {
			so.MaxHops = cfg.Swarm.MaxHops
			so.MaxModelCalls = cfg.Swarm.MaxModelCalls
			so.HandoffStyle = cfg.HandoffStyle()
			so.Classifier = classifier
		})
	}

	models := expert.Models{Execute: llm}
	if cfg.Swarm.Mode == "pipeline" {
		app.Swarm, err = expert.NewPipelineSwarm(models, app.Tools, expertOpts)
	} else {
		app.Swarm, err = expert.NewSwarm(models, app.Tools, expertOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("build swarm: %w", err)
	}

	app.Store = opts.Store
	if app.Store == nil {
		if app.Store, err = app.openStore(cfg.Checkpoint); err != nil {
			return nil, err
		}
	}

	app.Runner = runner.New(app.Swarm, func(o *runner.Options) {
		o.Store = app.Store
		o.MaxRetries = cfg.Swarm.MaxRetries
		o.PlanEnabled = cfg.Swarm.PlanEnabled
		o.WebSearchEnabled = cfg.Swarm.WebSearch
		o.Logger = opts.Logger
	})

	app.Logger.Info("agentswarm.ready",
		"provider", llm.Info().Provider,
		"model", llm.Info().Name,
		"mode", cfg.Swarm.Mode,
		"agents", app.Swarm.Agents(),
		"tools", len(app.Tools),
		"mcp_servers", len(cfg.MCP.Servers),
		"classifier", classifier != nil,
		"checkpoint", cfg.Checkpoint.Backend,
	)

	return app, nil
}

// Close releases the checkpoint store. MCP sessions are owned by the turn
// that opened them.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = sdkanthropic.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func (a *App) openStore(cfg config.CheckpointConfig) (checkpoint.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite checkpoint store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "nats":
		url := cfg.NATSURL
		if url == "" {
			srv, err := natskv.StartServer(cfg.DataDir, -1)
			if err != nil {
				return nil, fmt.Errorf("start embedded nats: %w", err)
			}
			a.closers = append(a.closers, func() error { srv.Close(); return nil })
			url = srv.ClientURL()
		}
		s, err := natskv.Connect(url, func(o *natskv.Options) {
			if cfg.Bucket != "" {
				o.Bucket = cfg.Bucket
			}
			o.Logger = a.Logger
		})
		if err != nil {
			return nil, fmt.Errorf("open nats checkpoint store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
