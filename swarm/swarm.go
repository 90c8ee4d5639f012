// Package swarm routes a conversation turn between agent nodes.
//
// A Swarm is built from a set of nodes, a default agent and directional
// routes. Every node receives one handoff tool per allowed target. During a
// turn the active agent runs; when it calls a handoff tool the target becomes
// active and runs within the same turn, until some agent completes or fails.
// Failures go through the retry Envelope.
package swarm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/agentswarm/agent"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/tool"
)

// DefaultMaxHops is the default number of handoffs allowed per turn.
const DefaultMaxHops = 8

// Options configure a Swarm.
type Options struct {
	// MaxHops bounds handoffs per turn.
	MaxHops int
	// MaxModelCalls bounds model calls per turn across all agents. Zero means
	// unlimited.
	MaxModelCalls int
	// HandoffStyle selects cooperative or bubble-up handoff tools.
	HandoffStyle tool.HandoffStyle
	// Classifier, when set, picks the entry agent of conversations that have
	// no active agent. Otherwise the default agent is used.
	Classifier Classifier
	Logger     logging.Logger
}

// Descriptor describes one member of a swarm.
type Descriptor struct {
	Name           string   `json:"name" yaml:"name"`
	AllowedTargets []string `json:"allowed_targets" yaml:"allowed_targets"`
	IsDefault      bool     `json:"is_default" yaml:"is_default"`
}

// Swarm is an immutable, validated routing graph over agent nodes. It is
// safe for concurrent use across conversations. New wires handoff tools into
// the nodes, so a node belongs to exactly one swarm.
type Swarm struct {
	nodes        map[string]agent.Node
	order        []string
	defaultAgent string
	routes       map[string][]string
	envelope     Envelope
	opts         Options
}

// New validates the definition and wires handoff tools into the nodes.
// routes maps a source agent to the agents it may hand off to. Any problem is
// reported as a *ConfigError and no swarm is returned. Passing a node that
// is already wired into another swarm fails with agent.ErrAlreadyWired.
func New(nodes []agent.Node, defaultAgent string, routes map[string][]string, optFns ...func(o *Options)) (*Swarm, error) {
	opts := Options{
		MaxHops:      DefaultMaxHops,
		HandoffStyle: tool.Cooperative,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	if len(nodes) == 0 {
		return nil, configError("", ErrNoAgents)
	}

	s := &Swarm{
		nodes:  make(map[string]agent.Node, len(nodes)),
		routes: make(map[string][]string, len(routes)),
		opts:   opts,
	}

	for _, n := range nodes {
		name := n.Name()
		if name == "" {
			return nil, configError("", fmt.Errorf("agent without name"))
		}
		if _, dup := s.nodes[name]; dup {
			return nil, configError(name, ErrDuplicateAgent)
		}
		s.nodes[name] = n
		s.order = append(s.order, name)
	}

	if _, ok := s.nodes[defaultAgent]; !ok {
		return nil, configError(defaultAgent, fmt.Errorf("default agent: %w", ErrUnknownAgent))
	}
	s.defaultAgent = defaultAgent

	for source, targets := range routes {
		if _, ok := s.nodes[source]; !ok {
			return nil, configError(source, fmt.Errorf("route source: %w", ErrUnknownAgent))
		}
		seen := map[string]bool{}
		for _, target := range targets {
			if _, ok := s.nodes[target]; !ok {
				return nil, configError(source, fmt.Errorf("route target %q: %w", target, ErrUnknownAgent))
			}
			if target == source {
				return nil, configError(source, ErrSelfRoute)
			}
			if seen[target] {
				continue
			}
			seen[target] = true
			s.routes[source] = append(s.routes[source], target)
		}
	}

	if lister, ok := opts.Classifier.(interface{ Agents() []string }); ok {
		for _, name := range lister.Agents() {
			if _, ok := s.nodes[name]; !ok {
				return nil, configError(name, fmt.Errorf("classifier intent: %w", ErrUnknownAgent))
			}
		}
	}

	for _, name := range s.order {
		targets := s.routes[name]
		if len(targets) == 0 {
			continue
		}
		ha, ok := s.nodes[name].(agent.HandoffAware)
		if !ok {
			return nil, configError(name, ErrNotHandoffAware)
		}
		handoffs := make([]tool.Tool, 0, len(targets))
		for _, target := range targets {
			handoffs = append(handoffs, tool.NewHandoffTool(target, func(o *tool.HandoffOptions) {
				o.Style = opts.HandoffStyle
			}))
		}
		if err := ha.SetHandoffs(handoffs); err != nil {
			return nil, configError(name, err)
		}
	}

	return s, nil
}

// NewFromDescriptors builds a swarm from descriptors. Exactly one descriptor
// should be marked default; when none is, the first is used.
func NewFromDescriptors(nodes []agent.Node, descriptors []Descriptor, optFns ...func(o *Options)) (*Swarm, error) {
	var defaultAgent string
	routes := make(map[string][]string, len(descriptors))
	for _, d := range descriptors {
		if d.IsDefault {
			if defaultAgent != "" {
				return nil, configError(d.Name, ErrMultipleDefaults)
			}
			defaultAgent = d.Name
		}
		if len(d.AllowedTargets) > 0 {
			routes[d.Name] = d.AllowedTargets
		}
	}
	if defaultAgent == "" && len(descriptors) > 0 {
		defaultAgent = descriptors[0].Name
	}

	return New(nodes, defaultAgent, routes, optFns...)
}

// DefaultAgent returns the name of the agent used when none is active.
func (s *Swarm) DefaultAgent() string { return s.defaultAgent }

// Agents returns member names in registration order.
func (s *Swarm) Agents() []string { return append([]string(nil), s.order...) }

// Node returns the member named name.
func (s *Swarm) Node(name string) (agent.Node, bool) {
	n, ok := s.nodes[name]
	return n, ok
}

// Routes returns a copy of the validated routing table.
func (s *Swarm) Routes() map[string][]string {
	out := make(map[string][]string, len(s.routes))
	for k, v := range s.routes {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Descriptors returns one descriptor per member, sorted by name.
func (s *Swarm) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, Descriptor{
			Name:           name,
			AllowedTargets: append([]string(nil), s.routes[name]...),
			IsDefault:      name == s.defaultAgent,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs one turn against state and returns the updated state. The
// input state is not modified.
//
// The returned error is non-nil only when the context was cancelled; the
// turn is then unresolved and nothing should be persisted. Agent failures are
// recorded in the returned state by the retry envelope.
func (s *Swarm) Invoke(ctx context.Context, state *core.ConversationState) (*core.ConversationState, error) {
	st := state.Clone()
	if st == nil {
		st = core.NewConversationState()
	}
	if st.MaxRetries <= 0 {
		st.MaxRetries = core.DefaultMaxRetries
	}

	if s.opts.MaxModelCalls > 0 && core.CallBudgetFromContext(ctx) == nil {
		ctx = core.WithCallBudget(ctx, core.NewCallBudget(s.opts.MaxModelCalls))
	}

	// Per-turn tools (MCP sessions) are opened once and shared by every hop.
	if tool.ScopeFromContext(ctx) == nil {
		scope := tool.NewScope()
		ctx = tool.WithScope(ctx, scope)
		defer func() {
			if err := scope.Close(); err != nil {
				s.opts.Logger.Warn("swarm.tools.release_failed", "error", err.Error())
			}
		}()
	}

	if st.ActiveAgent == "" && s.opts.Classifier != nil {
		name, err := s.classify(ctx, st)
		if err != nil {
			return nil, err
		}
		st.ActiveAgent = name
	}

	active := s.resolve(st.ActiveAgent)
	st.ActiveAgent = active
	start := time.Now()

	s.opts.Logger.Info("swarm.turn.start", "agent", active, "messages", len(st.Messages), "error_count", st.ErrorCount)

	for hops := 0; ; {
		node := s.nodes[active]

		out, err := node.Run(ctx, st)
		if err != nil {
			s.opts.Logger.Warn("swarm.turn.aborted", "agent", active, "error", err.Error())
			return nil, err
		}

		if out.Status == agent.StatusTransfer {
			if f := s.checkTransfer(active, out.Target, hops); f != nil {
				// Keep the assistant call and its transfer result; the log must
				// stay consistent for the next model call.
				out.Apply(st)
				phase := s.envelope.Apply(st, active, agent.Failed(f))
				s.finish(st, active, phase, start)
				return st, nil
			}

			s.envelope.Apply(st, active, out)
			hops++
			s.opts.Logger.Info("swarm.handoff", "from", active, "to", out.Target, "hop", hops)
			active = out.Target
			st.ActiveAgent = active
			continue
		}

		phase := s.envelope.Apply(st, active, out)
		s.finish(st, active, phase, start)
		return st, nil
	}
}

// classify returns the classifier's pick, or "" (the default agent) when it
// fails. Only cancellation is returned as an error.
func (s *Swarm) classify(ctx context.Context, st *core.ConversationState) (string, error) {
	name, err := s.opts.Classifier.Classify(ctx, st)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		s.opts.Logger.Warn("swarm.classify.failed", "default", s.defaultAgent, "error", err.Error())
		return "", nil
	}
	s.opts.Logger.Info("swarm.classified", "agent", name)
	return name, nil
}

func (s *Swarm) checkTransfer(from, target string, hops int) *core.Failure {
	if !s.allowed(from, target) {
		return core.NewFailure(core.Routing, from, fmt.Errorf("handoff from %s to %s is not routed", from, target))
	}
	if hops+1 > s.opts.MaxHops {
		return core.NewFailure(core.Routing, from, fmt.Errorf("handoff limit of %d exceeded", s.opts.MaxHops))
	}
	return nil
}

func (s *Swarm) allowed(from, target string) bool {
	for _, t := range s.routes[from] {
		if t == target {
			return true
		}
	}
	return false
}

func (s *Swarm) resolve(name string) string {
	if name == "" {
		return s.defaultAgent
	}
	if _, ok := s.nodes[name]; !ok {
		s.opts.Logger.Warn("swarm.active_agent.unknown", "agent", name, "default", s.defaultAgent)
		return s.defaultAgent
	}
	return name
}

func (s *Swarm) finish(st *core.ConversationState, active string, phase Phase, start time.Time) {
	st.UpdatedAt = time.Now().UTC()
	s.opts.Logger.Info("swarm.turn.completed",
		"agent", active,
		"phase", phase.String(),
		"error_count", st.ErrorCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
