package swarm

import "fmt"

// RouteConfig builds a full-mesh routing table: every agent may hand off to
// every other agent. Individual routes can be narrowed with UpdateRoute.
type RouteConfig struct {
	agents       []string
	routes       map[string][]string
	defaultAgent string
}

// NewRouteConfig creates a full mesh over agents. An empty defaultAgent
// selects the first agent.
func NewRouteConfig(agents []string, defaultAgent string) *RouteConfig {
	rc := &RouteConfig{agents: append([]string(nil), agents...), defaultAgent: defaultAgent}
	if rc.defaultAgent == "" && len(rc.agents) > 0 {
		rc.defaultAgent = rc.agents[0]
	}
	rc.regenerate()
	return rc
}

func (rc *RouteConfig) regenerate() {
	rc.routes = make(map[string][]string, len(rc.agents))
	for _, a := range rc.agents {
		targets := make([]string, 0, len(rc.agents)-1)
		for _, b := range rc.agents {
			if a != b {
				targets = append(targets, b)
			}
		}
		rc.routes[a] = targets
	}
}

// Routes returns a copy of the table.
func (rc *RouteConfig) Routes() map[string][]string {
	out := make(map[string][]string, len(rc.routes))
	for k, v := range rc.routes {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// DefaultAgent returns the default agent, empty when there are no agents.
func (rc *RouteConfig) DefaultAgent() string { return rc.defaultAgent }

// Agents returns the agents in insertion order.
func (rc *RouteConfig) Agents() []string { return append([]string(nil), rc.agents...) }

// AddAgent adds name and regenerates the mesh. Narrowed routes are reset.
func (rc *RouteConfig) AddAgent(name string) {
	for _, a := range rc.agents {
		if a == name {
			return
		}
	}
	rc.agents = append(rc.agents, name)
	rc.regenerate()
	if rc.defaultAgent == "" {
		rc.defaultAgent = name
	}
}

// RemoveAgent removes name and regenerates the mesh. If name was the default,
// the first remaining agent becomes the default.
func (rc *RouteConfig) RemoveAgent(name string) {
	idx := -1
	for i, a := range rc.agents {
		if a == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	rc.agents = append(rc.agents[:idx], rc.agents[idx+1:]...)
	rc.regenerate()
	if rc.defaultAgent == name {
		rc.defaultAgent = ""
		if len(rc.agents) > 0 {
			rc.defaultAgent = rc.agents[0]
		}
	}
}

// UpdateRoute replaces the targets of source.
func (rc *RouteConfig) UpdateRoute(source string, targets []string) error {
	if _, ok := rc.routes[source]; !ok {
		return fmt.Errorf("update route %s: %w", source, ErrUnknownAgent)
	}
	rc.routes[source] = append([]string(nil), targets...)
	return nil
}

// SetDefault changes the default agent.
func (rc *RouteConfig) SetDefault(name string) error {
	if _, ok := rc.routes[name]; !ok {
		return fmt.Errorf("set default %s: %w", name, ErrUnknownAgent)
	}
	rc.defaultAgent = name
	return nil
}

// Descriptors converts the table into member descriptors.
func (rc *RouteConfig) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(rc.agents))
	for _, a := range rc.agents {
		out = append(out, Descriptor{
			Name:           a,
			AllowedTargets: append([]string(nil), rc.routes[a]...),
			IsDefault:      a == rc.defaultAgent,
		})
	}
	return out
}
