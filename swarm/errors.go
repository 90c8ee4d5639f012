package swarm

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAgents is returned when a swarm is built without members.
	ErrNoAgents = errors.New("no agents")
	// ErrUnknownAgent is returned when a name does not match any member.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrDuplicateAgent is returned when two members share a name.
	ErrDuplicateAgent = errors.New("duplicate agent")
	// ErrMultipleDefaults is returned when more than one descriptor is marked default.
	ErrMultipleDefaults = errors.New("multiple default agents")
	// ErrSelfRoute is returned when an agent routes to itself.
	ErrSelfRoute = errors.New("agent routes to itself")
	// ErrNotHandoffAware is returned when an agent with outgoing routes cannot accept handoff tools.
	ErrNotHandoffAware = errors.New("agent does not accept handoff tools")
)

// ConfigError reports an invalid swarm definition. It is raised at
// construction time and never retried.
type ConfigError struct {
	Agent string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Agent == "" {
		return fmt.Sprintf("swarm config: %v", e.Err)
	}
	return fmt.Sprintf("swarm config: agent %q: %v", e.Agent, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configError(agent string, err error) error {
	return &ConfigError{Agent: agent, Err: err}
}
