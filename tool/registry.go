package tool

import (
	"fmt"

	"github.com/hupe1980/agentswarm/model"
)

// Registry is an ordered, name-unique set of tools.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry builds a registry, failing on duplicate names.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers t. Names must be unique.
func (r *Registry) Add(t Tool) error {
	if r.tools == nil {
		r.tools = map[string]Tool{}
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool without name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("duplicate tool %q", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Tool {
	if r == nil {
		return nil
	}
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Definitions converts the registry into model tool declarations.
func (r *Registry) Definitions() []model.ToolDefinition {
	tools := r.Tools()
	if len(tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.NewToolDefinition(t.Name(), t.Description(), t.Parameters()))
	}
	return defs
}
