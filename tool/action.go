package tool

import "context"

// ActionCompleted is the acknowledgement returned by ActionTool.
const ActionCompleted = "Action completed"

// Action describes a structured operation that is carried out by the client
// (for example a front-end) rather than by the server. The model sees it as a
// regular tool.
type Action struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ActionTool exposes an Action as a Tool. Calling it only acknowledges the
// request; the arguments stay visible in the assistant tool call for the
// client to execute.
type ActionTool struct {
	action Action
}

// NewActionTool wraps an Action.
func NewActionTool(a Action) *ActionTool {
	if a.Parameters == nil {
		a.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &ActionTool{action: a}
}

// ActionTools wraps every action.
func ActionTools(actions []Action) []Tool {
	out := make([]Tool, 0, len(actions))
	for _, a := range actions {
		out = append(out, NewActionTool(a))
	}
	return out
}

func (t *ActionTool) Name() string               { return t.action.Name }
func (t *ActionTool) Description() string        { return t.action.Description }
func (t *ActionTool) Parameters() map[string]any { return t.action.Parameters }

func (t *ActionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	info := CallInfoFromContext(ctx)
	info.Logger.Debug("tool.action.acknowledged", "action", t.action.Name, "call_id", info.ID)
	return ActionCompleted, nil
}
