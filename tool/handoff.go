package tool

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// TransferPrefix prefixes the name of every handoff tool.
const TransferPrefix = "transfer_to_"

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeAgentName trims name, collapses whitespace runs to "_" and lower-cases it.
func NormalizeAgentName(name string) string {
	return strings.ToLower(whitespace.ReplaceAllString(strings.TrimSpace(name), "_"))
}

// HandoffToolName returns "transfer_to_<normalized target>".
func HandoffToolName(target string) string {
	return TransferPrefix + NormalizeAgentName(target)
}

// TransferMessage is the synthetic tool result recorded for a handoff.
func TransferMessage(target string) string {
	return "Successfully transferred to " + target
}

// Transfer is the result value of a cooperative handoff tool.
type Transfer struct {
	Target string `json:"target"`
}

func (t *Transfer) String() string { return TransferMessage(t.Target) }

// HandoffError is the bubble-up form of a handoff. Executors and retry
// wrappers must pass it through untouched; the router consumes it.
type HandoffError struct {
	Target string
}

func (e *HandoffError) Error() string { return "handoff requested to " + e.Target }

// IsHandoff reports whether err carries a HandoffError.
func IsHandoff(err error) bool {
	var h *HandoffError
	return errors.As(err, &h)
}

// AsHandoff inspects a tool outcome and reports the requested target, for
// both the cooperative and the bubble-up form.
func AsHandoff(result any, err error) (string, bool) {
	if err != nil {
		var h *HandoffError
		if errors.As(err, &h) {
			return h.Target, true
		}
		return "", false
	}
	switch v := result.(type) {
	case *Transfer:
		if v != nil {
			return v.Target, true
		}
	case Transfer:
		return v.Target, true
	}
	return "", false
}

// HandoffStyle selects how a handoff tool signals the transfer.
type HandoffStyle int

const (
	// Cooperative returns a *Transfer result.
	Cooperative HandoffStyle = iota
	// Bubble returns a *HandoffError.
	Bubble
)

// HandoffOptions configure a HandoffTool.
type HandoffOptions struct {
	Name        string
	Description string
	Style       HandoffStyle
}

// HandoffTool transfers control of the conversation to a named swarm member.
type HandoffTool struct {
	target string
	opts   HandoffOptions
}

// NewHandoffTool creates the handoff tool for target.
func NewHandoffTool(target string, optFns ...func(o *HandoffOptions)) *HandoffTool {
	opts := HandoffOptions{
		Name:        HandoffToolName(target),
		Description: fmt.Sprintf("Ask agent '%s' for help", target),
		Style:       Cooperative,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &HandoffTool{target: target, opts: opts}
}

// Name returns transfer_to_<target> unless overridden.
func (t *HandoffTool) Name() string { return t.opts.Name }

// Description returns the text the model sees for this tool.
func (t *HandoffTool) Description() string { return t.opts.Description }

// HandoffTarget returns the agent this tool transfers to.
func (t *HandoffTool) HandoffTarget() string { return t.target }

// Parameters returns an empty object schema; handoffs take no arguments.
func (t *HandoffTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// Call signals the transfer. It never fails.
func (t *HandoffTool) Call(ctx context.Context, _ map[string]any) (any, error) {
	info := CallInfoFromContext(ctx)
	info.Logger.Debug("tool.handoff.requested", "from", info.Agent, "to", t.target, "call_id", info.ID)
	if t.opts.Style == Bubble {
		return nil, &HandoffError{Target: t.target}
	}
	return &Transfer{Target: t.target}, nil
}
