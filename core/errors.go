package core

import (
	"errors"
	"fmt"
)

// FailureKind classifies errors raised while an agent handles a turn.
type FailureKind string

const (
	// ToolInitialization means tools could not be loaded. Fatal for the turn.
	ToolInitialization FailureKind = "tool_initialization"
	// ToolExecution means a tool returned an error or panicked.
	ToolExecution FailureKind = "tool_execution"
	// ModelInvocation means the model call failed or exhausted its budget.
	ModelInvocation FailureKind = "model_invocation"
	// Routing means a handoff could not be honoured at runtime (target not
	// routed from the active agent, or the hop ceiling was hit). Ends the turn.
	Routing FailureKind = "routing"
	// Unexpected covers everything else.
	Unexpected FailureKind = "unexpected"
)

// Failure is the classified error produced at an agent node boundary.
type Failure struct {
	Kind    FailureKind
	Agent   string
	Details map[string]any
	Err     error
}

// NewFailure creates a Failure of the given kind.
func NewFailure(kind FailureKind, agent string, err error) *Failure {
	return &Failure{Kind: kind, Agent: agent, Err: err}
}

func (f *Failure) Error() string {
	if f.Agent != "" {
		return fmt.Sprintf("%s failure in %s: %v", f.Kind, f.Agent, f.Err)
	}
	return fmt.Sprintf("%s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the failure feeds the retry envelope. Tool
// initialisation and routing failures end the turn with a plain message instead.
func (f *Failure) Retryable() bool { return f.Kind != ToolInitialization && f.Kind != Routing }

// UserMessage renders the failure for the end user.
func (f *Failure) UserMessage() string {
	switch f.Kind {
	case ToolExecution:
		return "Tool execution failed: " + f.cause()
	case ToolInitialization:
		return "Failed to initialize tools: " + f.cause()
	case ModelInvocation:
		return "Model invocation failed: " + f.cause()
	case Routing:
		return "Routing failed: " + f.cause()
	default:
		return "Unexpected error: " + f.cause()
	}
}

func (f *Failure) cause() string {
	if f.Err == nil {
		return "unknown error"
	}
	return f.Err.Error()
}

// Classify returns err as a *Failure. Errors that already carry a Failure keep
// their kind; anything else becomes an Unexpected failure attributed to agent.
func Classify(agent string, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		if f.Agent == "" {
			f.Agent = agent
		}
		return f
	}
	return NewFailure(Unexpected, agent, err)
}
