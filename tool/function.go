package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentswarm/internal/util"
)

// Func is the signature wrapped by FunctionTool. Arguments are already validated.
type Func func(ctx context.Context, args map[string]any) (any, error)

// FunctionTool exposes a plain Go function as a tool. Arguments are checked
// against the parameter schema first; a mismatch yields a *ToolError with
// CodeValidation, and any other function error (except handoffs and errors that
// already are *ToolError) is wrapped with CodeExecution.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          Func
}

// NewFunctionTool wraps fn. A nil parameters schema accepts any object.
func NewFunctionTool(name, description string, parameters map[string]any, fn Func) *FunctionTool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using reflection.
//
//	type SearchArgs struct {
//	  Query string `json:"query" description:"What to look up"`
//	}
func NewFunctionToolFromStruct(name, description string, structType any, fn Func) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

func (t *FunctionTool) Name() string               { return t.name }
func (t *FunctionTool) Description() string        { return t.description }
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args then invokes the wrapped function.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	info := CallInfoFromContext(ctx)
	log := info.Logger
	start := time.Now()
	log.Debug("tool.call.start", "tool", t.name, "call_id", info.ID, "agent", info.Agent)

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		log.Warn("tool.call.validation_failed", "tool", t.name, "call_id", info.ID, "error", err.Error())
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	switch {
	case err == nil:
		log.Info("tool.call.success", "tool", t.name, "call_id", info.ID, "duration_ms", time.Since(start).Milliseconds())
		return result, nil
	case IsHandoff(err):
		return nil, err
	}

	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		log.Error("tool.call.error", "tool", t.name, "code", toolErr.Code, "error", toolErr.Message)
		return nil, err
	}
	log.Error("tool.call.error", "tool", t.name, "error", err.Error())
	return nil, &ToolError{
		Tool:    t.name,
		Message: err.Error(),
		Code:    CodeExecution,
		Details: err,
	}
}
