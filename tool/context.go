package tool

import (
	"context"

	"github.com/hupe1980/agentswarm/logging"
)

// CallInfo describes the invocation a tool is serving.
type CallInfo struct {
	// ID is the tool call id issued by the model.
	ID string
	// Agent is the swarm member that requested the call.
	Agent string
	// Logger is never nil when obtained from CallInfoFromContext.
	Logger logging.Logger
}

type callInfoKey struct{}

// WithCallInfo returns a child context carrying info.
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFromContext extracts the CallInfo set by the executor. Missing
// values yield an empty CallInfo with a NoOpLogger.
func CallInfoFromContext(ctx context.Context) CallInfo {
	info, _ := ctx.Value(callInfoKey{}).(CallInfo)
	info.Logger = logging.OrNoOp(info.Logger)
	return info
}
