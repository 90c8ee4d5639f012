// Package logging provides the small levelled Logger interface used across
// agentswarm, plus SwarmLogger, a slog-backed implementation that carries
// component, conversation and turn attributes.
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text"})
//	sw, err := swarm.New(members, "execute_agent", routes, func(o *swarm.Options) { o.Logger = logger })
//
// NoOpLogger and OrNoOp cover the nil case so callers never check for it.
package logging
