package tool

import (
	"context"
	"errors"
	"sync"
)

// Source supplies tools that live only for one turn, such as tools bound to
// MCP sessions. Open returns the tools and a release func that closes what
// they hold; release is non-nil whenever err is nil.
//
// Implementations must be comparable (pointer types are) so a Scope can
// memoise them.
type Source interface {
	Open(ctx context.Context) ([]Tool, func() error, error)
}

// FuncSource adapts a function to Source.
type FuncSource struct {
	fn func(ctx context.Context) ([]Tool, func() error, error)
}

// NewSource wraps fn as a Source.
func NewSource(fn func(ctx context.Context) ([]Tool, func() error, error)) *FuncSource {
	return &FuncSource{fn: fn}
}

// Open implements Source.
func (s *FuncSource) Open(ctx context.Context) ([]Tool, func() error, error) { return s.fn(ctx) }

// Scope memoises opened sources for the lifetime of a turn, so every agent
// of the turn shares one set of sessions. A failed open is memoised too.
type Scope struct {
	mu      sync.Mutex
	opened  map[Source]scoped
	closers []func() error
}

type scoped struct {
	tools []Tool
	err   error
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{opened: make(map[Source]scoped)}
}

// Open opens src once per scope.
func (s *Scope) Open(ctx context.Context, src Source) ([]Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.opened[src]; ok {
		return e.tools, e.err
	}

	tools, release, err := src.Open(ctx)
	if err != nil {
		// Cancellation is not a property of the source; let a later open retry.
		if ctx.Err() == nil {
			s.opened[src] = scoped{err: err}
		}
		return nil, err
	}
	if release != nil {
		s.closers = append(s.closers, release)
	}
	s.opened[src] = scoped{tools: tools}

	return tools, nil
}

// Close releases every opened source in reverse order.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	s.opened = make(map[Source]scoped)

	return errors.Join(errs...)
}

type scopeKey struct{}

// WithScope returns a child context carrying s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext returns the scope set by WithScope, or nil.
func ScopeFromContext(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// OpenSource opens src through the context's scope when there is one, in
// which case release is a no-op and the scope owner closes the tools.
// Without a scope the caller owns the returned release.
func OpenSource(ctx context.Context, src Source) ([]Tool, func() error, error) {
	noop := func() error { return nil }

	if scope := ScopeFromContext(ctx); scope != nil {
		tools, err := scope.Open(ctx, src)
		if err != nil {
			return nil, nil, err
		}
		return tools, noop, nil
	}

	tools, release, err := src.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	if release == nil {
		release = noop
	}
	return tools, release, nil
}
