package core

import (
	"context"
	"fmt"
	"sync"
)

// CallBudget caps the number of model calls made during a single turn.
type CallBudget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewCallBudget creates a budget allowing max calls. Zero means unlimited.
func NewCallBudget(max int) *CallBudget {
	return &CallBudget{max: max}
}

// Spend records one call and fails once the budget is exceeded.
func (b *CallBudget) Spend() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	if b.max > 0 && b.count > b.max {
		return fmt.Errorf("exceeded max model calls: %d", b.max)
	}

	return nil
}

// Count returns the number of calls recorded so far.
func (b *CallBudget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns how many calls are left, or -1 when unlimited.
func (b *CallBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max == 0 {
		return -1
	}

	return b.max - b.count
}

type budgetKey struct{}

// WithCallBudget returns a child context carrying b, so every node of a turn
// draws from the same budget.
func WithCallBudget(ctx context.Context, b *CallBudget) context.Context {
	return context.WithValue(ctx, budgetKey{}, b)
}

// CallBudgetFromContext returns the budget set by WithCallBudget, or nil.
func CallBudgetFromContext(ctx context.Context) *CallBudget {
	b, _ := ctx.Value(budgetKey{}).(*CallBudget)
	return b
}
