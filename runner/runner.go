package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentswarm/checkpoint"
	"github.com/hupe1980/agentswarm/checkpoint/memory"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
)

// Invoker runs one turn against a conversation state. *swarm.Swarm
// implements it.
type Invoker interface {
	Invoke(ctx context.Context, state *core.ConversationState) (*core.ConversationState, error)
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Store persists conversation state between turns.
	Store checkpoint.Store
	// MaxRetries seeds the retry ceiling of new conversations.
	MaxRetries int
	// PlanEnabled seeds the plan flag of new conversations.
	PlanEnabled bool
	// WebSearchEnabled seeds the web search flag of new conversations. Model
	// agents forward it on every request of the turn.
	WebSearchEnabled bool
	// Logger receives runner.* events.
	Logger logging.Logger
}

// TurnOptions are per-turn overrides applied before the swarm runs.
type TurnOptions struct {
	// TurnID is used instead of a generated id, so callers can Cancel a turn
	// before Run returns.
	TurnID string
	// PlanEnabled overrides the conversation's plan flag when set.
	PlanEnabled *bool
	// WebSearchEnabled overrides the conversation's web search flag when set.
	WebSearchEnabled *bool
	// ModelName records the model selected by the client.
	ModelName string
}

// Result is the outcome of one turn.
type Result struct {
	TurnID string                  `json:"turn_id"`
	State  *core.ConversationState `json:"state"`
	// Messages are the messages appended by the swarm during the turn. The
	// user message is not included.
	Messages []core.Message `json:"messages"`
}

// Reply returns the content of the last assistant message of the turn, or
// the last message when the turn ended on a system notice.
func (r *Result) Reply() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		m := r.Messages[i]
		if m.Role == core.RoleAssistant && !m.HasToolCalls() {
			return m.Content
		}
	}
	if n := len(r.Messages); n > 0 {
		return r.Messages[n-1].Content
	}
	return ""
}

// Runner coordinates turns: it serialises access per conversation, loads and
// saves checkpoints, and tracks active turns for cancellation. Public methods
// are safe for concurrent use.
type Runner struct {
	invoker     Invoker
	store       checkpoint.Store
	maxRetries  int
	planEnabled bool
	webSearch   bool
	logger      logging.Logger

	mu         sync.Mutex
	locks      map[string]*conversationLock
	activeRuns map[string]context.CancelFunc
}

type conversationLock struct {
	mu   sync.Mutex
	refs int
}

// New constructs a Runner with optional overrides.
func New(invoker Invoker, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Store:      memory.New(),
		MaxRetries: core.DefaultMaxRetries,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxRetries <= 0 {
		opts.MaxRetries = core.DefaultMaxRetries
	}

	return &Runner{
		invoker:     invoker,
		store:       opts.Store,
		maxRetries:  opts.MaxRetries,
		planEnabled: opts.PlanEnabled,
		webSearch:   opts.WebSearchEnabled,
		logger:      logging.OrNoOp(opts.Logger),
		locks:       make(map[string]*conversationLock),
		activeRuns:  make(map[string]context.CancelFunc),
	}
}

// Store returns the checkpoint store.
func (r *Runner) Store() checkpoint.Store { return r.store }

// Run executes one turn of the conversation with the given user text and
// persists the resulting state.
//
// An error means the turn is unresolved: the store is left untouched. Agent
// failures are not errors; they are part of the returned state.
func (r *Runner) Run(ctx context.Context, conversationID, userText string, optFns ...func(o *TurnOptions)) (*Result, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}

	var topts TurnOptions
	for _, fn := range optFns {
		fn(&topts)
	}

	turnID := topts.TurnID
	if turnID == "" {
		turnID = core.NewID()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if _, exists := r.activeRuns[turnID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("run %s already active", turnID)
	}
	r.activeRuns[turnID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.activeRuns, turnID)
		r.mu.Unlock()
	}()

	unlock := r.lock(conversationID)
	defer unlock()

	start := time.Now()

	state, err := r.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if topts.PlanEnabled != nil {
		state.PlanEnabled = *topts.PlanEnabled
	}
	if topts.WebSearchEnabled != nil {
		state.WebSearchEnabled = *topts.WebSearchEnabled
	}
	if topts.ModelName != "" {
		state.ModelName = topts.ModelName
	}

	state.Append(core.NewUserMessage(userText))
	before := len(state.Messages)

	r.logger.Info("runner.turn.start",
		"conversation_id", conversationID,
		"turn_id", turnID,
		"messages", before,
		"plan_enabled", state.PlanEnabled,
	)

	next, err := r.invoker.Invoke(ctx, state)
	if err != nil {
		r.logger.Warn("runner.turn.aborted", "conversation_id", conversationID, "turn_id", turnID, "error", err.Error())
		return nil, fmt.Errorf("turn %s aborted: %w", turnID, err)
	}

	if err := r.store.Save(ctx, conversationID, next); err != nil {
		return nil, fmt.Errorf("failed to save conversation %s: %w", conversationID, err)
	}

	var produced []core.Message
	if len(next.Messages) > before {
		produced = core.CloneMessages(next.Messages[before:])
	}

	r.logger.Info("runner.turn.completed",
		"conversation_id", conversationID,
		"turn_id", turnID,
		"active_agent", next.ActiveAgent,
		"new_messages", len(produced),
		"error_count", next.ErrorCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{TurnID: turnID, State: next, Messages: produced}, nil
}

// Cancel cancels a running turn by ID.
func (r *Runner) Cancel(turnID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[turnID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", turnID)
	}

	cancel()

	return nil
}

// Active returns the number of turns in flight.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activeRuns)
}

// History returns the stored state of a conversation.
func (r *Runner) History(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	return r.store.Load(ctx, conversationID)
}

func (r *Runner) load(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	state, err := r.store.Load(ctx, conversationID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		state = core.NewConversationState()
		state.MaxRetries = r.maxRetries
		state.PlanEnabled = r.planEnabled
		state.WebSearchEnabled = r.webSearch
		r.logger.Debug("runner.conversation.created", "conversation_id", conversationID)
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if state.MaxRetries <= 0 {
		state.MaxRetries = r.maxRetries
	}
	return state, nil
}

// lock acquires the conversation's mutex and returns its release func.
func (r *Runner) lock(conversationID string) func() {
	r.mu.Lock()
	l, ok := r.locks[conversationID]
	if !ok {
		l = &conversationLock{}
		r.locks[conversationID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, conversationID)
		}
		r.mu.Unlock()
	}
}
