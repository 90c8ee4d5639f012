package core

import "time"

// DefaultMaxRetries is the retry ceiling applied when a state does not set one.
const DefaultMaxRetries = 2

// Flag names a boolean progress marker on ConversationState that an agent
// sets when it completes successfully.
type Flag string

const (
	// FlagNone means the agent does not record completion.
	FlagNone Flag = ""
	// FlagSearched is set by the research agent.
	FlagSearched Flag = "searched"
	// FlagPlanned is set by the plan agent.
	FlagPlanned Flag = "planned"
)

// ConversationState is the flat, serialisable state of one conversation.
// It is loaded from a checkpoint store at the start of a turn and saved at
// the end of it.
type ConversationState struct {
	Messages []Message `json:"messages"`
	// ActiveAgent is the swarm member that receives the next turn. Empty means
	// the swarm's default agent.
	ActiveAgent string `json:"active_agent,omitempty"`
	ErrorCount  int    `json:"error_count"`
	MaxRetries  int    `json:"max_retries"`

	PlanEnabled      bool   `json:"plan_enabled"`
	Searched         bool   `json:"searched"`
	Planned          bool   `json:"planned"`
	WebSearchEnabled bool   `json:"web_search_enabled,omitempty"`
	ModelName        string `json:"model_name,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState returns an empty state with the default retry ceiling.
func NewConversationState() *ConversationState {
	return &ConversationState{Messages: []Message{}, MaxRetries: DefaultMaxRetries}
}

// RetryLimit returns MaxRetries, or DefaultMaxRetries when unset.
func (s *ConversationState) RetryLimit() int {
	if s.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return s.MaxRetries
}

// Append adds messages to the end of the log.
func (s *ConversationState) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
}

// Flag reports the value of a progress flag. FlagNone is always false.
func (s *ConversationState) Flag(f Flag) bool {
	switch f {
	case FlagSearched:
		return s.Searched
	case FlagPlanned:
		return s.Planned
	default:
		return false
	}
}

// SetFlag sets a progress flag. FlagNone is ignored.
func (s *ConversationState) SetFlag(f Flag) {
	switch f {
	case FlagSearched:
		s.Searched = true
	case FlagPlanned:
		s.Planned = true
	}
}

// Clone returns a deep copy so callers can diverge without aliasing the log.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = CloneMessages(s.Messages)
	if cp.Messages == nil {
		cp.Messages = []Message{}
	}
	return &cp
}
