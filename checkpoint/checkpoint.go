// Package checkpoint persists conversation state between turns.
//
// A Store is consulted twice per turn: Load before the swarm runs and Save
// after it returns. Serialising the read-modify-write per conversation is the
// caller's job (see the runner package); stores only guarantee that a single
// Load or Save is atomic.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/agentswarm/core"
)

// ErrNotFound is returned by Load when no state exists for the id.
var ErrNotFound = errors.New("checkpoint not found")

// Store loads and saves conversation state keyed by conversation id.
type Store interface {
	Load(ctx context.Context, conversationID string) (*core.ConversationState, error)
	Save(ctx context.Context, conversationID string, state *core.ConversationState) error
}

// Lister is implemented by stores that can enumerate conversations.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Deleter is implemented by stores that can forget a conversation.
type Deleter interface {
	Delete(ctx context.Context, conversationID string) error
}

// Encode serialises state for byte-oriented backends.
func Encode(state *core.ConversationState) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("encode state: nil state")
	}
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return b, nil
}

// Decode is the inverse of Encode. Missing collections are normalised so a
// decoded state is always usable.
func Decode(data []byte) (*core.ConversationState, error) {
	state := &core.ConversationState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if state.Messages == nil {
		state.Messages = []core.Message{}
	}
	if state.MaxRetries <= 0 {
		state.MaxRetries = core.DefaultMaxRetries
	}
	return state, nil
}
