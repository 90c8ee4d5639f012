// Package memory provides a volatile checkpoint.Store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentswarm/checkpoint"
	"github.com/hupe1980/agentswarm/core"
)

// Store keeps conversation states in a process local map. It is safe for
// concurrent access and best suited for tests or ephemeral sessions. States
// are cloned on the way in and out to prevent external mutation.
type Store struct {
	mu     sync.RWMutex
	states map[string]*core.ConversationState
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{states: make(map[string]*core.ConversationState)}
}

// Load implements checkpoint.Store.
func (s *Store) Load(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[conversationID]
	if !ok {
		return nil, checkpoint.ErrNotFound
	}
	return state.Clone(), nil
}

// Save implements checkpoint.Store.
func (s *Store) Save(ctx context.Context, conversationID string, state *core.ConversationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("save %s: nil state", conversationID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[conversationID] = state.Clone()
	return nil
}

// List implements checkpoint.Lister.
func (s *Store) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete implements checkpoint.Deleter.
func (s *Store) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, conversationID)
	return nil
}
