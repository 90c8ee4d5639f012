package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentswarm/checkpoint"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ checkpoint.Store = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LoadSave(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Load(ctx, "c1")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	state := testutil.NewStateBuilder().
		User("make a plan").
		Handoff("execute", "1", "plan").
		Active("plan").
		Plan(true).
		Build()
	require.NoError(t, s.Save(ctx, "c1", state))

	got, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, state.Messages, got.Messages)
	assert.Equal(t, "plan", got.ActiveAgent)
	assert.True(t, got.PlanEnabled)

	got.ErrorCount = 1
	got.Append(core.NewAssistantMessage("plan", "Execution failed (attempt 1/2): boom"))
	require.NoError(t, s.Save(ctx, "c1", got))

	latest, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.ErrorCount)
	assert.Len(t, latest.Messages, 4)
}

func TestStore_TurnsAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st := core.NewConversationState()
	st.Append(core.NewUserMessage("one"))
	require.NoError(t, s.Save(ctx, "a", st))
	st.Append(core.NewAssistantMessage("execute", "two"))
	require.NoError(t, s.Save(ctx, "a", st))
	require.NoError(t, s.Save(ctx, "b", core.NewConversationState()))

	turns, err := s.Turns(ctx, "a")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, 1, turns[0].MessageCount)
	assert.Equal(t, 2, turns[1].MessageCount)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Load(ctx, "a")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	turns, err = s.Turns(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cp.db")

	s, err := New(path)
	require.NoError(t, err)
	st := core.NewConversationState()
	st.Append(core.NewUserMessage("persist me"))
	require.NoError(t, s.Save(ctx, "c", st))
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "persist me", got.Messages[0].Content)
}
