package prefs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemorySetAndGet(t *testing.T) {
	store := NewMemory()

	require.NoError(t, store.Set(context.Background(), "selected_team", "team1"))

	val, err := store.Get(context.Background(), "selected_team")
	require.NoError(t, err)
	require.Equal(t, "team1", val)
}

func TestMemoryGetMissingReturnsEmpty(t *testing.T) {
	store := NewMemory()

	val, err := store.Get(context.Background(), "never_set")
	require.NoError(t, err)
	require.Equal(t, "", val)
}

func TestMemorySetEmptyKeyRejected(t *testing.T) {
	store := NewMemory()
	require.Error(t, store.Set(context.Background(), "", "x"))
	require.Error(t, store.Scope("client-1").Set(context.Background(), "", "x"))
}

func TestMemoryScopeSharesStoreAcrossViews(t *testing.T) {
	store := NewMemory()

	// Two views with the same scope stand in for two connections from the
	// same client; the value written on the first visit is there on the next.
	first := store.Scope("client-1")
	require.NoError(t, first.Set(context.Background(), "selected_team", "team2"))

	second := store.Scope("client-1")
	val, err := second.Get(context.Background(), "selected_team")
	require.NoError(t, err)
	require.Equal(t, "team2", val)
}

func TestMemoryScopesDoNotCollide(t *testing.T) {
	store := NewMemory()

	require.NoError(t, store.Scope("client-1").Set(context.Background(), "selected_team", "team1"))
	require.NoError(t, store.Scope("client-2").Set(context.Background(), "selected_team", "team2"))

	val, err := store.Scope("client-1").Get(context.Background(), "selected_team")
	require.NoError(t, err)
	require.Equal(t, "team1", val)
}
