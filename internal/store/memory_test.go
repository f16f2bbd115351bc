package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/lifesim/internal/world"
)

func TestMemoryLoadStateEmpty(t *testing.T) {
	m := NewMemory()
	st, err := m.LoadState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestMemorySaveStateRoundsAndResetsRuntime(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	alice := &world.Character{
		ID: "alice", Name: "Alice", Money: 500,
		Satiety: 33.33333, Energy: 80.456, Hygiene: 50, Mood: 50, Bladder: 50,
		CurrentMapID: "town", CurrentNodeID: "town-0-0",
		Direction:  world.DirLeft,
		Employment: &world.Employment{JobID: "office-clerk"},
		Navigation: world.NavigationState{IsMoving: true, Path: []string{"a", "b"}},
		CurrentAction: &world.ActionState{ActionID: "eat"},
		DisplayEmoji:  "🍚",
	}
	require.NoError(t, m.SaveState(ctx, &world.FullState{
		Characters:   []*world.Character{alice},
		Time:         world.WorldTime{Hour: 12, Minute: 30, Day: 3},
		CurrentMapID: "town",
	}))

	st, err := m.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, world.WorldTime{Hour: 12, Minute: 30, Day: 3}, st.Time)
	assert.Equal(t, "town", st.CurrentMapID)

	require.Len(t, st.Characters, 1)
	got := st.Characters[0]
	assert.Equal(t, 33.33, got.Satiety)
	assert.Equal(t, 80.46, got.Energy)
	assert.Equal(t, 500, got.Money)
	assert.Equal(t, world.DirLeft, got.Direction)
	require.NotNil(t, got.Employment)
	assert.Equal(t, "office-clerk", got.Employment.JobID)

	assert.False(t, got.Navigation.IsMoving, "runtime fields are never persisted")
	assert.Nil(t, got.CurrentAction)
	assert.Empty(t, got.DisplayEmoji)

	// The stored copy is isolated from both the input and the output.
	alice.Money = 9999
	got.Money = 1
	st2, err := m.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500, st2.Characters[0].Money)
}

func TestMemorySaveStateReplacesCharacterSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	save := func(ids ...string) {
		var chars []*world.Character
		for _, id := range ids {
			chars = append(chars, &world.Character{ID: id})
		}
		require.NoError(t, m.SaveState(ctx, &world.FullState{Characters: chars}))
	}
	save("alice", "bob")
	save("alice")

	st, err := m.LoadState(ctx)
	require.NoError(t, err)
	require.Len(t, st.Characters, 1)
	assert.Equal(t, "alice", st.Characters[0].ID)
}

func TestMemoryEnsureServerStartIsSticky(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	first := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	got, err := m.EnsureServerStart(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = m.EnsureServerStart(ctx, first.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first, got, "the first value wins forever")
}

func TestMemoryNPCDynamics(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	d := world.NPCDynamic{
		Affinity: 25, Mood: world.MoodHappy,
		Facts:             []string{"likes coffee"},
		ConversationCount: 3,
	}
	require.NoError(t, m.SaveNPC(ctx, "sato", d))
	d.Facts[0] = "mutated"

	loaded, err := m.LoadNPCs(ctx)
	require.NoError(t, err)
	require.Contains(t, loaded, "sato")
	assert.Equal(t, []string{"likes coffee"}, loaded["sato"].Facts)
	assert.Equal(t, 25, loaded["sato"].Affinity)
}

func TestMemoryRecentSummariesNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i, text := range []string{"first", "second", "third"} {
		require.NoError(t, m.SaveConversationSummary(ctx, world.ConversationSummary{
			CharacterID: "alice", NpcID: "sato", Summary: text,
			CreatedAt: time.Date(2025, 3, 1, 8+i, 0, 0, 0, time.UTC),
		}))
	}
	require.NoError(t, m.SaveConversationSummary(ctx, world.ConversationSummary{
		CharacterID: "alice", NpcID: "tanaka", Summary: "other npc",
	}))

	got, err := m.RecentSummaries(ctx, "alice", "sato", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].Summary)
	assert.Equal(t, "second", got[1].Summary)
}

func TestMemoryActiveMemoriesFiltersExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveMemories(ctx, []world.MidTermMemory{
		{ID: "m1", CharacterID: "alice", Content: "stale", CreatedDay: 1, ExpiresDay: 1},
		{ID: "m2", CharacterID: "alice", Content: "fresh", CreatedDay: 2, ExpiresDay: 3},
		{ID: "m3", CharacterID: "bob", Content: "not hers", CreatedDay: 2, ExpiresDay: 9},
	}))

	got, err := m.ActiveMemories(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Content)

	// On its expiry day a memory is still active.
	got, err = m.ActiveMemories(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestMemoryPurgeExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveMemories(ctx, []world.MidTermMemory{
		{ID: "m1", CharacterID: "alice", Content: "stale", CreatedDay: 1, ExpiresDay: 1},
		{ID: "m2", CharacterID: "alice", Content: "fresh", CreatedDay: 2, ExpiresDay: 3},
		{ID: "m3", CharacterID: "bob", Content: "also stale", CreatedDay: 1, ExpiresDay: 2},
	}))

	removed, err := m.PurgeExpired(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	got, err := m.ActiveMemories(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Content)

	removed, err = m.PurgeExpired(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, removed, "a second purge finds nothing")
}
