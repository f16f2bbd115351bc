// Package store persists world state: character rows, world time, server
// metadata, schedules, action history, NPC dynamics, conversation
// summaries, and mid-term memories. Two implementations exist, an
// in-memory store for tests and a SQLite store for production.
package store

import (
	"context"
	"time"

	"github.com/talgya/lifesim/internal/world"
)

// Store is the durable state interface. All stat values are rounded to
// two decimals before writing.
type Store interface {
	// SaveState replaces the persisted character set and world time in a
	// single transaction. Characters absent from the state are removed.
	SaveState(ctx context.Context, st *world.FullState) error
	// LoadState returns the persisted characters and world time, or
	// (nil, nil) when nothing has been saved yet.
	LoadState(ctx context.Context) (*world.FullState, error)

	// EnsureServerStart returns the persisted server start time,
	// installing now on first call. The stored value is sticky.
	EnsureServerStart(ctx context.Context, now time.Time) (time.Time, error)

	// SaveSchedule upserts a character's plan for one day.
	SaveSchedule(ctx context.Context, characterID string, day int, entries []world.ScheduleEntry) error
	// LoadSchedule returns a day's plan, or (nil, nil) when absent.
	LoadSchedule(ctx context.Context, characterID string, day int) ([]world.ScheduleEntry, error)

	// AppendHistory records one performed action.
	AppendHistory(ctx context.Context, characterID string, day int, entry world.HistoryEntry) error
	// LoadHistory returns a day's actions in insertion order.
	LoadHistory(ctx context.Context, characterID string, day int) ([]world.HistoryEntry, error)
	// SetEpisode back-fills the episode text of a recorded action.
	SetEpisode(ctx context.Context, characterID string, day int, timeHHMM, episode string) error

	// SaveNPC upserts an NPC's dynamic state.
	SaveNPC(ctx context.Context, npcID string, d world.NPCDynamic) error
	// LoadNPCs returns all persisted NPC dynamics keyed by id.
	LoadNPCs(ctx context.Context) (map[string]world.NPCDynamic, error)

	// SaveConversationSummary appends a finished session's digest.
	SaveConversationSummary(ctx context.Context, s world.ConversationSummary) error
	// RecentSummaries returns the latest summaries between a character
	// and an NPC, newest first.
	RecentSummaries(ctx context.Context, characterID, npcID string, limit int) ([]world.ConversationSummary, error)

	// SaveMemories appends mid-term memories.
	SaveMemories(ctx context.Context, memories []world.MidTermMemory) error
	// ActiveMemories returns a character's unexpired memories as of day.
	ActiveMemories(ctx context.Context, characterID string, day int) ([]world.MidTermMemory, error)
	// PurgeExpired deletes memories that expired before day, returning
	// the number removed.
	PurgeExpired(ctx context.Context, day int) (int, error)

	Close() error
}

// roundCharacter returns a copy with stats rounded for persistence.
func roundCharacter(c *world.Character) *world.Character {
	cp := *c
	cp.Satiety = world.Round2(c.Satiety)
	cp.Energy = world.Round2(c.Energy)
	cp.Hygiene = world.Round2(c.Hygiene)
	cp.Mood = world.Round2(c.Mood)
	cp.Bladder = world.Round2(c.Bladder)
	return &cp
}
