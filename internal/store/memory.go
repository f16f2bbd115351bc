package store

import (
	"context"
	"sync"
	"time"

	"github.com/talgya/lifesim/internal/world"
)

type scheduleKey struct {
	characterID string
	day         int
}

// Memory is the in-process Store used by tests and ephemeral runs.
// Values are deep-copied on the way in and out.
type Memory struct {
	mu sync.Mutex

	state       *world.FullState
	serverStart time.Time
	schedules   map[scheduleKey][]world.ScheduleEntry
	history     map[scheduleKey][]world.HistoryEntry
	npcs        map[string]world.NPCDynamic
	summaries   []world.ConversationSummary
	memories    []world.MidTermMemory
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		schedules: make(map[scheduleKey][]world.ScheduleEntry),
		history:   make(map[scheduleKey][]world.HistoryEntry),
		npcs:      make(map[string]world.NPCDynamic),
	}
}

func copyCharacters(in []*world.Character) []*world.Character {
	out := make([]*world.Character, len(in))
	for i, c := range in {
		cp := *roundCharacter(c)
		cp.ResetRuntime()
		if c.Employment != nil {
			e := *c.Employment
			cp.Employment = &e
		}
		out[i] = &cp
	}
	return out
}

// SaveState implements Store.
func (m *Memory) SaveState(_ context.Context, st *world.FullState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &world.FullState{
		Characters:   copyCharacters(st.Characters),
		Time:         st.Time,
		CurrentMapID: st.CurrentMapID,
	}
	return nil
}

// LoadState implements Store.
func (m *Memory) LoadState(_ context.Context) (*world.FullState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	return &world.FullState{
		Characters:   copyCharacters(m.state.Characters),
		Time:         m.state.Time,
		CurrentMapID: m.state.CurrentMapID,
	}, nil
}

// EnsureServerStart implements Store.
func (m *Memory) EnsureServerStart(_ context.Context, now time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.serverStart.IsZero() {
		m.serverStart = now
	}
	return m.serverStart, nil
}

// SaveSchedule implements Store.
func (m *Memory) SaveSchedule(_ context.Context, characterID string, day int, entries []world.ScheduleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[scheduleKey{characterID, day}] = append([]world.ScheduleEntry(nil), entries...)
	return nil
}

// LoadSchedule implements Store.
func (m *Memory) LoadSchedule(_ context.Context, characterID string, day int) ([]world.ScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.schedules[scheduleKey{characterID, day}]
	if !ok {
		return nil, nil
	}
	return append([]world.ScheduleEntry(nil), entries...), nil
}

// AppendHistory implements Store.
func (m *Memory) AppendHistory(_ context.Context, characterID string, day int, entry world.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scheduleKey{characterID, day}
	m.history[k] = append(m.history[k], entry)
	return nil
}

// LoadHistory implements Store.
func (m *Memory) LoadHistory(_ context.Context, characterID string, day int) ([]world.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]world.HistoryEntry(nil), m.history[scheduleKey{characterID, day}]...), nil
}

// SetEpisode implements Store.
func (m *Memory) SetEpisode(_ context.Context, characterID string, day int, timeHHMM, episode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[scheduleKey{characterID, day}]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Time == timeHHMM {
			entries[i].Episode = episode
			return nil
		}
	}
	return nil
}

// SaveNPC implements Store.
func (m *Memory) SaveNPC(_ context.Context, npcID string, d world.NPCDynamic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Facts = append([]string(nil), d.Facts...)
	m.npcs[npcID] = d
	return nil
}

// LoadNPCs implements Store.
func (m *Memory) LoadNPCs(_ context.Context) (map[string]world.NPCDynamic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]world.NPCDynamic, len(m.npcs))
	for id, d := range m.npcs {
		d.Facts = append([]string(nil), d.Facts...)
		out[id] = d
	}
	return out, nil
}

// SaveConversationSummary implements Store.
func (m *Memory) SaveConversationSummary(_ context.Context, s world.ConversationSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Topics = append([]string(nil), s.Topics...)
	m.summaries = append(m.summaries, s)
	return nil
}

// RecentSummaries implements Store.
func (m *Memory) RecentSummaries(_ context.Context, characterID, npcID string, limit int) ([]world.ConversationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []world.ConversationSummary
	for i := len(m.summaries) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.summaries[i]
		if s.CharacterID == characterID && s.NpcID == npcID {
			out = append(out, s)
		}
	}
	return out, nil
}

// SaveMemories implements Store.
func (m *Memory) SaveMemories(_ context.Context, memories []world.MidTermMemory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memories = append(m.memories, memories...)
	return nil
}

// ActiveMemories implements Store.
func (m *Memory) ActiveMemories(_ context.Context, characterID string, day int) ([]world.MidTermMemory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []world.MidTermMemory
	for _, mem := range m.memories {
		if mem.CharacterID == characterID && mem.ExpiresDay >= day {
			out = append(out, mem)
		}
	}
	return out, nil
}

// PurgeExpired implements Store.
func (m *Memory) PurgeExpired(_ context.Context, day int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.memories[:0]
	for _, mem := range m.memories {
		if mem.ExpiresDay >= day {
			kept = append(kept, mem)
		}
	}
	removed := len(m.memories) - len(kept)
	m.memories = kept
	return removed, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
