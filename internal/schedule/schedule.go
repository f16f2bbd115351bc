// Package schedule caches per-character daily plans and action history,
// writing through to the store in the background.
package schedule

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/talgya/lifesim/internal/store"
	"github.com/talgya/lifesim/internal/world"
)

type key struct {
	characterID string
	day         int
}

// Manager is the schedule and history cache. Reads go cache → store →
// per-character defaults; writes update the cache synchronously and the
// store best-effort in the background.
type Manager struct {
	store    store.Store
	defaults map[string][]world.ScheduleEntry

	mu        sync.Mutex
	schedules map[key][]world.ScheduleEntry
	history   map[key][]world.HistoryEntry

	wg sync.WaitGroup
}

// NewManager builds a Manager. defaults maps character id to the plan
// used when the store holds no row for a day.
func NewManager(st store.Store, defaults map[string][]world.ScheduleEntry) *Manager {
	return &Manager{
		store:     st,
		defaults:  defaults,
		schedules: make(map[key][]world.ScheduleEntry),
		history:   make(map[key][]world.HistoryEntry),
	}
}

// Schedule returns a character's plan for a day, sorted by time.
func (m *Manager) Schedule(ctx context.Context, characterID string, day int) []world.ScheduleEntry {
	k := key{characterID, day}
	m.mu.Lock()
	if entries, ok := m.schedules[k]; ok {
		out := append([]world.ScheduleEntry(nil), entries...)
		m.mu.Unlock()
		return out
	}
	m.mu.Unlock()

	entries, err := m.store.LoadSchedule(ctx, characterID, day)
	if err != nil {
		slog.Error("schedule load failed", "character", characterID, "day", day, "err", err)
	}
	if entries == nil {
		entries = append([]world.ScheduleEntry(nil), m.defaults[characterID]...)
	}
	sortEntries(entries)

	m.mu.Lock()
	m.schedules[k] = entries
	out := append([]world.ScheduleEntry(nil), entries...)
	m.mu.Unlock()
	return out
}

// NextPending returns the earliest unfinished entry at or before now, or
// nil when the day's plan is exhausted.
func (m *Manager) NextPending(ctx context.Context, characterID string, now world.WorldTime) *world.ScheduleEntry {
	for _, e := range m.Schedule(ctx, characterID, now.Day) {
		if e.Done {
			continue
		}
		if e.Time <= now.HHMM() {
			out := e
			return &out
		}
	}
	return nil
}

// MarkDone flags the entry at the given time as completed.
func (m *Manager) MarkDone(ctx context.Context, characterID string, day int, timeHHMM string) {
	k := key{characterID, day}
	entries := m.Schedule(ctx, characterID, day)
	changed := false
	for i := range entries {
		if entries[i].Time == timeHHMM && !entries[i].Done {
			entries[i].Done = true
			changed = true
		}
	}
	if !changed {
		return
	}
	m.mu.Lock()
	m.schedules[k] = entries
	m.mu.Unlock()
	m.writeThrough(characterID, day, entries)
}

// ApplyUpdate mutates a day's plan: add inserts a new entry, remove
// deletes the entry matching both time and activity (a miss is a no-op),
// modify rewrites the entry at the time, inserting one when absent.
func (m *Manager) ApplyUpdate(ctx context.Context, characterID string, day int, changes []Change) []world.ScheduleEntry {
	entries := m.Schedule(ctx, characterID, day)
	for _, ch := range changes {
		switch ch.Op {
		case "add":
			entries = append(entries, world.ScheduleEntry{
				Time: ch.Time, Activity: ch.Activity, MapID: ch.MapID, NodeID: ch.NodeID,
			})
		case "remove":
			idx := -1
			for i := range entries {
				if entries[i].Time == ch.Time && entries[i].Activity == ch.Activity {
					idx = i
					break
				}
			}
			if idx < 0 {
				slog.Info("schedule remove matched nothing",
					"character", characterID, "time", ch.Time, "activity", ch.Activity)
				continue
			}
			entries = append(entries[:idx], entries[idx+1:]...)
		case "modify":
			idx := -1
			for i := range entries {
				if entries[i].Time == ch.Time {
					idx = i
					break
				}
			}
			if idx < 0 {
				entries = append(entries, world.ScheduleEntry{
					Time: ch.Time, Activity: ch.Activity, MapID: ch.MapID, NodeID: ch.NodeID,
				})
				continue
			}
			if ch.Activity != "" {
				entries[idx].Activity = ch.Activity
			}
			if ch.MapID != "" {
				entries[idx].MapID = ch.MapID
			}
			if ch.NodeID != "" {
				entries[idx].NodeID = ch.NodeID
			}
			entries[idx].Done = false
		default:
			slog.Warn("ignoring unknown schedule op", "op", ch.Op, "character", characterID)
		}
	}
	sortEntries(entries)

	m.mu.Lock()
	m.schedules[key{characterID, day}] = entries
	out := append([]world.ScheduleEntry(nil), entries...)
	m.mu.Unlock()
	m.writeThrough(characterID, day, entries)
	return out
}

// Change is one schedule mutation: add, remove, or modify by time.
type Change struct {
	Op       string
	Time     string
	Activity string
	MapID    string
	NodeID   string
}

// RecordAction appends a history entry for the day and persists it in
// the background.
func (m *Manager) RecordAction(characterID string, day int, e world.HistoryEntry) {
	k := key{characterID, day}
	m.mu.Lock()
	m.history[k] = append(m.history[k], e)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.store.AppendHistory(context.Background(), characterID, day, e); err != nil {
			slog.Error("history write failed", "character", characterID, "day", day, "err", err)
		}
	}()
}

// History returns the day's recorded actions.
func (m *Manager) History(ctx context.Context, characterID string, day int) []world.HistoryEntry {
	k := key{characterID, day}
	m.mu.Lock()
	if entries, ok := m.history[k]; ok {
		out := append([]world.HistoryEntry(nil), entries...)
		m.mu.Unlock()
		return out
	}
	m.mu.Unlock()

	entries, err := m.store.LoadHistory(ctx, characterID, day)
	if err != nil {
		slog.Error("history load failed", "character", characterID, "day", day, "err", err)
		entries = nil
	}
	m.mu.Lock()
	m.history[k] = entries
	out := append([]world.HistoryEntry(nil), entries...)
	m.mu.Unlock()
	return out
}

// SetEpisode back-fills the episode text of the newest history entry at
// the given time, in cache and store.
func (m *Manager) SetEpisode(characterID string, day int, timeHHMM, episode string) {
	k := key{characterID, day}
	m.mu.Lock()
	entries := m.history[k]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Time == timeHHMM {
			entries[i].Episode = episode
			break
		}
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.store.SetEpisode(context.Background(), characterID, day, timeHHMM, episode); err != nil {
			slog.Error("episode write failed", "character", characterID, "day", day, "err", err)
		}
	}()
}

// DropDay evicts caches older than the given day, called on rollover.
func (m *Manager) DropDay(before int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.schedules {
		if k.day < before {
			delete(m.schedules, k)
		}
	}
	for k := range m.history {
		if k.day < before {
			delete(m.history, k)
		}
	}
}

// Flush waits for outstanding background writes, used on shutdown.
func (m *Manager) Flush() { m.wg.Wait() }

func (m *Manager) writeThrough(characterID string, day int, entries []world.ScheduleEntry) {
	snapshot := append([]world.ScheduleEntry(nil), entries...)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.store.SaveSchedule(context.Background(), characterID, day, snapshot); err != nil {
			slog.Error("schedule write failed", "character", characterID, "day", day, "err", err)
		}
	}()
}

func sortEntries(entries []world.ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Time < entries[j].Time })
}
