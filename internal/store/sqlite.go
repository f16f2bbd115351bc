package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/lifesim/internal/world"
)

// SQLite is the durable Store backed by a single SQLite file.
type SQLite struct {
	conn *sqlx.DB
}

// OpenSQLite opens or creates the database at path and runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &SQLite{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close implements Store.
func (s *SQLite) Close() error { return s.conn.Close() }

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS character_states (
		character_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sprite_json TEXT,
		money INTEGER NOT NULL,
		satiety REAL NOT NULL,
		energy REAL NOT NULL,
		hygiene REAL NOT NULL,
		mood REAL NOT NULL,
		bladder REAL NOT NULL,
		current_map_id TEXT NOT NULL,
		current_node_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		employment_json TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_time (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		hour INTEGER NOT NULL,
		minute INTEGER NOT NULL,
		day INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS server_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		server_start_time TEXT NOT NULL,
		current_map_id TEXT,
		last_saved_at TEXT
	);

	CREATE TABLE IF NOT EXISTS schedules (
		character_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		entries_json TEXT NOT NULL,
		UNIQUE(character_id, day)
	);

	CREATE TABLE IF NOT EXISTS action_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		character_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		time TEXT NOT NULL,
		action_id TEXT NOT NULL,
		target TEXT,
		duration_minutes INTEGER,
		reason TEXT,
		episode TEXT
	);

	CREATE TABLE IF NOT EXISTS npc_states (
		npc_id TEXT PRIMARY KEY,
		affinity INTEGER NOT NULL,
		mood TEXT NOT NULL,
		facts_json TEXT NOT NULL,
		conversation_count INTEGER NOT NULL,
		last_conversation TEXT
	);

	CREATE TABLE IF NOT EXISTS conversation_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		character_id TEXT NOT NULL,
		npc_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		goal_achieved INTEGER NOT NULL,
		topics_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS midterm_memories (
		id TEXT PRIMARY KEY,
		character_id TEXT NOT NULL,
		content TEXT NOT NULL,
		importance TEXT NOT NULL,
		created_day INTEGER NOT NULL,
		expires_day INTEGER NOT NULL,
		source_npc_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_history_char_day ON action_history(character_id, day);
	CREATE INDEX IF NOT EXISTS idx_summaries_char_npc ON conversation_summaries(character_id, npc_id);
	CREATE INDEX IF NOT EXISTS idx_memories_char ON midterm_memories(character_id, expires_day);
	`
	_, err := s.conn.Exec(schema)
	return err
}

type characterRow struct {
	CharacterID    string         `db:"character_id"`
	Name           string         `db:"name"`
	SpriteJSON     sql.NullString `db:"sprite_json"`
	Money          int            `db:"money"`
	Satiety        float64        `db:"satiety"`
	Energy         float64        `db:"energy"`
	Hygiene        float64        `db:"hygiene"`
	Mood           float64        `db:"mood"`
	Bladder        float64        `db:"bladder"`
	CurrentMapID   string         `db:"current_map_id"`
	CurrentNodeID  string         `db:"current_node_id"`
	Direction      string         `db:"direction"`
	EmploymentJSON sql.NullString `db:"employment_json"`
	UpdatedAt      string         `db:"updated_at"`
}

// SaveState implements Store: full replace inside one transaction.
func (s *SQLite) SaveState(ctx context.Context, st *world.FullState) error {
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM character_states"); err != nil {
		return err
	}
	stmt, err := tx.PreparexContext(ctx, `INSERT INTO character_states
		(character_id, name, sprite_json, money, satiety, energy, hygiene, mood, bladder,
		 current_map_id, current_node_id, direction, employment_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range st.Characters {
		c = roundCharacter(c)
		var spriteJSON, employmentJSON any
		if len(c.Sprite) > 0 {
			spriteJSON = string(c.Sprite)
		}
		if c.Employment != nil {
			b, err := json.Marshal(c.Employment)
			if err != nil {
				return fmt.Errorf("marshal employment for %s: %w", c.ID, err)
			}
			employmentJSON = string(b)
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Name, spriteJSON, c.Money,
			c.Satiety, c.Energy, c.Hygiene, c.Mood, c.Bladder,
			c.CurrentMapID, c.CurrentNodeID, string(c.Direction),
			employmentJSON, now,
		); err != nil {
			return fmt.Errorf("insert character %s: %w", c.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO world_time (id, hour, minute, day)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET hour = excluded.hour, minute = excluded.minute, day = excluded.day`,
		st.Time.Hour, st.Time.Minute, st.Time.Day); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO server_state (id, server_start_time, current_map_id, last_saved_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			server_start_time = COALESCE(server_state.server_start_time, excluded.server_start_time),
			current_map_id = excluded.current_map_id,
			last_saved_at = excluded.last_saved_at`,
		now, st.CurrentMapID, now); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadState implements Store.
func (s *SQLite) LoadState(ctx context.Context) (*world.FullState, error) {
	var rows []characterRow
	if err := s.conn.SelectContext(ctx, &rows,
		"SELECT * FROM character_states ORDER BY character_id"); err != nil {
		return nil, fmt.Errorf("select characters: %w", err)
	}

	var t struct {
		Hour   int `db:"hour"`
		Minute int `db:"minute"`
		Day    int `db:"day"`
	}
	err := s.conn.GetContext(ctx, &t, "SELECT hour, minute, day FROM world_time WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		if len(rows) == 0 {
			return nil, nil
		}
	} else if err != nil {
		return nil, fmt.Errorf("select world time: %w", err)
	}

	st := &world.FullState{
		Time: world.WorldTime{Hour: t.Hour, Minute: t.Minute, Day: t.Day},
	}
	var mapID sql.NullString
	err = s.conn.GetContext(ctx, &mapID, "SELECT current_map_id FROM server_state WHERE id = 1")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select server state: %w", err)
	}
	st.CurrentMapID = mapID.String

	for _, r := range rows {
		c := &world.Character{
			ID:            r.CharacterID,
			Name:          r.Name,
			Money:         r.Money,
			Satiety:       r.Satiety,
			Energy:        r.Energy,
			Hygiene:       r.Hygiene,
			Mood:          r.Mood,
			Bladder:       r.Bladder,
			CurrentMapID:  r.CurrentMapID,
			CurrentNodeID: r.CurrentNodeID,
			Direction:     world.Direction(r.Direction),
		}
		if r.SpriteJSON.Valid {
			c.Sprite = json.RawMessage(r.SpriteJSON.String)
		}
		if r.EmploymentJSON.Valid {
			var e world.Employment
			if err := json.Unmarshal([]byte(r.EmploymentJSON.String), &e); err != nil {
				return nil, fmt.Errorf("unmarshal employment for %s: %w", r.CharacterID, err)
			}
			c.Employment = &e
		}
		st.Characters = append(st.Characters, c)
	}
	return st, nil
}

// EnsureServerStart implements Store.
func (s *SQLite) EnsureServerStart(ctx context.Context, now time.Time) (time.Time, error) {
	if _, err := s.conn.ExecContext(ctx, `INSERT INTO server_state (id, server_start_time)
		VALUES (1, ?) ON CONFLICT(id) DO NOTHING`,
		now.UTC().Format(time.RFC3339Nano)); err != nil {
		return time.Time{}, fmt.Errorf("install server start: %w", err)
	}
	var raw string
	if err := s.conn.GetContext(ctx, &raw,
		"SELECT server_start_time FROM server_state WHERE id = 1"); err != nil {
		return time.Time{}, fmt.Errorf("read server start: %w", err)
	}
	start, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse server start %q: %w", raw, err)
	}
	return start, nil
}

// SaveSchedule implements Store.
func (s *SQLite) SaveSchedule(ctx context.Context, characterID string, day int, entries []world.ScheduleEntry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `INSERT INTO schedules (character_id, day, entries_json)
		VALUES (?, ?, ?)
		ON CONFLICT(character_id, day) DO UPDATE SET entries_json = excluded.entries_json`,
		characterID, day, string(b))
	return err
}

// LoadSchedule implements Store.
func (s *SQLite) LoadSchedule(ctx context.Context, characterID string, day int) ([]world.ScheduleEntry, error) {
	var raw string
	err := s.conn.GetContext(ctx, &raw,
		"SELECT entries_json FROM schedules WHERE character_id = ? AND day = ?", characterID, day)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select schedule: %w", err)
	}
	var entries []world.ScheduleEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("unmarshal schedule: %w", err)
	}
	return entries, nil
}

// AppendHistory implements Store.
func (s *SQLite) AppendHistory(ctx context.Context, characterID string, day int, e world.HistoryEntry) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO action_history
		(character_id, day, time, action_id, target, duration_minutes, reason, episode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		characterID, day, e.Time, e.ActionID, e.Target, e.DurationMinutes, e.Reason, e.Episode)
	return err
}

// LoadHistory implements Store.
func (s *SQLite) LoadHistory(ctx context.Context, characterID string, day int) ([]world.HistoryEntry, error) {
	var rows []struct {
		Time            string         `db:"time"`
		ActionID        string         `db:"action_id"`
		Target          sql.NullString `db:"target"`
		DurationMinutes sql.NullInt64  `db:"duration_minutes"`
		Reason          sql.NullString `db:"reason"`
		Episode         sql.NullString `db:"episode"`
	}
	if err := s.conn.SelectContext(ctx, &rows, `SELECT time, action_id, target, duration_minutes, reason, episode
		FROM action_history WHERE character_id = ? AND day = ? ORDER BY id`, characterID, day); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	out := make([]world.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, world.HistoryEntry{
			Time:            r.Time,
			ActionID:        r.ActionID,
			Target:          r.Target.String,
			DurationMinutes: int(r.DurationMinutes.Int64),
			Reason:          r.Reason.String,
			Episode:         r.Episode.String,
		})
	}
	return out, nil
}

// SetEpisode implements Store: fills the newest matching row.
func (s *SQLite) SetEpisode(ctx context.Context, characterID string, day int, timeHHMM, episode string) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE action_history SET episode = ?
		WHERE id = (SELECT id FROM action_history
			WHERE character_id = ? AND day = ? AND time = ?
			ORDER BY id DESC LIMIT 1)`,
		episode, characterID, day, timeHHMM)
	return err
}

// SaveNPC implements Store.
func (s *SQLite) SaveNPC(ctx context.Context, npcID string, d world.NPCDynamic) error {
	facts, err := json.Marshal(d.Facts)
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}
	var last any
	if !d.LastConversation.IsZero() {
		last = d.LastConversation.UTC().Format(time.RFC3339)
	}
	_, err = s.conn.ExecContext(ctx, `INSERT INTO npc_states
		(npc_id, affinity, mood, facts_json, conversation_count, last_conversation)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(npc_id) DO UPDATE SET
			affinity = excluded.affinity,
			mood = excluded.mood,
			facts_json = excluded.facts_json,
			conversation_count = excluded.conversation_count,
			last_conversation = excluded.last_conversation`,
		npcID, d.Affinity, string(d.Mood), string(facts), d.ConversationCount, last)
	return err
}

// LoadNPCs implements Store.
func (s *SQLite) LoadNPCs(ctx context.Context) (map[string]world.NPCDynamic, error) {
	var rows []struct {
		NpcID             string         `db:"npc_id"`
		Affinity          int            `db:"affinity"`
		Mood              string         `db:"mood"`
		FactsJSON         string         `db:"facts_json"`
		ConversationCount int            `db:"conversation_count"`
		LastConversation  sql.NullString `db:"last_conversation"`
	}
	if err := s.conn.SelectContext(ctx, &rows, "SELECT * FROM npc_states"); err != nil {
		return nil, fmt.Errorf("select npcs: %w", err)
	}
	out := make(map[string]world.NPCDynamic, len(rows))
	for _, r := range rows {
		d := world.NPCDynamic{
			Affinity:          r.Affinity,
			Mood:              world.NPCMood(r.Mood),
			ConversationCount: r.ConversationCount,
		}
		if err := json.Unmarshal([]byte(r.FactsJSON), &d.Facts); err != nil {
			return nil, fmt.Errorf("unmarshal facts for %s: %w", r.NpcID, err)
		}
		if r.LastConversation.Valid {
			t, err := time.Parse(time.RFC3339, r.LastConversation.String)
			if err != nil {
				return nil, fmt.Errorf("parse last conversation for %s: %w", r.NpcID, err)
			}
			d.LastConversation = t
		}
		out[r.NpcID] = d
	}
	return out, nil
}

// SaveConversationSummary implements Store.
func (s *SQLite) SaveConversationSummary(ctx context.Context, sum world.ConversationSummary) error {
	topics, err := json.Marshal(sum.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	goal := 0
	if sum.GoalAchieved {
		goal = 1
	}
	_, err = s.conn.ExecContext(ctx, `INSERT INTO conversation_summaries
		(character_id, npc_id, summary, goal_achieved, topics_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sum.CharacterID, sum.NpcID, sum.Summary, goal, string(topics),
		sum.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// RecentSummaries implements Store.
func (s *SQLite) RecentSummaries(ctx context.Context, characterID, npcID string, limit int) ([]world.ConversationSummary, error) {
	var rows []struct {
		Summary      string `db:"summary"`
		GoalAchieved int    `db:"goal_achieved"`
		TopicsJSON   string `db:"topics_json"`
		CreatedAt    string `db:"created_at"`
	}
	if err := s.conn.SelectContext(ctx, &rows, `SELECT summary, goal_achieved, topics_json, created_at
		FROM conversation_summaries WHERE character_id = ? AND npc_id = ?
		ORDER BY id DESC LIMIT ?`, characterID, npcID, limit); err != nil {
		return nil, fmt.Errorf("select summaries: %w", err)
	}
	out := make([]world.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		sum := world.ConversationSummary{
			CharacterID:  characterID,
			NpcID:        npcID,
			Summary:      r.Summary,
			GoalAchieved: r.GoalAchieved != 0,
		}
		if err := json.Unmarshal([]byte(r.TopicsJSON), &sum.Topics); err != nil {
			return nil, fmt.Errorf("unmarshal topics: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
			sum.CreatedAt = t
		}
		out = append(out, sum)
	}
	return out, nil
}

// SaveMemories implements Store.
func (s *SQLite) SaveMemories(ctx context.Context, memories []world.MidTermMemory) error {
	if len(memories) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PreparexContext(ctx, `INSERT INTO midterm_memories
		(id, character_id, content, importance, created_day, expires_day, source_npc_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, m := range memories {
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.CharacterID, m.Content, string(m.Importance),
			m.CreatedDay, m.ExpiresDay, m.SourceNpcID); err != nil {
			return fmt.Errorf("insert memory %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// ActiveMemories implements Store.
func (s *SQLite) ActiveMemories(ctx context.Context, characterID string, day int) ([]world.MidTermMemory, error) {
	var rows []struct {
		ID          string         `db:"id"`
		Content     string         `db:"content"`
		Importance  string         `db:"importance"`
		CreatedDay  int            `db:"created_day"`
		ExpiresDay  int            `db:"expires_day"`
		SourceNpcID sql.NullString `db:"source_npc_id"`
	}
	if err := s.conn.SelectContext(ctx, &rows, `SELECT id, content, importance, created_day, expires_day, source_npc_id
		FROM midterm_memories WHERE character_id = ? AND expires_day >= ? ORDER BY created_day, id`,
		characterID, day); err != nil {
		return nil, fmt.Errorf("select memories: %w", err)
	}
	out := make([]world.MidTermMemory, 0, len(rows))
	for _, r := range rows {
		out = append(out, world.MidTermMemory{
			ID:          r.ID,
			CharacterID: characterID,
			Content:     r.Content,
			Importance:  world.MemoryImportance(r.Importance),
			CreatedDay:  r.CreatedDay,
			ExpiresDay:  r.ExpiresDay,
			SourceNpcID: r.SourceNpcID.String,
		})
	}
	return out, nil
}

// PurgeExpired implements Store.
func (s *SQLite) PurgeExpired(ctx context.Context, day int) (int, error) {
	res, err := s.conn.ExecContext(ctx,
		"DELETE FROM midterm_memories WHERE expires_day < ?", day)
	if err != nil {
		return 0, fmt.Errorf("purge memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
