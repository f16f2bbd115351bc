// Package world provides the data model and the authoritative in-memory
// world state: characters, NPCs, maps, time, and the mutation API the
// engine drives every tick.
package world

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// WorldTime is the simulation clock, derived from the wall clock in a
// fixed timezone. Day starts at 1 and counts from the server start time.
type WorldTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Day    int `json:"day"`
}

// HHMM formats the time as "HH:MM".
func (t WorldTime) HHMM() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Position is a point in map pixels.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance to other.
func (p Position) DistanceTo(other Position) float64 {
	dx := other.X - p.X
	dy := other.Y - p.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Direction is a facing, derived from the dominant movement axis.
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// DirectionFrom derives a facing from a movement vector: the component
// with the larger absolute delta wins.
func DirectionFrom(from, to Position) Direction {
	dx := to.X - from.X
	dy := to.Y - from.Y
	if math.Abs(dx) >= math.Abs(dy) {
		if dx < 0 {
			return DirLeft
		}
		return DirRight
	}
	if dy < 0 {
		return DirUp
	}
	return DirDown
}

// Employment links a character to a facility job.
type Employment struct {
	JobID string `json:"jobId"`
	Title string `json:"title,omitempty"`
}

// Profile holds the character's LLM persona. Not persisted; restored from
// the character bundle on load.
type Profile struct {
	Personality  string   `json:"personality,omitempty"`
	Tendencies   []string `json:"tendencies,omitempty"`
	CustomPrompt string   `json:"customPrompt,omitempty"`
}

// NavigationState tracks in-map movement along a node path.
// Invariant: IsMoving implies len(Path) >= 2.
type NavigationState struct {
	IsMoving         bool     `json:"isMoving"`
	Path             []string `json:"path,omitempty"`
	CurrentPathIndex int      `json:"currentPathIndex"`
	Progress         float64  `json:"progress"`
	StartPosition    Position `json:"startPosition"`
	TargetPosition   Position `json:"targetPosition"`
}

// RouteSegment is one map's leg of a cross-map route. The last node of a
// non-final segment is an entrance bridging into the next segment.
type RouteSegment struct {
	MapID          string   `json:"mapId"`
	Path           []string `json:"path"`
	ExitEntranceID string   `json:"exitEntranceId,omitempty"`
}

// CrossMapNav tracks a multi-map route in progress.
type CrossMapNav struct {
	IsActive            bool           `json:"isActive"`
	TargetMapID         string         `json:"targetMapId,omitempty"`
	TargetNodeID        string         `json:"targetNodeId,omitempty"`
	Route               []RouteSegment `json:"route,omitempty"`
	CurrentSegmentIndex int            `json:"currentSegmentIndex"`
}

// TransitionPhase enumerates the map-transition fade states.
type TransitionPhase string

const (
	PhaseNone    TransitionPhase = ""
	PhaseFadeOut TransitionPhase = "fadeOut"
	PhaseFadeIn  TransitionPhase = "fadeIn"
)

// TransitionState is the per-character map-transition FSM.
type TransitionState struct {
	Phase     TransitionPhase `json:"phase,omitempty"`
	Progress  float64         `json:"progress"`
	FromMapID string          `json:"fromMapId,omitempty"`
	ToMapID   string          `json:"toMapId,omitempty"`
	ToNodeID  string          `json:"toNodeId,omitempty"`
}

// Active reports whether a transition is underway.
func (t TransitionState) Active() bool { return t.Phase != PhaseNone }

// ActionState is the character's current timed action.
// Invariant: at most one per character; excludes movement and active
// conversation.
type ActionState struct {
	ActionID        string    `json:"actionId"`
	StartTime       time.Time `json:"startTime"`
	TargetEndTime   time.Time `json:"targetEndTime"`
	FacilityID      string    `json:"facilityId,omitempty"`
	TargetNpcID     string    `json:"targetNpcId,omitempty"`
	DurationMinutes int       `json:"durationMinutes,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// PendingAction is queued behind movement: the character walks to the
// facility first, then starts the action on arrival.
type PendingAction struct {
	ActionID        string `json:"actionId"`
	FacilityID      string `json:"facilityId,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// ConversationStatus marks whether the character is mid-conversation.
type ConversationStatus string

const (
	ConvoIdle   ConversationStatus = ""
	ConvoActive ConversationStatus = "active"
)

// ConversationRef is the character-side view of a running session.
type ConversationRef struct {
	Status ConversationStatus `json:"status,omitempty"`
	NpcID  string             `json:"npcId,omitempty"`
}

// Character is a simulated resident. Persisted fields survive restarts;
// runtime fields are re-initialized on load.
type Character struct {
	// Persisted.
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Sprite        json.RawMessage `json:"sprite,omitempty"`
	Money         int             `json:"money"`
	Satiety       float64         `json:"satiety"`
	Energy        float64         `json:"energy"`
	Hygiene       float64         `json:"hygiene"`
	Mood          float64         `json:"mood"`
	Bladder       float64         `json:"bladder"`
	CurrentMapID  string          `json:"currentMapId"`
	CurrentNodeID string          `json:"currentNodeId"`
	Position      Position        `json:"position"`
	Direction     Direction       `json:"direction"`
	Employment    *Employment     `json:"employment,omitempty"`
	Profile       *Profile        `json:"profile,omitempty"`

	// Runtime only, never persisted.
	Navigation    NavigationState    `json:"navigation"`
	CrossMapNav   CrossMapNav        `json:"crossMapNav"`
	Transition    TransitionState    `json:"transition"`
	Conversation  ConversationRef    `json:"conversation"`
	CurrentAction *ActionState       `json:"currentAction,omitempty"`
	PendingAction *PendingAction     `json:"pendingAction,omitempty"`
	ActionCounter int                `json:"actionCounter"`
	DisplayEmoji  string             `json:"displayEmoji,omitempty"`
}

// Stat reads a status bar by name.
func (c *Character) Stat(name string) float64 {
	switch name {
	case "satiety":
		return c.Satiety
	case "energy":
		return c.Energy
	case "hygiene":
		return c.Hygiene
	case "mood":
		return c.Mood
	case "bladder":
		return c.Bladder
	}
	return 0
}

// SetStat writes a status bar by name, clamped to [0, 100].
func (c *Character) SetStat(name string, v float64) {
	v = ClampStat(v)
	switch name {
	case "satiety":
		c.Satiety = v
	case "energy":
		c.Energy = v
	case "hygiene":
		c.Hygiene = v
	case "mood":
		c.Mood = v
	case "bladder":
		c.Bladder = v
	}
}

// StatNames lists the decaying status bars.
var StatNames = []string{"satiety", "bladder", "energy", "hygiene", "mood"}

// ClampStat bounds a status value to [0, 100].
func ClampStat(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Round2 rounds to two decimals; applied before every durable write so
// float drift never accumulates across restarts.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ResetRuntime clears all runtime-only fields, as done after loading a
// character from the store.
func (c *Character) ResetRuntime() {
	c.Navigation = NavigationState{}
	c.CrossMapNav = CrossMapNav{}
	c.Transition = TransitionState{}
	c.Conversation = ConversationRef{}
	c.CurrentAction = nil
	c.PendingAction = nil
	c.ActionCounter = 0
	c.DisplayEmoji = ""
}

// NPCMood enumerates NPC moods set by conversation post-processing.
type NPCMood string

const (
	MoodHappy   NPCMood = "happy"
	MoodNeutral NPCMood = "neutral"
	MoodSad     NPCMood = "sad"
	MoodAngry   NPCMood = "angry"
	MoodExcited NPCMood = "excited"
)

// ValidNPCMood reports whether m is a known mood.
func ValidNPCMood(m NPCMood) bool {
	switch m {
	case MoodHappy, MoodNeutral, MoodSad, MoodAngry, MoodExcited:
		return true
	}
	return false
}

// NPCDynamic is the persisted, conversation-shaped part of an NPC.
type NPCDynamic struct {
	Affinity          int       `json:"affinity"` // -100..100
	Mood              NPCMood   `json:"mood"`
	Facts             []string  `json:"facts,omitempty"`
	ConversationCount int       `json:"conversationCount"`
	LastConversation  time.Time `json:"lastConversation,omitzero"`
}

// NPC is a stationary townsperson characters can talk to.
type NPC struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Sprite    json.RawMessage `json:"sprite,omitempty"`
	MapID     string          `json:"mapId"`
	NodeID    string          `json:"nodeId"`
	Position  Position        `json:"position"`
	Direction Direction       `json:"direction"`
	Persona   string          `json:"persona,omitempty"`

	Dynamic NPCDynamic `json:"dynamic"`

	// Runtime only.
	IsInConversation bool `json:"isInConversation"`
}

// ClampAffinity bounds affinity to [-100, 100].
func ClampAffinity(v int) int {
	if v < -100 {
		return -100
	}
	if v > 100 {
		return 100
	}
	return v
}

// MemoryImportance grades a mid-term memory; it sets the expiry offset.
type MemoryImportance string

const (
	ImportanceLow    MemoryImportance = "low"
	ImportanceMedium MemoryImportance = "medium"
	ImportanceHigh   MemoryImportance = "high"
)

// ExpiryOffsetDays returns how many days past creation a memory of this
// importance stays active.
func (m MemoryImportance) ExpiryOffsetDays() int {
	switch m {
	case ImportanceMedium:
		return 1
	case ImportanceHigh:
		return 2
	}
	return 0
}

// MidTermMemory is a free-text note with importance-based expiry.
type MidTermMemory struct {
	ID          string           `json:"id"`
	CharacterID string           `json:"characterId"`
	Content     string           `json:"content"`
	Importance  MemoryImportance `json:"importance"`
	CreatedDay  int              `json:"createdDay"`
	ExpiresDay  int              `json:"expiresDay"`
	SourceNpcID string           `json:"sourceNpcId,omitempty"`
}

// ScheduleEntry is one row of a character's daily plan.
type ScheduleEntry struct {
	Time     string `json:"time"` // "HH:MM"
	Activity string `json:"activity"`
	MapID    string `json:"mapId,omitempty"`
	NodeID   string `json:"nodeId,omitempty"`
	Done     bool   `json:"done,omitempty"`
}

// HistoryEntry records one performed action for a character's day.
type HistoryEntry struct {
	Time            string `json:"time"` // "HH:MM"
	ActionID        string `json:"actionId"`
	Target          string `json:"target,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Episode         string `json:"episode,omitempty"`
}

// ConversationSummary is the persisted digest of a finished session.
type ConversationSummary struct {
	CharacterID  string    `json:"characterId"`
	NpcID        string    `json:"npcId"`
	Summary      string    `json:"summary"`
	GoalAchieved bool      `json:"goalAchieved"`
	Topics       []string  `json:"topics,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FullState is the complete persisted snapshot handed to the store.
type FullState struct {
	Characters   []*Character `json:"characters"`
	Time         WorldTime    `json:"time"`
	CurrentMapID string       `json:"currentMapId"`
}
