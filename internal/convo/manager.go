// Package convo runs character-NPC conversations: session registry,
// the alternating turn loop, and post-conversation extraction.
package convo

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxTurns bounds a session; a turn is one character + one NPC message.
const MaxTurns = 10

// Goal is what the character wants from the conversation.
type Goal struct {
	Goal            string `json:"goal"`
	SuccessCriteria string `json:"successCriteria,omitempty"`
}

// Speaker identifies who uttered a message.
type Speaker string

const (
	SpeakerCharacter Speaker = "character"
	SpeakerNPC       Speaker = "npc"
)

// Message is one utterance in a session.
type Message struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	Time    time.Time `json:"time"`
}

// Status is the session lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Session is one running or finished conversation.
type Session struct {
	ID           string    `json:"id"`
	CharacterID  string    `json:"characterId"`
	NpcID        string    `json:"npcId"`
	Goal         Goal      `json:"goal"`
	Messages     []Message `json:"messages"`
	CurrentTurn  int       `json:"currentTurn"`
	MaxTurns     int       `json:"maxTurns"`
	StartTime    time.Time `json:"startTime"`
	Status       Status    `json:"status"`
	GoalAchieved bool      `json:"goalAchieved"`
}

func (s *Session) clone() *Session {
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	return &cp
}

// Manager is the session registry: at most one active session per
// character, and no NPC in two sessions at once. It guards its own state
// so the executor loop can run off the engine goroutine.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session // keyed by characterId
	npcBusy  map[string]string   // npcId → characterId
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		npcBusy:  make(map[string]string),
	}
}

// Start opens a session. It fails when the character already has one or
// the NPC is mid-conversation with someone else.
func (m *Manager) Start(characterID, npcID string, goal Goal) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.sessions[characterID]; s != nil {
		return nil, fmt.Errorf("character %s already in conversation %s", characterID, s.ID)
	}
	if holder, busy := m.npcBusy[npcID]; busy {
		return nil, fmt.Errorf("npc %s already talking to %s", npcID, holder)
	}
	s := &Session{
		ID:          uuid.NewString(),
		CharacterID: characterID,
		NpcID:       npcID,
		Goal:        goal,
		MaxTurns:    MaxTurns,
		StartTime:   time.Now(),
		Status:      StatusActive,
	}
	m.sessions[characterID] = s
	m.npcBusy[npcID] = characterID
	return s.clone(), nil
}

// AddMessage appends an utterance and recomputes the turn counter.
func (m *Manager) AddMessage(characterID string, speaker Speaker, text string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[characterID]
	if s == nil {
		return nil, fmt.Errorf("no active session for %s", characterID)
	}
	s.Messages = append(s.Messages, Message{Speaker: speaker, Text: text, Time: time.Now()})
	s.CurrentTurn = len(s.Messages) / 2
	return s.clone(), nil
}

// End closes the session and returns its final snapshot.
func (m *Manager) End(characterID string, goalAchieved bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[characterID]
	if s == nil {
		return nil, fmt.Errorf("no active session for %s", characterID)
	}
	s.Status = StatusCompleted
	s.GoalAchieved = goalAchieved
	delete(m.sessions, characterID)
	delete(m.npcBusy, s.NpcID)
	return s.clone(), nil
}

// Active returns a copy of the character's running session, or nil.
func (m *Manager) Active(characterID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.sessions[characterID]; s != nil {
		return s.clone()
	}
	return nil
}

// NPCBusy reports whether an NPC is in any session.
func (m *Manager) NPCBusy(npcID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, busy := m.npcBusy[npcID]
	return busy
}
