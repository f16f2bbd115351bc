package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/talgya/lifesim/internal/llm"
	"github.com/talgya/lifesim/internal/world"
)

// Fallback utterances used when the LLM is unavailable or fails.
const (
	characterFallback = "えっと..."
	npcFallback       = "そうですね..."
)

// Participants is the immutable context an executor loop speaks from.
type Participants struct {
	CharacterName    string
	CharacterProfile *world.Profile
	NpcName          string
	NpcPersona       string
	NpcMood          world.NPCMood
	NpcFacts         []string
	Affinity         int
	Memories         []world.MidTermMemory
	Summaries        []world.ConversationSummary
}

// Executor drives the alternating turn loop of running sessions, one
// goroutine per session.
type Executor struct {
	manager      *Manager
	client       llm.Client
	turnInterval time.Duration
	llmTimeout   time.Duration

	// OnResult receives the finished session snapshot. Called from the
	// loop goroutine; receivers hand it to the engine queue.
	OnResult func(s *Session)

	// OnMessage receives every utterance as it lands, from the loop
	// goroutine.
	OnMessage func(characterID, npcID string, m Message)

	mu          sync.Mutex
	activeLoops map[string]bool // characterId
}

// NewExecutor builds an Executor over the registry.
func NewExecutor(manager *Manager, client llm.Client, turnInterval, llmTimeout time.Duration) *Executor {
	if client == nil {
		client = llm.Disabled{}
	}
	return &Executor{
		manager:      manager,
		client:       client,
		turnInterval: turnInterval,
		llmTimeout:   llmTimeout,
		activeLoops:  make(map[string]bool),
	}
}

// Run starts the turn loop for a character's session unless one is
// already running. Returns false on duplicate.
func (e *Executor) Run(ctx context.Context, characterID string, p Participants) bool {
	e.mu.Lock()
	if e.activeLoops[characterID] {
		e.mu.Unlock()
		return false
	}
	e.activeLoops[characterID] = true
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.activeLoops, characterID)
			e.mu.Unlock()
		}()
		e.loop(ctx, characterID, p)
	}()
	return true
}

func (e *Executor) loop(ctx context.Context, characterID string, p Participants) {
	for {
		s := e.manager.Active(characterID)
		if s == nil {
			return
		}
		if s.CurrentTurn >= s.MaxTurns {
			e.finish(characterID, false)
			return
		}
		if ctx.Err() != nil {
			e.finish(characterID, false)
			return
		}

		messagesBefore := len(s.Messages)

		utt, spoke := e.characterUtterance(ctx, s, p)
		if _, err := e.manager.AddMessage(characterID, SpeakerCharacter, utt.Utterance); err != nil {
			slog.Warn("conversation vanished mid-turn", "character", characterID, "err", err)
			return
		}
		e.emitMessage(characterID, s.NpcID, SpeakerCharacter, utt.Utterance)
		if !spoke {
			// No real line could be produced: close out the turn with the
			// NPC's fallback and end the conversation.
			if _, err := e.manager.AddMessage(characterID, SpeakerNPC, npcFallback); err != nil {
				slog.Warn("conversation vanished mid-turn", "character", characterID, "err", err)
				return
			}
			e.emitMessage(characterID, s.NpcID, SpeakerNPC, npcFallback)
			e.finish(characterID, false)
			return
		}
		// The goal cannot be achieved by the opening line alone; it needs
		// at least one NPC reply on record.
		if utt.GoalAchieved && messagesBefore > 0 {
			e.finish(characterID, true)
			return
		}

		npcUtt, replied := e.npcUtterance(ctx, s, p, utt.Utterance)
		s2, err := e.manager.AddMessage(characterID, SpeakerNPC, npcUtt)
		if err != nil {
			slog.Warn("conversation vanished mid-turn", "character", characterID, "err", err)
			return
		}
		e.emitMessage(characterID, s.NpcID, SpeakerNPC, npcUtt)
		if !replied || s2.CurrentTurn >= s2.MaxTurns {
			e.finish(characterID, false)
			return
		}

		if e.turnInterval > 0 {
			select {
			case <-ctx.Done():
				e.finish(characterID, false)
				return
			case <-time.After(e.turnInterval):
			}
		}
	}
}

func (e *Executor) emitMessage(characterID, npcID string, speaker Speaker, text string) {
	if e.OnMessage != nil {
		e.OnMessage(characterID, npcID, Message{Speaker: speaker, Text: text, Time: time.Now()})
	}
}

func (e *Executor) finish(characterID string, goalAchieved bool) {
	s, err := e.manager.End(characterID, goalAchieved)
	if err != nil {
		return
	}
	slog.Info("conversation finished",
		"character", characterID, "npc", s.NpcID,
		"turns", s.CurrentTurn, "goalAchieved", goalAchieved)
	if e.OnResult != nil {
		e.OnResult(s)
	}
}

// characterUtterance returns the character's next line. The second
// return is false when the fallback had to be used, which ends the
// conversation after the exchange.
func (e *Executor) characterUtterance(ctx context.Context, s *Session, p Participants) (llm.CharacterUtterance, bool) {
	if !e.client.Available() {
		return llm.CharacterUtterance{Utterance: characterFallback}, false
	}
	callCtx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()

	var out llm.CharacterUtterance
	err := e.client.GenerateObject(callCtx,
		characterSystem(s, p), transcript(s, p), llm.CharacterUtteranceSchema, &out)
	if err != nil || out.Utterance == "" {
		slog.Warn("character utterance failed, using fallback",
			"character", s.CharacterID, "err", err)
		return llm.CharacterUtterance{Utterance: characterFallback}, false
	}
	return out, true
}

func (e *Executor) npcUtterance(ctx context.Context, s *Session, p Participants, lastLine string) (string, bool) {
	if !e.client.Available() {
		return npcFallback, false
	}
	callCtx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()

	var out llm.NPCUtterance
	err := e.client.GenerateObject(callCtx,
		npcSystem(p), transcript(s, p)+fmt.Sprintf("%s: %s\n", p.CharacterName, lastLine),
		llm.NPCUtteranceSchema, &out)
	if err != nil || out.Utterance == "" {
		slog.Warn("npc utterance failed, using fallback", "npc", s.NpcID, "err", err)
		return npcFallback, false
	}
	return out.Utterance, true
}

func characterSystem(s *Session, p Participants) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You speak as %s, talking to %s.\n", p.CharacterName, p.NpcName)
	if p.CharacterProfile != nil && p.CharacterProfile.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", p.CharacterProfile.Personality)
	}
	fmt.Fprintf(&b, "Goal of this conversation: %s\n", s.Goal.Goal)
	if s.Goal.SuccessCriteria != "" {
		fmt.Fprintf(&b, "The goal counts as achieved when: %s\n", s.Goal.SuccessCriteria)
	}
	b.WriteString("Reply with the next utterance and whether the goal has been achieved.\n")
	return b.String()
}

func npcSystem(p Participants) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You speak as %s, an NPC talking to %s.\n", p.NpcName, p.CharacterName)
	if p.NpcPersona != "" {
		fmt.Fprintf(&b, "Persona: %s\n", p.NpcPersona)
	}
	fmt.Fprintf(&b, "Your current mood is %s, and your affinity with %s is %d (-100..100).\n",
		p.NpcMood, p.CharacterName, p.Affinity)
	if len(p.NpcFacts) > 0 {
		fmt.Fprintf(&b, "What you know about them: %s\n", strings.Join(p.NpcFacts, "; "))
	}
	b.WriteString("Reply with your next utterance only.\n")
	return b.String()
}

func transcript(s *Session, p Participants) string {
	var b strings.Builder
	if len(p.Summaries) > 0 {
		b.WriteString("Earlier conversations:\n")
		for _, sum := range p.Summaries {
			fmt.Fprintf(&b, "  - %s\n", sum.Summary)
		}
	}
	if len(p.Memories) > 0 {
		b.WriteString("On the character's mind:\n")
		for _, m := range p.Memories {
			fmt.Fprintf(&b, "  - %s\n", m.Content)
		}
	}
	b.WriteString("Conversation so far:\n")
	for _, msg := range s.Messages {
		name := p.CharacterName
		if msg.Speaker == SpeakerNPC {
			name = p.NpcName
		}
		fmt.Fprintf(&b, "%s: %s\n", name, msg.Text)
	}
	return b.String()
}
