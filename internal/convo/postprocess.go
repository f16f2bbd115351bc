package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/lifesim/internal/llm"
	"github.com/talgya/lifesim/internal/store"
	"github.com/talgya/lifesim/internal/world"
)

// affinityChange is bounded per conversation; cumulative affinity is
// clamped separately.
const maxAffinityChange = 20

// PostProcessor extracts a finished session's digest and applies it to
// the NPC and the durable store.
type PostProcessor struct {
	client llm.Client
	store  store.Store
}

// NewPostProcessor builds a PostProcessor.
func NewPostProcessor(client llm.Client, st store.Store) *PostProcessor {
	if client == nil {
		client = llm.Disabled{}
	}
	return &PostProcessor{client: client, store: st}
}

// Extract asks the LLM for the conversation digest. Without a client it
// returns a neutral digest so the pipeline still completes.
func (p *PostProcessor) Extract(ctx context.Context, s *Session, npcName string, current world.NPCDynamic) llm.ConversationExtraction {
	neutral := llm.ConversationExtraction{
		Summary: fmt.Sprintf("Talked with %s (%d turns).", npcName, s.CurrentTurn),
		Facts:   current.Facts,
		Mood:    string(current.Mood),
	}
	if !p.client.Available() {
		return neutral
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Conversation between the character and %s:\n", npcName)
	for _, msg := range s.Messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.Speaker, msg.Text)
	}
	fmt.Fprintf(&b, "\n%s's known facts about the character before this conversation: %s\n",
		npcName, strings.Join(current.Facts, "; "))

	system := "Summarize the conversation. Report the NPC's affinity change (-20..20), " +
		"the complete updated fact list the NPC now knows about the character, the NPC's mood, " +
		"discussed topics, and anything the character should remember, graded by importance."

	var out llm.ConversationExtraction
	if err := p.client.GenerateObject(ctx, system, b.String(), llm.ConversationExtractionSchema, &out); err != nil {
		slog.Warn("conversation extraction failed, using neutral digest",
			"character", s.CharacterID, "npc", s.NpcID, "err", err)
		return neutral
	}
	return out
}

// Result is the applied outcome of post-processing.
type Result struct {
	Dynamic  world.NPCDynamic
	Summary  world.ConversationSummary
	Memories []world.MidTermMemory
}

// Apply folds the extraction into the NPC's dynamic state and builds the
// rows to persist. affinityChange is clamped to ±20, the cumulative
// affinity to ±100; the fact list is replaced wholesale.
func (p *PostProcessor) Apply(ex llm.ConversationExtraction, s *Session, current world.NPCDynamic, day int) Result {
	change := ex.AffinityChange
	if change > maxAffinityChange {
		change = maxAffinityChange
	}
	if change < -maxAffinityChange {
		change = -maxAffinityChange
	}

	d := current
	d.Affinity = world.ClampAffinity(current.Affinity + change)
	d.Facts = append([]string(nil), ex.Facts...)
	if mood := world.NPCMood(ex.Mood); world.ValidNPCMood(mood) {
		d.Mood = mood
	}
	d.ConversationCount = current.ConversationCount + 1
	d.LastConversation = time.Now()

	res := Result{
		Dynamic: d,
		Summary: world.ConversationSummary{
			CharacterID:  s.CharacterID,
			NpcID:        s.NpcID,
			Summary:      ex.Summary,
			GoalAchieved: s.GoalAchieved,
			Topics:       append([]string(nil), ex.Topics...),
			CreatedAt:    time.Now(),
		},
	}
	for _, m := range ex.Memories {
		importance := world.MemoryImportance(m.Importance)
		switch importance {
		case world.ImportanceLow, world.ImportanceMedium, world.ImportanceHigh:
		default:
			importance = world.ImportanceLow
		}
		res.Memories = append(res.Memories, world.MidTermMemory{
			ID:          uuid.NewString(),
			CharacterID: s.CharacterID,
			Content:     m.Content,
			Importance:  importance,
			CreatedDay:  day,
			ExpiresDay:  day + importance.ExpiryOffsetDays(),
			SourceNpcID: s.NpcID,
		})
	}
	return res
}

// ReviseSchedule asks the LLM whether the conversation changes the rest
// of the character's day, returning proposed schedule mutations. Without
// a client, or on failure, the plan stands and nil is returned.
func (p *PostProcessor) ReviseSchedule(ctx context.Context, s *Session, summary string, plan []world.ScheduleEntry, now world.WorldTime) []llm.ScheduleChange {
	if !p.client.Available() {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "It is day %d, %s.\n", now.Day, now.HHMM())
	fmt.Fprintf(&b, "The character just finished a conversation. Summary: %s\n", summary)
	b.WriteString("Today's remaining plan:\n")
	remaining := 0
	for _, e := range plan {
		if e.Done || e.Time <= now.HHMM() {
			continue
		}
		fmt.Fprintf(&b, "  %s %s\n", e.Time, e.Activity)
		remaining++
	}
	if remaining == 0 {
		b.WriteString("  (empty)\n")
	}

	system := "Decide whether the conversation changes the character's plan for the rest of the day. " +
		"Propose changes as add, remove, or modify operations with HH:MM times; " +
		"return an empty change list when the plan stands."

	var out llm.ScheduleUpdate
	if err := p.client.GenerateObject(ctx, system, b.String(), llm.ScheduleUpdateSchema, &out); err != nil {
		slog.Warn("schedule revision failed, keeping the plan",
			"character", s.CharacterID, "err", err)
		return nil
	}
	return out.Changes
}

// Persist writes the applied result to the store. Failures log and
// continue; the in-memory world state is already updated.
func (p *PostProcessor) Persist(ctx context.Context, npcID string, res Result) {
	if err := p.store.SaveNPC(ctx, npcID, res.Dynamic); err != nil {
		slog.Error("npc state write failed", "npc", npcID, "err", err)
	}
	if err := p.store.SaveConversationSummary(ctx, res.Summary); err != nil {
		slog.Error("conversation summary write failed", "npc", npcID, "err", err)
	}
	if len(res.Memories) > 0 {
		if err := p.store.SaveMemories(ctx, res.Memories); err != nil {
			slog.Error("memory write failed", "character", res.Summary.CharacterID, "err", err)
		}
	}
}
