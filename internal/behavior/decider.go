// Package behavior turns a character's situation into an Intent: what to
// do next. Decisions prefer the LLM; a rules tier covers unavailability
// and failures, so characters never stall.
package behavior

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/talgya/lifesim/internal/config"
	"github.com/talgya/lifesim/internal/llm"
	"github.com/talgya/lifesim/internal/world"
)

// IntentKind enumerates the decision variants.
type IntentKind string

const (
	IntentIdle              IntentKind = "idle"
	IntentMoveToNode        IntentKind = "moveToNode"
	IntentMoveToMap         IntentKind = "moveToMap"
	IntentStartAction       IntentKind = "startAction"
	IntentStartConversation IntentKind = "startConversation"
)

// Intent is a behavior decision.
type Intent struct {
	Kind            IntentKind
	ActionID        string
	FacilityID      string
	MapID           string
	NodeID          string
	NpcID           string
	Goal            string
	DurationMinutes int
	Reason          string
}

// NearbyNPC is an NPC visible to the deciding character.
type NearbyNPC struct {
	ID       string
	Name     string
	Affinity int
	Mood     world.NPCMood
}

// Input is the immutable decision context assembled by the engine under
// the world lock, so the decider can run off-thread.
type Input struct {
	CharacterID string
	Name        string
	Profile     *world.Profile
	Stats       map[string]float64
	Money       int
	Employed    bool
	MapID       string
	NodeID      string
	Time        world.WorldTime

	Schedule  []world.ScheduleEntry
	History   []world.HistoryEntry
	Nearby    []NearbyNPC
	Memories  []world.MidTermMemory
	Summaries []world.ConversationSummary

	// Forced marks interrupt mode: the stat that crossed the threshold.
	Forced string
}

// ForcedActions maps an interrupting stat to its recovery action.
var ForcedActions = map[string]string{
	"bladder": "toilet",
	"satiety": "eat",
	"energy":  "sleep",
	"hygiene": "bathe",
}

// Decider produces Intents.
type Decider struct {
	cfg    *config.Config
	client llm.Client
}

// NewDecider builds a Decider.
func NewDecider(cfg *config.Config, client llm.Client) *Decider {
	if client == nil {
		client = llm.Disabled{}
	}
	return &Decider{cfg: cfg, client: client}
}

// Decide returns the next Intent for the character. Interrupt mode skips
// the LLM entirely; otherwise LLM failure falls back to rules.
func (d *Decider) Decide(ctx context.Context, in Input) Intent {
	if in.Forced != "" {
		actionID := ForcedActions[in.Forced]
		return Intent{
			Kind:     IntentStartAction,
			ActionID: actionID,
			Reason:   fmt.Sprintf("%s critically low", in.Forced),
		}
	}
	if d.client.Available() {
		intent, err := d.decideLLM(ctx, in)
		if err == nil {
			return intent
		}
		slog.Warn("llm decision failed, using rules", "character", in.CharacterID, "err", err)
	}
	return d.decideRules(in)
}

func (d *Decider) decideLLM(ctx context.Context, in Input) (Intent, error) {
	var out llm.BehaviorIntent
	if err := d.client.GenerateObject(ctx, systemPrompt(in), userPrompt(in), llm.BehaviorIntentSchema, &out); err != nil {
		return Intent{}, err
	}
	intent := Intent{
		Kind:            IntentKind(out.Kind),
		ActionID:        out.ActionID,
		FacilityID:      out.FacilityID,
		MapID:           out.MapID,
		NodeID:          out.NodeID,
		NpcID:           out.NpcID,
		Goal:            out.Goal,
		DurationMinutes: out.DurationMinutes,
		Reason:          out.Reason,
	}
	if err := d.validate(in, &intent); err != nil {
		slog.Warn("llm intent rejected", "character", in.CharacterID, "kind", out.Kind, "err", err)
		return Intent{}, err
	}
	return intent, nil
}

// validate applies guardrails to an LLM intent before the engine acts on it.
func (d *Decider) validate(in Input, intent *Intent) error {
	switch intent.Kind {
	case IntentIdle:
		return nil
	case IntentMoveToNode:
		if intent.NodeID == "" {
			return fmt.Errorf("moveToNode without nodeId")
		}
		if intent.MapID == "" {
			intent.MapID = in.MapID
		}
		return nil
	case IntentMoveToMap:
		if intent.MapID == "" {
			return fmt.Errorf("moveToMap without mapId")
		}
		return nil
	case IntentStartAction:
		if d.cfg.Action(intent.ActionID) == nil {
			return fmt.Errorf("unknown action %q", intent.ActionID)
		}
		if intent.ActionID == "thinking" {
			return fmt.Errorf("thinking is not a plannable action")
		}
		return nil
	case IntentStartConversation:
		if intent.NpcID == "" {
			return fmt.Errorf("startConversation without npcId")
		}
		for _, n := range in.Nearby {
			if n.ID == intent.NpcID {
				return nil
			}
		}
		return fmt.Errorf("npc %q not nearby", intent.NpcID)
	}
	return fmt.Errorf("unknown intent kind %q", intent.Kind)
}

// decideRules is the deterministic fallback: recover the lowest stat
// below the interrupt threshold, else follow the schedule, else idle.
func (d *Decider) decideRules(in Input) Intent {
	lowest, lowestVal := "", 101.0
	for _, name := range []string{"bladder", "satiety", "energy", "hygiene"} {
		if v, ok := in.Stats[name]; ok && v < d.cfg.InterruptBelow && v < lowestVal {
			lowest, lowestVal = name, v
		}
	}
	if lowest != "" {
		return Intent{
			Kind:     IntentStartAction,
			ActionID: ForcedActions[lowest],
			Reason:   fmt.Sprintf("%s low (%.1f)", lowest, lowestVal),
		}
	}

	for _, e := range in.Schedule {
		if e.Done || e.Time > in.Time.HHMM() {
			continue
		}
		reason := fmt.Sprintf("schedule: %s", e.Activity)
		if e.MapID != "" && e.MapID != in.MapID {
			return Intent{Kind: IntentMoveToMap, MapID: e.MapID, NodeID: e.NodeID, Reason: reason}
		}
		if e.NodeID != "" && e.NodeID != in.NodeID {
			return Intent{Kind: IntentMoveToNode, MapID: in.MapID, NodeID: e.NodeID, Reason: reason}
		}
		if def := d.cfg.Action(e.Activity); def != nil {
			return Intent{Kind: IntentStartAction, ActionID: e.Activity, Reason: reason}
		}
		return Intent{Kind: IntentIdle, Reason: reason}
	}
	return Intent{Kind: IntentIdle, Reason: "nothing scheduled"}
}

func systemPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("You control a character in a small town life simulation. ")
	b.WriteString("Decide the single next thing the character does, as JSON.\n")
	if in.Profile != nil {
		if in.Profile.Personality != "" {
			fmt.Fprintf(&b, "Personality: %s\n", in.Profile.Personality)
		}
		if len(in.Profile.Tendencies) > 0 {
			fmt.Fprintf(&b, "Tendencies: %s\n", strings.Join(in.Profile.Tendencies, ", "))
		}
		if in.Profile.CustomPrompt != "" {
			b.WriteString(in.Profile.CustomPrompt)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func userPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "It is day %d, %s. %s is at node %s on map %s with %d money.\n",
		in.Time.Day, in.Time.HHMM(), in.Name, in.NodeID, in.MapID, in.Money)
	fmt.Fprintf(&b, "Status (0-100, higher is better): ")
	for _, name := range world.StatNames {
		fmt.Fprintf(&b, "%s=%.0f ", name, in.Stats[name])
	}
	b.WriteString("\n")
	if len(in.Schedule) > 0 {
		b.WriteString("Today's schedule:\n")
		for _, e := range in.Schedule {
			mark := " "
			if e.Done {
				mark = "x"
			}
			fmt.Fprintf(&b, "  [%s] %s %s\n", mark, e.Time, e.Activity)
		}
	}
	if len(in.History) > 0 {
		b.WriteString("Recent actions:\n")
		for _, h := range in.History {
			fmt.Fprintf(&b, "  %s %s %s\n", h.Time, h.ActionID, h.Reason)
		}
	}
	if len(in.Nearby) > 0 {
		b.WriteString("Nearby people:\n")
		for _, n := range in.Nearby {
			fmt.Fprintf(&b, "  %s (%s, affinity %d, mood %s)\n", n.Name, n.ID, n.Affinity, n.Mood)
		}
	}
	if len(in.Memories) > 0 {
		b.WriteString("Things on your mind:\n")
		for _, m := range in.Memories {
			fmt.Fprintf(&b, "  - %s\n", m.Content)
		}
	}
	if len(in.Summaries) > 0 {
		b.WriteString("Recent conversations:\n")
		for _, s := range in.Summaries {
			fmt.Fprintf(&b, "  - %s\n", s.Summary)
		}
	}
	return b.String()
}

// String renders an Intent for logs.
func (i Intent) String() string {
	b, _ := json.Marshal(struct {
		Kind   IntentKind `json:"kind"`
		Action string     `json:"action,omitempty"`
		Map    string     `json:"map,omitempty"`
		Node   string     `json:"node,omitempty"`
		Npc    string     `json:"npc,omitempty"`
		Reason string     `json:"reason,omitempty"`
	}{i.Kind, i.ActionID, i.MapID, i.NodeID, i.NpcID, i.Reason})
	return string(b)
}
