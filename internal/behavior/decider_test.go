package behavior

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/lifesim/internal/config"
	"github.com/talgya/lifesim/internal/llm"
	"github.com/talgya/lifesim/internal/world"
)

// fixedClient returns a canned intent, or an error when err is set.
type fixedClient struct {
	intent llm.BehaviorIntent
	err    error
	calls  int
}

func (c *fixedClient) Available() bool { return true }

func (c *fixedClient) GenerateObject(_ context.Context, _, _ string, _ llm.Schema, out any) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	*out.(*llm.BehaviorIntent) = c.intent
	return nil
}

func baseInput() Input {
	return Input{
		CharacterID: "alice",
		Name:        "Alice",
		Stats:       map[string]float64{"satiety": 60, "bladder": 60, "energy": 60, "hygiene": 60, "mood": 60},
		Money:       500,
		MapID:       "town",
		NodeID:      "town-0-0",
		Time:        world.WorldTime{Hour: 10, Minute: 0, Day: 1},
		Nearby:      []NearbyNPC{{ID: "sato", Name: "Sato", Mood: world.MoodNeutral}},
	}
}

func TestDecideForcedSkipsLLM(t *testing.T) {
	client := &fixedClient{intent: llm.BehaviorIntent{Kind: "idle", Reason: "nope"}}
	d := NewDecider(config.Default(), client)

	in := baseInput()
	in.Forced = "bladder"
	intent := d.Decide(context.Background(), in)

	assert.Equal(t, IntentStartAction, intent.Kind)
	assert.Equal(t, "toilet", intent.ActionID)
	assert.Zero(t, client.calls, "interrupt mode never consults the model")
}

func TestDecideUsesLLMIntent(t *testing.T) {
	client := &fixedClient{intent: llm.BehaviorIntent{
		Kind: "startConversation", NpcID: "sato", Goal: "say hello", Reason: "bored",
	}}
	d := NewDecider(config.Default(), client)

	intent := d.Decide(context.Background(), baseInput())
	assert.Equal(t, IntentStartConversation, intent.Kind)
	assert.Equal(t, "sato", intent.NpcID)
	assert.Equal(t, "say hello", intent.Goal)
	assert.Equal(t, 1, client.calls)
}

func TestDecideLLMErrorFallsBackToRules(t *testing.T) {
	client := &fixedClient{err: errors.New("timeout")}
	d := NewDecider(config.Default(), client)

	intent := d.Decide(context.Background(), baseInput())
	assert.Equal(t, IntentIdle, intent.Kind)
	assert.Equal(t, "nothing scheduled", intent.Reason)
}

func TestDecideRejectsInvalidLLMIntents(t *testing.T) {
	cases := []struct {
		name   string
		intent llm.BehaviorIntent
	}{
		{"moveToNode without node", llm.BehaviorIntent{Kind: "moveToNode", Reason: "r"}},
		{"moveToMap without map", llm.BehaviorIntent{Kind: "moveToMap", Reason: "r"}},
		{"unknown action", llm.BehaviorIntent{Kind: "startAction", ActionID: "juggle", Reason: "r"}},
		{"thinking not plannable", llm.BehaviorIntent{Kind: "startAction", ActionID: "thinking", Reason: "r"}},
		{"npc not nearby", llm.BehaviorIntent{Kind: "startConversation", NpcID: "stranger", Reason: "r"}},
		{"unknown kind", llm.BehaviorIntent{Kind: "teleport", Reason: "r"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDecider(config.Default(), &fixedClient{intent: tc.intent})
			intent := d.Decide(context.Background(), baseInput())
			assert.Equal(t, IntentIdle, intent.Kind, "rejected intents fall back to rules")
		})
	}
}

func TestDecideFillsMapForMoveToNode(t *testing.T) {
	client := &fixedClient{intent: llm.BehaviorIntent{Kind: "moveToNode", NodeID: "town-2-2", Reason: "r"}}
	d := NewDecider(config.Default(), client)

	intent := d.Decide(context.Background(), baseInput())
	assert.Equal(t, IntentMoveToNode, intent.Kind)
	assert.Equal(t, "town", intent.MapID, "empty mapId defaults to the current map")
}

func TestRulesRecoverLowestStat(t *testing.T) {
	d := NewDecider(config.Default(), llm.Disabled{})

	in := baseInput()
	in.Stats["satiety"] = 9
	in.Stats["energy"] = 4
	intent := d.Decide(context.Background(), in)

	assert.Equal(t, IntentStartAction, intent.Kind)
	assert.Equal(t, "sleep", intent.ActionID, "the lowest stat wins")
}

func TestRulesFollowSchedule(t *testing.T) {
	d := NewDecider(config.Default(), llm.Disabled{})

	in := baseInput()
	in.Schedule = []world.ScheduleEntry{
		{Time: "07:00", Activity: "eat", Done: true},
		{Time: "09:00", Activity: "work", MapID: "office", NodeID: "office-0-0"},
		{Time: "19:00", Activity: "rest"},
	}

	intent := d.Decide(context.Background(), in)
	assert.Equal(t, IntentMoveToMap, intent.Kind, "the entry's map differs from the current one")
	assert.Equal(t, "office", intent.MapID)
	assert.Equal(t, "office-0-0", intent.NodeID)

	// Once there, the activity resolves to an action.
	in.MapID = "office"
	in.Schedule[1].MapID = "office"
	in.Schedule[1].NodeID = ""
	intent = d.Decide(context.Background(), in)
	assert.Equal(t, IntentStartAction, intent.Kind)
	assert.Equal(t, "work", intent.ActionID)

	// An unknown activity still consumes the slot as idle time.
	in.Schedule[1].Activity = "stargazing"
	intent = d.Decide(context.Background(), in)
	assert.Equal(t, IntentIdle, intent.Kind)
	assert.Contains(t, intent.Reason, "stargazing")
}

func TestRulesMoveWithinMap(t *testing.T) {
	d := NewDecider(config.Default(), llm.Disabled{})

	in := baseInput()
	in.Schedule = []world.ScheduleEntry{
		{Time: "09:00", Activity: "rest", MapID: "town", NodeID: "town-2-2"},
	}
	intent := d.Decide(context.Background(), in)
	require.Equal(t, IntentMoveToNode, intent.Kind)
	assert.Equal(t, "town-2-2", intent.NodeID)
	assert.Equal(t, "town", intent.MapID)
}

func TestRulesIdleWhenNothingPending(t *testing.T) {
	d := NewDecider(config.Default(), llm.Disabled{})

	in := baseInput()
	in.Schedule = []world.ScheduleEntry{{Time: "22:00", Activity: "sleep"}}
	intent := d.Decide(context.Background(), in)
	assert.Equal(t, IntentIdle, intent.Kind)
	assert.Equal(t, "nothing scheduled", intent.Reason)
}
