package convo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/lifesim/internal/llm"
	"github.com/talgya/lifesim/internal/store"
	"github.com/talgya/lifesim/internal/world"
)

func finishedSession() *Session {
	return &Session{
		ID:           "s1",
		CharacterID:  "alice",
		NpcID:        "sato",
		CurrentTurn:  4,
		MaxTurns:     MaxTurns,
		StartTime:    time.Now(),
		Status:       StatusCompleted,
		GoalAchieved: true,
		Messages: []Message{
			{Speaker: SpeakerCharacter, Text: "hello"},
			{Speaker: SpeakerNPC, Text: "hi"},
		},
	}
}

func TestExtractWithoutClientReturnsNeutralDigest(t *testing.T) {
	p := NewPostProcessor(nil, store.NewMemory())
	current := world.NPCDynamic{
		Affinity: 12, Mood: world.MoodHappy,
		Facts: []string{"works at the office"},
	}

	ex := p.Extract(context.Background(), finishedSession(), "Sato", current)
	assert.Zero(t, ex.AffinityChange)
	assert.Equal(t, []string{"works at the office"}, ex.Facts, "neutral digest keeps known facts")
	assert.Equal(t, "happy", ex.Mood)
	assert.Contains(t, ex.Summary, "Sato")
}

func TestApplyClampsAffinityChange(t *testing.T) {
	p := NewPostProcessor(nil, store.NewMemory())
	current := world.NPCDynamic{Affinity: 10, Mood: world.MoodNeutral, ConversationCount: 2}

	res := p.Apply(llm.ConversationExtraction{AffinityChange: 50, Mood: "happy"}, finishedSession(), current, 1)
	assert.Equal(t, 30, res.Dynamic.Affinity, "per-conversation change tops out at 20")
	assert.Equal(t, world.MoodHappy, res.Dynamic.Mood)
	assert.Equal(t, 3, res.Dynamic.ConversationCount)
	assert.False(t, res.Dynamic.LastConversation.IsZero())

	res = p.Apply(llm.ConversationExtraction{AffinityChange: -50}, finishedSession(), current, 1)
	assert.Equal(t, -10, res.Dynamic.Affinity)
}

func TestApplyClampsCumulativeAffinity(t *testing.T) {
	p := NewPostProcessor(nil, store.NewMemory())

	res := p.Apply(llm.ConversationExtraction{AffinityChange: 20},
		finishedSession(), world.NPCDynamic{Affinity: 95, Mood: world.MoodNeutral}, 1)
	assert.Equal(t, 100, res.Dynamic.Affinity)

	res = p.Apply(llm.ConversationExtraction{AffinityChange: -20},
		finishedSession(), world.NPCDynamic{Affinity: -90, Mood: world.MoodNeutral}, 1)
	assert.Equal(t, -100, res.Dynamic.Affinity)
}

func TestApplyReplacesFactsAndValidatesMood(t *testing.T) {
	p := NewPostProcessor(nil, store.NewMemory())
	current := world.NPCDynamic{
		Mood:  world.MoodSad,
		Facts: []string{"old fact one", "old fact two"},
	}

	res := p.Apply(llm.ConversationExtraction{
		Facts: []string{"moved to a new flat"},
		Mood:  "bewildered",
	}, finishedSession(), current, 1)

	assert.Equal(t, []string{"moved to a new flat"}, res.Dynamic.Facts, "facts are replaced, not merged")
	assert.Equal(t, world.MoodSad, res.Dynamic.Mood, "unknown mood keeps the previous one")
}

func TestApplyBuildsMemoriesWithExpiry(t *testing.T) {
	p := NewPostProcessor(nil, store.NewMemory())

	res := p.Apply(llm.ConversationExtraction{
		Summary: "talked about dinner",
		Topics:  []string{"dinner"},
		Memories: []llm.ExtractedMemory{
			{Content: "sato closes early on sundays", Importance: "low"},
			{Content: "festival next week", Importance: "medium"},
			{Content: "sato's birthday is tomorrow", Importance: "high"},
			{Content: "weird grading", Importance: "critical"},
		},
	}, finishedSession(), world.NPCDynamic{Mood: world.MoodNeutral}, 5)

	require.Len(t, res.Memories, 4)
	assert.Equal(t, 5, res.Memories[0].ExpiresDay)
	assert.Equal(t, 6, res.Memories[1].ExpiresDay)
	assert.Equal(t, 7, res.Memories[2].ExpiresDay)
	assert.Equal(t, world.ImportanceLow, res.Memories[3].Importance, "unknown grades demote to low")
	assert.Equal(t, 5, res.Memories[3].ExpiresDay)

	for _, mem := range res.Memories {
		assert.NotEmpty(t, mem.ID)
		assert.Equal(t, "alice", mem.CharacterID)
		assert.Equal(t, "sato", mem.SourceNpcID)
		assert.Equal(t, 5, mem.CreatedDay)
	}

	assert.Equal(t, "talked about dinner", res.Summary.Summary)
	assert.True(t, res.Summary.GoalAchieved)
	assert.Equal(t, []string{"dinner"}, res.Summary.Topics)
}

// scheduleReviser returns a canned set of plan changes and records the
// prompt it was given.
type scheduleReviser struct {
	changes []llm.ScheduleChange
	err     error
	prompt  string
}

func (c *scheduleReviser) Available() bool { return true }

func (c *scheduleReviser) GenerateObject(_ context.Context, _, user string, _ llm.Schema, out any) error {
	c.prompt = user
	if c.err != nil {
		return c.err
	}
	upd, ok := out.(*llm.ScheduleUpdate)
	if !ok {
		return fmt.Errorf("unexpected output type %T", out)
	}
	upd.Changes = append([]llm.ScheduleChange(nil), c.changes...)
	return nil
}

func TestReviseScheduleWithoutClientKeepsPlan(t *testing.T) {
	p := NewPostProcessor(nil, store.NewMemory())
	got := p.ReviseSchedule(context.Background(), finishedSession(), "summary",
		[]world.ScheduleEntry{{Time: "18:00", Activity: "rest"}},
		world.WorldTime{Hour: 12, Day: 1})
	assert.Nil(t, got)
}

func TestReviseScheduleReturnsProposedChanges(t *testing.T) {
	client := &scheduleReviser{changes: []llm.ScheduleChange{
		{Op: "add", Time: "19:00", Activity: "eat", MapID: "town", NodeID: "town-1-1"},
		{Op: "remove", Time: "18:00", Activity: "rest"},
	}}
	p := NewPostProcessor(client, store.NewMemory())

	got := p.ReviseSchedule(context.Background(), finishedSession(), "agreed to dinner at seven",
		[]world.ScheduleEntry{
			{Time: "09:00", Activity: "work", Done: true},
			{Time: "18:00", Activity: "rest"},
		},
		world.WorldTime{Hour: 12, Minute: 30, Day: 1})

	require.Len(t, got, 2)
	assert.Equal(t, "add", got[0].Op)
	assert.Equal(t, "19:00", got[0].Time)

	// Finished entries stay out of the prompt; the pending one is listed.
	assert.NotContains(t, client.prompt, "09:00")
	assert.Contains(t, client.prompt, "18:00 rest")
	assert.Contains(t, client.prompt, "agreed to dinner at seven")
}

func TestReviseScheduleFailureKeepsPlan(t *testing.T) {
	client := &scheduleReviser{err: fmt.Errorf("backend unreachable")}
	p := NewPostProcessor(client, store.NewMemory())
	got := p.ReviseSchedule(context.Background(), finishedSession(), "summary", nil,
		world.WorldTime{Hour: 12, Day: 1})
	assert.Nil(t, got)
}

func TestPersistWritesEverything(t *testing.T) {
	st := store.NewMemory()
	p := NewPostProcessor(nil, st)
	ctx := context.Background()

	res := p.Apply(llm.ConversationExtraction{
		Summary:        "short chat",
		AffinityChange: 5,
		Facts:          []string{"likes rain"},
		Mood:           "happy",
		Memories:       []llm.ExtractedMemory{{Content: "umbrella shop", Importance: "low"}},
	}, finishedSession(), world.NPCDynamic{Mood: world.MoodNeutral}, 2)
	p.Persist(ctx, "sato", res)

	npcs, err := st.LoadNPCs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, npcs["sato"].Affinity)
	assert.Equal(t, world.MoodHappy, npcs["sato"].Mood)

	sums, err := st.RecentSummaries(ctx, "alice", "sato", 5)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "short chat", sums[0].Summary)

	mems, err := st.ActiveMemories(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "umbrella shop", mems[0].Content)
}
