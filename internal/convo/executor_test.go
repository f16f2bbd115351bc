package convo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/lifesim/internal/llm"
)

// scriptedClient produces numbered utterances and reports the goal
// achieved from the given character turn onward. goalOn 0 means never.
type scriptedClient struct {
	mu        sync.Mutex
	calls     int
	charTurns int
	goalOn    int
}

func (c *scriptedClient) Available() bool { return true }

func (c *scriptedClient) GenerateObject(_ context.Context, _, _ string, _ llm.Schema, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	switch v := out.(type) {
	case *llm.CharacterUtterance:
		c.charTurns++
		v.Utterance = fmt.Sprintf("char line %d", c.charTurns)
		v.GoalAchieved = c.goalOn > 0 && c.charTurns >= c.goalOn
	case *llm.NPCUtterance:
		v.Utterance = "npc line"
	default:
		return fmt.Errorf("unexpected output type %T", out)
	}
	return nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func runSession(t *testing.T, client llm.Client, turnInterval time.Duration) (*Manager, *Executor, chan *Session, context.CancelFunc) {
	t.Helper()
	m := NewManager()
	_, err := m.Start("alice", "sato", Goal{Goal: "invite sato to dinner", SuccessCriteria: "sato says yes"})
	require.NoError(t, err)

	e := NewExecutor(m, client, turnInterval, time.Second)
	results := make(chan *Session, 1)
	e.OnResult = func(s *Session) { results <- s }

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, e.Run(ctx, "alice", Participants{CharacterName: "Alice", NpcName: "Sato"}))
	return m, e, results, cancel
}

func waitResult(t *testing.T, results chan *Session) *Session {
	t.Helper()
	select {
	case s := <-results:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("conversation did not finish in time")
		return nil
	}
}

func TestGoalNeedsAnNPCReplyFirst(t *testing.T) {
	client := &scriptedClient{goalOn: 1}
	m, _, results, cancel := runSession(t, client, 0)
	defer cancel()

	s := waitResult(t, results)
	assert.True(t, s.GoalAchieved)
	assert.Equal(t, StatusCompleted, s.Status)

	// Opening line, NPC reply, then the goal-closing line: three calls.
	assert.Equal(t, 3, client.callCount())
	require.Len(t, s.Messages, 3)
	assert.Equal(t, SpeakerCharacter, s.Messages[0].Speaker)
	assert.Equal(t, SpeakerNPC, s.Messages[1].Speaker)
	assert.Equal(t, SpeakerCharacter, s.Messages[2].Speaker)
	assert.Equal(t, 1, s.CurrentTurn)
	assert.Nil(t, m.Active("alice"))
}

func TestConversationStopsAtMaxTurns(t *testing.T) {
	client := &scriptedClient{}
	m, _, results, cancel := runSession(t, client, 0)
	defer cancel()

	s := waitResult(t, results)
	assert.False(t, s.GoalAchieved)
	assert.Equal(t, MaxTurns, s.CurrentTurn)
	assert.Len(t, s.Messages, 2*MaxTurns)
	assert.Equal(t, 2*MaxTurns, client.callCount())
	assert.False(t, m.NPCBusy("sato"))
}

func TestDisabledClientEndsAfterFallbackExchange(t *testing.T) {
	m, _, results, cancel := runSession(t, llm.Disabled{}, 0)
	defer cancel()

	s := waitResult(t, results)
	assert.False(t, s.GoalAchieved)
	assert.Equal(t, StatusCompleted, s.Status)
	require.Len(t, s.Messages, 2, "one fallback exchange, then the conversation ends")
	assert.Equal(t, characterFallback, s.Messages[0].Text)
	assert.Equal(t, npcFallback, s.Messages[1].Text)
	assert.Equal(t, 1, s.CurrentTurn)
	assert.False(t, m.NPCBusy("sato"))
}

// failingClient claims availability but every call errors, as when the
// backing service is down mid-conversation.
type failingClient struct{}

func (failingClient) Available() bool { return true }

func (failingClient) GenerateObject(context.Context, string, string, llm.Schema, any) error {
	return fmt.Errorf("backend unreachable")
}

func TestErroringClientEndsAfterFallbackExchange(t *testing.T) {
	_, _, results, cancel := runSession(t, failingClient{}, 0)
	defer cancel()

	s := waitResult(t, results)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, characterFallback, s.Messages[0].Text)
	assert.Equal(t, npcFallback, s.Messages[1].Text)
	assert.Equal(t, StatusCompleted, s.Status)
}

func TestOnMessageSeesEveryUtterance(t *testing.T) {
	client := &scriptedClient{goalOn: 1}
	m := NewManager()
	_, err := m.Start("alice", "sato", Goal{Goal: "invite sato to dinner"})
	require.NoError(t, err)

	e := NewExecutor(m, client, 0, time.Second)
	results := make(chan *Session, 1)
	e.OnResult = func(s *Session) { results <- s }

	var mu sync.Mutex
	type emitted struct {
		npcID   string
		speaker Speaker
		text    string
	}
	var seen []emitted
	e.OnMessage = func(characterID, npcID string, msg Message) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "alice", characterID)
		seen = append(seen, emitted{npcID: npcID, speaker: msg.Speaker, text: msg.Text})
	}

	require.True(t, e.Run(context.Background(), "alice", Participants{CharacterName: "Alice", NpcName: "Sato"}))
	s := waitResult(t, results)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, len(s.Messages))
	for i, msg := range s.Messages {
		assert.Equal(t, "sato", seen[i].npcID)
		assert.Equal(t, msg.Speaker, seen[i].speaker)
		assert.Equal(t, msg.Text, seen[i].text)
	}
}

func TestRunRejectsDuplicateLoop(t *testing.T) {
	client := &scriptedClient{}
	// A huge turn interval keeps the loop parked after the first turn.
	_, e, results, cancel := runSession(t, client, time.Hour)

	assert.Eventually(t, func() bool { return client.callCount() >= 2 }, 5*time.Second, time.Millisecond)
	assert.False(t, e.Run(context.Background(), "alice", Participants{}))

	// Cancelling the loop context ends the session cleanly.
	cancel()
	s := waitResult(t, results)
	assert.False(t, s.GoalAchieved)
	assert.Equal(t, StatusCompleted, s.Status)
}
