package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerOneSessionPerCharacter(t *testing.T) {
	m := NewManager()

	s, err := m.Start("alice", "sato", Goal{Goal: "ask about the festival"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, MaxTurns, s.MaxTurns)

	_, err = m.Start("alice", "tanaka", Goal{})
	assert.Error(t, err, "a character holds at most one session")

	_, err = m.Start("bob", "sato", Goal{})
	assert.Error(t, err, "a busy npc rejects a second session")
	assert.True(t, m.NPCBusy("sato"))

	_, err = m.Start("bob", "tanaka", Goal{})
	assert.NoError(t, err)
}

func TestManagerEndFreesBothSides(t *testing.T) {
	m := NewManager()
	_, err := m.Start("alice", "sato", Goal{})
	require.NoError(t, err)

	final, err := m.End("alice", true)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.True(t, final.GoalAchieved)

	assert.Nil(t, m.Active("alice"))
	assert.False(t, m.NPCBusy("sato"))

	_, err = m.End("alice", false)
	assert.Error(t, err)

	_, err = m.Start("alice", "sato", Goal{})
	assert.NoError(t, err)
}

func TestManagerTurnCounting(t *testing.T) {
	m := NewManager()
	_, err := m.Start("alice", "sato", Goal{})
	require.NoError(t, err)

	s, err := m.AddMessage("alice", SpeakerCharacter, "konnichiwa")
	require.NoError(t, err)
	assert.Equal(t, 0, s.CurrentTurn, "an unanswered opening is not a full turn")

	s, err = m.AddMessage("alice", SpeakerNPC, "irasshai")
	require.NoError(t, err)
	assert.Equal(t, 1, s.CurrentTurn)

	s, err = m.AddMessage("alice", SpeakerCharacter, "genki?")
	require.NoError(t, err)
	assert.Equal(t, 1, s.CurrentTurn)
	assert.Len(t, s.Messages, 3)

	_, err = m.AddMessage("bob", SpeakerCharacter, "no session")
	assert.Error(t, err)
}

func TestManagerActiveReturnsIsolatedCopy(t *testing.T) {
	m := NewManager()
	_, err := m.Start("alice", "sato", Goal{})
	require.NoError(t, err)
	_, err = m.AddMessage("alice", SpeakerCharacter, "hello")
	require.NoError(t, err)

	s := m.Active("alice")
	require.NotNil(t, s)
	s.Messages[0].Text = "tampered"
	s.Status = StatusCompleted

	again := m.Active("alice")
	assert.Equal(t, "hello", again.Messages[0].Text)
	assert.Equal(t, StatusActive, again.Status)
}
