package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorld(t *testing.T) *WorldState {
	t.Helper()
	town := &Map{ID: "town", TileSize: 32, SpawnNodeID: "town-0-0"}
	town.BuildGrid("town", 3, 3)

	alice := &Character{
		ID: "alice", Name: "Alice", Money: 500,
		Satiety: 80, Energy: 80, Hygiene: 80, Mood: 80, Bladder: 80,
		CurrentMapID: "town", CurrentNodeID: "town-0-0",
		Position: town.Node("town-0-0").Pos(), Direction: DirDown,
	}
	bob := &Character{
		ID: "bob", Name: "Bob", Money: 100,
		Satiety: 50, Energy: 50, Hygiene: 50, Mood: 50, Bladder: 50,
		CurrentMapID: "town", CurrentNodeID: "town-2-2",
		Position: town.Node("town-2-2").Pos(), Direction: DirDown,
	}
	sato := &NPC{
		ID: "sato", Name: "Sato", MapID: "town", NodeID: "town-1-2",
		Position: town.Node("town-1-2").Pos(), Direction: DirDown,
		Dynamic:  NPCDynamic{Mood: MoodNeutral},
	}
	return NewWorldState(map[string]*Map{"town": town}, []*Character{alice, bob}, []*NPC{sato})
}

func TestBeginNavigationRequiresPathFromCurrentNode(t *testing.T) {
	ws := testWorld(t)

	assert.False(t, ws.BeginNavigation("alice", []string{"town-1-0", "town-2-0"}))
	assert.False(t, ws.BeginNavigation("alice", []string{"town-0-0"}), "single node is not a path")

	require.True(t, ws.BeginNavigation("alice", []string{"town-0-0", "town-1-0"}))
	c := ws.Character("alice")
	assert.True(t, c.Navigation.IsMoving)
	assert.Equal(t, DirRight, c.Direction)
	assert.Equal(t, Position{X: 32, Y: 0}, c.Navigation.TargetPosition)
}

func TestStopNavigationSnapsToNearestNode(t *testing.T) {
	ws := testWorld(t)
	require.True(t, ws.BeginNavigation("alice", []string{"town-0-0", "town-1-0"}))

	c := ws.Character("alice")
	c.Position = Position{X: 30, Y: 0} // almost at town-1-0
	c.CrossMapNav = CrossMapNav{IsActive: true}
	ws.StopNavigation("alice")

	assert.False(t, c.Navigation.IsMoving)
	assert.False(t, c.CrossMapNav.IsActive)
	assert.Equal(t, "town-1-0", c.CurrentNodeID)
	assert.Equal(t, Position{X: 32, Y: 0}, c.Position)
}

func TestPlaceCharacterRejectsUnknownNode(t *testing.T) {
	ws := testWorld(t)
	assert.False(t, ws.PlaceCharacter("alice", "town", "nope"))
	assert.True(t, ws.PlaceCharacter("alice", "town", "town-1-1"))
	assert.Equal(t, "town-1-1", ws.Character("alice").CurrentNodeID)
}

func TestAdjustMoneyNeverGoesNegative(t *testing.T) {
	ws := testWorld(t)
	assert.True(t, ws.AdjustMoney("bob", -100))
	assert.Equal(t, 0, ws.Character("bob").Money)
	assert.False(t, ws.AdjustMoney("bob", -1))
	assert.Equal(t, 0, ws.Character("bob").Money)
	assert.True(t, ws.AdjustMoney("bob", 250))
	assert.Equal(t, 250, ws.Character("bob").Money)
}

func TestAdjustStatClamps(t *testing.T) {
	ws := testWorld(t)
	ws.AdjustStat("alice", "satiety", 50)
	assert.Equal(t, 100.0, ws.Character("alice").Satiety)
	ws.AdjustStat("alice", "energy", -200)
	assert.Equal(t, 0.0, ws.Character("alice").Energy)
}

func TestSetActionRejectsOverlap(t *testing.T) {
	ws := testWorld(t)
	require.True(t, ws.SetAction("alice", &ActionState{ActionID: "eat"}))
	assert.False(t, ws.SetAction("alice", &ActionState{ActionID: "sleep"}))

	ws.Character("alice").DisplayEmoji = "🍚"
	ws.ClearAction("alice")
	assert.Nil(t, ws.Character("alice").CurrentAction)
	assert.Empty(t, ws.Character("alice").DisplayEmoji)
	assert.True(t, ws.SetAction("alice", &ActionState{ActionID: "sleep"}))
}

func TestSetConversationMarksBothSides(t *testing.T) {
	ws := testWorld(t)
	ws.SetConversation("alice", "sato", true)
	assert.Equal(t, ConvoActive, ws.Character("alice").Conversation.Status)
	assert.Equal(t, "sato", ws.Character("alice").Conversation.NpcID)
	assert.True(t, ws.NPC("sato").IsInConversation)

	ws.SetConversation("alice", "sato", false)
	assert.Equal(t, ConvoIdle, ws.Character("alice").Conversation.Status)
	assert.False(t, ws.NPC("sato").IsInConversation)
}

func TestUpdateNPCDynamicClampsAndValidates(t *testing.T) {
	ws := testWorld(t)
	ws.UpdateNPCDynamic("sato", NPCDynamic{Affinity: 150, Mood: "grumpy"})

	d := ws.NPC("sato").Dynamic
	assert.Equal(t, 100, d.Affinity)
	assert.Equal(t, MoodNeutral, d.Mood, "invalid mood keeps the previous one")

	ws.UpdateNPCDynamic("sato", NPCDynamic{Affinity: -300, Mood: MoodAngry})
	d = ws.NPC("sato").Dynamic
	assert.Equal(t, -100, d.Affinity)
	assert.Equal(t, MoodAngry, d.Mood)
}

func TestOccupiedNodes(t *testing.T) {
	ws := testWorld(t)
	blocked := ws.OccupiedNodes("town", "alice")
	assert.Equal(t, map[string]bool{"town-2-2": true, "town-1-2": true}, blocked)
}

func TestRestoreCharacters(t *testing.T) {
	ws := testWorld(t)
	rows := []*Character{
		{
			ID: "alice", Money: 900,
			Satiety: 120, Energy: -5, Hygiene: 40, Mood: 60, Bladder: 30,
			CurrentMapID: "town", CurrentNodeID: "town-2-0", Direction: DirLeft,
			Navigation: NavigationState{IsMoving: true},
		},
		{
			ID: "bob", Money: 10,
			CurrentMapID: "town", CurrentNodeID: "gone",
		},
		{ID: "ghost", Money: 1},
	}
	ws.RestoreCharacters(rows)

	a := ws.Character("alice")
	assert.Equal(t, 900, a.Money)
	assert.Equal(t, 100.0, a.Satiety)
	assert.Equal(t, 0.0, a.Energy)
	assert.Equal(t, "town-2-0", a.CurrentNodeID)
	assert.Equal(t, Position{X: 64, Y: 0}, a.Position)
	assert.Equal(t, DirLeft, a.Direction)
	assert.False(t, a.Navigation.IsMoving, "runtime state resets on restore")

	b := ws.Character("bob")
	assert.Equal(t, 10, b.Money)
	assert.Equal(t, "town-2-2", b.CurrentNodeID, "unknown node keeps the seeded position")

	assert.Nil(t, ws.Character("ghost"))
}

func TestTakeSnapshotDeepCopies(t *testing.T) {
	ws := testWorld(t)
	ws.SetTime(WorldTime{Hour: 9, Minute: 5, Day: 2})
	require.True(t, ws.SetAction("alice", &ActionState{ActionID: "eat", DurationMinutes: 30}))
	ws.SetConversation("bob", "sato", true)

	snap := ws.TakeSnapshot()
	assert.Equal(t, "09:05", snap.TimeDisplay)
	require.Len(t, snap.Characters, 2)
	assert.Equal(t, "alice", snap.Characters[0].ID)
	assert.Equal(t, "eat", snap.Characters[0].CurrentAction.ActionID)
	assert.True(t, snap.Characters[1].InConversation)
	require.Len(t, snap.NPCs, 1)
	assert.True(t, snap.NPCs[0].IsInConversation)

	// Mutating the snapshot must not leak back into the world.
	snap.Characters[0].CurrentAction.ActionID = "hacked"
	snap.Characters[0].Stats["energy"] = -1
	assert.Equal(t, "eat", ws.Character("alice").CurrentAction.ActionID)
	assert.Equal(t, 80.0, ws.Character("alice").Energy)
}
