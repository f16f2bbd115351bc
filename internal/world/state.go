package world

import (
	"log/slog"
	"sort"
	"sync"
)

// WorldState is the authoritative in-memory state. All mutation happens on
// the engine goroutine; the read lock exists so API snapshot reads can run
// concurrently with the simulation.
type WorldState struct {
	mu sync.RWMutex

	maps       map[string]*Map
	characters map[string]*Character
	npcs       map[string]*NPC

	time         WorldTime
	currentMapID string
	paused       bool
}

// NewWorldState assembles a world from loaded maps, characters, and NPCs.
func NewWorldState(maps map[string]*Map, chars []*Character, npcs []*NPC) *WorldState {
	ws := &WorldState{
		maps:       maps,
		characters: make(map[string]*Character, len(chars)),
		npcs:       make(map[string]*NPC, len(npcs)),
	}
	for _, c := range chars {
		ws.characters[c.ID] = c
	}
	for _, n := range npcs {
		ws.npcs[n.ID] = n
	}
	for id := range maps {
		if ws.currentMapID == "" || id < ws.currentMapID {
			ws.currentMapID = id
		}
	}
	return ws
}

// RLock takes the read lock for snapshot assembly.
func (ws *WorldState) RLock()   { ws.mu.RLock() }
func (ws *WorldState) RUnlock() { ws.mu.RUnlock() }

// Lock takes the write lock; the engine holds it across each tick step.
func (ws *WorldState) Lock()   { ws.mu.Lock() }
func (ws *WorldState) Unlock() { ws.mu.Unlock() }

// Map returns a map by id, or nil. Maps are immutable after load.
func (ws *WorldState) Map(id string) *Map { return ws.maps[id] }

// Maps returns the map registry. Callers must not mutate it.
func (ws *WorldState) Maps() map[string]*Map { return ws.maps }

// Character returns a character by id, or nil. Caller must hold the
// appropriate lock.
func (ws *WorldState) Character(id string) *Character { return ws.characters[id] }

// Characters returns all characters sorted by id.
func (ws *WorldState) Characters() []*Character {
	out := make([]*Character, 0, len(ws.characters))
	for _, c := range ws.characters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NPC returns an NPC by id, or nil.
func (ws *WorldState) NPC(id string) *NPC { return ws.npcs[id] }

// NPCs returns all NPCs sorted by id.
func (ws *WorldState) NPCs() []*NPC {
	out := make([]*NPC, 0, len(ws.npcs))
	for _, n := range ws.npcs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NPCsOnMap returns the NPCs on a map, sorted by id.
func (ws *WorldState) NPCsOnMap(mapID string) []*NPC {
	var out []*NPC
	for _, n := range ws.npcs {
		if n.MapID == mapID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Time returns the current world time.
func (ws *WorldState) Time() WorldTime { return ws.time }

// SetTime updates the world clock.
func (ws *WorldState) SetTime(t WorldTime) { ws.time = t }

// CurrentMapID is the map the observation camera follows.
func (ws *WorldState) CurrentMapID() string { return ws.currentMapID }

// SetCurrentMapID moves the observation camera.
func (ws *WorldState) SetCurrentMapID(id string) {
	if ws.maps[id] != nil {
		ws.currentMapID = id
	}
}

// Paused reports whether simulation mutation is suspended.
func (ws *WorldState) Paused() bool { return ws.paused }

// SetPaused toggles the pause flag.
func (ws *WorldState) SetPaused(p bool) { ws.paused = p }

// OccupiedNodes returns node ids on the map occupied by other characters
// or any NPC, used as pathfinding blockers.
func (ws *WorldState) OccupiedNodes(mapID, excludeCharacterID string) map[string]bool {
	out := make(map[string]bool)
	for _, c := range ws.characters {
		if c.ID == excludeCharacterID || c.CurrentMapID != mapID {
			continue
		}
		if c.CurrentNodeID != "" {
			out[c.CurrentNodeID] = true
		}
	}
	for _, n := range ws.npcs {
		if n.MapID == mapID && n.NodeID != "" {
			out[n.NodeID] = true
		}
	}
	return out
}

// PlaceCharacter sets a character's map, node, and snapped position.
func (ws *WorldState) PlaceCharacter(characterID, mapID, nodeID string) bool {
	c := ws.characters[characterID]
	m := ws.maps[mapID]
	if c == nil || m == nil {
		return false
	}
	n := m.Node(nodeID)
	if n == nil {
		slog.Warn("place rejected, unknown node",
			"character", characterID, "map", mapID, "node", nodeID)
		return false
	}
	c.CurrentMapID = mapID
	c.CurrentNodeID = nodeID
	c.Position = n.Pos()
	return true
}

// BeginNavigation starts in-map movement along a path of node ids. The
// path must start at the character's current node and hold at least two
// nodes.
func (ws *WorldState) BeginNavigation(characterID string, path []string) bool {
	c := ws.characters[characterID]
	if c == nil || len(path) < 2 {
		return false
	}
	if path[0] != c.CurrentNodeID {
		slog.Warn("navigation rejected, path does not start at current node",
			"character", characterID, "pathStart", path[0], "node", c.CurrentNodeID)
		return false
	}
	m := ws.maps[c.CurrentMapID]
	if m == nil {
		return false
	}
	next := m.Node(path[1])
	if next == nil {
		return false
	}
	c.Navigation = NavigationState{
		IsMoving:         true,
		Path:             path,
		CurrentPathIndex: 0,
		Progress:         0,
		StartPosition:    c.Position,
		TargetPosition:   next.Pos(),
	}
	c.Direction = DirectionFrom(c.Position, next.Pos())
	return true
}

// StopNavigation halts movement in place, snapping to the nearest node.
func (ws *WorldState) StopNavigation(characterID string) {
	c := ws.characters[characterID]
	if c == nil || !c.Navigation.IsMoving {
		return
	}
	c.Navigation = NavigationState{}
	c.CrossMapNav = CrossMapNav{}
	if m := ws.maps[c.CurrentMapID]; m != nil {
		if n := m.NearestNode(c.Position); n != nil {
			c.CurrentNodeID = n.ID
			c.Position = n.Pos()
		}
	}
}

// BeginTransition starts the fade-out phase of a map change.
func (ws *WorldState) BeginTransition(characterID, toMapID, toNodeID string) bool {
	c := ws.characters[characterID]
	if c == nil {
		return false
	}
	target := ws.maps[toMapID]
	if target == nil || target.Node(toNodeID) == nil {
		slog.Warn("transition rejected, unknown destination",
			"character", characterID, "map", toMapID, "node", toNodeID)
		return false
	}
	c.Navigation = NavigationState{}
	c.Transition = TransitionState{
		Phase:     PhaseFadeOut,
		Progress:  0,
		FromMapID: c.CurrentMapID,
		ToMapID:   toMapID,
		ToNodeID:  toNodeID,
	}
	return true
}

// SetAction installs the character's current action.
func (ws *WorldState) SetAction(characterID string, a *ActionState) bool {
	c := ws.characters[characterID]
	if c == nil {
		return false
	}
	if c.CurrentAction != nil && a != nil {
		slog.Warn("action rejected, another action active",
			"character", characterID, "active", c.CurrentAction.ActionID, "requested", a.ActionID)
		return false
	}
	c.CurrentAction = a
	return true
}

// ClearAction removes the current action and display emoji.
func (ws *WorldState) ClearAction(characterID string) {
	if c := ws.characters[characterID]; c != nil {
		c.CurrentAction = nil
		c.DisplayEmoji = ""
	}
}

// AdjustStat applies a delta to one status bar, clamped.
func (ws *WorldState) AdjustStat(characterID, stat string, delta float64) {
	if c := ws.characters[characterID]; c != nil {
		c.SetStat(stat, c.Stat(stat)+delta)
	}
}

// AdjustMoney changes a character's money; balances never go negative.
func (ws *WorldState) AdjustMoney(characterID string, delta int) bool {
	c := ws.characters[characterID]
	if c == nil {
		return false
	}
	if c.Money+delta < 0 {
		return false
	}
	c.Money += delta
	return true
}

// SetConversation marks both sides of a conversation session.
func (ws *WorldState) SetConversation(characterID, npcID string, active bool) {
	if c := ws.characters[characterID]; c != nil {
		if active {
			c.Conversation = ConversationRef{Status: ConvoActive, NpcID: npcID}
		} else {
			c.Conversation = ConversationRef{}
		}
	}
	if n := ws.npcs[npcID]; n != nil {
		n.IsInConversation = active
	}
}

// UpdateNPCDynamic replaces an NPC's persisted dynamic state.
func (ws *WorldState) UpdateNPCDynamic(npcID string, d NPCDynamic) {
	if n := ws.npcs[npcID]; n != nil {
		d.Affinity = ClampAffinity(d.Affinity)
		if !ValidNPCMood(d.Mood) {
			d.Mood = n.Dynamic.Mood
		}
		n.Dynamic = d
	}
}

// FullState assembles the persistable snapshot. Caller holds a lock.
func (ws *WorldState) FullState() *FullState {
	return &FullState{
		Characters:   ws.Characters(),
		Time:         ws.time,
		CurrentMapID: ws.currentMapID,
	}
}

// RestoreCharacters overlays persisted rows onto the seeded characters.
// Persisted position fields win; runtime fields reset. Rows for unknown
// characters are ignored with a log line.
func (ws *WorldState) RestoreCharacters(rows []*Character) {
	for _, row := range rows {
		c := ws.characters[row.ID]
		if c == nil {
			slog.Warn("dropping persisted row for unknown character", "character", row.ID)
			continue
		}
		c.Money = row.Money
		c.Satiety = ClampStat(row.Satiety)
		c.Energy = ClampStat(row.Energy)
		c.Hygiene = ClampStat(row.Hygiene)
		c.Mood = ClampStat(row.Mood)
		c.Bladder = ClampStat(row.Bladder)
		c.Employment = row.Employment
		if len(row.Sprite) > 0 {
			c.Sprite = row.Sprite
		}
		if m := ws.maps[row.CurrentMapID]; m != nil && m.Node(row.CurrentNodeID) != nil {
			c.CurrentMapID = row.CurrentMapID
			c.CurrentNodeID = row.CurrentNodeID
			c.Position = m.Node(row.CurrentNodeID).Pos()
		}
		if row.Direction != "" {
			c.Direction = row.Direction
		}
		c.ResetRuntime()
	}
}
