package world

import "encoding/json"

// CharacterView is the serialized per-character snapshot entry.
type CharacterView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Sprite        json.RawMessage `json:"sprite,omitempty"`
	Money         int             `json:"money"`
	Stats         map[string]float64 `json:"stats"`
	MapID         string          `json:"mapId"`
	NodeID        string          `json:"nodeId"`
	Position      Position        `json:"position"`
	Direction     Direction       `json:"direction"`
	IsMoving      bool            `json:"isMoving"`
	Transition    *TransitionState `json:"transition,omitempty"`
	CurrentAction *ActionState    `json:"currentAction,omitempty"`
	DisplayEmoji  string          `json:"displayEmoji,omitempty"`
	InConversation bool           `json:"inConversation"`
	ConversationNpcID string      `json:"conversationNpcId,omitempty"`
	Employment    *Employment     `json:"employment,omitempty"`
}

// NPCView is the serialized per-NPC snapshot entry.
type NPCView struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Sprite           json.RawMessage `json:"sprite,omitempty"`
	MapID            string          `json:"mapId"`
	NodeID           string          `json:"nodeId"`
	Position         Position        `json:"position"`
	Direction        Direction       `json:"direction"`
	Mood             NPCMood         `json:"mood"`
	Affinity         int             `json:"affinity"`
	IsInConversation bool            `json:"isInConversation"`
}

// Snapshot is the full observable world state pushed to clients.
type Snapshot struct {
	Time         WorldTime        `json:"time"`
	TimeDisplay  string           `json:"timeDisplay"`
	CurrentMapID string           `json:"currentMapId"`
	Paused       bool             `json:"paused"`
	Characters   []*CharacterView `json:"characters"`
	NPCs         []*NPCView       `json:"npcs"`
}

// TakeSnapshot deep-copies the observable state under the read lock.
func (ws *WorldState) TakeSnapshot() *Snapshot {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	snap := &Snapshot{
		Time:         ws.time,
		TimeDisplay:  ws.time.HHMM(),
		CurrentMapID: ws.currentMapID,
		Paused:       ws.paused,
	}
	for _, c := range ws.Characters() {
		v := &CharacterView{
			ID:     c.ID,
			Name:   c.Name,
			Sprite: append(json.RawMessage(nil), c.Sprite...),
			Money:  c.Money,
			Stats: map[string]float64{
				"satiety": c.Satiety,
				"bladder": c.Bladder,
				"energy":  c.Energy,
				"hygiene": c.Hygiene,
				"mood":    c.Mood,
			},
			MapID:          c.CurrentMapID,
			NodeID:         c.CurrentNodeID,
			Position:       c.Position,
			Direction:      c.Direction,
			IsMoving:       c.Navigation.IsMoving,
			DisplayEmoji:   c.DisplayEmoji,
			InConversation: c.Conversation.Status == ConvoActive,
			ConversationNpcID: c.Conversation.NpcID,
		}
		if c.Transition.Active() {
			t := c.Transition
			v.Transition = &t
		}
		if c.CurrentAction != nil {
			a := *c.CurrentAction
			v.CurrentAction = &a
		}
		if c.Employment != nil {
			e := *c.Employment
			v.Employment = &e
		}
		snap.Characters = append(snap.Characters, v)
	}
	for _, n := range ws.NPCs() {
		snap.NPCs = append(snap.NPCs, &NPCView{
			ID:               n.ID,
			Name:             n.Name,
			Sprite:           append(json.RawMessage(nil), n.Sprite...),
			MapID:            n.MapID,
			NodeID:           n.NodeID,
			Position:         n.Position,
			Direction:        n.Direction,
			Mood:             n.Dynamic.Mood,
			Affinity:         n.Dynamic.Affinity,
			IsInConversation: n.IsInConversation,
		})
	}
	return snap
}
