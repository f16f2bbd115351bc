package world

import (
	"encoding/json"
	"fmt"
	"os"
)

// GridSpec asks the loader to generate a node lattice before applying the
// map's explicit nodes.
type GridSpec struct {
	Prefix string `json:"prefix"`
	Cols   int    `json:"cols"`
	Rows   int    `json:"rows"`
}

// MapBundle is the on-disk form of one map.
type MapBundle struct {
	Map  *Map      `json:"map"`
	Grid *GridSpec `json:"grid,omitempty"`
}

// CharacterSeed is a character's authored starting state, used when the
// store holds no row for it.
type CharacterSeed struct {
	Character       *Character      `json:"character"`
	DefaultSchedule []ScheduleEntry `json:"defaultSchedule,omitempty"`
}

// Bundle is the full authored world: maps, NPCs, and character seeds.
type Bundle struct {
	Maps       []*MapBundle     `json:"maps"`
	NPCs       []*NPC           `json:"npcs,omitempty"`
	Characters []*CharacterSeed `json:"characters,omitempty"`
	StartMapID string           `json:"startMapId,omitempty"`
}

// LoadBundle reads and validates a world bundle from a JSON file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	if len(b.Maps) == 0 {
		return nil, fmt.Errorf("bundle %s: no maps", path)
	}
	maps := make(map[string]*Map, len(b.Maps))
	for _, mb := range b.Maps {
		if mb.Map == nil || mb.Map.ID == "" {
			return nil, fmt.Errorf("bundle %s: map without id", path)
		}
		if mb.Grid != nil {
			// Explicit nodes layer on top of the generated lattice.
			explicit := mb.Map.Nodes
			mb.Map.Nodes = nil
			mb.Map.BuildGrid(mb.Grid.Prefix, mb.Grid.Cols, mb.Grid.Rows)
			for id, n := range explicit {
				if n.ID == "" {
					n.ID = id
				}
				mb.Map.Nodes[n.ID] = n
			}
		}
		maps[mb.Map.ID] = mb.Map
	}
	for _, m := range maps {
		if err := m.Validate(maps); err != nil {
			return nil, err
		}
	}
	for _, npc := range b.NPCs {
		m, ok := maps[npc.MapID]
		if !ok {
			return nil, fmt.Errorf("npc %s: unknown map %s", npc.ID, npc.MapID)
		}
		n := m.Node(npc.NodeID)
		if n == nil {
			return nil, fmt.Errorf("npc %s: unknown node %s/%s", npc.ID, npc.MapID, npc.NodeID)
		}
		npc.Position = n.Pos()
		if npc.Dynamic.Mood == "" {
			npc.Dynamic.Mood = MoodNeutral
		}
	}
	for _, cs := range b.Characters {
		c := cs.Character
		if c == nil || c.ID == "" {
			return nil, fmt.Errorf("bundle %s: character without id", path)
		}
		m, ok := maps[c.CurrentMapID]
		if !ok {
			return nil, fmt.Errorf("character %s: unknown map %s", c.ID, c.CurrentMapID)
		}
		if c.CurrentNodeID == "" {
			c.CurrentNodeID = m.SpawnNodeID
		}
		n := m.Node(c.CurrentNodeID)
		if n == nil {
			return nil, fmt.Errorf("character %s: unknown node %s/%s", c.ID, c.CurrentMapID, c.CurrentNodeID)
		}
		c.Position = n.Pos()
		if c.Direction == "" {
			c.Direction = DirDown
		}
	}
	return &b, nil
}

// MapsByID indexes the bundle's maps.
func (b *Bundle) MapsByID() map[string]*Map {
	out := make(map[string]*Map, len(b.Maps))
	for _, mb := range b.Maps {
		out[mb.Map.ID] = mb.Map
	}
	return out
}

// Seed returns the seed for a character id, or nil.
func (b *Bundle) Seed(characterID string) *CharacterSeed {
	for _, cs := range b.Characters {
		if cs.Character.ID == characterID {
			return cs
		}
	}
	return nil
}
