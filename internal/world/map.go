package world

import (
	"fmt"
	"sort"
)

// NodeType classifies navigation graph vertices.
type NodeType string

const (
	NodeWaypoint NodeType = "waypoint"
	NodeSpawn    NodeType = "spawn"
	NodeEntrance NodeType = "entrance"
)

// MapLink bridges an entrance node to a node on another map.
// Links are symmetric: the target entrance leads back here.
type MapLink struct {
	MapID  string `json:"mapId"`
	NodeID string `json:"nodeId"`
}

// Node is a vertex in a map's navigation graph.
type Node struct {
	ID          string   `json:"id"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Type        NodeType `json:"type"`
	ConnectedTo []string `json:"connectedTo,omitempty"`
	LeadsTo     *MapLink `json:"leadsTo,omitempty"`
	Label       string   `json:"label,omitempty"`
}

// Pos returns the node's pixel position.
func (n *Node) Pos() Position { return Position{X: n.X, Y: n.Y} }

// WorkHours is a facility job's daily window. Overnight shifts have
// Start > End and wrap around midnight.
type WorkHours struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether hour falls inside the window.
func (w WorkHours) Contains(hour int) bool {
	if w.Start > w.End {
		return hour >= w.Start || hour < w.End
	}
	return hour >= w.Start && hour < w.End
}

// Job is employment offered by a facility.
type Job struct {
	JobID      string    `json:"jobId"`
	Title      string    `json:"title"`
	HourlyWage int       `json:"hourlyWage"`
	WorkHours  WorkHours `json:"workHours"`
}

// Facility is a tagged region enabling certain actions. A non-empty Owner
// restricts it to that character; Cost is charged when an action starts.
type Facility struct {
	ID    string   `json:"id"`
	Tags  []string `json:"tags"`
	Owner string   `json:"owner,omitempty"`
	Cost  int      `json:"cost,omitempty"`
	Job   *Job     `json:"job,omitempty"`
}

// HasTag reports membership of tag in the facility's tag set.
func (f *Facility) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AccessibleBy applies the ownership and cost rules for a character.
func (f *Facility) AccessibleBy(characterID string, money int) bool {
	if f.Owner != "" && f.Owner != characterID {
		return false
	}
	if f.Cost > 0 && money < f.Cost {
		return false
	}
	return true
}

// ObstacleType distinguishes solid buildings from walled zones.
type ObstacleType string

const (
	ObstacleBuilding ObstacleType = "building"
	ObstacleZone     ObstacleType = "zone"
)

// WallSide names one edge of a zone.
type WallSide string

const (
	SideTop    WallSide = "top"
	SideBottom WallSide = "bottom"
	SideLeft   WallSide = "left"
	SideRight  WallSide = "right"
)

// Door is a single opening in a walled zone side, at a tile offset along
// that side.
type Door struct {
	Side   WallSide `json:"side"`
	Offset int      `json:"offset"`
}

// Obstacle is an axis-aligned tile region. Buildings subtract grid nodes
// entirely; zones keep their interior walkable but wall off sides, with
// door openings.
type Obstacle struct {
	ID        string       `json:"id"`
	Type      ObstacleType `json:"type"`
	TileX     int          `json:"tileX"`
	TileY     int          `json:"tileY"`
	TileW     int          `json:"tileW"`
	TileH     int          `json:"tileH"`
	WallSides []WallSide   `json:"wallSides,omitempty"`
	Doors     []Door       `json:"doors,omitempty"`
	Facility  *Facility    `json:"facility,omitempty"`
}

func (o *Obstacle) containsTile(tx, ty int) bool {
	return tx >= o.TileX && tx < o.TileX+o.TileW &&
		ty >= o.TileY && ty < o.TileY+o.TileH
}

func (o *Obstacle) walled(side WallSide) bool {
	for _, s := range o.WallSides {
		if s == side {
			return true
		}
	}
	return false
}

func (o *Obstacle) doorAt(side WallSide, offset int) bool {
	for _, d := range o.Doors {
		if d.Side == side && d.Offset == offset {
			return true
		}
	}
	return false
}

// Map is one room of the world: an immutable node graph plus obstacles.
type Map struct {
	ID              string           `json:"id"`
	Width           int              `json:"width"`  // tiles
	Height          int              `json:"height"` // tiles
	TileSize        float64          `json:"tileSize"`
	BackgroundColor string           `json:"backgroundColor,omitempty"`
	SpawnNodeID     string           `json:"spawnNodeId"`
	Nodes           map[string]*Node `json:"nodes"`
	Obstacles       []*Obstacle      `json:"obstacles,omitempty"`
}

// Node returns the node with the given id, or nil.
func (m *Map) Node(id string) *Node { return m.Nodes[id] }

// Neighbors returns the ids a node connects to, sorted for determinism.
func (m *Map) Neighbors(id string) []string {
	n := m.Nodes[id]
	if n == nil {
		return nil
	}
	out := make([]string, len(n.ConnectedTo))
	copy(out, n.ConnectedTo)
	sort.Strings(out)
	return out
}

// Entrances lists the map's entrance nodes, sorted by id.
func (m *Map) Entrances() []*Node {
	var out []*Node
	for _, n := range m.Nodes {
		if n.Type == NodeEntrance {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NearestNode returns the node closest to the position, ties broken by
// lexicographic id. Nil on an empty map.
func (m *Map) NearestNode(p Position) *Node {
	var best *Node
	bestDist := 0.0
	for _, n := range m.Nodes {
		d := p.DistanceTo(n.Pos())
		if best == nil || d < bestDist || (d == bestDist && n.ID < best.ID) {
			best = n
			bestDist = d
		}
	}
	return best
}

func (m *Map) tileSize() float64 {
	if m.TileSize <= 0 {
		return 32
	}
	return m.TileSize
}

func (m *Map) tileOf(n *Node) (int, int) {
	ts := m.tileSize()
	return int(n.X / ts), int(n.Y / ts)
}

// FacilitiesAt returns the facilities whose region contains the node's tile.
func (m *Map) FacilitiesAt(nodeID string) []*Facility {
	n := m.Nodes[nodeID]
	if n == nil {
		return nil
	}
	tx, ty := m.tileOf(n)
	var out []*Facility
	for _, o := range m.Obstacles {
		if o.Facility != nil && o.containsTile(tx, ty) {
			out = append(out, o.Facility)
		}
	}
	return out
}

// FindFacility returns an accessible facility carrying any of the tags,
// preferring one containing the character's current node.
func (m *Map) FindFacility(tags []string, characterID string, money int, atNodeID string) *Facility {
	match := func(f *Facility) bool {
		if !f.AccessibleBy(characterID, money) {
			return false
		}
		for _, t := range tags {
			if f.HasTag(t) {
				return true
			}
		}
		return false
	}
	if atNodeID != "" {
		for _, f := range m.FacilitiesAt(atNodeID) {
			if match(f) {
				return f
			}
		}
	}
	for _, o := range m.Obstacles {
		if o.Facility != nil && match(o.Facility) {
			return o.Facility
		}
	}
	return nil
}

// Facility returns the facility with the given id, or nil.
func (m *Map) Facility(id string) *Facility {
	for _, o := range m.Obstacles {
		if o.Facility != nil && o.Facility.ID == id {
			return o.Facility
		}
	}
	return nil
}

// FacilityNode returns a walkable node inside the facility's region,
// closest to the region's center tile. Nil when the facility is unknown
// or its region holds no nodes.
func (m *Map) FacilityNode(facilityID string) *Node {
	var region *Obstacle
	for _, o := range m.Obstacles {
		if o.Facility != nil && o.Facility.ID == facilityID {
			region = o
			break
		}
	}
	if region == nil {
		return nil
	}
	cx := region.TileX + region.TileW/2
	cy := region.TileY + region.TileH/2
	var best *Node
	bestDist := 0
	for _, n := range m.Nodes {
		tx, ty := m.tileOf(n)
		if !region.containsTile(tx, ty) {
			continue
		}
		d := abs(tx-cx) + abs(ty-cy)
		if best == nil || d < bestDist || (d == bestDist && n.ID < best.ID) {
			best = n
			bestDist = d
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// AreCardinalNeighbors reports whether two nodes sit on adjacent tiles
// along one axis. Talking to an NPC requires this adjacency.
func (m *Map) AreCardinalNeighbors(aID, bID string) bool {
	a, b := m.Nodes[aID], m.Nodes[bID]
	if a == nil || b == nil {
		return false
	}
	ax, ay := m.tileOf(a)
	bx, by := m.tileOf(b)
	dx, dy := abs(ax-bx), abs(ay-by)
	return (dx == 1 && dy == 0) || (dx == 0 && dy == 1)
}

// GridNodeID names a generated grid node: "<prefix>-<x>-<y>".
func GridNodeID(prefix string, x, y int) string {
	return fmt.Sprintf("%s-%d-%d", prefix, x, y)
}

// BuildGrid populates the map with a cols×rows lattice of waypoint nodes
// spaced one tile apart, 8-connected. Building obstacles subtract nodes;
// zone walls cut edges except through doors.
func (m *Map) BuildGrid(prefix string, cols, rows int) {
	if m.Nodes == nil {
		m.Nodes = make(map[string]*Node, cols*rows)
	}
	ts := m.tileSize()
	m.TileSize = ts

	blocked := func(tx, ty int) bool {
		for _, o := range m.Obstacles {
			if o.Type == ObstacleBuilding && o.containsTile(tx, ty) {
				return true
			}
		}
		return false
	}

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if blocked(x, y) {
				continue
			}
			id := GridNodeID(prefix, x, y)
			m.Nodes[id] = &Node{
				ID:   id,
				X:    float64(x) * ts,
				Y:    float64(y) * ts,
				Type: NodeWaypoint,
			}
		}
	}

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			n := m.Nodes[GridNodeID(prefix, x, y)]
			if n == nil {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nid := GridNodeID(prefix, x+dx, y+dy)
					if m.Nodes[nid] == nil {
						continue
					}
					if m.edgeBlocked(x, y, x+dx, y+dy) {
						continue
					}
					n.ConnectedTo = append(n.ConnectedTo, nid)
				}
			}
			sort.Strings(n.ConnectedTo)
		}
	}

	if m.Width == 0 {
		m.Width = cols
	}
	if m.Height == 0 {
		m.Height = rows
	}
}

// edgeBlocked reports whether a zone wall cuts the edge between adjacent
// tiles. A diagonal edge is blocked when any of its orthogonal
// decompositions crosses a wall.
func (m *Map) edgeBlocked(ax, ay, bx, by int) bool {
	dx, dy := bx-ax, by-ay
	if dx != 0 && dy != 0 {
		return m.edgeBlocked(ax, ay, bx, ay) || m.edgeBlocked(ax, ay, ax, by) ||
			m.edgeBlocked(bx, ay, bx, by) || m.edgeBlocked(ax, by, bx, by)
	}
	for _, o := range m.Obstacles {
		if o.Type != ObstacleZone || len(o.WallSides) == 0 {
			continue
		}
		aIn := o.containsTile(ax, ay)
		bIn := o.containsTile(bx, by)
		if aIn == bIn {
			continue
		}
		// Identify which zone wall the tile boundary corresponds to.
		var side WallSide
		var offset int
		switch {
		case dy != 0 && min(ay, by) == o.TileY-1:
			side, offset = SideTop, ax-o.TileX
		case dy != 0 && min(ay, by) == o.TileY+o.TileH-1:
			side, offset = SideBottom, ax-o.TileX
		case dx != 0 && min(ax, bx) == o.TileX-1:
			side, offset = SideLeft, ay-o.TileY
		case dx != 0 && min(ax, bx) == o.TileX+o.TileW-1:
			side, offset = SideRight, ay-o.TileY
		default:
			continue
		}
		if o.walled(side) && !o.doorAt(side, offset) {
			return true
		}
	}
	return false
}

// AddEntrance inserts or converts a node into an entrance carrying a
// cross-map link.
func (m *Map) AddEntrance(id string, x, y float64, leadsTo *MapLink) *Node {
	n := m.Nodes[id]
	if n == nil {
		n = &Node{ID: id, X: x, Y: y}
		if m.Nodes == nil {
			m.Nodes = make(map[string]*Node)
		}
		m.Nodes[id] = n
	}
	n.Type = NodeEntrance
	n.LeadsTo = leadsTo
	return n
}

// Connect adds a bidirectional edge between two nodes.
func (m *Map) Connect(aID, bID string) {
	a, b := m.Nodes[aID], m.Nodes[bID]
	if a == nil || b == nil {
		return
	}
	if !containsStr(a.ConnectedTo, bID) {
		a.ConnectedTo = append(a.ConnectedTo, bID)
		sort.Strings(a.ConnectedTo)
	}
	if !containsStr(b.ConnectedTo, aID) {
		b.ConnectedTo = append(b.ConnectedTo, aID)
		sort.Strings(b.ConnectedTo)
	}
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Validate checks structural invariants: edge targets exist, the spawn
// node exists, and entrance links are symmetric across maps.
func (m *Map) Validate(all map[string]*Map) error {
	if m.SpawnNodeID != "" && m.Nodes[m.SpawnNodeID] == nil {
		return fmt.Errorf("map %s: spawn node %q missing", m.ID, m.SpawnNodeID)
	}
	for _, n := range m.Nodes {
		for _, peer := range n.ConnectedTo {
			if m.Nodes[peer] == nil {
				return fmt.Errorf("map %s: node %s connects to missing node %s", m.ID, n.ID, peer)
			}
		}
		if n.LeadsTo != nil {
			target, ok := all[n.LeadsTo.MapID]
			if !ok {
				return fmt.Errorf("map %s: entrance %s leads to unknown map %s", m.ID, n.ID, n.LeadsTo.MapID)
			}
			peer := target.Nodes[n.LeadsTo.NodeID]
			if peer == nil {
				return fmt.Errorf("map %s: entrance %s leads to missing node %s/%s",
					m.ID, n.ID, n.LeadsTo.MapID, n.LeadsTo.NodeID)
			}
			if peer.LeadsTo == nil || peer.LeadsTo.MapID != m.ID || peer.LeadsTo.NodeID != n.ID {
				return fmt.Errorf("map %s: entrance link %s to %s/%s is not symmetric",
					m.ID, n.ID, n.LeadsTo.MapID, n.LeadsTo.NodeID)
			}
		}
	}
	return nil
}
