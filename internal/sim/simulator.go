package sim

import (
	"log/slog"

	"github.com/talgya/lifesim/internal/config"
	"github.com/talgya/lifesim/internal/pathfind"
	"github.com/talgya/lifesim/internal/world"
)

// transitionRate is the fade progress per second; a full fade-out or
// fade-in takes half a second.
const transitionRate = 2.0

// Simulator advances character movement and map transitions each tick.
type Simulator struct {
	cfg *config.Config
	ws  *world.WorldState

	// OnNavigationComplete fires when a character reaches its final
	// destination, including the last segment of a cross-map route.
	OnNavigationComplete func(characterID string)
}

// NewSimulator builds a Simulator.
func NewSimulator(cfg *config.Config, ws *world.WorldState) *Simulator {
	return &Simulator{cfg: cfg, ws: ws}
}

// Tick advances movement and transitions by dt seconds.
func (s *Simulator) Tick(dt float64) {
	for _, c := range s.ws.Characters() {
		if c.Transition.Active() {
			s.tickTransition(c, dt)
			continue
		}
		if c.Navigation.IsMoving {
			s.tickMovement(c, dt)
		}
	}
}

// tickMovement interpolates along the current path segment and advances
// to the next node on completion.
func (s *Simulator) tickMovement(c *world.Character, dt float64) {
	m := s.ws.Map(c.CurrentMapID)
	if m == nil {
		s.ws.StopNavigation(c.ID)
		return
	}
	nav := &c.Navigation
	remaining := dt * s.cfg.MovementSpeed

	for remaining > 0 && nav.IsMoving {
		segment := nav.StartPosition.DistanceTo(nav.TargetPosition)
		if segment <= 0 {
			s.arriveAtNode(c, m)
			continue
		}
		step := remaining / segment
		nav.Progress += step
		if nav.Progress < 1 {
			c.Position = lerp(nav.StartPosition, nav.TargetPosition, nav.Progress)
			c.Direction = world.DirectionFrom(nav.StartPosition, nav.TargetPosition)
			return
		}
		// Consume the remainder of this segment and carry the rest over.
		remaining = (nav.Progress - 1) * segment
		s.arriveAtNode(c, m)
	}
}

// arriveAtNode snaps to the segment's end node and either starts the
// next segment or completes the path.
func (s *Simulator) arriveAtNode(c *world.Character, m *world.Map) {
	nav := &c.Navigation
	nav.CurrentPathIndex++
	nodeID := nav.Path[nav.CurrentPathIndex]
	node := m.Node(nodeID)
	if node == nil {
		slog.Warn("path node vanished, stopping", "character", c.ID, "node", nodeID)
		s.ws.StopNavigation(c.ID)
		return
	}
	c.CurrentNodeID = nodeID
	c.Position = node.Pos()

	if nav.CurrentPathIndex < len(nav.Path)-1 {
		next := m.Node(nav.Path[nav.CurrentPathIndex+1])
		if next == nil {
			slog.Warn("path node vanished, stopping", "character", c.ID, "node", nav.Path[nav.CurrentPathIndex+1])
			s.ws.StopNavigation(c.ID)
			return
		}
		nav.StartPosition = c.Position
		nav.TargetPosition = next.Pos()
		nav.Progress = 0
		c.Direction = world.DirectionFrom(nav.StartPosition, nav.TargetPosition)
		return
	}

	// Path finished.
	c.Navigation = world.NavigationState{}
	s.pathFinished(c)
}

// pathFinished handles arrival at the end of an in-map path: bridge into
// the next route segment, transit through an entrance, or report
// completion.
func (s *Simulator) pathFinished(c *world.Character) {
	if c.CrossMapNav.IsActive {
		seg := c.CrossMapNav.Route[c.CrossMapNav.CurrentSegmentIndex]
		if seg.ExitEntranceID != "" && seg.ExitEntranceID == c.CurrentNodeID {
			m := s.ws.Map(c.CurrentMapID)
			entrance := m.Node(seg.ExitEntranceID)
			if entrance == nil || entrance.LeadsTo == nil {
				slog.Warn("route entrance lost its link, aborting route",
					"character", c.ID, "entrance", seg.ExitEntranceID)
				c.CrossMapNav = world.CrossMapNav{}
				s.complete(c.ID)
				return
			}
			s.ws.BeginTransition(c.ID, entrance.LeadsTo.MapID, entrance.LeadsTo.NodeID)
			return
		}
		// Final segment done.
		c.CrossMapNav = world.CrossMapNav{}
		s.complete(c.ID)
		return
	}

	// A plain walk that ends on an entrance still transits through it.
	if m := s.ws.Map(c.CurrentMapID); m != nil {
		if node := m.Node(c.CurrentNodeID); node != nil && node.LeadsTo != nil {
			if s.ws.BeginTransition(c.ID, node.LeadsTo.MapID, node.LeadsTo.NodeID) {
				return
			}
		}
	}
	s.complete(c.ID)
}

// tickTransition advances the fade FSM: fadeOut → teleport → fadeIn.
func (s *Simulator) tickTransition(c *world.Character, dt float64) {
	t := &c.Transition
	t.Progress += transitionRate * dt
	if t.Progress < 1 {
		return
	}
	switch t.Phase {
	case world.PhaseFadeOut:
		if !s.ws.PlaceCharacter(c.ID, t.ToMapID, t.ToNodeID) {
			slog.Warn("transition target vanished", "character", c.ID, "map", t.ToMapID, "node", t.ToNodeID)
			c.Transition = world.TransitionState{}
			c.CrossMapNav = world.CrossMapNav{}
			s.complete(c.ID)
			return
		}
		carry := t.Progress - 1
		c.Transition = world.TransitionState{
			Phase:     world.PhaseFadeIn,
			Progress:  carry,
			FromMapID: t.FromMapID,
			ToMapID:   t.ToMapID,
			ToNodeID:  t.ToNodeID,
		}
	case world.PhaseFadeIn:
		c.Transition = world.TransitionState{}
		s.resumeRoute(c)
	}
}

// resumeRoute continues a cross-map route after a fade-in: start the next
// segment's path, chain straight into another transit, or finish.
func (s *Simulator) resumeRoute(c *world.Character) {
	if !c.CrossMapNav.IsActive {
		s.complete(c.ID)
		return
	}
	c.CrossMapNav.CurrentSegmentIndex++
	if c.CrossMapNav.CurrentSegmentIndex >= len(c.CrossMapNav.Route) {
		c.CrossMapNav = world.CrossMapNav{}
		s.complete(c.ID)
		return
	}
	seg := c.CrossMapNav.Route[c.CrossMapNav.CurrentSegmentIndex]
	if len(seg.Path) >= 2 {
		if !s.ws.BeginNavigation(c.ID, seg.Path) {
			slog.Warn("route segment rejected, aborting route", "character", c.ID, "map", seg.MapID)
			c.CrossMapNav = world.CrossMapNav{}
			s.complete(c.ID)
		}
		return
	}
	// Single-node segment: the arrival node is itself the exit.
	if seg.ExitEntranceID != "" && seg.ExitEntranceID == c.CurrentNodeID {
		m := s.ws.Map(c.CurrentMapID)
		entrance := m.Node(seg.ExitEntranceID)
		if entrance != nil && entrance.LeadsTo != nil {
			s.ws.BeginTransition(c.ID, entrance.LeadsTo.MapID, entrance.LeadsTo.NodeID)
			return
		}
	}
	c.CrossMapNav = world.CrossMapNav{}
	s.complete(c.ID)
}

func (s *Simulator) complete(characterID string) {
	if s.OnNavigationComplete != nil {
		s.OnNavigationComplete(characterID)
	}
}

// NavigateToNode starts in-map movement to a node. Returns true when
// movement began or the character already stands there; false when the
// character is mid-move or no path exists.
func (s *Simulator) NavigateToNode(characterID, nodeID string) bool {
	c := s.ws.Character(characterID)
	if c == nil {
		return false
	}
	if c.Navigation.IsMoving || c.Transition.Active() {
		return false
	}
	if c.CurrentNodeID == nodeID {
		s.complete(characterID)
		return true
	}
	m := s.ws.Map(c.CurrentMapID)
	blocked := s.ws.OccupiedNodes(c.CurrentMapID, characterID)
	path := pathfind.FindPath(m, c.CurrentNodeID, nodeID, blocked)
	if path == nil {
		return false
	}
	return s.ws.BeginNavigation(characterID, path)
}

// NavigateToMap starts a cross-map route. The empty nodeID targets the
// destination map's spawn node. Returns true when the route began or the
// character is already at the destination.
func (s *Simulator) NavigateToMap(characterID, mapID, nodeID string) bool {
	c := s.ws.Character(characterID)
	if c == nil {
		return false
	}
	if c.Navigation.IsMoving || c.Transition.Active() {
		return false
	}
	target := s.ws.Map(mapID)
	if target == nil {
		return false
	}
	if nodeID == "" {
		nodeID = target.SpawnNodeID
	}
	if c.CurrentMapID == mapID {
		return s.NavigateToNode(characterID, nodeID)
	}

	blocked := s.ws.OccupiedNodes(c.CurrentMapID, characterID)
	route := pathfind.PlanRoute(s.ws.Maps(), c.CurrentMapID, c.CurrentNodeID, mapID, nodeID, blocked)
	if route == nil {
		return false
	}
	c.CrossMapNav = world.CrossMapNav{
		IsActive:     true,
		TargetMapID:  mapID,
		TargetNodeID: nodeID,
		Route:        route,
	}
	first := route[0]
	if len(first.Path) >= 2 {
		if !s.ws.BeginNavigation(characterID, first.Path) {
			c.CrossMapNav = world.CrossMapNav{}
			return false
		}
		return true
	}
	// Already standing on the first entrance.
	if first.ExitEntranceID == c.CurrentNodeID {
		m := s.ws.Map(c.CurrentMapID)
		if e := m.Node(first.ExitEntranceID); e != nil && e.LeadsTo != nil {
			return s.ws.BeginTransition(characterID, e.LeadsTo.MapID, e.LeadsTo.NodeID)
		}
	}
	c.CrossMapNav = world.CrossMapNav{}
	return false
}

func lerp(a, b world.Position, t float64) world.Position {
	return world.Position{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
	}
}
