package pathfind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/lifesim/internal/world"
)

func gridMap(t *testing.T, id string, cols, rows int) *world.Map {
	t.Helper()
	m := &world.Map{ID: id, TileSize: 100}
	m.BuildGrid(id, cols, rows)
	return m
}

func TestFindPathStraightLine(t *testing.T) {
	m := gridMap(t, "town", 3, 3)
	path := FindPath(m, "town-0-0", "town-2-0", nil)
	require.NotNil(t, path)
	assert.Equal(t, []string{"town-0-0", "town-1-0", "town-2-0"}, path)
}

func TestFindPathDetoursAroundOccupant(t *testing.T) {
	m := gridMap(t, "town", 3, 3)
	blocked := map[string]bool{"town-1-0": true}
	path := FindPath(m, "town-0-0", "town-2-0", blocked)
	require.NotNil(t, path)
	assert.Equal(t, []string{"town-0-0", "town-1-1", "town-2-0"}, path)
	assert.NotContains(t, path, "town-1-0")
}

func TestFindPathBlockedStartAndGoalStayPassable(t *testing.T) {
	m := gridMap(t, "town", 3, 1)
	blocked := map[string]bool{"town-0-0": true, "town-2-0": true}
	path := FindPath(m, "town-0-0", "town-2-0", blocked)
	require.NotNil(t, path)
	assert.Equal(t, []string{"town-0-0", "town-1-0", "town-2-0"}, path)
}

func TestFindPathUnreachable(t *testing.T) {
	m := &world.Map{ID: "m", TileSize: 100, Nodes: map[string]*world.Node{
		"a": {ID: "a", X: 0, Y: 0},
		"b": {ID: "b", X: 100, Y: 0},
	}}
	assert.Nil(t, FindPath(m, "a", "b", nil))
}

func TestFindPathSameNode(t *testing.T) {
	m := gridMap(t, "town", 2, 2)
	assert.Equal(t, []string{"town-0-0"}, FindPath(m, "town-0-0", "town-0-0", nil))
}

func TestFindPathEqualCostTieBreaksByNodeID(t *testing.T) {
	m := &world.Map{ID: "m", TileSize: 100, Nodes: map[string]*world.Node{
		"a": {ID: "a", X: 0, Y: 0, ConnectedTo: []string{"b", "c"}},
		"b": {ID: "b", X: 100, Y: 0, ConnectedTo: []string{"a", "d"}},
		"c": {ID: "c", X: 0, Y: 100, ConnectedTo: []string{"a", "d"}},
		"d": {ID: "d", X: 100, Y: 100, ConnectedTo: []string{"b", "c"}},
	}}
	path := FindPath(m, "a", "d", nil)
	require.NotNil(t, path)
	assert.Equal(t, []string{"a", "b", "d"}, path)
}

func TestPathLength(t *testing.T) {
	m := gridMap(t, "town", 3, 1)
	path := FindPath(m, "town-0-0", "town-2-0", nil)
	assert.InDelta(t, 200, PathLength(m, path), 1e-9)
}

func twoMapWorld(t *testing.T) map[string]*world.Map {
	t.Helper()
	town := gridMap(t, "town", 3, 1)
	home := gridMap(t, "home", 2, 1)
	town.AddEntrance("town-door", 200, 0, &world.MapLink{MapID: "home", NodeID: "home-door"})
	home.AddEntrance("home-door", 0, 0, &world.MapLink{MapID: "town", NodeID: "town-door"})
	town.Connect("town-door", "town-1-0")
	home.Connect("home-door", "home-0-0")
	maps := map[string]*world.Map{"town": town, "home": home}
	for _, m := range maps {
		require.NoError(t, m.Validate(maps))
	}
	return maps
}

func TestPlanRouteSameMapCollapses(t *testing.T) {
	maps := twoMapWorld(t)
	route := PlanRoute(maps, "town", "town-0-0", "town", "town-2-0", nil)
	require.Len(t, route, 1)
	assert.Equal(t, "town", route[0].MapID)
	assert.Empty(t, route[0].ExitEntranceID)
}

func TestPlanRouteCrossMap(t *testing.T) {
	maps := twoMapWorld(t)
	route := PlanRoute(maps, "town", "town-0-0", "home", "home-1-0", nil)
	require.Len(t, route, 2)

	assert.Equal(t, "town", route[0].MapID)
	assert.Equal(t, "town-door", route[0].ExitEntranceID)
	assert.Equal(t, "town-door", route[0].Path[len(route[0].Path)-1])

	assert.Equal(t, "home", route[1].MapID)
	assert.Equal(t, "home-door", route[1].Path[0])
	assert.Equal(t, "home-1-0", route[1].Path[len(route[1].Path)-1])
	assert.Empty(t, route[1].ExitEntranceID)
}

func TestPlanRouteNoEntranceChain(t *testing.T) {
	town := gridMap(t, "town", 2, 1)
	island := gridMap(t, "island", 2, 1)
	maps := map[string]*world.Map{"town": town, "island": island}
	assert.Nil(t, PlanRoute(maps, "town", "town-0-0", "island", "island-0-0", nil))
}
