// Package pathfind plans movement: Dijkstra within one map's node graph
// and breadth-first routing over the entrance graph across maps.
package pathfind

import (
	"container/heap"

	"github.com/talgya/lifesim/internal/world"
)

type pqItem struct {
	nodeID string
	dist   float64
	index  int
}

// priority queue ordered by (dist, nodeID) so equal-cost frontiers expand
// deterministically.
type pq []*pqItem

func (q pq) Len() int { return len(q) }
func (q pq) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].nodeID < q[j].nodeID
}
func (q pq) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *pq) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*q)
	*q = append(*q, item)
}
func (q *pq) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// FindPath returns the cheapest node-id path from start to goal on one
// map, or nil when unreachable. Edge cost is Euclidean distance. Nodes in
// blocked are impassable except as the start or the goal itself, so a
// character already standing on an occupied node can still leave it, and
// routes may terminate beside an occupant.
func FindPath(m *world.Map, startID, goalID string, blocked map[string]bool) []string {
	if m == nil || m.Node(startID) == nil || m.Node(goalID) == nil {
		return nil
	}
	if startID == goalID {
		return []string{startID}
	}

	dist := map[string]float64{startID: 0}
	prev := map[string]string{}
	visited := map[string]bool{}

	q := &pq{}
	heap.Init(q)
	heap.Push(q, &pqItem{nodeID: startID, dist: 0})

	for q.Len() > 0 {
		cur := heap.Pop(q).(*pqItem)
		if visited[cur.nodeID] {
			continue
		}
		visited[cur.nodeID] = true
		if cur.nodeID == goalID {
			break
		}
		curNode := m.Node(cur.nodeID)
		for _, nid := range curNode.ConnectedTo {
			if visited[nid] {
				continue
			}
			if blocked[nid] && nid != goalID {
				continue
			}
			next := m.Node(nid)
			if next == nil {
				continue
			}
			d := cur.dist + curNode.Pos().DistanceTo(next.Pos())
			if old, seen := dist[nid]; !seen || d < old {
				dist[nid] = d
				prev[nid] = cur.nodeID
				heap.Push(q, &pqItem{nodeID: nid, dist: d})
			}
		}
	}

	if !visited[goalID] {
		return nil
	}
	var path []string
	for at := goalID; ; at = prev[at] {
		path = append(path, at)
		if at == startID {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// PathLength sums the Euclidean segment lengths of a node path.
func PathLength(m *world.Map, path []string) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		a, b := m.Node(path[i-1]), m.Node(path[i])
		if a == nil || b == nil {
			return 0
		}
		total += a.Pos().DistanceTo(b.Pos())
	}
	return total
}

// PlanRoute computes a cross-map route from a node on one map to a node
// on another, as per-map segments joined at entrance nodes. Same-map
// requests collapse to a single segment. Nil when no entrance chain
// connects the maps or any leg has no path.
func PlanRoute(maps map[string]*world.Map, fromMapID, fromNodeID, toMapID, toNodeID string, blocked map[string]bool) []world.RouteSegment {
	if fromMapID == toMapID {
		p := FindPath(maps[fromMapID], fromNodeID, toNodeID, blocked)
		if p == nil {
			return nil
		}
		return []world.RouteSegment{{MapID: fromMapID, Path: p}}
	}

	chain := mapChain(maps, fromMapID, toMapID)
	if chain == nil {
		return nil
	}

	var route []world.RouteSegment
	curMap, curNode := fromMapID, fromNodeID
	for _, hop := range chain {
		// hop.entrance sits on curMap and leads into hop.nextMap.
		var legBlocked map[string]bool
		if curMap == fromMapID {
			legBlocked = blocked
		}
		p := FindPath(maps[curMap], curNode, hop.entranceID, legBlocked)
		if p == nil {
			return nil
		}
		route = append(route, world.RouteSegment{
			MapID:          curMap,
			Path:           p,
			ExitEntranceID: hop.entranceID,
		})
		curMap = hop.nextMapID
		curNode = hop.arriveNodeID
	}
	p := FindPath(maps[curMap], curNode, toNodeID, nil)
	if p == nil {
		return nil
	}
	route = append(route, world.RouteSegment{MapID: curMap, Path: p})
	return route
}

type mapHop struct {
	entranceID   string // entrance node on the current map
	nextMapID    string
	arriveNodeID string // node landed on in the next map
}

// mapChain finds the shortest entrance sequence from one map to another
// by BFS over the map adjacency implied by entrance links. Entrances are
// visited in sorted order so equal-length chains resolve deterministically.
func mapChain(maps map[string]*world.Map, fromMapID, toMapID string) []mapHop {
	type state struct {
		mapID string
		hops  []mapHop
	}
	visited := map[string]bool{fromMapID: true}
	queue := []state{{mapID: fromMapID}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		m := maps[cur.mapID]
		if m == nil {
			continue
		}
		for _, e := range m.Entrances() {
			if e.LeadsTo == nil || visited[e.LeadsTo.MapID] {
				continue
			}
			visited[e.LeadsTo.MapID] = true
			hops := append(append([]mapHop(nil), cur.hops...), mapHop{
				entranceID:   e.ID,
				nextMapID:    e.LeadsTo.MapID,
				arriveNodeID: e.LeadsTo.NodeID,
			})
			if e.LeadsTo.MapID == toMapID {
				return hops
			}
			queue = append(queue, state{mapID: e.LeadsTo.MapID, hops: hops})
		}
	}
	return nil
}
