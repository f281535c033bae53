package graph

import (
	"fmt"
	"math"
)

// unreachable is the hop count of a pair with no path.
const unreachable = math.MaxInt32

// computeShortestPaths runs Floyd-Warshall over all tracks and hand-offs, counting hops.
func (g *Graph) computeShortestPaths() {
	ids := make([]TrackID, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID
	}

	dist := make(map[TrackID]map[TrackID]int, len(ids))
	next := make(map[TrackID]map[TrackID]TrackID, len(ids))
	for _, i := range ids {
		dist[i] = make(map[TrackID]int, len(ids))
		next[i] = make(map[TrackID]TrackID, len(ids))
		for _, j := range ids {
			dist[i][j] = unreachable
		}
		dist[i][i] = 0
	}
	for _, e := range g.edges {
		if e.U != e.V {
			dist[e.U][e.V] = 1
			next[e.U][e.V] = e.V
		}
	}
	for _, k := range ids {
		for _, i := range ids {
			if dist[i][k] == unreachable {
				continue
			}
			for _, j := range ids {
				if d := dist[i][k] + dist[k][j]; dist[k][j] != unreachable && d < dist[i][j] {
					dist[i][j] = d
					next[i][j] = next[i][k]
				}
			}
		}
	}

	g.dist = dist
	g.nextNode = next
	g.pathCache = make(map[PathID]PathInfo) // clear stale cache
}

func (g *Graph) ensureShortestPaths() {
	if g.dist == nil {
		g.computeShortestPaths()
	}
}

func (g *Graph) reconstructPath(u, v TrackID) []TrackID {
	route := []TrackID{u}
	for u != v {
		n, ok := g.nextNode[u][v]
		if !ok {
			return nil // no path
		}
		u = n
		route = append(route, u)
	}
	return route
}

// GetShortestPath returns the path with the fewest hand-offs from start to end, using a cache.
// Returns an error if no path exists.
func (g *Graph) GetShortestPath(start, end TrackID) (PathInfo, error) {
	key := pathKey(start, end)
	if _, ok := g.nodeMap[start]; !ok {
		return PathInfo{}, fmt.Errorf("track %d not in graph", start)
	}
	if start == end {
		return PathInfo{ID: key, Route: []TrackID{start}}, nil
	}
	g.ensureShortestPaths()
	if p, ok := g.pathCache[key]; ok {
		return p, nil
	}
	d, ok := g.dist[start][end]
	if !ok || d == unreachable {
		return PathInfo{}, fmt.Errorf("no hand-off path from track %d to %d", start, end)
	}
	p := PathInfo{ID: key, Route: g.reconstructPath(start, end), Hops: d}
	g.pathCache[key] = p
	return p, nil
}
