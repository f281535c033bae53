// Package graph models the hand-off topology of a route: which tracks a follower can be moved onto by
// track change events, with shortest hand-off paths between tracks.
package graph

import (
	"fmt"

	"github.com/cxd309/tms-track/internal/event"
	"github.com/cxd309/tms-track/internal/track"
)

// TrackID is a track index in the registry. EdgeID and PathID are string identifiers.
type (
	TrackID = int
	EdgeID  = string
	PathID  = string
)

// Node is a track in the hand-off graph.
type Node struct {
	ID     TrackID `json:"track"`
	Name   string  `json:"name"`
	Length float64 `json:"length"` // metres from the first to the last element
}

// Edge is a directed hand-off from track U to track V, placed at a track position on U.
type Edge struct {
	ID       EdgeID  `json:"edge_id"`
	U        TrackID `json:"u"`
	V        TrackID `json:"v"`
	Position float64 `json:"position"` // metres along U
}

// GraphData is the serialisable form of a hand-off graph.
type GraphData struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// PathInfo holds the result of a shortest-path computation.
type PathInfo struct {
	ID    PathID
	Route []TrackID // ordered tracks from start to end
	Hops  int       // number of hand-offs
}

// Graph is a directed graph of tracks with cached shortest hand-off paths.
type Graph struct {
	nodes       []Node
	edges       []Edge
	nodeMap     map[TrackID]Node
	edgeMap     map[EdgeID]Edge
	edgeByNodes map[TrackID]map[TrackID]Edge // u → v → first edge
	// Floyd-Warshall tables; nil until first needed.
	dist     map[TrackID]map[TrackID]int
	nextNode map[TrackID]map[TrackID]TrackID
	// Path cache; cleared whenever the graph topology changes.
	pathCache map[PathID]PathInfo
}

// NewGraph builds a Graph from GraphData, returning an error if any node or edge references are invalid.
func NewGraph(data GraphData) (*Graph, error) {
	g := &Graph{
		nodeMap:     make(map[TrackID]Node),
		edgeMap:     make(map[EdgeID]Edge),
		edgeByNodes: make(map[TrackID]map[TrackID]Edge),
		pathCache:   make(map[PathID]PathInfo),
	}
	for _, n := range data.Nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range data.Edges {
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Build returns the hand-off graph a follower travelling in direction sees on reg. Crossing a track
// change forwards moves the follower to its To track, backwards to its From track; changes that leave
// the follower where it is produce no edge. A hand-off to an unregistered track is an error.
func Build(reg *track.Registry, direction int) (*Graph, error) {
	var data GraphData
	reg.Each(func(index int, t *track.Track) {
		length := 0.0
		if n := len(t.Elements); n > 0 {
			length = t.EndPosition() - t.Elements[0].StartingTrackPosition
		}
		data.Nodes = append(data.Nodes, Node{ID: index, Name: t.Name, Length: length})
		for i := range t.Elements {
			el := &t.Elements[i]
			for _, ev := range el.Events {
				tc, ok := event.TrackChangeOf(ev)
				if !ok {
					continue
				}
				to := tc.To
				if direction < 0 {
					to = tc.From
				}
				if to == index {
					continue
				}
				pos := el.StartingTrackPosition + ev.TrackPositionDelta
				data.Edges = append(data.Edges, Edge{
					ID:       fmt.Sprintf("%d@%g->%d", index, pos, to),
					U:        index,
					V:        to,
					Position: pos,
				})
			}
		}
	})
	for _, e := range data.Edges {
		if _, ok := reg.Track(e.V); !ok {
			return nil, fmt.Errorf("hand-off %s: track %d: %w", e.ID, e.V, track.ErrUnknownTrack)
		}
	}
	return NewGraph(data)
}

// AddNode adds a node to the graph. Returns an error if the track is already present.
func (g *Graph) AddNode(n Node) error {
	if _, exists := g.nodeMap[n.ID]; exists {
		return fmt.Errorf("track %d already exists", n.ID)
	}
	g.nodes = append(g.nodes, n)
	g.nodeMap[n.ID] = n
	g.dist = nil // invalidate cached paths
	return nil
}

// AddEdge adds a directed hand-off to the graph. Returns an error if the edge ID already exists or either
// endpoint track is missing. Parallel hand-offs between the same tracks are allowed.
func (g *Graph) AddEdge(e Edge) error {
	if _, exists := g.edgeMap[e.ID]; exists {
		return fmt.Errorf("edge %q already exists", e.ID)
	}
	if _, ok := g.nodeMap[e.U]; !ok {
		return fmt.Errorf("edge %q: source track %d not found", e.ID, e.U)
	}
	if _, ok := g.nodeMap[e.V]; !ok {
		return fmt.Errorf("edge %q: target track %d not found", e.ID, e.V)
	}
	g.edges = append(g.edges, e)
	g.edgeMap[e.ID] = e
	if g.edgeByNodes[e.U] == nil {
		g.edgeByNodes[e.U] = make(map[TrackID]Edge)
	}
	if _, ok := g.edgeByNodes[e.U][e.V]; !ok {
		g.edgeByNodes[e.U][e.V] = e
	}
	g.dist = nil // invalidate cached paths
	return nil
}

// Nodes returns the tracks in insertion order.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns the hand-offs in insertion order.
func (g *Graph) Edges() []Edge { return g.edges }

// pathKey returns a canonical string key for a start→end pair.
func pathKey(start, end TrackID) PathID { return fmt.Sprintf("%d->%d", start, end) }

// GetEdge returns the first hand-off from u to v.
func (g *Graph) GetEdge(u, v TrackID) (Edge, error) {
	if m, ok := g.edgeByNodes[u]; ok {
		if e, ok := m[v]; ok {
			return e, nil
		}
	}
	return Edge{}, fmt.Errorf("no hand-off from track %d to %d", u, v)
}

// GetNextEdge returns the first hand-off on the shortest path from u toward dest.
func (g *Graph) GetNextEdge(u, dest TrackID) (Edge, error) {
	path, err := g.GetShortestPath(u, dest)
	if err != nil {
		return Edge{}, err
	}
	if len(path.Route) < 2 {
		return Edge{}, fmt.Errorf("already on track %d", dest)
	}
	return g.GetEdge(path.Route[0], path.Route[1])
}

// Reachable reports whether a follower on track u can be handed over to track v.
func (g *Graph) Reachable(u, v TrackID) bool {
	_, err := g.GetShortestPath(u, v)
	return err == nil
}

// Cycles returns the tracks that lie on a hand-off cycle, in insertion order. A follower crossing a
// hand-off on one of these tracks can be passed around and back to where it started.
func (g *Graph) Cycles() []TrackID {
	var out []TrackID
	for _, n := range g.nodes {
		for v := range g.edgeByNodes[n.ID] {
			if g.Reachable(v, n.ID) {
				out = append(out, n.ID)
				break
			}
		}
	}
	return out
}

// CycleAt returns a hand-off leaving u and the first hand-off of the shortest way back to u. ok is false
// when u lies on no cycle.
func (g *Graph) CycleAt(u TrackID) (out, back Edge, ok bool) {
	for _, e := range g.edges {
		if e.U != u {
			continue
		}
		if b, err := g.GetNextEdge(e.V, u); err == nil {
			return e, b, true
		}
	}
	return Edge{}, Edge{}, false
}
