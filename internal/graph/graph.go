// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package graph implements the indexed-graph representation used by the
// region layer stack, the basic-block/procedure CFG, and the program call
// graph: nodes and edges are opaque integer handles, payloads and adjacency
// live in side tables. This avoids owned back-references and the shared/weak
// pointer cycles the reference implementation relies on.
package graph

// NodeID is an opaque handle to a node. The zero value never denotes a
// valid node.
type NodeID uint32

// EdgeID is an opaque handle to an edge. The zero value never denotes a
// valid edge.
type EdgeID uint32

type edge[E any] struct {
	src, dst NodeID
	payload  E
}

// Graph is a directed graph with node payloads of type N and edge payloads
// of type E, keyed by opaque integer handles. The zero Graph is empty and
// ready to use.
type Graph[N any, E any] struct {
	nodes map[NodeID]N
	edges map[EdgeID]edge[E]
	out   map[NodeID][]EdgeID
	in    map[NodeID][]EdgeID

	nextNode NodeID
	nextEdge EdgeID
}

func (g *Graph[N, E]) init() {
	if g.nodes == nil {
		g.nodes = make(map[NodeID]N)
		g.edges = make(map[EdgeID]edge[E])
		g.out = make(map[NodeID][]EdgeID)
		g.in = make(map[NodeID][]EdgeID)
		g.nextNode = 1
		g.nextEdge = 1
	}
}

// AddNode inserts a new node carrying payload and returns its handle.
func (g *Graph[N, E]) AddNode(payload N) NodeID {
	g.init()
	id := g.nextNode
	g.nextNode++
	g.nodes[id] = payload
	return id
}

// AddEdge inserts a directed edge src->dst carrying payload and returns its
// handle. src and dst must already be nodes of g.
func (g *Graph[N, E]) AddEdge(src, dst NodeID, payload E) EdgeID {
	g.init()
	id := g.nextEdge
	g.nextEdge++
	g.edges[id] = edge[E]{src: src, dst: dst, payload: payload}
	g.out[src] = append(g.out[src], id)
	g.in[dst] = append(g.in[dst], id)
	return id
}

// Node returns the payload of id and whether id is a node of g.
func (g *Graph[N, E]) Node(id NodeID) (N, bool) {
	v, ok := g.nodes[id]
	return v, ok
}

// SetNode overwrites the payload of an existing node.
func (g *Graph[N, E]) SetNode(id NodeID, payload N) {
	g.init()
	g.nodes[id] = payload
}

// Edge returns the (src, dst, payload) of id and whether id is an edge of g.
func (g *Graph[N, E]) Edge(id EdgeID) (src, dst NodeID, payload E, ok bool) {
	e, ok := g.edges[id]
	return e.src, e.dst, e.payload, ok
}

// SetEdgePayload overwrites the payload of an existing edge.
func (g *Graph[N, E]) SetEdgePayload(id EdgeID, payload E) {
	e := g.edges[id]
	e.payload = payload
	g.edges[id] = e
}

// Out returns the handles of edges leaving id, in insertion order.
func (g *Graph[N, E]) Out(id NodeID) []EdgeID {
	return append([]EdgeID(nil), g.out[id]...)
}

// In returns the handles of edges entering id, in insertion order.
func (g *Graph[N, E]) In(id NodeID) []EdgeID {
	return append([]EdgeID(nil), g.in[id]...)
}

// Successors returns the destination nodes of id's outgoing edges, in
// insertion order.
func (g *Graph[N, E]) Successors(id NodeID) []NodeID {
	out := g.out[id]
	res := make([]NodeID, len(out))
	for i, e := range out {
		res[i] = g.edges[e].dst
	}
	return res
}

// Predecessors returns the source nodes of id's incoming edges, in
// insertion order.
func (g *Graph[N, E]) Predecessors(id NodeID) []NodeID {
	in := g.in[id]
	res := make([]NodeID, len(in))
	for i, e := range in {
		res[i] = g.edges[e].src
	}
	return res
}

// Nodes returns every node handle currently in g. Order is unspecified.
func (g *Graph[N, E]) Nodes() []NodeID {
	res := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		res = append(res, id)
	}
	return res
}

// RemoveEdge deletes an edge. Removing an edge invalidates any cached
// vertex-index map a caller built over g (e.g. a reverse post-order index),
// per the region/cfg design note on graph representation.
func (g *Graph[N, E]) RemoveEdge(id EdgeID) {
	e, ok := g.edges[id]
	if !ok {
		return
	}
	delete(g.edges, id)
	g.out[e.src] = removeID(g.out[e.src], id)
	g.in[e.dst] = removeID(g.in[e.dst], id)
}

func removeID(s []EdgeID, id EdgeID) []EdgeID {
	for i, e := range s {
		if e == id {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// NumNodes reports how many nodes g holds.
func (g *Graph[N, E]) NumNodes() int { return len(g.nodes) }
