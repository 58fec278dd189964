// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"errors"
	"fmt"

	"github.com/panopticon-re/panopticon/internal/graph"
	"github.com/panopticon-re/panopticon/mnemonic"
)

// ErrOutOfBounds is returned when a read falls outside [0, length).
var ErrOutOfBounds = errors.New("region: read out of bounds")

// ProjectedInterval is one entry of a Region's projection: a contiguous
// byte range and the topmost layer covering it.
type ProjectedInterval struct {
	Area  mnemonic.Area
	Layer graph.NodeID
	Name  string
}

// Region is a named byte address space of fixed length, assembled from a
// DAG of layers. The zero value is not usable; build one with New.
type Region struct {
	name   string
	length uint64

	g     graph.Graph[Layer, mnemonic.Area]
	root  graph.NodeID
	order []graph.NodeID // insertion order; always a topological order since
	// Add only ever wires edges from existing nodes to a brand new one.
	mount map[graph.NodeID]mnemonic.Area // the bound each layer was mounted over

	projection []ProjectedInterval
	dirty      bool
}

// New creates a Region of the given length, backed at the bottom by a Raw
// layer named "root" holding base (zero-padded/truncated to length).
func New(name string, length uint64, base []byte) *Region {
	r := &Region{name: name, length: length, mount: make(map[graph.NodeID]mnemonic.Area)}
	root := NewRaw("root", pad(base, length))
	r.root = r.g.AddNode(root)
	r.order = append(r.order, r.root)
	r.mount[r.root] = mnemonic.Area{Lo: 0, Hi: length}
	r.dirty = true
	return r
}

func pad(b []byte, length uint64) []byte {
	if uint64(len(b)) >= length {
		return b[:length]
	}
	out := make([]byte, length)
	copy(out, b)
	return out
}

// Name returns the region's name.
func (r *Region) Name() string { return r.name }

// Length returns the region's fixed byte length.
func (r *Region) Length() uint64 { return r.length }

// Add mounts layer over bound, which must lie within [0, length). The new
// layer shadows whatever currently projects over bound. Returns the new
// layer's handle.
func (r *Region) Add(bound mnemonic.Area, layer Layer) graph.NodeID {
	proj := r.Projection()
	vx := r.g.AddNode(layer)
	r.order = append(r.order, vx)
	r.mount[vx] = bound

	touched := false
	for _, iv := range proj {
		isect := intersect(iv.Area, bound)
		if isect.Empty() {
			continue
		}
		r.g.AddEdge(iv.Layer, vx, isect)
		touched = true
	}
	if !touched {
		r.g.AddEdge(r.root, vx, bound)
	}
	r.dirty = true
	return vx
}

func intersect(a, b mnemonic.Area) mnemonic.Area {
	lo, hi := a.Lo, a.Hi
	if b.Lo > lo {
		lo = b.Lo
	}
	if b.Hi < hi {
		hi = b.Hi
	}
	if hi < lo {
		hi = lo
	}
	return mnemonic.Area{Lo: lo, Hi: hi}
}

func subtract(a mnemonic.Area, b mnemonic.Area) []mnemonic.Area {
	isect := intersect(a, b)
	if isect.Empty() {
		return []mnemonic.Area{a}
	}
	var out []mnemonic.Area
	if a.Lo < isect.Lo {
		out = append(out, mnemonic.Area{Lo: a.Lo, Hi: isect.Lo})
	}
	if isect.Hi < a.Hi {
		out = append(out, mnemonic.Area{Lo: isect.Hi, Hi: a.Hi})
	}
	return out
}

// Projection returns the region's flat, non-overlapping mapping from
// [0, length) to the topmost layer covering each sub-range. The result is
// cached and recomputed lazily, invalidated by Add.
func (r *Region) Projection() []ProjectedInterval {
	if !r.dirty && r.projection != nil {
		return r.projection
	}

	assigned := map[graph.NodeID][]mnemonic.Area{
		r.root: {{Lo: 0, Hi: r.length}},
	}

	// Node IDs are handed out in insertion order and every edge runs from
	// an already-existing node to a brand new one, so iterating r.order
	// (root first) is already a topological walk of the layer DAG.
	for _, v := range r.order {
		chunks := assigned[v]
		if len(chunks) == 0 {
			continue
		}
		for _, e := range r.g.Out(v) {
			_, child, bound, _ := r.g.Edge(e)
			var remaining []mnemonic.Area
			for _, c := range chunks {
				isect := intersect(c, bound)
				if !isect.Empty() {
					assigned[child] = append(assigned[child], isect)
				}
				remaining = append(remaining, subtract(c, bound)...)
			}
			chunks = remaining
		}
		assigned[v] = chunks
	}

	var flat []ProjectedInterval
	for _, v := range r.order {
		for _, a := range assigned[v] {
			layer, _ := r.g.Node(v)
			flat = append(flat, ProjectedInterval{Area: a, Layer: v, Name: layer.Name()})
		}
	}
	sortIntervals(flat)

	r.projection = flat
	r.dirty = false
	return flat
}

func sortIntervals(ivs []ProjectedInterval) {
	for i := 1; i < len(ivs); i++ {
		for j := i; j > 0 && ivs[j].Area.Lo < ivs[j-1].Area.Lo; j-- {
			ivs[j], ivs[j-1] = ivs[j-1], ivs[j]
		}
	}
}

// Read returns the region's full projected byte view: each projected
// interval's layer Filter applied over the bytes of the layer beneath it,
// recursively down to the root Raw layer.
func (r *Region) Read() []byte {
	out := make([]byte, r.length)
	for _, iv := range r.Projection() {
		copy(out[iv.Area.Lo:iv.Area.Hi], r.readLayer(iv.Layer, iv.Area))
	}
	return out
}

// ReadAt returns length bytes starting at offset from the region's
// projected view. Reads past the end fail with ErrOutOfBounds.
func (r *Region) ReadAt(offset, length uint64) ([]byte, error) {
	if offset+length > r.length || offset+length < offset {
		return nil, fmt.Errorf("%w: [%d,%d) of length %d", ErrOutOfBounds, offset, offset+length, r.length)
	}
	full := r.Read()
	return full[offset : offset+length], nil
}

// readLayer computes the bytes layer id produces over area, by walking up
// its incoming edges to whatever layer(s) feed it (or the root's own raw
// bytes if id is the root).
func (r *Region) readLayer(id graph.NodeID, area mnemonic.Area) []byte {
	layer, _ := r.g.Node(id)
	mountLo := r.mount[id].Lo
	localOffset := area.Lo - mountLo

	if id == r.root {
		return layer.Filter(make([]byte, area.Len()), localOffset)
	}

	in := make([]byte, area.Len())
	for _, e := range r.g.In(id) {
		src, _, bound, _ := r.g.Edge(e)
		isect := intersect(bound, area)
		if isect.Empty() {
			continue
		}
		seg := r.readLayer(src, isect)
		copy(in[isect.Lo-area.Lo:], seg)
	}
	return layer.Filter(in, localOffset)
}
