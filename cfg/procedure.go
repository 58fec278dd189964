// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cfg

import (
	"errors"
	"fmt"

	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/internal/graph"
	"github.com/panopticon-re/panopticon/mnemonic"
)

// BlockID is an opaque handle to a basic block within one Procedure's
// graph. Handles from different procedures are not comparable.
type BlockID = graph.NodeID

// ErrNoEntry is returned by operations that require an entry block before
// one has been set.
var ErrNoEntry = errors.New("cfg: procedure has no entry block")

// Procedure is a connected subgraph of basic blocks with a distinguished
// entry, joined by jumps. Blocks and edges are addressed by opaque handles
// (package graph), not shared pointers, so the CFG can be mutated safely
// from split/merge without invalidating unrelated handles.
type Procedure struct {
	Name    string
	Entry   BlockID
	Callees []string
	Callers []string

	g        graph.Graph[BasicBlock, ControlTransfer]
	hasEntry bool
}

// New creates an empty, entry-less procedure named name.
func New(name string) *Procedure {
	return &Procedure{Name: name}
}

// AddBlock inserts bb and returns its handle. If this is the first block
// added, it becomes the entry.
func (p *Procedure) AddBlock(bb BasicBlock) BlockID {
	id := p.g.AddNode(bb)
	if !p.hasEntry {
		p.Entry = id
		p.hasEntry = true
	}
	return id
}

// SetEntry overwrites the procedure's entry block. id must already be a
// block of p.
func (p *Procedure) SetEntry(id BlockID) {
	p.Entry = id
	p.hasEntry = true
}

// Block returns the basic block stored at id.
func (p *Procedure) Block(id BlockID) (BasicBlock, bool) {
	return p.g.Node(id)
}

// SetBlock overwrites the basic block stored at id. Used by SSA construction
// (package dflow) to rewrite a block's mnemonics in place after renaming;
// id must already be a block of p.
func (p *Procedure) SetBlock(id BlockID, bb BasicBlock) {
	p.g.SetNode(id, bb)
}

// Blocks returns every block handle in p. Order is unspecified; callers
// that need a canonical order should use ReversePostOrder.
func (p *Procedure) Blocks() []BlockID { return p.g.Nodes() }

// AddEdge records an outgoing control transfer from src to dst, returning
// the new edge's handle.
func (p *Procedure) AddEdge(src, dst BlockID, ct ControlTransfer) EdgeID {
	return p.g.AddEdge(src, dst, ct)
}

// RemoveEdge deletes edge id from p.
func (p *Procedure) RemoveEdge(id EdgeID) {
	p.g.RemoveEdge(id)
}

// Out returns the control transfers leaving id, in edge insertion order.
// The destination block of a transfer is its Resolved field, when set;
// Successors lists the destination handles.
func (p *Procedure) Out(id BlockID) []ControlTransfer {
	var out []ControlTransfer
	for _, e := range p.g.Out(id) {
		_, _, ct, _ := p.g.Edge(e)
		out = append(out, ct)
	}
	return out
}

// Successors returns the block handles id has outgoing edges to, in edge
// insertion order.
func (p *Procedure) Successors(id BlockID) []BlockID { return p.g.Successors(id) }

// Predecessors returns the block handles with an edge into id, in edge
// insertion order.
func (p *Procedure) Predecessors(id BlockID) []BlockID { return p.g.Predecessors(id) }

// EdgeID is an opaque handle to one control-transfer edge of p.
type EdgeID = graph.EdgeID

// OutEdges returns the edge handles leaving id, in insertion order.
func (p *Procedure) OutEdges(id BlockID) []EdgeID { return p.g.Out(id) }

// EdgeTransfer returns the control transfer carried by edge id.
func (p *Procedure) EdgeTransfer(id EdgeID) (ControlTransfer, bool) {
	_, _, ct, ok := p.g.Edge(id)
	return ct, ok
}

// SetEdgeTransfer overwrites the control transfer carried by edge id. Used
// by SSA construction (package dflow) to rewrite a guard's or a symbolic
// jump target's variable subscripts after renaming.
func (p *Procedure) SetEdgeTransfer(id EdgeID, ct ControlTransfer) {
	p.g.SetEdgePayload(id, ct)
}

// Area returns the hull of every block's area.
func (p *Procedure) Area() mnemonic.Area {
	var area mnemonic.Area
	first := true
	for _, id := range p.g.Nodes() {
		bb, _ := p.g.Node(id)
		if first {
			area = bb.Area
			first = false
			continue
		}
		area = area.Hull(bb.Area)
	}
	return area
}

// BlockAt returns the block whose area contains addr, if any.
func (p *Procedure) BlockAt(addr uint64) (BlockID, bool) {
	for _, id := range p.g.Nodes() {
		bb, _ := p.g.Node(id)
		if bb.Area.Contains(addr) {
			return id, true
		}
	}
	return 0, false
}

// CheckInvariants verifies the two procedure-level invariants of
// spec.md §8: the entry is a block of p, and every outgoing transfer whose
// target is a constant within the procedure's hull resolves to a block of
// p.
func (p *Procedure) CheckInvariants() error {
	if !p.hasEntry {
		return ErrNoEntry
	}
	if _, ok := p.g.Node(p.Entry); !ok {
		return fmt.Errorf("cfg: entry block %d is not a block of procedure %q", p.Entry, p.Name)
	}
	area := p.Area()
	for _, id := range p.g.Nodes() {
		for _, e := range p.g.Out(id) {
			_, _, ct, _ := p.g.Edge(e)
			if ct.Target.Kind() != il.KindConstant {
				continue
			}
			addr := ct.Target.Content()
			if !area.Contains(addr) {
				continue
			}
			if ct.Resolved == nil {
				return fmt.Errorf("cfg: unresolved intra-procedural transfer to 0x%x in procedure %q", addr, p.Name)
			}
			if _, ok := p.g.Node(*ct.Resolved); !ok {
				return fmt.Errorf("cfg: transfer to 0x%x resolves to a block outside procedure %q", addr, p.Name)
			}
		}
	}
	return nil
}
