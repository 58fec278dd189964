// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cfg

import (
	"errors"

	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/mnemonic"
)

// ErrMisalignedSplit is returned when SplitBlock is asked to split at an
// offset that does not fall on a mnemonic boundary. Per spec.md §4.4 this
// is an internal error: the grammar produced an overlapping mnemonic.
var ErrMisalignedSplit = errors.New("cfg: split offset does not fall on a mnemonic boundary")

// SplitBlock partitions the block at id into two at byte offset at, which
// must equal the start of one of its mnemonics (and not its own first
// mnemonic). The first half inherits every predecessor of id; the second
// half inherits every successor; an unconditional transfer of width
// addrWidth links them. A self-loop on id becomes an edge from the second
// half to whichever half holds its target. id itself is left in the graph but becomes
// unreachable once its last in-edge is redirected.
func (p *Procedure) SplitBlock(id BlockID, at uint64, addrWidth uint8) (first, second BlockID, err error) {
	bb, ok := p.g.Node(id)
	if !ok {
		return 0, 0, errors.New("cfg: SplitBlock called on an unknown block")
	}

	idx := -1
	for i, m := range bb.Mnemonics {
		if m.Area.Lo == at {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return 0, 0, ErrMisalignedSplit
	}

	firstBB, err := NewBlock(bb.Mnemonics[:idx])
	if err != nil {
		return 0, 0, err
	}
	secondBB, err := NewBlock(bb.Mnemonics[idx:])
	if err != nil {
		return 0, 0, err
	}

	first = p.g.AddNode(firstBB)
	second = p.g.AddNode(secondBB)

	inEdges, outEdges := p.g.In(id), p.g.Out(id)
	for _, e := range inEdges {
		src, _, ct, _ := p.g.Edge(e)
		if src == id {
			continue // a self-loop is rewired with the out-edges below
		}
		p.g.AddEdge(src, first, ct)
	}
	for _, e := range outEdges {
		_, dst, ct, _ := p.g.Edge(e)
		if dst == id {
			dst = first
			if ct.Target.IsConstant() && ct.Target.Content() >= at {
				dst = second
			}
		}
		p.g.AddEdge(second, dst, ct)
	}

	target, err := il.NewConstant(at, addrWidth)
	if err != nil {
		return 0, 0, err
	}
	p.g.AddEdge(first, second, Unconditional(target))

	if p.Entry == id {
		p.Entry = first
	}
	return first, second, nil
}

// ErrNotMergeable is returned by MergeBlocks when a and b do not satisfy
// spec.md §4.4's merge condition.
var ErrNotMergeable = errors.New("cfg: blocks do not satisfy the merge condition")

// MergeBlocks merges a into b when a has exactly one outgoing transfer,
// that transfer is unconditional and targets b, and b has exactly one
// predecessor (a). The merged block's area is the hull of a's and b's; its
// mnemonics concatenate; its outgoing edges are b's.
func (p *Procedure) MergeBlocks(a, b BlockID) (BlockID, error) {
	outA := p.g.Out(a)
	if len(outA) != 1 {
		return 0, ErrNotMergeable
	}
	_, dst, ct, _ := p.g.Edge(outA[0])
	if dst != b || !ct.Guard.IsTrue() {
		return 0, ErrNotMergeable
	}
	if len(p.g.In(b)) != 1 {
		return 0, ErrNotMergeable
	}

	bbA, _ := p.g.Node(a)
	bbB, _ := p.g.Node(b)
	mnemonics := append(append([]mnemonic.Mnemonic(nil), bbA.Mnemonics...), bbB.Mnemonics...)
	merged := BasicBlock{Area: bbA.Area.Hull(bbB.Area), Mnemonics: mnemonics}

	id := p.g.AddNode(merged)
	for _, e := range p.g.In(a) {
		src, _, ct, _ := p.g.Edge(e)
		p.g.AddEdge(src, id, ct)
	}
	for _, e := range p.g.Out(b) {
		_, d, ct, _ := p.g.Edge(e)
		p.g.AddEdge(id, d, ct)
	}
	if p.Entry == a {
		p.Entry = id
	}
	return id, nil
}
