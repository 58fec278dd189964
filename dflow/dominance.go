// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dflow implements Panopticon's classical dataflow analyses over a
// cfg.Procedure: dominance, liveness, SSA construction, and sparse constant
// propagation.
package dflow

import "github.com/panopticon-re/panopticon/cfg"

// DomTree is the result of computing immediate dominance and dominance
// frontiers over a procedure's reverse post-order (spec.md §4.5).
type DomTree struct {
	Entry    cfg.BlockID
	IDom     map[cfg.BlockID]cfg.BlockID
	Frontier map[cfg.BlockID][]cfg.BlockID

	children map[cfg.BlockID][]cfg.BlockID
	rpoIndex map[cfg.BlockID]int
}

// Dominates reports whether a dominates b (non-strictly: every block
// dominates itself).
func (t *DomTree) Dominates(a, b cfg.BlockID) bool {
	for cur := b; ; {
		if cur == a {
			return true
		}
		next, ok := t.IDom[cur]
		if !ok || next == cur {
			return cur == a
		}
		cur = next
	}
}

// Children returns b's children in the dominator tree, in no particular
// order.
func (t *DomTree) Children(b cfg.BlockID) []cfg.BlockID { return t.children[b] }

// ComputeDominance runs the Cooper-Harvey-Kennedy iterative dominance
// algorithm over p, keyed by p's reverse post-order.
func ComputeDominance(p *cfg.Procedure) *DomTree {
	rpo := p.ReversePostOrder()
	t := &DomTree{
		Entry:    p.Entry,
		IDom:     make(map[cfg.BlockID]cfg.BlockID),
		Frontier: make(map[cfg.BlockID][]cfg.BlockID),
		children: make(map[cfg.BlockID][]cfg.BlockID),
		rpoIndex: make(map[cfg.BlockID]int, len(rpo)),
	}
	if len(rpo) == 0 {
		return t
	}
	for i, b := range rpo {
		t.rpoIndex[b] = i
	}

	entry := rpo[0]
	t.IDom[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo[1:] {
			var newIdom cfg.BlockID
			haveNewIdom := false
			for _, pred := range p.Predecessors(b) {
				if _, ok := t.IDom[pred]; !ok {
					continue
				}
				if !haveNewIdom {
					newIdom = pred
					haveNewIdom = true
					continue
				}
				newIdom = t.intersect(newIdom, pred)
			}
			if !haveNewIdom {
				continue
			}
			if cur, ok := t.IDom[b]; !ok || cur != newIdom {
				t.IDom[b] = newIdom
				changed = true
			}
		}
	}

	for b, idom := range t.IDom {
		if b == entry {
			continue
		}
		t.children[idom] = append(t.children[idom], b)
	}

	for _, b := range rpo {
		preds := p.Predecessors(b)
		if len(preds) < 2 {
			continue
		}
		for _, pred := range preds {
			if _, ok := t.IDom[pred]; !ok {
				continue
			}
			runner := pred
			for runner != t.IDom[b] {
				t.Frontier[runner] = appendUnique(t.Frontier[runner], b)
				runner = t.IDom[runner]
			}
		}
	}

	return t
}

func (t *DomTree) intersect(a, b cfg.BlockID) cfg.BlockID {
	for a != b {
		for t.rpoIndex[a] > t.rpoIndex[b] {
			a = t.IDom[a]
		}
		for t.rpoIndex[b] > t.rpoIndex[a] {
			b = t.IDom[b]
		}
	}
	return a
}

func appendUnique(s []cfg.BlockID, b cfg.BlockID) []cfg.BlockID {
	for _, v := range s {
		if v == b {
			return s
		}
	}
	return append(s, b)
}
