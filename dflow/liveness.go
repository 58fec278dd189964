// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dflow

import (
	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/il"
)

// BlockSets holds one block's UEVar/VarKill/LiveOut sets (spec.md §4.5).
// Variables are tracked pre-SSA, i.e. with il.NoSubscript.
type BlockSets struct {
	UEVar   map[il.Value]bool
	VarKill map[il.Value]bool
	LiveOut map[il.Value]bool
}

// Liveness is the result of one procedure's liveness computation: per-block
// sets plus the global names (spec.md §4.5: "variables referenced by more
// than one block") that SSA construction inserts phis for.
type Liveness struct {
	Blocks map[cfg.BlockID]*BlockSets

	// GlobalNames are the variable names (not full Values: a variable's
	// width is assumed architecture-consistent for a given name) referenced
	// from more than one block.
	GlobalNames map[string]bool

	// DefBlocks maps each global name to the blocks that assign it, in
	// p.Blocks() order.
	DefBlocks map[string][]cfg.BlockID

	// widths records the bit width first observed for each variable name,
	// used by SSA construction to size phi assignees.
	widths map[string]uint8
}

// ComputeLiveness runs the single-pass UEVar/VarKill/global-names gather
// followed by the LiveOut fixed-point iteration described in spec.md §4.5.
func ComputeLiveness(p *cfg.Procedure) *Liveness {
	l := &Liveness{
		Blocks:      make(map[cfg.BlockID]*BlockSets),
		GlobalNames: make(map[string]bool),
		DefBlocks:   make(map[string][]cfg.BlockID),
		widths:      make(map[string]uint8),
	}

	refBlocks := make(map[string]map[cfg.BlockID]bool)
	defBlocksAll := make(map[string][]cfg.BlockID)

	blocks := p.Blocks()
	for _, id := range blocks {
		bb, _ := p.Block(id)
		sets := &BlockSets{
			UEVar:   make(map[il.Value]bool),
			VarKill: make(map[il.Value]bool),
			LiveOut: make(map[il.Value]bool),
		}
		l.Blocks[id] = sets

		touch := func(v il.Value) {
			if !v.IsVariable() {
				return
			}
			name := v.Name()
			l.widths[name] = v.Width()
			if refBlocks[name] == nil {
				refBlocks[name] = make(map[cfg.BlockID]bool)
			}
			refBlocks[name][id] = true
		}

		for _, m := range bb.Mnemonics {
			for _, inst := range m.Instructions {
				for _, operand := range inst.Operands {
					if operand.IsVariable() {
						touch(operand)
						if !sets.VarKill[stripSubscript(operand)] {
							sets.UEVar[stripSubscript(operand)] = true
						}
					}
				}
				if inst.Assignee.IsVariable() {
					touch(inst.Assignee)
					sets.VarKill[stripSubscript(inst.Assignee)] = true
					defBlocksAll[inst.Assignee.Name()] = appendUniqueBlock(defBlocksAll[inst.Assignee.Name()], id)
				}
			}
		}
	}

	for name, refs := range refBlocks {
		if len(refs) > 1 {
			l.GlobalNames[name] = true
		}
	}
	for name := range l.GlobalNames {
		l.DefBlocks[name] = defBlocksAll[name]
	}

	// Fixed-point LiveOut: LiveOut[b] = U over successors s of
	// (UEVar[s] U (LiveOut[s] \ VarKill[s])).
	changed := true
	for changed {
		changed = false
		for _, id := range blocks {
			sets := l.Blocks[id]
			next := make(map[il.Value]bool)
			for _, s := range p.Successors(id) {
				sSets := l.Blocks[s]
				for v := range sSets.UEVar {
					next[v] = true
				}
				for v := range sSets.LiveOut {
					if !sSets.VarKill[v] {
						next[v] = true
					}
				}
			}
			if !setEqual(sets.LiveOut, next) {
				sets.LiveOut = next
				changed = true
			}
		}
	}

	return l
}

// stripSubscript returns v with its SSA subscript reset to NoSubscript, so
// pre-SSA liveness sets key purely on name+width regardless of any stale
// subscript a caller's Value happens to carry.
func stripSubscript(v il.Value) il.Value {
	if !v.IsVariable() || v.Subscript() == il.NoSubscript {
		return v
	}
	return v.WithSubscript(il.NoSubscript)
}

func appendUniqueBlock(s []cfg.BlockID, b cfg.BlockID) []cfg.BlockID {
	for _, v := range s {
		if v == b {
			return s
		}
	}
	return append(s, b)
}

func setEqual(a, b map[il.Value]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}
