// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dflow

import (
	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/mnemonic"
)

// phiOpcode is the synthetic mnemonic opcode a block's phi instructions live
// under, so that ordinary mnemonic machinery (area, instruction list) can
// carry them without a parallel representation (spec.md §4.5).
const phiOpcode = "internal-phis"

// InsertPhis runs the standard worklist phi-placement algorithm: for every
// global name, starting from its defining blocks, insert a phi at every
// block in the dominance frontier that doesn't already have one, adding
// newly-touched blocks back onto the worklist since a freshly inserted phi
// is itself a definition.
func InsertPhis(p *cfg.Procedure, dom *DomTree, live *Liveness) {
	hasPhi := make(map[cfg.BlockID]map[string]bool)

	for name := range live.GlobalNames {
		worklist := append([]cfg.BlockID(nil), live.DefBlocks[name]...)
		onWorklist := make(map[cfg.BlockID]bool, len(worklist))
		for _, b := range worklist {
			onWorklist[b] = true
		}

		for len(worklist) > 0 {
			b := worklist[0]
			worklist = worklist[1:]

			for _, d := range dom.Frontier[b] {
				if hasPhi[d][name] {
					continue
				}
				insertPhi(p, d, name, live.widths[name])
				if hasPhi[d] == nil {
					hasPhi[d] = make(map[string]bool)
				}
				hasPhi[d][name] = true

				if !onWorklist[d] {
					onWorklist[d] = true
					worklist = append(worklist, d)
				}
			}
		}
	}
}

func insertPhi(p *cfg.Procedure, id cfg.BlockID, name string, width uint8) {
	bb, _ := p.Block(id)

	operands := make([]il.Value, len(p.Predecessors(id)))
	for i := range operands {
		operands[i] = il.Undefined
	}
	assignee := il.MustVariable(name, width, il.NoSubscript)
	inst, err := il.NewInstruction(assignee, il.OpPhi, operands)
	if err != nil {
		panic(err)
	}

	rest := bb.Mnemonics
	var phiMnemonic mnemonic.Mnemonic
	if len(rest) > 0 && rest[0].Opcode == phiOpcode {
		phiMnemonic = rest[0]
		phiMnemonic.Instructions = append(append([]il.Instruction(nil), phiMnemonic.Instructions...), inst)
		rest = rest[1:]
	} else {
		area := mnemonic.Area{Lo: bb.Area.Lo, Hi: bb.Area.Lo + 1}
		m, err := mnemonic.New(area, phiOpcode, nil, nil, []il.Instruction{inst})
		if err != nil {
			panic(err)
		}
		phiMnemonic = m
	}

	bb.Mnemonics = append([]mnemonic.Mnemonic{phiMnemonic}, rest...)
	p.SetBlock(id, bb)
}

// renamer carries the per-name counter and per-name stack of the dominator
// tree DFS renaming pass (spec.md §4.5).
type renamer struct {
	p       *cfg.Procedure
	dom     *DomTree
	counter map[string]int
	stack   map[string][]int
}

// Rename performs the dominator-tree DFS renaming pass over p, assuming phis
// have already been inserted by InsertPhis using the same DomTree.
func Rename(p *cfg.Procedure, dom *DomTree) {
	r := &renamer{p: p, dom: dom, counter: make(map[string]int), stack: make(map[string][]int)}
	r.visit(dom.Entry)
}

func (r *renamer) push(name string) int {
	sub := r.counter[name]
	r.counter[name]++
	r.stack[name] = append(r.stack[name], sub)
	return sub
}

func (r *renamer) top(name string) (int, bool) {
	s := r.stack[name]
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

func (r *renamer) pop(name string) {
	s := r.stack[name]
	r.stack[name] = s[:len(s)-1]
}

// rewriteUse rewrites a right-hand-side variable reference to the current
// reaching subscript. A variable with no reaching definition (empty stack)
// is left with il.NoSubscript, signaling a read of an uninitialized
// variable; spec.md §4.5 requires LiveOut[entry] be empty precisely so this
// never happens in a well-formed procedure.
func (r *renamer) rewriteUse(v il.Value) il.Value {
	if !v.IsVariable() || v.Subscript() != il.NoSubscript {
		return v
	}
	sub, ok := r.top(v.Name())
	if !ok {
		return v
	}
	return v.WithSubscript(sub)
}

func (r *renamer) visit(b cfg.BlockID) {
	bb, _ := r.p.Block(b)
	var pushed []string

	mnemonics := append([]mnemonic.Mnemonic(nil), bb.Mnemonics...)
	start := 0
	if len(mnemonics) > 0 && mnemonics[0].Opcode == phiOpcode {
		phis := mnemonics[0]
		insts := append([]il.Instruction(nil), phis.Instructions...)
		for i, inst := range insts {
			sub := r.push(inst.Assignee.Name())
			pushed = append(pushed, inst.Assignee.Name())
			inst.Assignee = inst.Assignee.WithSubscript(sub)
			insts[i] = inst
		}
		phis.Instructions = insts
		mnemonics[0] = phis
		start = 1
	}

	for i := start; i < len(mnemonics); i++ {
		m := mnemonics[i]
		insts := append([]il.Instruction(nil), m.Instructions...)
		for j, inst := range insts {
			operands := append([]il.Value(nil), inst.Operands...)
			for k, op := range operands {
				operands[k] = r.rewriteUse(op)
			}
			inst.Operands = operands
			if inst.Assignee.IsVariable() {
				sub := r.push(inst.Assignee.Name())
				pushed = append(pushed, inst.Assignee.Name())
				inst.Assignee = inst.Assignee.WithSubscript(sub)
			}
			insts[j] = inst
		}
		m.Instructions = insts

		operands := append([]il.Value(nil), m.Operands...)
		for k, op := range operands {
			operands[k] = r.rewriteUse(op)
		}
		m.Operands = operands
		mnemonics[i] = m
	}
	bb.Mnemonics = mnemonics
	r.p.SetBlock(b, bb)

	for _, e := range r.p.OutEdges(b) {
		ct, _ := r.p.EdgeTransfer(e)
		changed := false
		if ct.Target.IsVariable() {
			rewritten := r.rewriteUse(ct.Target)
			if !rewritten.Equal(ct.Target) {
				ct.Target = rewritten
				changed = true
			}
		}
		if !ct.Guard.IsTrue() {
			relations := append([]cfg.Relation(nil), ct.Guard.Relations...)
			for i, rel := range relations {
				rel.Op1 = r.rewriteUse(rel.Op1)
				rel.Op2 = r.rewriteUse(rel.Op2)
				relations[i] = rel
			}
			ct.Guard = cfg.Guard{Relations: relations}
			changed = true
		}
		if changed {
			r.p.SetEdgeTransfer(e, ct)
		}
	}

	for _, s := range dedupeBlocks(r.p.Successors(b)) {
		ordinal := -1
		for i, pred := range r.p.Predecessors(s) {
			if pred == b {
				ordinal = i
				break
			}
		}
		if ordinal < 0 {
			continue
		}
		sBB, _ := r.p.Block(s)
		if len(sBB.Mnemonics) == 0 || sBB.Mnemonics[0].Opcode != phiOpcode {
			continue
		}
		phis := sBB.Mnemonics[0]
		insts := append([]il.Instruction(nil), phis.Instructions...)
		for i, inst := range insts {
			if ordinal >= len(inst.Operands) {
				continue
			}
			name := inst.Assignee.Name()
			sub, ok := r.top(name)
			if !ok {
				continue
			}
			operands := append([]il.Value(nil), inst.Operands...)
			operands[ordinal] = il.MustVariable(name, inst.Assignee.Width(), sub)
			inst.Operands = operands
			insts[i] = inst
		}
		phis.Instructions = insts
		sBB.Mnemonics[0] = phis
		r.p.SetBlock(s, sBB)
	}

	for _, child := range r.dom.Children(b) {
		r.visit(child)
	}

	for _, name := range pushed {
		r.pop(name)
	}
}

func dedupeBlocks(bs []cfg.BlockID) []cfg.BlockID {
	seen := make(map[cfg.BlockID]bool, len(bs))
	out := make([]cfg.BlockID, 0, len(bs))
	for _, b := range bs {
		if seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}
