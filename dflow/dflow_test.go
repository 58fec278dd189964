// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dflow_test

import (
	"testing"

	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/dflow"
	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/mnemonic"
)

func mustMnemonic(t *testing.T, lo, hi uint64, opcode string, insts []il.Instruction) mnemonic.Mnemonic {
	t.Helper()
	m, err := mnemonic.New(mnemonic.Area{Lo: lo, Hi: hi}, opcode, nil, nil, insts)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func mustInst(t *testing.T, assignee il.Value, op il.Operator, operands ...il.Value) il.Instruction {
	t.Helper()
	inst, err := il.NewInstruction(assignee, op, operands)
	if err != nil {
		t.Fatal(err)
	}
	return inst
}

// buildDiamond builds the spec's φ-insertion scenario: A defines x, branches
// to B or C, each of which redefines x, both joining at D which uses x.
func buildDiamond(t *testing.T) (*cfg.Procedure, cfg.BlockID, cfg.BlockID, cfg.BlockID, cfg.BlockID) {
	t.Helper()
	x := il.MustVariable("x", 8, il.NoSubscript)

	aInst := mustInst(t, x, il.OpIntAdd, il.MustConstant(1, 8), il.MustConstant(0, 8))
	aBB, err := cfg.NewBlock([]mnemonic.Mnemonic{mustMnemonic(t, 0, 2, "a", []il.Instruction{aInst})})
	if err != nil {
		t.Fatal(err)
	}

	bInst := mustInst(t, x, il.OpIntAdd, x, il.MustConstant(1, 8))
	bBB, err := cfg.NewBlock([]mnemonic.Mnemonic{mustMnemonic(t, 2, 4, "b", []il.Instruction{bInst})})
	if err != nil {
		t.Fatal(err)
	}

	cInst := mustInst(t, x, il.OpIntAdd, x, il.MustConstant(2, 8))
	cBB, err := cfg.NewBlock([]mnemonic.Mnemonic{mustMnemonic(t, 4, 6, "c", []il.Instruction{cInst})})
	if err != nil {
		t.Fatal(err)
	}

	y := il.MustVariable("y", 8, il.NoSubscript)
	dInst := mustInst(t, y, il.OpIntAdd, x, x)
	dBB, err := cfg.NewBlock([]mnemonic.Mnemonic{mustMnemonic(t, 6, 8, "d", []il.Instruction{dInst})})
	if err != nil {
		t.Fatal(err)
	}

	p := cfg.New("diamond")
	a := p.AddBlock(aBB)
	b := p.AddBlock(bBB)
	c := p.AddBlock(cBB)
	d := p.AddBlock(dBB)

	resolvedB, resolvedC, resolvedDFromB, resolvedDFromC := b, c, d, d
	p.AddEdge(a, b, cfg.ControlTransfer{Guard: cfg.True, Target: il.MustConstant(2, 16), Resolved: &resolvedB})
	p.AddEdge(a, c, cfg.ControlTransfer{Guard: cfg.True, Target: il.MustConstant(4, 16), Resolved: &resolvedC})
	p.AddEdge(b, d, cfg.ControlTransfer{Guard: cfg.True, Target: il.MustConstant(6, 16), Resolved: &resolvedDFromB})
	p.AddEdge(c, d, cfg.ControlTransfer{Guard: cfg.True, Target: il.MustConstant(6, 16), Resolved: &resolvedDFromC})

	return p, a, b, c, d
}

func TestDominanceDiamond(t *testing.T) {
	p, a, _, _, d := buildDiamond(t)
	dom := dflow.ComputeDominance(p)

	if dom.IDom[d] != a {
		t.Fatalf("expected idom(D) = A, got %v", dom.IDom[d])
	}
	if !dom.Dominates(a, d) {
		t.Fatalf("expected A to dominate D")
	}
}

func TestDominanceFrontierDiamond(t *testing.T) {
	p, a, b, c, d := buildDiamond(t)
	dom := dflow.ComputeDominance(p)

	for _, b := range dom.Frontier[a] {
		if b == d {
			t.Fatalf("D should not be in A's dominance frontier")
		}
	}
	found := func(fr []cfg.BlockID) bool {
		for _, x := range fr {
			if x == d {
				return true
			}
		}
		return false
	}
	if !found(dom.Frontier[b]) {
		t.Fatalf("expected D in B's dominance frontier")
	}
	if !found(dom.Frontier[c]) {
		t.Fatalf("expected D in C's dominance frontier")
	}
}

func TestLivenessGlobalNames(t *testing.T) {
	p, a, _, _, _ := buildDiamond(t)
	live := dflow.ComputeLiveness(p)

	if !live.GlobalNames["x"] {
		t.Fatalf("expected x to be a global name")
	}
	if len(live.DefBlocks["x"]) == 0 {
		t.Fatalf("expected x to have at least one defining block")
	}
	found := false
	for _, b := range live.DefBlocks["x"] {
		if b == a {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected A to be among x's defining blocks")
	}
}

func TestPhiInsertionDiamond(t *testing.T) {
	p, _, _, _, d := buildDiamond(t)
	dom := dflow.ComputeDominance(p)
	live := dflow.ComputeLiveness(p)

	dflow.InsertPhis(p, dom, live)

	dBB, _ := p.Block(d)
	if len(dBB.Mnemonics) == 0 || dBB.Mnemonics[0].Opcode != "internal-phis" {
		t.Fatalf("expected a synthetic phi mnemonic at the head of D")
	}
	phiCount := 0
	for _, inst := range dBB.Mnemonics[0].Instructions {
		if inst.Op == il.OpPhi && inst.Assignee.Name() == "x" {
			phiCount++
			if len(inst.Operands) != 2 {
				t.Fatalf("expected exactly 2 phi operands (one per predecessor), got %d", len(inst.Operands))
			}
		}
	}
	if phiCount != 1 {
		t.Fatalf("expected exactly one phi for x at D, got %d", phiCount)
	}
}

func TestRenameProducesDistinctSubscripts(t *testing.T) {
	p, _, _, _, d := buildDiamond(t)
	dom := dflow.ComputeDominance(p)
	live := dflow.ComputeLiveness(p)
	dflow.InsertPhis(p, dom, live)
	dflow.Rename(p, dom)

	dBB, _ := p.Block(d)
	var phi *il.Instruction
	for i, inst := range dBB.Mnemonics[0].Instructions {
		if inst.Op == il.OpPhi && inst.Assignee.Name() == "x" {
			phi = &dBB.Mnemonics[0].Instructions[i]
		}
	}
	if phi == nil {
		t.Fatalf("expected to find x's phi")
	}
	if phi.Assignee.Subscript() == il.NoSubscript {
		t.Fatalf("expected the phi assignee to have a fresh subscript")
	}
	op0, op1 := phi.Operands[0], phi.Operands[1]
	if op0.Subscript() == il.NoSubscript || op1.Subscript() == il.NoSubscript {
		t.Fatalf("expected both phi operands to be resolved to a reaching definition")
	}
	if op0.Equal(op1) {
		t.Fatalf("expected distinct reaching definitions from B and C, got the same %v", op0)
	}
}

func TestSSCPConstantFolding(t *testing.T) {
	// a := 1 + 0; fold to the constant 1.
	a := il.MustVariable("a", 8, 0)
	inst := mustInst(t, a, il.OpIntAdd, il.MustConstant(1, 8), il.MustConstant(0, 8))
	bb, err := cfg.NewBlock([]mnemonic.Mnemonic{mustMnemonic(t, 0, 2, "add", []il.Instruction{inst})})
	if err != nil {
		t.Fatal(err)
	}
	p := cfg.New("fold")
	p.AddBlock(bb)

	sscp := dflow.ComputeSSCP(p)
	lv, ok := sscp.Values[a]
	if !ok || lv.Kind != dflow.ConstKind || lv.Const != 1 {
		t.Fatalf("expected a to fold to Const(1), got %+v ok=%v", lv, ok)
	}

	addr, ok := sscp.ResolveTarget(a)
	if !ok || addr != 1 {
		t.Fatalf("expected ResolveTarget(a) = 1, got %d ok=%v", addr, ok)
	}
}

func TestSSCPTopOnDivergentDefs(t *testing.T) {
	// a phi merging two different constants must land on Top, not a guess.
	x1 := il.MustVariable("x", 8, 1)
	x2 := il.MustVariable("x", 8, 2)
	x3 := il.MustVariable("x", 8, 3)

	defB := mustInst(t, x1, il.OpIntAdd, il.MustConstant(1, 8), il.MustConstant(0, 8))
	defC := mustInst(t, x2, il.OpIntAdd, il.MustConstant(2, 8), il.MustConstant(0, 8))
	phi := mustInst(t, x3, il.OpPhi, x1, x2)

	bBB, err := cfg.NewBlock([]mnemonic.Mnemonic{mustMnemonic(t, 0, 2, "b", []il.Instruction{defB})})
	if err != nil {
		t.Fatal(err)
	}
	cBB, err := cfg.NewBlock([]mnemonic.Mnemonic{mustMnemonic(t, 2, 4, "c", []il.Instruction{defC})})
	if err != nil {
		t.Fatal(err)
	}
	dBB, err := cfg.NewBlock([]mnemonic.Mnemonic{mustMnemonic(t, 4, 6, "d", []il.Instruction{phi})})
	if err != nil {
		t.Fatal(err)
	}

	p := cfg.New("divergent")
	p.AddBlock(bBB)
	p.AddBlock(cBB)
	p.AddBlock(dBB)

	sscp := dflow.ComputeSSCP(p)
	lv := sscp.Values[x3]
	if lv.Kind != dflow.Top {
		t.Fatalf("expected phi(1, 2) to be Top, got %+v", lv)
	}
}
