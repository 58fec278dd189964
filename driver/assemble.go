// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package driver

import (
	"fmt"
	"sort"

	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/dflow"
	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/mnemonic"
	"github.com/panopticon-re/panopticon/program"
)

// decodeProcedure runs the local decode loop at entry, then alternates block
// assembly with dataflow analysis until a round resolves no new indirect
// jump (spec.md §4.3 steps 2-4): each round assembles a fresh cfg.Procedure
// from every step decoded so far, computes dominance/liveness/SSA/SSCP over
// it, and looks for a sink-routed edge (an unresolved indirect jump) whose
// target SSCP has since proven constant. Resolving one schedules its target
// address for decoding and forces another round, so that a jump chain
// (ldi; ijmp) and its newly reachable code converge together.
func decodeProcedure(arch Architecture, src ByteSource, entry uint64) (*cfg.Procedure, []uint64, *program.Caches, error) {
	ctx := newDecodeCtx(arch, src)
	if err := ctx.decodeFrom(entry); err != nil {
		return nil, nil, nil, err
	}

	resolved := map[uint64]uint64{}

	const maxRounds = 10000
	for round := 0; ; round++ {
		if round >= maxRounds {
			return nil, nil, nil, fmt.Errorf("driver: indirect-jump resolution for procedure at 0x%x did not converge after %d rounds", entry, maxRounds)
		}

		proc, err := assembleProcedure(ctx, entry, resolved, arch.AddrWidth)
		if err != nil {
			return nil, nil, nil, err
		}

		dom := dflow.ComputeDominance(proc)
		live := dflow.ComputeLiveness(proc)
		dflow.InsertPhis(proc, dom, live)
		dflow.Rename(proc, dom)
		sscp := dflow.ComputeSSCP(proc)

		changed := false
		for _, srcID := range proc.Blocks() {
			for _, eid := range proc.OutEdges(srcID) {
				ct, _ := proc.EdgeTransfer(eid)
				if ct.Resolved != nil || !ct.Target.IsVariable() {
					continue
				}
				addr, ok := sscp.ResolveTarget(ct.Target)
				if !ok {
					continue
				}
				bb, _ := proc.Block(srcID)
				stepAddr := bb.Mnemonics[len(bb.Mnemonics)-1].Area.Lo
				if cur, known := resolved[stepAddr]; !known || cur != addr {
					resolved[stepAddr] = addr
					changed = true
				}
				if _, known := ctx.decoded[addr]; !known {
					if err := ctx.decodeFrom(addr); err != nil {
						return nil, nil, nil, err
					}
					changed = true
				}
			}
		}

		if !changed {
			calls := collectCalls(proc)
			caches := &program.Caches{Dominance: dom, Liveness: live, SSCP: sscp}
			return proc, calls, caches, nil
		}
	}
}

// blockSpec is one leader address plus the ordered run of decoded step
// addresses (itself included) that fall into its block.
type blockSpec struct {
	leader uint64
	addrs  []uint64
}

// assembleProcedure builds a fresh cfg.Procedure from every step ctx has
// decoded so far, reached from entry. resolved carries indirect-jump source
// addresses whose target a previous round's SSCP pass proved constant;
// their edges are wired directly to the target's block. An indirect jump
// with no such entry gets no edge at all. Leaders are entry plus every explicit-jump target (never an
// implicit fall-through address), so straight-line runs of mnemonics stay
// in one block (spec.md §4.4).
func assembleProcedure(ctx *decodeCtx, entry uint64, resolved map[uint64]uint64, addrWidth uint8) (*cfg.Procedure, error) {
	leaders := map[uint64]bool{entry: true}
	for addr, st := range ctx.decoded {
		for _, succ := range st.explicit {
			if succ.target.IsConstant() {
				// A jump targeting its own address (rjmp .+0) never forces a
				// split: there is no distinct predecessor on the other side
				// of the boundary it would create, just the jump looping
				// back into the block that already contains it.
				if t := succ.target.Content(); t != addr && ctx.hasStep(t) {
					leaders[t] = true
				}
			}
		}
	}
	for _, t := range resolved {
		if ctx.hasStep(t) {
			leaders[t] = true
		}
	}

	addrs := make([]uint64, 0, len(ctx.decoded))
	for a := range ctx.decoded {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var blocks []blockSpec
	consumed := make(map[uint64]bool, len(addrs))
	for _, start := range addrs {
		if consumed[start] {
			continue
		}
		spec := blockSpec{leader: start}
		cur := start
		for {
			consumed[cur] = true
			spec.addrs = append(spec.addrs, cur)
			st := ctx.decoded[cur]
			if st.terminal || len(st.explicit) > 0 || st.m.HasBranch() {
				// A call ends its block too, even though it only ever
				// falls through (spec.md §4.4: only a block's last
				// mnemonic may carry a branch instruction).
				break
			}
			next := st.m.Area.Hi
			if !ctx.hasStep(next) || leaders[next] {
				break
			}
			cur = next
		}
		blocks = append(blocks, spec)
	}

	proc := cfg.New(fmt.Sprintf("proc_0x%x", entry))
	blockID := make(map[uint64]cfg.BlockID, len(blocks))
	blockHi := make(map[uint64]uint64, len(blocks))
	for _, spec := range blocks {
		mnemonics := make([]mnemonic.Mnemonic, 0, len(spec.addrs))
		for _, a := range spec.addrs {
			mnemonics = append(mnemonics, ctx.decoded[a].m)
		}
		bb, err := cfg.NewBlock(mnemonics)
		if err != nil {
			return nil, fmt.Errorf("driver: assembling block at 0x%x: %w", spec.leader, err)
		}
		blockID[spec.leader] = proc.AddBlock(bb)
		blockHi[spec.leader] = bb.Area.Hi
	}
	if id, ok := blockID[entry]; ok {
		proc.SetEntry(id)
	}

	// resolveAddr finds the block whose area contains addr. A target need
	// not land on a leader: a self-addressed jump (spec.md §8 scenario 2)
	// targets the middle of the very block it closes.
	resolveAddr := func(addr uint64) (cfg.BlockID, bool) {
		for _, spec := range blocks {
			if addr >= spec.leader && addr < blockHi[spec.leader] {
				return blockID[spec.leader], true
			}
		}
		return 0, false
	}

	for _, spec := range blocks {
		srcID := blockID[spec.leader]
		lastAddr := spec.addrs[len(spec.addrs)-1]
		last := ctx.decoded[lastAddr]
		for _, succ := range last.successors(addrWidth) {
			if succ.target.IsConstant() {
				t := succ.target.Content()
				if dstID, ok := resolveAddr(t); ok {
					rid := dstID
					proc.AddEdge(srcID, dstID, cfg.ControlTransfer{Guard: succ.guard, Target: succ.target, Resolved: &rid})
				}
				continue
			}
			if !succ.target.IsVariable() {
				continue
			}
			if known, ok := resolved[lastAddr]; ok {
				if dstID, ok2 := resolveAddr(known); ok2 {
					rid := dstID
					proc.AddEdge(srcID, dstID, cfg.ControlTransfer{Guard: succ.guard, Target: il.MustConstant(known, addrWidth), Resolved: &rid})
					continue
				}
			}
			// Still top (⊤) in SSCP's lattice (spec.md §4.5): no block yet
			// represents this edge's destination, so the edge itself is left
			// unmaterialized rather than pointed at a synthetic empty block,
			// which would violate a BasicBlock's non-empty invariant
			// (cfg.NewBlock's ErrEmptyBlock). The next round's dflow pass
			// gets another chance at resolving it once more code is decoded.
		}
	}

	return proc, nil
}

// hasStep reports whether ctx has already decoded a step at addr.
func (c *decodeCtx) hasStep(addr uint64) bool {
	_, ok := c.decoded[addr]
	return ok
}

// collectCalls scans every mnemonic's lifted instructions for a constant
// il.OpCall target, the call-discovery step of spec.md §4.3 step 4.
func collectCalls(proc *cfg.Procedure) []uint64 {
	var calls []uint64
	seen := map[uint64]bool{}
	for _, id := range proc.Blocks() {
		bb, _ := proc.Block(id)
		for _, m := range bb.Mnemonics {
			for _, inst := range m.Instructions {
				if inst.Op != il.OpCall || len(inst.Operands) == 0 {
					continue
				}
				target := inst.Operands[0]
				if !target.IsConstant() {
					continue
				}
				addr := target.Content()
				if !seen[addr] {
					seen[addr] = true
					calls = append(calls, addr)
				}
			}
		}
	}
	return calls
}
