// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dflow

import (
	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/il"
)

// LatticeKind is one point of the three-point SSCP lattice (spec.md §4.5).
type LatticeKind uint8

const (
	Bottom LatticeKind = iota
	ConstKind
	Top
)

// LatticeValue is one variable's sparse-constant-propagation state: unknown
// yet (Bottom), known to be a single constant (ConstKind), or proven to
// vary (Top).
type LatticeValue struct {
	Kind  LatticeKind
	Const uint64
}

// meet implements the lattice's meet operator: ⊥ ⊓ x = x, Const(c) ⊓
// Const(c) = Const(c), otherwise ⊤. meet(cur, next) never moves cur's
// position down the ⊥ → Const → ⊤ order, which is what gives
// ComputeSSCP's fixed-point loop its monotonicity guarantee (spec.md §8).
func meet(a, b LatticeValue) LatticeValue {
	if a.Kind == Bottom {
		return b
	}
	if b.Kind == Bottom {
		return a
	}
	if a.Kind == ConstKind && b.Kind == ConstKind && a.Const == b.Const {
		return a
	}
	return LatticeValue{Kind: Top}
}

// SSCP is the result of one procedure's sparse constant propagation pass:
// each SSA variable's lattice value, keyed by the exact (name, width,
// subscript) il.Value it was defined as.
type SSCP struct {
	Values map[il.Value]LatticeValue
}

// ResolveTarget returns the known constant value of v, if any: v itself when
// it is already a Constant, or its current lattice value when it is an SSA
// Variable resolved to ConstKind. The driver calls this to try to resolve an
// indirect jump's symbolic target (spec.md §4.3, §8 scenario 5).
func (s *SSCP) ResolveTarget(v il.Value) (uint64, bool) {
	if v.Kind() == il.KindConstant {
		return v.Content(), true
	}
	if !v.IsVariable() {
		return 0, false
	}
	lv, ok := s.Values[v]
	if !ok || lv.Kind != ConstKind {
		return 0, false
	}
	return lv.Const, true
}

// ComputeSSCP runs sparse constant propagation to a fixed point over p,
// which must already be in SSA form (see InsertPhis, Rename).
func ComputeSSCP(p *cfg.Procedure) *SSCP {
	s := &SSCP{Values: make(map[il.Value]LatticeValue)}

	changed := true
	for changed {
		changed = false
		for _, id := range p.Blocks() {
			bb, _ := p.Block(id)
			for _, m := range bb.Mnemonics {
				for _, inst := range m.Instructions {
					if !inst.Assignee.IsVariable() {
						continue
					}
					operands := make([]LatticeValue, len(inst.Operands))
					for i, op := range inst.Operands {
						operands[i] = valueLattice(op, s.Values)
					}
					next := evalOp(inst.Op, operands, inst.Assignee.Width())

					cur, ok := s.Values[inst.Assignee]
					if !ok {
						cur = LatticeValue{Kind: Bottom}
					}
					merged := meet(cur, next)
					if merged != cur {
						s.Values[inst.Assignee] = merged
						changed = true
					}
				}
			}
		}
	}
	return s
}

func valueLattice(v il.Value, values map[il.Value]LatticeValue) LatticeValue {
	switch v.Kind() {
	case il.KindConstant:
		return LatticeValue{Kind: ConstKind, Const: v.Content()}
	case il.KindUndefined:
		return LatticeValue{Kind: Bottom}
	case il.KindVariable:
		if lv, ok := values[v]; ok {
			return lv
		}
		return LatticeValue{Kind: Bottom}
	default: // Memory: unmodeled by this analysis, always varying
		return LatticeValue{Kind: Top}
	}
}

func evalOp(op il.Operator, operands []LatticeValue, width uint8) LatticeValue {
	switch op {
	case il.OpPhi:
		result := LatticeValue{Kind: Bottom}
		for _, o := range operands {
			result = meet(result, o)
		}
		return result
	case il.OpNop, il.OpLift, il.OpCall:
		return LatticeValue{Kind: Top}
	}

	for _, o := range operands {
		if o.Kind == Top {
			return LatticeValue{Kind: Top}
		}
	}
	for _, o := range operands {
		if o.Kind == Bottom {
			return LatticeValue{Kind: Bottom}
		}
	}

	a := operands[0].Const
	var b uint64
	if len(operands) > 1 {
		b = operands[1].Const
	}

	var result uint64
	switch op {
	case il.OpAnd:
		result = boolToU64(a != 0 && b != 0)
	case il.OpOr:
		result = boolToU64(a != 0 || b != 0)
	case il.OpNot:
		result = boolToU64(a == 0)
	case il.OpImpl:
		result = boolToU64(a == 0 || b != 0)
	case il.OpEquiv:
		result = boolToU64((a != 0) == (b != 0))
	case il.OpIntAnd:
		result = a & b
	case il.OpIntOr:
		result = a | b
	case il.OpIntXor:
		result = a ^ b
	case il.OpIntAdd:
		result = a + b
	case il.OpIntSub:
		result = a - b
	case il.OpIntMul:
		result = a * b
	case il.OpIntDiv:
		if b == 0 {
			return LatticeValue{Kind: Top}
		}
		result = a / b
	case il.OpIntMod:
		if b == 0 {
			return LatticeValue{Kind: Top}
		}
		result = a % b
	case il.OpIntLess:
		result = boolToU64(a < b)
	case il.OpIntEqual:
		result = boolToU64(a == b)
	default:
		return LatticeValue{Kind: Top}
	}
	return LatticeValue{Kind: ConstKind, Const: truncate(result, width)}
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func truncate(v uint64, width uint8) uint64 {
	if width >= 64 {
		return v
	}
	return v & ((uint64(1) << width) - 1)
}
