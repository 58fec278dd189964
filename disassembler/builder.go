// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disassembler

import (
	"fmt"

	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/mnemonic"
)

// base36 is the digit alphabet Builder.Temp uses to keep generated variable
// names within il.MaxNameLength.
const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Counter is the per-architecture-session temporary-name counter a driver
// threads into every Builder it creates for that session (spec.md §9's note
// on global mutable state: the counter is owned by the driver's session
// object, never a package-level variable, so two concurrent decode sessions
// never collide).
type Counter struct {
	n uint64
}

// Next returns the next unused counter value.
func (c *Counter) Next() uint64 {
	v := c.n
	c.n++
	return v
}

// Builder is the code-generator DSL exposed to a rule's semantic action: a
// typed constructor for every IL operator, each either taking an explicit
// destination lvalue or allocating a fresh architecture-unique temporary,
// plus Emit and Jump to record the step's mnemonic and successors
// (spec.md §4.2). A Builder is used for exactly one decode step and
// discarded; it holds no state that outlives that step except through the
// Counter it was given.
type Builder struct {
	counter *Counter

	instructions []il.Instruction
	mnemonics    []mnemonic.Mnemonic
	jumps        []Jump
}

// NewBuilder creates a Builder for one decode step, drawing temporary names
// from counter.
func NewBuilder(counter *Counter) *Builder {
	return &Builder{counter: counter}
}

// Temp allocates a fresh architecture-unique variable of the given width.
func (b *Builder) Temp(width uint8) il.Value {
	n := b.counter.Next()
	name := "v"
	if n == 0 {
		name += "0"
	} else {
		var digits []byte
		for n > 0 {
			digits = append([]byte{base36[n%36]}, digits...)
			n /= 36
		}
		name += string(digits)
	}
	if len(name) > il.MaxNameLength {
		panic(fmt.Sprintf("disassembler: temporary name %q exceeds max length; counter exhausted", name))
	}
	return il.MustVariable(name, width, il.NoSubscript)
}

// dest returns to when it is not Undefined, otherwise allocates a fresh
// temporary of width.
func (b *Builder) dest(to il.Value, width uint8) il.Value {
	if to.IsUndefined() {
		return b.Temp(width)
	}
	return to
}

func (b *Builder) binary(op il.Operator, to, op1, op2 il.Value) il.Value {
	width := uint8(1)
	if op1.Kind() == il.KindConstant || op1.Kind() == il.KindVariable {
		width = op1.Width()
	}
	dst := b.dest(to, width)
	inst, err := il.NewInstruction(dst, op, []il.Value{op1, op2})
	if err != nil {
		panic(err)
	}
	b.instructions = append(b.instructions, inst)
	return dst
}

func (b *Builder) unary(op il.Operator, to, op1 il.Value) il.Value {
	width := uint8(1)
	if op1.Kind() == il.KindConstant || op1.Kind() == il.KindVariable {
		width = op1.Width()
	}
	dst := b.dest(to, width)
	inst, err := il.NewInstruction(dst, op, []il.Value{op1})
	if err != nil {
		panic(err)
	}
	b.instructions = append(b.instructions, inst)
	return dst
}

// And builds a logical conjunction, assigning to to (or a fresh temporary).
func (b *Builder) And(to, op1, op2 il.Value) il.Value { return b.binary(il.OpAnd, to, op1, op2) }

// Or builds a logical disjunction.
func (b *Builder) Or(to, op1, op2 il.Value) il.Value { return b.binary(il.OpOr, to, op1, op2) }

// Not builds a logical negation.
func (b *Builder) Not(to, op1 il.Value) il.Value { return b.unary(il.OpNot, to, op1) }

// Impl builds a logical implication.
func (b *Builder) Impl(to, op1, op2 il.Value) il.Value { return b.binary(il.OpImpl, to, op1, op2) }

// Equiv builds a logical equivalence.
func (b *Builder) Equiv(to, op1, op2 il.Value) il.Value { return b.binary(il.OpEquiv, to, op1, op2) }

// IntAnd builds a bitwise AND.
func (b *Builder) IntAnd(to, op1, op2 il.Value) il.Value { return b.binary(il.OpIntAnd, to, op1, op2) }

// IntOr builds a bitwise OR.
func (b *Builder) IntOr(to, op1, op2 il.Value) il.Value { return b.binary(il.OpIntOr, to, op1, op2) }

// IntXor builds a bitwise XOR.
func (b *Builder) IntXor(to, op1, op2 il.Value) il.Value {
	return b.binary(il.OpIntXor, to, op1, op2)
}

// IntAdd builds an integer addition.
func (b *Builder) IntAdd(to, op1, op2 il.Value) il.Value {
	return b.binary(il.OpIntAdd, to, op1, op2)
}

// IntSub builds an integer subtraction.
func (b *Builder) IntSub(to, op1, op2 il.Value) il.Value {
	return b.binary(il.OpIntSub, to, op1, op2)
}

// IntMul builds an integer multiplication.
func (b *Builder) IntMul(to, op1, op2 il.Value) il.Value {
	return b.binary(il.OpIntMul, to, op1, op2)
}

// IntDiv builds an integer division.
func (b *Builder) IntDiv(to, op1, op2 il.Value) il.Value {
	return b.binary(il.OpIntDiv, to, op1, op2)
}

// IntMod builds an integer modulo.
func (b *Builder) IntMod(to, op1, op2 il.Value) il.Value {
	return b.binary(il.OpIntMod, to, op1, op2)
}

// IntLess builds an unsigned integer less-than comparison.
func (b *Builder) IntLess(to, op1, op2 il.Value) il.Value {
	return b.binary(il.OpIntLess, to, op1, op2)
}

// IntEqual builds an integer equality comparison.
func (b *Builder) IntEqual(to, op1, op2 il.Value) il.Value {
	return b.binary(il.OpIntEqual, to, op1, op2)
}

// Lift wraps op1 as an opaque, not-further-modeled instruction, used for
// instructions whose full semantics the architecture trait has not (yet)
// formalized.
func (b *Builder) Lift(to, op1 il.Value) il.Value { return b.unary(il.OpLift, to, op1) }

// Call records a call to target. It declares no successor: the step's
// successors are whatever the action passes to Jump, or the implicit
// fall-through when it declares none.
func (b *Builder) Call(to, target il.Value) il.Value { return b.unary(il.OpCall, to, target) }

// Phi builds a phi node over operands, assigning to to (or a fresh
// temporary). Used by SSA construction, not by architecture rules directly.
func (b *Builder) Phi(to il.Value, operands []il.Value) il.Value {
	width := uint8(1)
	if len(operands) > 0 && (operands[0].Kind() == il.KindConstant || operands[0].Kind() == il.KindVariable) {
		width = operands[0].Width()
	}
	dst := b.dest(to, width)
	inst, err := il.NewInstruction(dst, il.OpPhi, operands)
	if err != nil {
		panic(err)
	}
	b.instructions = append(b.instructions, inst)
	return dst
}

// Nop records a no-op instruction.
func (b *Builder) Nop() {
	inst, err := il.NewInstruction(b.Temp(1), il.OpNop, nil)
	if err != nil {
		panic(err)
	}
	b.instructions = append(b.instructions, inst)
}

// Emit records the mnemonic decoded by the current step, covering area and
// carrying every instruction built on this Builder so far.
func (b *Builder) Emit(area mnemonic.Area, opcode string, format []mnemonic.FormatToken, operands []il.Value) error {
	m, err := mnemonic.New(area, opcode, format, operands, b.instructions)
	if err != nil {
		return err
	}
	b.mnemonics = append(b.mnemonics, m)
	b.instructions = nil
	return nil
}

// Jump declares one control-transfer successor of the current step. guard
// defaults to cfg.True (unconditional) when zero-valued.
func (b *Builder) Jump(target il.Value, guard cfg.Guard) {
	b.jumps = append(b.jumps, Jump{Target: target, Guard: guard})
}

// Mnemonics returns every mnemonic this Builder has recorded.
func (b *Builder) Mnemonics() []mnemonic.Mnemonic {
	return append([]mnemonic.Mnemonic(nil), b.mnemonics...)
}

// Jumps returns every successor this Builder's action has declared.
func (b *Builder) Jumps() []Jump { return append([]Jump(nil), b.jumps...) }
