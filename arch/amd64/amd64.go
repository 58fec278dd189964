// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package amd64 implements the architecture trait collaborator (spec.md §6)
// for AMD64: an 8-bit-token grammar framework, not a real instruction table.
// It wires just enough of the encoding to demonstrate the grammar DSL's
// capture groups (inc), a multi-token Sequence (the 0x0F two-byte escape),
// and a SubGrammar reference (the rules reached through that escape) — real
// AMD64 opcode tables remain a collaborator's concern (spec.md §9).
package amd64

import (
	"math/bits"

	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/disassembler"
	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/mnemonic"
)

// TokenBits is the width of one AMD64 instruction byte.
const TokenBits = 8

// AddrWidth is the bit width this trait uses for program addresses it folds
// into IL Constants.
const AddrWidth = 64

// registerWidths enumerates the handful of registers this trait's rules
// reference; a real table would carry all sixteen GPRs in every width.
var registerWidths = map[string]uint8{
	"eax": 32, "ecx": 32, "edx": 32, "ebx": 32,
	"esp": 32, "ebp": 32, "esi": 32, "edi": 32,
	"zf": 1,
}

var gprByField = []string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}

// Registers enumerates every register this trait knows the width of.
func Registers() []string {
	out := make([]string, 0, len(gprByField)+1)
	out = append(out, gprByField...)
	return append(out, "zf")
}

// Width reports the bit width of the named register.
func Width(name string) (uint8, bool) {
	w, ok := registerWidths[name]
	return w, ok
}

// zfReg is the zero flag jz/jnz guard on.
var zfReg = il.MustVariable("zf", 1, il.NoSubscript)

func stepArea(s *disassembler.State, nbytes uint64) mnemonic.Area {
	return mnemonic.Area{Lo: s.Address, Hi: s.Address + nbytes}
}

func signExtend8(k uint64) int64 {
	const signBit = 1 << 7
	if k&signBit != 0 {
		return int64(k) - (1 << 8)
	}
	return int64(k)
}

func signExtend32(k uint64) int64 {
	const signBit = 1 << 31
	if k&signBit != 0 {
		return int64(k) - (1 << 32)
	}
	return int64(k)
}

// twoByteGrammar is reached through the 0x0F escape. Its only rule's pattern
// carries the sub-opcode byte forward as a capture ("op"); per the grammar
// DSL's SubGrammar semantics, a sub-grammar's own rule Action never runs —
// only the bits it matches and captures are merged up into whichever outer
// rule referenced it — so this rule's Action is unreachable and left empty.
func twoByteGrammar() *disassembler.Grammar {
	g := disassembler.NewGrammar(TokenBits)
	g.AddRule(disassembler.MustTerminal("op@........"), func(*disassembler.State, *disassembler.Builder) {})
	return g
}

// Grammar builds this trait's architecture grammar. Token width is 8 bits
// (TokenBits); the 0x0F escape demonstrates Sequence composed with
// SubGrammar.
func Grammar() *disassembler.Grammar {
	g := disassembler.NewGrammar(TokenBits)
	twoByte := twoByteGrammar()

	// ret near: 0xC3. Ends the block with no successor at all.
	g.AddRule(disassembler.MustTerminal("11000011"), func(s *disassembler.State, b *disassembler.Builder) {
		b.Nop()
		if err := b.Emit(stepArea(s, 1), "ret", nil, nil); err != nil {
			panic(err)
		}
		b.Jump(il.Undefined, cfg.True)
	})

	// nop: 0x90. Falls through.
	g.AddRule(disassembler.MustTerminal("10010000"), func(s *disassembler.State, b *disassembler.Builder) {
		b.Nop()
		if err := b.Emit(stepArea(s, 1), "nop", nil, nil); err != nil {
			panic(err)
		}
	})

	// inc r32: 0100 0rrr (0x40-0x47 in legacy 32-bit mode). Captures the
	// 3-bit register field, demonstrating a single-terminal capture group
	// distinct from AVR's wider fields.
	g.AddRule(disassembler.MustTerminal("01000r@..."), func(s *disassembler.State, b *disassembler.Builder) {
		field := s.MustCapture("r")
		reg := il.MustVariable(gprByField[field], 32, il.NoSubscript)
		b.IntAdd(reg, reg, il.MustConstant(1, 32))
		if err := b.Emit(stepArea(s, 1), "inc", nil, []il.Value{reg}); err != nil {
			panic(err)
		}
	})

	// call rel32: 0xE8 id, a near relative call. Real AMD64 semantics (unlike
	// arch/avr's deliberately self-addressed rjmp): the displacement is
	// relative to the address of the instruction *after* the call. The call
	// declares no jump, so the driver continues at the fall-through and
	// discovers the callee by scanning for Call(c) (spec.md §4.3 step 4).
	g.AddRule(disassembler.MustTerminal("11101000k@................................"), func(s *disassembler.State, b *disassembler.Builder) {
		next := s.Address + 5
		// The capture holds the four displacement bytes first byte most
		// significant; the encoding stores them little-endian.
		disp := uint64(bits.ReverseBytes32(uint32(s.MustCapture("k"))))
		target := uint64(int64(next) + signExtend32(disp))
		dst := b.Call(il.Undefined, il.MustConstant(target, AddrWidth))
		if err := b.Emit(stepArea(s, 5), "call", nil, []il.Value{dst, il.MustConstant(target, AddrWidth)}); err != nil {
			panic(err)
		}
	})

	// jmp rel8: 0xEB cb, an unconditional short jump relative to the next
	// instruction's address.
	g.AddRule(disassembler.MustTerminal("11101011k@........"), func(s *disassembler.State, b *disassembler.Builder) {
		next := s.Address + 2
		target := uint64(int64(next) + signExtend8(s.MustCapture("k")))
		if err := b.Emit(stepArea(s, 2), "jmp", nil, []il.Value{il.MustConstant(target, AddrWidth)}); err != nil {
			panic(err)
		}
		b.Jump(il.MustConstant(target, AddrWidth), cfg.True)
	})

	// jz rel8: 0x74 cb, branch if the zero flag is set. Declares both arms
	// explicitly, the way arch/avr's brne does for sreg.
	g.AddRule(disassembler.MustTerminal("01110100k@........"), func(s *disassembler.State, b *disassembler.Builder) {
		next := s.Address + 2
		target := uint64(int64(next) + signExtend8(s.MustCapture("k")))
		taken := cfg.Guard{Relations: []cfg.Relation{{Op1: zfReg, Op2: il.MustConstant(1, 1), Rel: cfg.Eq}}}
		notTaken, err := taken.Negate()
		if err != nil {
			panic(err)
		}
		if err := b.Emit(stepArea(s, 2), "jz", nil, []il.Value{il.MustConstant(target, AddrWidth)}); err != nil {
			panic(err)
		}
		b.Jump(il.MustConstant(target, AddrWidth), taken)
		b.Jump(il.MustConstant(next, AddrWidth), notTaken)
	})

	// The 0x0F two-byte escape: Sequence(terminal 0x0F, SubGrammar(twoByte)).
	// Every instruction reached this way lifts as an opaque "twobyte" opcode
	// tagged with the sub-opcode byte the sub-grammar captured — real decode
	// of the two-byte table is a collaborator's concern (spec.md §9).
	g.AddRule(disassembler.Sequence(disassembler.MustTerminal("00001111"), disassembler.SubGrammar(twoByte)),
		func(s *disassembler.State, b *disassembler.Builder) {
			op := s.MustCapture("op")
			b.Lift(il.Undefined, il.MustConstant(op, 8))
			if err := b.Emit(stepArea(s, 2), "twobyte", nil, []il.Value{il.MustConstant(op, 8)}); err != nil {
				panic(err)
			}
		},
	)

	g.SetDefault(func(s *disassembler.State, b *disassembler.Builder) {
		if err := b.Emit(stepArea(s, 1), "unknown", nil, nil); err != nil {
			panic(err)
		}
	})

	return g
}
