// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package avr implements the architecture trait collaborator (spec.md §6)
// for Atmel AVR: its 16-bit token stream, its register file, and a grammar
// covering the instructions exercised by the end-to-end decode scenarios of
// spec.md §8. Real AVR carries several hundred opcode rows; this grammar is
// not a complete AVR decoder, only enough of one to drive the pipeline
// (ret, nop, rjmp, a conditional branch, a two-word call, and the ldi/ijmp
// pair needed to exhibit a variable jump target that SSCP later resolves).
package avr

import (
	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/disassembler"
	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/mnemonic"
)

// TokenBits is the width of one AVR instruction word.
const TokenBits = 16

// AddrWidth is the bit width this trait uses for program addresses it folds
// into IL Constants.
const AddrWidth = 16

// registerWidths enumerates every name this trait's grammar or a consumer
// of its IL might look up via Width, plus the pseudo-register z that IJMP
// reads its indirect target from.
var registerWidths = buildRegisterWidths()

func buildRegisterWidths() map[string]uint8 {
	m := make(map[string]uint8, 34)
	for i := 0; i < 32; i++ {
		m[registerName(i)] = 8
	}
	m["sreg"] = 8
	m["z"] = AddrWidth
	return m
}

func registerName(n int) string {
	const digits = "0123456789"
	if n < 10 {
		return "r" + string(digits[n])
	}
	return "r" + string(digits[n/10]) + string(digits[n%10])
}

// Registers enumerates every architectural register this trait knows the
// width of, in a stable order.
func Registers() []string {
	out := make([]string, 0, 34)
	for i := 0; i < 32; i++ {
		out = append(out, registerName(i))
	}
	return append(out, "sreg", "z")
}

// Width reports the bit width of the named register.
func Width(name string) (uint8, bool) {
	w, ok := registerWidths[name]
	return w, ok
}

// zReg is the pseudo register IJMP reads its target from and LDI (in this
// trait's simplified encoding) writes its immediate to.
var zReg = il.MustVariable("z", AddrWidth, il.NoSubscript)

// sregReg is the status register BRNE's guard tests.
var sregReg = il.MustVariable("sreg", 8, il.NoSubscript)

// signExtend12 sign-extends a 12-bit two's-complement field.
func signExtend12(k uint64) int64 {
	const signBit = 1 << 11
	if k&signBit != 0 {
		return int64(k) - (1 << 12)
	}
	return int64(k)
}

// signExtend7 sign-extends a 7-bit two's-complement field.
func signExtend7(k uint64) int64 {
	const signBit = 1 << 6
	if k&signBit != 0 {
		return int64(k) - (1 << 7)
	}
	return int64(k)
}

// stepArea returns the byte area consumed by a decode step that matched
// ntoks tokens of the grammar's token width, starting at the state's
// address.
func stepArea(s *disassembler.State, ntoks int) mnemonic.Area {
	span := uint64(ntoks) * (TokenBits / 8)
	return mnemonic.Area{Lo: s.Address, Hi: s.Address + span}
}

// Grammar builds this trait's architecture grammar. Token width is 16 bits
// (TokenBits); multi-word instructions use Sequence to chain terminals.
func Grammar() *disassembler.Grammar {
	g := disassembler.NewGrammar(TokenBits)

	// ret: 1001 0101 0000 1000. Ends the block with no successor at all —
	// the action signals this with an explicit Jump to il.Undefined, which
	// the driver reads as "no edge", distinct from the implicit
	// fall-through a rule gets when it declares no Jump at all.
	g.AddRule(disassembler.MustTerminal("1001010100001000"), func(s *disassembler.State, b *disassembler.Builder) {
		b.Nop()
		if err := b.Emit(stepArea(s, 1), "ret", nil, nil); err != nil {
			panic(err)
		}
		b.Jump(il.Undefined, cfg.True)
	})

	// nop: 0000 0000 0000 0000. Falls through.
	g.AddRule(disassembler.MustTerminal("0000000000000000"), func(s *disassembler.State, b *disassembler.Builder) {
		b.Nop()
		if err := b.Emit(stepArea(s, 1), "nop", nil, nil); err != nil {
			panic(err)
		}
	})

	// rjmp: 1100 kkkk kkkk kkkk, a 12-bit signed word-relative displacement
	// taken from the jump's own address (not the next instruction's), so a
	// k of 0 is a self-loop (spec.md §8 scenario 2).
	g.AddRule(disassembler.MustTerminal("1100k@............"), func(s *disassembler.State, b *disassembler.Builder) {
		k := signExtend12(s.MustCapture("k"))
		target := uint64(int64(s.Address) + 2*k)
		if err := b.Emit(stepArea(s, 1), "rjmp", nil, []il.Value{il.MustConstant(uint64(k)&0xfff, 12)}); err != nil {
			panic(err)
		}
		b.Jump(il.MustConstant(target, AddrWidth), cfg.True)
	})

	// call: a two-word absolute call. Word 1 is a fixed opcode marker with
	// no captures; word 2 is the 16-bit word address of the callee, which
	// this trait doubles into a byte address the way real AVR's
	// word-addressed control transfers work. The call itself never ends
	// the block: the driver discovers the callee separately by scanning
	// for Call(c) (spec.md §4.3 step 4), so this action declares no Jump
	// and falls through to the instruction after the call.
	g.AddRule(
		disassembler.Sequence(
			disassembler.MustTerminal("1001010111001100"),
			disassembler.MustTerminal("tgt@................"),
		),
		func(s *disassembler.State, b *disassembler.Builder) {
			target := s.MustCapture("tgt") * 2
			dst := b.Call(il.Undefined, il.MustConstant(target, AddrWidth))
			if err := b.Emit(stepArea(s, 2), "call", nil, []il.Value{dst, il.MustConstant(target, AddrWidth)}); err != nil {
				panic(err)
			}
		},
	)

	// ldi: 1110 kkkk kkkk kkkk, loading a 12-bit immediate into z. Real
	// AVR's LDI only targets r16-r31 and splits its immediate across two
	// nibbles; this trait's simplified encoding exists solely to give
	// scenario 5 a constant it can later prove reaches IJMP (spec.md §8
	// scenario 5).
	g.AddRule(disassembler.MustTerminal("1110k@............"), func(s *disassembler.State, b *disassembler.Builder) {
		k := s.MustCapture("k")
		b.IntAdd(zReg, il.MustConstant(k, AddrWidth), il.MustConstant(0, AddrWidth))
		if err := b.Emit(stepArea(s, 1), "ldi", nil, []il.Value{zReg, il.MustConstant(k, 12)}); err != nil {
			panic(err)
		}
	})

	// ijmp: 1001 0100 0000 1001. Jumps to whatever z currently holds; the
	// driver records this edge with a variable target until a later SSCP
	// pass proves z constant (spec.md §8 scenario 5).
	g.AddRule(disassembler.MustTerminal("1001010000001001"), func(s *disassembler.State, b *disassembler.Builder) {
		b.Nop()
		if err := b.Emit(stepArea(s, 1), "ijmp", nil, []il.Value{zReg}); err != nil {
			panic(err)
		}
		b.Jump(zReg, cfg.True)
	})

	// brne: 1111 01kk kkkk k001, branch if the zero flag in sreg is clear.
	// Real AVR packs the 7-bit displacement split around the fixed "001"
	// selecting BRNE among BRBC's siblings; this trait keeps that split so
	// the encoding is recognizably AVR's, relative to the branch's own
	// address like rjmp above. Declares both arms explicitly: taken, guarded
	// on sreg != 0, and not-taken (fall-through), guarded on its negation.
	g.AddRule(disassembler.MustTerminal("111101k@.......001"), func(s *disassembler.State, b *disassembler.Builder) {
		k := signExtend7(s.MustCapture("k"))
		target := uint64(int64(s.Address) + 2*k)
		fallthroughAddr := s.Address + 2
		taken := cfg.Guard{Relations: []cfg.Relation{{Op1: sregReg, Op2: il.MustConstant(0, 8), Rel: cfg.Neq}}}
		notTaken, err := taken.Negate()
		if err != nil {
			panic(err)
		}
		if err := b.Emit(stepArea(s, 1), "brne", nil, []il.Value{il.MustConstant(uint64(k)&0x7f, 7)}); err != nil {
			panic(err)
		}
		b.Jump(il.MustConstant(target, AddrWidth), taken)
		b.Jump(il.MustConstant(fallthroughAddr, AddrWidth), notTaken)
	})

	g.SetDefault(func(s *disassembler.State, b *disassembler.Builder) {
		if err := b.Emit(stepArea(s, 1), "unknown", nil, nil); err != nil {
			panic(err)
		}
	})

	return g
}
