// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disassembler_test

import (
	"testing"

	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/disassembler"
	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/mnemonic"
)

func TestBuilderTempNamesAreUniqueAndShort(t *testing.T) {
	c := &disassembler.Counter{}
	b := disassembler.NewBuilder(c)

	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		v := b.Temp(8)
		if len(v.Name()) > il.MaxNameLength {
			t.Fatalf("temp name %q exceeds max length", v.Name())
		}
		if seen[v.Name()] {
			t.Fatalf("temp name %q reused", v.Name())
		}
		seen[v.Name()] = true
	}
}

func TestBuilderBinaryOpUsesExplicitDestination(t *testing.T) {
	c := &disassembler.Counter{}
	b := disassembler.NewBuilder(c)
	dst := il.MustVariable("r0", 8, il.NoSubscript)
	got := b.IntAdd(dst, il.MustConstant(1, 8), il.MustConstant(2, 8))
	if !got.Equal(dst) {
		t.Fatalf("expected IntAdd to assign to the explicit destination")
	}
}

func TestBuilderBinaryOpAllocatesTempWhenDestUndefined(t *testing.T) {
	c := &disassembler.Counter{}
	b := disassembler.NewBuilder(c)
	got := b.IntAdd(il.Undefined, il.MustConstant(1, 8), il.MustConstant(2, 8))
	if !got.IsVariable() {
		t.Fatalf("expected a fresh temporary, got %v", got)
	}
}

func TestBuilderEmitAndJump(t *testing.T) {
	c := &disassembler.Counter{}
	b := disassembler.NewBuilder(c)

	b.IntAdd(il.MustVariable("r0", 8, il.NoSubscript), il.MustConstant(1, 8), il.MustConstant(2, 8))
	if err := b.Emit(mnemonic.Area{Lo: 0, Hi: 2}, "add", nil, nil); err != nil {
		t.Fatal(err)
	}
	b.Jump(il.MustConstant(2, 16), cfg.True)

	mnemonics := b.Mnemonics()
	if len(mnemonics) != 1 {
		t.Fatalf("expected one emitted mnemonic, got %d", len(mnemonics))
	}
	if len(mnemonics[0].Instructions) != 1 {
		t.Fatalf("expected the emitted mnemonic to carry its instruction")
	}

	jumps := b.Jumps()
	if len(jumps) != 1 || !jumps[0].Target.Equal(il.MustConstant(2, 16)) {
		t.Fatalf("expected one jump to 0x2, got %v", jumps)
	}
}

func TestBuilderEmitClearsInstructionsBetweenMnemonics(t *testing.T) {
	c := &disassembler.Counter{}
	b := disassembler.NewBuilder(c)

	b.Nop()
	if err := b.Emit(mnemonic.Area{Lo: 0, Hi: 1}, "nop", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := b.Emit(mnemonic.Area{Lo: 1, Hi: 2}, "nop2", nil, nil); err != nil {
		t.Fatal(err)
	}

	mnemonics := b.Mnemonics()
	if len(mnemonics[1].Instructions) != 0 {
		t.Fatalf("expected the second mnemonic to start with no carried-over instructions")
	}
}
