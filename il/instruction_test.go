// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package il_test

import (
	"testing"

	"github.com/panopticon-re/panopticon/il"
)

func TestNewInstructionBinary(t *testing.T) {
	dst := il.MustVariable("r0", 32, il.NoSubscript)
	a := il.MustVariable("r1", 32, il.NoSubscript)
	b := il.MustConstant(4, 32)

	inst, err := il.NewInstruction(dst, il.OpIntAdd, []il.Value{a, b})
	if err != nil {
		t.Fatalf("NewInstruction: %v", err)
	}
	if inst.Op != il.OpIntAdd || len(inst.Operands) != 2 {
		t.Fatalf("unexpected instruction: %+v", inst)
	}
}

func TestNewInstructionArityMismatch(t *testing.T) {
	dst := il.MustVariable("r0", 32, il.NoSubscript)
	a := il.MustVariable("r1", 32, il.NoSubscript)
	if _, err := il.NewInstruction(dst, il.OpIntAdd, []il.Value{a}); err == nil {
		t.Fatalf("expected arity error")
	}
	if _, err := il.NewInstruction(dst, il.OpNot, []il.Value{a, a}); err == nil {
		t.Fatalf("expected arity error for unary op with two operands")
	}
}

func TestNewInstructionRejectsConstantAssignee(t *testing.T) {
	dst := il.MustConstant(1, 8)
	a := il.MustVariable("r1", 8, il.NoSubscript)
	if _, err := il.NewInstruction(dst, il.OpNot, []il.Value{a}); err == nil {
		t.Fatalf("expected domain error assigning to a constant")
	}
}

func TestNewInstructionRejectsMemoryOperandForIntOp(t *testing.T) {
	dst := il.MustVariable("r0", 32, il.NoSubscript)
	mem, err := il.NewMemory(il.MustConstant(0, 32), 4, il.LittleEndian, "ram")
	if err != nil {
		t.Fatal(err)
	}
	a := il.MustVariable("r1", 32, il.NoSubscript)
	if _, err := il.NewInstruction(dst, il.OpIntAdd, []il.Value{a, mem}); err == nil {
		t.Fatalf("expected domain error for memory operand to int-add")
	}
}

func TestNewInstructionPhi(t *testing.T) {
	dst := il.MustVariable("r0", 32, 3)
	a := il.MustVariable("r0", 32, 1)
	b := il.MustVariable("r0", 32, 2)
	inst, err := il.NewInstruction(dst, il.OpPhi, []il.Value{a, b})
	if err != nil {
		t.Fatalf("NewInstruction(phi): %v", err)
	}
	if len(inst.Operands) != 2 {
		t.Fatalf("phi operand count mismatch")
	}
	if _, err := il.NewInstruction(dst, il.OpPhi, nil); err == nil {
		t.Fatalf("expected error for phi with no operands")
	}
}
