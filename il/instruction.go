// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package il

// Instruction is a single assignment `assignee := op(operands...)`.
// assignee is always a Variable or a Memory value; Constant and Undefined
// assignees are programmer errors caught by NewInstruction.
type Instruction struct {
	Assignee Value
	Op       Operator
	Operands []Value
}

// NewInstruction validates operand count and domain against op, then
// returns the built Instruction.
func NewInstruction(assignee Value, op Operator, operands []Value) (Instruction, error) {
	if assignee.Kind() != KindVariable && assignee.Kind() != KindMemory {
		return Instruction{}, DomainError{Op: op, Reason: "assignee must be a variable or memory reference"}
	}

	switch op.arity() {
	case ArityNullary:
		if len(operands) != 0 {
			return Instruction{}, ArityError{Op: op, Wanted: 0, Got: len(operands)}
		}
	case ArityUnary:
		if len(operands) != 1 {
			return Instruction{}, ArityError{Op: op, Wanted: 1, Got: len(operands)}
		}
	case ArityBinary:
		if len(operands) != 2 {
			return Instruction{}, ArityError{Op: op, Wanted: 2, Got: len(operands)}
		}
	case ArityNary:
		if op == OpPhi && len(operands) == 0 {
			return Instruction{}, DomainError{Op: op, Reason: "phi requires at least one operand"}
		}
	}

	if op.isLogical() || op.isInteger() {
		for _, o := range operands {
			if o.Kind() == KindMemory {
				return Instruction{}, DomainError{Op: op, Reason: "logical/integer operands cannot be memory references"}
			}
		}
	}

	return Instruction{Assignee: assignee, Op: op, Operands: append([]Value(nil), operands...)}, nil
}
