// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cfg

import (
	"errors"
	"fmt"

	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/mnemonic"
)

// ErrEmptyBlock is returned when NewBlock is called with no mnemonics.
var ErrEmptyBlock = errors.New("cfg: basic block must contain at least one mnemonic")

// NonContiguousAreaError is returned when a block's mnemonics don't form a
// contiguous, strictly increasing byte range.
type NonContiguousAreaError struct {
	Prev, Next mnemonic.Area
}

func (e NonContiguousAreaError) Error() string {
	return fmt.Sprintf("cfg: mnemonic areas %s and %s are not contiguous", e.Prev, e.Next)
}

// ErrInteriorBranch is returned when a mnemonic other than the last one
// in a block carries a branch instruction.
var ErrInteriorBranch = errors.New("cfg: only the last mnemonic in a block may branch")

// BasicBlock is a maximal straight-line sequence of mnemonics: one entry,
// one exit. Its Area is the hull of its mnemonics' areas.
type BasicBlock struct {
	Area      mnemonic.Area
	Mnemonics []mnemonic.Mnemonic
}

// NewBlock validates that mnemonics form a contiguous, strictly increasing
// sequence with at most a final branch, and builds the block.
func NewBlock(mnemonics []mnemonic.Mnemonic) (BasicBlock, error) {
	if len(mnemonics) == 0 {
		return BasicBlock{}, ErrEmptyBlock
	}
	area := mnemonics[0].Area
	for i := 1; i < len(mnemonics); i++ {
		prev, next := mnemonics[i-1].Area, mnemonics[i].Area
		if !prev.Adjacent(next) {
			return BasicBlock{}, NonContiguousAreaError{Prev: prev, Next: next}
		}
		area = area.Hull(next)
	}
	for i := 0; i < len(mnemonics)-1; i++ {
		if mnemonics[i].HasBranch() {
			return BasicBlock{}, ErrInteriorBranch
		}
	}
	return BasicBlock{Area: area, Mnemonics: append([]mnemonic.Mnemonic(nil), mnemonics...)}, nil
}

// ControlTransfer is one outgoing edge of a BasicBlock: a guarded,
// possibly-symbolic jump target.
type ControlTransfer struct {
	Guard    Guard
	Target   il.Value
	Resolved *BlockID // non-nil once Target is known to point at a block
}

// Unconditional builds a ControlTransfer with an always-true guard.
func Unconditional(target il.Value) ControlTransfer {
	return ControlTransfer{Guard: True, Target: target}
}
