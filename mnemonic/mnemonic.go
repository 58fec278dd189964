// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mnemonic describes one architectural instruction: the source byte
// range it was decoded from, its opcode text and operand formatting, its
// operand values, and the IL instructions it lifts to.
package mnemonic

import (
	"errors"
	"fmt"

	"github.com/panopticon-re/panopticon/il"
)

// Area is a half-open byte range [Lo, Hi) in some region.
type Area struct {
	Lo, Hi uint64
}

// Len returns the number of bytes the area spans.
func (a Area) Len() uint64 { return a.Hi - a.Lo }

// Empty reports whether the area spans zero bytes.
func (a Area) Empty() bool { return a.Hi <= a.Lo }

// Contains reports whether addr lies in [Lo, Hi).
func (a Area) Contains(addr uint64) bool { return addr >= a.Lo && addr < a.Hi }

// Adjacent reports whether a ends exactly where b begins.
func (a Area) Adjacent(b Area) bool { return a.Hi == b.Lo }

// Hull returns the smallest area containing both a and b.
func (a Area) Hull(b Area) Area {
	lo, hi := a.Lo, a.Hi
	if b.Lo < lo {
		lo = b.Lo
	}
	if b.Hi > hi {
		hi = b.Hi
	}
	return Area{Lo: lo, Hi: hi}
}

func (a Area) String() string { return fmt.Sprintf("[0x%x, 0x%x)", a.Lo, a.Hi) }

// ErrEmptyArea is returned when a Mnemonic is built over a zero-length area.
var ErrEmptyArea = errors.New("mnemonic: area must be non-empty")

// FormatToken is one piece of a Mnemonic's human-readable operand format: a
// literal run of text, or a placeholder referring to one of the Mnemonic's
// Operands.
type FormatToken struct {
	Literal string // used when OperandIndex < 0

	OperandIndex int // index into Mnemonic.Operands, or -1 for a literal
	Width        uint8
	Signed       bool
	Alias        string // e.g. a register alias name to print instead of a raw value
}

// Mnemonic is one architectural instruction: the bytes it was decoded from,
// its opcode name, its operand format and values, and the IL it lifts to.
type Mnemonic struct {
	Area         Area
	Opcode       string
	Format       []FormatToken
	Operands     []il.Value
	Instructions []il.Instruction
}

// New validates area and builds a Mnemonic.
func New(area Area, opcode string, format []FormatToken, operands []il.Value, instructions []il.Instruction) (Mnemonic, error) {
	if area.Empty() {
		return Mnemonic{}, ErrEmptyArea
	}
	return Mnemonic{
		Area:         area,
		Opcode:       opcode,
		Format:       append([]FormatToken(nil), format...),
		Operands:     append([]il.Value(nil), operands...),
		Instructions: append([]il.Instruction(nil), instructions...),
	}, nil
}

// HasBranch reports whether any of the mnemonic's lifted instructions is a
// control-transfer (a call or an assignment to a symbolic jump target is
// represented one level up, in the basic block's outgoing ControlTransfer;
// this only flags a Call instruction embedded in the IL body).
func (m Mnemonic) HasBranch() bool {
	for _, inst := range m.Instructions {
		if inst.Op == il.OpCall {
			return true
		}
	}
	return false
}

// Text renders the mnemonic's opcode and formatted operands, substituting
// operand placeholders from Format. Used by collaborators (e.g. a
// pretty-printer) that want a single human-readable line without needing to
// understand FormatToken themselves.
func (m Mnemonic) Text() string {
	if len(m.Format) == 0 {
		return m.Opcode
	}
	out := m.Opcode + " "
	for _, tok := range m.Format {
		if tok.OperandIndex < 0 {
			out += tok.Literal
			continue
		}
		if tok.OperandIndex >= len(m.Operands) {
			out += "?"
			continue
		}
		if tok.Alias != "" {
			out += tok.Alias
			continue
		}
		out += m.Operands[tok.OperandIndex].String()
	}
	return out
}
