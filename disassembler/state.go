// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disassembler

import (
	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/il"
)

// State is passed to every rule's semantic action. It carries the fields a
// decode step shares across the matched tokens — the address being decoded,
// the captured bit groups, and whatever operand/operand-address values an
// earlier combinator in the same step has already set — but never a
// reference back to the grammar or the driver (spec.md §9: no thread-local
// state; everything a rule needs flows through its arguments).
type State struct {
	// Address is the byte address of the first token this decode step
	// started matching at.
	Address uint64

	// Captures holds every named bit group bound by the winning rule's
	// pattern, keyed by group name.
	Captures map[string]uint64

	// Operand and OperandAddress are scratch fields a multi-rule sequence
	// (e.g. a ModRM byte parsed by a sub-grammar, then consumed by its
	// parent rule) uses to hand a partially-decoded operand to the next
	// action in the same step.
	Operand        il.Value
	OperandAddress il.Value
}

// Capture returns the named group's value and whether it was bound by the
// match, avoiding a panic on typos in rule actions.
func (s *State) Capture(name string) (uint64, bool) {
	v, ok := s.Captures[name]
	return v, ok
}

// MustCapture is Capture but panics if name was not bound; for use where a
// rule's own pattern guarantees the group exists.
func (s *State) MustCapture(name string) uint64 {
	v, ok := s.Captures[name]
	if !ok {
		panic("disassembler: action referenced unbound capture group " + name)
	}
	return v
}

// Jump is one control-transfer successor a semantic action declares. Without
// any Jump call, the driver treats the step as an implicit fall-through to
// the address immediately after the consumed tokens (spec.md §4.2).
type Jump struct {
	Target il.Value
	Guard  cfg.Guard
}
