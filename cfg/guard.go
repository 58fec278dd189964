// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cfg implements Panopticon's basic blocks, control transfers, and
// procedures: the graph of basic blocks that makes up one disassembled
// routine.
package cfg

import (
	"errors"
	"fmt"

	"github.com/panopticon-re/panopticon/il"
)

// RelCode is the relational operator of one Relation in a Guard.
type RelCode uint8

const (
	ULeq RelCode = iota
	SLeq
	UGeq
	SGeq
	ULess
	SLess
	UGrtr
	SGrtr
	Eq
	Neq
)

var relNames = map[RelCode]string{
	ULeq: "u<=", SLeq: "s<=", UGeq: "u>=", SGeq: "s>=",
	ULess: "u<", SLess: "s<", UGrtr: "u>", SGrtr: "s>",
	Eq: "==", Neq: "!=",
}

func (r RelCode) String() string { return relNames[r] }

var relNegation = map[RelCode]RelCode{
	ULeq: UGrtr, UGrtr: ULeq,
	SLeq: SGrtr, SGrtr: SLeq,
	UGeq: ULess, ULess: UGeq,
	SGeq: SLess, SLess: SGeq,
	Eq: Neq, Neq: Eq,
}

// Relation is one relational predicate over two IL values.
type Relation struct {
	Op1, Op2 il.Value
	Rel      RelCode
}

// Negate flips the relational operator, leaving the operands untouched.
func (r Relation) Negate() Relation {
	return Relation{Op1: r.Op1, Op2: r.Op2, Rel: relNegation[r.Rel]}
}

func (r Relation) String() string {
	return fmt.Sprintf("%s %s %s", r.Op1, r.Rel, r.Op2)
}

// Guard is a conjunction of Relations; an empty Guard is always true.
type Guard struct {
	Relations []Relation
}

// True is the guard satisfied unconditionally.
var True = Guard{}

// ErrAmbiguousNegation is returned by Negate when a Guard conjoins more than
// one Relation. The reference implementation's guard::negation only
// handles the single-relation case; whether a multi-relation guard should
// negate via De Morgan (becoming a disjunction, which Guard cannot express)
// or simply fail is left unspecified by the source. This implementation
// treats it as an error rather than silently producing a guard with the
// wrong truth table.
var ErrAmbiguousNegation = errors.New("cfg: cannot negate a guard with more than one relation")

// Negate returns the negation of g. A guard with exactly one relation
// negates to that relation's negation. True (no relations) has no
// representable negation and returns an error; a guard with two or more
// relations returns ErrAmbiguousNegation.
func (g Guard) Negate() (Guard, error) {
	switch len(g.Relations) {
	case 0:
		return Guard{}, errors.New("cfg: cannot negate the trivial true guard")
	case 1:
		return Guard{Relations: []Relation{g.Relations[0].Negate()}}, nil
	default:
		return Guard{}, ErrAmbiguousNegation
	}
}

// IsTrue reports whether g is the empty (always-true) conjunction.
func (g Guard) IsTrue() bool { return len(g.Relations) == 0 }

func (g Guard) String() string {
	if g.IsTrue() {
		return "true"
	}
	s := g.Relations[0].String()
	for _, r := range g.Relations[1:] {
		s += " && " + r.String()
	}
	return s
}
