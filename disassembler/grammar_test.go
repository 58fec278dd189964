// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disassembler

import (
	"testing"

	"github.com/panopticon-re/panopticon/mnemonic"
)

// A minimal two-rule, 8-bit-token grammar used across the package's tests:
// rule A matches any single byte "nop"; rule B matches a longer two-byte
// sequence and should win over A whenever it applies.
func testGrammar(t *testing.T) *Grammar {
	t.Helper()
	g := NewGrammar(8)

	short := MustTerminal("........")
	g.AddRule(short, func(s *State, b *Builder) {
		if err := b.Emit(mnemonic.Area{Lo: s.Address, Hi: s.Address + 1}, "nop", nil, nil); err != nil {
			t.Fatal(err)
		}
	})

	long := Sequence(MustTerminal("00000000"), MustTerminal("11111111"))
	g.AddRule(long, func(s *State, b *Builder) {
		if err := b.Emit(mnemonic.Area{Lo: s.Address, Hi: s.Address + 2}, "wide", nil, nil); err != nil {
			t.Fatal(err)
		}
	})

	return g
}

func TestGrammarLongestMatchWins(t *testing.T) {
	g := testGrammar(t)
	toks := []uint64{0x00, 0xff}

	_, res, ok := g.bestMatch(toks, g.TokenBits, 0)
	if !ok {
		t.Fatalf("expected a match")
	}
	if res.tokens != 2 {
		t.Fatalf("expected the 2-token rule to win, consumed %d", res.tokens)
	}
}

func TestGrammarShortMatchWhenLongFails(t *testing.T) {
	g := testGrammar(t)
	toks := []uint64{0x01, 0xff} // first byte isn't 0x00, long rule can't match

	_, res, ok := g.bestMatch(toks, g.TokenBits, 0)
	if !ok {
		t.Fatalf("expected a match")
	}
	if res.tokens != 1 {
		t.Fatalf("expected the 1-token rule, consumed %d", res.tokens)
	}
}

func TestGrammarTieBreakPrefersLastRegistered(t *testing.T) {
	g := NewGrammar(8)
	g.AddRule(MustTerminal("........"), func(s *State, b *Builder) {})
	second := g.AddRule(MustTerminal("0000...."), func(s *State, b *Builder) {})

	rule, res, ok := g.bestMatch([]uint64{0x00}, g.TokenBits, 0)
	if !ok || res.tokens != 1 {
		t.Fatalf("expected a 1-token match, got %d ok=%v", res.tokens, ok)
	}
	if rule != second {
		t.Fatalf("expected the later-registered rule to win the tie")
	}
}

func TestGrammarDefaultRuleFires(t *testing.T) {
	g := NewGrammar(8)
	g.SetDefault(func(s *State, b *Builder) {})

	rule, res, ok := g.bestMatch([]uint64{0x00}, g.TokenBits, 0)
	if !ok {
		t.Fatalf("expected the default rule to fire")
	}
	if res.tokens != 1 {
		t.Fatalf("expected the default rule to consume 1 token")
	}
	if rule != g.def {
		t.Fatalf("expected the default rule to be returned")
	}
}

func TestGrammarNoMatchNoDefault(t *testing.T) {
	g := NewGrammar(8)
	g.AddRule(MustTerminal("00000000"), func(s *State, b *Builder) {})
	if _, _, ok := g.bestMatch([]uint64{0xff}, g.TokenBits, 0); ok {
		t.Fatalf("expected no match and no default to report failure")
	}
}

func TestOptionMatchesZeroOrOne(t *testing.T) {
	opt := Option(MustTerminal("11111111"))
	seq := Sequence(opt, MustTerminal("00000000"))
	g := NewGrammar(8)
	g.AddRule(seq, func(s *State, b *Builder) {})

	// option present
	_, res, ok := g.bestMatch([]uint64{0xff, 0x00}, g.TokenBits, 0)
	if !ok || res.tokens != 2 {
		t.Fatalf("expected the option branch to match 2 tokens, got %d ok=%v", res.tokens, ok)
	}
	// option absent
	_, res, ok = g.bestMatch([]uint64{0x00}, g.TokenBits, 0)
	if !ok || res.tokens != 1 {
		t.Fatalf("expected the option to be skippable, got %d ok=%v", res.tokens, ok)
	}
}

func TestSubGrammarReference(t *testing.T) {
	inner := NewGrammar(8)
	inner.AddRule(MustTerminal("rd@.rd@.rd@.rd@.1111"), func(s *State, b *Builder) {})

	outer := NewGrammar(8)
	outer.AddRule(SubGrammar(inner), func(s *State, b *Builder) {})

	_, res, ok := outer.bestMatch([]uint64{0b10101111}, outer.TokenBits, 0)
	if !ok || res.tokens != 1 {
		t.Fatalf("expected sub-grammar delegation to match 1 token, got %d ok=%v", res.tokens, ok)
	}
	if res.captures["rd"] != 0b1010 {
		t.Fatalf("expected captures to propagate through the sub-grammar, got %v", res.captures)
	}
}
