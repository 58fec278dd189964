// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region_test

import (
	"bytes"
	"testing"

	"github.com/panopticon-re/panopticon/mnemonic"
	"github.com/panopticon-re/panopticon/region"
)

func TestReadNoLayers(t *testing.T) {
	r := region.New("text", 4, []byte{1, 2, 3, 4})
	if got := r.Read(); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("got %v", got)
	}
}

func TestProjectionTotalAndNonOverlapping(t *testing.T) {
	r := region.New("text", 10, bytes.Repeat([]byte{0}, 10))
	r.Add(mnemonic.Area{Lo: 2, Hi: 5}, region.NewRaw("patch", []byte{9, 9, 9}))

	proj := r.Projection()
	var lo uint64
	for _, iv := range proj {
		if iv.Area.Lo != lo {
			t.Fatalf("gap or overlap at %d: interval %v", lo, iv.Area)
		}
		lo = iv.Area.Hi
	}
	if lo != 10 {
		t.Fatalf("projection does not cover full length: ends at %d", lo)
	}
}

func TestAddShadowsUnderlyingLayer(t *testing.T) {
	r := region.New("text", 8, bytes.Repeat([]byte{0}, 8))
	r.Add(mnemonic.Area{Lo: 0, Hi: 8}, region.NewRaw("all-ff", bytes.Repeat([]byte{0xff}, 8)))
	r.Add(mnemonic.Area{Lo: 2, Hi: 4}, region.NewRaw("patch", []byte{1, 2}))

	got := r.Read()
	want := []byte{0xff, 0xff, 1, 2, 0xff, 0xff, 0xff, 0xff}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestMapLayer(t *testing.T) {
	r := region.New("text", 4, []byte{1, 2, 3, 4})
	r.Add(mnemonic.Area{Lo: 0, Hi: 4}, region.NewMap("invert", func(b byte) byte { return ^b }))
	got := r.Read()
	want := []byte{^byte(1), ^byte(2), ^byte(3), ^byte(4)}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSparseMutableLayer(t *testing.T) {
	r := region.New("text", 4, []byte{1, 2, 3, 4})
	sm := region.NewSparseMutable("patches")
	sm.Poke(1, 0xaa)
	r.Add(mnemonic.Area{Lo: 0, Hi: 4}, sm)

	got := r.Read()
	want := []byte{1, 0xaa, 3, 4}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReadAtOutOfBounds(t *testing.T) {
	r := region.New("text", 4, []byte{1, 2, 3, 4})
	if _, err := r.ReadAt(3, 4); err == nil {
		t.Fatalf("expected out-of-bounds error")
	}
}

func TestProjectionIdempotent(t *testing.T) {
	r := region.New("text", 4, []byte{1, 2, 3, 4})
	p1 := r.Projection()
	p2 := r.Projection()
	if len(p1) != len(p2) {
		t.Fatalf("projection changed without a mutation")
	}
}
