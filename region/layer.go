// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package region implements Panopticon's byte/region model: a named byte
// address space assembled from a DAG of layers (raw, map, sparse-mutable)
// and projected into a flat, non-overlapping view on demand.
package region

// Kind discriminates the variants of Layer.
type Kind uint8

const (
	// Raw layers own a fixed byte slice.
	Raw Kind = iota
	// Map layers apply a pure byte-to-byte function to the layer beneath
	// them.
	Map
	// SparseMutable layers override individual offsets of the layer
	// beneath them.
	SparseMutable
)

// Layer is a byte-producing source: owned raw bytes, a pure byte transform,
// or a sparse offset override. It is a closed variant (per the region
// design note) rather than an interface hierarchy; Filter dispatches on
// Kind explicitly.
type Layer struct {
	kind Kind
	name string

	raw       []byte
	mapFn     func(byte) byte
	overrides map[uint64]byte
}

// NewRaw builds a Raw layer owning a copy of data.
func NewRaw(name string, data []byte) Layer {
	return Layer{kind: Raw, name: name, raw: append([]byte(nil), data...)}
}

// NewMap builds a Map layer applying fn to every byte of the layer beneath
// it.
func NewMap(name string, fn func(byte) byte) Layer {
	return Layer{kind: Map, name: name, mapFn: fn}
}

// NewSparseMutable builds an empty SparseMutable layer. Use Poke to
// override individual offsets (relative to the bound the layer is mounted
// over).
func NewSparseMutable(name string) Layer {
	return Layer{kind: SparseMutable, name: name, overrides: make(map[uint64]byte)}
}

// Poke overrides the byte at the given offset (relative to the layer's
// mount bound) for a SparseMutable layer. Panics if the layer is not
// SparseMutable.
func (l *Layer) Poke(offset uint64, b byte) {
	if l.kind != SparseMutable {
		panic("region: Poke called on a non-SparseMutable layer")
	}
	l.overrides[offset] = b
}

// Kind reports which variant l holds.
func (l Layer) Kind() Kind { return l.kind }

// Name returns the layer's name.
func (l Layer) Name() string { return l.name }

// Filter produces this layer's bytes given the bytes of the layer beneath it
// ("in", already trimmed to the requested sub-range's length) and that
// sub-range's offset relative to the layer's own mount bound. Raw layers
// ignore in and return a slice of their own owned bytes; Map layers apply
// their function elementwise; SparseMutable layers substitute overridden
// offsets.
func (l Layer) Filter(in []byte, localOffset uint64) []byte {
	switch l.kind {
	case Raw:
		out := make([]byte, len(in))
		copy(out, l.raw[localOffset:localOffset+uint64(len(in))])
		return out
	case Map:
		out := make([]byte, len(in))
		for i, b := range in {
			out[i] = l.mapFn(b)
		}
		return out
	case SparseMutable:
		out := append([]byte(nil), in...)
		for i := range out {
			if b, ok := l.overrides[localOffset+uint64(i)]; ok {
				out[i] = b
			}
		}
		return out
	default:
		panic("region: unknown layer kind")
	}
}
