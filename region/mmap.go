// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// FileRaw is a Raw layer backed by a read-only memory-mapped file, avoiding
// a full copy of the file's bytes for large binaries. Close unmaps the
// file; the Region (and any Layer built from it) must not be used
// afterwards.
type FileRaw struct {
	Layer
	mapping mmap.MMap
	file    *os.File
}

// NewFileRaw mmaps path read-only and wraps it as a named Raw layer sized
// to the mapping's length.
func NewFileRaw(name, path string) (*FileRaw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileRaw{
		Layer:   Layer{kind: Raw, name: name, raw: []byte(m)},
		mapping: m,
		file:    f,
	}, nil
}

// Bytes returns the mapped file's contents. The slice is only valid until
// Close is called.
func (f *FileRaw) Bytes() []byte {
	return f.raw
}

// Close unmaps the backing file.
func (f *FileRaw) Close() error {
	err := f.mapping.Unmap()
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	return err
}
