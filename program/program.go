// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package program implements Panopticon's program/flowgraph: the set of
// procedures recovered from a region, the call edges between them, and the
// per-procedure dataflow caches computed over them.
package program

import (
	"fmt"
	"sync"

	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/internal/graph"
)

// ProcID is an opaque handle to a procedure within one Program's call graph.
type ProcID = graph.NodeID

// Caches holds the per-procedure dataflow results computed lazily over a
// procedure once its decode has settled. Each field is nil until its
// corresponding analysis has run; program never computes them itself (see
// package dflow), it only stores the results so later passes or the driver's
// SSCP re-entry loop can reuse them instead of recomputing.
type Caches struct {
	Dominance interface{}
	Liveness  interface{}
	SSCP      interface{}
}

// Program is a set of procedures and the call edges between them. All
// mutation goes through a single exclusive lock (spec.md §5): procedure
// insertion, call-edge insertion, and the "address already claimed by a
// known block" check all take it, so that multiple goroutines may decode
// distinct procedures concurrently while only ever serializing on the shared
// graph itself.
type Program struct {
	Name string

	mu      sync.Mutex
	g       graph.Graph[*cfg.Procedure, struct{}]
	byEntry map[uint64]ProcID
	caches  map[ProcID]*Caches
}

// New creates an empty program named name.
func New(name string) *Program {
	return &Program{
		Name:    name,
		byEntry: make(map[uint64]ProcID),
		caches:  make(map[ProcID]*Caches),
	}
}

// AddProcedure inserts proc and indexes it by its entry address, under the
// program's exclusive lock. It is safe to call from multiple goroutines
// decoding distinct procedures concurrently.
func (p *Program) AddProcedure(proc *cfg.Procedure) (ProcID, error) {
	if err := proc.CheckInvariants(); err != nil {
		return 0, fmt.Errorf("program: cannot add procedure %q: %w", proc.Name, err)
	}
	bb, ok := proc.Block(proc.Entry)
	if !ok {
		return 0, fmt.Errorf("program: procedure %q has an invalid entry block", proc.Name)
	}
	entryAddr := bb.Area.Lo

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.byEntry[entryAddr]; ok {
		return existing, nil
	}
	id := p.g.AddNode(proc)
	p.byEntry[entryAddr] = id
	p.caches[id] = &Caches{}
	return id, nil
}

// Procedure returns the procedure stored at id.
func (p *Program) Procedure(id ProcID) (*cfg.Procedure, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.g.Node(id)
}

// ProcedureByEntry looks up a procedure by its entry address, as the
// original's callgraph index does: the driver consults it before starting a
// fresh decode at a call target, so that a call to an already-known
// procedure only adds an edge instead of redundantly redecoding.
func (p *Program) ProcedureByEntry(addr uint64) (ProcID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byEntry[addr]
	return id, ok
}

// HasProcedureAt reports whether addr already falls inside some known
// procedure's block, under the program lock — the "address is inside a
// known block" check spec.md §5 requires be part of the same exclusive
// section as insertion, so a concurrent decode can't both observe "unclaimed"
// and lose a race to claim it.
func (p *Program) HasProcedureAt(addr uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.g.Nodes() {
		proc, _ := p.g.Node(id)
		if _, ok := proc.BlockAt(addr); ok {
			return true
		}
	}
	return false
}

// AddCall records a call edge from caller to callee, and updates each
// procedure's Callees/Callers name lists. Both ids must already be
// procedures of p.
func (p *Program) AddCall(caller, callee ProcID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	callerProc, ok := p.g.Node(caller)
	if !ok {
		return fmt.Errorf("program: unknown caller procedure handle %d", caller)
	}
	calleeProc, ok := p.g.Node(callee)
	if !ok {
		return fmt.Errorf("program: unknown callee procedure handle %d", callee)
	}

	p.g.AddEdge(caller, callee, struct{}{})

	if !containsString(callerProc.Callees, calleeProc.Name) {
		callerProc.Callees = append(callerProc.Callees, calleeProc.Name)
	}
	if !containsString(calleeProc.Callers, callerProc.Name) {
		calleeProc.Callers = append(calleeProc.Callers, callerProc.Name)
	}
	return nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Procedures returns every procedure handle currently in p. Order is
// unspecified.
func (p *Program) Procedures() []ProcID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.g.Nodes()
}

// Callees returns the procedure handles id reaches by a direct call
// edge, in edge-insertion order.
func (p *Program) Callees(id ProcID) []ProcID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.g.Successors(id)
}

// Callers returns the procedure handles with a direct call edge into id, in
// edge-insertion order.
func (p *Program) Callers(id ProcID) []ProcID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.g.Predecessors(id)
}

// Caches returns the cache slot for id, creating one if none exists yet.
// Callers (the driver's SSCP re-entry loop, or package dflow) hold no lock
// across their own analysis; they fetch the slot, compute outside the
// program lock, and write the result back with SetCaches.
func (p *Program) Caches(id ProcID) *Caches {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.caches[id]
	if !ok {
		c = &Caches{}
		p.caches[id] = c
	}
	return c
}

// SetCaches overwrites the cache slot for id.
func (p *Program) SetCaches(id ProcID, c *Caches) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.caches[id] = c
}
