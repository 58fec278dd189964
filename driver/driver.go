// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package driver implements Panopticon's disassembly driver (spec.md §4.3):
// the work queue that turns one entry address into a recovered program, by
// running an architecture's grammar over a byte source, assembling basic
// blocks, discovering calls, and alternating with package dflow's analyses
// to resolve indirect jumps to a fixed point.
package driver

import (
	"context"
	"fmt"
	"log"

	"github.com/panopticon-re/panopticon/cfg"
	"github.com/panopticon-re/panopticon/disassembler"
	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/mnemonic"
	"github.com/panopticon-re/panopticon/program"
)

// ByteSource is the byte source collaborator spec.md §6 requires: a fixed
// length and a bounds-checked read. *region.Region satisfies this.
type ByteSource interface {
	Length() uint64
	ReadAt(offset, length uint64) ([]byte, error)
}

// Architecture is the architecture trait collaborator spec.md §6 requires:
// the token stream's shape and a grammar built over it.
type Architecture struct {
	Grammar     *disassembler.Grammar
	TokenBits   uint
	TokenEndian il.Endian
	AddrWidth   uint8
}

// DecodeError is a decode error (spec.md §7): no rule matched at address and
// the grammar has no default rule.
type DecodeError struct {
	Address uint64
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("driver: no rule matched at address 0x%x", e.Address)
}

// maxStepTokens bounds how many tokens a single decode step is allowed to
// consume; large enough for every rule in the architectures this module
// ships (arch/avr's longest rule, call, is two tokens; arch/amd64's call
// rel32 is five one-byte tokens).
const maxStepTokens = 5

// Logger is the subset of *log.Logger the driver uses to report abandoned
// procedures (spec.md §7: a decode error abandons the current procedure,
// already-finished ones remain). Defaults to log.Default() when nil.
type Logger interface {
	Printf(format string, v ...any)
}

// Progress is called after each work item settles (decoded successfully,
// abandoned, or skipped because its address was already claimed), reporting
// how many items have finished (done) against that count plus the number
// still queued (todo).
type Progress func(done, todo int)

// Run drains a work queue seeded with entry, decoding procedures into prog
// until the queue empties or ctx is cancelled. On cancellation Run returns
// ctx.Err(); prog already holds every procedure decoded before that point
// (spec.md §7's cancellation semantics: the driver returns the partial
// program assembled so far). A decode or structural error abandons only the
// procedure it occurred in; Run logs it via logger (or the standard logger
// if nil) and continues with the rest of the queue.
func Run(ctx context.Context, prog *program.Program, arch Architecture, src ByteSource, entry uint64, logger Logger, report Progress) error {
	if logger == nil {
		logger = log.Default()
	}
	if report == nil {
		report = func(done, todo int) {}
	}

	queue := []uint64{entry}
	queued := map[uint64]bool{entry: true}
	pendingCallers := map[uint64][]program.ProcID{}
	done := 0

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		addr := queue[0]
		queue = queue[1:]
		done++

		if prog.HasProcedureAt(addr) {
			report(done, done+len(queue))
			continue
		}

		proc, calls, caches, err := decodeProcedure(arch, src, addr)
		if err != nil {
			logger.Printf("driver: abandoning procedure at 0x%x: %v", addr, err)
			report(done, done+len(queue))
			continue
		}

		id, err := prog.AddProcedure(proc)
		if err != nil {
			logger.Printf("driver: abandoning procedure at 0x%x: %v", addr, err)
			report(done, done+len(queue))
			continue
		}
		prog.SetCaches(id, caches)

		for _, caller := range pendingCallers[addr] {
			if err := prog.AddCall(caller, id); err != nil {
				logger.Printf("driver: recording call edge into 0x%x: %v", addr, err)
			}
		}
		delete(pendingCallers, addr)

		for _, c := range calls {
			if calleeID, ok := prog.ProcedureByEntry(c); ok {
				if err := prog.AddCall(id, calleeID); err != nil {
					logger.Printf("driver: recording call edge to 0x%x: %v", c, err)
				}
				continue
			}
			pendingCallers[c] = append(pendingCallers[c], id)
			if !queued[c] {
				queued[c] = true
				queue = append(queue, c)
			}
		}

		report(done, done+len(queue))
	}
	return nil
}

// step is one decoded mnemonic plus the raw successor information its
// semantic action declared, before block assembly resolves addresses into
// block handles.
type step struct {
	m        mnemonic.Mnemonic
	explicit []successor
	terminal bool // an explicit Jump to il.Undefined: ends the block, no successor at all
}

type successor struct {
	guard  cfg.Guard
	target il.Value // Constant or Variable
}

// successors returns the defaulted successor set of a step: its explicit
// jumps if it declared any, otherwise (absent a terminal marker) the
// implicit fall-through to the address right after it (spec.md §4.2).
func (s step) successors(addrWidth uint8) []successor {
	if len(s.explicit) > 0 {
		return s.explicit
	}
	if s.terminal {
		return nil
	}
	return []successor{{guard: cfg.True, target: il.MustConstant(s.m.Area.Hi, addrWidth)}}
}

// decodeCtx accumulates every mnemonic decoded so far for one procedure,
// across repeated local-decode-loop invocations (spec.md §4.3 steps 2-3
// alternate: a later SSCP pass can discover new addresses to decode).
type decodeCtx struct {
	arch    Architecture
	src     ByteSource
	counter *disassembler.Counter
	decoded map[uint64]step
}

func newDecodeCtx(arch Architecture, src ByteSource) *decodeCtx {
	return &decodeCtx{arch: arch, src: src, counter: &disassembler.Counter{}, decoded: map[uint64]step{}}
}

// decodeFrom runs the local decode loop (spec.md §4.3 step 2a) starting at
// addr, following every already-known successor address (fall-through and
// explicit constant jump targets) until no new addresses remain to visit.
// Variable-target successors (unresolved indirect jumps) are left for the
// SSCP re-entry loop; call targets are never followed here (step 4 handles
// those once the local loop settles).
func (c *decodeCtx) decodeFrom(addr uint64) error {
	pending := []uint64{addr}
	for len(pending) > 0 {
		a := pending[0]
		pending = pending[1:]
		if _, ok := c.decoded[a]; ok {
			continue
		}

		toks, err := c.readTokens(a, maxStepTokens)
		if err != nil {
			return err
		}
		res, ok := c.arch.Grammar.Decode(toks, 0)
		if !ok {
			return DecodeError{Address: a}
		}

		s := &disassembler.State{Address: a, Captures: res.Captures}
		b := disassembler.NewBuilder(c.counter)
		res.Rule.Action(s, b)

		ms := b.Mnemonics()
		if len(ms) != 1 {
			return fmt.Errorf("driver: decode step at 0x%x emitted %d mnemonics, want exactly 1", a, len(ms))
		}

		var explicit []successor
		terminal := false
		for _, j := range b.Jumps() {
			if j.Target.IsUndefined() {
				terminal = true
				continue
			}
			explicit = append(explicit, successor{guard: j.Guard, target: j.Target})
		}

		st := step{m: ms[0], explicit: explicit, terminal: terminal}
		c.decoded[a] = st

		for _, succ := range st.successors(c.arch.AddrWidth) {
			if succ.target.IsConstant() {
				na := succ.target.Content()
				if _, known := c.decoded[na]; !known {
					pending = append(pending, na)
				}
			}
		}
	}
	return nil
}

// readTokens reads up to n tokens of the architecture's token width
// starting at byte address addr, returning fewer if the byte source ends
// first (a terminal pattern needing more than what's available simply fails
// to match, per matchTerminal's bounds check).
func (c *decodeCtx) readTokens(addr uint64, n int) ([]uint64, error) {
	tokenBytes := uint64(c.arch.TokenBits / 8)
	avail := c.src.Length()
	if addr >= avail {
		return nil, fmt.Errorf("driver: address 0x%x is past the end of the byte source", addr)
	}
	want := uint64(n) * tokenBytes
	if addr+want > avail {
		want = avail - addr
	}
	want -= want % tokenBytes
	if want == 0 {
		return nil, fmt.Errorf("driver: fewer than one token remains at 0x%x", addr)
	}
	raw, err := c.src.ReadAt(addr, want)
	if err != nil {
		return nil, err
	}

	ntoks := int(want / tokenBytes)
	toks := make([]uint64, ntoks)
	for i := 0; i < ntoks; i++ {
		chunk := raw[uint64(i)*tokenBytes : uint64(i+1)*tokenBytes]
		var v uint64
		if c.arch.TokenEndian == il.BigEndian {
			for _, by := range chunk {
				v = v<<8 | uint64(by)
			}
		} else {
			for j := len(chunk) - 1; j >= 0; j-- {
				v = v<<8 | uint64(chunk[j])
			}
		}
		toks[i] = v
	}
	return toks, nil
}
