// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command panopticon-disasm is a thin driver-loop wrapper (spec.md §1, §4.9):
// it reads a file, wires up one architecture trait, runs the disassembly
// driver from a single entry address, and prints a summary of what was
// recovered. No pretty-printer, no graph layout, no RDF output — those
// remain collaborator concerns.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/panopticon-re/panopticon/arch/amd64"
	"github.com/panopticon-re/panopticon/arch/avr"
	"github.com/panopticon-re/panopticon/driver"
	"github.com/panopticon-re/panopticon/il"
	"github.com/panopticon-re/panopticon/program"
	"github.com/panopticon-re/panopticon/region"
)

func main() {
	log.SetPrefix("panopticon-disasm: ")
	log.SetFlags(0)

	archName := flag.String("arch", "avr", "architecture trait to decode with (avr, amd64)")
	entryFlag := flag.String("entry", "0x0", "entry address to start decoding from, in hex")

	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	entry, err := strconv.ParseUint(trimHexPrefix(*entryFlag), 16, 64)
	if err != nil {
		log.Fatalf("invalid -entry %q: %v", *entryFlag, err)
	}

	if err := run(os.Stdout, *archName, entry, flag.Arg(0)); err != nil {
		log.Fatal(err)
	}
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// architectureByName resolves the -arch flag to a driver.Architecture. Only
// the two traits this module ships are wired; a real build would look these
// up from a collaborator registry instead.
func architectureByName(name string) (driver.Architecture, error) {
	switch name {
	case "avr":
		return driver.Architecture{
			Grammar:     avr.Grammar(),
			TokenBits:   avr.TokenBits,
			TokenEndian: il.LittleEndian,
			AddrWidth:   avr.AddrWidth,
		}, nil
	case "amd64":
		return driver.Architecture{
			Grammar:     amd64.Grammar(),
			TokenBits:   amd64.TokenBits,
			TokenEndian: il.LittleEndian,
			AddrWidth:   amd64.AddrWidth,
		}, nil
	default:
		return driver.Architecture{}, fmt.Errorf("unknown architecture %q", name)
	}
}

func run(w io.Writer, archName string, entry uint64, fname string) error {
	arch, err := architectureByName(archName)
	if err != nil {
		return err
	}

	// The input binary is handed to the core already mapped (spec.md §9): mmap
	// it read-only rather than copying it into the process's own heap, the
	// way a real loader would for a binary far larger than this toy CLI's.
	mapped, err := region.NewFileRaw(fname, fname)
	if err != nil {
		return fmt.Errorf("mapping %s: %w", fname, err)
	}
	defer mapped.Close()
	raw := mapped.Bytes()
	src := region.New(fname, uint64(len(raw)), raw)

	prog := program.New(fname)
	if err := driver.Run(context.Background(), prog, arch, src, entry, nil, nil); err != nil {
		return fmt.Errorf("decoding %s from 0x%x: %w", fname, entry, err)
	}

	summarize(w, prog)
	return nil
}

// summarize prints one line per recovered procedure: its entry address,
// block count, and direct callees.
func summarize(w io.Writer, prog *program.Program) {
	procs := prog.Procedures()
	fmt.Fprintf(w, "%d procedure(s) recovered\n", len(procs))
	for _, id := range procs {
		proc, _ := prog.Procedure(id)
		entryBB, _ := proc.Block(proc.Entry)
		fmt.Fprintf(w, "proc 0x%x: %d block(s)", entryBB.Area.Lo, len(proc.Blocks()))
		if len(proc.Callees) > 0 {
			fmt.Fprintf(w, ", calls %v", proc.Callees)
		}
		fmt.Fprintln(w)
	}
}
