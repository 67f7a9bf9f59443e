// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package ioreg implements the width-agnostic I/O register dispatcher
// described in spec.md §4.4: a table of registers keyed by base address,
// each with a declared width, read past as a single loop regardless of
// the access width or sub-word alignment the CPU actually used.
package ioreg

import "github.com/jetsetilly/duocore/logger"

// Width is a register's declared size in bytes: 1, 2 or 4.
type Width uint8

// Handler is the pair of functions a register entry supplies. Read takes
// no arguments and returns the full S-byte value; Write receives a
// byte-shifted mask and value so it only needs to apply the bits actually
// being written, regardless of the access width/alignment that produced
// them.
type Handler struct {
	Width Width
	Read  func() uint32
	Write func(mask, value uint32)
}

// Table is one CPU's register table, keyed by the register's base
// (aligned) address. Adding a register is one table entry; no per-register
// bus logic is duplicated in the dispatch loop itself.
type Table struct {
	tag string // used to namespace "unknown register" log entries
	reg map[uint32]Handler
}

// NewTable creates an empty Table. tag identifies the table in log output
// (e.g. "io9", "io7", "io-compat").
func NewTable(tag string) *Table {
	return &Table{tag: tag, reg: make(map[uint32]Handler)}
}

// Register adds or replaces the handler for base.
func (t *Table) Register(base uint32, h Handler) {
	t.reg[base] = h
}

// alignedBase returns the aligned base address a register of the given
// width would be registered under, for the byte at addr.
func alignedBase(addr uint32, width Width) uint32 {
	return addr &^ uint32(width-1)
}

// Read performs a read of width bytes starting at addr, assembling the
// result across however many register entries are touched (spec.md
// §4.4's algorithm). Unknown registers contribute a zero byte and log
// once on the first unknown byte encountered; subsequent unknown bytes
// within the same access are silently skipped.
func (t *Table) Read(addr uint32, width Width) uint32 {
	var result uint32
	var shift uint
	remaining := uint32(width)
	cur := addr
	loggedUnknown := false

	for remaining > 0 {
		// find the widest declared register whose aligned base covers cur;
		// try 4, 2, 1 in that order so a 32-bit register backing a 16-bit
		// sub-access is found even when the CPU issued a narrower read.
		h, base, ok := t.lookup(cur)
		if !ok {
			if !loggedUnknown {
				logger.Logf(t.tag, "unknown register read at %#08x", cur)
				loggedUnknown = true
			}
			result |= 0 << shift
			shift += 8
			remaining--
			cur++
			continue
		}

		full := h.Read()
		offset := uint(cur - base)
		// the byte(s) of `full` that fall within [cur, cur+remaining)
		take := uint32(h.Width) - uint32(offset)
		if take > remaining {
			take = remaining
		}
		portion := (full >> (offset * 8)) & ((uint32(1) << (take * 8)) - 1)
		result |= portion << shift

		shift += uint(take) * 8
		remaining -= take
		cur += take
	}

	return result
}

// Write performs a write of width bytes of value starting at addr,
// mirroring Read's alignment walk but passing handlers a byte-shifted
// mask and value (spec.md §4.4).
func (t *Table) Write(addr uint32, width Width, value uint32) {
	remaining := uint32(width)
	cur := addr
	shift := uint(0)
	loggedUnknown := false

	for remaining > 0 {
		h, base, ok := t.lookup(cur)
		if !ok {
			// unknown registers are a no-op on write; first-byte-only
			// logging applies here too.
			if !loggedUnknown {
				logger.Logf(t.tag, "unknown register write at %#08x", cur)
				loggedUnknown = true
			}
			remaining--
			cur++
			shift += 8
			continue
		}

		offset := uint(cur - base)
		take := uint32(h.Width) - uint32(offset)
		if take > remaining {
			take = remaining
		}

		mask := ((uint32(1) << (take * 8)) - 1) << (offset * 8)
		shiftedValue := (value >> shift) << (offset * 8)
		h.Write(mask, shiftedValue)

		shift += uint(take) * 8
		remaining -= take
		cur += take
	}
}

// lookup finds the register handler covering byte addr, preferring wider
// registers so a 4-byte register registered at its base is found even
// when addr points at its second or later byte.
func (t *Table) lookup(addr uint32) (Handler, uint32, bool) {
	for _, w := range []Width{4, 2, 1} {
		base := alignedBase(addr, w)
		if h, ok := t.reg[base]; ok && h.Width == w {
			return h, base, true
		}
	}
	return Handler{}, 0, false
}
