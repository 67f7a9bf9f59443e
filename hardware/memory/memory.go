// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package memory implements the unified memory map described in
// spec.md §4.2: a page-table-based O(1) address decoder shared by both
// CPUs, backed by main RAM, shared/local WRAM, BIOS, TCM and the VRAM
// router, with a slow path for I/O registers, palette/OAM and cartridge
// storage. Grounded on NooDS's Memory class (original_source/src/memory.h)
// for the page-table shape and the read<T>/write<T> byte-assembly
// algorithm, and on Gopher2600's hardware/memory/memory.go for the
// GetArea-style area dispatch and curated-error reporting at the edges.
package memory

import (
	"encoding/binary"

	"github.com/jetsetilly/duocore/curated"
	"github.com/jetsetilly/duocore/hardware/cpu"
	"github.com/jetsetilly/duocore/hardware/ioreg"
	"github.com/jetsetilly/duocore/hardware/memory/vram"
	"github.com/jetsetilly/duocore/logger"
)

const (
	pageShift = 12
	pageSize  = 1 << pageShift
	pageCount = 0x100000 // addr >> 12 across the full 32-bit space
)

// Cartridge is the minimal collaborator interface the memory map needs
// from cartridge storage. Parsing ROM images and implementing mapper
// chips is explicitly out of scope (spec.md, Non-goals); this interface
// exists so Map can be constructed and exercised without that layer.
type Cartridge interface {
	ReadROM(offset uint32, width uint32) uint32
	ReadSave(offset uint32, width uint32) uint32
	WriteSave(offset uint32, width uint32, value uint32)
}

// pageTable is one CPU's view of the address space: a direct byte-slice
// pointer per 4KB page for the fast path, nil where the slow path must be
// consulted instead.
type pageTable struct {
	read  [pageCount][]byte
	write [pageCount][]byte
}

// Map is the unified memory map shared by both CPUs.
type Map struct {
	ram    []byte // main RAM, mirrored across its address window
	wram   []byte // shared WRAM (WRAMCNT-selectable split)
	wram7  []byte // CPU-B-local WRAM
	bios9  []byte // CPU A BIOS, read-only
	bios7  []byte // CPU B BIOS, read-only
	biosC  []byte // compatibility-mode BIOS, read-only
	itcm   []byte
	dtcm   []byte
	palette []byte
	oam    []byte

	vram *vram.Router

	io9     *ioreg.Table
	io7     *ioreg.Table
	ioCompat *ioreg.Table

	cart Cartridge

	wramCnt uint8
	haltCnt uint8

	tcm tcmControl

	// tcm-inclusive and tcm-exclusive page-table pair for CPU A, and the
	// single pair for CPU B (spec.md §4.2: "CPU A has two read/write
	// pairs: one that includes its TCMs, one that excludes them").
	mapAIncl pageTable
	mapAExcl pageTable
	mapB     pageTable

	// openBus tracks the value of the last successful bus transfer and is
	// returned in its place when an address decodes to nothing at all
	// (spec.md §4.2 compat-mode open-bus read).
	openBus uint32
}

type tcmControl struct {
	itcmEnabled      bool
	itcmWriteEnabled bool
	itcmSize         uint32

	dtcmEnabled      bool
	dtcmWriteEnabled bool
	dtcmBase         uint32
	dtcmSize         uint32
}

// NewMap allocates all backing storage and builds the initial page
// tables. cart may be nil (no cartridge inserted).
func NewMap(cart Cartridge) *Map {
	m := &Map{
		ram:     make([]byte, 16*1024*1024),
		wram:    make([]byte, 32*1024),
		wram7:   make([]byte, 64*1024),
		bios9:   make([]byte, 32*1024),
		bios7:   make([]byte, 16*1024),
		biosC:   make([]byte, 16*1024),
		itcm:    make([]byte, 32*1024),
		dtcm:    make([]byte, 16*1024),
		palette: make([]byte, 2*1024),
		oam:     make([]byte, 2*1024),
		vram:    vram.New(),
		io9:     ioreg.NewTable("io9"),
		io7:     ioreg.NewTable("io7"),
		ioCompat: ioreg.NewTable("io-compat"),
		cart:    cart,
		tcm: tcmControl{
			itcmSize: 32 * 1024,
			dtcmBase: 0x00800000,
			dtcmSize: 16 * 1024,
		},
	}
	m.vram.OnRebuild(m.Remap)
	m.Remap()
	return m
}

// IO9, IO7 and IOCompat expose the three register tables described in
// spec.md §4.4 so callers can register device handlers against them.
func (m *Map) IO9() *ioreg.Table      { return m.io9 }
func (m *Map) IO7() *ioreg.Table      { return m.io7 }
func (m *Map) IOCompat() *ioreg.Table { return m.ioCompat }

// LoadBIOS9, LoadBIOS7 and LoadBIOSCompat copy firmware images into the
// read-only BIOS backing. Parsing/validating the image is the caller's
// responsibility; an oversized image returns a curated RomLoadFailed
// error rather than panicking.
func (m *Map) LoadBIOS9(data []byte) error   { return loadBIOS(m.bios9, data) }
func (m *Map) LoadBIOS7(data []byte) error   { return loadBIOS(m.bios7, data) }
func (m *Map) LoadBIOSCompat(data []byte) error { return loadBIOS(m.biosC, data) }

func loadBIOS(dst []byte, data []byte) error {
	if len(data) > len(dst) {
		return curated.Errorf(curated.RomLoadFailed, "bios image too large: %d > %d bytes", len(data), len(dst))
	}
	copy(dst, data)
	return nil
}

// InstallHLE9, InstallHLE7 and InstallHLECompat overwrite offsets in the
// corresponding BIOS buffer with cpu.HLESentinel, for use when no real
// BIOS image was supplied (spec.md §4.1, "HLE BIOS path"). The caller
// (Core) owns the offset table; this package only owns the mechanics of
// writing the sentinel word, since the offsets themselves are BIOS
// function entry points -- HLE body detail out of this package's scope.
func (m *Map) InstallHLE9(offsets []uint32)     { installHLE(m.bios9, offsets) }
func (m *Map) InstallHLE7(offsets []uint32)     { installHLE(m.bios7, offsets) }
func (m *Map) InstallHLECompat(offsets []uint32) { installHLE(m.biosC, offsets) }

func installHLE(dst []byte, offsets []uint32) {
	for _, off := range offsets {
		if int(off)+4 > len(dst) {
			continue
		}
		binary.LittleEndian.PutUint32(dst[off:], cpu.HLESentinel)
	}
}

// SetWRAMCNT applies a new WRAMCNT value and rebuilds the map (spec.md
// §4.2, "shared WRAM (WRAMCNT-selectable)").
func (m *Map) SetWRAMCNT(value uint8) {
	m.wramCnt = value & 0x3
	m.Remap()
}

// WRAMCNT returns the last value written.
func (m *Map) WRAMCNT() uint8 { return m.wramCnt }

// SetTCM configures the TCM enable/write-enable bits and DTCM base,
// typically driven by CP15 writes on CPU A, and rebuilds the map.
func (m *Map) SetTCM(itcmEnabled, itcmWrite, dtcmEnabled, dtcmWrite bool, dtcmBase uint32) {
	m.tcm.itcmEnabled, m.tcm.itcmWriteEnabled = itcmEnabled, itcmWrite
	m.tcm.dtcmEnabled, m.tcm.dtcmWriteEnabled = dtcmEnabled, dtcmWrite
	m.tcm.dtcmBase = dtcmBase
	m.Remap()
}

// VRAM exposes the router so the owner can wire VRAMCNT register writes
// to it.
func (m *Map) VRAM() *vram.Router { return m.vram }

// Remap rebuilds every page-table entry from scratch. Simpler than the
// range-targeted rebuild the original performs on each individual
// control write, at the cost of a full 1M-entry scan whenever any
// control register affecting the map changes.
func (m *Map) Remap() {
	clearTable(&m.mapAIncl)
	clearTable(&m.mapAExcl)
	clearTable(&m.mapB)

	m.mapMainRAM()
	m.mapWRAM()
	m.mapBIOS()
	m.mapTCM()
	m.mapVRAMFast()
	m.mapPaletteOAM()
}

func clearTable(t *pageTable) {
	for i := range t.read {
		t.read[i] = nil
		t.write[i] = nil
	}
}

func (m *Map) setPage(t *pageTable, page uint32, read, write []byte) {
	if int(page) >= pageCount {
		return
	}
	t.read[page] = read
	t.write[page] = write
}

// mirrorRegion registers direct page pointers for every 4KB page of
// backing across [start,end), wrapping backing's length.
func (m *Map) mirrorRegion(t *pageTable, start, end uint32, backing []byte, writable bool) {
	size := uint32(len(backing))
	if size == 0 {
		return
	}
	for addr := start; addr < end; addr += pageSize {
		off := addr % size
		// a page must not straddle a wrap boundary; only register the
		// direct pointer when the whole page fits within one wrap.
		if off+pageSize > size {
			continue
		}
		page := addr >> pageShift
		win := backing[off : off+pageSize]
		if writable {
			m.setPage(t, page, win, win)
		} else {
			m.setPage(t, page, win, nil)
		}
	}
}

func (m *Map) mapMainRAM() {
	const base, top = 0x02000000, 0x03000000
	m.mirrorRegion(&m.mapAIncl, base, top, m.ram, true)
	m.mirrorRegion(&m.mapAExcl, base, top, m.ram, true)
	m.mirrorRegion(&m.mapB, base, top, m.ram, true)
}

// mapWRAM implements the four WRAMCNT split modes: the shared 32KB block
// is divided in half, with each half offered to CPU A and/or CPU B
// depending on the 2-bit control value (spec.md §4.2; exact partition
// grounded on original_source/src/memory.h swram handling).
func (m *Map) mapWRAM() {
	const base, top = 0x03000000, 0x04000000
	half := len(m.wram) / 2

	var aView, bView []byte
	switch m.wramCnt {
	case 0: // CPU A gets the full block, CPU B gets none of it
		aView = m.wram
	case 1: // CPU A gets the second half, CPU B the first half
		aView = m.wram[half:]
		bView = m.wram[:half]
	case 2: // CPU A gets the first half, CPU B the second half
		aView = m.wram[:half]
		bView = m.wram[half:]
	case 3: // CPU A gets none, CPU B gets the full block
		bView = m.wram
	}

	if len(aView) > 0 {
		m.mirrorRegion(&m.mapAIncl, base, top, aView, true)
		m.mirrorRegion(&m.mapAExcl, base, top, aView, true)
	}
	if len(bView) > 0 {
		m.mirrorRegion(&m.mapB, base, top, bView, true)
	} else {
		// CPU B always falls back to its private local WRAM when the
		// shared block isn't offered to it.
		m.mirrorRegion(&m.mapB, base, top, m.wram7, true)
	}

	// CPU B's local WRAM is additionally always visible at its own
	// fixed window, regardless of the WRAMCNT split above.
	m.mirrorRegion(&m.mapB, 0x03800000, 0x03900000, m.wram7, true)
}

func (m *Map) mapBIOS() {
	m.mirrorRegion(&m.mapAIncl, 0x00000000, 0x00008000, m.bios9, false)
	m.mirrorRegion(&m.mapAExcl, 0x00000000, 0x00008000, m.bios9, false)
	m.mirrorRegion(&m.mapB, 0x00000000, 0x00004000, m.bios7, false)
}

// mapTCM overlays ITCM at the CPU-A-inclusive table's base and DTCM at
// its configured base, each independently read/write gated. The
// TCM-exclusive table never sees either region, which is exactly the
// distinction the two page-table pairs exist to express.
func (m *Map) mapTCM() {
	if m.tcm.itcmEnabled {
		m.mirrorRegion(&m.mapAIncl, 0x00000000, m.tcm.itcmSize, m.itcm, m.tcm.itcmWriteEnabled)
	}
	if m.tcm.dtcmEnabled {
		top := m.tcm.dtcmBase + m.tcm.dtcmSize
		m.mirrorRegion(&m.mapAIncl, m.tcm.dtcmBase, top, m.dtcm, m.tcm.dtcmWriteEnabled)
	}
}

func (m *Map) mapPaletteOAM() {
	m.mirrorRegion(&m.mapAIncl, 0x05000000, 0x06000000, m.palette, true)
	m.mirrorRegion(&m.mapAExcl, 0x05000000, 0x06000000, m.palette, true)
	m.mirrorRegion(&m.mapB, 0x05000000, 0x06000000, m.palette, true)

	m.mirrorRegion(&m.mapAIncl, 0x07000000, 0x08000000, m.oam, true)
	m.mirrorRegion(&m.mapAExcl, 0x07000000, 0x08000000, m.oam, true)
	m.mirrorRegion(&m.mapB, 0x07000000, 0x08000000, m.oam, true)
}

// mapVRAMFast registers a direct page pointer for every background-A
// slot that currently resolves to exactly one physical block; slots
// mapped to zero or several blocks (or any other logical region) fall
// through to the slow path in readVRAM/writeVRAM.
func (m *Map) mapVRAMFast() {
	const base = 0x06000000
	for slot := 0; slot < 32; slot++ {
		win, ok := m.vram.Direct(vram.KindBackgroundA, slot)
		if !ok {
			continue
		}
		addr := uint32(base + slot*pageSize)
		m.setPage(&m.mapAIncl, addr>>pageShift, win, win)
		m.setPage(&m.mapAExcl, addr>>pageShift, win, win)
	}
}

// Read8/Read16/Read32 and Write8/Write16/Write32 are the CPU-facing
// entry points. cpu is 0 for CPU A, 1 for CPU B; tcm selects the
// TCM-inclusive page table for CPU A (ignored for CPU B, which only has
// one pair).
func (m *Map) Read8(cpu int, tcm bool, addr uint32) uint8 {
	return uint8(m.read(cpu, tcm, addr, 1))
}

func (m *Map) Read16(cpu int, tcm bool, addr uint32) uint16 {
	return uint16(m.read(cpu, tcm, addr&^1, 2))
}

func (m *Map) Read32(cpu int, tcm bool, addr uint32) uint32 {
	return m.read(cpu, tcm, addr&^3, 4)
}

func (m *Map) Write8(cpu int, tcm bool, addr uint32, value uint8) {
	m.write(cpu, tcm, addr, 1, uint32(value))
}

func (m *Map) Write16(cpu int, tcm bool, addr uint32, value uint16) {
	m.write(cpu, tcm, addr&^1, 2, uint32(value))
}

func (m *Map) Write32(cpu int, tcm bool, addr uint32, value uint32) {
	m.write(cpu, tcm, addr&^3, 4, value)
}

func (m *Map) table(cpu int, tcm bool) *pageTable {
	if cpu != 0 {
		return &m.mapB
	}
	if tcm {
		return &m.mapAIncl
	}
	return &m.mapAExcl
}

func (m *Map) read(cpu int, tcm bool, addr uint32, width uint32) uint32 {
	page := addr >> pageShift
	if int(page) >= pageCount {
		return m.openBus
	}
	t := m.table(cpu, tcm)
	win := t.read[page]
	if win == nil {
		return m.readSlow(cpu, addr, width)
	}

	off := addr & (pageSize - 1)
	var v uint32
	for i := uint32(0); i < width; i++ {
		v |= uint32(win[off+i]) << (8 * i)
	}
	m.openBus = v
	return v
}

func (m *Map) write(cpu int, tcm bool, addr uint32, width uint32, value uint32) {
	page := addr >> pageShift
	if int(page) >= pageCount {
		return
	}
	t := m.table(cpu, tcm)
	win := t.write[page]
	if win == nil {
		m.writeSlow(cpu, addr, width, value)
		return
	}

	off := addr & (pageSize - 1)
	for i := uint32(0); i < width; i++ {
		win[off+i] = uint8(value >> (8 * i))
	}
}

// readSlow handles every address that didn't resolve to a direct page
// pointer: I/O registers, multiply-mapped VRAM slots, and cartridge
// storage. Unmapped addresses return the open-bus value and log once.
func (m *Map) readSlow(cpu int, addr uint32, width uint32) uint32 {
	switch {
	case addr >= 0x04000000 && addr < 0x05000000:
		v := m.ioTable(cpu).Read(addr, ioreg.Width(width))
		m.openBus = v
		return v

	case addr >= 0x06000000 && addr < 0x07000000:
		v := m.readVRAMSlow(addr, width)
		m.openBus = v
		return v

	case addr >= 0x08000000 && addr < 0x0A000000:
		if m.cart != nil {
			v := m.cart.ReadROM(addr-0x08000000, width)
			m.openBus = v
			return v
		}

	case addr >= 0x0A000000 && addr < 0x0B000000:
		if m.cart != nil {
			v := m.cart.ReadSave(addr-0x0A000000, width)
			m.openBus = v
			return v
		}
	}

	logger.Logf("memory", "open-bus read at %#08x", addr)
	return m.openBus
}

func (m *Map) writeSlow(cpu int, addr uint32, width uint32, value uint32) {
	switch {
	case addr >= 0x04000000 && addr < 0x05000000:
		m.ioTable(cpu).Write(addr, ioreg.Width(width), value)
		return

	case addr >= 0x06000000 && addr < 0x07000000:
		m.writeVRAMSlow(addr, width, value)
		return

	case addr >= 0x0A000000 && addr < 0x0B000000:
		if m.cart != nil {
			m.cart.WriteSave(addr-0x0A000000, width, value)
		}
		return
	}

	logger.Logf("memory", "open-bus write at %#08x", addr)
}

func (m *Map) ioTable(cpu int) *ioreg.Table {
	if cpu == 0 {
		return m.io9
	}
	return m.io7
}

// readVRAMSlow assembles a value byte-by-byte via the router's OR-read
// semantics (spec.md §4.3), for slots that have zero or more than one
// physical block mapped.
func (m *Map) readVRAMSlow(addr uint32, width uint32) uint32 {
	const base = 0x06000000
	rel := addr - base
	slot := int(rel / pageSize)
	off := int(rel % pageSize)

	var v uint32
	for i := uint32(0); i < width; i++ {
		s, o := slot, off+int(i)
		if o >= pageSize {
			s += o / pageSize
			o %= pageSize
		}
		v |= uint32(m.vram.ReadOR(vram.KindBackgroundA, s, o)) << (8 * i)
	}
	return v
}

func (m *Map) writeVRAMSlow(addr uint32, width uint32, value uint32) {
	const base = 0x06000000
	rel := addr - base
	slot := int(rel / pageSize)
	off := int(rel % pageSize)

	for i := uint32(0); i < width; i++ {
		s, o := slot, off+int(i)
		if o >= pageSize {
			s += o / pageSize
			o %= pageSize
		}
		m.vram.WriteBroadcast(vram.KindBackgroundA, s, o, uint8(value>>(8*i)))
	}
}
