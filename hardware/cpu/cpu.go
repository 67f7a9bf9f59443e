// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package cpu implements the 32-bit (ARM) and 16-bit (Thumb) interpreter
// described in spec.md §4.1, shared by both CPU A and CPU B (the latter
// running only the ARM7TDMI-compatible subset). Grounded on Gopher2600's
// hardware/memory/cartridge/arm package for the state/register layout
// (decode switches directly on opcode field masks), generalised from a single-ARM
// coprocessor model to a full dual-mode interpreter per
// original_source/src/interpreter.h and original_source/src/cpu.cpp.
package cpu

// Bus is the memory collaborator the interpreter reads/writes through.
// It is satisfied by hardware/memory.Map's per-CPU accessor methods.
type Bus interface {
	Read8(addr uint32) uint8
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Write8(addr uint32, value uint8)
	Write16(addr uint32, value uint16)
	Write32(addr uint32, value uint32)
}

// Mode is one of the seven ARM operating modes.
type Mode uint8

const (
	User Mode = iota
	FIQ
	IRQ
	Supervisor
	Abort
	Undefined
	System
	modeCount
)

// register indices, matching ARM's usual r0-r15 naming; r13=SP, r14=LR,
// r15=PC.
const (
	SP = 13
	LR = 14
	PC = 15
)

// Flags mirrors the NZCV condition bits of CPSR.
type Flags struct {
	N, Z, C, V bool
}

// pack encodes the four flags into the top nibble of a PSR word.
func (f Flags) pack() uint32 {
	var v uint32
	if f.N {
		v |= 1 << 31
	}
	if f.Z {
		v |= 1 << 30
	}
	if f.C {
		v |= 1 << 29
	}
	if f.V {
		v |= 1 << 28
	}
	return v
}

func unpackFlags(psr uint32) Flags {
	return Flags{
		N: psr&(1<<31) != 0,
		Z: psr&(1<<30) != 0,
		C: psr&(1<<29) != 0,
		V: psr&(1<<28) != 0,
	}
}

// State is one CPU's full architectural register state: the banked
// general-purpose registers, CPSR/SPSR, the saturation sticky bit, and
// the two-slot pipeline (fetched opcode, decoded opcode) spec.md §4.1
// describes.
type State struct {
	// r holds the 16 "current" registers as seen by the currently active
	// mode. Banked registers (r8-r14 for FIQ, r13-r14 for the other
	// privileged modes) are swapped in/out of this array on a mode
	// change; SPSR lives in the separate spsr array below.
	r [16]uint32

	// banked copies, indexed by bank (see bankIndex): System shares
	// User's slot for r13/r14; FIQ additionally banks r8-r12.
	bankedLoR [modeCount][5]uint32 // r8..r12, only FIQ's differ from User
	bankedSP  [modeCount]uint32
	bankedLR  [modeCount]uint32
	spsr      [modeCount]uint32

	cpsrFlags Flags
	thumb     bool
	irqDisable bool
	fiqDisable bool
	mode      Mode

	// Q is the sticky saturation flag (CPSR bit 27). It is carried through
	// CPSR()/SetCPSR and MSR writes only: the QADD/QSUB instruction family
	// is not decoded, so no instruction sets it on saturation.
	Q bool

	// pipeline: fetched holds the next opcode to decode, decoded holds the
	// one about to execute. Reset() and branches refill both slots before
	// execution resumes, modelling the two-stage pipeline refill cost
	// spec.md requires CPU callers to account for.
	fetched uint32
	decoded uint32
	pipelineFilled int

	// branched is set by FlushPipeline and checked by Step{ARM,Thumb}:
	// when an instruction writes r15, the pipeline has already been
	// refilled from the new target, so the normal post-execution
	// prefetch-and-advance must be skipped.
	branched bool

	bus Bus

	// halted is true once the CPU has executed a documented halt/wait
	// instruction; the scheduler is expected to stop dispatching Step
	// calls to it until an interrupt wakes it (spec.md §4.1, "halt").
	halted bool
}

// New creates a CPU state attached to bus, reset into Supervisor mode
// with interrupts disabled, matching the documented ARM reset state.
func New(bus Bus) *State {
	s := &State{bus: bus}
	s.Reset(0)
	return s
}

// Reset places the CPU in Supervisor mode with IRQ/FIQ disabled and PC
// set to entry, then fills the pipeline.
func (s *State) Reset(entry uint32) {
	*s = State{bus: s.bus}
	s.mode = Supervisor
	s.irqDisable = true
	s.fiqDisable = true
	s.r[PC] = entry
	s.refillPipeline()
}

func (s *State) refillPipeline() {
	s.fetched = s.fetchOpcode(s.r[PC])
	s.advancePC()
	s.decoded = s.fetched
	s.fetched = s.fetchOpcode(s.r[PC])
	s.advancePC()
	s.pipelineFilled = 2
}

func (s *State) instrSize() uint32 {
	if s.thumb {
		return 2
	}
	return 4
}

func (s *State) advancePC() {
	s.r[PC] += s.instrSize()
}

func (s *State) fetchOpcode(addr uint32) uint32 {
	if s.thumb {
		return uint32(s.bus.Read16(addr))
	}
	return s.bus.Read32(addr)
}

// PC returns the value general-purpose code sees when it reads r15: the
// address of the currently executing instruction plus two instructions
// (spec.md §4.1, "PC-relative reads return the pipelined value").
func (s *State) PC() uint32 {
	return s.r[PC]
}

// ExecutingAddress returns the address of the instruction currently
// decoded and about to execute -- useful for disassembly/debugging and
// for verifying branch targets, as opposed to PC() which returns the
// architectural (pipeline-advanced) r15 value.
func (s *State) ExecutingAddress() uint32 {
	return s.r[PC] - 2*s.instrSize()
}

// GetReg reads register i as the currently executing instruction would
// see it (PC already reflects the pipeline offset).
func (s *State) GetReg(i int) uint32 {
	return s.r[i]
}

// SetReg writes register i. Writing r15 triggers a pipeline flush and
// refetch, exactly as a branch would.
func (s *State) SetReg(i int, v uint32) {
	s.r[i] = v
	if i == PC {
		s.FlushPipeline()
	}
}

// FlushPipeline discards the two pending pipeline slots and refetches
// from the current PC, as any instruction that writes r15 must do.
func (s *State) FlushPipeline() {
	s.r[PC] &^= s.instrSize() - 1
	s.refillPipeline()
	s.branched = true
}

// CPSR packs the full current program status register.
func (s *State) CPSR() uint32 {
	v := s.cpsrFlags.pack()
	if s.thumb {
		v |= 1 << 5
	}
	if s.fiqDisable {
		v |= 1 << 6
	}
	if s.irqDisable {
		v |= 1 << 7
	}
	v |= uint32(modeBits[s.mode])
	if s.Q {
		v |= 1 << 27
	}
	return v
}

// modeBits is the 5-bit mode field encoding used by CPSR/SPSR.
var modeBits = [modeCount]uint8{
	User: 0b10000, FIQ: 0b10001, IRQ: 0b10010, Supervisor: 0b10011,
	Abort: 0b10111, Undefined: 0b11011, System: 0b11111,
}

var bitsToMode = map[uint8]Mode{
	0b10000: User, 0b10001: FIQ, 0b10010: IRQ, 0b10011: Supervisor,
	0b10111: Abort, 0b11011: Undefined, 0b11111: System,
}

// SetCPSR unpacks a full PSR word and switches banks if the mode field
// changed.
func (s *State) SetCPSR(v uint32) {
	s.cpsrFlags = unpackFlags(v)
	s.thumb = v&(1<<5) != 0
	s.fiqDisable = v&(1<<6) != 0
	s.irqDisable = v&(1<<7) != 0
	s.Q = v&(1<<27) != 0
	if m, ok := bitsToMode[uint8(v&0x1F)]; ok {
		s.switchMode(m)
	}
}

// SPSR returns the saved program status register of the current mode.
// User and System modes have no SPSR; reading it there returns the
// current CPSR as a harmless fallback.
func (s *State) SPSR() uint32 {
	if s.mode == User || s.mode == System {
		return s.CPSR()
	}
	return s.spsr[s.mode]
}

// SetSPSR writes the current mode's saved program status register.
func (s *State) SetSPSR(v uint32) {
	if s.mode == User || s.mode == System {
		return
	}
	s.spsr[s.mode] = v
}

// Flags returns the current NZCV bits.
func (s *State) Flags() Flags { return s.cpsrFlags }

// SetFlags overwrites the current NZCV bits.
func (s *State) SetFlags(f Flags) { s.cpsrFlags = f }

// Mode returns the CPU's current operating mode.
func (s *State) Mode() Mode { return s.mode }

// Thumb reports whether the CPU is currently executing Thumb code.
func (s *State) Thumb() bool { return s.thumb }

// SetThumb changes the instruction set and flushes the pipeline, as the
// BX/BLX family of instructions do.
func (s *State) SetThumb(thumb bool) {
	if s.thumb == thumb {
		return
	}
	s.thumb = thumb
	s.FlushPipeline()
}

// switchMode banks out the outgoing mode's r8-r14/SPSR and banks in the
// incoming mode's, per the ARM register-banking rules (spec.md §4.1,
// "mode/register banking").
func (s *State) switchMode(next Mode) {
	if next == s.mode {
		return
	}

	// bank out r13/r14 for every mode (User/System share a bank).
	outBank := bankIndex(s.mode)
	s.bankedSP[outBank] = s.r[SP]
	s.bankedLR[outBank] = s.r[LR]

	// r8-r12: FIQ has its own private bank, every other mode shares the
	// User bank. Save whichever bank is currently live before swapping it
	// out, so a later switch back restores exactly what was there.
	if s.mode == FIQ {
		copy(s.bankedLoR[FIQ][:], s.r[8:13])
	} else {
		copy(s.bankedLoR[User][:], s.r[8:13])
	}

	inBank := bankIndex(next)
	s.r[SP] = s.bankedSP[inBank]
	s.r[LR] = s.bankedLR[inBank]
	if next == FIQ {
		copy(s.r[8:13], s.bankedLoR[FIQ][:])
	} else {
		copy(s.r[8:13], s.bankedLoR[User][:])
	}

	s.mode = next
}

// bankIndex maps User and System onto the same register bank, since
// architecturally they share r13-r14 (only FIQ, IRQ, Supervisor, Abort
// and Undefined have genuinely private banks).
func bankIndex(m Mode) Mode {
	if m == System {
		return User
	}
	return m
}

// Halt marks the CPU as halted; Halted/Resume let the scheduler and
// interrupt delivery logic observe and clear the state (spec.md §4.1).
func (s *State) Halt()       { s.halted = true }
func (s *State) Halted() bool { return s.halted }
func (s *State) Resume()     { s.halted = false }

// EvalCondition tests a 4-bit ARM condition code against the current
// flags.
func (s *State) EvalCondition(cond uint32) bool {
	f := s.cpsrFlags
	switch cond {
	case 0x0: // EQ
		return f.Z
	case 0x1: // NE
		return !f.Z
	case 0x2: // CS/HS
		return f.C
	case 0x3: // CC/LO
		return !f.C
	case 0x4: // MI
		return f.N
	case 0x5: // PL
		return !f.N
	case 0x6: // VS
		return f.V
	case 0x7: // VC
		return !f.V
	case 0x8: // HI
		return f.C && !f.Z
	case 0x9: // LS
		return !f.C || f.Z
	case 0xA: // GE
		return f.N == f.V
	case 0xB: // LT
		return f.N != f.V
	case 0xC: // GT
		return !f.Z && f.N == f.V
	case 0xD: // LE
		return f.Z || f.N != f.V
	case 0xE: // AL
		return true
	default: // 0xF: reserved, routed to the BLX/HLE-IRQ-return family
		return false
	}
}
