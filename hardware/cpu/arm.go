// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package cpu

import "github.com/jetsetilly/duocore/logger"

// Interpreter wraps a register State with the instruction-set decode and
// execute logic, plus the handful of behavioural differences between
// CPU A (full ARM9-style) and CPU B (ARM7TDMI-compatible only).
//
// Rather than the teacher's per-address decodeFunction cache (suited to
// a single slow-changing cartridge program), Step decodes directly off
// the opcode's field layout every call: this core re-executes the same
// handful of addresses millions of times per frame from RAM as well as
// ROM, where a cache keyed by address would be invalidated constantly by
// self-modifying/JIT-style code common on this platform.
type Interpreter struct {
	*State
	CPUB bool // true selects CPU B's ARM7TDMI-only quirks

	// OnSoftwareInterrupt is invoked for the SWI/SVC instruction; nil
	// means SWI is a silent no-op (HLE bodies are out of scope, spec.md
	// Non-goals -- only the invocation contract is implemented).
	OnSoftwareInterrupt func(comment uint32)

	// OnUndefined is invoked for an undefined/unimplemented encoding.
	// The instruction still behaves as a documented no-op afterwards so
	// execution never halts on an unknown opcode (spec.md §4.1 error
	// policy: "never panic/crash in the run loop").
	OnUndefined func(opcode uint32)

	// OnHLECall is invoked when the HLESentinel opcode is decoded; see
	// hle.go.
	OnHLECall func(entry uint32)
}

// NewInterpreter creates an Interpreter over state.
func NewInterpreter(state *State, cpuB bool) *Interpreter {
	return &Interpreter{State: state, CPUB: cpuB}
}

// Step decodes and executes exactly one instruction in whichever
// instruction set the CPU is currently in, returning the approximate
// cycle cost. A halted CPU consumes one cycle and does nothing, so the
// scheduler can keep driving it without special-casing halt state.
func (c *Interpreter) Step() int {
	if c.halted {
		return 1
	}
	if c.thumb {
		return c.StepThumb()
	}
	return c.StepARM()
}

// StepARM decodes and executes exactly one ARM (32-bit) instruction,
// returning the approximate cycle cost. Wait-state tables are out of
// scope (spec.md Non-goals, "no cycle-exact timing model required beyond
// the scheduler's own bookkeeping"); each instruction category returns a
// fixed estimate, except CPU B's multiplies, whose cost depends on the
// operand's magnitude (multiplierCycles). Both are documented in
// DESIGN.md.
func (c *Interpreter) StepARM() int {
	opcode := c.decoded
	c.branched = false

	var cycles int
	cond := opcode >> 28
	switch {
	case cond == 0xF:
		cycles = c.execARMUnconditional(opcode)
	case !c.EvalCondition(cond):
		cycles = 1
	default:
		cycles = c.execARM(opcode)
	}

	if !c.branched {
		c.decoded = c.fetched
		c.fetched = c.fetchOpcode(c.r[PC])
		c.advancePC()
	}
	return cycles
}

func (c *Interpreter) execARMUnconditional(opcode uint32) int {
	// reserved predicate 0b1111: routed to the BLX(immediate)/HLE-IRQ
	// -return/driver-stub family rather than treated as AL (spec.md
	// §4.1, "reserved-predicate routing").
	if opcode == HLESentinel {
		return c.handleHLESentinel(c.ExecutingAddress())
	}
	if opcode&0x0E000000 == 0x0A000000 {
		// BLX (immediate): always switches to Thumb; bit24 adds a
		// half-word to the target.
		offset := signExtend24(opcode&0x00FFFFFF) << 2
		if opcode&(1<<24) != 0 {
			offset |= 2
		}
		c.r[LR] = c.r[PC] - uint32(c.instrSize())
		c.SetThumb(true)
		c.SetReg(PC, c.r[PC]+uint32(int32(offset)))
		return 3
	}
	if c.OnUndefined != nil {
		c.OnUndefined(opcode)
	} else {
		logger.Logf("cpu", "unhandled reserved-predicate opcode %#08x", opcode)
	}
	return 1
}

func (c *Interpreter) execARM(opcode uint32) int {
	switch {
	case opcode&0x0FFFFFD0 == 0x012FFF10: // BX / BLX(register)
		return c.execBX(opcode)
	case opcode&0x0FC000F0 == 0x00000090: // MUL/MLA
		return c.execMultiply(opcode)
	case opcode&0x0F8000F0 == 0x00800090: // UMULL/UMLAL/SMULL/SMLAL
		return c.execMultiplyLong(opcode)
	case opcode&0x0FB00FF0 == 0x01000090: // SWP/SWPB
		return c.execSwap(opcode)
	case opcode&0x0E000090 == 0x00000090 && opcode&0x00000060 != 0: // LDRH/STRH/LDRSB/LDRSH
		return c.execHalfwordTransfer(opcode)
	case opcode&0x0E000010 == 0x06000010: // undefined (reserved encoding)
		if c.OnUndefined != nil {
			c.OnUndefined(opcode)
		}
		return 1
	case opcode&0x0C000000 == 0x00000000 && opcode&0x00000090 == 0x00000010 && opcode&0x01900000 == 0x01000000:
		return c.execPSRTransfer(opcode)
	case opcode&0x0C000000 == 0x00000000:
		return c.execDataProcessing(opcode)
	case opcode&0x0C000000 == 0x04000000:
		return c.execSingleTransfer(opcode)
	case opcode&0x0E000000 == 0x08000000:
		return c.execBlockTransfer(opcode)
	case opcode&0x0E000000 == 0x0A000000:
		return c.execBranch(opcode)
	case opcode&0x0F000000 == 0x0F000000:
		return c.execSWI(opcode)
	default:
		if c.OnUndefined != nil {
			c.OnUndefined(opcode)
		} else {
			logger.Logf("cpu", "unhandled ARM opcode %#08x", opcode)
		}
		return 1
	}
}

func signExtend24(v uint32) int32 {
	if v&0x00800000 != 0 {
		return int32(v | 0xFF000000)
	}
	return int32(v)
}

func (c *Interpreter) execBX(opcode uint32) int {
	rm := opcode & 0xF
	target := c.GetReg(int(rm))
	link := opcode&(1<<5) != 0 // BLX(register): bit5 of this masked form
	if link {
		c.r[LR] = c.r[PC] - uint32(c.instrSize())
	}
	c.SetThumb(target&1 != 0)
	c.SetReg(PC, target&^1)
	return 3
}

// operand2 decodes a data-processing instruction's second operand,
// handling all three ARM encodings: rotated 8-bit immediate,
// immediate-shifted register, and register-shifted register. The latter
// makes a read of r15 return PC+12 rather than the usual PC+8, since an
// extra internal cycle elapses fetching the shift amount from a register
// (spec.md §8, "PC-relative-read-under-register-shift").
func (c *Interpreter) operand2(opcode uint32) (value uint32, shifterCarry bool) {
	carryIn := c.cpsrFlags.C

	if opcode&(1<<25) != 0 {
		imm := opcode & 0xFF
		rot := (opcode >> 8) & 0xF * 2
		return shiftROR2(imm, rot, carryIn)
	}

	rm := int(opcode & 0xF)
	kind := ShiftType((opcode >> 5) & 0x3)

	if opcode&(1<<4) != 0 {
		// register-specified shift amount
		rs := int((opcode >> 8) & 0xF)
		amount := c.GetReg(rs) & 0xFF
		val := c.registerForShift(rm, true)
		return Shift(kind, val, amount, carryIn, false)
	}

	amount := (opcode >> 7) & 0x1F
	val := c.registerForShift(rm, false)
	return Shift(kind, val, amount, carryIn, true)
}

// registerForShift reads rm as operand2's base value, applying the
// PC+12-under-register-shift rule.
func (c *Interpreter) registerForShift(rm int, registerShift bool) uint32 {
	if rm == PC && registerShift {
		return c.r[PC] + uint32(c.instrSize())
	}
	return c.GetReg(rm)
}

// shiftROR2 rotates an 8-bit immediate by an even amount for the
// data-processing immediate encoding; a zero rotation leaves carry
// unaffected (there is no RRX special case here, unlike the immediate
// register-shift ROR #0 encoding).
func shiftROR2(imm, rotate uint32, carryIn bool) (uint32, bool) {
	if rotate == 0 {
		return imm, carryIn
	}
	result := (imm >> rotate) | (imm << (32 - rotate))
	return result, result&(1<<31) != 0
}

const (
	opAND = iota
	opEOR
	opSUB
	opRSB
	opADD
	opADC
	opSBC
	opRSC
	opTST
	opTEQ
	opCMP
	opCMN
	opORR
	opMOV
	opBIC
	opMVN
)

func (c *Interpreter) execDataProcessing(opcode uint32) int {
	op := (opcode >> 21) & 0xF
	setFlags := opcode&(1<<20) != 0
	rn := int((opcode >> 16) & 0xF)
	rd := int((opcode >> 12) & 0xF)

	op2, shifterCarry := c.operand2(opcode)
	rnVal := c.registerForShift(rn, opcode&(1<<25) == 0 && opcode&(1<<4) != 0)

	var result uint32
	var flags Flags
	writesResult := true

	switch op {
	case opAND:
		result = rnVal & op2
		flags = logicalFlags(result, shifterCarry, c.cpsrFlags.V)
	case opEOR:
		result = rnVal ^ op2
		flags = logicalFlags(result, shifterCarry, c.cpsrFlags.V)
	case opSUB:
		result, flags = Sub(rnVal, op2)
	case opRSB:
		result, flags = RSub(rnVal, op2)
	case opADD:
		result, flags = Add(rnVal, op2)
	case opADC:
		result, flags = AddCarry(rnVal, op2, c.cpsrFlags.C)
	case opSBC:
		result, flags = SubCarry(rnVal, op2, c.cpsrFlags.C)
	case opRSC:
		result, flags = RSubCarry(rnVal, op2, c.cpsrFlags.C)
	case opTST:
		result = rnVal & op2
		flags = logicalFlags(result, shifterCarry, c.cpsrFlags.V)
		writesResult = false
	case opTEQ:
		result = rnVal ^ op2
		flags = logicalFlags(result, shifterCarry, c.cpsrFlags.V)
		writesResult = false
	case opCMP:
		result, flags = Sub(rnVal, op2)
		writesResult = false
	case opCMN:
		result, flags = Add(rnVal, op2)
		writesResult = false
	case opORR:
		result = rnVal | op2
		flags = logicalFlags(result, shifterCarry, c.cpsrFlags.V)
	case opMOV:
		result = op2
		flags = logicalFlags(result, shifterCarry, c.cpsrFlags.V)
	case opBIC:
		result = rnVal &^ op2
		flags = logicalFlags(result, shifterCarry, c.cpsrFlags.V)
	case opMVN:
		result = ^op2
		flags = logicalFlags(result, shifterCarry, c.cpsrFlags.V)
	}

	if setFlags {
		if rd == PC {
			// writing flags while targeting PC restores CPSR from SPSR:
			// the documented "return from exception" idiom.
			c.SetCPSR(c.SPSR())
		} else {
			c.SetFlags(flags)
		}
	}

	if writesResult {
		c.SetReg(rd, result)
	}

	if rd == PC && writesResult {
		return 3
	}
	return 1
}

func (c *Interpreter) execPSRTransfer(opcode uint32) int {
	useSPSR := opcode&(1<<22) != 0
	if opcode&(1<<21) == 0 {
		// MRS
		rd := int((opcode >> 12) & 0xF)
		if useSPSR {
			c.SetReg(rd, c.SPSR())
		} else {
			c.SetReg(rd, c.CPSR())
		}
		return 1
	}

	// MSR
	var value uint32
	if opcode&(1<<25) != 0 {
		imm := opcode & 0xFF
		rot := (opcode >> 8) & 0xF * 2
		value, _ = shiftROR2(imm, rot, false)
	} else {
		rm := int(opcode & 0xF)
		value = c.GetReg(rm)
	}

	fieldMask := (opcode >> 16) & 0xF
	var mask uint32
	if fieldMask&0x1 != 0 {
		mask |= 0x000000FF
	}
	if fieldMask&0x8 != 0 {
		mask |= 0xFF000000 // condition flags field
	}

	if useSPSR {
		cur := c.SPSR()
		c.SetSPSR((cur &^ mask) | (value & mask))
	} else {
		cur := c.CPSR()
		c.SetCPSR((cur &^ mask) | (value & mask))
	}
	return 1
}

func (c *Interpreter) execMultiply(opcode uint32) int {
	rd := int((opcode >> 16) & 0xF)
	rn := int((opcode >> 12) & 0xF)
	rs := int((opcode >> 8) & 0xF)
	rm := int(opcode & 0xF)
	accumulate := opcode&(1<<21) != 0
	setFlags := opcode&(1<<20) != 0

	result := c.GetReg(rm) * c.GetReg(rs)
	if accumulate {
		result += c.GetReg(rn)
	}
	c.SetReg(rd, result)
	if setFlags {
		c.SetFlags(Flags{N: result&(1<<31) != 0, Z: result == 0, C: c.cpsrFlags.C, V: c.cpsrFlags.V})
	}

	cost := 1
	if accumulate {
		cost++
	}
	if c.CPUB {
		cost += multiplierCycles(c.GetReg(rs))
	} else {
		cost++
	}
	return cost
}

// multiplierCycles implements CPU B's operand-magnitude-dependent
// multiply timing (spec.md §4.1): the multiplier's significant-byte
// count determines the extra cycles, unlike CPU A's flat cost.
func multiplierCycles(multiplier uint32) int {
	switch {
	case multiplier&0xFFFFFF00 == 0 || multiplier&0xFFFFFF00 == 0xFFFFFF00:
		return 1
	case multiplier&0xFFFF0000 == 0 || multiplier&0xFFFF0000 == 0xFFFF0000:
		return 2
	case multiplier&0xFF000000 == 0 || multiplier&0xFF000000 == 0xFF000000:
		return 3
	default:
		return 4
	}
}

func (c *Interpreter) execMultiplyLong(opcode uint32) int {
	rdHi := int((opcode >> 16) & 0xF)
	rdLo := int((opcode >> 12) & 0xF)
	rs := int((opcode >> 8) & 0xF)
	rm := int(opcode & 0xF)
	signed := opcode&(1<<22) != 0
	accumulate := opcode&(1<<21) != 0
	setFlags := opcode&(1<<20) != 0

	var wide uint64
	if signed {
		wide = uint64(int64(int32(c.GetReg(rm))) * int64(int32(c.GetReg(rs))))
	} else {
		wide = uint64(c.GetReg(rm)) * uint64(c.GetReg(rs))
	}
	if accumulate {
		wide += uint64(c.GetReg(rdHi))<<32 | uint64(c.GetReg(rdLo))
	}

	c.SetReg(rdLo, uint32(wide))
	c.SetReg(rdHi, uint32(wide>>32))
	if setFlags {
		c.SetFlags(Flags{N: wide&(1<<63) != 0, Z: wide == 0, C: c.cpsrFlags.C, V: c.cpsrFlags.V})
	}

	cost := 2
	if accumulate {
		cost++
	}
	if c.CPUB {
		cost += multiplierCycles(c.GetReg(rs))
	} else {
		cost++
	}
	return cost
}

func (c *Interpreter) execSwap(opcode uint32) int {
	rn := int((opcode >> 16) & 0xF)
	rd := int((opcode >> 12) & 0xF)
	rm := int(opcode & 0xF)
	byteSwap := opcode&(1<<22) != 0
	addr := c.GetReg(rn)

	if byteSwap {
		old := c.bus.Read8(addr)
		c.bus.Write8(addr, uint8(c.GetReg(rm)))
		c.SetReg(rd, uint32(old))
	} else {
		old := c.readWordRotated(addr)
		c.bus.Write32(addr, c.GetReg(rm))
		c.SetReg(rd, old)
	}
	return 4
}

// execHalfwordTransfer implements LDRH/STRH/LDRSB/LDRSH (the
// halfword-and-signed-data-transfer encoding), including pre/post
// indexing and the immediate-vs-register offset split. Odd-aligned
// half-word loads apply CPU B's rotate/sign-extend quirk via the same
// loadHalfB/loadSignedHalfB helpers Thumb mode uses (spec.md §4.1).
func (c *Interpreter) execHalfwordTransfer(opcode uint32) int {
	preIndex := opcode&(1<<24) != 0
	up := opcode&(1<<23) != 0
	immOffset := opcode&(1<<22) != 0
	writeBack := opcode&(1<<21) != 0
	load := opcode&(1<<20) != 0
	rn := int((opcode >> 16) & 0xF)
	rd := int((opcode >> 12) & 0xF)
	sh := (opcode >> 5) & 0x3

	var offset uint32
	if immOffset {
		offset = ((opcode >> 4) & 0xF0) | (opcode & 0xF)
	} else {
		offset = c.GetReg(int(opcode & 0xF))
	}

	base := c.GetReg(rn)
	addr := base
	if preIndex {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
	}

	if load {
		switch sh {
		case 1: // LDRH
			c.SetReg(rd, c.loadHalfB(addr))
		case 2: // LDRSB
			c.SetReg(rd, uint32(int32(int8(c.bus.Read8(addr)))))
		case 3: // LDRSH
			c.SetReg(rd, c.loadSignedHalfB(addr))
		}
	} else {
		c.bus.Write16(addr&^1, uint16(c.GetReg(rd)))
	}

	if !preIndex {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
	}
	if writeBack || !preIndex {
		c.SetReg(rn, addr)
	}
	return 2
}

// readWordRotated implements the documented misaligned-load behaviour:
// a word load from a non-word-aligned address reads the aligned word
// and rotates it right by the misalignment in bits (spec.md §8, memory
// round-trip property).
func (c *Interpreter) readWordRotated(addr uint32) uint32 {
	word := c.bus.Read32(addr &^ 3)
	rot := (addr & 3) * 8
	if rot == 0 {
		return word
	}
	result, _ := shiftROR(word, rot, false)
	return result
}

func (c *Interpreter) execSingleTransfer(opcode uint32) int {
	immOffset := opcode&(1<<25) == 0
	preIndex := opcode&(1<<24) != 0
	up := opcode&(1<<23) != 0
	byteAccess := opcode&(1<<22) != 0
	writeback := opcode&(1<<21) != 0
	load := opcode&(1<<20) != 0
	rn := int((opcode >> 16) & 0xF)
	rd := int((opcode >> 12) & 0xF)

	var offset uint32
	if immOffset {
		offset = opcode & 0xFFF
	} else {
		rm := int(opcode & 0xF)
		kind := ShiftType((opcode >> 5) & 0x3)
		amount := (opcode >> 7) & 0x1F
		offset, _ = Shift(kind, c.GetReg(rm), amount, c.cpsrFlags.C, true)
	}

	base := c.GetReg(rn)
	addr := base
	if preIndex {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
	}

	if load {
		var value uint32
		if byteAccess {
			value = uint32(c.bus.Read8(addr))
		} else {
			value = c.readWordRotated(addr)
		}
		c.SetReg(rd, value)
	} else {
		value := c.GetReg(rd)
		if rd == PC {
			value += uint32(c.instrSize())
		}
		if byteAccess {
			c.bus.Write8(addr, uint8(value))
		} else {
			c.bus.Write32(addr&^3, value)
		}
	}

	if !preIndex {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
		c.SetReg(rn, addr)
	} else if writeback {
		c.SetReg(rn, addr)
	}

	if rd == PC && load {
		return 4
	}
	return 2
}

// execBlockTransfer implements LDM/STM. CPU A and CPU B diverge on the
// documented base-register-in-list writeback quirks (spec.md §4.1):
//
//   - LDM, CPU A: the base register ends up holding the writeback
//     address, UNLESS the base is the last register loaded, in which
//     case the loaded memory value is left standing.
//   - STM, CPU B: the base register's ORIGINAL (pre-transfer) value is
//     stored, but only when the base is the FIRST register stored;
//     otherwise the already-updated (post-writeback) value is stored.
//
// The reverse combinations (CPU A's STM, CPU B's LDM) aren't called out
// by spec.md as special, so they get the ordinary behaviour: STM always
// stores the updated base (CPU A), and a loaded base simply keeps
// whatever was read from memory with writeback suppressed (CPU B).
func (c *Interpreter) execBlockTransfer(opcode uint32) int {
	preIndex := opcode&(1<<24) != 0
	up := opcode&(1<<23) != 0
	sUser := opcode&(1<<22) != 0
	writeback := opcode&(1<<21) != 0
	load := opcode&(1<<20) != 0
	rn := int((opcode >> 16) & 0xF)
	list := opcode & 0xFFFF

	var regs []int
	for i := 0; i < 16; i++ {
		if list&(1<<uint(i)) != 0 {
			regs = append(regs, i)
		}
	}

	base := c.GetReg(rn)
	count := uint32(len(regs))
	var start uint32
	if up {
		start = base
	} else {
		start = base - count*4
	}

	addr := start
	if preIndex == up {
		addr += 4
	}

	finalBase := base
	if up {
		finalBase = base + count*4
	} else {
		finalBase = base - count*4
	}

	baseInList := false
	for _, r := range regs {
		if r == rn {
			baseInList = true
		}
	}

	restoreSPSR := sUser && load && list&(1<<PC) != 0
	baseOverride := false // CPU A's LDM quirk: base set to finalBase after the loop completes

	for i, r := range regs {
		if load {
			value := c.bus.Read32(addr)
			if sUser && r != PC {
				c.setUserBankReg(r, value)
			} else {
				c.SetReg(r, value)
			}
			if r == rn {
				writeback = false // loading the base cancels the ordinary writeback path
				if !c.CPUB && i != len(regs)-1 {
					baseOverride = true
				}
			}
		} else {
			var value uint32
			if sUser && r != PC {
				value = c.getUserBankReg(r)
			} else {
				value = c.GetReg(r)
			}
			if r == rn && baseInList {
				if c.CPUB {
					if i == 0 {
						value = base // CPU B: original value when base stored first
					} else {
						value = finalBase
					}
				} else {
					value = finalBase
				}
			} else if r == PC {
				value += uint32(c.instrSize())
			}
			c.bus.Write32(addr, value)
		}
		addr += 4
	}

	if writeback {
		c.SetReg(rn, finalBase)
	}
	if baseOverride {
		c.SetReg(rn, finalBase)
	}
	if restoreSPSR {
		c.SetCPSR(c.SPSR())
	}

	if load && list&(1<<PC) != 0 {
		return 5
	}
	return 1 + int(count)
}

// setUserBankReg and getUserBankReg implement the `^` block-transfer
// suffix's user-bank register access (spec.md §4.1, "Block-transfer with
// `^`"): registers r8-r14 are read/written in the User bank regardless
// of the CPU's current privileged mode.
func (c *Interpreter) setUserBankReg(r int, value uint32) {
	if r < 8 {
		c.r[r] = value
		return
	}
	if c.mode == User || c.mode == System {
		c.r[r] = value
		return
	}
	bank := bankIndex(User)
	switch {
	case r == SP:
		c.bankedSP[bank] = value
	case r == LR:
		c.bankedLR[bank] = value
	case c.mode == FIQ && r >= 8 && r <= 12:
		c.bankedLoR[bank][r-8] = value
	default:
		c.r[r] = value
	}
}

func (c *Interpreter) getUserBankReg(r int) uint32 {
	if r < 8 {
		return c.r[r]
	}
	if c.mode == User || c.mode == System {
		return c.r[r]
	}
	bank := bankIndex(User)
	switch {
	case r == SP:
		return c.bankedSP[bank]
	case r == LR:
		return c.bankedLR[bank]
	case c.mode == FIQ && r >= 8 && r <= 12:
		return c.bankedLoR[bank][r-8]
	default:
		return c.r[r]
	}
}

func (c *Interpreter) execBranch(opcode uint32) int {
	link := opcode&(1<<24) != 0
	offset := signExtend24(opcode&0x00FFFFFF) << 2
	if link {
		c.r[LR] = c.r[PC] - uint32(c.instrSize())
	}
	c.SetReg(PC, c.r[PC]+uint32(offset))
	return 3
}

func (c *Interpreter) execSWI(opcode uint32) int {
	comment := opcode & 0x00FFFFFF
	if c.OnSoftwareInterrupt != nil {
		c.OnSoftwareInterrupt(comment)
	}
	return 3
}
