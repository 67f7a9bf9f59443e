// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package cpu

import "github.com/jetsetilly/duocore/logger"

// StepThumb decodes and executes exactly one 16-bit Thumb instruction,
// returning the approximate cycle cost (see StepARM's note on timing
// scope).
func (c *Interpreter) StepThumb() int {
	opcode := uint16(c.decoded)
	c.branched = false

	cycles := c.execThumb(opcode)

	if !c.branched {
		c.decoded = c.fetched
		c.fetched = c.fetchOpcode(c.r[PC])
		c.advancePC()
	}
	return cycles
}

func (c *Interpreter) execThumb(opcode uint16) int {
	switch {
	case opcode&0xF800 == 0x1800: // add/sub register or immediate (format 2)
		return c.thumbAddSub(opcode)
	case opcode&0xE000 == 0x0000: // move shifted register (format 1)
		return c.thumbShift(opcode)
	case opcode&0xE000 == 0x2000: // mov/cmp/add/sub immediate (format 3)
		return c.thumbImmediate(opcode)
	case opcode&0xFC00 == 0x4000: // ALU operations (format 4)
		return c.thumbALU(opcode)
	case opcode&0xFC00 == 0x4400: // hi register ops / BX (format 5)
		return c.thumbHiReg(opcode)
	case opcode&0xF800 == 0x4800: // PC-relative load (format 6)
		return c.thumbPCRelLoad(opcode)
	case opcode&0xF200 == 0x5000: // load/store with register offset (format 7)
		return c.thumbLoadStoreReg(opcode)
	case opcode&0xF200 == 0x5200: // load/store sign-extended byte/halfword (format 8)
		return c.thumbLoadStoreSigned(opcode)
	case opcode&0xE000 == 0x6000: // load/store with immediate offset (format 9)
		return c.thumbLoadStoreImm(opcode)
	case opcode&0xF000 == 0x8000: // load/store halfword (format 10)
		return c.thumbLoadStoreHalf(opcode)
	case opcode&0xF000 == 0x9000: // SP-relative load/store (format 11)
		return c.thumbSPRelative(opcode)
	case opcode&0xF000 == 0xA000: // load address (format 12)
		return c.thumbLoadAddress(opcode)
	case opcode&0xFF00 == 0xB000: // add offset to SP (format 13)
		return c.thumbAddSPOffset(opcode)
	case opcode&0xF600 == 0xB400: // push/pop (format 14)
		return c.thumbPushPop(opcode)
	case opcode&0xF000 == 0xC000: // multiple load/store (format 15)
		return c.thumbMultiple(opcode)
	case opcode&0xFF00 == 0xDF00: // software interrupt (format 17)
		return c.thumbSWI(opcode)
	case opcode&0xF000 == 0xD000: // conditional branch (format 16)
		return c.thumbCondBranch(opcode)
	case opcode&0xF800 == 0xE000: // unconditional branch (format 18)
		return c.thumbBranch(opcode)
	case opcode&0xF000 == 0xF000: // long branch with link (format 19); the BLX suffix (0xE800) is not decoded and falls to default
		return c.thumbBranchLink(opcode)
	default:
		if c.OnUndefined != nil {
			c.OnUndefined(uint32(opcode))
		} else {
			logger.Logf("cpu", "unhandled thumb opcode %#04x", opcode)
		}
		return 1
	}
}

func (c *Interpreter) thumbShift(opcode uint16) int {
	kind := ShiftType((opcode >> 11) & 0x3)
	amount := uint32((opcode >> 6) & 0x1F)
	rs := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)

	result, carry := Shift(kind, c.GetReg(rs), amount, c.cpsrFlags.C, true)
	c.SetReg(rd, result)
	c.SetFlags(logicalFlags(result, carry, c.cpsrFlags.V))
	return 1
}

func (c *Interpreter) thumbAddSub(opcode uint16) int {
	immediate := opcode&(1<<10) != 0
	subtract := opcode&(1<<9) != 0
	rs := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	field := uint32((opcode >> 6) & 0x7)

	var operand uint32
	if immediate {
		operand = field
	} else {
		operand = c.GetReg(int(field))
	}

	var result uint32
	var flags Flags
	if subtract {
		result, flags = Sub(c.GetReg(rs), operand)
	} else {
		result, flags = Add(c.GetReg(rs), operand)
	}
	c.SetReg(rd, result)
	c.SetFlags(flags)
	return 1
}

const (
	thumbImmMOV = iota
	thumbImmCMP
	thumbImmADD
	thumbImmSUB
)

func (c *Interpreter) thumbImmediate(opcode uint16) int {
	op := (opcode >> 11) & 0x3
	rd := int((opcode >> 8) & 0x7)
	imm := uint32(opcode & 0xFF)

	switch op {
	case thumbImmMOV:
		c.SetReg(rd, imm)
		c.SetFlags(logicalFlags(imm, c.cpsrFlags.C, c.cpsrFlags.V))
	case thumbImmCMP:
		_, flags := Sub(c.GetReg(rd), imm)
		c.SetFlags(flags)
	case thumbImmADD:
		result, flags := Add(c.GetReg(rd), imm)
		c.SetReg(rd, result)
		c.SetFlags(flags)
	case thumbImmSUB:
		result, flags := Sub(c.GetReg(rd), imm)
		c.SetReg(rd, result)
		c.SetFlags(flags)
	}
	return 1
}

func (c *Interpreter) thumbALU(opcode uint16) int {
	op := (opcode >> 6) & 0xF
	rs := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	a := c.GetReg(rd)
	b := c.GetReg(rs)

	var result uint32
	var flags Flags
	write := true

	switch op {
	case 0x0: // AND
		result = a & b
		flags = logicalFlags(result, c.cpsrFlags.C, c.cpsrFlags.V)
	case 0x1: // EOR
		result = a ^ b
		flags = logicalFlags(result, c.cpsrFlags.C, c.cpsrFlags.V)
	case 0x2: // LSL
		result, flags.C = Shift(LSL, a, b&0xFF, c.cpsrFlags.C, false)
		flags.N, flags.Z, flags.V = result&(1<<31) != 0, result == 0, c.cpsrFlags.V
	case 0x3: // LSR
		result, flags.C = Shift(LSR, a, b&0xFF, c.cpsrFlags.C, false)
		flags.N, flags.Z, flags.V = result&(1<<31) != 0, result == 0, c.cpsrFlags.V
	case 0x4: // ASR
		result, flags.C = Shift(ASR, a, b&0xFF, c.cpsrFlags.C, false)
		flags.N, flags.Z, flags.V = result&(1<<31) != 0, result == 0, c.cpsrFlags.V
	case 0x5: // ADC
		result, flags = AddCarry(a, b, c.cpsrFlags.C)
	case 0x6: // SBC
		result, flags = SubCarry(a, b, c.cpsrFlags.C)
	case 0x7: // ROR
		result, flags.C = Shift(ROR, a, b&0xFF, c.cpsrFlags.C, false)
		flags.N, flags.Z, flags.V = result&(1<<31) != 0, result == 0, c.cpsrFlags.V
	case 0x8: // TST
		result = a & b
		flags = logicalFlags(result, c.cpsrFlags.C, c.cpsrFlags.V)
		write = false
	case 0x9: // NEG
		result, flags = Sub(0, b)
	case 0xA: // CMP
		result, flags = Sub(a, b)
		write = false
	case 0xB: // CMN
		result, flags = Add(a, b)
		write = false
	case 0xC: // ORR
		result = a | b
		flags = logicalFlags(result, c.cpsrFlags.C, c.cpsrFlags.V)
	case 0xD: // MUL
		result = a * b
		flags = logicalFlags(result, c.cpsrFlags.C, c.cpsrFlags.V)
	case 0xE: // BIC
		result = a &^ b
		flags = logicalFlags(result, c.cpsrFlags.C, c.cpsrFlags.V)
	case 0xF: // MVN
		result = ^b
		flags = logicalFlags(result, c.cpsrFlags.C, c.cpsrFlags.V)
	}

	c.SetFlags(flags)
	if write {
		c.SetReg(rd, result)
	}
	return 1
}

func (c *Interpreter) thumbHiReg(opcode uint16) int {
	op := (opcode >> 8) & 0x3
	h1 := opcode&(1<<7) != 0
	h2 := opcode&(1<<6) != 0
	rs := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	if h2 {
		rs += 8
	}
	if h1 {
		rd += 8
	}

	switch op {
	case 0x0: // ADD
		c.SetReg(rd, c.GetReg(rd)+c.GetReg(rs))
	case 0x1: // CMP
		_, flags := Sub(c.GetReg(rd), c.GetReg(rs))
		c.SetFlags(flags)
	case 0x2: // MOV
		c.SetReg(rd, c.GetReg(rs))
	case 0x3: // BX / BLX
		target := c.GetReg(rs)
		if h1 {
			c.r[LR] = c.r[PC] - uint32(c.instrSize())
		}
		c.SetThumb(target&1 != 0)
		c.SetReg(PC, target&^1)
		return 3
	}
	if rd == PC {
		return 3
	}
	return 1
}

func (c *Interpreter) thumbPCRelLoad(opcode uint16) int {
	rd := int((opcode >> 8) & 0x7)
	imm := uint32(opcode&0xFF) << 2
	base := c.r[PC] &^ 3
	c.SetReg(rd, c.bus.Read32(base+imm))
	return 3
}

func (c *Interpreter) thumbLoadStoreReg(opcode uint16) int {
	load := opcode&(1<<11) != 0
	byteAccess := opcode&(1<<10) != 0
	ro := int((opcode >> 6) & 0x7)
	rb := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	addr := c.GetReg(rb) + c.GetReg(ro)

	if load {
		if byteAccess {
			c.SetReg(rd, uint32(c.bus.Read8(addr)))
		} else {
			c.SetReg(rd, c.readWordRotated(addr))
		}
	} else {
		if byteAccess {
			c.bus.Write8(addr, uint8(c.GetReg(rd)))
		} else {
			c.bus.Write32(addr&^3, c.GetReg(rd))
		}
	}
	return 2
}

func (c *Interpreter) thumbLoadStoreSigned(opcode uint16) int {
	hFlag := opcode&(1<<11) != 0
	signExt := opcode&(1<<10) != 0
	ro := int((opcode >> 6) & 0x7)
	rb := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	addr := c.GetReg(rb) + c.GetReg(ro)

	switch {
	case !signExt && !hFlag: // STRH
		c.bus.Write16(addr&^1, uint16(c.GetReg(rd)))
	case !signExt && hFlag: // LDRH
		c.SetReg(rd, c.loadHalfB(addr))
	case signExt && !hFlag: // LDSB
		v := int8(c.bus.Read8(addr))
		c.SetReg(rd, uint32(int32(v)))
	case signExt && hFlag: // LDSH
		c.SetReg(rd, c.loadSignedHalfB(addr))
	}
	return 2
}

// loadHalfB implements an unsigned half-word load, applying CPU B's
// odd-alignment quirk: an ARM7TDMI-compatible core reads the aligned
// half-word and rotates it right by 8 on an odd address instead of faulting
// (spec.md §4.1, "Half-word loads on CPU B rotate by 8 on odd
// alignment"). CPU A has no such quirk.
func (c *Interpreter) loadHalfB(addr uint32) uint32 {
	v := uint32(c.bus.Read16(addr &^ 1))
	if c.CPUB && addr&1 != 0 {
		v = (v >> 8) | (v << 24)
	}
	return v
}

// loadSignedHalfB implements a signed half-word load, applying CPU B's
// odd-alignment quirk: on an odd address the load behaves as a signed
// byte load of that address rather than a signed half-word load
// (spec.md §4.1, "Half-word signed loads on CPU B sign-extend the upper
// byte only on odd alignment").
func (c *Interpreter) loadSignedHalfB(addr uint32) uint32 {
	if c.CPUB && addr&1 != 0 {
		v := int8(c.bus.Read8(addr))
		return uint32(int32(v))
	}
	v := int16(c.bus.Read16(addr &^ 1))
	return uint32(int32(v))
}

func (c *Interpreter) thumbLoadStoreImm(opcode uint16) int {
	byteAccess := opcode&(1<<12) != 0
	load := opcode&(1<<11) != 0
	imm := uint32((opcode >> 6) & 0x1F)
	rb := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)

	var addr uint32
	if byteAccess {
		addr = c.GetReg(rb) + imm
	} else {
		addr = c.GetReg(rb) + imm*4
	}

	if load {
		if byteAccess {
			c.SetReg(rd, uint32(c.bus.Read8(addr)))
		} else {
			c.SetReg(rd, c.readWordRotated(addr))
		}
	} else {
		if byteAccess {
			c.bus.Write8(addr, uint8(c.GetReg(rd)))
		} else {
			c.bus.Write32(addr&^3, c.GetReg(rd))
		}
	}
	return 2
}

func (c *Interpreter) thumbLoadStoreHalf(opcode uint16) int {
	load := opcode&(1<<11) != 0
	imm := uint32((opcode>>6)&0x1F) * 2
	rb := int((opcode >> 3) & 0x7)
	rd := int(opcode & 0x7)
	addr := c.GetReg(rb) + imm

	if load {
		c.SetReg(rd, c.loadHalfB(addr))
	} else {
		c.bus.Write16(addr&^1, uint16(c.GetReg(rd)))
	}
	return 2
}

func (c *Interpreter) thumbSPRelative(opcode uint16) int {
	load := opcode&(1<<11) != 0
	rd := int((opcode >> 8) & 0x7)
	imm := uint32(opcode&0xFF) << 2
	addr := c.GetReg(SP) + imm

	if load {
		c.SetReg(rd, c.readWordRotated(addr))
	} else {
		c.bus.Write32(addr&^3, c.GetReg(rd))
	}
	return 2
}

func (c *Interpreter) thumbLoadAddress(opcode uint16) int {
	spSource := opcode&(1<<11) != 0
	rd := int((opcode >> 8) & 0x7)
	imm := uint32(opcode&0xFF) << 2

	var base uint32
	if spSource {
		base = c.GetReg(SP)
	} else {
		base = c.r[PC] &^ 3
	}
	c.SetReg(rd, base+imm)
	return 1
}

func (c *Interpreter) thumbAddSPOffset(opcode uint16) int {
	negative := opcode&(1<<7) != 0
	imm := uint32(opcode&0x7F) << 2
	if negative {
		c.SetReg(SP, c.GetReg(SP)-imm)
	} else {
		c.SetReg(SP, c.GetReg(SP)+imm)
	}
	return 1
}

func (c *Interpreter) thumbPushPop(opcode uint16) int {
	load := opcode&(1<<11) != 0
	includePCLR := opcode&(1<<8) != 0
	list := opcode & 0xFF

	var regs []int
	for i := 0; i < 8; i++ {
		if list&(1<<uint(i)) != 0 {
			regs = append(regs, i)
		}
	}

	if load { // POP
		if includePCLR {
			regs = append(regs, PC)
		}
		sp := c.GetReg(SP)
		for _, r := range regs {
			c.SetReg(r, c.bus.Read32(sp))
			sp += 4
		}
		c.SetReg(SP, sp)
		if includePCLR {
			return 4
		}
		return 1 + len(regs)
	}

	// PUSH
	if includePCLR {
		regs = append(regs, LR)
	}
	sp := c.GetReg(SP) - uint32(len(regs))*4
	addr := sp
	for _, r := range regs {
		c.bus.Write32(addr, c.GetReg(r))
		addr += 4
	}
	c.SetReg(SP, sp)
	return 1 + len(regs)
}

func (c *Interpreter) thumbMultiple(opcode uint16) int {
	load := opcode&(1<<11) != 0
	rb := int((opcode >> 8) & 0x7)
	list := opcode & 0xFF

	var regs []int
	for i := 0; i < 8; i++ {
		if list&(1<<uint(i)) != 0 {
			regs = append(regs, i)
		}
	}

	addr := c.GetReg(rb)
	for _, r := range regs {
		if load {
			c.SetReg(r, c.bus.Read32(addr))
		} else {
			c.bus.Write32(addr, c.GetReg(r))
		}
		addr += 4
	}
	if len(regs) == 0 || !load || rb != regs[len(regs)-1] {
		c.SetReg(rb, addr)
	}
	return 1 + len(regs)
}

func (c *Interpreter) thumbCondBranch(opcode uint16) int {
	cond := uint32((opcode >> 8) & 0xF)
	if cond == 0xF {
		return c.thumbSWI(opcode)
	}
	offset := int32(int8(opcode&0xFF)) * 2
	if !c.EvalCondition(cond) {
		return 1
	}
	c.SetReg(PC, c.r[PC]+uint32(offset))
	return 3
}

func (c *Interpreter) thumbBranch(opcode uint16) int {
	raw := opcode & 0x7FF
	offset := int32(raw) << 1
	if raw&0x400 != 0 {
		offset -= 1 << 12
	}
	c.SetReg(PC, c.r[PC]+uint32(offset))
	return 3
}

func (c *Interpreter) thumbBranchLink(opcode uint16) int {
	low := opcode&(1<<11) != 0
	offset11 := uint32(opcode & 0x7FF)

	if !low {
		// high half: stash a sign-extended 23-bit offset shifted into LR
		signed := int32(offset11)
		if offset11&0x400 != 0 {
			signed -= 1 << 11
		}
		c.r[LR] = c.r[PC] + uint32(signed<<12)
		return 1
	}

	// low half: compute final target, set LR to return address | 1
	target := c.r[LR] + offset11<<1
	next := (c.r[PC] - uint32(c.instrSize())) | 1
	c.SetReg(PC, target)
	c.r[LR] = next
	return 3
}

func (c *Interpreter) thumbSWI(opcode uint16) int {
	comment := uint32(opcode & 0xFF)
	if c.OnSoftwareInterrupt != nil {
		c.OnSoftwareInterrupt(comment)
	}
	return 3
}
