// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package cpu

// Vectors gives the eight documented exception-vector addresses for this
// CPU. CPU A and CPU B relocate their vector table differently (high
// vectors vs low vectors); the owner supplies the resolved table rather
// than the interpreter hard-coding an address scheme.
type Vectors struct {
	Reset, Undefined, SoftwareInterrupt, PrefetchAbort, DataAbort, IRQ, FIQ uint32
}

// enterException is the shared exception-entry sequence: save CPSR to
// the target mode's SPSR, switch mode, disable the required interrupt
// sources, set the link register to the documented return-address
// adjustment, and branch to vector. ARM-mode link-register adjustments
// are always used on exception entry regardless of which instruction
// set was executing, per the architecture.
func (c *State) enterException(target Mode, vector uint32, lrAdjust uint32, disableIRQ, disableFIQ bool) {
	savedCPSR := c.CPSR()

	// r[PC] sits two instructions ahead of the one about to execute
	// (refillPipeline advances it twice; see ExecutingAddress), so the
	// resume address is r[PC]-2*instrSize, not r[PC]-instrSize.
	returnAddr := c.r[PC] - 2*c.instrSize()

	c.switchMode(target)
	c.spsr[target] = savedCPSR
	c.r[LR] = returnAddr + lrAdjust

	c.thumb = false
	if disableIRQ {
		c.irqDisable = true
	}
	if disableFIQ {
		c.fiqDisable = true
	}

	c.r[PC] = vector
	c.FlushPipeline()
	c.halted = false
}

// EnterIRQ delivers a normal interrupt request.
func (c *State) EnterIRQ(v Vectors) {
	c.enterException(IRQ, v.IRQ, 4, true, false)
}

// EnterFIQ delivers a fast interrupt request, additionally disabling
// further FIQs (the architecturally documented behaviour; CPU B is the
// only one of the pair that implements FIQ per spec.md §4.1).
func (c *State) EnterFIQ(v Vectors) {
	c.enterException(FIQ, v.FIQ, 4, true, true)
}

// EnterSoftwareInterrupt delivers the SWI/SVC exception.
func (c *State) EnterSoftwareInterrupt(v Vectors) {
	c.enterException(Supervisor, v.SoftwareInterrupt, 0, true, false)
}

// EnterUndefined delivers the undefined-instruction exception.
func (c *State) EnterUndefined(v Vectors) {
	c.enterException(Undefined, v.Undefined, 0, true, false)
}

// EnterPrefetchAbort delivers a prefetch-abort exception.
func (c *State) EnterPrefetchAbort(v Vectors) {
	c.enterException(Abort, v.PrefetchAbort, 4, true, false)
}

// EnterDataAbort delivers a data-abort exception.
func (c *State) EnterDataAbort(v Vectors) {
	c.enterException(Abort, v.DataAbort, 8, true, false)
}

// ReturnFromException is the documented epilogue used by an exception
// handler: MOVS pc, lr (or SUBS for data abort, handled by the caller
// adjusting lr beforehand) restores CPSR from SPSR and resumes Thumb or
// ARM accordingly. Exposed here because the mode-specific offset
// arithmetic belongs with the rest of the banking logic, not duplicated
// at every call site.
func (c *State) ReturnFromException() {
	c.SetCPSR(c.SPSR())
	c.SetReg(PC, c.r[LR])
}
