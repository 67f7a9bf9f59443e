// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package cpu

// HLESentinel is the fixed opcode the memory map installs at a BIOS
// function's canonical address when no real BIOS image was supplied
// (spec.md §4.1, "HLE BIOS path"). It deliberately falls under the
// reserved-predicate space (cond==0xF) but outside the BLX(immediate)
// bit pattern, so the ordinary reserved-predicate router can recognise
// it without a separate decode path.
const HLESentinel uint32 = 0xFFFFFFFF

// OnHLECall is invoked when the sentinel is decoded, identified only by
// the address it was fetched from (the BIOS function's entry point).
// The handler is the host-side implementation of the BIOS call itself
// (spec.md Non-goals: "BIOS high-level-emulation bodies... only the
// invocation contract is specified") -- it reads/writes registers and
// memory through the Interpreter however the emulated function
// requires. Everything else -- recognising the sentinel and returning
// to user code afterwards -- is handled here, since that part is
// ordinary control flow rather than a BIOS body.
//
// A nil OnHLECall makes the sentinel a no-op return, which is still a
// safe (if behaviourally incomplete) default for an unimplemented call.
func (c *Interpreter) handleHLESentinel(entry uint32) int {
	if c.OnHLECall != nil {
		c.OnHLECall(entry)
	}
	c.SetCPSR(c.SPSR())
	c.SetReg(PC, c.r[LR])
	return 3
}
