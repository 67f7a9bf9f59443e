// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package core

import (
	"bytes"
	"testing"
)

const ramEntry = 0x02000000

// writeBranchToSelf writes an ARM "B ." instruction (branch with offset
// -2 words, which lands back on itself once the pipeline's +8 prefetch
// bias is accounted for) so a direct-booted CPU spins in place instead
// of executing whatever zero bytes happen to be in fresh RAM.
func writeBranchToSelf(c *Core, cpuIdx int, addr uint32) {
	// 0xEAFFFFFE == B <here> (AL condition, offset -2 in words).
	c.mem.Write32(cpuIdx, true, addr, 0xEAFFFFFE)
}

func newDirectBootCore(t *testing.T) *Core {
	t.Helper()
	c, err := New(Config{DirectBoot: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeBranchToSelf(c, 0, ramEntry)
	writeBranchToSelf(c, 1, ramEntry)
	c.DirectBootEntry(ramEntry, ramEntry)
	return c
}

func TestNewRequiresBiosWithoutDirectBoot(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected an error when no bios images and no direct boot are supplied")
	}
}

func TestRunFrameTerminatesAtFrameEnd(t *testing.T) {
	c := newDirectBootCore(t)

	before := c.scheduler.GlobalCycles()
	c.RunFrame()
	after := c.scheduler.GlobalCycles()

	if after <= before {
		t.Fatalf("expected the global clock to advance across a frame, got %d -> %d", before, after)
	}
	if c.scheduler.Running() {
		t.Fatal("expected the scheduler to have stopped at the frame-end sentinel")
	}
}

func TestEnterCompatibilityModeHaltsCpuA(t *testing.T) {
	c := newDirectBootCore(t)
	c.EnterCompatibilityMode()

	if !c.cpuA.Halted() {
		t.Fatal("expected cpu A to be halted in compatibility mode")
	}
	if c.cpuB.Halted() {
		t.Fatal("expected cpu B to remain runnable in compatibility mode")
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	c := newDirectBootCore(t)
	c.RunFrame()

	var buf bytes.Buffer
	if err := c.SaveState(&buf); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	wantCycles := c.scheduler.GlobalCycles()
	wantPC := c.cpuA.State.CPSR()

	c2 := newDirectBootCore(t)
	if err := c2.LoadState(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	if got := c2.scheduler.GlobalCycles(); got != wantCycles {
		t.Fatalf("global cycles after load = %d, want %d", got, wantCycles)
	}
	if got := c2.cpuA.State.CPSR(); got != wantPC {
		t.Fatalf("cpu A CPSR after load = %#x, want %#x", got, wantPC)
	}
}

func TestRaiseInterruptWakesHaltedCpu(t *testing.T) {
	c := newDirectBootCore(t)
	c.cpuB.Halt()
	c.irqB.WriteIME(1)
	c.irqB.WriteIE(0xFFFFFFFF, 1)

	c.Raise(1, 0)

	if c.cpuB.Halted() {
		t.Fatal("expected raising an enabled interrupt to wake the halted cpu")
	}
}
