// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package ipc implements the inter-processor FIFO and sync doorbell
// described in spec.md §4.6: one 16-word FIFO per direction plus a
// 4-bit-each-way doorbell register, wired so that a write on one CPU's
// side is observable (and optionally raises an interrupt) on the other.
package ipc

const fifoCapacity = 16

// Side is one CPU's view of the FIFO pair: its own send queue, and the
// control bits (enable, error, IRQ-enable) that belong to this side of
// the bus. The Links struct below owns a Side for each CPU and cross-
// wires reads/writes between them.
type Side struct {
	queue   []uint32
	lastRcv uint32

	enabled     bool
	sendError   bool
	recvError   bool
	sendEmptyIE bool
	recvNEIE    bool

	// doorbell bits this side has written; visible to the other side as
	// its "receive" nibble.
	doorbellSend uint8
	doorbellIE   bool
}

// Snapshot captures a Side for save-state serialization.
type Snapshot struct {
	Queue        []uint32
	LastRcv      uint32
	Enabled      bool
	SendError    bool
	RecvError    bool
	SendEmptyIE  bool
	RecvNEIE     bool
	DoorbellSend uint8
	DoorbellIE   bool
}

func (s *Side) Save() Snapshot {
	q := make([]uint32, len(s.queue))
	copy(q, s.queue)
	return Snapshot{
		Queue: q, LastRcv: s.lastRcv,
		Enabled: s.enabled, SendError: s.sendError, RecvError: s.recvError,
		SendEmptyIE: s.sendEmptyIE, RecvNEIE: s.recvNEIE,
		DoorbellSend: s.doorbellSend, DoorbellIE: s.doorbellIE,
	}
}

func (s *Side) Restore(snap Snapshot) {
	s.queue = append([]uint32(nil), snap.Queue...)
	s.lastRcv = snap.LastRcv
	s.enabled, s.sendError, s.recvError = snap.Enabled, snap.SendError, snap.RecvError
	s.sendEmptyIE, s.recvNEIE = snap.SendEmptyIE, snap.RecvNEIE
	s.doorbellSend, s.doorbellIE = snap.DoorbellSend, snap.DoorbellIE
}

// Links owns both CPUs' Sides and mediates the crossover. index 0 is CPU
// A, index 1 is CPU B; "the other side" of side i is side 1-i.
type Links struct {
	side     [2]Side
	raise    [2]func(bit int) // interrupt raise callback per CPU
	irqSync  int              // IRQ bit for sync/doorbell, e.g. 23
	irqSend  int              // IRQ bit for send-fifo-empty, e.g. 17
	irqRecvN int              // IRQ bit for recv-fifo-not-empty, e.g. 18
}

// New creates a Links. raiseA/raiseB post an interrupt to the respective
// CPU's interrupt controller (see hardware/interrupt). irqSend/irqRecvN
// are the IF bit numbers used for the FIFO's own IRQ sources;
// irqSync is the bit number for the doorbell IRQ.
func New(raiseA, raiseB func(bit int), irqSend, irqRecvN, irqSync int) *Links {
	return &Links{
		raise:    [2]func(bit int){raiseA, raiseB},
		irqSend:  irqSend,
		irqRecvN: irqRecvN,
		irqSync:  irqSync,
	}
}

func other(cpu int) int { return 1 - cpu }

// Enable sets or clears the FIFO-enable bit for cpu's send side. Enabling
// a previously-disabled FIFO clears it (spec.md §4.6).
func (l *Links) Enable(cpu int, enabled bool) {
	was := l.side[cpu].enabled
	l.side[cpu].enabled = enabled
	if enabled && !was {
		l.Clear(cpu)
	}
}

// Clear empties cpu's send FIFO, as if the owning CPU had drained it.
func (l *Links) Clear(cpu int) {
	s := &l.side[cpu]
	if len(s.queue) == 0 {
		return
	}
	s.queue = nil
	if s.sendEmptyIE {
		l.raiseOn(cpu, l.irqSend)
	}
}

// Send pushes a word onto cpu's send FIFO. If the FIFO is disabled the
// write is a no-op (not even an error); if it's enabled but full, the
// send-error bit is set and the contents are unchanged (spec.md §8,
// "FIFO" testable property).
func (l *Links) Send(cpu int, value uint32) {
	s := &l.side[cpu]
	if !s.enabled {
		return
	}
	if len(s.queue) >= fifoCapacity {
		s.sendError = true
		return
	}

	s.queue = append(s.queue, value)

	if len(s.queue) == 1 {
		// receiver's FIFO (this side, from the other CPU's point of view)
		// just became non-empty.
		recv := other(cpu)
		if l.side[recv].recvNEIE {
			l.raiseOn(recv, l.irqRecvN)
		}
	}
}

// Receive pops a word from the other CPU's send FIFO (this CPU's receive
// side). The front word is latched even when the FIFO is disabled; only
// the pop itself is gated on enable, matching fifo.cpp's receive().
func (l *Links) Receive(cpu int) uint32 {
	sender := other(cpu)
	s := &l.side[cpu]
	src := &l.side[sender]

	if len(src.queue) == 0 {
		s.recvError = true
		return s.lastRcv
	}

	s.lastRcv = src.queue[0]

	if s.enabled {
		src.queue = src.queue[1:]
		if len(src.queue) == 0 && src.sendEmptyIE {
			l.raiseOn(sender, l.irqSend)
		}
	}

	return s.lastRcv
}

func (l *Links) raiseOn(cpu int, bit int) {
	if l.raise[cpu] != nil {
		l.raise[cpu](bit)
	}
}

// SendEmpty reports whether cpu's send FIFO is empty.
func (l *Links) SendEmpty(cpu int) bool { return len(l.side[cpu].queue) == 0 }

// SendFull reports whether cpu's send FIFO is full.
func (l *Links) SendFull(cpu int) bool { return len(l.side[cpu].queue) >= fifoCapacity }

// RecvEmpty reports whether cpu's receive side (the other CPU's send
// FIFO) is empty.
func (l *Links) RecvEmpty(cpu int) bool { return l.SendEmpty(other(cpu)) }

// RecvFull reports whether cpu's receive side is full.
func (l *Links) RecvFull(cpu int) bool { return l.SendFull(other(cpu)) }

// SendError reports cpu's sticky send-error bit without clearing it (the
// control register's error bit is enable-clear-by-write-1; callers read it
// via this accessor and clear it via ClearErrors).
func (l *Links) SendError(cpu int) bool { return l.side[cpu].sendError }

// RecvError reports cpu's sticky receive-error bit.
func (l *Links) RecvError(cpu int) bool { return l.side[cpu].recvError }

// ClearErrors clears both sticky error bits for cpu (a write-1-to-clear
// access to the control register does this).
func (l *Links) ClearErrors(cpu int) {
	l.side[cpu].sendError = false
	l.side[cpu].recvError = false
}

// SetSendEmptyIRQ and SetRecvNotEmptyIRQ toggle the two FIFO IRQ-enable
// bits that live in cpu's own control register.
func (l *Links) SetSendEmptyIRQ(cpu int, enabled bool)    { l.side[cpu].sendEmptyIE = enabled }
func (l *Links) SetRecvNotEmptyIRQ(cpu int, enabled bool) { l.side[cpu].recvNEIE = enabled }

// Enabled reports whether cpu's send FIFO is currently enabled.
func (l *Links) Enabled(cpu int) bool { return l.side[cpu].enabled }

// WriteDoorbell sets cpu's 4-bit send nibble, which becomes readable as
// the other CPU's receive nibble. If requestIRQ is true and the other
// CPU's doorbell IRQ-enable is set, an inter-processor interrupt is
// posted to it (spec.md §4.6).
func (l *Links) WriteDoorbell(cpu int, nibble uint8, requestIRQ bool) {
	l.side[cpu].doorbellSend = nibble & 0xF
	if requestIRQ {
		partner := other(cpu)
		if l.side[partner].doorbellIE {
			l.raiseOn(partner, l.irqSync)
		}
	}
}

// ReadDoorbell returns the nibble the other CPU most recently wrote.
func (l *Links) ReadDoorbell(cpu int) uint8 {
	return l.side[other(cpu)].doorbellSend
}

// SetDoorbellIRQEnable toggles cpu's own doorbell IRQ-enable bit.
func (l *Links) SetDoorbellIRQEnable(cpu int, enabled bool) {
	l.side[cpu].doorbellIE = enabled
}
