// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package schedule

import "testing"

const testRebaseTask TaskID = 0
const testTaskA TaskID = 1
const testTaskB TaskID = 2
const testTaskC TaskID = 3

func newTestScheduler() *Scheduler {
	s := New(testRebaseTask)
	return s
}

func TestScenario5_DrainOrder(t *testing.T) {
	s := newTestScheduler()

	var fired []string
	s.SetHandler(testTaskA, func() { fired = append(fired, "E1") })
	s.SetHandler(testTaskB, func() { fired = append(fired, "E2") })
	s.SetHandler(testTaskC, func() { fired = append(fired, "E3") })

	s.Schedule(testTaskA, 100)
	s.Schedule(testTaskB, 50)
	s.Schedule(testTaskC, 75)

	s.AdvanceTo(80)
	s.Drain()

	if len(fired) != 2 || fired[0] != "E2" || fired[1] != "E3" {
		t.Fatalf("expected [E2 E3], got %v", fired)
	}

	head, ok := s.Head()
	if !ok || head.Task != testTaskA || head.Deadline != 100 {
		t.Fatalf("expected E1 at 100 still queued, got %+v ok=%v", head, ok)
	}
}

func TestQueueStaysSorted(t *testing.T) {
	s := newTestScheduler()
	s.SetHandler(testTaskA, func() {})

	deadlines := []uint32{50, 10, 999, 3, 42, 42, 1}
	for _, d := range deadlines {
		s.Schedule(testTaskA, d)
	}

	prev := uint32(0)
	for _, e := range s.events {
		if e.Deadline < prev {
			t.Fatalf("queue not sorted: %v", s.events)
		}
		prev = e.Deadline
	}
}

func TestDrainNeverPopsFutureEvent(t *testing.T) {
	s := newTestScheduler()
	var firedAt []uint32
	s.SetHandler(testTaskA, func() { firedAt = append(firedAt, s.GlobalCycles()) })

	s.Schedule(testTaskA, 10)
	s.Schedule(testTaskA, 20)
	s.Schedule(testTaskA, 30)

	for cycles := uint32(0); cycles <= 25; cycles++ {
		s.AdvanceTo(cycles)
		s.Drain()
		for _, f := range firedAt {
			if f > s.GlobalCycles() {
				t.Fatalf("popped event with deadline %d after globalCycles %d", f, s.GlobalCycles())
			}
		}
	}

	if len(firedAt) != 2 {
		t.Fatalf("expected 2 events fired by cycle 25, got %d (%v)", len(firedAt), firedAt)
	}
}

func TestRebasePreservesRelativeOrder(t *testing.T) {
	s := newTestScheduler()
	s.SetHandler(testTaskA, func() {})

	s.AdvanceTo(1000)
	s.Schedule(testTaskA, 10) // deadline 1010
	s.Schedule(testTaskA, 30) // deadline 1030
	s.Schedule(testTaskA, 20) // deadline 1020

	var before []uint32
	for _, e := range s.events {
		if e.Task == testTaskA {
			before = append(before, e.Deadline-s.globalCycles)
		}
	}

	s.rebase()

	var after []uint32
	for _, e := range s.events {
		if e.Task == testTaskA {
			after = append(after, e.Deadline)
		}
	}

	if len(before) != len(after) {
		t.Fatalf("event count changed across rebase: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("relative order not preserved: before=%v after=%v", before, after)
		}
	}

	if s.globalCycles != 0 {
		t.Fatalf("expected globalCycles reset to 0, got %d", s.globalCycles)
	}
}

func TestOnRebaseCallback(t *testing.T) {
	s := newTestScheduler()
	var subtracted uint32
	s.OnRebase(func(amount uint32) { subtracted = amount })

	s.AdvanceTo(500)
	s.rebase()

	if subtracted != 500 {
		t.Fatalf("expected OnRebase called with 500, got %d", subtracted)
	}
}
