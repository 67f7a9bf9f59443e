// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// duocore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.

// Package schedule implements the single deterministic timeline of
// peripheral tasks described in spec.md §4.5: a sorted event queue keyed
// on a monotonically increasing cycle counter, with periodic rebasing to
// avoid overflow.
package schedule

import "sort"

// TaskID is a small enumeration of the tasks that can be scheduled. Each
// maps to a pre-bound closure in the Scheduler's handler map; the set of
// tasks is fixed for the lifetime of a Core.
type TaskID int

// Event is one entry in the sorted event queue: a task id paired with the
// absolute cycle count, on the global clock, at which it should fire.
type Event struct {
	Task     TaskID
	Deadline uint32
}

// RebaseHorizon is the deadline, relative to globalCycles, at which the
// self-scheduled rebase task fires. Chosen near the 31-bit boundary so
// that globalCycles (a uint32) never risks wrapping between rebases.
const RebaseHorizon = 0x7FFFFFFF

// Scheduler owns the global clock and the sorted event queue. It does not
// know what any task does; task bodies are supplied by the owner (Core)
// via SetHandler.
type Scheduler struct {
	globalCycles uint32
	events       []Event
	handlers     map[TaskID]func()
	running      bool

	// rebaseTask is the task id used for the self-scheduled rebase event.
	// the scheduler needs to know it so that Rebase can requeue itself;
	// everything else about rebasing is mechanical.
	rebaseTask TaskID

	// onRebase, when set via OnRebase, is invoked with the amount
	// subtracted so the owner can rebase its own cycle cursors (e.g. each
	// CPU's local `cycles` field) in lockstep with the event queue.
	onRebase func(subtracted uint32)
}

// New creates a Scheduler. rebaseTask is the task id New binds to the
// Scheduler's own rebase handler and queues at RebaseHorizon, so periodic
// rebasing works without the scheduler needing a hardcoded task table.
func New(rebaseTask TaskID) *Scheduler {
	s := &Scheduler{
		handlers:   make(map[TaskID]func()),
		rebaseTask: rebaseTask,
	}
	s.handlers[rebaseTask] = s.rebase
	s.Schedule(rebaseTask, RebaseHorizon)
	return s
}

// SetHandler binds a task id to the closure that should run when it
// fires. Call once per task id at construction time; re-binding later is
// fine too (e.g. to change a handler's captured state after a mode
// switch) but should not happen mid-drain.
func (s *Scheduler) SetHandler(task TaskID, fn func()) {
	s.handlers[task] = fn
}

// GlobalCycles returns the current value of the monotonic cycle counter.
func (s *Scheduler) GlobalCycles() uint32 {
	return s.globalCycles
}

// SetRunning controls whether the owner's run loop (Core.RunFrame)
// continues. A task sets
// this false to signal the end of a frame (spec.md §4.5, §5).
func (s *Scheduler) SetRunning(running bool) {
	s.running = running
}

// Running reports whether the scheduler's outer loop is still active.
func (s *Scheduler) Running() bool {
	return s.running
}

// Schedule inserts a new event at globalCycles+cycles, keeping the queue
// sorted by deadline ascending via upper-bound insertion (spec.md §3, §4.5).
func (s *Scheduler) Schedule(task TaskID, cycles uint32) {
	deadline := s.globalCycles + cycles
	i := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Deadline > deadline
	})
	s.events = append(s.events, Event{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = Event{Task: task, Deadline: deadline}
}

// Head returns the earliest-deadline event without removing it, and
// whether the queue is non-empty.
func (s *Scheduler) Head() (Event, bool) {
	if len(s.events) == 0 {
		return Event{}, false
	}
	return s.events[0], true
}

// AdvanceTo moves the global clock forward to cycles. It never moves the
// clock backwards; it does not stop at the head event's deadline, so the
// clock may pass several queued deadlines at once. Callers (the run loop)
// call Drain immediately afterwards so that every event at or before the
// new globalCycles fires.
func (s *Scheduler) AdvanceTo(cycles uint32) {
	if cycles > s.globalCycles {
		s.globalCycles = cycles
	}
}

// Drain pops and runs every event whose deadline is at or before the
// current globalCycles, in deadline order. Because running a task may
// itself schedule new events, Drain re-checks the head after each pop.
func (s *Scheduler) Drain() {
	for {
		head, ok := s.Head()
		if !ok || head.Deadline > s.globalCycles {
			return
		}
		s.events = s.events[1:]
		if fn, ok := s.handlers[head.Task]; ok {
			fn()
		}
	}
}

// rebase subtracts globalCycles from every queued deadline and from
// globalCycles itself, preserving relative order (spec.md DATA MODEL,
// "Global clock"), then re-queues itself at the same horizon. Callers
// that keep their own local cycle cursors (the two CPUs) must subtract
// globalCycles from those cursors too; Scheduler has no visibility into
// them, so Core performs that half of the rebase via the callback
// registered with OnRebase.
func (s *Scheduler) rebase() {
	base := s.globalCycles
	for i := range s.events {
		s.events[i].Deadline -= base
	}
	s.globalCycles -= base
	if s.onRebase != nil {
		s.onRebase(base)
	}
	s.Schedule(s.rebaseTask, RebaseHorizon)
}

// OnRebase registers a callback invoked every time a rebase occurs, with
// the number of cycles that were subtracted from the global clock.
func (s *Scheduler) OnRebase(fn func(subtracted uint32)) {
	s.onRebase = fn
}

// Reset clears every pending event except the self-scheduled rebase
// task, which is re-queued at its horizon. A mode switch that replaces
// the whole periodic task set (e.g. entering compatibility mode, spec.md
// §6) calls this before scheduling its own tasks, mirroring the
// original's events.clear() in enterGbaMode.
func (s *Scheduler) Reset() {
	s.events = s.events[:0]
	s.Schedule(s.rebaseTask, RebaseHorizon)
}
