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

// Package prefs holds the small set of boot-time tunables the core reads
// from the embedder. Values are atomic so they can be read from a CPU's
// hot loop without locking, mirroring the teacher's prefs.Bool type.
package prefs

import "sync/atomic"

// Bool is a goroutine-safe boolean preference.
type Bool struct {
	value atomic.Bool
}

// NewBool creates a Bool preference with an initial value.
func NewBool(initial bool) *Bool {
	b := &Bool{}
	b.value.Store(initial)
	return b
}

// Get returns the current value.
func (b *Bool) Get() bool {
	return b.value.Load()
}

// Set changes the value.
func (b *Bool) Set(v bool) {
	b.value.Store(v)
}

// Settings is the set of preferences the core consults at construction and
// mode-switch time.
type Settings struct {
	// DirectBoot allows skipping the BIOS/firmware prerequisites when a ROM
	// is present, per spec §6.
	DirectBoot *Bool

	// DSiMode records whether DSi mode was requested. Core stores the value
	// at construction and never reads it afterwards; there is no
	// DSi-specific run loop.
	DSiMode *Bool

	// RandomPins is off by default. Nothing in the core reads it: memory
	// reads of unmapped addresses always return the open-bus value.
	RandomPins *Bool
}

// NewSettings returns a Settings with every preference at its documented
// default.
func NewSettings() *Settings {
	return &Settings{
		DirectBoot: NewBool(false),
		DSiMode:    NewBool(false),
		RandomPins: NewBool(false),
	}
}
