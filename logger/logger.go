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

// Package logger collects diagnostic entries raised by the emulation core.
// Nothing in this package is fatal: recoverable conditions (unknown
// register access, unknown opcodes) are logged here rather than
// panicking, per the core's error handling policy. FIFO errors are not
// logged; they are reported through the IPC control register's error bits.
package logger

import (
	"fmt"
	"sync"
)

// Entry is a single logged occurrence.
type Entry struct {
	Tag     string
	Message string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

var (
	mu      sync.Mutex
	entries []Entry
	seen    = make(map[string]bool)
)

// Logf records a diagnostic entry tagged with tag. Duplicate (tag,message)
// pairs are kept only once, since callers such as the I/O dispatcher and
// the CPU's unknown-opcode path call this on every occurrence and the log
// would otherwise grow without bound for a looping program.
func Logf(tag string, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	key := tag + "\x00" + msg
	if seen[key] {
		return
	}
	seen[key] = true
	entries = append(entries, Entry{Tag: tag, Message: msg})
}

// Entries returns a copy of everything logged so far.
func Entries() []Entry {
	mu.Lock()
	defer mu.Unlock()
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Clear empties the log. Useful between test cases and when a new Core is
// constructed so that diagnostics don't leak across ROM loads.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	entries = nil
	seen = make(map[string]bool)
}
