// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package schedule

import (
	"bytes"
	"encoding/binary"
)

// MarshalBinary encodes the global clock and the pending event queue.
// The handler table, the running flag and the rebase task id are all
// construction-time wiring supplied by the owner (Core) rather than
// persisted state, so they are deliberately excluded.
func (s *Scheduler) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, s.globalCycles); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(s.events))); err != nil {
		return nil, err
	}
	// TaskID is a plain int (platform-width, not fixed-size), so each
	// event is narrowed to int32+uint32 rather than written as a struct.
	for _, e := range s.events {
		if err := binary.Write(buf, binary.LittleEndian, int32(e.Task)); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, e.Deadline); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores the global clock and event queue encoded by
// MarshalBinary. The caller is expected to have already rebound every
// task handler via SetHandler before resuming the run loop.
func (s *Scheduler) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data)
	if err := binary.Read(buf, binary.LittleEndian, &s.globalCycles); err != nil {
		return err
	}
	var count uint32
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return err
	}
	s.events = make([]Event, count)
	for i := range s.events {
		var task int32
		if err := binary.Read(buf, binary.LittleEndian, &task); err != nil {
			return err
		}
		if err := binary.Read(buf, binary.LittleEndian, &s.events[i].Deadline); err != nil {
			return err
		}
		s.events[i].Task = TaskID(task)
	}
	return nil
}
