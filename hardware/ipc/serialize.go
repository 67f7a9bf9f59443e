// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package ipc

import (
	"bytes"
	"encoding/binary"
)

// MarshalBinary encodes both sides' FIFO/doorbell state. The interrupt
// raise callbacks and IRQ bit numbers are construction-time wiring, not
// persisted state.
func (l *Links) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	for side := 0; side < 2; side++ {
		snap := l.side[side].Save()
		if err := binary.Write(buf, binary.LittleEndian, uint8(len(snap.Queue))); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, snap.Queue); err != nil {
			return nil, err
		}
		for _, v := range []interface{}{
			snap.LastRcv, snap.Enabled, snap.SendError, snap.RecvError,
			snap.SendEmptyIE, snap.RecvNEIE, snap.DoorbellSend, snap.DoorbellIE,
		} {
			if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores both sides encoded by MarshalBinary.
func (l *Links) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data)
	for side := 0; side < 2; side++ {
		var snap Snapshot
		var count uint8
		if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
			return err
		}
		snap.Queue = make([]uint32, count)
		if err := binary.Read(buf, binary.LittleEndian, snap.Queue); err != nil {
			return err
		}
		for _, v := range []interface{}{
			&snap.LastRcv, &snap.Enabled, &snap.SendError, &snap.RecvError,
			&snap.SendEmptyIE, &snap.RecvNEIE, &snap.DoorbellSend, &snap.DoorbellIE,
		} {
			if err := binary.Read(buf, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		l.side[side].Restore(snap)
	}
	return nil
}
