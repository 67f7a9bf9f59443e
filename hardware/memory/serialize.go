// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package memory

import (
	"bytes"
	"encoding/binary"
)

// MarshalBinary encodes every mutable backing store (main RAM, both WRAM
// blocks, the TCMs, palette and OAM), the VRAM router, and the control
// registers that shape the page tables. BIOS images are not included:
// they are load-time, read-only input supplied by the embedder, not
// emulation state.
func (m *Map) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, blob := range [][]byte{m.ram, m.wram, m.wram7, m.itcm, m.dtcm, m.palette, m.oam} {
		if _, err := buf.Write(blob); err != nil {
			return nil, err
		}
	}

	vramBlob, err := m.vram.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(vramBlob))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(vramBlob); err != nil {
		return nil, err
	}

	for _, v := range []interface{}{
		m.wramCnt, m.haltCnt,
		m.tcm.itcmEnabled, m.tcm.itcmWriteEnabled, m.tcm.itcmSize,
		m.tcm.dtcmEnabled, m.tcm.dtcmWriteEnabled, m.tcm.dtcmBase, m.tcm.dtcmSize,
	} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a Map encoded by MarshalBinary and rebuilds
// the page tables from the restored control registers (spec.md §5,
// "control-register writes must rebuild the page tables").
func (m *Map) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data)
	for _, blob := range [][]byte{m.ram, m.wram, m.wram7, m.itcm, m.dtcm, m.palette, m.oam} {
		if _, err := buf.Read(blob); err != nil {
			return err
		}
	}

	var vramLen uint32
	if err := binary.Read(buf, binary.LittleEndian, &vramLen); err != nil {
		return err
	}
	vramBlob := make([]byte, vramLen)
	if _, err := buf.Read(vramBlob); err != nil {
		return err
	}
	if err := m.vram.UnmarshalBinary(vramBlob); err != nil {
		return err
	}

	for _, v := range []interface{}{
		&m.wramCnt, &m.haltCnt,
		&m.tcm.itcmEnabled, &m.tcm.itcmWriteEnabled, &m.tcm.itcmSize,
		&m.tcm.dtcmEnabled, &m.tcm.dtcmWriteEnabled, &m.tcm.dtcmBase, &m.tcm.dtcmSize,
	} {
		if err := binary.Read(buf, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	m.Remap()
	return nil
}
