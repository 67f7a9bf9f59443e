// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vram

import (
	"bytes"
	"encoding/binary"
)

// MarshalBinary encodes the nine physical blocks' contents and their
// VRAMCNT bytes. The derived routing table (regions) is not persisted;
// UnmarshalBinary rebuilds it from the restored control bytes, the same
// way a live VRAMCNT write would.
func (r *Router) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	for b := 0; b < blockCount; b++ {
		if _, err := buf.Write(r.backing[b]); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(buf, binary.LittleEndian, r.cnt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores block contents and control bytes encoded by
// MarshalBinary, then rebuilds the routing table exactly as WriteControl
// would (spec.md §4.3, "any write... re-applies each enabled block").
func (r *Router) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data)
	for b := 0; b < blockCount; b++ {
		if _, err := buf.Read(r.backing[b]); err != nil {
			return err
		}
	}
	if err := binary.Read(buf, binary.LittleEndian, &r.cnt); err != nil {
		return err
	}
	r.rebuild()
	return nil
}
