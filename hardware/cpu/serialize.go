// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package cpu

import (
	"bytes"
	"encoding/binary"
)

// MarshalBinary encodes the full architectural register state -- every
// banked register, SPSR, the packed CPSR, the two-slot pipeline and the
// halted/branched bookkeeping -- as a contiguous little-endian blob, per
// spec.md §6's "each contiguous struct, little-endian" persisted-state
// layout. Grounded on the corpus's own serialize.go naming convention
// (go-chip-m68k, dcpu16) rather than gob or a hand-rolled JSON shape.
func (s *State) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, v := range []interface{}{
		s.r, s.bankedLoR, s.bankedSP, s.bankedLR, s.spsr,
		s.CPSR(), s.fetched, s.decoded, uint8(s.pipelineFilled), s.branched, s.halted,
	} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a State previously encoded by MarshalBinary.
// The banked arrays are loaded verbatim (they already contain whichever
// mode's registers were live), then SetCPSR resyncs thumb/mode/flags
// from the packed word -- spec.md §6's "the interpreter restores
// mode-bank pointers after loading". Since s.mode is set directly before
// SetCPSR runs, its internal switchMode call is a no-op: the banked
// arrays are not shuffled a second time.
func (s *State) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data)
	var cpsr uint32
	var filled uint8
	for _, v := range []interface{}{
		&s.r, &s.bankedLoR, &s.bankedSP, &s.bankedLR, &s.spsr,
		&cpsr, &s.fetched, &s.decoded, &filled, &s.branched, &s.halted,
	} {
		if err := binary.Read(buf, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	s.pipelineFilled = int(filled)
	if m, ok := bitsToMode[uint8(cpsr&0x1F)]; ok {
		s.mode = m
	}
	s.SetCPSR(cpsr)
	return nil
}
