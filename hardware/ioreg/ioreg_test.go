package ioreg

import "testing"

func TestRoundTrip32(t *testing.T) {
	tbl := NewTable("test")
	var backing uint32
	tbl.Register(0x100, Handler{
		Width: 4,
		Read:  func() uint32 { return backing },
		Write: func(mask, value uint32) { backing = (backing &^ mask) | (value & mask) },
	})

	tbl.Write(0x100, 4, 0xAABBCCDD)
	if got := tbl.Read(0x100, 4); got != 0xAABBCCDD {
		t.Fatalf("expected 0xAABBCCDD, got %#x", got)
	}
}

func TestSubWordAccess(t *testing.T) {
	tbl := NewTable("test")
	var backing uint32
	tbl.Register(0x100, Handler{
		Width: 4,
		Read:  func() uint32 { return backing },
		Write: func(mask, value uint32) { backing = (backing &^ mask) | (value & mask) },
	})

	backing = 0xAABBCCDD
	if got := tbl.Read(0x101, 1); got != 0xCC {
		t.Fatalf("expected byte 0xCC at offset 1, got %#x", got)
	}
	if got := tbl.Read(0x102, 2); got != 0xAABB {
		t.Fatalf("expected halfword 0xAABB at offset 2, got %#x", got)
	}

	// write only the low byte
	tbl.Write(0x100, 1, 0xFF)
	if backing != 0xAABBCCFF {
		t.Fatalf("expected only low byte modified, got %#x", backing)
	}
}

func TestUnknownRegisterReadsZeroWritesNoop(t *testing.T) {
	tbl := NewTable("test")
	if got := tbl.Read(0x999, 4); got != 0 {
		t.Fatalf("expected zero read for unknown register, got %#x", got)
	}
	tbl.Write(0x999, 4, 0xFFFFFFFF) // must not panic
}

func TestAccessSpanningTwoRegisters(t *testing.T) {
	tbl := NewTable("test")
	var lo, hi uint16
	tbl.Register(0x100, Handler{
		Width: 2,
		Read:  func() uint32 { return uint32(lo) },
		Write: func(mask, value uint32) { lo = uint16((uint32(lo) &^ mask) | (value & mask)) },
	})
	tbl.Register(0x102, Handler{
		Width: 2,
		Read:  func() uint32 { return uint32(hi) },
		Write: func(mask, value uint32) { hi = uint16((uint32(hi) &^ mask) | (value & mask)) },
	})

	tbl.Write(0x100, 4, 0xBEEFCAFE)
	if lo != 0xCAFE || hi != 0xBEEF {
		t.Fatalf("expected lo=0xCAFE hi=0xBEEF, got lo=%#x hi=%#x", lo, hi)
	}

	if got := tbl.Read(0x100, 4); got != 0xBEEFCAFE {
		t.Fatalf("expected 0xBEEFCAFE, got %#x", got)
	}
}
