package interrupt

import "testing"

func TestWriteOneToClear(t *testing.T) {
	var c Controller
	c.Raise(3)
	c.Raise(5)
	if c.ReadIRF() != (1<<3)|(1<<5) {
		t.Fatalf("unexpected IRF after Raise: %#x", c.ReadIRF())
	}

	// writing 1 to bit 3 clears it; bit 5 untouched
	c.WriteIRF(1<<3, 1<<3)
	if c.ReadIRF() != 1<<5 {
		t.Fatalf("expected only bit 5 set, got %#x", c.ReadIRF())
	}
}

func TestShouldRaise(t *testing.T) {
	var c Controller
	c.WriteIE(0xFFFFFFFF, 1<<4)
	c.Raise(4)
	c.WriteIME(1)

	if !c.ShouldRaise(false) {
		t.Fatalf("expected interrupt to be raised")
	}
	if c.ShouldRaise(true) {
		t.Fatalf("CPSR IRQ-disable must suppress raising")
	}

	c.WriteIME(0)
	if c.ShouldRaise(false) {
		t.Fatalf("IME clear must suppress raising")
	}
}

func TestPendingIndependentOfIME(t *testing.T) {
	var c Controller
	c.WriteIE(0xFFFFFFFF, 1)
	c.Raise(0)
	if !c.Pending() {
		t.Fatalf("expected Pending true regardless of IME")
	}
}
