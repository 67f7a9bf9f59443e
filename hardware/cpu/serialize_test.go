package cpu

import "testing"

func TestStateRoundTripsThroughMarshalBinary(t *testing.T) {
	bus := &memBus{}
	s := New(bus)
	s.SetReg(3, 0xDEADBEEF)
	s.SetCPSR(s.CPSR() | (1 << 7)) // disable IRQ
	s.Halt()

	data, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored := New(bus)
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if restored.GetReg(3) != 0xDEADBEEF {
		t.Fatalf("r3 not restored, got %#x", restored.GetReg(3))
	}
	if !restored.Halted() {
		t.Fatalf("halted flag not restored")
	}
	if restored.CPSR() != s.CPSR() {
		t.Fatalf("cpsr mismatch: got %#x want %#x", restored.CPSR(), s.CPSR())
	}
}

func TestStateRoundTripsAcrossModeSwitch(t *testing.T) {
	bus := &memBus{}
	s := New(bus)
	s.SetCPSR(0xDF) // system, irq+fiq disabled, arm
	s.SetReg(SP, 0x1000)
	s.SetCPSR(0xD3) // supervisor, irq+fiq disabled, arm
	s.SetReg(SP, 0x2000)

	data, err := s.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored := New(bus)
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.GetReg(SP) != 0x2000 {
		t.Fatalf("banked sp not restored, got %#x", restored.GetReg(SP))
	}
	if restored.Mode() != Supervisor {
		t.Fatalf("mode not restored, got %v", restored.Mode())
	}
}
