package collab

import "testing"

var (
	_ Cartridge = NullCartridge{}
	_ Gpu       = NullGpu{}
	_ Gpu3D     = NullGpu3D{}
	_ Spu       = NullSpu{}
)

func TestNullCartridgeReadsOpenBus(t *testing.T) {
	var c NullCartridge
	if c.ReadROM(0x100, 4) != 0 {
		t.Fatalf("expected open-bus zero read")
	}
	if c.ReadSave(0, 1) != 0 {
		t.Fatalf("expected open-bus zero read")
	}
	c.WriteSave(0, 1, 0xFF) // must not panic
}

func TestNullCollaboratorsDoNotPanic(t *testing.T) {
	var (
		g  NullGpu
		g3 NullGpu3D
		s  NullSpu
	)
	g.Scanline256()
	g.Scanline355()
	g.GBAScanline240()
	g.GBAScanline308()
	g3.InvalidateTextureCache()
	s.RunSample()
}
