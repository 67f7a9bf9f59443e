// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package collab

// NullCartridge satisfies Cartridge with no ROM inserted: reads return
// open bus (zero), save writes are discarded. Core falls back to this
// when its Config has no Cartridge.
type NullCartridge struct{}

func (NullCartridge) ReadROM(uint32, uint32) uint32       { return 0 }
func (NullCartridge) ReadSave(uint32, uint32) uint32      { return 0 }
func (NullCartridge) WriteSave(uint32, uint32, uint32)    {}

// NullGpu satisfies Gpu with scanline tasks that do nothing, for running
// the core headless (e.g. under test) without a video collaborator.
type NullGpu struct{}

func (NullGpu) Scanline256()     {}
func (NullGpu) Scanline355()     {}
func (NullGpu) GBAScanline240()  {}
func (NullGpu) GBAScanline308()  {}

// NullGpu3D satisfies Gpu3D with a no-op texture cache invalidation.
type NullGpu3D struct{}

func (NullGpu3D) InvalidateTextureCache() {}

// NullSpu satisfies Spu with a no-op sample tick.
type NullSpu struct{}

func (NullSpu) RunSample() {}
