// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package collab declares the collaborator interfaces the core consumes
// but does not implement, per spec.md §6: cartridge storage, video and
// audio timing sources, and the handful of peripherals whose register
// semantics and bodies are explicitly out of scope. Core wires these in
// at construction time and calls them only at the documented hook points
// (scheduled tasks, memory-map slow path, I/O register handlers); their
// internals are owned by the embedder.
package collab

// Cartridge backs ROM reads and save storage for the memory map's slow
// path (hardware/memory.Cartridge duplicates this narrower surface so
// that package doesn't need to import collab; both describe the same
// contract). File-format parsing, mapper chips and save-type
// autodetection are the collaborator's problem, not the core's.
type Cartridge interface {
	ReadROM(offset uint32, width uint32) uint32
	ReadSave(offset uint32, width uint32) uint32
	WriteSave(offset uint32, width uint32, value uint32)
}

// Gpu is the scheduled-task entry point for 2D video timing. scanline256
// and scanline355 advance the primary engines' scanline/dot counters at
// the native cadence; gbaScanline240/gbaScanline308 are their
// compatibility-mode equivalents (shorter scanline, different total).
// Actual pixel composition, rotation/scaling/windowing and blending are
// deliberately out of scope (spec.md §1).
type Gpu interface {
	Scanline256()
	Scanline355()
	GBAScanline240()
	GBAScanline308()
}

// Gpu3D is the 3D geometry/rasterization collaborator. The core's only
// contact with it is the VRAM router's rebuild hook, which Core wires to
// InvalidateTextureCache
// (spec.md §4.3, "invalidates any 3D texture cache held by the
// collaborator") and I/O register passthrough; the pipeline itself is
// out of scope.
type Gpu3D interface {
	InvalidateTextureCache()
}

// Spu is the scheduled-task entry point for audio. RunSample pulls one
// sample period's worth of channel mixing; the actual DAC mixing,
// resampling and the lock-free output buffer it feeds are the
// collaborator's responsibility (spec.md §5, "Host threads").
type Spu interface {
	RunSample()
}

// Input, Spi, Rtc, Wifi, Dma, Timers, DivSqrt, SaveStates and
// ActionReplay are named in spec.md §6 as collaborators whose bodies are
// out of scope: each one only ever touches the core through registers it
// installs directly into a hardware/ioreg.Table the owner hands it at
// construction time, and optionally through tasks it schedules on
// hardware/schedule.Scheduler. Neither of those call shapes needs a
// collab-level method, so these are marker interfaces: their only job is
// giving Core a named, typed field to hold each collaborator in (spec.md
// §6, "serialize the components listed in §2 in that order" implies a
// fixed slot per component, present whether or not that collaborator has
// a real implementation yet).
type (
	Input        interface{}
	Spi          interface{}
	Rtc          interface{}
	Wifi         interface{}
	Dma          interface{}
	Timers       interface{}
	DivSqrt      interface{}
	SaveStates   interface{}
	ActionReplay interface{}
)
