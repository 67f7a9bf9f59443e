// This file is part of duocore.
//
// duocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package cpu

// addWithCarry computes a + b + carryIn and the resulting NZCV flags,
// the shared primitive behind ADD/ADC/CMN (and, via b's complement,
// SUB/SBC/CMP) per the ARM ALU specification.
func addWithCarry(a, b uint32, carryIn bool) (result uint32, flags Flags) {
	var c uint64
	if carryIn {
		c = 1
	}
	wide := uint64(a) + uint64(b) + c
	result = uint32(wide)

	flags.N = result&(1<<31) != 0
	flags.Z = result == 0
	flags.C = wide > 0xFFFFFFFF

	signA := a&(1<<31) != 0
	signB := b&(1<<31) != 0
	signR := result&(1<<31) != 0
	flags.V = signA == signB && signA != signR

	return result, flags
}

// Add computes a+b with flags (ADD/CMN/ADDS).
func Add(a, b uint32) (uint32, Flags) { return addWithCarry(a, b, false) }

// AddCarry computes a+b+C with flags (ADC/ADCS).
func AddCarry(a, b uint32, carryIn bool) (uint32, Flags) { return addWithCarry(a, b, carryIn) }

// Sub computes a-b with flags (SUB/CMP/SUBS). ARM's subtract is
// addWithCarry(a, ^b, true): inverted operand, carry-in forced set.
func Sub(a, b uint32) (uint32, Flags) { return addWithCarry(a, ^b, true) }

// SubCarry computes a-b-!C with flags (SBC/SBCS).
func SubCarry(a, b uint32, carryIn bool) (uint32, Flags) {
	return addWithCarry(a, ^b, carryIn)
}

// RSub computes b-a with flags (RSB/RSBS): reverse-subtract.
func RSub(a, b uint32) (uint32, Flags) { return addWithCarry(b, ^a, true) }

// RSubCarry computes b-a-!C with flags (RSC/RSCS).
func RSubCarry(a, b uint32, carryIn bool) (uint32, Flags) {
	return addWithCarry(b, ^a, carryIn)
}

// logicalFlags computes the NZ flags a logical operation's result
// produces; C comes from the barrel shifter's carry-out (or is left
// unchanged when the operand was an unshifted immediate), and V is
// always left unchanged, matching AND/ORR/EOR/BIC/MOV/MVN/TST/TEQ.
// currentV is the CPSR's V bit before the instruction ran; it is
// threaded straight through to the returned Flags so committing the
// result via SetFlags doesn't clobber V.
func logicalFlags(result uint32, shifterCarry, currentV bool) Flags {
	return Flags{
		N: result&(1<<31) != 0,
		Z: result == 0,
		C: shifterCarry,
		V: currentV,
	}
}

// Saturate clamps value to the signed 32-bit range, reporting whether
// clamping occurred (spec.md §4.1, "saturating arithmetic with sticky Q
// flag"). wide is the pre-saturation 64-bit signed result.
func Saturate(wide int64) (result int32, saturated bool) {
	const max = int64(1)<<31 - 1
	const min = -(int64(1) << 31)
	switch {
	case wide > max:
		return int32(max), true
	case wide < min:
		return int32(min), true
	default:
		return int32(wide), false
	}
}
