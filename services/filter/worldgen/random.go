// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worldgen

// Random is Java's 48-bit linear congruential generator.
// Not safe for concurrent use.
type Random struct {
	seed int64
}

const (
	lcgMultiplier = 0x5DEECE66D
	lcgAddend     = 0xB
	lcgMask       = (1 << 48) - 1
)

// NewRandom returns a generator seeded like java.util.Random(seed).
func NewRandom(seed int64) *Random {
	return &Random{seed: scramble(seed)}
}

func scramble(seed int64) int64 {
	return (seed ^ lcgMultiplier) & lcgMask
}

// SetSeed reseeds the generator.
func (r *Random) SetSeed(seed int64) {
	r.seed = scramble(seed)
}

// NextBits returns the next bits pseudo-random bits.
func (r *Random) NextBits(bits int) int32 {
	r.seed = (r.seed*lcgMultiplier + lcgAddend) & lcgMask
	return int32(r.seed >> (48 - bits))
}

// NextInt returns a value in [0, n). n must be positive.
func (r *Random) NextInt(n int32) int32 {
	if n <= 0 {
		panic("worldgen: NextInt bound must be positive")
	}
	if n&-n == n {
		return int32((int64(n) * int64(r.NextBits(31))) >> 31)
	}
	for {
		bits := r.NextBits(31)
		val := bits % n
		// int32 overflow is intended
		if bits-val+(n-1) >= 0 {
			return val
		}
	}
}

// NextLong returns the next 64-bit value.
func (r *Random) NextLong() int64 {
	return int64(r.NextBits(32))<<32 + int64(r.NextBits(32))
}

// NextBool returns the next boolean.
func (r *Random) NextBool() bool {
	return r.NextBits(1) != 0
}
