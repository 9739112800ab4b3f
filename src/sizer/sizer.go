// Package sizer computes the randomized length of each plaintext block.
// Block sizing is metadata-hiding, not secrecy-bearing, so a
// non-cryptographic PRNG is sufficient and deterministic-under-seed for
// test reproducibility.
package sizer

import "math/rand"

const (
	// MiB is one mebibyte.
	MiB = 1 << 20

	// smallMediumThreshold is the upper bound of the small/medium regime.
	smallMediumThreshold = 100_000_000

	smallMedMin = 1 * MiB
	smallMedMax = 10 * MiB

	// minFinalBlock is the floor below which a terminal block is absorbed
	// into the current block rather than emitted on its own, unless it
	// would be the only block.
	minFinalBlock = 1 * MiB
)

// Sizer selects the length of successive plaintext blocks given the
// total input size and bytes remaining.
type Sizer struct {
	rng          *rand.Rand
	totalSize    int64
	overrideSize int64 // 0 means "no override"
}

// New returns a Sizer for an input of totalSize bytes, using rng for
// block-length randomization. Pass a rand.New(rand.NewSource(seed)) for
// deterministic-under-seed chunking.
func New(totalSize int64, rng *rand.Rand) *Sizer {
	return &Sizer{rng: rng, totalSize: totalSize}
}

// NewWithOverride returns a Sizer that always requests overrideSize
// bytes per block, still subject to the terminal-block edge rule and
// to remaining-bytes clamping.
func NewWithOverride(totalSize, overrideSize int64, rng *rand.Rand) *Sizer {
	return &Sizer{rng: rng, totalSize: totalSize, overrideSize: overrideSize}
}

// Next returns the length of the next block given remaining bytes still
// to be consumed. Callers must not request a block once remaining is 0.
func (s *Sizer) Next(remaining int64) int64 {
	var candidate int64
	if s.overrideSize > 0 {
		candidate = s.overrideSize
	} else {
		lo, hi := s.regimeBounds()
		candidate = lo
		if hi > lo {
			candidate = lo + int64(s.rng.Int63n(hi-lo+1))
		}
	}

	length := candidate
	if length > remaining {
		length = remaining
	}

	// Edge rule: never leave a conspicuously small tail block unless it's
	// the only block.
	if leftover := remaining - length; leftover > 0 && leftover < minFinalBlock {
		length = remaining
	}

	return length
}

func (s *Sizer) regimeBounds() (lo, hi int64) {
	if s.totalSize <= smallMediumThreshold {
		return smallMedMin, smallMedMax
	}

	d := int64(0)
	for n := s.totalSize; n >= 10; n /= 10 {
		d++
	}
	lo = pow10(d - 2)
	hi = pow10(d - 1)
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func pow10(n int64) int64 {
	if n < 0 {
		return 1
	}
	v := int64(1)
	for i := int64(0); i < n; i++ {
		v *= 10
	}
	return v
}
