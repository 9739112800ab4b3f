package sizer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNext_SmallMediumRegime_BoundsRespected(t *testing.T) {
	total := int64(25 * MiB)
	s := New(total, rand.New(rand.NewSource(1)))

	remaining := total
	var lengths []int64
	for remaining > 0 {
		l := s.Next(remaining)
		assert.Greater(t, l, int64(0))
		assert.LessOrEqual(t, l, remaining)
		lengths = append(lengths, l)
		remaining -= l
	}

	sum := int64(0)
	for i, l := range lengths {
		sum += l
		if i < len(lengths)-1 {
			assert.GreaterOrEqual(t, l, int64(smallMedMin))
			assert.LessOrEqual(t, l, int64(smallMedMax))
		}
	}
	assert.Equal(t, total, sum)
}

func TestNext_TerminalBlockNeverTinyUnlessOnlyBlock(t *testing.T) {
	total := int64(10*MiB + 500*1024) // forces a would-be small tail
	s := New(total, rand.New(rand.NewSource(42)))

	remaining := total
	var lengths []int64
	for remaining > 0 {
		l := s.Next(remaining)
		lengths = append(lengths, l)
		remaining -= l
	}

	last := lengths[len(lengths)-1]
	if len(lengths) > 1 {
		assert.GreaterOrEqual(t, last, int64(minFinalBlock))
	}
}

func TestNext_SingleByteFile(t *testing.T) {
	s := New(1, rand.New(rand.NewSource(7)))
	l := s.Next(1)
	assert.Equal(t, int64(1), l)
}

func TestNext_LargeFileRegime(t *testing.T) {
	total := int64(5_000_000_000) // > 1e8, d = floor(log10(5e9)) = 9
	s := New(total, rand.New(rand.NewSource(3)))

	remaining := total
	for i := 0; i < 3 && remaining > 0; i++ {
		l := s.Next(remaining)
		assert.Greater(t, l, int64(0))
		assert.LessOrEqual(t, l, remaining)
		remaining -= l
	}
}

func TestNewWithOverride_FixedSize(t *testing.T) {
	total := int64(10 * MiB)
	s := NewWithOverride(total, 2*MiB, rand.New(rand.NewSource(1)))

	remaining := total
	var lengths []int64
	for remaining > 0 {
		l := s.Next(remaining)
		lengths = append(lengths, l)
		remaining -= l
	}

	for i, l := range lengths {
		if i < len(lengths)-1 {
			assert.Equal(t, int64(2*MiB), l)
		}
	}
}

func TestNext_DeterministicUnderSeed(t *testing.T) {
	total := int64(25 * MiB)

	run := func() []int64 {
		s := New(total, rand.New(rand.NewSource(99)))
		remaining := total
		var out []int64
		for remaining > 0 {
			l := s.Next(remaining)
			out = append(out, l)
			remaining -= l
		}
		return out
	}

	assert.Equal(t, run(), run())
}
