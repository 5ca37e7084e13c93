package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulawSilence(t *testing.T) {
	frame := make([]int16, FrameSize)

	enc := MulawEncode(frame)
	require.Len(t, enc, FrameSize)
	dec := MulawDecode(enc)
	require.Len(t, dec, FrameSize)

	for _, s := range dec {
		assert.LessOrEqual(t, math.Abs(float64(s)), 8.0)
	}
}

func TestMulawRoundTripError(t *testing.T) {
	// μ-law is logarithmic: quantization error grows with amplitude but
	// stays within the segment step size.
	samples := []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000, 32767, -32768}

	for _, s := range samples {
		dec := MulawDecode(MulawEncode([]int16{s}))[0]
		limit := math.Max(16, math.Abs(float64(s))/16)
		assert.InDelta(t, float64(s), float64(dec), limit, "sample %d decoded as %d", s, dec)
	}
}

func TestMulawSignSymmetry(t *testing.T) {
	for _, s := range []int16{50, 400, 3000, 20000} {
		pos := MulawDecode(MulawEncode([]int16{s}))[0]
		neg := MulawDecode(MulawEncode([]int16{-s}))[0]
		assert.Equal(t, pos, -neg)
	}
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.Zero(t, RMS(make([]int16, FrameSize)))

	loud := make([]int16, FrameSize)
	for i := range loud {
		loud[i] = 16384
		if i%2 == 1 {
			loud[i] = -16384
		}
	}
	assert.InDelta(t, 0.5, RMS(loud), 1e-6)
}
