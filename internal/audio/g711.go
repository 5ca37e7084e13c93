package audio

// G.711 μ-law. 8 kHz mono, 20 ms frames, one RTP payload byte per sample.
// Keeps the whole audio path pure Go.

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// MulawEncode compresses s16 PCM samples to μ-law bytes.
func MulawEncode(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = mulawEncodeSample(s)
	}
	return out
}

// MulawDecode expands μ-law bytes back to s16 PCM samples.
func MulawDecode(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = mulawDecodeSample(b)
	}
	return out
}

func mulawEncodeSample(s int16) byte {
	var sign byte
	v := int32(s)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias

	exp := byte(7)
	for mask := int32(0x4000); v&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mantissa := byte(v>>(exp+3)) & 0x0F
	return ^(sign | exp<<4 | mantissa)
}

func mulawDecodeSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exp := (b >> 4) & 0x07
	mantissa := b & 0x0F

	v := (int32(mantissa)<<3 + muLawBias) << exp
	v -= muLawBias
	if sign != 0 {
		v = -v
	}
	return int16(v)
}
