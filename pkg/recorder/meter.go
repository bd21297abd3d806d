package recorder

import "math"

// rms computes the root-mean-square level of little-endian signed 16-bit
// PCM, normalized to 0..1. Trailing odd bytes are ignored.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768
}
