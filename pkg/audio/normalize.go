package audio

import (
	"encoding/binary"
	"math"
)

// DefaultNormalizeTarget is the RMS level, as a fraction of full scale, that
// [NormalizeRMS] scales to by default.
const DefaultNormalizeTarget = 0.3

// NormalizeRMS returns a copy of pcm scaled so that its RMS amplitude equals
// target times full scale. Samples are clamped to the int16 range. Silent
// input is returned unchanged and ok is false.
func NormalizeRMS(pcm []byte, target float64) (out []byte, ok bool) {
	current := Volume(pcm)
	if current == 0 || target <= 0 {
		return pcm, false
	}
	gain := target / current
	n := len(pcm) / bytesPerSample
	out = make([]byte, n*bytesPerSample)
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) * gain
		s = math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(s)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out, true
}
