package audio

import (
	"encoding/binary"
	"math"
	"slices"
)

const (
	// HistorySize is the number of recent volume samples kept by an [Analyzer].
	HistorySize = 50

	// minSmoothingSamples is the history length below which [Smooth] returns
	// the most recent value unchanged.
	minSmoothingSamples = 5

	// fullScale is the magnitude of the most negative int16 sample.
	fullScale = 32768.0
)

// Volume returns the RMS amplitude of 16-bit PCM normalised to [0, 1].
// An empty chunk yields 0. A trailing odd byte is ignored.
func Volume(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sumSq float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sumSq += s * s
	}
	v := math.Sqrt(sumSq/float64(n)) / fullScale
	return min(v, 1)
}

// History is a fixed-capacity ring buffer of volume samples. When full, the
// oldest sample is evicted. It is not safe for concurrent use.
type History struct {
	buf   []float64
	start int
	n     int
}

// NewHistory returns an empty History holding at most capacity samples.
// A non-positive capacity is treated as [HistorySize].
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = HistorySize
	}
	return &History{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample if the buffer is full.
func (h *History) Push(v float64) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = v
		h.n++
		return
	}
	h.buf[h.start] = v
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of samples held.
func (h *History) Len() int { return h.n }

// Cap returns the capacity.
func (h *History) Cap() int { return len(h.buf) }

// Last returns a copy of the most recent n samples, oldest first. If fewer
// than n samples are held, all of them are returned.
func (h *History) Last(n int) []float64 {
	n = max(0, min(n, h.n))
	out := make([]float64, n)
	first := h.n - n
	for i := range n {
		out[i] = h.buf[(h.start+first+i)%len(h.buf)]
	}
	return out
}

// Values returns a copy of all samples, oldest first.
func (h *History) Values() []float64 { return h.Last(h.n) }

// Reset discards all samples.
func (h *History) Reset() {
	h.start, h.n = 0, 0
}

// Smooth returns an exponentially weighted average of values in which the
// weight of element i is exp(-1 + i/(n-1)), so recent samples count more.
// With fewer than five values it returns the last one unchanged; an empty
// slice yields 0.
func Smooth(values []float64) float64 {
	n := len(values)
	switch {
	case n == 0:
		return 0
	case n < minSmoothingSamples:
		return values[n-1]
	}
	var sum, wsum float64
	for i, v := range values {
		w := math.Exp(-1 + float64(i)/float64(n-1))
		sum += v * w
		wsum += w
	}
	return sum / wsum
}

// Percentile returns the p-th percentile (0 to 100) of values using linear
// interpolation between closest ranks. values is not modified. An empty slice
// yields 0.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	p = min(max(p, 0), 100)
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Analyzer turns chunks into raw and smoothed volume values, keeping a
// bounded [History] of recent raw samples.
type Analyzer struct {
	history *History
}

// NewAnalyzer returns an Analyzer with a history of [HistorySize] samples.
func NewAnalyzer() *Analyzer {
	return &Analyzer{history: NewHistory(HistorySize)}
}

// Analyze computes the volume of pcm, records it in the history and returns
// both the raw value and the smoothed value over the whole history.
func (a *Analyzer) Analyze(pcm []byte) (raw, smoothed float64) {
	raw = Volume(pcm)
	a.history.Push(raw)
	return raw, Smooth(a.history.Values())
}

// History returns the analyzer's sample history. Callers must not push to it.
func (a *Analyzer) History() *History { return a.history }
