package session

import "github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/domain"

// Window is a fixed-capacity FIFO of pose samples. Appending to a full
// window evicts the oldest sample.
type Window struct {
	samples [domain.WindowSize]domain.FeatureVector
	start   int
	size    int
}

// Append adds v as the newest sample.
func (w *Window) Append(v domain.FeatureVector) {
	if w.size < len(w.samples) {
		w.samples[(w.start+w.size)%len(w.samples)] = v
		w.size++
		return
	}
	w.samples[w.start] = v
	w.start = (w.start + 1) % len(w.samples)
}

// Len returns the number of buffered samples.
func (w *Window) Len() int {
	return w.size
}

// Samples copies the buffered samples oldest first.
func (w *Window) Samples() []domain.FeatureVector {
	out := make([]domain.FeatureVector, w.size)
	for i := range out {
		out[i] = w.samples[(w.start+i)%len(w.samples)]
	}
	return out
}
