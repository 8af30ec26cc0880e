package ppg

// SampleRing is a fixed-capacity ring buffer of samples. Push
// overwrites the oldest slot once full; no allocation happens on Push
// after construction.
type SampleRing struct {
	samples  []Sample
	capacity int
	head     int // next write position
	size     int // current number of samples stored
}

// NewSampleRing creates a ring buffer with the given capacity.
func NewSampleRing(capacity int) *SampleRing {
	if capacity < 1 {
		capacity = 1
	}
	return &SampleRing{
		samples:  make([]Sample, capacity),
		capacity: capacity,
	}
}

// Push stores a sample, overwriting the oldest if at capacity.
func (r *SampleRing) Push(s Sample) {
	r.samples[r.head] = s
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Snapshot returns the stored samples in chronological order. The
// returned slice is a copy; mutating it does not affect the ring.
func (r *SampleRing) Snapshot() []Sample {
	if r.size == 0 {
		return nil
	}
	out := make([]Sample, r.size)
	start := (r.head - r.size + r.capacity) % r.capacity
	for i := 0; i < r.size; i++ {
		out[i] = r.samples[(start+i)%r.capacity]
	}
	return out
}

// Latest returns the most recently pushed sample and true, or a zero
// sample and false if empty.
func (r *SampleRing) Latest() (Sample, bool) {
	if r.size == 0 {
		return Sample{}, false
	}
	idx := (r.head - 1 + r.capacity) % r.capacity
	return r.samples[idx], true
}

// Len returns the current number of stored samples.
func (r *SampleRing) Len() int { return r.size }

// Cap returns the fixed capacity.
func (r *SampleRing) Cap() int { return r.capacity }

// Clear resets the ring to empty without reallocating backing storage.
func (r *SampleRing) Clear() {
	r.head = 0
	r.size = 0
}

// FloatRing is a fixed-capacity ring buffer of float64 values, used for
// conditioned-signal windows and estimator histories.
type FloatRing struct {
	values   []float64
	capacity int
	head     int
	size     int
}

// NewFloatRing creates a float ring buffer with the given capacity.
func NewFloatRing(capacity int) *FloatRing {
	if capacity < 1 {
		capacity = 1
	}
	return &FloatRing{
		values:   make([]float64, capacity),
		capacity: capacity,
	}
}

// Push stores a value, overwriting the oldest if at capacity.
func (r *FloatRing) Push(v float64) {
	r.values[r.head] = v
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Values returns the stored values in chronological order (a copy).
func (r *FloatRing) Values() []float64 {
	if r.size == 0 {
		return nil
	}
	out := make([]float64, r.size)
	start := (r.head - r.size + r.capacity) % r.capacity
	for i := 0; i < r.size; i++ {
		out[i] = r.values[(start+i)%r.capacity]
	}
	return out
}

// CopyInto copies the stored values in chronological order into dst and
// returns the number copied. When dst is shorter than the ring it
// receives the most recent len(dst) values. It allocates nothing, so
// per-sample code can reuse one scratch slice across calls.
func (r *FloatRing) CopyInto(dst []float64) int {
	n := r.size
	if n > len(dst) {
		n = len(dst)
	}
	start := (r.head - n + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		dst[i] = r.values[(start+i)%r.capacity]
	}
	return n
}

// Last returns the value pushed n steps back. Last(0) is the most
// recent value. The second return is false if no such value exists.
func (r *FloatRing) Last(n int) (float64, bool) {
	if n < 0 || n >= r.size {
		return 0, false
	}
	idx := (r.head - 1 - n + 2*r.capacity) % r.capacity
	return r.values[idx], true
}

// Len returns the current number of stored values.
func (r *FloatRing) Len() int { return r.size }

// Cap returns the fixed capacity.
func (r *FloatRing) Cap() int { return r.capacity }

// Full reports whether the ring has wrapped at least once.
func (r *FloatRing) Full() bool { return r.size == r.capacity }

// Clear resets the ring to empty without reallocating backing storage.
func (r *FloatRing) Clear() {
	r.head = 0
	r.size = 0
}
