package audio

import "sync"

// RingBuffer is a fixed-capacity circular store of int16 samples. It decouples
// the capture thread (writer) from any consumer (reader): writes never block
// and never fail — when the buffer is full the oldest samples are evicted
// first, pure FIFO.
//
// All operations are serialised by a single internal mutex, held only for the
// duration of the call. Never call back into slow code (a transcription
// engine, a network write) while holding a reference obtained under the lock;
// Read and Peek return copies precisely so that callers don't have to.
type RingBuffer struct {
	mu       sync.Mutex
	data     []int16
	capacity int
	start    int // index of the oldest sample
	size     int // current sample count, ≤ capacity
}

// NewRingBuffer creates a ring buffer sized to hold capacitySeconds of audio
// at sampleRate Hz. A non-positive computed capacity is clamped to one sample
// so the zero-config case stays usable in tests.
func NewRingBuffer(capacitySeconds float64, sampleRate int) *RingBuffer {
	capacity := int(capacitySeconds * float64(sampleRate))
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		data:     make([]int16, capacity),
		capacity: capacity,
	}
}

// Write appends samples, evicting the oldest samples when the result would
// exceed capacity. Amortised O(1) per sample; never blocks on a reader.
func (b *RingBuffer) Write(samples []int16) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	// Incoming data alone exceeds capacity: only the newest samples survive.
	if len(samples) >= b.capacity {
		copy(b.data, samples[len(samples)-b.capacity:])
		b.start = 0
		b.size = b.capacity
		return
	}

	writePos := (b.start + b.size) % b.capacity
	n := copy(b.data[writePos:], samples)
	if n < len(samples) {
		copy(b.data, samples[n:])
	}

	b.size += len(samples)
	if b.size > b.capacity {
		// Evict: advance start past the overwritten oldest samples.
		b.start = (b.start + b.size - b.capacity) % b.capacity
		b.size = b.capacity
	}
}

// Read removes and returns up to n oldest samples (fewer if the buffer holds
// less, none if n ≤ 0). The returned slice is a copy owned by the caller.
func (b *RingBuffer) Read(n int) []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n > b.size {
		n = b.size
	}
	out := b.copyOldest(n)
	b.start = (b.start + n) % b.capacity
	b.size -= n
	return out
}

// Peek returns up to n oldest samples without removing them.
func (b *RingBuffer) Peek(n int) []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n > b.size {
		n = b.size
	}
	return b.copyOldest(n)
}

// PeekAll returns the entire contents, oldest first, without mutating state.
func (b *RingBuffer) PeekAll() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyOldest(b.size)
}

// Clear resets the buffer to empty.
func (b *RingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.size = 0
}

// Len returns the current sample count (≤ capacity).
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the fixed capacity in samples.
func (b *RingBuffer) Cap() int {
	return b.capacity
}

// DurationSeconds returns the buffered audio length in seconds at the given
// sample rate.
func (b *RingBuffer) DurationSeconds(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(b.Len()) / float64(sampleRate)
}

// copyOldest copies the n oldest samples into a fresh slice.
// Must be called with b.mu held; n must be ≤ b.size.
func (b *RingBuffer) copyOldest(n int) []int16 {
	out := make([]int16, n)
	first := copy(out, b.data[b.start:min(b.start+n, b.capacity)])
	if first < n {
		copy(out[first:], b.data[:n-first])
	}
	return out
}
