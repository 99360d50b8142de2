package audio

import "time"

// Chunk represents a single delivery of captured audio flowing into the
// pipeline. Chunks are the atomic unit of audio transport — produced by a
// [Source] callback, written to the ring buffer, and sliced into VAD frames
// by the streaming pipeline.
//
// A Chunk is immutable once produced: neither the source nor any consumer
// may mutate Samples after delivery.
type Chunk struct {
	// Samples is signed 16-bit mono PCM.
	Samples []int16

	// SampleRate in Hz (e.g., 16000 for STT input).
	SampleRate int

	// Timestamp marks when this chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the chunk at its sample rate.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}
