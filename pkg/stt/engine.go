// Package stt defines the Engine interface for speech-to-text backends.
//
// An Engine wraps a batch transcription model (local whisper.cpp, or a test
// double) behind a uniform contract: Load prepares the model once, and
// Transcribe turns a finished speech segment into text. The pipeline hands an
// Engine complete utterances cut by the VAD and segment accumulator, so the
// interface is deliberately batch-shaped rather than streaming.
//
// Implementations must be safe for concurrent use. The pipeline serialises
// Transcribe calls itself, but Load may race with a concurrent Stop.
package stt

import (
	"context"
	"time"
)

// Segment is one timestamped span of recognised speech within a result.
type Segment struct {
	// Text is the recognised speech for this span.
	Text string

	// Start and End are offsets from the beginning of the transcribed audio.
	Start time.Duration
	End   time.Duration

	// Confidence is the recognition confidence (0.0–1.0). Zero when the
	// backend does not report one.
	Confidence float64
}

// Result is the outcome of transcribing one audio segment.
type Result struct {
	// Text is the full transcript with segments joined and whitespace
	// normalised.
	Text string

	// Segments holds the per-span detail when the backend provides it.
	Segments []Segment

	// Language is the detected or configured language code (e.g., "en").
	Language string

	// Duration is the wall-clock inference time.
	Duration time.Duration
}

// Engine is the abstraction over any speech-to-text backend.
type Engine interface {
	// Load prepares the model for inference. It is idempotent: the first
	// successful call does the work, subsequent calls return immediately.
	// Implementations load lazily so that construction stays cheap and
	// failures surface at pipeline start, where the caller can act on them.
	Load(ctx context.Context) error

	// Transcribe runs inference on a complete segment of int16 mono PCM at
	// the given sample rate. Implementations resample internally when the
	// model requires a different rate.
	//
	// A (nil, nil) return means the backend found no speech in the segment;
	// callers must treat it as an empty result, not an error.
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (*Result, error)

	// Close releases model resources. Safe to call more than once.
	Close() error
}
