// Package audio defines the capture-side primitives of the Auricle pipeline:
// the [Source] delivery contract, the [RingBuffer] that decouples the capture
// thread from consumers, and PCM conversion helpers shared by the VAD and the
// transcription engines.
//
// Implementations of [Source] are provided by platform-specific adapter
// packages (audio/parec for PulseAudio/PipeWire monitor capture via a
// subprocess, audio/malgo for native device capture). The interface is
// intentionally narrow to keep the pipeline decoupled from capture details.
package audio

// ChunkFunc receives captured audio. It is invoked on the source's own
// delivery goroutine and must return quickly — at most it may enqueue work.
// Blocking here stalls the capture device.
type ChunkFunc func(Chunk)

// ErrorFunc receives asynchronous source failures (device disconnected,
// capture subprocess died). Invoked at most once per Start/Stop cycle, on an
// internal goroutine. After an ErrorFunc call the source is stopped and must
// be restarted with Start to resume delivery.
type ErrorFunc func(error)

// Source is the push-based capture contract consumed by the streaming
// pipeline. A source delivers int16 mono chunks at its declared sample rate,
// via the callback registered with OnChunk, until explicitly stopped.
//
// How the source acquires audio (microphone, loopback monitor, subprocess
// piping raw PCM) is an implementation detail.
//
// Implementations must be safe for concurrent use: Start and Stop may be
// called from a different goroutine than the one delivering chunks.
type Source interface {
	// SampleRate returns the rate, in Hz, of the chunks this source delivers.
	SampleRate() int

	// OnChunk registers cb as the chunk consumer. Only one callback may be
	// registered at a time; subsequent calls replace the previous
	// registration. Must be called before Start.
	OnChunk(cb ChunkFunc)

	// OnError registers cb to be notified of mid-stream capture failures.
	// Optional; when no callback is registered failures are only logged.
	OnError(cb ErrorFunc)

	// Start begins capture and chunk delivery. Returns an error if the
	// device or subprocess cannot be opened. Calling Start on a running
	// source is a no-op returning nil.
	Start() error

	// Stop halts capture within a bounded time: implementations must
	// terminate their device stream or subprocess gracefully, falling back
	// to forced termination if graceful shutdown does not complete within a
	// few seconds. Stop is idempotent. No chunk callbacks are invoked after
	// Stop returns.
	Stop() error
}
