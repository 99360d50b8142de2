// Package vad provides frame-level voice activity detection for the Auricle
// streaming pipeline.
//
// A [Detector] classifies fixed-duration audio frames as speech or silence
// and tracks speech-segment boundaries with hysteresis: a rising edge
// (is-speaking) requires sustained speech evidence and a falling edge
// (speech-ended) requires sustained silence, which suppresses flapping on
// transient noise. The falling edge is reported exactly once per segment.
//
// Two classifiers share this hysteresis: [Energy] compares RMS frame energy
// against a threshold, and [Probability] wraps a model-backed [Scorer]
// (e.g., Silero VAD in the silero subpackage). [Select] probes model
// availability once at construction and falls back to the energy detector
// transparently.
//
// A Detector is owned by a single logical stream processor and is not safe
// for concurrent use; callers that mutate it from several goroutines must
// serialise access themselves.
package vad

import "fmt"

// Default configuration values, matching a 30 ms frame at 16 kHz.
const (
	DefaultSampleRate           = 16000
	DefaultFrameDurationMs      = 30
	DefaultEnergyThreshold      = 0.01
	DefaultProbabilityThreshold = 0.5
	DefaultMinSpeechDurationMs  = 250
	DefaultMinSilenceDurationMs = 500
)

// Config holds the parameters for a detector. Durations are expressed in
// milliseconds and converted to whole frame counts internally; a duration
// shorter than one frame still requires one full frame of evidence.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// ProcessFrame.
	SampleRate int

	// FrameDurationMs is the duration of each classification frame.
	FrameDurationMs int

	// EnergyThreshold is the normalised RMS energy ([0,1] scale) above which
	// the energy detector classifies a frame as speech.
	EnergyThreshold float64

	// ProbabilityThreshold is the speech probability above which the
	// model-backed detector classifies a frame as speech.
	ProbabilityThreshold float64

	// MinSpeechDurationMs is the sustained-speech duration required before
	// the detector transitions to speaking (rising-edge debounce).
	MinSpeechDurationMs int

	// MinSilenceDurationMs is the sustained-silence duration required before
	// an active speech segment is considered ended (falling-edge debounce).
	MinSilenceDurationMs int
}

// withDefaults returns cfg with zero fields replaced by package defaults.
func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FrameDurationMs <= 0 {
		c.FrameDurationMs = DefaultFrameDurationMs
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = DefaultEnergyThreshold
	}
	if c.ProbabilityThreshold <= 0 {
		c.ProbabilityThreshold = DefaultProbabilityThreshold
	}
	if c.MinSpeechDurationMs <= 0 {
		c.MinSpeechDurationMs = DefaultMinSpeechDurationMs
	}
	if c.MinSilenceDurationMs <= 0 {
		c.MinSilenceDurationMs = DefaultMinSilenceDurationMs
	}
	return c
}

// FrameSamples returns the number of samples per classification frame.
func (c Config) FrameSamples() int {
	cfg := c.withDefaults()
	return cfg.SampleRate * cfg.FrameDurationMs / 1000
}

// Decision is the result of classifying one frame.
type Decision struct {
	// IsSpeaking reports whether the detector currently considers the stream
	// to be inside a speech segment. This is a level, not an edge.
	IsSpeaking bool

	// SpeechEnded is true only on the single frame whose silence evidence
	// closes an active speech segment. Edge-triggered: it never repeats for
	// the same segment.
	SpeechEnded bool
}

// Detector is the frame-in, decision-out contract shared by all VAD
// implementations.
type Detector interface {
	// ProcessFrame classifies one frame of int16 mono PCM and updates the
	// segment state machine. Frames should be FrameDurationMs long; the
	// final frame of a stream may be shorter.
	ProcessFrame(frame []int16) (Decision, error)

	// Reset zeroes all counters and segment state. Use when starting a
	// fresh stream or after discarding the current buffer.
	Reset()
}

// hysteresis is the shared segment state machine. Classifiers feed it one
// speech/silence verdict per frame; it produces the debounced Decision.
type hysteresis struct {
	minSpeechFrames  int
	minSilenceFrames int

	speechFrames  int
	silenceFrames int
	isSpeaking    bool
	totalSamples  int
}

func newHysteresis(cfg Config) hysteresis {
	minSpeech := cfg.MinSpeechDurationMs / cfg.FrameDurationMs
	if minSpeech < 1 {
		minSpeech = 1
	}
	minSilence := cfg.MinSilenceDurationMs / cfg.FrameDurationMs
	if minSilence < 1 {
		minSilence = 1
	}
	return hysteresis{
		minSpeechFrames:  minSpeech,
		minSilenceFrames: minSilence,
	}
}

// observe advances the state machine by one classified frame.
func (h *hysteresis) observe(speechFrame bool, frameLen int) Decision {
	ended := false

	if speechFrame {
		h.speechFrames++
		h.silenceFrames = 0
		if !h.isSpeaking && h.speechFrames >= h.minSpeechFrames {
			h.isSpeaking = true
		}
	} else {
		h.silenceFrames++
		h.speechFrames = 0
		if h.isSpeaking && h.silenceFrames >= h.minSilenceFrames {
			h.isSpeaking = false
			ended = true
		}
	}

	h.totalSamples += frameLen
	return Decision{IsSpeaking: h.isSpeaking, SpeechEnded: ended}
}

func (h *hysteresis) reset() {
	h.speechFrames = 0
	h.silenceFrames = 0
	h.isSpeaking = false
	h.totalSamples = 0
}

// validate rejects configurations the state machine cannot represent.
func validate(cfg Config) error {
	if cfg.FrameSamples() <= 0 {
		return fmt.Errorf("vad: frame of %d ms at %d Hz holds no samples",
			cfg.FrameDurationMs, cfg.SampleRate)
	}
	return nil
}
