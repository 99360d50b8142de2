// Package segment implements the utterance accumulator: it owns the
// in-progress speech buffer and applies the flush policy that decides when a
// buffered utterance is complete enough to hand to the transcription engine.
//
// The accumulator is fed one VAD-classified frame at a time and reports a
// flush trigger when a policy condition fires. It never transcribes itself;
// the pipeline controller calls Flush, resets the detector, and dispatches
// the blob. State is owned by a single logical stream processor; the pipeline
// serialises access.
package segment

import "fmt"

// Default flush-policy parameters, in seconds of audio.
const (
	DefaultMinAudioLength   = 1.0
	DefaultMaxAudioLength   = 30.0
	DefaultSilenceThreshold = 0.8
)

// FlushReason identifies which policy condition triggered a flush.
type FlushReason int

const (
	// FlushNone means no condition fired for this frame.
	FlushNone FlushReason = iota

	// FlushSpeechEnded is the natural end of an utterance: the VAD reported
	// its falling edge on this frame.
	FlushSpeechEnded

	// FlushSilence fires when accumulated silence exceeds the threshold while
	// audio is buffered, covering utterances the VAD never closed.
	FlushSilence

	// FlushMaxDuration is the hard cap on continuous speech, bounding both
	// memory and transcript latency.
	FlushMaxDuration

	// FlushFinal is the stop-time flush of whatever remains buffered, so a
	// trailing partial utterance is not silently dropped.
	FlushFinal
)

// String returns a stable label for metrics and logging.
func (r FlushReason) String() string {
	switch r {
	case FlushNone:
		return "none"
	case FlushSpeechEnded:
		return "speech_ended"
	case FlushSilence:
		return "silence_timeout"
	case FlushMaxDuration:
		return "max_duration"
	case FlushFinal:
		return "final"
	default:
		return fmt.Sprintf("FlushReason(%d)", int(r))
	}
}

// Config holds the flush-policy parameters. Durations are seconds of audio,
// not wall time.
type Config struct {
	// SampleRate converts buffered sample counts into durations.
	SampleRate int

	// MinAudioLength is the floor below which no trigger flushes, so noise
	// blips never reach the engine.
	MinAudioLength float64

	// MaxAudioLength is the cap at which continuous speech is flushed
	// regardless of VAD state.
	MaxAudioLength float64

	// SilenceThreshold is the accumulated-silence duration that flushes a
	// stalled non-empty buffer.
	SilenceThreshold float64
}

func (c Config) withDefaults() Config {
	if c.MinAudioLength <= 0 {
		c.MinAudioLength = DefaultMinAudioLength
	}
	if c.MaxAudioLength <= 0 {
		c.MaxAudioLength = DefaultMaxAudioLength
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = DefaultSilenceThreshold
	}
	return c
}

// Accumulator owns the current not-yet-transcribed utterance.
type Accumulator struct {
	cfg Config

	buffer     []int16
	silenceSec float64
}

// New creates an Accumulator. Zero duration fields take package defaults;
// the sample rate is required.
func New(cfg Config) (*Accumulator, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("segment: sample rate %d must be positive", cfg.SampleRate)
	}
	cfg = cfg.withDefaults()
	if cfg.MinAudioLength >= cfg.MaxAudioLength {
		return nil, fmt.Errorf("segment: min audio length %.2fs must be below max %.2fs",
			cfg.MinAudioLength, cfg.MaxAudioLength)
	}
	return &Accumulator{cfg: cfg}, nil
}

// Observe feeds one classified frame into the buffer and evaluates the flush
// policy. Speech frames are always buffered; silence frames are buffered only
// once an utterance is underway, so long pauses before speech never grow the
// segment. The returned reason is FlushNone unless a trigger fired, in which
// case the caller must Flush (or Discard) before the next Observe.
//
// Triggers are checked in priority order and all require the buffered audio
// to be at least MinAudioLength long:
//  1. the VAD's speech-ended edge,
//  2. accumulated silence beyond SilenceThreshold,
//  3. buffered audio beyond MaxAudioLength.
func (a *Accumulator) Observe(frame []int16, isSpeaking, speechEnded bool) FlushReason {
	frameSec := float64(len(frame)) / float64(a.cfg.SampleRate)

	if isSpeaking {
		a.buffer = append(a.buffer, frame...)
		a.silenceSec = 0
	} else {
		a.silenceSec += frameSec
		if len(a.buffer) > 0 {
			a.buffer = append(a.buffer, frame...)
		}
	}

	if a.Duration() < a.cfg.MinAudioLength {
		return FlushNone
	}
	switch {
	case speechEnded:
		return FlushSpeechEnded
	case len(a.buffer) > 0 && a.silenceSec >= a.cfg.SilenceThreshold:
		return FlushSilence
	case a.Duration() >= a.cfg.MaxAudioLength:
		return FlushMaxDuration
	}
	return FlushNone
}

// Flush returns the buffered utterance as one contiguous blob and atomically
// resets the buffer and silence accounting. The caller must also reset the
// VAD so the next utterance starts from a clean state machine. Returns nil
// when nothing is buffered.
func (a *Accumulator) Flush() []int16 {
	if len(a.buffer) == 0 {
		a.silenceSec = 0
		return nil
	}
	blob := a.buffer
	a.buffer = nil
	a.silenceSec = 0
	return blob
}

// Discard drops the in-progress utterance without transcribing it.
func (a *Accumulator) Discard() {
	a.buffer = nil
	a.silenceSec = 0
}

// Duration returns the buffered audio length in seconds.
func (a *Accumulator) Duration() float64 {
	return float64(len(a.buffer)) / float64(a.cfg.SampleRate)
}

// Len returns the number of buffered samples.
func (a *Accumulator) Len() int {
	return len(a.buffer)
}
