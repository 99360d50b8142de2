package segment

import "testing"

const testRate = 16000

// frame returns one 30 ms frame (480 samples at 16 kHz) of the given value.
func frame(v int16) []int16 {
	f := make([]int16, 480)
	for i := range f {
		f[i] = v
	}
	return f
}

func newAccumulator(t *testing.T, cfg Config) *Accumulator {
	t.Helper()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = testRate
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestObserve_SpeechEndedFlushesAtFloor(t *testing.T) {
	t.Parallel()
	a := newAccumulator(t, Config{MinAudioLength: 1.0})

	// 34 frames x 30 ms = 1.02 s of speech, just past the floor.
	for i := range 34 {
		if r := a.Observe(frame(1000), true, false); r != FlushNone {
			t.Fatalf("Observe returned %v at speech frame %d, want FlushNone", r, i)
		}
	}
	r := a.Observe(frame(0), false, true)
	if r != FlushSpeechEnded {
		t.Fatalf("Observe = %v on speech-ended frame, want FlushSpeechEnded", r)
	}

	blob := a.Flush()
	if len(blob) != 35*480 {
		t.Errorf("Flush returned %d samples, want %d", len(blob), 35*480)
	}
	if a.Len() != 0 {
		t.Errorf("Len = %d after Flush, want 0", a.Len())
	}
}

func TestObserve_MinLengthFloorBlocksAllTriggers(t *testing.T) {
	t.Parallel()
	a := newAccumulator(t, Config{MinAudioLength: 1.0, SilenceThreshold: 0.3})

	// 10 frames = 0.3 s of speech, well under the floor.
	for range 10 {
		a.Observe(frame(1000), true, false)
	}

	// Neither the speech-ended edge nor a long run of silence may flush a
	// sub-floor utterance.
	if r := a.Observe(frame(0), false, true); r != FlushNone {
		t.Errorf("Observe = %v on speech-ended below floor, want FlushNone", r)
	}
	for i := range 20 {
		if r := a.Observe(frame(0), false, false); r == FlushSilence {
			t.Fatalf("FlushSilence fired at silence frame %d below floor", i)
		}
	}
	if a.Len() == 0 {
		t.Error("buffer was cleared without an explicit Flush")
	}
}

func TestObserve_SilenceTimeoutFlushesStalledBuffer(t *testing.T) {
	t.Parallel()
	a := newAccumulator(t, Config{MinAudioLength: 0.5, SilenceThreshold: 0.8})

	// 1.2 s of speech, then silence with no speech-ended edge.
	for range 40 {
		a.Observe(frame(1000), true, false)
	}

	var fired FlushReason
	var firedAt int
	for i := range 40 {
		if r := a.Observe(frame(0), false, false); r != FlushNone {
			fired, firedAt = r, i
			break
		}
	}
	if fired != FlushSilence {
		t.Fatalf("trigger = %v, want FlushSilence", fired)
	}
	// 0.8 s / 30 ms = 26.67, so the 27th silence frame crosses the threshold.
	if firedAt != 26 {
		t.Errorf("FlushSilence fired at silence frame %d, want 26", firedAt)
	}
}

func TestObserve_SilenceAccumulationResetsOnSpeech(t *testing.T) {
	t.Parallel()
	a := newAccumulator(t, Config{MinAudioLength: 0.5, SilenceThreshold: 0.8})

	for range 40 {
		a.Observe(frame(1000), true, false)
	}
	// 20 silence frames (0.6 s) then speech again: the accumulator must not
	// carry the silence across the speech frame.
	for range 20 {
		if r := a.Observe(frame(0), false, false); r != FlushNone {
			t.Fatalf("unexpected trigger %v before threshold", r)
		}
	}
	a.Observe(frame(1000), true, false)
	for i := range 20 {
		if r := a.Observe(frame(0), false, false); r != FlushNone {
			t.Fatalf("trigger %v at post-reset silence frame %d, want none before 26", r, i)
		}
	}
}

func TestObserve_MaxDurationCapsUnbrokenSpeech(t *testing.T) {
	t.Parallel()
	a := newAccumulator(t, Config{MinAudioLength: 0.5, MaxAudioLength: 2.0})

	// Continuous speech, never a falling edge. 2.0 s / 30 ms = 66.67 frames.
	var fired FlushReason
	var firedAt int
	for i := range 100 {
		if r := a.Observe(frame(1000), true, false); r != FlushNone {
			fired, firedAt = r, i
			break
		}
	}
	if fired != FlushMaxDuration {
		t.Fatalf("trigger = %v, want FlushMaxDuration", fired)
	}
	if firedAt != 66 {
		t.Errorf("FlushMaxDuration fired at frame %d, want 66", firedAt)
	}
	if got := a.Duration(); got < 2.0 {
		t.Errorf("Duration = %.3fs at cap flush, want >= 2.0s", got)
	}
}

func TestObserve_SpeechEndedOutranksMaxDuration(t *testing.T) {
	t.Parallel()
	a := newAccumulator(t, Config{MinAudioLength: 0.5, MaxAudioLength: 2.0})

	// 66 frames = 1.98 s, just under the cap; the 67th frame crosses it with
	// the falling edge arriving at the same time. The natural end-of-utterance
	// reason must win.
	for i := range 66 {
		if r := a.Observe(frame(1000), true, false); r != FlushNone {
			t.Fatalf("unexpected trigger %v at frame %d", r, i)
		}
	}
	if r := a.Observe(frame(0), false, true); r != FlushSpeechEnded {
		t.Errorf("Observe = %v, want FlushSpeechEnded to outrank FlushMaxDuration", r)
	}
}

func TestObserve_SpeechOnlyRetentionWhenIdle(t *testing.T) {
	t.Parallel()
	a := newAccumulator(t, Config{})

	// Minutes of silence before anyone speaks must not grow the segment.
	for range 2000 {
		if r := a.Observe(frame(0), false, false); r != FlushNone {
			t.Fatalf("unexpected trigger %v with empty buffer", r)
		}
	}
	if a.Len() != 0 {
		t.Errorf("Len = %d after pure silence, want 0", a.Len())
	}
}

func TestObserve_TrailingSilenceJoinsUtterance(t *testing.T) {
	t.Parallel()
	a := newAccumulator(t, Config{MinAudioLength: 0.5})

	for range 40 {
		a.Observe(frame(1000), true, false)
	}
	a.Observe(frame(0), false, false)

	// Silence inside an utterance is kept: the engine needs the trailing
	// context to place word boundaries.
	if got := a.Len(); got != 41*480 {
		t.Errorf("Len = %d after trailing silence frame, want %d", got, 41*480)
	}
}

func TestFlush_EmptyBufferReturnsNil(t *testing.T) {
	t.Parallel()
	a := newAccumulator(t, Config{})
	if blob := a.Flush(); blob != nil {
		t.Errorf("Flush on empty accumulator = %d samples, want nil", len(blob))
	}
}

func TestDiscard_DropsBufferAndSilence(t *testing.T) {
	t.Parallel()
	a := newAccumulator(t, Config{MinAudioLength: 0.5, SilenceThreshold: 0.8})

	for range 40 {
		a.Observe(frame(1000), true, false)
	}
	for range 20 {
		a.Observe(frame(0), false, false)
	}
	a.Discard()

	if a.Len() != 0 {
		t.Errorf("Len = %d after Discard, want 0", a.Len())
	}
	// Silence accounting restarts too: frames after Discard with an empty
	// buffer can never trigger a flush.
	for i := range 40 {
		if r := a.Observe(frame(0), false, false); r != FlushNone {
			t.Fatalf("trigger %v at frame %d after Discard", r, i)
		}
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{SampleRate: 0}); err == nil {
		t.Error("New accepted zero sample rate")
	}
	if _, err := New(Config{SampleRate: testRate, MinAudioLength: 5, MaxAudioLength: 2}); err == nil {
		t.Error("New accepted min length above max length")
	}
}

func TestFlushReason_String(t *testing.T) {
	t.Parallel()
	want := map[FlushReason]string{
		FlushNone:        "none",
		FlushSpeechEnded: "speech_ended",
		FlushSilence:     "silence_timeout",
		FlushMaxDuration: "max_duration",
		FlushFinal:       "final",
	}
	for r, s := range want {
		if r.String() != s {
			t.Errorf("FlushReason(%d).String() = %q, want %q", int(r), r.String(), s)
		}
	}
}
