package vad_test

import (
	"errors"
	"math"
	"testing"

	"github.com/auricle-ai/auricle/pkg/vad"
)

// testConfig matches the reference scenario: 16 kHz, 30 ms frames
// (480 samples), 250 ms speech debounce (8 frames), 500 ms silence
// debounce (16 frames).
func testConfig() vad.Config {
	return vad.Config{
		SampleRate:           16000,
		FrameDurationMs:      30,
		EnergyThreshold:      0.01,
		MinSpeechDurationMs:  250,
		MinSilenceDurationMs: 500,
	}
}

// sineFrame returns one frame of a 440 Hz sine at the given amplitude
// (normalised scale, 1.0 = full int16 range).
func sineFrame(cfg vad.Config, amplitude float64) []int16 {
	n := cfg.FrameSamples()
	out := make([]int16, n)
	for i := range out {
		v := amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(cfg.SampleRate))
		out[i] = int16(v * 32767)
	}
	return out
}

func silentFrame(cfg vad.Config) []int16 {
	return make([]int16, cfg.FrameSamples())
}

func minSpeechFrames(cfg vad.Config) int  { return cfg.MinSpeechDurationMs / cfg.FrameDurationMs }
func minSilenceFrames(cfg vad.Config) int { return cfg.MinSilenceDurationMs / cfg.FrameDurationMs }

func TestEnergy_RisingEdgeRequiresSustainedSpeech(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	d, err := vad.NewEnergy(cfg)
	if err != nil {
		t.Fatal(err)
	}

	speech := sineFrame(cfg, 0.5)

	// One frame short of the debounce: never speaking.
	for i := range minSpeechFrames(cfg) - 1 {
		dec, err := d.ProcessFrame(speech)
		if err != nil {
			t.Fatal(err)
		}
		if dec.IsSpeaking {
			t.Fatalf("IsSpeaking = true at frame %d, before debounce threshold", i)
		}
	}

	// A silence frame resets the speech counter entirely.
	if dec, _ := d.ProcessFrame(silentFrame(cfg)); dec.IsSpeaking {
		t.Fatal("IsSpeaking = true after interrupting silence frame")
	}
	for i := range minSpeechFrames(cfg) - 1 {
		dec, _ := d.ProcessFrame(speech)
		if dec.IsSpeaking {
			t.Fatalf("IsSpeaking = true at frame %d after counter reset", i)
		}
	}

	// The frame that completes the debounce flips the state.
	dec, _ := d.ProcessFrame(speech)
	if !dec.IsSpeaking {
		t.Fatal("IsSpeaking = false on the frame completing the speech debounce")
	}
}

func TestEnergy_FallingEdgeIsEdgeTriggered(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	d, err := vad.NewEnergy(cfg)
	if err != nil {
		t.Fatal(err)
	}

	speech := sineFrame(cfg, 0.5)
	silence := silentFrame(cfg)

	for range minSpeechFrames(cfg) {
		if _, err := d.ProcessFrame(speech); err != nil {
			t.Fatal(err)
		}
	}

	endedCount := 0
	for i := range minSilenceFrames(cfg) + 10 {
		dec, _ := d.ProcessFrame(silence)
		if dec.SpeechEnded {
			endedCount++
			if i != minSilenceFrames(cfg)-1 {
				t.Errorf("SpeechEnded fired at silence frame %d, want %d", i, minSilenceFrames(cfg)-1)
			}
			if dec.IsSpeaking {
				t.Error("IsSpeaking = true on the SpeechEnded frame")
			}
		}
	}
	if endedCount != 1 {
		t.Errorf("SpeechEnded fired %d times, want exactly 1", endedCount)
	}
}

func TestEnergy_NoFallingEdgeWithoutRisingEdge(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	d, err := vad.NewEnergy(cfg)
	if err != nil {
		t.Fatal(err)
	}

	for i := range minSilenceFrames(cfg) * 3 {
		dec, _ := d.ProcessFrame(silentFrame(cfg))
		if dec.SpeechEnded {
			t.Fatalf("SpeechEnded fired at frame %d with no prior speech", i)
		}
	}
}

// TestEnergy_ReferenceScenario is the end-to-end segmentation scenario:
// 10 speech frames, 20 silence frames, 10 more speech frames.
func TestEnergy_ReferenceScenario(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	d, err := vad.NewEnergy(cfg)
	if err != nil {
		t.Fatal(err)
	}

	speech := sineFrame(cfg, 0.5)
	silence := silentFrame(cfg)

	type step struct {
		frame []int16
		n     int
	}
	var decisions []vad.Decision
	for _, s := range []step{{speech, 10}, {silence, 20}, {speech, 10}} {
		for range s.n {
			dec, err := d.ProcessFrame(s.frame)
			if err != nil {
				t.Fatal(err)
			}
			decisions = append(decisions, dec)
		}
	}

	// Rising edge on the 8th speech frame (index 7).
	if decisions[6].IsSpeaking {
		t.Error("IsSpeaking = true at frame 7, one frame early")
	}
	if !decisions[7].IsSpeaking {
		t.Error("IsSpeaking = false at frame 8, want rising edge here")
	}

	// Falling edge after 16 silence frames: frame index 10+16-1 = 25.
	var endedAt []int
	for i, dec := range decisions {
		if dec.SpeechEnded {
			endedAt = append(endedAt, i)
		}
	}
	if len(endedAt) != 1 || endedAt[0] != 25 {
		t.Errorf("SpeechEnded fired at frames %v, want exactly [25]", endedAt)
	}

	// Second speech run triggers a new rising edge.
	if !decisions[len(decisions)-1].IsSpeaking {
		t.Error("IsSpeaking = false at end of second speech run")
	}
}

func TestEnergy_Reset(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	d, err := vad.NewEnergy(cfg)
	if err != nil {
		t.Fatal(err)
	}

	speech := sineFrame(cfg, 0.5)
	for range minSpeechFrames(cfg) {
		_, _ = d.ProcessFrame(speech)
	}
	d.Reset()

	dec, _ := d.ProcessFrame(speech)
	if dec.IsSpeaking {
		t.Error("IsSpeaking = true on first frame after Reset")
	}
}

// scriptedScorer returns canned probabilities in sequence.
type scriptedScorer struct {
	probs  []float64
	next   int
	err    error
	resets int
}

func (s *scriptedScorer) Score(_ []int16) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.next >= len(s.probs) {
		return 0, nil
	}
	p := s.probs[s.next]
	s.next++
	return p, nil
}

func (s *scriptedScorer) Reset() { s.resets++ }

func TestProbability_SameHysteresisAsEnergy(t *testing.T) {
	t.Parallel()
	cfg := testConfig()

	// 10 speech-probability frames, 20 silence, 10 speech — mirrors the
	// reference scenario through the model path.
	var probs []float64
	for range 10 {
		probs = append(probs, 0.9)
	}
	for range 20 {
		probs = append(probs, 0.1)
	}
	for range 10 {
		probs = append(probs, 0.9)
	}

	scorer := &scriptedScorer{probs: probs}
	d, err := vad.NewProbability(scorer, cfg)
	if err != nil {
		t.Fatal(err)
	}

	frame := silentFrame(cfg) // samples are irrelevant to the scripted scorer
	var endedAt []int
	for i := range probs {
		dec, err := d.ProcessFrame(frame)
		if err != nil {
			t.Fatal(err)
		}
		if dec.SpeechEnded {
			endedAt = append(endedAt, i)
		}
		if i == 7 && !dec.IsSpeaking {
			t.Error("IsSpeaking = false at frame 8")
		}
	}
	if len(endedAt) != 1 || endedAt[0] != 25 {
		t.Errorf("SpeechEnded fired at frames %v, want exactly [25]", endedAt)
	}
}

func TestProbability_ScorerErrorPropagates(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("model exploded")
	d, err := vad.NewProbability(&scriptedScorer{err: wantErr}, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.ProcessFrame(make([]int16, 480)); !errors.Is(err, wantErr) {
		t.Errorf("ProcessFrame error = %v, want wrapped %v", err, wantErr)
	}
}

func TestProbability_ResetClearsScorerState(t *testing.T) {
	t.Parallel()
	scorer := &scriptedScorer{}
	d, err := vad.NewProbability(scorer, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	d.Reset()
	if scorer.resets != 1 {
		t.Errorf("scorer resets = %d, want 1", scorer.resets)
	}
}

func TestSelect_FallsBackToEnergyWithoutModel(t *testing.T) {
	t.Parallel()
	d, err := vad.Select(testConfig(), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*vad.Energy); !ok {
		t.Errorf("Select with no model returned %T, want *vad.Energy", d)
	}
}

func TestSelect_FallsBackOnMissingModelFile(t *testing.T) {
	t.Parallel()
	d, err := vad.Select(testConfig(), "/definitely/not/here/silero_vad.onnx")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*vad.Energy); !ok {
		t.Errorf("Select with missing model returned %T, want *vad.Energy", d)
	}
}
