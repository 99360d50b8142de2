package vad

import "fmt"

// Scorer produces a per-frame speech probability in [0, 1]. Model-backed
// implementations (Silero VAD) carry recurrent state across frames; Reset
// clears it at segment boundaries.
type Scorer interface {
	Score(frame []int16) (float64, error)
	Reset()
}

// Probability is a [Detector] that classifies frames by comparing a model's
// speech probability against a threshold, preserving the exact hysteresis
// and edge-trigger semantics of the energy detector.
type Probability struct {
	cfg    Config
	scorer Scorer
	hysteresis
}

// Compile-time assertion that Probability satisfies Detector.
var _ Detector = (*Probability)(nil)

// NewProbability creates a model-backed detector around scorer.
func NewProbability(scorer Scorer, cfg Config) (*Probability, error) {
	if scorer == nil {
		return nil, fmt.Errorf("vad: scorer must not be nil")
	}
	cfg = cfg.withDefaults()
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &Probability{cfg: cfg, scorer: scorer, hysteresis: newHysteresis(cfg)}, nil
}

// ProcessFrame implements [Detector].
func (p *Probability) ProcessFrame(frame []int16) (Decision, error) {
	prob, err := p.scorer.Score(frame)
	if err != nil {
		return Decision{}, fmt.Errorf("vad: score frame: %w", err)
	}
	return p.observe(prob > p.cfg.ProbabilityThreshold, len(frame)), nil
}

// Reset implements [Detector]. Also clears the scorer's recurrent state.
func (p *Probability) Reset() {
	p.hysteresis.reset()
	p.scorer.Reset()
}
