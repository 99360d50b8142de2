package vad

import "github.com/auricle-ai/auricle/pkg/audio"

// Energy is an energy-based [Detector]: a frame is speech when its RMS
// energy, normalised to the [-1, 1] float range, exceeds the configured
// threshold. It needs no model assets and is the universal fallback.
type Energy struct {
	cfg Config
	hysteresis
}

// Compile-time assertion that Energy satisfies Detector.
var _ Detector = (*Energy)(nil)

// NewEnergy creates an energy detector. Zero config fields take package
// defaults.
func NewEnergy(cfg Config) (*Energy, error) {
	cfg = cfg.withDefaults()
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &Energy{cfg: cfg, hysteresis: newHysteresis(cfg)}, nil
}

// ProcessFrame implements [Detector].
func (e *Energy) ProcessFrame(frame []int16) (Decision, error) {
	speech := audio.RMS(frame) > e.cfg.EnergyThreshold
	return e.observe(speech, len(frame)), nil
}

// Reset implements [Detector].
func (e *Energy) Reset() {
	e.hysteresis.reset()
}
