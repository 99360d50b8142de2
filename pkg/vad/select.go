package vad

import (
	"log/slog"

	"github.com/auricle-ai/auricle/pkg/vad/silero"
)

// Compile-time assertion that the silero model satisfies Scorer.
var _ Scorer = (*silero.Model)(nil)

// Select returns the best available [Detector] for cfg. When modelPath names
// a Silero VAD ONNX model and the ONNX runtime can load it, the returned
// detector is model-backed; otherwise Select logs the reason and falls back
// to the energy detector. The probe happens exactly once, here — never per
// frame — and the fallback is transparent: Select only fails if even the
// energy detector cannot be constructed (invalid frame geometry).
func Select(cfg Config, modelPath string) (Detector, error) {
	if modelPath != "" {
		model, err := silero.New(silero.Config{
			ModelPath:  modelPath,
			SampleRate: cfg.withDefaults().SampleRate,
		})
		if err == nil {
			slog.Info("using model-based voice activity detector", "model", modelPath)
			return NewProbability(model, cfg)
		}
		slog.Warn("model VAD unavailable, falling back to energy detector",
			"model", modelPath, "err", err)
	}
	return NewEnergy(cfg)
}
