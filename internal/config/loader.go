package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.FrameDurationMs == 0 {
		cfg.Audio.FrameDurationMs = 30
	}
	if cfg.Audio.RingCapacitySeconds == 0 {
		cfg.Audio.RingCapacitySeconds = 60
	}
	if cfg.Audio.Capture.Backend == "" {
		cfg.Audio.Capture.Backend = CaptureParec
	}
	if cfg.VAD.EnergyThreshold == 0 {
		cfg.VAD.EnergyThreshold = 0.01
	}
	if cfg.VAD.ProbabilityThreshold == 0 {
		cfg.VAD.ProbabilityThreshold = 0.5
	}
	if cfg.VAD.MinSpeechDurationMs == 0 {
		cfg.VAD.MinSpeechDurationMs = 250
	}
	if cfg.VAD.MinSilenceDurationMs == 0 {
		cfg.VAD.MinSilenceDurationMs = 500
	}
	if cfg.Segmenter.MinAudioLength == 0 {
		cfg.Segmenter.MinAudioLength = 1.0
	}
	if cfg.Segmenter.MaxAudioLength == 0 {
		cfg.Segmenter.MaxAudioLength = 30.0
	}
	if cfg.Segmenter.SilenceThreshold == 0 {
		cfg.Segmenter.SilenceThreshold = 0.8
	}
	if cfg.STT.Language == "" {
		cfg.STT.Language = "en"
	}
	if cfg.AI.Mode == "" {
		cfg.AI.Mode = ModeGeneral
	}
	if cfg.AI.MaxContextQuestions == 0 {
		cfg.AI.MaxContextQuestions = 5
	}
	if cfg.AI.Backend == BackendAnthropic && cfg.AI.APIKey == "" {
		cfg.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameDurationMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_duration_ms %d must be positive", cfg.Audio.FrameDurationMs))
	}
	if cfg.Audio.Capture.Backend != "" && !cfg.Audio.Capture.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.capture.backend %q is invalid; valid values: parec, miniaudio", cfg.Audio.Capture.Backend))
	}

	if cfg.VAD.EnergyThreshold < 0 || cfg.VAD.EnergyThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.energy_threshold %.3f is out of range [0, 1]", cfg.VAD.EnergyThreshold))
	}
	if cfg.VAD.ProbabilityThreshold < 0 || cfg.VAD.ProbabilityThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.probability_threshold %.3f is out of range [0, 1]", cfg.VAD.ProbabilityThreshold))
	}

	if cfg.Segmenter.MinAudioLength >= cfg.Segmenter.MaxAudioLength {
		errs = append(errs, fmt.Errorf("segmenter.min_audio_length %.2f must be below max_audio_length %.2f",
			cfg.Segmenter.MinAudioLength, cfg.Segmenter.MaxAudioLength))
	}

	if cfg.STT.ModelPath == "" {
		errs = append(errs, errors.New("stt.model_path is required"))
	}

	if cfg.AI.Backend != "" && !cfg.AI.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("ai.backend %q is invalid; valid values: anthropic, ollama", cfg.AI.Backend))
	}
	if cfg.AI.FallbackBackend != "" && !cfg.AI.FallbackBackend.IsValid() {
		errs = append(errs, fmt.Errorf("ai.fallback_backend %q is invalid; valid values: anthropic, ollama", cfg.AI.FallbackBackend))
	}
	if cfg.AI.Mode != "" && !cfg.AI.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("ai.mode %q is invalid; valid values: general, dsa, system_design, behavioral", cfg.AI.Mode))
	}
	if cfg.AI.Backend != "" && cfg.AI.Model == "" {
		errs = append(errs, fmt.Errorf("ai.model is required when ai.backend is %q", cfg.AI.Backend))
	}
	if cfg.AI.Backend == BackendAnthropic && cfg.AI.APIKey == "" {
		errs = append(errs, errors.New("ai.api_key is required for the anthropic backend (or set ANTHROPIC_API_KEY)"))
	}

	if cfg.AI.Backend == "" {
		slog.Warn("ai.backend is not configured; answers will not be generated, only transcripts")
	}

	return errors.Join(errs...)
}
