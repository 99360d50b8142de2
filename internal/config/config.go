// Package config provides the configuration schema and loader for the
// Auricle interview assistant.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CaptureBackend selects the audio capture implementation.
type CaptureBackend string

const (
	// CaptureParec pipes raw PCM from a parecord subprocess; the device is a
	// PulseAudio source name, typically a monitor of the output sink so the
	// interviewer's voice is captured from system audio.
	CaptureParec CaptureBackend = "parec"

	// CaptureMiniaudio uses the native miniaudio capture device.
	CaptureMiniaudio CaptureBackend = "miniaudio"
)

// IsValid reports whether b is a recognised capture backend.
func (b CaptureBackend) IsValid() bool {
	return b == CaptureParec || b == CaptureMiniaudio
}

// AIBackend selects the answer-generation backend.
type AIBackend string

const (
	// BackendAnthropic uses the Anthropic API.
	BackendAnthropic AIBackend = "anthropic"

	// BackendOllama uses a local Ollama server.
	BackendOllama AIBackend = "ollama"
)

// IsValid reports whether b is a recognised AI backend.
func (b AIBackend) IsValid() bool {
	return b == BackendAnthropic || b == BackendOllama
}

// InterviewMode tunes the answer prompt for a question category.
type InterviewMode string

const (
	ModeGeneral      InterviewMode = "general"
	ModeDSA          InterviewMode = "dsa"
	ModeSystemDesign InterviewMode = "system_design"
	ModeBehavioral   InterviewMode = "behavioral"
)

// IsValid reports whether m is a recognised interview mode.
func (m InterviewMode) IsValid() bool {
	switch m {
	case ModeGeneral, ModeDSA, ModeSystemDesign, ModeBehavioral:
		return true
	}
	return false
}

// Config is the root configuration structure for Auricle.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	STT       STTConfig       `yaml:"stt"`
	AI        AIConfig        `yaml:"ai"`
}

// ServerConfig holds network and logging settings for the viewer server.
type ServerConfig struct {
	// ListenAddr is the TCP address the transcript viewer listens on
	// (e.g., "127.0.0.1:8973"). Empty disables the viewer.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds the capture and framing settings.
type AudioConfig struct {
	// SampleRate is the capture sample rate in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameDurationMs is the VAD frame duration. Default 30.
	FrameDurationMs int `yaml:"frame_duration_ms"`

	// RingCapacitySeconds sizes the raw-audio ring buffer. Default 60.
	RingCapacitySeconds float64 `yaml:"ring_capacity_seconds"`

	// Capture selects and configures the capture backend.
	Capture CaptureConfig `yaml:"capture"`
}

// CaptureConfig selects the audio capture backend.
type CaptureConfig struct {
	// Backend is "parec" or "miniaudio". Default "parec".
	Backend CaptureBackend `yaml:"backend"`

	// Device names the capture device: a PulseAudio source for parec
	// (empty = default source), ignored by miniaudio.
	Device string `yaml:"device"`
}

// VADConfig holds the voice-activity detection parameters.
type VADConfig struct {
	// EnergyThreshold is the normalised RMS threshold for the energy
	// detector. Default 0.01.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// ProbabilityThreshold is the speech-probability threshold for the
	// model detector. Default 0.5.
	ProbabilityThreshold float64 `yaml:"probability_threshold"`

	// MinSpeechDurationMs is the rising-edge debounce. Default 250.
	MinSpeechDurationMs int `yaml:"min_speech_duration_ms"`

	// MinSilenceDurationMs is the falling-edge debounce. Default 500.
	MinSilenceDurationMs int `yaml:"min_silence_duration_ms"`

	// ModelPath points at a Silero VAD ONNX model. Empty uses the energy
	// detector; a missing or unloadable model falls back to it as well.
	ModelPath string `yaml:"model_path"`
}

// SegmenterConfig holds the utterance flush policy, in seconds of audio.
type SegmenterConfig struct {
	// MinAudioLength is the floor below which nothing is flushed. Default 1.0.
	MinAudioLength float64 `yaml:"min_audio_length"`

	// MaxAudioLength is the hard cap on one utterance. Default 30.0.
	MaxAudioLength float64 `yaml:"max_audio_length"`

	// SilenceThreshold flushes a stalled buffer after this much silence.
	// Default 0.8.
	SilenceThreshold float64 `yaml:"silence_threshold"`
}

// STTConfig holds the transcription engine settings.
type STTConfig struct {
	// ModelPath is the whisper.cpp GGML model file. Required.
	ModelPath string `yaml:"model_path"`

	// Language is the transcription language code. Default "en".
	Language string `yaml:"language"`

	// Threads is the CPU thread count per inference. 0 lets whisper pick.
	Threads int `yaml:"threads"`
}

// AIConfig holds the answer-generation settings.
type AIConfig struct {
	// Backend is "anthropic" or "ollama". Empty disables answer generation;
	// the assistant then only emits transcripts.
	Backend AIBackend `yaml:"backend"`

	// APIKey authenticates against the backend. May also come from the
	// backend's conventional environment variable.
	APIKey string `yaml:"api_key"`

	// Model names the model (e.g., "claude-sonnet-4-5", "llama3.1:8b").
	Model string `yaml:"model"`

	// BaseURL overrides the backend's default endpoint. Used mainly to
	// point the ollama backend at a non-local server.
	BaseURL string `yaml:"base_url"`

	// FallbackBackend, when set, is tried after the primary backend fails.
	FallbackBackend AIBackend `yaml:"fallback_backend"`

	// FallbackModel names the model for the fallback backend.
	FallbackModel string `yaml:"fallback_model"`

	// Mode tunes the answer prompt: "general", "dsa", "system_design",
	// or "behavioral". Default "general".
	Mode InterviewMode `yaml:"mode"`

	// MaxContextQuestions bounds how many prior question/answer pairs are
	// kept as conversation context. Default 5.
	MaxContextQuestions int `yaml:"max_context_questions"`
}
