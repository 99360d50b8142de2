// Package silero wraps the Silero VAD ONNX model behind a per-frame speech
// probability scorer, using github.com/yalue/onnxruntime_go for inference.
//
// The model is recurrent: an LSTM state and a short sample context carry
// across calls, so one Model serves exactly one audio stream. Availability
// is probed at construction — a missing model file or an unloadable ONNX
// runtime surfaces as an error from New, letting callers fall back to an
// energy-based detector.
package silero

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// stateSize is the LSTM state shape [2, 1, 128] flattened.
	stateSize = 2 * 1 * 128

	// contextSize16k is the number of trailing samples from the previous
	// frame prepended to each input at 16 kHz (32 at 8 kHz).
	contextSize16k = 64
	contextSize8k  = 32
)

// onnxInit guards process-wide ONNX runtime environment initialisation,
// which must happen exactly once.
var (
	onnxInitMu   sync.Mutex
	onnxInitDone bool
)

// Config holds the model location and audio geometry.
type Config struct {
	// ModelPath is the path to the silero_vad.onnx file.
	ModelPath string

	// SampleRate must be 8000 or 16000; the published model supports no
	// other rates.
	SampleRate int
}

// Model scores audio frames with Silero VAD. Safe for concurrent use, though
// scores are only meaningful when frames from a single stream arrive in
// order.
type Model struct {
	session    *ort.DynamicAdvancedSession
	sampleRate int

	mu      sync.Mutex
	state   []float32 // LSTM h and c states, [2, 1, 128]
	context []float32 // trailing samples of the previous frame
}

// New loads the Silero VAD model. Returns an error when the model file is
// missing, the sample rate is unsupported, or the ONNX runtime shared
// library cannot be initialised.
func New(cfg Config) (*Model, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("silero: model file: %w", err)
	}
	if cfg.SampleRate != 8000 && cfg.SampleRate != 16000 {
		return nil, fmt.Errorf("silero: sample rate must be 8000 or 16000, got %d", cfg.SampleRate)
	}
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("silero: init onnx runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("silero: session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("silero: create session: %w", err)
	}

	contextSize := contextSize16k
	if cfg.SampleRate == 8000 {
		contextSize = contextSize8k
	}

	return &Model{
		session:    session,
		sampleRate: cfg.SampleRate,
		state:      make([]float32, stateSize),
		context:    make([]float32, contextSize),
	}, nil
}

// Score returns the speech probability of one int16 mono frame.
func (m *Model) Score(frame []int16) (float64, error) {
	samples := make([]float32, len(frame))
	for i, s := range frame {
		samples[i] = float32(s) / 32768.0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Input layout is [batch, context + frame]; the context is the tail of
	// the previous frame, giving the model continuity across calls.
	contextSize := len(m.context)
	input := make([]float32, contextSize+len(samples))
	copy(input[:contextSize], m.context)
	copy(input[contextSize:], samples)

	if len(samples) >= contextSize {
		copy(m.context, samples[len(samples)-contextSize:])
	} else {
		copy(m.context, m.context[len(samples):])
		copy(m.context[contextSize-len(samples):], samples)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, fmt.Errorf("silero: input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), m.state)
	if err != nil {
		return 0, fmt.Errorf("silero: state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(m.sampleRate)})
	if err != nil {
		return 0, fmt.Errorf("silero: sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := m.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	probs := outputs[0].(*ort.Tensor[float32]).GetData()
	copy(m.state, outputs[1].(*ort.Tensor[float32]).GetData())

	if len(probs) == 0 {
		return 0, nil
	}
	return float64(probs[0]), nil
}

// Reset zeroes the LSTM state and sample context. Call at segment
// boundaries or when the stream restarts.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.state)
	clear(m.context)
}

// Close releases the ONNX session. The Model must not be used afterwards.
func (m *Model) Close() error {
	return m.session.Destroy()
}

// initRuntime initialises the process-wide ONNX environment once. The shared
// library location may be overridden via ONNXRUNTIME_SHARED_LIBRARY_PATH.
func initRuntime() error {
	onnxInitMu.Lock()
	defer onnxInitMu.Unlock()

	if onnxInitDone {
		return nil
	}
	if path := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); path != "" {
		ort.SetSharedLibraryPath(path)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return err
	}
	onnxInitDone = true
	return nil
}
