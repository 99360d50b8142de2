// Package whisper implements stt.Engine backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/stt"
)

// whisper.cpp models are trained on 16 kHz mono audio; Transcribe resamples
// anything else to this rate.
const modelSampleRate = 16000

const defaultLanguage = "en"

// Compile-time assertion that Engine satisfies stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Engine is an stt.Engine using whisper.cpp Go bindings (CGO), eliminating
// any server round-trip. The model is loaded once on the first Load call and
// shared across all subsequent inferences; each inference gets a fresh
// whisper context because contexts are not thread-safe while the model is.
type Engine struct {
	modelPath string
	language  string
	threads   int

	mu     sync.Mutex
	model  whisperlib.Model
	closed bool
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the language code for transcription (e.g., "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithThreads sets the number of CPU threads whisper.cpp uses per inference.
// Zero (the default) lets the bindings pick.
func WithThreads(n int) Option {
	return func(e *Engine) { e.threads = n }
}

// New creates an Engine for the model at modelPath. The model file is not
// touched until Load; construction never fails on a missing model, so the
// pipeline can surface the failure at start time instead.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	e := &Engine{
		modelPath: modelPath,
		language:  defaultLanguage,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Load implements [stt.Engine]. The first successful call loads the model
// from disk; later calls are no-ops. A failed load can be retried.
func (e *Engine) Load(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errors.New("whisper: engine is closed")
	}
	if e.model != nil {
		return nil
	}

	start := time.Now()
	model, err := whisperlib.New(e.modelPath)
	if err != nil {
		return fmt.Errorf("whisper: load model %q: %w", e.modelPath, err)
	}
	e.model = model
	slog.Info("whisper model loaded",
		"model", e.modelPath, "took", time.Since(start))
	return nil
}

// Transcribe implements [stt.Engine]. It resamples the segment to the model
// rate when needed, runs whisper.cpp inference on a fresh context, and
// collects the recognised segments. Returns (nil, nil) when the model emits
// no text for the segment.
func (e *Engine) Transcribe(ctx context.Context, samples []int16, sampleRate int) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if err := e.Load(ctx); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}

	if sampleRate != modelSampleRate {
		samples = audio.ResampleMono(samples, sampleRate, modelSampleRate)
	}
	pcm := audio.ToFloat32(samples)

	e.mu.Lock()
	model := e.model
	e.mu.Unlock()
	if model == nil {
		return nil, errors.New("whisper: engine is closed")
	}

	wctx, err := model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		slog.Warn("whisper: failed to set language, using default",
			"language", e.language, "error", err)
	}
	if e.threads > 0 {
		wctx.SetThreads(uint(e.threads))
	}

	start := time.Now()
	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts    []string
		segments []stt.Segment
	)
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		segments = append(segments, stt.Segment{
			Text:       text,
			Start:      seg.Start,
			End:        seg.End,
			Confidence: meanTokenProbability(seg.Tokens),
		})
	}
	if len(parts) == 0 {
		return nil, nil
	}

	return &stt.Result{
		Text:     strings.Join(parts, " "),
		Segments: segments,
		Language: e.language,
		Duration: time.Since(start),
	}, nil
}

// Close implements [stt.Engine] and releases the whisper model.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	if e.model == nil {
		return nil
	}
	err := e.model.Close()
	e.model = nil
	return err
}

// meanTokenProbability averages per-token probabilities into a segment
// confidence. whisper.cpp reports probability per token, not per segment.
func meanTokenProbability(tokens []whisperlib.Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += float64(t.P)
	}
	return sum / float64(len(tokens))
}
