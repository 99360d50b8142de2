// Package app wires all Auricle subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects capture,
// voice activity detection, transcription, answer generation, and the viewer
// server; Run executes until the context is cancelled; Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithEngine, WithProvider, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/auricle-ai/auricle/internal/answer"
	"github.com/auricle-ai/auricle/internal/bus"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/pipeline"
	"github.com/auricle-ai/auricle/internal/resilience"
	"github.com/auricle-ai/auricle/internal/segment"
	"github.com/auricle-ai/auricle/internal/viewer"
	"github.com/auricle-ai/auricle/pkg/audio"
	audiomalgo "github.com/auricle-ai/auricle/pkg/audio/malgo"
	"github.com/auricle-ai/auricle/pkg/audio/parec"
	"github.com/auricle-ai/auricle/pkg/llm"
	"github.com/auricle-ai/auricle/pkg/llm/anyllm"
	"github.com/auricle-ai/auricle/pkg/stt"
	"github.com/auricle-ai/auricle/pkg/stt/whisper"
	"github.com/auricle-ai/auricle/pkg/vad"
)

// App owns all subsystem lifetimes and orchestrates the capture → transcript
// → answer pipeline.
type App struct {
	cfg *config.Config

	events  *bus.Bus
	metrics *observe.Metrics

	source   audio.Source
	detector vad.Detector
	engine   stt.Engine
	provider llm.Provider

	controller *pipeline.Controller
	assistant  *answer.Assistant
	server     *viewer.Server

	// closers are called in reverse order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects an audio source instead of creating one from config.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithDetector injects a voice activity detector instead of selecting one
// from config.
func WithDetector(d vad.Detector) Option {
	return func(a *App) { a.detector = d }
}

// WithEngine injects a transcription engine instead of creating a whisper
// engine from config.
func WithEngine(e stt.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithProvider injects an answer backend instead of creating one from config.
func WithProvider(p llm.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithBus injects an event bus instead of creating one.
func WithBus(b *bus.Bus) Option {
	return func(a *App) { a.events = b }
}

// WithMetrics injects a metrics recorder instead of using the default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all construction synchronously but defers model loading and
// audio capture to Run, so a misconfigured model path fails at startup
// rather than at construction.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Observability ─────────────────────────────────────────────────
	if a.metrics == nil {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
		if err != nil {
			return nil, fmt.Errorf("app: init metrics provider: %w", err)
		}
		a.closers = append(a.closers, shutdown)
		a.metrics = observe.DefaultMetrics()
	}

	// ── 2. Event bus ─────────────────────────────────────────────────────
	if a.events == nil {
		a.events = bus.New(slog.Default())
		a.closers = append(a.closers, func(context.Context) error {
			a.events.Close()
			return nil
		})
	}

	// ── 3. Audio capture ─────────────────────────────────────────────────
	if err := a.initSource(); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	// ── 4. Voice activity detection ──────────────────────────────────────
	if err := a.initDetector(); err != nil {
		return nil, fmt.Errorf("app: init vad: %w", err)
	}

	// ── 5. Transcription engine ──────────────────────────────────────────
	if err := a.initEngine(); err != nil {
		return nil, fmt.Errorf("app: init stt: %w", err)
	}

	// ── 6. Answer backend ────────────────────────────────────────────────
	if err := a.initProvider(); err != nil {
		return nil, fmt.Errorf("app: init llm: %w", err)
	}

	// ── 7. Assistant ─────────────────────────────────────────────────────
	// Without an answer backend the app still transcribes; transcripts go
	// straight to the bus instead of through the assistant.
	onTranscript := func(t pipeline.Transcript) {
		a.events.Publish(bus.KindTranscript, t)
	}
	if a.provider != nil {
		a.assistant = answer.New(a.provider, a.events,
			answer.WithMode(cfg.AI.Mode),
			answer.WithMaxContextQuestions(cfg.AI.MaxContextQuestions),
			answer.WithMetrics(a.metrics),
		)
		onTranscript = a.assistant.HandleTranscript
	}

	// ── 8. Streaming pipeline ────────────────────────────────────────────
	controller, err := pipeline.New(a.source, a.detector, a.engine,
		pipeline.Config{
			SampleRate:          cfg.Audio.SampleRate,
			FrameDurationMs:     cfg.Audio.FrameDurationMs,
			RingCapacitySeconds: cfg.Audio.RingCapacitySeconds,
		},
		segment.Config{
			SampleRate:       cfg.Audio.SampleRate,
			MinAudioLength:   cfg.Segmenter.MinAudioLength,
			MaxAudioLength:   cfg.Segmenter.MaxAudioLength,
			SilenceThreshold: cfg.Segmenter.SilenceThreshold,
		},
		pipeline.WithTranscriptHandler(onTranscript),
		pipeline.WithErrorHandler(func(err error) {
			a.events.Publish(bus.KindError, err)
		}),
		pipeline.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.controller = controller

	// ── 9. Viewer server ─────────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		a.server = viewer.New(cfg.Server.ListenAddr, a.events,
			viewer.WithMetrics(a.metrics),
		)
	} else {
		slog.Info("viewer disabled, no listen address configured")
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSource creates the configured capture backend unless one was injected.
func (a *App) initSource() error {
	if a.source != nil {
		return nil
	}

	switch a.cfg.Audio.Capture.Backend {
	case config.CaptureParec:
		src, err := parec.New(a.cfg.Audio.Capture.Device, a.cfg.Audio.SampleRate)
		if err != nil {
			return err
		}
		a.source = src
	case config.CaptureMiniaudio:
		if a.cfg.Audio.Capture.Device != "" {
			slog.Warn("miniaudio capture ignores audio.capture.device, using system default")
		}
		src, err := audiomalgo.New(a.cfg.Audio.SampleRate)
		if err != nil {
			return err
		}
		a.source = src
	default:
		return fmt.Errorf("unknown capture backend %q", a.cfg.Audio.Capture.Backend)
	}
	slog.Info("capture backend ready",
		"backend", a.cfg.Audio.Capture.Backend,
		"sample_rate", a.cfg.Audio.SampleRate,
	)
	return nil
}

// initDetector selects the VAD implementation unless one was injected.
func (a *App) initDetector() error {
	if a.detector != nil {
		return nil
	}

	d, err := vad.Select(vad.Config{
		SampleRate:           a.cfg.Audio.SampleRate,
		FrameDurationMs:      a.cfg.Audio.FrameDurationMs,
		EnergyThreshold:      a.cfg.VAD.EnergyThreshold,
		ProbabilityThreshold: a.cfg.VAD.ProbabilityThreshold,
		MinSpeechDurationMs:  a.cfg.VAD.MinSpeechDurationMs,
		MinSilenceDurationMs: a.cfg.VAD.MinSilenceDurationMs,
	}, a.cfg.VAD.ModelPath)
	if err != nil {
		return err
	}
	a.detector = d
	return nil
}

// initEngine creates the whisper engine unless one was injected. The model
// file is loaded lazily by the pipeline's Start.
func (a *App) initEngine() error {
	if a.engine != nil {
		return nil
	}

	var opts []whisper.Option
	if a.cfg.STT.Language != "" {
		opts = append(opts, whisper.WithLanguage(a.cfg.STT.Language))
	}
	if a.cfg.STT.Threads > 0 {
		opts = append(opts, whisper.WithThreads(a.cfg.STT.Threads))
	}
	eng, err := whisper.New(a.cfg.STT.ModelPath, opts...)
	if err != nil {
		return err
	}
	a.engine = eng
	a.closers = append(a.closers, func(context.Context) error {
		return eng.Close()
	})
	return nil
}

// initProvider creates the answer backend unless one was injected. When a
// fallback backend is configured, the primary is wrapped in a circuit-broken
// fallback chain.
func (a *App) initProvider() error {
	if a.provider != nil {
		return nil
	}
	if a.cfg.AI.Backend == "" {
		slog.Info("answer generation disabled, no ai backend configured")
		return nil
	}

	primary, err := buildProvider(a.cfg.AI.Backend, a.cfg.AI.Model, a.cfg.AI.APIKey, a.cfg.AI.BaseURL)
	if err != nil {
		return err
	}
	slog.Info("answer backend ready", "backend", a.cfg.AI.Backend, "model", a.cfg.AI.Model)

	if a.cfg.AI.FallbackBackend == "" {
		a.provider = primary
		return nil
	}

	fallback, err := buildProvider(a.cfg.AI.FallbackBackend, a.cfg.AI.FallbackModel, a.cfg.AI.APIKey, "")
	if err != nil {
		return fmt.Errorf("fallback backend: %w", err)
	}
	chain := resilience.NewLLMFallback(primary, resilience.FallbackConfig{})
	chain.AddFallback(fallback)
	a.provider = chain
	slog.Info("fallback backend ready",
		"backend", a.cfg.AI.FallbackBackend,
		"model", a.cfg.AI.FallbackModel,
	)
	return nil
}

// buildProvider constructs one any-llm backend.
func buildProvider(backend config.AIBackend, model, apiKey, baseURL string) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}

	switch backend {
	case config.BackendAnthropic:
		return anyllm.NewAnthropic(model, opts...)
	case config.BackendOllama:
		return anyllm.NewOllama(model, opts...)
	default:
		return nil, fmt.Errorf("unknown ai backend %q", backend)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts capture, answer generation, and the viewer server, then blocks
// until ctx is cancelled or a subsystem fails. The pipeline keeps running
// across transcription failures; only startup errors and viewer serve errors
// end Run.
func (a *App) Run(ctx context.Context) error {
	if a.assistant != nil {
		a.assistant.Start(ctx)
	}

	if err := a.controller.Start(ctx); err != nil {
		return fmt.Errorf("app: start pipeline: %w", err)
	}
	a.events.Publish(bus.KindStatus, "listening")
	slog.Info("pipeline listening")

	g, gctx := errgroup.WithContext(ctx)
	if a.server != nil {
		g.Go(func() error {
			return a.server.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// ─── Pause / resume ──────────────────────────────────────────────────────────

// Pause stops audio capture without tearing the application down. Buffered
// trailing speech is flushed and transcribed.
func (a *App) Pause() error {
	if err := a.controller.Stop(); err != nil {
		return err
	}
	a.events.Publish(bus.KindStatus, "paused")
	return nil
}

// Resume restarts audio capture after a Pause.
func (a *App) Resume(ctx context.Context) error {
	if err := a.controller.Start(ctx); err != nil {
		return err
	}
	a.events.Publish(bus.KindStatus, "listening")
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops capture, drains in-flight transcription and answer
// generation, and releases all subsystems. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.controller.Running() {
			if err := a.controller.Stop(); err != nil && !errors.Is(err, pipeline.ErrNotStarted) {
				errs = append(errs, fmt.Errorf("stop pipeline: %w", err))
			}
		}
		if a.assistant != nil {
			a.assistant.Close()
		}
		a.events.Publish(bus.KindStatus, "stopped")

		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}
