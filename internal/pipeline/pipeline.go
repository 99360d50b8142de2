// Package pipeline wires an audio source through voice-activity detection,
// utterance accumulation, and speech-to-text into a stream of finalized
// transcript events.
//
// The Controller is a small state machine (stopped ⇄ started). While started,
// every chunk the source delivers is written to a diagnostic ring buffer and
// split into VAD frames; the segment accumulator decides when the buffered
// utterance is complete and the blob is handed to a single transcription
// worker. The audio-delivery path never waits on transcription: flushes are
// enqueued, and the worker processes them one at a time so transcripts are
// emitted in spoken order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/segment"
	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/stt"
	"github.com/auricle-ai/auricle/pkg/vad"
)

// queueDepth bounds the number of flushed utterances awaiting transcription.
// Utterances are several seconds long, so a deep backlog means the engine is
// hopelessly behind and shedding load beats unbounded growth.
const queueDepth = 8

// ErrNotStarted is returned by operations that require a running pipeline.
var ErrNotStarted = errors.New("pipeline: not started")

// ErrAlreadyStarted is returned by Start on a running pipeline.
var ErrAlreadyStarted = errors.New("pipeline: already started")

// Transcript is a finalized-transcript event emitted after a flushed
// utterance produced non-empty text.
type Transcript struct {
	// Text is the transcript with surrounding whitespace trimmed.
	Text string

	// Result carries the engine's full output, including per-segment detail.
	Result *stt.Result

	// Reason is the flush trigger that finalised this utterance.
	Reason segment.FlushReason

	// AudioSeconds is the duration of the transcribed audio.
	AudioSeconds float64
}

// TranscriptHandler receives finalized transcripts. Handlers run on the
// transcription worker goroutine and must not block; slow consumers (an LLM
// call, a UI update) must hand off asynchronously or they delay the next
// transcript.
type TranscriptHandler func(Transcript)

// ErrorHandler receives recovered pipeline failures: a failed transcription,
// a VAD scorer error, an audio source dying mid-stream. The pipeline keeps
// running (or, for a source failure, stops cleanly) — these are reports, not
// panics.
type ErrorHandler func(error)

// Config holds the controller's framing parameters.
type Config struct {
	// SampleRate is the audio sample rate in Hz delivered by the source.
	SampleRate int

	// FrameDurationMs is the VAD frame duration. Defaults to the detector
	// default (30 ms).
	FrameDurationMs int

	// RingCapacitySeconds sizes the diagnostic ring buffer holding the most
	// recent raw audio. Defaults to 60 s.
	RingCapacitySeconds float64
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = vad.DefaultSampleRate
	}
	if c.FrameDurationMs <= 0 {
		c.FrameDurationMs = vad.DefaultFrameDurationMs
	}
	if c.RingCapacitySeconds <= 0 {
		c.RingCapacitySeconds = 60
	}
	return c
}

// job is one flushed utterance queued for transcription.
type job struct {
	samples []int16
	reason  segment.FlushReason
}

// Controller owns the streaming pipeline for one audio source.
//
// All mutable segmentation state (detector, accumulator, frame remainder) is
// guarded by a single mutex: chunks arrive on the source's goroutine while
// Stop or ClearBuffer may be invoked from another. The lock is never held
// across a transcription call.
type Controller struct {
	cfg      Config
	source   audio.Source
	detector vad.Detector
	engine   stt.Engine
	metrics  *observe.Metrics
	log      *slog.Logger

	onTranscript TranscriptHandler
	onError      ErrorHandler

	mu        sync.Mutex
	started   bool
	stopping  bool
	ring      *audio.RingBuffer
	acc       *segment.Accumulator
	remainder []int16
	jobs      chan job

	workerWG sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithTranscriptHandler registers the finalized-transcript callback.
func WithTranscriptHandler(h TranscriptHandler) Option {
	return func(c *Controller) { c.onTranscript = h }
}

// WithErrorHandler registers the recovered-failure callback.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Controller) { c.onError = h }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the structured logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New creates a stopped Controller around the given collaborators. The
// accumulator flush policy comes from segCfg; its sample rate is forced to
// match cfg.SampleRate.
func New(source audio.Source, detector vad.Detector, engine stt.Engine, cfg Config, segCfg segment.Config, opts ...Option) (*Controller, error) {
	if source == nil {
		return nil, errors.New("pipeline: source must not be nil")
	}
	if detector == nil {
		return nil, errors.New("pipeline: detector must not be nil")
	}
	if engine == nil {
		return nil, errors.New("pipeline: engine must not be nil")
	}
	cfg = cfg.withDefaults()
	segCfg.SampleRate = cfg.SampleRate
	acc, err := segment.New(segCfg)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		source:   source,
		detector: detector,
		engine:   engine,
		acc:      acc,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}

	source.OnChunk(c.handleChunk)
	source.OnError(c.handleSourceFailure)
	return c, nil
}

// Start loads the transcription engine, resets all segmentation state, and
// begins consuming audio. It fails fast without transitioning when the engine
// cannot load or the source cannot start. ctx bounds the engine load and is
// the parent of every transcription the pipeline runs.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	if err := c.engine.Load(ctx); err != nil {
		return fmt.Errorf("pipeline: engine load: %w", err)
	}

	c.detector.Reset()
	c.acc.Discard()
	c.remainder = nil
	c.ring = audio.NewRingBuffer(c.cfg.RingCapacitySeconds, c.cfg.SampleRate)
	c.jobs = make(chan job, queueDepth)

	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.workerWG.Add(1)
	go c.transcribeLoop(c.ctx, c.jobs)

	if err := c.source.Start(); err != nil {
		c.cancel()
		close(c.jobs)
		c.workerWG.Wait()
		c.jobs = nil
		return fmt.Errorf("pipeline: source start: %w", err)
	}

	c.started = true
	c.log.Info("pipeline started",
		"sample_rate", c.cfg.SampleRate, "frame_ms", c.cfg.FrameDurationMs)
	return nil
}

// Stop flushes any in-progress utterance, stops the source, and waits for
// the transcription worker to drain so no trailing speech is dropped.
// Idempotent: stopping a stopped pipeline returns nil.
func (c *Controller) Stop() error {
	return c.shutdown(nil)
}

// ClearBuffer discards the in-progress utterance without transcribing it and
// resets the detector, for the explicit "ignore what was just said" action.
func (c *Controller) ClearBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.stopping {
		return ErrNotStarted
	}
	c.acc.Discard()
	c.detector.Reset()
	c.remainder = nil
	c.ring.Clear()
	c.log.Debug("pipeline buffer cleared")
	return nil
}

// Running reports whether the pipeline is currently started.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// BufferedSeconds returns the duration of audio held by the accumulator.
func (c *Controller) BufferedSeconds() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acc.Duration()
}

// shutdown is the shared Stop path. sourceErr is non-nil when the stop was
// forced by a source failure, in which case the source is not stopped again.
func (c *Controller) shutdown(sourceErr error) error {
	c.mu.Lock()
	if !c.started || c.stopping {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	jobs := c.jobs
	cancel := c.cancel
	c.jobs = nil
	c.mu.Unlock()

	// Stop the source without the lock: Stop joins the source's delivery
	// goroutine, which may itself be blocked in handleChunk waiting for
	// c.mu. Once Stop returns no further chunk callbacks arrive.
	var stopErr error
	if sourceErr == nil {
		stopErr = c.source.Stop()
	}

	c.mu.Lock()
	// Fold the trailing partial frame into a final flush so the last words
	// of an utterance are not discarded with the remainder.
	if len(c.remainder) > 0 {
		if _, err := c.detector.ProcessFrame(c.remainder); err != nil {
			c.reportError(fmt.Errorf("pipeline: vad on trailing frame: %w", err), "vad")
		}
		c.acc.Observe(c.remainder, true, false)
		c.remainder = nil
	}
	if blob := c.acc.Flush(); len(blob) > 0 {
		c.enqueue(jobs, job{samples: blob, reason: segment.FlushFinal})
	}
	c.detector.Reset()
	c.ring.Clear()
	c.mu.Unlock()

	// Drain outside the lock: the worker may still be mid-transcription and
	// its handlers must not find the controller locked.
	close(jobs)
	c.workerWG.Wait()
	cancel()

	c.mu.Lock()
	c.started = false
	c.stopping = false
	c.mu.Unlock()

	c.log.Info("pipeline stopped")
	return stopErr
}

// handleChunk is the source's chunk callback. It runs on the source's
// delivery goroutine and never waits on transcription.
func (c *Controller) handleChunk(chunk audio.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.stopping {
		return
	}

	c.ring.Write(chunk.Samples)

	// Split the carried remainder plus this chunk into whole VAD frames; the
	// tail shorter than one frame is carried to the next chunk.
	frameSamples := c.cfg.SampleRate * c.cfg.FrameDurationMs / 1000
	buf := append(c.remainder, chunk.Samples...)
	var off int
	for ; off+frameSamples <= len(buf); off += frameSamples {
		c.processFrame(buf[off : off+frameSamples])
	}
	c.remainder = append([]int16(nil), buf[off:]...)

	c.metrics.BufferedAudioSeconds.Record(c.ctx, c.acc.Duration())
}

// processFrame runs one frame through VAD and the accumulator, enqueueing a
// transcription job when the flush policy fires. Caller holds c.mu.
func (c *Controller) processFrame(frame []int16) {
	dec, err := c.detector.ProcessFrame(frame)
	if err != nil {
		// A scorer failure on one frame is not fatal; classify it as
		// silence and keep the stream moving.
		c.reportError(fmt.Errorf("pipeline: vad: %w", err), "vad")
		dec = vad.Decision{}
	}

	reason := c.acc.Observe(frame, dec.IsSpeaking, dec.SpeechEnded)
	if reason == segment.FlushNone {
		return
	}

	blob := c.acc.Flush()
	c.detector.Reset()
	if len(blob) == 0 {
		return
	}
	c.log.Debug("utterance flushed",
		"reason", reason.String(),
		"seconds", float64(len(blob))/float64(c.cfg.SampleRate))
	c.enqueue(c.jobs, job{samples: blob, reason: reason})
}

// enqueue hands a flushed utterance to the worker without blocking the audio
// path. When the queue is full the utterance is shed and reported.
func (c *Controller) enqueue(jobs chan<- job, j job) {
	select {
	case jobs <- j:
	default:
		c.reportError(fmt.Errorf("pipeline: transcription backlog full, dropping %.1fs utterance",
			float64(len(j.samples))/float64(c.cfg.SampleRate)), "dispatch")
	}
}

// transcribeLoop is the single transcription worker. One job in flight at a
// time preserves spoken order.
func (c *Controller) transcribeLoop(ctx context.Context, jobs <-chan job) {
	defer c.workerWG.Done()

	for j := range jobs {
		audioSec := float64(len(j.samples)) / float64(c.cfg.SampleRate)

		res, err := c.engine.Transcribe(ctx, j.samples, c.cfg.SampleRate)
		if err != nil {
			c.reportError(fmt.Errorf("pipeline: transcribe %.1fs utterance: %w", audioSec, err), "transcribe")
			continue
		}
		// nil result or blank text means the engine found no speech; silence
		// is discarded, never reported as an empty transcript.
		if res == nil {
			continue
		}
		text := strings.TrimSpace(res.Text)
		if text == "" {
			continue
		}

		c.metrics.RecordUtterance(ctx, j.reason.String(), res.Duration.Seconds())
		c.log.Info("transcript finalized",
			"reason", j.reason.String(),
			"audio_seconds", audioSec,
			"inference", res.Duration,
			"chars", len(text))

		if c.onTranscript != nil {
			c.onTranscript(Transcript{
				Text:         text,
				Result:       res,
				Reason:       j.reason,
				AudioSeconds: audioSec,
			})
		}
	}
}

// handleSourceFailure is the source's error callback: an unexpected source
// death is treated as a stop, flushing pending audio before reporting.
func (c *Controller) handleSourceFailure(err error) {
	c.reportError(fmt.Errorf("pipeline: audio source failed: %w", err), "source")
	if serr := c.shutdown(err); serr != nil {
		c.reportError(serr, "source")
	}
}

func (c *Controller) reportError(err error, stage string) {
	c.metrics.RecordPipelineError(context.Background(), stage)
	c.log.Error("pipeline error", "stage", stage, "error", err)
	if c.onError != nil {
		c.onError(err)
	}
}
