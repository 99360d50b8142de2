// Package parec implements [audio.Source] on top of a parecord subprocess,
// capturing system audio from a PulseAudio/PipeWire monitor source. This is
// what lets Auricle hear the remote side of a video call (Meet, Zoom, …)
// rather than the local microphone.
//
// The subprocess writes raw s16le mono PCM to its stdout; a reader goroutine
// slices the byte stream into chunks and pushes them to the registered
// callback. An unexpected subprocess exit is surfaced through the source's
// error callback so the pipeline can treat it as a stop.
package parec

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/auricle-ai/auricle/pkg/audio"
)

const (
	// defaultChunkSamples is the number of samples delivered per callback.
	defaultChunkSamples = 1024

	// stopTimeout bounds how long Stop waits for parecord to exit after
	// SIGTERM before escalating to SIGKILL.
	stopTimeout = 2 * time.Second
)

// Source captures system audio by piping a parecord subprocess.
// Safe for concurrent use; chunk delivery happens on an internal goroutine.
type Source struct {
	device       string
	sampleRate   int
	chunkSamples int

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	running bool
	stopped chan struct{}
	started time.Time
	chunkCb audio.ChunkFunc
	errCb   audio.ErrorFunc
}

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithChunkSamples sets how many samples are delivered per chunk callback.
// Default is 1024.
func WithChunkSamples(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.chunkSamples = n
		}
	}
}

// New creates a Source that captures from the named PulseAudio/PipeWire
// source (typically a ".monitor" device) at sampleRate Hz mono.
func New(device string, sampleRate int, opts ...Option) (*Source, error) {
	if device == "" {
		return nil, errors.New("parec: device must not be empty")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("parec: sample rate must be positive, got %d", sampleRate)
	}
	s := &Source{
		device:       device,
		sampleRate:   sampleRate,
		chunkSamples: defaultChunkSamples,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// SampleRate implements [audio.Source].
func (s *Source) SampleRate() int { return s.sampleRate }

// OnChunk implements [audio.Source]. Must be called before Start.
func (s *Source) OnChunk(cb audio.ChunkFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkCb = cb
}

// OnError implements [audio.Source].
func (s *Source) OnError(cb audio.ErrorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errCb = cb
}

// Start spawns the parecord subprocess and begins chunk delivery.
// Calling Start on a running source is a no-op.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	cmd := exec.Command("parecord",
		"--device", s.device,
		"--rate", strconv.Itoa(s.sampleRate),
		"--channels", "1",
		"--format", "s16le",
		"--raw",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("parec: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("parec: start parecord for %q: %w", s.device, err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.running = true
	s.stopped = make(chan struct{})
	s.started = time.Now()

	go s.readLoop(stdout, s.stopped)

	slog.Info("system audio capture started", "device", s.device, "sample_rate", s.sampleRate)
	return nil
}

// Stop terminates the subprocess. It sends SIGTERM first and waits up to two
// seconds before killing the process outright, so Stop always returns within
// a bounded time. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cmd := s.cmd
	stopped := s.stopped
	s.cmd = nil
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		slog.Warn("parecord did not exit in time, killing", "device", s.device)
		_ = cmd.Process.Kill()
		<-done
	}

	// Wait for the reader goroutine to observe EOF before returning, so no
	// chunk callback fires after Stop.
	<-stopped
	slog.Info("system audio capture stopped", "device", s.device)
	return nil
}

// readLoop reads raw PCM from the subprocess stdout and delivers chunks until
// EOF. Runs on its own goroutine; closes stopped on exit.
func (s *Source) readLoop(r io.Reader, stopped chan struct{}) {
	defer close(stopped)

	buf := make([]byte, s.chunkSamples*2)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			s.deliver(buf[:n-n%2])
		}
		if err != nil {
			s.mu.Lock()
			running := s.running
			errCb := s.errCb
			s.mu.Unlock()

			// EOF after Stop is the normal shutdown path. EOF while still
			// running means parecord died underneath us.
			if running {
				slog.Error("capture subprocess exited unexpectedly", "device", s.device, "err", err)
				if errCb != nil {
					errCb(fmt.Errorf("parec: capture subprocess exited: %w", err))
				}
			}
			return
		}
	}
}

// deliver converts a raw byte slice to a chunk and invokes the callback.
func (s *Source) deliver(data []byte) {
	s.mu.Lock()
	cb := s.chunkCb
	elapsed := time.Since(s.started)
	s.mu.Unlock()
	if cb == nil {
		return
	}
	cb(audio.Chunk{
		Samples:    audio.BytesToInt16LE(data),
		SampleRate: s.sampleRate,
		Timestamp:  elapsed,
	})
}
