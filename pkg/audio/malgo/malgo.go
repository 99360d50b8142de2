// Package malgo implements [audio.Source] using the miniaudio bindings
// (github.com/gen2brain/malgo) for native capture devices. Use this for
// microphone input or for loopback devices exposed as capture endpoints;
// for PulseAudio/PipeWire monitor sources prefer the parec adapter.
package malgo

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	malgolib "github.com/gen2brain/malgo"

	"github.com/auricle-ai/auricle/pkg/audio"
)

// Source captures audio from a native device via miniaudio.
// Safe for concurrent use; chunk delivery happens on miniaudio's own thread.
type Source struct {
	sampleRate int
	deviceID   *malgolib.DeviceID

	mu      sync.Mutex
	ctx     *malgolib.AllocatedContext
	device  *malgolib.Device
	running bool
	started time.Time
	chunkCb audio.ChunkFunc
	errCb   audio.ErrorFunc
}

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithDeviceID selects a specific capture device. The default is the
// system's default capture device.
func WithDeviceID(id malgolib.DeviceID) Option {
	return func(s *Source) { s.deviceID = &id }
}

// New creates a Source capturing int16 mono at sampleRate Hz.
func New(sampleRate int, opts ...Option) (*Source, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("malgo: sample rate must be positive, got %d", sampleRate)
	}
	s := &Source{sampleRate: sampleRate}
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

// Start opens the capture device and begins delivery. No-op when running.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	mctx, err := malgolib.InitContext(nil, malgolib.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("malgo: init context: %w", err)
	}

	cfg := malgolib.DefaultDeviceConfig(malgolib.Capture)
	cfg.Capture.Format = malgolib.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(s.sampleRate)
	if s.deviceID != nil {
		cfg.Capture.DeviceID = s.deviceID.Pointer()
	}

	callbacks := malgolib.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.deliver(input)
		},
		Stop: func() {
			s.mu.Lock()
			running := s.running
			errCb := s.errCb
			s.mu.Unlock()
			// miniaudio invokes Stop when the device goes away mid-stream
			// (unplugged, backend restart), not only on our own Stop call.
			if running {
				slog.Error("capture device stopped unexpectedly")
				if errCb != nil {
					errCb(errors.New("malgo: capture device stopped unexpectedly"))
				}
			}
		},
	}

	device, err := malgolib.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		freeContext(mctx)
		return fmt.Errorf("malgo: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(mctx)
		return fmt.Errorf("malgo: start capture device: %w", err)
	}

	s.ctx = mctx
	s.device = device
	s.running = true
	s.started = time.Now()
	slog.Info("device audio capture started", "sample_rate", s.sampleRate)
	return nil
}

// Stop halts capture and releases the device. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	device := s.device
	mctx := s.ctx
	s.device = nil
	s.ctx = nil
	s.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	if mctx != nil {
		freeContext(mctx)
	}
	slog.Info("device audio capture stopped")
	return nil
}

// deliver converts a raw miniaudio buffer to a chunk and invokes the callback.
func (s *Source) deliver(data []byte) {
	s.mu.Lock()
	cb := s.chunkCb
	running := s.running
	elapsed := time.Since(s.started)
	s.mu.Unlock()
	if cb == nil || !running {
		return
	}
	cb(audio.Chunk{
		Samples:    audio.BytesToInt16LE(data),
		SampleRate: s.sampleRate,
		Timestamp:  elapsed,
	})
}

func freeContext(mctx *malgolib.AllocatedContext) {
	if err := mctx.Uninit(); err != nil {
		slog.Warn("malgo context uninit failed", "err", err)
	}
	mctx.Free()
}
