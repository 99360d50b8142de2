// Package mock provides an in-memory implementation of [audio.Source] for use
// in unit tests.
//
// The mock records every lifecycle call so tests can assert on call counts,
// and exposes Emit/Fail methods to drive the registered callbacks directly:
//
//	src := &mock.Source{Rate: 16000}
//	pipeline.Attach(src)
//	_ = src.Start()
//	src.Emit(audio.Chunk{Samples: samples, SampleRate: 16000})
package mock

import (
	"sync"

	"github.com/auricle-ai/auricle/pkg/audio"
)

// Source is a mock implementation of [audio.Source]. Set the exported fields
// before use; inspect the Call* fields after.
type Source struct {
	mu sync.Mutex

	// Rate is returned by SampleRate. Defaults to 16000 when zero.
	Rate int

	// StartError is returned by Start.
	StartError error

	// StopError is returned by Stop.
	StopError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	running bool
	chunkCb audio.ChunkFunc
	errCb   audio.ErrorFunc
}

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// SampleRate implements [audio.Source].
func (s *Source) SampleRate() int {
	if s.Rate <= 0 {
		return 16000
	}
	return s.Rate
}

// OnChunk implements [audio.Source].
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

// Start implements [audio.Source].
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return s.StartError
	}
	s.running = true
	return nil
}

// Stop implements [audio.Source].
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.running = false
	return s.StopError
}

// Running reports whether the source is between Start and Stop.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Emit delivers a chunk to the registered callback, synchronously, as the
// capture thread would. Emit after Stop is a no-op.
func (s *Source) Emit(c audio.Chunk) {
	s.mu.Lock()
	cb := s.chunkCb
	running := s.running
	s.mu.Unlock()
	if cb != nil && running {
		cb(c)
	}
}

// Fail delivers a capture failure to the registered error callback and marks
// the source stopped, mimicking a device disconnect.
func (s *Source) Fail(err error) {
	s.mu.Lock()
	cb := s.errCb
	s.running = false
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
