// Package mock provides a test double for the stt.Engine interface.
//
// Use Engine to script transcription results and inspect the audio segments
// the pipeline delivered:
//
//	eng := &mock.Engine{
//	    Results: []*stt.Result{{Text: "hello world"}},
//	}
//	// ... run pipeline ...
//	calls := eng.TranscribeCalls()
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/stt"
)

// TranscribeCall records a single invocation of Engine.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the audio passed to Transcribe.
	Samples []int16
	// SampleRate is the sample rate passed to Transcribe.
	SampleRate int
}

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// LoadErr, if non-nil, is returned from every Load call.
	LoadErr error

	// Results are returned from successive Transcribe calls in order. When
	// exhausted, Transcribe returns (nil, nil). A nil entry also yields
	// (nil, nil), mimicking a no-speech result.
	Results []*stt.Result

	// TranscribeErrs are returned from successive Transcribe calls in order,
	// consumed alongside Results. A nil entry means no error for that call.
	TranscribeErrs []error

	// TranscribeDelay, if set, blocks each Transcribe call until the delay
	// elapses or the context is cancelled. Use it to keep a transcription
	// in flight while the test drives more audio through the pipeline.
	TranscribeDelay <-chan struct{}

	loadCalls  int
	closeCalls int
	calls      []TranscribeCall
}

// Compile-time assertion that Engine satisfies stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Load records the call and returns LoadErr.
func (e *Engine) Load(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadCalls++
	return e.LoadErr
}

// Transcribe records the call and returns the next scripted result.
func (e *Engine) Transcribe(ctx context.Context, samples []int16, sampleRate int) (*stt.Result, error) {
	e.mu.Lock()
	n := len(e.calls)
	e.calls = append(e.calls, TranscribeCall{
		Samples:    append([]int16(nil), samples...),
		SampleRate: sampleRate,
	})
	delay := e.TranscribeDelay
	var (
		res *stt.Result
		err error
	)
	if n < len(e.Results) {
		res = e.Results[n]
	}
	if n < len(e.TranscribeErrs) {
		err = e.TranscribeErrs[n]
	}
	e.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Close records the call and returns nil.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeCalls++
	return nil
}

// TranscribeCalls returns a copy of all recorded Transcribe calls.
func (e *Engine) TranscribeCalls() []TranscribeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TranscribeCall(nil), e.calls...)
}

// LoadCalls returns how many times Load was invoked.
func (e *Engine) LoadCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadCalls
}

// CloseCalls returns how many times Close was invoked.
func (e *Engine) CloseCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeCalls
}
