// Package mock provides a test double for the llm.Provider interface.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/auricle-ai/auricle/pkg/llm"
)

// Provider is a mock implementation of llm.Provider. It streams scripted
// responses and records every request.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Responses are returned from successive calls in order; each is split
	// into word-sized chunks when streamed. When exhausted, calls return an
	// empty response.
	Responses []string

	// Errs are returned from successive calls in order, consumed alongside
	// Responses. For StreamCompletion a non-nil entry fails the call before
	// the stream opens.
	Errs []error

	// StreamErrs are mid-stream failures, consumed alongside Responses: a
	// non-nil entry makes that stream emit the first half of the scripted
	// response and then an "error" chunk carrying the error text, the way
	// real backends surface failures after the stream opens.
	StreamErrs []error

	calls []llm.CompletionRequest
}

// Compile-time assertion that Provider satisfies llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Name implements llm.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// next records the call and pops the next scripted response and errors.
func (p *Provider) next(req llm.CompletionRequest) (string, error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.calls)
	p.calls = append(p.calls, req)

	var (
		resp      string
		err       error
		streamErr error
	)
	if n < len(p.Responses) {
		resp = p.Responses[n]
	}
	if n < len(p.Errs) {
		err = p.Errs[n]
	}
	if n < len(p.StreamErrs) {
		streamErr = p.StreamErrs[n]
	}
	return resp, err, streamErr
}

// StreamCompletion implements llm.Provider. The scripted response is emitted
// one word per chunk followed by a "stop" chunk, or an "error" chunk partway
// through when a StreamErrs entry is scripted for the call.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	resp, err, streamErr := p.next(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Chunk, 64)
	go func() {
		defer close(ch)
		words := strings.SplitAfter(resp, " ")
		if streamErr != nil {
			words = words[:len(words)/2]
		}
		for _, w := range words {
			if w == "" {
				continue
			}
			select {
			case ch <- llm.Chunk{Text: w}:
			case <-ctx.Done():
				return
			}
		}
		final := llm.Chunk{FinishReason: "stop"}
		if streamErr != nil {
			final = llm.Chunk{Text: streamErr.Error(), FinishReason: "error"}
		}
		select {
		case ch <- final:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err, _ := p.next(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: resp}, nil
}

// Calls returns a copy of all recorded requests.
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.calls...)
}
