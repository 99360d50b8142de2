package answer_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/auricle-ai/auricle/internal/answer"
	"github.com/auricle-ai/auricle/internal/bus"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/pipeline"
	llmmock "github.com/auricle-ai/auricle/pkg/llm/mock"
)

const waitTimeout = 2 * time.Second

// collector gathers bus events of one kind into a channel for assertions.
func collector(t *testing.T, events *bus.Bus, kind bus.Kind) <-chan any {
	t.Helper()
	ch := make(chan any, 64)
	sub := events.Subscribe(kind, bus.DispatchSync, func(payload any) {
		ch <- payload
	})
	t.Cleanup(sub.Unsubscribe)
	return ch
}

func waitFor(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func newAssistant(t *testing.T, provider *llmmock.Provider, opts ...answer.Option) (*answer.Assistant, *bus.Bus) {
	t.Helper()
	events := bus.New(slog.Default())
	t.Cleanup(events.Close)

	a := answer.New(provider, events, opts...)
	a.Start(t.Context())
	t.Cleanup(a.Close)
	return a, events
}

func TestAssistant_QuestionProducesStreamedAnswer(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []string{"Use a hash map for O(1) lookups."}}
	a, events := newAssistant(t, provider)

	questions := collector(t, events, bus.KindQuestion)
	tokens := collector(t, events, bus.KindAnswerToken)
	done := collector(t, events, bus.KindAnswerDone)

	a.HandleTranscript(pipeline.Transcript{Text: "how would you find duplicates in an array?"})

	if got := waitFor(t, questions).(string); got != "how would you find duplicates in an array?" {
		t.Errorf("question event = %q", got)
	}
	full := waitFor(t, done).(string)
	if full != "Use a hash map for O(1) lookups." {
		t.Errorf("answer = %q", full)
	}
	if len(tokens) == 0 {
		t.Error("expected streamed token events before completion")
	}
}

func TestAssistant_TranscriptRepublishedOnBus(t *testing.T) {
	t.Parallel()

	a, events := newAssistant(t, &llmmock.Provider{})
	transcripts := collector(t, events, bus.KindTranscript)

	in := pipeline.Transcript{Text: "I enjoy working in small teams", AudioSeconds: 1.5}
	a.HandleTranscript(in)

	got := waitFor(t, transcripts).(pipeline.Transcript)
	if got.Text != in.Text || got.AudioSeconds != in.AudioSeconds {
		t.Errorf("transcript event = %+v, want %+v", got, in)
	}
}

func TestAssistant_StatementsAreNotAnswered(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []string{"should never be used"}}
	a, events := newAssistant(t, provider)
	done := collector(t, events, bus.KindAnswerDone)

	a.HandleTranscript(pipeline.Transcript{Text: "thanks, that makes sense."})

	select {
	case v := <-done:
		t.Fatalf("unexpected answer for a statement: %v", v)
	case <-time.After(100 * time.Millisecond):
	}
	if calls := provider.Calls(); len(calls) != 0 {
		t.Errorf("provider called %d times for a non-question", len(calls))
	}
}

func TestAssistant_ArtifactOnlyTranscriptIgnored(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{}
	a, events := newAssistant(t, provider)
	questions := collector(t, events, bus.KindQuestion)

	a.HandleTranscript(pipeline.Transcript{Text: "[BLANK_AUDIO]"})

	select {
	case v := <-questions:
		t.Fatalf("unexpected question event: %v", v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAssistant_HistoryCarriedIntoFollowUps(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []string{"first answer", "second answer"}}
	a, events := newAssistant(t, provider, answer.WithMaxContextQuestions(3))
	done := collector(t, events, bus.KindAnswerDone)

	a.HandleTranscript(pipeline.Transcript{Text: "what is a goroutine?"})
	waitFor(t, done)
	a.HandleTranscript(pipeline.Transcript{Text: "how does it differ from a thread?"})
	waitFor(t, done)

	calls := provider.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 completion calls, got %d", len(calls))
	}
	second := calls[1]
	if len(second.Messages) != 3 {
		t.Fatalf("expected 3 messages (history pair + question), got %d", len(second.Messages))
	}
	if second.Messages[0].Role != "user" || second.Messages[0].Content != "what is a goroutine?" {
		t.Errorf("unexpected history message: %+v", second.Messages[0])
	}
	if second.Messages[1].Role != "assistant" || second.Messages[1].Content != "first answer" {
		t.Errorf("unexpected history answer: %+v", second.Messages[1])
	}
}

func TestAssistant_HistoryBounded(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Responses: []string{"a1", "a2", "a3", "a4"},
	}
	a, events := newAssistant(t, provider, answer.WithMaxContextQuestions(2))
	done := collector(t, events, bus.KindAnswerDone)

	for _, q := range []string{
		"what is question one?",
		"what is question two?",
		"what is question three?",
		"what is question four?",
	} {
		a.HandleTranscript(pipeline.Transcript{Text: q})
		waitFor(t, done)
	}

	calls := provider.Calls()
	last := calls[len(calls)-1]
	// 2 retained pairs + the new question.
	if len(last.Messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(last.Messages))
	}
	if last.Messages[0].Content != "what is question two?" {
		t.Errorf("oldest pair not evicted: %+v", last.Messages[0])
	}
}

func TestAssistant_ResetContextDropsHistory(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []string{"a1", "a2"}}
	a, events := newAssistant(t, provider)
	done := collector(t, events, bus.KindAnswerDone)

	a.HandleTranscript(pipeline.Transcript{Text: "what is sharding?"})
	waitFor(t, done)
	a.ResetContext()
	a.HandleTranscript(pipeline.Transcript{Text: "what is caching?"})
	waitFor(t, done)

	calls := provider.Calls()
	if len(calls[1].Messages) != 1 {
		t.Errorf("expected bare question after reset, got %d messages", len(calls[1].Messages))
	}
}

func TestAssistant_ModeSelectsSystemPrompt(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []string{"answer"}}
	a, events := newAssistant(t, provider, answer.WithMode(config.ModeDSA))
	done := collector(t, events, bus.KindAnswerDone)

	a.HandleTranscript(pipeline.Transcript{Text: "implement a binary search"})
	waitFor(t, done)

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].SystemPrompt == "" {
		t.Fatal("expected a system prompt")
	}
	if !strings.Contains(calls[0].SystemPrompt, "complexity") {
		t.Errorf("dsa prompt missing complexity guidance: %q", calls[0].SystemPrompt)
	}
}

func TestAssistant_ProviderFailurePublishesError(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Errs:      []error{errors.New("backend down")},
		Responses: []string{"", "recovered answer"},
	}
	a, events := newAssistant(t, provider)
	errs := collector(t, events, bus.KindError)
	done := collector(t, events, bus.KindAnswerDone)

	a.HandleTranscript(pipeline.Transcript{Text: "what is a deadlock?"})
	if err := waitFor(t, errs).(error); err == nil {
		t.Fatal("expected error payload")
	}

	// The worker survives and answers the next question.
	a.HandleTranscript(pipeline.Transcript{Text: "what is a livelock?"})
	if got := waitFor(t, done).(string); got != "recovered answer" {
		t.Errorf("answer = %q", got)
	}
}

func TestAssistant_MidStreamFailureNeverTokenizesErrorText(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Responses:  []string{"use a balanced tree to keep lookups logarithmic", "recovered answer"},
		StreamErrs: []error{errors.New("rate limited by upstream")},
	}
	a, events := newAssistant(t, provider)
	tokens := collector(t, events, bus.KindAnswerToken)
	errs := collector(t, events, bus.KindError)
	done := collector(t, events, bus.KindAnswerDone)

	a.HandleTranscript(pipeline.Transcript{Text: "how do I keep lookups fast?"})

	err := waitFor(t, errs).(error)
	if !strings.Contains(err.Error(), "rate limited by upstream") {
		t.Errorf("error event = %v, want the backend failure", err)
	}

	// No completion event for the failed stream, and the backend's error
	// text must never have been published as answer tokens.
	select {
	case v := <-done:
		t.Fatalf("unexpected answer completion after stream failure: %v", v)
	case <-time.After(100 * time.Millisecond):
	}
	for drained := false; !drained; {
		select {
		case v := <-tokens:
			if strings.Contains(v.(string), "rate limited") {
				t.Errorf("backend error text published as answer token: %q", v)
			}
		default:
			drained = true
		}
	}

	// The worker survives and answers the next question.
	a.HandleTranscript(pipeline.Transcript{Text: "what about writes?"})
	if got := waitFor(t, done).(string); got != "recovered answer" {
		t.Errorf("answer = %q", got)
	}
}

func TestAssistant_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	a, _ := newAssistant(t, &llmmock.Provider{})
	a.Close()
	a.Close()
}
