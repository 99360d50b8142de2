// Package answer turns interview questions into streamed model answers.
//
// The Assistant consumes finalized transcripts, classifies them with
// [transcript.Processor], and drives a [llm.Provider] completion stream for
// each question. Tokens, completed answers, and failures are published on the
// event bus so any number of viewers can follow along. A bounded history of
// prior question/answer pairs is replayed into every request so follow-up
// questions keep their context.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/auricle-ai/auricle/internal/bus"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/pipeline"
	"github.com/auricle-ai/auricle/internal/transcript"
	"github.com/auricle-ai/auricle/pkg/llm"
)

const (
	defaultMaxContextQuestions = 5
	defaultMaxTokens           = 1024

	// questionQueueDepth bounds questions waiting for a free generation
	// slot. Interviewers rarely stack questions; overflow means the model
	// fell far behind and the oldest pending question is the least useful.
	questionQueueDepth = 4
)

// systemPrompts maps each interview mode to the instruction injected before
// the conversation.
var systemPrompts = map[config.InterviewMode]string{
	config.ModeGeneral: "You are an expert assistant helping a candidate in a live job interview. " +
		"Answer the interviewer's question concisely and conversationally, as the candidate would speak it aloud. " +
		"Lead with the direct answer, then add one or two supporting points.",
	config.ModeDSA: "You are an expert competitive programmer helping a candidate in a live coding interview. " +
		"For each question: state the approach, give time and space complexity, then sketch the algorithm step by step. " +
		"Mention the key data structure by name. Keep code snippets short and language-agnostic unless a language is specified.",
	config.ModeSystemDesign: "You are a principal engineer helping a candidate in a system design interview. " +
		"Structure every answer as: requirements and scale estimate, high-level components, data model, " +
		"then the one or two hardest trade-offs. Name concrete technologies where they clarify the design.",
	config.ModeBehavioral: "You are an interview coach helping a candidate answer behavioral questions. " +
		"Shape each answer in STAR form (Situation, Task, Action, Result) in first person, " +
		"specific and honest-sounding, under two minutes of speaking time.",
}

// exchange is one completed question/answer pair kept for context.
type exchange struct {
	question string
	answer   string
}

// Assistant listens for question transcripts and streams answers onto the
// event bus. One generation runs at a time; pending questions queue up to
// [questionQueueDepth] deep.
type Assistant struct {
	provider  llm.Provider
	processor *transcript.Processor
	events    *bus.Bus
	metrics   *observe.Metrics
	log       *slog.Logger

	mode        config.InterviewMode
	maxContext  int
	temperature float64
	maxTokens   int

	mu      sync.Mutex
	history []exchange
	started bool

	questions chan string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Option is a functional option for configuring an Assistant.
type Option func(*Assistant)

// WithMode selects the interview mode shaping the system prompt.
// Default: [config.ModeGeneral].
func WithMode(m config.InterviewMode) Option {
	return func(a *Assistant) { a.mode = m }
}

// WithMaxContextQuestions bounds how many prior question/answer pairs are
// replayed into each request. Default: 5.
func WithMaxContextQuestions(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.maxContext = n
		}
	}
}

// WithProcessor replaces the transcript processor, typically to supply a
// custom technical vocabulary.
func WithProcessor(p *transcript.Processor) Option {
	return func(a *Assistant) { a.processor = p }
}

// WithTemperature sets the sampling temperature. Zero uses the backend
// default.
func WithTemperature(t float64) Option {
	return func(a *Assistant) { a.temperature = t }
}

// WithMaxTokens caps answer length. Default: 1024.
func WithMaxTokens(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithMetrics attaches a metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// WithLogger attaches a logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(a *Assistant) { a.log = log }
}

// New creates an Assistant that answers through provider and publishes on
// events. Call [Assistant.Start] before feeding transcripts.
func New(provider llm.Provider, events *bus.Bus, opts ...Option) *Assistant {
	a := &Assistant{
		provider:   provider,
		events:     events,
		mode:       config.ModeGeneral,
		maxContext: defaultMaxContextQuestions,
		maxTokens:  defaultMaxTokens,
	}
	for _, o := range opts {
		o(a)
	}
	if a.processor == nil {
		a.processor = transcript.NewProcessor(
			transcript.WithTermMatcher(transcript.NewTermMatcher(transcript.DefaultTerms)),
		)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// Start launches the generation worker. The worker exits on [Assistant.Close]
// or when ctx is cancelled.
func (a *Assistant) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true
	a.questions = make(chan string, questionQueueDepth)
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))

	a.wg.Add(1)
	go a.generateLoop()
}

// Close stops the generation worker after it finishes the in-flight answer.
// Pending queued questions are dropped.
func (a *Assistant) Close() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.started = false
	a.cancel()
	close(a.questions)
	a.mu.Unlock()

	a.wg.Wait()
}

// HandleTranscript is the pipeline transcript callback. It republishes the
// transcript on the bus, classifies it, and enqueues questions for answering.
func (a *Assistant) HandleTranscript(t pipeline.Transcript) {
	a.events.Publish(bus.KindTranscript, t)

	res := a.processor.Process(t.Text)
	if res.Text == "" {
		return
	}
	for _, c := range res.Corrections {
		a.log.Debug("corrected term",
			"original", c.Original,
			"corrected", c.Corrected,
			"confidence", fmt.Sprintf("%.2f", c.Confidence),
		)
	}
	if !res.IsQuestion {
		a.log.Debug("transcript is not a question", "text", res.Text)
		return
	}

	a.metrics.Questions.Add(context.Background(), 1)
	a.events.Publish(bus.KindQuestion, res.Text)

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	select {
	case a.questions <- res.Text:
	default:
		a.log.Warn("question queue full, dropping question", "text", res.Text)
		a.events.Publish(bus.KindError, fmt.Errorf("answer: question dropped, generation backlog full"))
	}
}

// generateLoop answers queued questions one at a time.
func (a *Assistant) generateLoop() {
	defer a.wg.Done()
	for question := range a.questions {
		if a.ctx.Err() != nil {
			return
		}
		a.answer(a.ctx, question)
	}
}

// answer streams one completion and publishes its tokens. Failures are
// published as error events; the loop continues with the next question.
func (a *Assistant) answer(ctx context.Context, question string) {
	req := a.buildRequest(question)
	start := time.Now()

	chunks, err := a.provider.StreamCompletion(ctx, req)
	if err != nil {
		a.metrics.RecordLLMError(ctx, a.provider.Name())
		a.log.Error("answer generation failed to start", "err", err)
		a.events.Publish(bus.KindError, fmt.Errorf("answer: %w", err))
		return
	}

	var (
		sb         strings.Builder
		firstToken time.Time
		failed     bool
		streamErr  string
	)
	for chunk := range chunks {
		// The error chunk's text is backend diagnostics, never answer
		// content; stop tokenizing and release the producer.
		if chunk.FinishReason == "error" {
			failed = true
			streamErr = chunk.Text
			llm.Drain(chunks)
			break
		}
		if chunk.Text != "" {
			if firstToken.IsZero() {
				firstToken = time.Now()
				a.metrics.AnswerFirstTokenDuration.Record(ctx, firstToken.Sub(start).Seconds())
			}
			sb.WriteString(chunk.Text)
			a.events.Publish(bus.KindAnswerToken, chunk.Text)
		}
	}

	if failed {
		a.metrics.RecordLLMError(ctx, a.provider.Name())
		a.log.Error("answer stream failed mid-generation", "question", question, "err", streamErr)
		a.events.Publish(bus.KindError, fmt.Errorf("answer: stream interrupted: %s", streamErr))
		return
	}

	full := sb.String()
	a.metrics.AnswerDuration.Record(ctx, time.Since(start).Seconds())
	a.log.Info("answer generated",
		"backend", a.provider.Name(),
		"question_len", len(question),
		"answer_len", len(full),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	a.events.Publish(bus.KindAnswerDone, full)
	a.remember(question, full)
}

// buildRequest assembles the completion request: system prompt for the
// configured mode, bounded history, then the new question.
func (a *Assistant) buildRequest(question string) llm.CompletionRequest {
	a.mu.Lock()
	history := make([]exchange, len(a.history))
	copy(history, a.history)
	a.mu.Unlock()

	messages := make([]llm.Message, 0, 2*len(history)+1)
	for _, ex := range history {
		messages = append(messages,
			llm.Message{Role: "user", Content: ex.question},
			llm.Message{Role: "assistant", Content: ex.answer},
		)
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})

	return llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: systemPrompts[a.mode],
		Temperature:  a.temperature,
		MaxTokens:    a.maxTokens,
	}
}

// remember appends a completed exchange, evicting the oldest beyond the
// context bound.
func (a *Assistant) remember(question, answer string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, exchange{question: question, answer: answer})
	if len(a.history) > a.maxContext {
		a.history = a.history[len(a.history)-a.maxContext:]
	}
}

// ResetContext drops the accumulated question/answer history, e.g. when a
// new interview round starts.
func (a *Assistant) ResetContext() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}
