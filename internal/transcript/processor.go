// Package transcript post-processes raw speech-to-text output before it
// reaches answer generation: it strips recognition artifacts, fixes
// phonetically mangled technical vocabulary, and classifies whether an
// utterance is an interview question worth answering.
package transcript

import (
	"regexp"
	"strings"
)

// artifactPattern matches non-speech annotations whisper emits for music,
// silence, and noises: "[BLANK_AUDIO]", "(applause)", "♪ ... ♪".
var artifactPattern = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|♪[^♪]*♪`)

// fillerPattern matches leading hesitation tokens worth dropping from the
// front of an utterance.
var fillerPattern = regexp.MustCompile(`(?i)^(?:(?:um|uh|er|ah|hmm|like|so|well|okay|alright)[,.]?\s+)+`)

// contractions maps the apostrophe-less word forms whisper tends to emit to
// their written forms. Matched on the lowercased word.
var contractions = map[string]string{
	"im":      "I'm",
	"ive":     "I've",
	"id":      "I'd",
	"dont":    "don't",
	"doesnt":  "doesn't",
	"didnt":   "didn't",
	"cant":    "can't",
	"couldnt": "couldn't",
	"wouldnt": "wouldn't",
	"wont":    "won't",
	"isnt":    "isn't",
	"wasnt":   "wasn't",
	"whats":   "what's",
	"thats":   "that's",
	"theres":  "there's",
	"youre":   "you're",
	"youve":   "you've",
	"theyre":  "they're",
	"lets":    "let's",
}

// questionStarters are leading phrases that mark an interview question even
// when the transcript lost the question mark.
var questionStarters = []string{
	"what", "why", "how", "when", "where", "which", "who",
	"can you", "could you", "would you", "do you", "have you", "are you", "is there",
	"tell me", "explain", "describe", "walk me through", "talk about",
	"implement", "design", "write", "given", "suppose", "imagine",
	"let's say", "what's the difference", "compare",
}

// Result is the outcome of processing one raw transcript.
type Result struct {
	// Text is the cleaned, term-corrected transcript.
	Text string

	// IsQuestion reports whether the utterance reads as a question directed
	// at the candidate.
	IsQuestion bool

	// Corrections lists the technical-term substitutions that were applied.
	Corrections []Correction
}

// Processor cleans and classifies transcripts. Safe for concurrent use; it
// is read-only after construction.
type Processor struct {
	matcher *TermMatcher
}

// Option is a functional option for configuring a Processor.
type Option func(*Processor)

// WithTermMatcher attaches a technical-vocabulary matcher. When nil (the
// default without this option), term correction is skipped.
func WithTermMatcher(m *TermMatcher) Option {
	return func(p *Processor) { p.matcher = m }
}

// NewProcessor creates a Processor with the supplied options.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs the full pipeline on raw STT text: artifact stripping, filler
// removal, term correction, and question classification. An utterance that
// was all artifacts comes back with empty Text.
func (p *Processor) Process(raw string) Result {
	text := Clean(raw)
	if text == "" {
		return Result{}
	}

	var corrections []Correction
	if p.matcher != nil {
		text, corrections = p.matcher.CorrectText(text)
	}

	return Result{
		Text:        text,
		IsQuestion:  IsQuestion(text),
		Corrections: corrections,
	}
}

// Clean strips recognition artifacts and leading fillers, restores dropped
// apostrophes, and normalises whitespace. Returns "" when nothing but
// artifacts remained.
func Clean(raw string) string {
	text := artifactPattern.ReplaceAllString(raw, " ")
	text = strings.Join(strings.Fields(text), " ")
	text = fillerPattern.ReplaceAllString(text, "")

	words := strings.Fields(text)
	for i, w := range words {
		core := strings.TrimRight(w, ".,!?;:")
		if fixed, ok := contractions[strings.ToLower(core)]; ok {
			words[i] = fixed + w[len(core):]
		}
	}
	return strings.Join(words, " ")
}

// IsQuestion reports whether text reads as a question: it ends with a
// question mark or opens with an interrogative or imperative phrase common in
// interviews ("explain", "walk me through", "design").
func IsQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, starter := range questionStarters {
		if strings.HasPrefix(lower, starter+" ") || lower == starter {
			return true
		}
	}
	return false
}
