package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// DefaultTerms is the technical vocabulary whisper most often mangles in
// software interviews. Callers with a narrower domain should pass their own
// list to NewTermMatcher.
var DefaultTerms = []string{
	"Kubernetes", "PostgreSQL", "Redis", "Kafka", "Cassandra", "Elasticsearch",
	"GraphQL", "gRPC", "OAuth", "Nginx", "RabbitMQ", "Terraform", "Prometheus",
	"idempotency", "memoization", "sharding", "Dijkstra", "mutex", "goroutine",
	"microservices", "websocket", "Paxos", "Raft",
}

// Correction records one term substitution applied to a transcript.
type Correction struct {
	// Original is the word as transcribed.
	Original string

	// Corrected is the canonical term that replaced it.
	Corrected string

	// Confidence is the Jaro-Winkler similarity that justified the
	// substitution.
	Confidence float64
}

// TermMatcher corrects phonetically mangled technical terms. Recognition is
// two-stage: Double Metaphone codes filter candidates (catching "coober
// netties" → "Kubernetes"), then Jaro-Winkler similarity on the raw strings
// ranks them and gates the substitution. Read-only after construction, safe
// for concurrent use.
type TermMatcher struct {
	terms             []term
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// term is one canonical entry with its precomputed phonetic codes.
type term struct {
	canonical string
	codes     map[string]struct{}
}

// TermOption is a functional option for configuring a TermMatcher.
type TermOption func(*TermMatcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matched term to be accepted. Default: 0.80.
func WithPhoneticThreshold(v float64) TermOption {
	return func(m *TermMatcher) { m.phoneticThreshold = v }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// code overlaps and the matcher falls back to pure string similarity.
// Default: 0.90.
func WithFuzzyThreshold(v float64) TermOption {
	return func(m *TermMatcher) { m.fuzzyThreshold = v }
}

// NewTermMatcher creates a matcher over the given canonical terms, typically
// [DefaultTerms].
func NewTermMatcher(terms []string, opts ...TermOption) *TermMatcher {
	m := &TermMatcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	for _, t := range terms {
		m.terms = append(m.terms, term{canonical: t, codes: phoneticCodes(t)})
	}
	return m
}

// Match tests one word against the vocabulary. When matched is false,
// corrected equals word unchanged and confidence is 0.
func (m *TermMatcher) Match(word string) (corrected string, confidence float64, matched bool) {
	w := strings.TrimSpace(word)
	if w == "" {
		return word, 0, false
	}

	inputCodes := phoneticCodes(w)

	var (
		best      string
		bestScore float64
		phonetic  bool
	)
	for _, t := range m.terms {
		overlap := codesOverlap(inputCodes, t.codes)
		score := matchr.JaroWinkler(strings.ToLower(w), strings.ToLower(t.canonical), false)
		switch {
		case overlap && score > bestScore:
			best, bestScore, phonetic = t.canonical, score, true
		case !overlap && !phonetic && score > bestScore:
			best, bestScore = t.canonical, score
		}
	}

	threshold := m.fuzzyThreshold
	if phonetic {
		threshold = m.phoneticThreshold
	}
	if best == "" || bestScore < threshold {
		return word, 0, false
	}
	// Exact hits (modulo case) are not corrections.
	if strings.EqualFold(w, best) {
		return word, 0, false
	}
	return best, bestScore, true
}

// CorrectText applies Match to every word of text, preserving trailing
// punctuation, and returns the corrected text with the substitution list.
func (m *TermMatcher) CorrectText(text string) (string, []Correction) {
	words := strings.Fields(text)
	var corrections []Correction

	for i, w := range words {
		core := strings.TrimRight(w, ".,!?;:")
		suffix := w[len(core):]
		if core == "" {
			continue
		}
		corrected, confidence, ok := m.Match(core)
		if !ok {
			continue
		}
		words[i] = corrected + suffix
		corrections = append(corrections, Correction{
			Original:   core,
			Corrected:  corrected,
			Confidence: confidence,
		})
	}
	return strings.Join(words, " "), corrections
}

// phoneticCodes returns the set of Double Metaphone codes for every word of s.
func phoneticCodes(s string) map[string]struct{} {
	codes := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		p, secondary := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
