package transcript_test

import (
	"testing"

	"github.com/auricle-ai/auricle/internal/transcript"
)

func TestClean_StripsArtifacts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"blank audio marker", "[BLANK_AUDIO]", ""},
		{"bracketed noise", "so [MUSIC] what is a mutex", "what is a mutex"},
		{"parenthesised noise", "(applause) thank you", "thank you"},
		{"music notes", "♪ la la la ♪ next question", "next question"},
		{"leading fillers", "um, uh, so, tell me about Go", "tell me about Go"},
		{"whitespace collapsed", "  what   is\tsharding  ", "what is sharding"},
		{"clean text untouched", "describe a B-tree", "describe a B-tree"},
		{"contractions restored", "whats the catch, dont you think?", "what's the catch, don't you think?"},
		{"contraction case fixed", "im not sure thats right", "I'm not sure that's right"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := transcript.Clean(tc.in); got != tc.want {
				t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestIsQuestion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want bool
	}{
		{"What is the time complexity of quicksort?", true},
		{"how would you scale this", true},
		{"Walk me through your resume", true},
		{"Design a URL shortener", true},
		{"explain the CAP theorem", true},
		{"Given an array of integers find the two that sum to k", true},
		{"That sounds good to me.", false},
		{"I worked at a startup for three years", false},
		{"", false},
		{"Right?", true},
	}

	for _, tc := range cases {
		if got := transcript.IsQuestion(tc.text); got != tc.want {
			t.Errorf("IsQuestion(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestTermMatcher_CorrectsPhoneticMangling(t *testing.T) {
	t.Parallel()

	m := transcript.NewTermMatcher([]string{"Kubernetes", "PostgreSQL", "Redis"})

	got, corrections := m.CorrectText("we deploy on kubernetees with redis caching")
	want := "we deploy on Kubernetes with Redis caching"
	if got != want {
		t.Errorf("CorrectText = %q, want %q", got, want)
	}
	if len(corrections) != 2 {
		t.Fatalf("expected 2 corrections, got %d: %+v", len(corrections), corrections)
	}
	if corrections[0].Original != "kubernetees" || corrections[0].Corrected != "Kubernetes" {
		t.Errorf("unexpected first correction: %+v", corrections[0])
	}
	if corrections[0].Confidence <= 0 {
		t.Errorf("expected positive confidence, got %v", corrections[0].Confidence)
	}
}

func TestTermMatcher_PreservesPunctuation(t *testing.T) {
	t.Parallel()

	m := transcript.NewTermMatcher([]string{"Kafka"})

	got, corrections := m.CorrectText("have you used kafkah?")
	if got != "have you used Kafka?" {
		t.Errorf("CorrectText = %q, want %q", got, "have you used Kafka?")
	}
	if len(corrections) != 1 {
		t.Fatalf("expected 1 correction, got %d", len(corrections))
	}
}

func TestTermMatcher_LeavesUnrelatedWordsAlone(t *testing.T) {
	t.Parallel()

	m := transcript.NewTermMatcher(transcript.DefaultTerms)

	in := "my favourite breakfast is toast and coffee"
	got, corrections := m.CorrectText(in)
	if got != in {
		t.Errorf("CorrectText changed unrelated text: %q", got)
	}
	if len(corrections) != 0 {
		t.Errorf("expected no corrections, got %+v", corrections)
	}
}

func TestTermMatcher_ExactHitsAreNotCorrections(t *testing.T) {
	t.Parallel()

	m := transcript.NewTermMatcher([]string{"Redis"})

	got, corrections := m.CorrectText("redis is an in-memory store")
	if got != "redis is an in-memory store" {
		t.Errorf("CorrectText = %q", got)
	}
	if len(corrections) != 0 {
		t.Errorf("case-only difference should not count as a correction: %+v", corrections)
	}
}

func TestProcessor_Process(t *testing.T) {
	t.Parallel()

	p := transcript.NewProcessor(
		transcript.WithTermMatcher(transcript.NewTermMatcher([]string{"Kubernetes"})),
	)

	res := p.Process("um, so [NOISE] how does kubernetees schedule pods?")
	if res.Text != "how does Kubernetes schedule pods?" {
		t.Errorf("Text = %q", res.Text)
	}
	if !res.IsQuestion {
		t.Error("expected IsQuestion")
	}
	if len(res.Corrections) != 1 {
		t.Errorf("expected 1 correction, got %+v", res.Corrections)
	}
}

func TestProcessor_AllArtifactsYieldsEmptyResult(t *testing.T) {
	t.Parallel()

	p := transcript.NewProcessor()

	res := p.Process("[BLANK_AUDIO] (silence)")
	if res.Text != "" || res.IsQuestion || len(res.Corrections) != 0 {
		t.Errorf("expected zero result, got %+v", res)
	}
}

func TestProcessor_WithoutMatcherSkipsCorrection(t *testing.T) {
	t.Parallel()

	p := transcript.NewProcessor()

	res := p.Process("tell me about kubernetees")
	if res.Text != "tell me about kubernetees" {
		t.Errorf("Text = %q", res.Text)
	}
	if !res.IsQuestion {
		t.Error("expected IsQuestion")
	}
}
