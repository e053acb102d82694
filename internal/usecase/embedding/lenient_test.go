package embedding

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/calyra/docdex/internal/metrics"
)

// stubEmbedder records the text it was asked to embed.
type stubEmbedder struct {
	lastText string
	calls    int
	vec      []float32
	err      error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.lastText = text
	s.calls++
	return s.vec, s.err
}

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	m.Run()
}

func TestLenient_PassThrough(t *testing.T) {
	inner := &stubEmbedder{vec: []float32{1, 2, 3}}
	l := NewLenient(inner, 100, zap.NewNop())

	vec, err := l.Embed(context.Background(), "short text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("vec = %v", vec)
	}
	if inner.lastText != "short text" {
		t.Errorf("text mutated: %q", inner.lastText)
	}
}

func TestLenient_TruncatesOversizedInput(t *testing.T) {
	inner := &stubEmbedder{vec: []float32{1}}
	l := NewLenient(inner, 10, zap.NewNop())

	_, err := l.Embed(context.Background(), strings.Repeat("x", 25))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := len(inner.lastText); got != 10 {
		t.Errorf("inner received %d chars, want 10", got)
	}
}

func TestLenient_TruncationCountsRunes(t *testing.T) {
	inner := &stubEmbedder{vec: []float32{1}}
	l := NewLenient(inner, 5, zap.NewNop())

	if _, err := l.Embed(context.Background(), strings.Repeat("é", 8)); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := utf8.RuneCountInString(inner.lastText); got != 5 {
		t.Errorf("inner received %d runes, want 5", got)
	}
	if !utf8.ValidString(inner.lastText) {
		t.Error("truncation split a rune")
	}
}

func TestLenient_SwallowsProviderError(t *testing.T) {
	inner := &stubEmbedder{err: errors.New("provider down")}
	l := NewLenient(inner, 100, zap.NewNop())

	vec, err := l.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("error must be swallowed, got %v", err)
	}
	if vec != nil {
		t.Fatalf("vec = %v, want nil on failure", vec)
	}
}

func TestLenient_EmptyInputSkipsProvider(t *testing.T) {
	inner := &stubEmbedder{vec: []float32{1}}
	l := NewLenient(inner, 100, zap.NewNop())

	vec, err := l.Embed(context.Background(), "")
	if err != nil || vec != nil {
		t.Fatalf("Embed(\"\") = %v, %v; want nil, nil", vec, err)
	}
	if inner.calls != 0 {
		t.Error("provider must not be called for empty input")
	}
}

// Whatever the input size, the wrapper neither errors nor exceeds the limit.
func TestLenient_NeverErrorsNeverExceedsLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	inner := &stubEmbedder{vec: []float32{1}}
	l := NewLenient(inner, 50, zap.NewNop())

	for i := 0; i < 100; i++ {
		n := rng.Intn(200)
		if _, err := l.Embed(context.Background(), strings.Repeat("a", n)); err != nil {
			t.Fatalf("input of %d chars errored: %v", n, err)
		}
		if n > 0 && len(inner.lastText) > 50 {
			t.Fatalf("inner received %d chars, limit 50", len(inner.lastText))
		}
	}
}
