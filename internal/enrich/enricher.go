// Package enrich derives a summary, category labels and an embedding for
// saved content. Every step is soft-fail: a missing capability or a failed
// call leaves the corresponding field empty.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/raphaelgruber/mindbase/internal/embedding"
	"github.com/raphaelgruber/mindbase/internal/llm"
	"github.com/raphaelgruber/mindbase/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	// SummaryMinLen is the text length, in runes, above which a summary is generated.
	SummaryMinLen = 100
	// PromptMaxLen caps content sent to the completion model, in runes.
	PromptMaxLen = 3000
)

// DefaultVocabulary lists the suggested category labels.
var DefaultVocabulary = []string{
	"Technology", "Finance", "Health", "Entertainment", "News", "Tutorial",
	"Crypto", "AI", "Programming", "Business", "Science", "Sports", "Reading",
}

// Completer is the completion capability used for summaries and categories.
type Completer interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts ...llm.Option) (string, error)
}

// Result holds enrichment output. Nil or empty fields were not produced.
type Result struct {
	Summary    *string
	Categories []string
	Embedding  []float32
}

// Enricher runs the enrichment capabilities.
type Enricher struct {
	model        Completer
	embedder     embedding.Embedder
	vocabulary   []string
	llmTimeout   time.Duration
	embedTimeout time.Duration
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithVocabulary replaces the suggested category labels.
func WithVocabulary(v []string) Option {
	return func(e *Enricher) { e.vocabulary = v }
}

// WithTimeouts bounds completion and embedding calls.
func WithTimeouts(llmTimeout, embedTimeout time.Duration) Option {
	return func(e *Enricher) { e.llmTimeout, e.embedTimeout = llmTimeout, embedTimeout }
}

// New creates an Enricher. Either capability may be nil.
func New(model Completer, embedder embedding.Embedder, opts ...Option) *Enricher {
	e := &Enricher{
		model:      model,
		embedder:   embedder,
		vocabulary: DefaultVocabulary,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Vocabulary returns the suggested category labels.
func (e *Enricher) Vocabulary() []string {
	return e.vocabulary
}

// CanEmbed reports whether an embedding capability is configured.
func (e *Enricher) CanEmbed() bool {
	return e.embedder != nil
}

// Enrich runs completion and embedding concurrently. A summary is only
// requested for text longer than SummaryMinLen runes; shorter text is its own
// summary and Result.Summary stays nil even if the model offers one.
func (e *Enricher) Enrich(ctx context.Context, text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}
	}

	var res Result
	var g errgroup.Group
	g.Go(func() error {
		a := e.analyze(ctx, text, needsSummary(text))
		if a.Summary != "" {
			res.Summary = &a.Summary
		}
		res.Categories = a.Categories
		return nil
	})
	g.Go(func() error {
		res.Embedding = e.Embed(ctx, text)
		return nil
	})
	_ = g.Wait()
	return res
}

// Summarize returns a short summary, or nil for short text or on failure.
func (e *Enricher) Summarize(ctx context.Context, text string) *string {
	text = strings.TrimSpace(text)
	if !needsSummary(text) {
		return nil
	}
	if a := e.analyze(ctx, text, true); a.Summary != "" {
		return &a.Summary
	}
	return nil
}

// Categorize returns up to models.MaxCategories labels.
func (e *Enricher) Categorize(ctx context.Context, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return e.analyze(ctx, text, false).Categories
}

// Embed returns the embedding for text, or nil on failure.
func (e *Enricher) Embed(ctx context.Context, text string) []float32 {
	if e.embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	ctx, cancel := withTimeout(ctx, e.embedTimeout)
	defer cancel()

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		logStepFailure("embedding", err)
		return nil
	}
	return vec
}

func (e *Enricher) analyze(ctx context.Context, text string, wantSummary bool) analysis {
	if e.model == nil {
		return analysis{}
	}
	ctx, cancel := withTimeout(ctx, e.llmTimeout)
	defer cancel()

	raw, err := e.model.GenerateWithSystem(ctx, e.systemPrompt(wantSummary), models.Truncate(text, PromptMaxLen, ""),
		llm.WithMaxTokens(400), llm.WithTemperature(0.3))
	if err != nil {
		logStepFailure("summary+categories", err)
		return analysis{}
	}

	a := parseAnalysis(raw)
	if !wantSummary {
		a.Summary = ""
	}
	a.Categories = normalizeLabels(a.Categories, e.vocabulary)
	if len(a.Categories) == 0 {
		slog.Warn("no categories parsed from model reply", "stage", "categories", "reply_len", len(raw))
	}
	return a
}

func (e *Enricher) systemPrompt(wantSummary bool) string {
	var b strings.Builder
	b.WriteString("You organize a personal knowledge library. Analyze the user's saved content.\n")
	if wantSummary {
		b.WriteString("Write a concise summary of 2-3 sentences capturing the key points.\n")
	}
	fmt.Fprintf(&b, "Pick 1-3 categories. Prefer these when they fit: %s. Use a short new label only when none fit.\n",
		strings.Join(e.vocabulary, ", "))
	if wantSummary {
		b.WriteString(`Reply with JSON only: {"summary": "...", "categories": ["..."]}`)
	} else {
		b.WriteString(`Reply with JSON only: {"categories": ["..."]}`)
	}
	return b.String()
}

func needsSummary(text string) bool {
	return utf8.RuneCountInString(text) > SummaryMinLen
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func logStepFailure(stage string, err error) {
	if llm.IsFatal(err) {
		slog.Error("enrichment step failed", "stage", stage, "error", err)
		return
	}
	slog.Warn("enrichment step failed", "stage", stage, "error", err)
}
