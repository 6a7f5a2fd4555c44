package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/raphaelgruber/mindbase/internal/enrich"
	"github.com/raphaelgruber/mindbase/internal/extract"
	"github.com/raphaelgruber/mindbase/internal/llm"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/raphaelgruber/mindbase/internal/service/servicetest"
)

var _ Store = (*servicetest.MemStore)(nil)

// fakeExtractor returns a fixed result for URLs and passes text through.
type fakeExtractor struct {
	url extract.Result
}

func (f fakeExtractor) Extract(_ context.Context, in extract.Input) extract.Result {
	switch in.Type {
	case models.ContentText:
		return extract.Result{Text: strings.TrimSpace(in.Raw)}
	case models.ContentURL:
		return f.url
	}
	return extract.Result{Text: strings.TrimSpace(in.Notes)}
}

// fakeEnricher embeds text as a bag of keyword hits so related texts land
// near each other.
type fakeEnricher struct {
	summary    *string
	categories []string
	noEmbed    bool
	calls      int
	mu         sync.Mutex
}

var fakeVocab = []string{"example", "article", "rust", "cooking", "chatgpt", "music", "photo", "finance"}

func fakeEmbed(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(fakeVocab)+1)
	vec[len(fakeVocab)] = 0.01
	for i, w := range fakeVocab {
		if strings.Contains(lower, w) {
			vec[i] = 1
		}
	}
	return vec
}

func (f *fakeEnricher) Enrich(ctx context.Context, text string) enrich.Result {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return enrich.Result{}
	}
	return enrich.Result{Summary: f.summary, Categories: f.categories, Embedding: f.Embed(ctx, text)}
}

func (f *fakeEnricher) Categorize(context.Context, string) []string { return f.categories }

func (f *fakeEnricher) Embed(_ context.Context, text string) []float32 {
	if f.noEmbed || strings.TrimSpace(text) == "" {
		return nil
	}
	return fakeEmbed(text)
}

// fakeModel records the prompt it was given.
type fakeModel struct {
	answer  string
	err     error
	system  string
	history []models.ChatTurn
	message string
}

func (m *fakeModel) Chat(_ context.Context, system string, history []models.ChatTurn, message string, _ ...llm.Option) (string, error) {
	m.system, m.history, m.message = system, history, message
	return m.answer, m.err
}

func (m *fakeModel) ChatStream(ctx context.Context, system string, history []models.ChatTurn, message string, onToken func(string) error, opts ...llm.Option) (string, error) {
	answer, err := m.Chat(ctx, system, history, message, opts...)
	if err != nil {
		return "", err
	}
	for _, w := range strings.SplitAfter(answer, " ") {
		if err := onToken(w); err != nil {
			return "", err
		}
	}
	return answer, nil
}

var errStoreDown = errors.New("connection refused")
