// Package llm provides text completion using langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/mindbase/internal/config"
	"github.com/raphaelgruber/mindbase/internal/metrics"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
	timeout   time.Duration
	metrics   *metrics.Collector
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg config.Config, m *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		}
		// OpenAI-compatible providers such as Groq.
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	mdl := New(model, cfg.LLMModel, m)
	mdl.timeout = cfg.LLMTimeout
	return mdl, nil
}

// New wraps an existing langchaingo model.
func New(model llms.Model, name string, m *metrics.Collector) *Model {
	return &Model{llm: model, modelName: name, metrics: m}
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// Option tunes a single generation call.
type Option func(*callOptions)

type callOptions struct {
	maxTokens   int
	temperature float64
	tempSet     bool
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) Option {
	return func(o *callOptions) { o.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *callOptions) { o.temperature, o.tempSet = t, true }
}

func (m *Model) callOptions(opts []Option) []llms.CallOption {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	var out []llms.CallOption
	if o.maxTokens > 0 {
		out = append(out, llms.WithMaxTokens(o.maxTokens))
	}
	if o.tempSet {
		out = append(out, llms.WithTemperature(o.temperature))
	}
	return out
}

// Generate generates text based on a prompt.
func (m *Model) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	return m.generate(ctx, messages, m.callOptions(opts))
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts ...Option) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}
	return m.generate(ctx, messages, m.callOptions(opts))
}

// Chat answers message given a system prompt and prior conversation turns.
func (m *Model) Chat(ctx context.Context, systemPrompt string, history []models.ChatTurn, message string, opts ...Option) (string, error) {
	return m.generate(ctx, chatMessages(systemPrompt, history, message), m.callOptions(opts))
}

// ChatStream is Chat with incremental output. onToken receives each chunk as it
// arrives; returning an error from it aborts generation. The full answer is returned.
func (m *Model) ChatStream(ctx context.Context, systemPrompt string, history []models.ChatTurn, message string, onToken func(string) error, opts ...Option) (string, error) {
	callOpts := append(m.callOptions(opts), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		return onToken(string(chunk))
	}))

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, chatMessages(systemPrompt, history, message), callOpts...)
	if err != nil {
		m.metrics.RecordFailure(metrics.OpLLMStream, time.Since(start))
		return "", fmt.Errorf("chat stream: %w", wrapFatalError(err))
	}
	return m.firstChoice(resp, metrics.OpLLMStream, start)
}

func (m *Model) generate(ctx context.Context, messages []llms.MessageContent, callOpts []llms.CallOption) (string, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		m.metrics.RecordFailure(metrics.OpLLMGenerate, time.Since(start))
		slog.Debug("llm call failed", "model", m.modelName, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return "", fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	return m.firstChoice(resp, metrics.OpLLMGenerate, start)
}

func (m *Model) firstChoice(resp *llms.ContentResponse, op string, start time.Time) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		m.metrics.RecordFailure(op, time.Since(start))
		return "", fmt.Errorf("no response choices")
	}
	choice := resp.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	m.metrics.RecordLLMUsage(op, time.Since(start), in, out)
	return choice.Content, nil
}

func (m *Model) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

func chatMessages(systemPrompt string, history []models.ChatTurn, message string) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, message))
}

// tokenUsage reads prompt/completion token counts from provider-specific
// generation info keys. Missing keys count as zero.
func tokenUsage(info map[string]any) (int64, int64) {
	return firstInt(info, "PromptTokens", "InputTokens"), firstInt(info, "CompletionTokens", "OutputTokens")
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
