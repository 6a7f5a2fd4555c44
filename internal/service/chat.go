package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/mindbase/internal/llm"
	"github.com/raphaelgruber/mindbase/internal/models"
)

const snippetMaxLen = 200

const chatPersona = `You are MindBase AI, an assistant that helps the user find and discuss content they saved: links, videos, social posts, notes and images.
Be helpful and concise. Refer to specific saved items by title when they are relevant.`

const noContextInstruction = `No saved content matched this message. Tell the user you found nothing relevant in their saved items, then help as best you can.`

// ChatInput is one user message plus the client-held conversation so far.
type ChatInput struct {
	Message string            `json:"message"`
	History []models.ChatTurn `json:"history,omitempty"`
}

// ChatResult is the model's answer and the items used to ground it.
type ChatResult struct {
	Answer  string             `json:"answer"`
	Sources []models.SavedItem `json:"sources"`
}

// Chat answers a message grounded in the owner's most relevant items.
// An empty search does not fail the call; a model failure does.
func (s *RetrievalService) Chat(ctx context.Context, owner string, in ChatInput) (*ChatResult, error) {
	req, err := s.prepareChat(ctx, owner, in)
	if err != nil {
		return nil, err
	}
	answer, err := s.model.Chat(ctx, req.system, req.history, req.message, chatOptions()...)
	if err != nil {
		return nil, modelErr(err)
	}
	return &ChatResult{Answer: strings.TrimSpace(answer), Sources: req.sources}, nil
}

// ChatStream is Chat with incremental delivery. onSources is called once
// before generation starts, onToken for every chunk of the answer.
func (s *RetrievalService) ChatStream(ctx context.Context, owner string, in ChatInput, onSources func([]models.SavedItem) error, onToken func(string) error) (*ChatResult, error) {
	req, err := s.prepareChat(ctx, owner, in)
	if err != nil {
		return nil, err
	}
	if onSources != nil {
		if err := onSources(req.sources); err != nil {
			return nil, err
		}
	}
	answer, err := s.model.ChatStream(ctx, req.system, req.history, req.message, onToken, chatOptions()...)
	if err != nil {
		return nil, modelErr(err)
	}
	return &ChatResult{Answer: strings.TrimSpace(answer), Sources: req.sources}, nil
}

type chatRequest struct {
	system  string
	history []models.ChatTurn
	message string
	sources []models.SavedItem
}

func (s *RetrievalService) prepareChat(ctx context.Context, owner string, in ChatInput) (*chatRequest, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, invalidf("message is empty")
	}
	if s.model == nil {
		return nil, fmt.Errorf("%w: no completion model configured", ErrModelUnavailable)
	}

	sources := []models.SavedItem{}
	res, err := s.Search(ctx, owner, SearchOptions{Query: message, Limit: s.cfg.ChatContextItems})
	if err != nil {
		slog.Warn("chat context search failed", "stage", "chat", "owner", owner, "error", err)
	} else {
		sources = res.Items
	}

	return &chatRequest{
		system:  buildChatPrompt(sources),
		history: trimHistory(in.History, s.cfg.ChatHistoryTurns),
		message: message,
		sources: sources,
	}, nil
}

func chatOptions() []llm.Option {
	return []llm.Option{llm.WithMaxTokens(500), llm.WithTemperature(0.7)}
}

func modelErr(err error) error {
	return fmt.Errorf("chat: %w: %w", ErrModelUnavailable, err)
}

// buildChatPrompt formats the system prompt with one line per context item.
func buildChatPrompt(items []models.SavedItem) string {
	var b strings.Builder
	b.WriteString(chatPersona)
	b.WriteString("\n\n")
	if len(items) == 0 {
		b.WriteString(noContextInstruction)
		return b.String()
	}
	b.WriteString("Relevant saved content:\n")
	for _, it := range items {
		title := models.Deref(it.Title)
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "- %s: %s\n", title, snippet(it))
	}
	return b.String()
}

func snippet(it models.SavedItem) string {
	for _, s := range []*string{it.AISummary, it.Description, it.ExtractedText, it.Notes} {
		if v := strings.TrimSpace(models.Deref(s)); v != "" {
			return models.Truncate(strings.Join(strings.Fields(v), " "), snippetMaxLen, "...")
		}
	}
	return ""
}

// trimHistory keeps the last n well-formed turns.
func trimHistory(turns []models.ChatTurn, n int) []models.ChatTurn {
	out := make([]models.ChatTurn, 0, len(turns))
	for _, t := range turns {
		if (t.Role != models.RoleUser && t.Role != models.RoleAssistant) || strings.TrimSpace(t.Content) == "" {
			continue
		}
		out = append(out, t)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
