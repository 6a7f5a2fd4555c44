package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/mindbase/internal/models"
)

// ChatStream asks a question over the chat websocket and calls onToken for
// each generated token. onSources, if non-nil, receives the grounding items
// before the first token.
func (c *Client) ChatStream(
	ctx context.Context,
	message string,
	history []models.ChatTurn,
	onSources func(sources []models.SavedItem),
	onToken func(token string) error,
) (*ChatResult, error) {
	wsURL, err := c.streamURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			return nil, &Error{Status: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(chatRequest{Message: message, History: history}); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	res := &ChatResult{}
	var answer strings.Builder
	for {
		var frame models.ChatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}

		switch frame.Type {
		case models.FrameSources:
			res.Sources = frame.Sources
			if onSources != nil {
				onSources(frame.Sources)
			}
		case models.FrameToken:
			answer.WriteString(frame.Content)
			if onToken != nil {
				if err := onToken(frame.Content); err != nil {
					return nil, err
				}
			}
		case models.FrameDone:
			res.Answer = frame.Answer
			if res.Answer == "" {
				res.Answer = answer.String()
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return res, nil
		case models.FrameError:
			if frame.Error == nil {
				return nil, &Error{Message: "chat failed"}
			}
			return nil, &Error{Code: frame.Error.Code, Message: frame.Error.Message}
		}
	}
}

func (c *Client) streamURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/chat/stream")
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
