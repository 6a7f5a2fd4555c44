package models

import "github.com/raphaelgruber/mindbase/internal/metrics"

// APIError is the body of every non-2xx API response, under "error".
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps an APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// ItemPage is one page of a filtered item listing.
type ItemPage struct {
	Items  []SavedItem `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// ChatFrameType tags a streaming chat frame.
type ChatFrameType string

const (
	FrameSources ChatFrameType = "sources"
	FrameToken   ChatFrameType = "token"
	FrameDone    ChatFrameType = "done"
	FrameError   ChatFrameType = "error"
)

// ChatFrame is one websocket message of a streamed chat answer. A stream is
// one sources frame, zero or more token frames, then done or error.
type ChatFrame struct {
	Type    ChatFrameType `json:"type"`
	Content string        `json:"content,omitempty"`
	Sources []SavedItem   `json:"sources,omitempty"`
	Answer  string        `json:"answer,omitempty"`
	Error   *APIError     `json:"error,omitempty"`
}

// Stats reports the caller's item count and server runtime metrics.
type Stats struct {
	Items   int              `json:"items"`
	Metrics metrics.Snapshot `json:"metrics"`
}
