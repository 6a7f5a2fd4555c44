// Package models defines the data structures shared across MindBase.
package models

import (
	"time"
)

// ContentType is the abstract kind of a saved item.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentURL   ContentType = "url"
	ContentImage ContentType = "image"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case ContentText, ContentURL, ContentImage:
		return true
	}
	return false
}

// Platform identifies where a saved URL came from.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTelegram  Platform = "telegram"
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformGeneric   Platform = "generic"
)

// Platforms lists every known platform, generic last.
var Platforms = []Platform{
	PlatformYouTube,
	PlatformTwitter,
	PlatformTikTok,
	PlatformInstagram,
	PlatformFacebook,
	PlatformTelegram,
	PlatformWhatsApp,
	PlatformGeneric,
}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// MaxCategories bounds the number of labels an item can carry.
const MaxCategories = 5

// SavedItem is one piece of captured content.
type SavedItem struct {
	ID             string      `json:"id"`
	Owner          string      `json:"owner"`
	SourcePlatform Platform    `json:"source_platform"`
	SourceURL      *string     `json:"source_url,omitempty"`
	ContentType    ContentType `json:"content_type"`
	Title          *string     `json:"title,omitempty"`
	Description    *string     `json:"description,omitempty"`
	ThumbnailURL   *string     `json:"thumbnail_url,omitempty"`
	RawContent     string      `json:"raw_content"`
	ExtractedText  *string     `json:"extracted_text,omitempty"`
	AISummary      *string     `json:"ai_summary,omitempty"`
	Categories     []string    `json:"categories"`
	Notes          *string     `json:"notes,omitempty"`
	IsStarred      bool        `json:"is_starred"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// SearchableText returns the text used to embed the item: extracted text,
// else title and description, else notes. Empty when nothing is available.
func (i SavedItem) SearchableText() string {
	if s := Deref(i.ExtractedText); s != "" {
		return s
	}
	title, desc := Deref(i.Title), Deref(i.Description)
	switch {
	case title != "" && desc != "":
		return title + "\n\n" + desc
	case title != "":
		return title
	case desc != "":
		return desc
	}
	return Deref(i.Notes)
}

// CategoryCount is a label with the number of items carrying it for one owner.
type CategoryCount struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"item_count"`
	Color string `json:"color"`
}

// ChatRole is the speaker of a chat turn.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn is one message of a client-held conversation.
type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}
