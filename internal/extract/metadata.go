package extract

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Metadata is what a web page says about itself.
type Metadata struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Empty reports whether no field was found.
func (m Metadata) Empty() bool {
	return m.Title == "" && m.Description == "" && m.ThumbnailURL == ""
}

// ParseMetadata scans an HTML document for Open Graph, Twitter card and plain
// head metadata. Open Graph wins over Twitter, Twitter over <title> and the
// description meta tag. Relative image URLs are resolved against base.
func ParseMetadata(r io.Reader, base *url.URL) Metadata {
	var (
		og, tw, plain Metadata
		inTitle       bool
		titleText     strings.Builder
	)

	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return pick(og, tw, plain, titleText.String(), base)

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Title:
				inTitle = tt == html.StartTagToken
			case atom.Meta:
				key, content := metaPair(tok)
				if content == "" {
					continue
				}
				switch key {
				case "og:title":
					setOnce(&og.Title, content)
				case "og:description":
					setOnce(&og.Description, content)
				case "og:image", "og:image:url", "og:image:secure_url":
					setOnce(&og.ThumbnailURL, content)
				case "twitter:title":
					setOnce(&tw.Title, content)
				case "twitter:description":
					setOnce(&tw.Description, content)
				case "twitter:image", "twitter:image:src":
					setOnce(&tw.ThumbnailURL, content)
				case "description":
					setOnce(&plain.Description, content)
				}
			case atom.Body:
				// Head metadata is complete once the body starts.
				return pick(og, tw, plain, titleText.String(), base)
			}

		case html.TextToken:
			if inTitle && titleText.Len() == 0 {
				titleText.Write(z.Text())
			}

		case html.EndTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.Title {
				inTitle = false
			}
		}
	}
}

func metaPair(tok html.Token) (key, content string) {
	for _, a := range tok.Attr {
		switch strings.ToLower(a.Key) {
		case "property", "name":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(a.Val))
			}
		case "content":
			content = cleanText(a.Val)
		}
	}
	return key, content
}

func pick(og, tw, plain Metadata, title string, base *url.URL) Metadata {
	plain.Title = cleanText(title)
	m := Metadata{
		Title:        firstNonEmpty(og.Title, tw.Title, plain.Title),
		Description:  firstNonEmpty(og.Description, tw.Description, plain.Description),
		ThumbnailURL: firstNonEmpty(og.ThumbnailURL, tw.ThumbnailURL),
	}
	if m.ThumbnailURL != "" && base != nil {
		if ref, err := url.Parse(m.ThumbnailURL); err == nil {
			m.ThumbnailURL = base.ResolveReference(ref).String()
		}
	}
	return m
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// cleanText collapses whitespace runs into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
