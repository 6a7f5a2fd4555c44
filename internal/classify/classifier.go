// Package classify determines the content type and source platform of captured input.
//
// Classification is pure: no I/O, no clock, no randomness. The same input and
// hint always produce the same Result.
package classify

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/raphaelgruber/mindbase/internal/models"
)

// ErrEmpty is returned for blank input.
var ErrEmpty = errors.New("content is empty")

// Result is the outcome of classification.
type Result struct {
	Type      models.ContentType
	Platform  models.Platform
	SourceURL *string
}

var (
	urlPattern      = regexp.MustCompile(`^https?://\S+$`)
	embeddedPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
)

// platformRule maps a host (and optional path prefix) to a platform.
type platformRule struct {
	platform   models.Platform
	host       string
	pathPrefix string
}

// rules is ordered: the first match wins.
var rules = []platformRule{
	{models.PlatformYouTube, "youtube.com", "/watch"},
	{models.PlatformYouTube, "youtube.com", "/shorts"},
	{models.PlatformYouTube, "youtu.be", "/"},
	{models.PlatformTwitter, "twitter.com", ""},
	{models.PlatformTwitter, "x.com", ""},
	{models.PlatformTikTok, "tiktok.com", ""},
	{models.PlatformInstagram, "instagram.com", ""},
	{models.PlatformFacebook, "facebook.com", ""},
	{models.PlatformFacebook, "fb.com", ""},
	{models.PlatformFacebook, "fb.watch", ""},
	{models.PlatformTelegram, "t.me", ""},
	{models.PlatformTelegram, "telegram.me", ""},
	{models.PlatformWhatsApp, "wa.me", ""},
	{models.PlatformWhatsApp, "chat.whatsapp.com", ""},
}

// Classify determines type, platform and source URL for raw content.
//
// A text hint is always honored. A url hint only counts when the content is a
// URL, and an image hint never does since images enter through upload. Any
// hint that does not fit is ignored and the content is classified by pattern.
func Classify(raw string, hint models.ContentType) (Result, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{}, ErrEmpty
	}

	isURL := IsURL(trimmed)

	if hint == models.ContentText || !isURL {
		return Result{Type: models.ContentText, Platform: models.PlatformGeneric}, nil
	}
	return Result{
		Type:      models.ContentURL,
		Platform:  DetectPlatform(trimmed),
		SourceURL: &trimmed,
	}, nil
}

// IsURL reports whether s, trimmed, is a single http(s) URL.
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	if !urlPattern.MatchString(s) {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

// DetectPlatform returns the platform a URL belongs to, or generic.
func DetectPlatform(rawURL string) models.Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return models.PlatformGeneric
	}
	host := normalizeHost(u.Hostname())
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	for _, r := range rules {
		if !hostMatches(host, r.host) {
			continue
		}
		if r.pathPrefix == "" || strings.HasPrefix(path, r.pathPrefix) {
			return r.platform
		}
	}
	return models.PlatformGeneric
}

// FindURL returns the first http(s) URL embedded in text.
func FindURL(text string) (string, bool) {
	m := embeddedPattern.FindString(text)
	if m == "" {
		return "", false
	}
	m = strings.TrimRight(m, ".,;:!?")
	return m, true
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, prefix := range []string{"www.", "m.", "mobile."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}

// hostMatches accepts the exact domain or any subdomain of it.
func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
