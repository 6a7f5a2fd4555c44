package classify

import (
	"testing"

	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		hint     models.ContentType
		wantType models.ContentType
		platform models.Platform
		url      string
	}{
		{"youtube watch", "https://www.youtube.com/watch?v=abc", "", models.ContentURL, models.PlatformYouTube, "https://www.youtube.com/watch?v=abc"},
		{"youtube short link", "https://youtu.be/abc", "", models.ContentURL, models.PlatformYouTube, "https://youtu.be/abc"},
		{"youtube shorts", "https://youtube.com/shorts/xyz", "", models.ContentURL, models.PlatformYouTube, "https://youtube.com/shorts/xyz"},
		{"youtube channel is generic", "https://www.youtube.com/@someone", "", models.ContentURL, models.PlatformGeneric, "https://www.youtube.com/@someone"},
		{"twitter", "https://twitter.com/user/status/1", "", models.ContentURL, models.PlatformTwitter, "https://twitter.com/user/status/1"},
		{"x.com", "https://x.com/user/status/1", "", models.ContentURL, models.PlatformTwitter, "https://x.com/user/status/1"},
		{"not x.com", "https://notx.com/page", "", models.ContentURL, models.PlatformGeneric, "https://notx.com/page"},
		{"tiktok", "https://www.tiktok.com/@u/video/1", "", models.ContentURL, models.PlatformTikTok, "https://www.tiktok.com/@u/video/1"},
		{"instagram", "https://instagram.com/p/abc", "", models.ContentURL, models.PlatformInstagram, "https://instagram.com/p/abc"},
		{"facebook mobile", "https://m.facebook.com/story", "", models.ContentURL, models.PlatformFacebook, "https://m.facebook.com/story"},
		{"telegram", "https://t.me/channel/42", "", models.ContentURL, models.PlatformTelegram, "https://t.me/channel/42"},
		{"whatsapp", "https://wa.me/123", "", models.ContentURL, models.PlatformWhatsApp, "https://wa.me/123"},
		{"generic", "https://example.com/article", "", models.ContentURL, models.PlatformGeneric, "https://example.com/article"},
		{"trimmed url", "  https://example.com/a \n", "", models.ContentURL, models.PlatformGeneric, "https://example.com/a"},
		{"plain text", "just some text", "", models.ContentText, models.PlatformGeneric, ""},
		{"text with url inside", "read this https://example.com later", "", models.ContentText, models.PlatformGeneric, ""},
		{"ftp is text", "ftp://example.com/file", "", models.ContentText, models.PlatformGeneric, ""},
		{"text hint on url", "https://example.com", models.ContentText, models.ContentText, models.PlatformGeneric, ""},
		{"url hint on url", "https://t.me/x", models.ContentURL, models.ContentURL, models.PlatformTelegram, "https://t.me/x"},
		{"url hint on text is ignored", "just some text", models.ContentURL, models.ContentText, models.PlatformGeneric, ""},
		{"image hint on url is ignored", "https://www.youtube.com/watch?v=abc", models.ContentImage, models.ContentURL, models.PlatformYouTube, "https://www.youtube.com/watch?v=abc"},
		{"image hint on text is ignored", "aGVsbG8=", models.ContentImage, models.ContentText, models.PlatformGeneric, ""},
		{"unknown hint is ignored", "https://x.com/a", "video", models.ContentURL, models.PlatformTwitter, "https://x.com/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.raw, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.platform, got.Platform)
			if tt.url == "" {
				assert.Nil(t, got.SourceURL)
			} else {
				require.NotNil(t, got.SourceURL)
				assert.Equal(t, tt.url, *got.SourceURL)
			}
		})
	}
}

func TestClassifyEmpty(t *testing.T) {
	_, err := Classify("   ", "")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestClassifyNeverFailsOnContent(t *testing.T) {
	hints := []models.ContentType{"", models.ContentText, models.ContentURL, models.ContentImage}
	inputs := []string{"hello", "https://example.com", "ftp://x", "x.com/a", "🙂", "https://"}
	for _, in := range inputs {
		for _, hint := range hints {
			_, err := Classify(in, hint)
			assert.NoError(t, err, "input %q hint %q", in, hint)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	inputs := []string{"https://www.youtube.com/watch?v=abc", "just some text", "https://x.com/a"}
	for _, in := range inputs {
		first, err := Classify(in, "")
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := Classify(in, "")
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestFindURL(t *testing.T) {
	u, ok := FindURL("check (https://youtu.be/abc). thanks")
	require.True(t, ok)
	assert.Equal(t, "https://youtu.be/abc", u)

	u, ok = FindURL("see https://example.com/page.")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/page", u)

	_, ok = FindURL("no links here")
	assert.False(t, ok)
}
