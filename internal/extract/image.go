package extract

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/webp"
)

var (
	// ErrInvalidBase64 means the payload could not be decoded.
	ErrInvalidBase64 = errors.New("invalid base64 image data")
	// ErrImageTooLarge means the decoded payload exceeds the size limit.
	ErrImageTooLarge = errors.New("image too large")
	// ErrInvalidImage means the bytes are not a supported image.
	ErrInvalidImage = errors.New("invalid image data")
)

// ImageInfo describes a validated image.
type ImageInfo struct {
	Format   string // png, jpeg, gif, webp
	MimeType string
	Width    int
	Height   int
	Size     int
}

// Extension returns the file extension for the image format.
func (i ImageInfo) Extension() string {
	if i.Format == "jpeg" {
		return "jpg"
	}
	return i.Format
}

// DecodeBase64Image decodes a base64 payload, accepting an optional
// "data:<mime>;base64," prefix and both standard and URL-safe alphabets.
// The returned mime type comes from the prefix and is empty without one.
func DecodeBase64Image(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	var mime string
	if strings.HasPrefix(payload, "data:") {
		header, rest, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, "", ErrInvalidBase64
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		payload = rest
	}
	payload = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, "", ErrInvalidBase64
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(payload); err == nil {
			return data, mime, nil
		}
	}
	return nil, "", ErrInvalidBase64
}

// ValidateImage checks size and that data decodes as a supported image.
// When declaredMime is set it must agree with the decoded format.
func ValidateImage(data []byte, declaredMime string, maxBytes int) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, ErrInvalidImage
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return ImageInfo{}, fmt.Errorf("%w: %d bytes (max %d)", ErrImageTooLarge, len(data), maxBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, fmt.Errorf("%w: zero dimensions", ErrInvalidImage)
	}

	info := ImageInfo{
		Format:   format,
		MimeType: "image/" + format,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Size:     len(data),
	}
	if declaredMime != "" && normalizeMime(declaredMime) != info.MimeType {
		return ImageInfo{}, fmt.Errorf("%w: declared %s but content is %s", ErrInvalidImage, declaredMime, info.MimeType)
	}
	return info, nil
}

func normalizeMime(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	if m == "image/jpg" || m == "image/pjpeg" {
		return "image/jpeg"
	}
	return m
}
