// internal/analysis/image.go
package analysis

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"
)

const defaultMaxImageBytes = 5 * 1024 * 1024

// Image is a decoded and sniffed request photo.
type Image struct {
	Base64 string
	MIME   string
	Size   int
	Width  int
	Height int
	// TakenAt is the EXIF capture time, zero when the photo carries none.
	TakenAt time.Time
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// PrepareImage validates a base64 photo: it must decode, fit in maxBytes and
// be a jpeg, png, gif or webp image.
func PrepareImage(data string, maxBytes int) (*Image, error) {
	const op = "analysis.PrepareImage"
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}

	data = stripDataURI(strings.TrimSpace(data))
	if data == "" {
		return nil, newError(KindInvalidRequest, op, "image is required")
	}
	data = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t', ' ':
			return -1
		}
		return r
	}, data)

	raw, err := decodeBase64(data)
	if err != nil {
		return nil, wrapError(KindInvalidRequest, op, "image is not valid base64", err)
	}
	if len(raw) == 0 {
		return nil, newError(KindInvalidRequest, op, "image is empty")
	}
	if len(raw) > maxBytes {
		return nil, newError(KindInvalidRequest, op,
			fmt.Sprintf("image is %d bytes, limit is %d", len(raw), maxBytes))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, wrapError(KindInvalidRequest, op, "unsupported image format", err)
	}

	return &Image{
		Base64:  base64.StdEncoding.EncodeToString(raw),
		MIME:    "image/" + format,
		Size:    len(raw),
		Width:   cfg.Width,
		Height:  cfg.Height,
		TakenAt: captureTime(raw, format),
	}, nil
}

func captureTime(raw []byte, format string) time.Time {
	if format != "jpeg" {
		return time.Time{}
	}
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return time.Time{}
	}
	ts, err := x.DateTime()
	if err != nil {
		return time.Time{}
	}
	return ts
}

func stripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if idx := strings.Index(s, ";base64,"); idx >= 0 {
		return s[idx+len(";base64,"):]
	}
	return s
}

func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range base64Encodings {
		raw, err := enc.DecodeString(s)
		if err == nil {
			return raw, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
