// internal/analysis/image_test.go
package analysis

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"image"
	"image/jpeg"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareImage(t *testing.T) {
	b64 := testImage(t)

	img, err := PrepareImage(b64, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIME)
	assert.Equal(t, 2, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Equal(t, b64, img.Base64)

	withURI, err := PrepareImage("data:image/png;base64,"+b64, 0)
	require.NoError(t, err)
	assert.Equal(t, img.Base64, withURI.Base64)

	wrapped := b64[:10] + "\n" + b64[10:20] + "\r\n  " + b64[20:]
	fromWrapped, err := PrepareImage(wrapped, 0)
	require.NoError(t, err)
	assert.Equal(t, img.Size, fromWrapped.Size)

	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	urlSafe, err := PrepareImage(base64.RawURLEncoding.EncodeToString(raw), 0)
	require.NoError(t, err)
	assert.Equal(t, b64, urlSafe.Base64)
}

func TestPrepareImage_Rejects(t *testing.T) {
	b64 := testImage(t)
	tests := []struct {
		name     string
		data     string
		maxBytes int
		msg      string
	}{
		{name: "empty", data: "   ", msg: "required"},
		{name: "bad base64", data: "!!!!", msg: "base64"},
		{name: "too large", data: b64, maxBytes: 8, msg: "limit"},
		{name: "text", data: base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 64))), msg: "format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrepareImage(tt.data, tt.maxBytes)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, KindInvalidRequest, e.Kind)
			assert.Contains(t, e.Message, tt.msg)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	req := &Request{
		MealContext:        MealDinner,
		DietaryPreferences: []string{" vegetarian ", "Vegetarian", ""},
		HealthFocus:        []string{"low sodium"},
	}
	p := BuildPrompt(req, &Image{Base64: "AAAA", MIME: "image/jpeg"}, PromptOptions{InsightLanguage: "English", MaxOutputTokens: 1024})

	assert.Contains(t, p.User, "Meal type: dinner")
	assert.Contains(t, p.User, "dietary preferences: vegetarian\n")
	assert.Contains(t, p.User, "health focus: low sodium")
	assert.Contains(t, p.User, "insight in English")
	assert.Equal(t, "image/jpeg", p.ImageMIME)
	assert.Equal(t, 1024, p.MaxOutputTokens)
	assert.Contains(t, p.System, `"foods"`)

	def := BuildPrompt(&Request{}, &Image{}, PromptOptions{})
	assert.Contains(t, def.User, "Meal type: snack")
	assert.Contains(t, def.User, "insight in Turkish")
}

func TestParseMealContext(t *testing.T) {
	for in, want := range map[string]MealContext{
		"":          MealSnack,
		"Breakfast": MealBreakfast,
		" lunch ":   MealLunch,
		"DINNER":    MealDinner,
		"snack":     MealSnack,
	} {
		got, err := ParseMealContext(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMealContext("midnight feast")
	assert.Error(t, err)
}

// exifJPEG encodes a small JPEG carrying an EXIF DateTime tag.
func exifJPEG(t *testing.T, taken string) string {
	t.Helper()
	var enc bytes.Buffer
	require.NoError(t, jpeg.Encode(&enc, image.NewGray(image.Rect(0, 0, 8, 8)), nil))

	// Little-endian TIFF header, IFD0 with a single ASCII DateTime entry.
	value := append([]byte(taken), 0)
	tiffData := []byte{'I', 'I', 0x2a, 0x00, 0x08, 0x00, 0x00, 0x00}
	tiffData = binary.LittleEndian.AppendUint16(tiffData, 1)
	tiffData = binary.LittleEndian.AppendUint16(tiffData, 0x0132)
	tiffData = binary.LittleEndian.AppendUint16(tiffData, 2)
	tiffData = binary.LittleEndian.AppendUint32(tiffData, uint32(len(value)))
	tiffData = binary.LittleEndian.AppendUint32(tiffData, 26)
	tiffData = binary.LittleEndian.AppendUint32(tiffData, 0)
	tiffData = append(tiffData, value...)

	payload := append([]byte("Exif\x00\x00"), tiffData...)
	segment := []byte{0xff, 0xe1}
	segment = binary.BigEndian.AppendUint16(segment, uint16(len(payload)+2))
	segment = append(segment, payload...)

	raw := enc.Bytes()
	out := append([]byte{}, raw[:2]...)
	out = append(out, segment...)
	out = append(out, raw[2:]...)
	return base64.StdEncoding.EncodeToString(out)
}

func TestPrepareImage_CaptureTime(t *testing.T) {
	img, err := PrepareImage(exifJPEG(t, "2026:03:10 12:30:00"), 0)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIME)
	assert.True(t, img.TakenAt.Equal(time.Date(2026, 3, 10, 12, 30, 0, 0, time.Local)), "got %s", img.TakenAt)

	plain, err := PrepareImage(testImage(t), 0)
	require.NoError(t, err)
	assert.True(t, plain.TakenAt.IsZero())
}
