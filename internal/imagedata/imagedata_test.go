package imagedata

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, G: 150, B: 120, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStripPrefix(t *testing.T) {
	assert.Equal(t, "QUJD", StripPrefix("data:image/jpeg;base64,QUJD"))
	assert.Equal(t, "QUJD", StripPrefix("  QUJD  "))
	assert.Equal(t, "QUJD", StripPrefix("image/png;base64,QUJD"))
}

func TestParse_DataURL(t *testing.T) {
	raw := testPNG(t, 4, 3)
	encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	p, err := Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, "image/png", p.MIME)
	assert.Equal(t, raw, p.Data)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), p.Base64())

	info, err := p.Inspect()
	require.NoError(t, err)
	assert.Equal(t, Info{Format: "png", Width: 4, Height: 3}, info)
}

func TestParse_BareBase64SniffsMIME(t *testing.T) {
	raw := testPNG(t, 2, 2)
	p, err := Parse(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, "image/png", p.MIME)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"empty", "   ", ErrEmpty},
		{"header only", "data:image/png;base64,", ErrEmpty},
		{"no comma", "data:image/png;base64", ErrBadDataURL},
		{"not base64 data url", "data:text/plain,hello", ErrBadDataURL},
		{"garbage", "!!!not-base64!!!", ErrNotBase64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEncode(t *testing.T) {
	raw := testPNG(t, 1, 1)
	encoded, err := Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(raw), encoded)

	_, err = Encode([]byte("plain text, not a photo"))
	require.ErrorIs(t, err, ErrNotAnImage)

	_, err = Encode(nil)
	require.ErrorIs(t, err, ErrEmpty)
}
