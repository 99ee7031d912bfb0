// Package imagedata handles the opaque encoded image carried through an
// analysis attempt: a data URL ("data:image/png;base64,...") or bare base64.
package imagedata

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

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmpty       = errors.New("image payload is empty")
	ErrNotBase64   = errors.New("image payload is not valid base64")
	ErrNotAnImage  = errors.New("payload is not an image")
	ErrBadDataURL  = errors.New("malformed data URL")
	base64Encoders = []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
)

// Payload is a decoded still frame.
type Payload struct {
	MIME string
	Data []byte
}

// Info describes the frame geometry, when the format is decodable.
type Info struct {
	Format string
	Width  int
	Height int
}

// StripPrefix removes a data URL header and returns the base64 body.
func StripPrefix(encoded string) string {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") || strings.Contains(encoded, ";base64,") {
		if idx := strings.IndexByte(encoded, ','); idx >= 0 {
			return encoded[idx+1:]
		}
	}
	return encoded
}

// Parse decodes an encoded image into raw bytes. The MIME type comes from the
// data URL header when there is one, otherwise it is sniffed from the bytes.
func Parse(encoded string) (Payload, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return Payload{}, ErrEmpty
	}

	var declared string
	if strings.HasPrefix(encoded, "data:") {
		header, _, found := strings.Cut(encoded, ",")
		if !found {
			return Payload{}, ErrBadDataURL
		}
		meta := strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(meta, ";base64") {
			return Payload{}, fmt.Errorf("%w: only base64 data URLs are supported", ErrBadDataURL)
		}
		declared = strings.TrimSuffix(meta, ";base64")
	}

	body := StripPrefix(encoded)
	if body == "" {
		return Payload{}, ErrEmpty
	}
	data, err := decodeBase64(body)
	if err != nil {
		return Payload{}, err
	}

	mime := declared
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	return Payload{MIME: mime, Data: data}, nil
}

func decodeBase64(body string) ([]byte, error) {
	body = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, body)
	for _, enc := range base64Encoders {
		if data, err := enc.DecodeString(body); err == nil && len(data) > 0 {
			return data, nil
		}
	}
	return nil, ErrNotBase64
}

// Encode wraps raw image bytes into a data URL after checking the bytes
// really are an image.
func Encode(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotAnImage, mt.String())
	}
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Base64 returns the body the provider expects: base64 without any header.
func (p Payload) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

// Inspect reads the frame header for its dimensions.
func (p Payload) Inspect() (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(p.Data))
	if err != nil {
		return Info{}, fmt.Errorf("decode image header: %w", err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
