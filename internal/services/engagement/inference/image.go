package inference

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

// ErrEmptyImage is returned for a blank image payload.
var ErrEmptyImage = errors.New("image payload is empty")

// Image is an encoded still frame that decoded cleanly.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// DecodeDataURL parses a base64 image, with or without a data URL prefix,
// and verifies it decodes as JPEG, PNG, GIF, or WebP.
func DecodeDataURL(raw string) (Image, error) {
	payload := strings.TrimSpace(raw)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return Image{}, fmt.Errorf("data url has no payload")
		}
		header := payload[:comma]
		if !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
			return Image{}, fmt.Errorf("unsupported data url header %q", header)
		}
		payload = payload[comma+1:]
	}
	if payload == "" {
		return Image{}, ErrEmptyImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode base64: %w", err)
	}
	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := decoded.Bounds()
	return Image{Data: data, Format: format, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}
