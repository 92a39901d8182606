package inference

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(encodePNG(t))
}

func TestDecodeDataURL(t *testing.T) {
	img, err := DecodeDataURL(pngDataURL(t))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Format != "png" || img.Width != 4 || img.Height != 3 {
		t.Fatalf("unexpected image %s %dx%d", img.Format, img.Width, img.Height)
	}
	if !bytes.Equal(img.Data, encodePNG(t)) {
		t.Fatal("expected raw bytes preserved")
	}
}

func TestDecodeBareBase64(t *testing.T) {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White}), nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	img, err := DecodeDataURL(base64.StdEncoding.EncodeToString(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Format != "gif" {
		t.Fatalf("format = %q", img.Format)
	}
}

func TestDecodeDataURLFailures(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"no payload":     "data:image/png;base64",
		"not an image":   "data:text/plain;base64,aGVsbG8=",
		"bad base64":     "data:image/png;base64,@@@",
		"garbage image":  "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("not really a jpeg")),
		"not base64 url": "data:image/png,plain",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeDataURL(raw); err == nil {
				t.Fatalf("expected error for %q", raw)
			}
		})
	}
	if _, err := DecodeDataURL("   "); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}
