package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(w, h int) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, solid(w, h, color.RGBA{255, 0, 0, 255}), &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(w, h int) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, solid(w, h, color.RGBA{0, 0, 255, 255}))
	return buf.Bytes()
}

func decodedSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg output, got %s", format)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestPhotoFormats(t *testing.T) {
	for name, data := range map[string][]byte{
		"jpeg": encodeJPEG(100, 80),
		"png":  encodePNG(100, 80),
	} {
		out, err := Photo(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if w, h := decodedSize(t, out); w != 100 || h != 80 {
			t.Errorf("%s: expected 100x80, got %dx%d", name, w, h)
		}
	}
}

func TestPhotoDownscalesKeepingAspect(t *testing.T) {
	out, err := Photo(bytes.NewReader(encodeJPEG(2048, 1024)))
	if err != nil {
		t.Fatal(err)
	}
	if w, h := decodedSize(t, out); w != MaxDimension || h != MaxDimension/2 {
		t.Errorf("expected %dx%d, got %dx%d", MaxDimension, MaxDimension/2, w, h)
	}

	out, err = Photo(bytes.NewReader(encodePNG(300, 3000)))
	if err != nil {
		t.Fatal(err)
	}
	if w, h := decodedSize(t, out); h != MaxDimension || w != 102 {
		t.Errorf("expected 102x%d, got %dx%d", MaxDimension, w, h)
	}
}

func TestPhotoRejectsOtherFormats(t *testing.T) {
	for _, data := range [][]byte{[]byte("not an image"), []byte("GIF89a......")} {
		if _, err := Photo(bytes.NewReader(data)); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat for %q, got %v", data, err)
		}
	}
}

func TestPhotoTooLarge(t *testing.T) {
	data := make([]byte, MaxUploadBytes+1)
	if _, err := Photo(bytes.NewReader(data)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}
