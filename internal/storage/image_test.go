package storage

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestMakeThumbnail_PNG_ToJPEG(t *testing.T) {
	out, err := MakeThumbnail(encodePNG(t, 120, 60), DefaultThumbnailOptions())
	if err != nil {
		t.Fatalf("MakeThumbnail: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("jpeg decode: %v", err)
	}
	if decoded.Bounds().Dx() != 120 || decoded.Bounds().Dy() != 60 {
		t.Fatalf("dims = %dx%d, want 120x60", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}

func TestMakeThumbnail_DownscalesToFit(t *testing.T) {
	opts := DefaultThumbnailOptions()
	opts.MaxDim = 100
	out, err := MakeThumbnail(encodePNG(t, 200, 50), opts)
	if err != nil {
		t.Fatalf("MakeThumbnail: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("jpeg decode: %v", err)
	}
	// 200x50 scaled to fit MaxDim=100 => 100x25
	if decoded.Bounds().Dx() != 100 || decoded.Bounds().Dy() != 25 {
		t.Fatalf("dims = %dx%d, want 100x25", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}

func TestMakeThumbnail_Unsupported(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, 128)
	_, err := MakeThumbnail(payload, DefaultThumbnailOptions())
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestImageDimensions(t *testing.T) {
	w, h, err := ImageDimensions(encodePNG(t, 31, 17))
	if err != nil {
		t.Fatalf("ImageDimensions: %v", err)
	}
	if w != 31 || h != 17 {
		t.Errorf("dims = %dx%d, want 31x17", w, h)
	}
}

func TestSniffContentType(t *testing.T) {
	if got := SniffContentType(encodePNG(t, 2, 2)); got != "image/png" {
		t.Errorf("SniffContentType = %q, want image/png", got)
	}
	if got := SniffContentType([]byte("%PDF-1.7\n")); got != "application/pdf" {
		t.Errorf("SniffContentType = %q, want application/pdf", got)
	}
}
