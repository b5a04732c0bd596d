package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

var (
	ErrInvalidImage = errors.New("invalid image")
	ErrUnsupported  = errors.New("unsupported image type")
)

type ThumbnailOptions struct {
	MaxDim      int
	JPEGQuality int
	// Transparent sources are flattened onto this background.
	FlattenBackground colorRGB
}

type colorRGB struct{ R, G, B uint8 }

func DefaultThumbnailOptions() ThumbnailOptions {
	return ThumbnailOptions{
		MaxDim:            480,
		JPEGQuality:       80,
		FlattenBackground: colorRGB{R: 255, G: 255, B: 255},
	}
}

// SniffContentType detects the MIME type of an attachment from its leading bytes.
func SniffContentType(header []byte) string {
	return mimetype.Detect(header).String()
}

func decodeImage(data []byte) (image.Image, error) {
	mt := mimetype.Detect(data)
	r := bytes.NewReader(data)
	switch {
	case mt.Is("image/jpeg"):
		return jpeg.Decode(r)
	case mt.Is("image/png"):
		return png.Decode(r)
	case mt.Is("image/gif"):
		return gif.Decode(r)
	case mt.Is("image/webp"):
		return webp.Decode(r)
	}
	return nil, ErrUnsupported
}

func decodeImageConfig(data []byte) (image.Config, error) {
	mt := mimetype.Detect(data)
	r := bytes.NewReader(data)
	switch {
	case mt.Is("image/jpeg"):
		return jpeg.DecodeConfig(r)
	case mt.Is("image/png"):
		return png.DecodeConfig(r)
	case mt.Is("image/gif"):
		return gif.DecodeConfig(r)
	case mt.Is("image/webp"):
		return webp.DecodeConfig(r)
	}
	return image.Config{}, ErrUnsupported
}

// ImageDimensions reads width and height without decoding pixels.
func ImageDimensions(data []byte) (int, int, error) {
	cfg, err := decodeImageConfig(data)
	if err != nil {
		return 0, 0, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, ErrInvalidImage
	}
	return cfg.Width, cfg.Height, nil
}

// MakeThumbnail decodes an image, downscales it to fit within MaxDim and
// encodes it as JPEG. It never upscales.
func MakeThumbnail(data []byte, opts ThumbnailOptions) ([]byte, error) {
	if opts.MaxDim <= 0 {
		opts.MaxDim = 480
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 80
	}

	img, err := decodeImage(data)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrInvalidImage
	}

	tw, th := fitWithin(w, h, opts.MaxDim)

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	bg := image.NewUniform(color.RGBA{R: opts.FlattenBackground.R, G: opts.FlattenBackground.G, B: opts.FlattenBackground.B, A: 255})
	draw.Draw(dst, dst.Bounds(), bg, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out.Bytes(), nil
}

// fitWithin preserves aspect ratio and never returns a side below 1.
func fitWithin(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	var tw, th int
	if w >= h {
		tw = maxDim
		th = int(float64(h) * (float64(maxDim) / float64(w)))
	} else {
		th = maxDim
		tw = int(float64(w) * (float64(maxDim) / float64(h)))
	}
	return max(tw, 1), max(th, 1)
}
