package imagecache

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"time"

	// Registered formats.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Artifact is a decoded, render-ready image. It is owned by the Cache that
// produced it; renderers must treat it as read-only.
type Artifact struct {
	Frames []image.Image
	// Delays holds per-frame display durations for animated images.
	Delays []time.Duration
	Width  int
	Height int
	Format string
	Source string
}

// Animated reports whether the artifact has more than one frame.
func (a *Artifact) Animated() bool {
	return len(a.Frames) > 1
}

// DecodedBytes estimates the memory held by the decoded frames (RGBA).
func (a *Artifact) DecodedBytes() int64 {
	return int64(a.Width) * int64(a.Height) * 4 * int64(len(a.Frames))
}

// Decoder turns raw bytes into an Artifact.
type Decoder interface {
	Decode(data []byte) (*Artifact, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(data []byte) (*Artifact, error)

// Decode calls f(data).
func (f DecoderFunc) Decode(data []byte) (*Artifact, error) { return f(data) }

// ImageDecoder decodes WebP, PNG, JPEG and GIF payloads. GIFs keep every
// frame; other formats decode to a single frame.
type ImageDecoder struct{}

// Decode implements Decoder.
func (ImageDecoder) Decode(data []byte) (*Artifact, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}

	a := &Artifact{Width: cfg.Width, Height: cfg.Height, Format: format}
	if format == "gif" {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		for i, frame := range g.Image {
			a.Frames = append(a.Frames, frame)
			delay := 0
			if i < len(g.Delay) {
				delay = g.Delay[i]
			}
			a.Delays = append(a.Delays, time.Duration(delay)*10*time.Millisecond)
		}
		return a, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	a.Frames = []image.Image{img}
	a.Delays = []time.Duration{0}
	return a, nil
}
