// Package recognize reads a monetary amount out of a captured bitmap
// region. It is the optical fallback for platforms that render the headline
// value into a canvas or image instead of the DOM.
package recognize

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// Recognizer turns a captured image region into the text it shows.
// Production uses the ONNX digit classifier; tests use fakes.
type Recognizer interface {
	ReadAmount(imageBytes []byte) (string, error)
	Close() error
}

// glyph is one segmented character cell, normalized to glyphSize x glyphSize
// ink intensities in [0,1].
type glyph struct {
	pixels []float32
}

const glyphSize = 28

// segment decodes an image and splits it into per-character glyphs using a
// column ink histogram. Works for both light and dark themes by measuring
// ink as contrast against the border background.
func segment(imageBytes []byte) ([]glyph, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode region image: %w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty region image")
	}

	gray := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			gray[y*w+x] = (0.299*float32(r) + 0.587*float32(g) + 0.114*float32(bl)) / 65535.0
		}
	}

	// Background estimate: average of the border pixels.
	var bg float32
	var n int
	for x := 0; x < w; x++ {
		bg += gray[x] + gray[(h-1)*w+x]
		n += 2
	}
	for y := 0; y < h; y++ {
		bg += gray[y*w] + gray[y*w+w-1]
		n += 2
	}
	bg /= float32(n)

	ink := func(x, y int) float32 {
		d := gray[y*w+x] - bg
		if d < 0 {
			d = -d
		}
		if d < 0.25 {
			return 0
		}
		return d
	}

	// Column histogram -> contiguous runs of inked columns are characters.
	colInk := make([]bool, w)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			if ink(x, y) > 0 {
				colInk[x] = true
				break
			}
		}
	}

	var glyphs []glyph
	start := -1
	for x := 0; x <= w; x++ {
		inked := x < w && colInk[x]
		switch {
		case inked && start < 0:
			start = x
		case !inked && start >= 0:
			if g, ok := cutGlyph(ink, start, x, h); ok {
				glyphs = append(glyphs, g)
			}
			start = -1
		}
	}

	if len(glyphs) == 0 {
		return nil, fmt.Errorf("no characters found in region")
	}
	return glyphs, nil
}

// cutGlyph extracts columns [x0,x1) trimmed to its inked rows and rescales
// to the classifier input size.
func cutGlyph(ink func(x, y int) float32, x0, x1, h int) (glyph, bool) {
	y0, y1 := -1, -1
	for y := 0; y < h; y++ {
		for x := x0; x < x1; x++ {
			if ink(x, y) > 0 {
				if y0 < 0 {
					y0 = y
				}
				y1 = y + 1
				break
			}
		}
	}
	if y0 < 0 || x1-x0 < 2 || y1-y0 < 2 {
		return glyph{}, false
	}

	g := glyph{pixels: make([]float32, glyphSize*glyphSize)}
	gw, gh := x1-x0, y1-y0
	for gy := 0; gy < glyphSize; gy++ {
		for gx := 0; gx < glyphSize; gx++ {
			sx := x0 + gx*gw/glyphSize
			sy := y0 + gy*gh/glyphSize
			g.pixels[gy*glyphSize+gx] = ink(sx, sy)
		}
	}
	return g, true
}
