package variants

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// captionLimit truncates the campaign message drawn on the canvas.
	captionLimit = 50

	// centerLift raises the image above vertical center to leave room for
	// the caption band.
	centerLift = 50

	// captionBaseline is the caption's distance from the canvas bottom.
	captionBaseline = 100

	// shadowOffset displaces the duplicate caption draw that simulates a
	// drop shadow.
	shadowOffset = 2

	jpegQuality = 90
)

// Placement computes the fit-to-canvas rectangle for a base image. If the
// base aspect ratio is wider than the canvas's, the image scales to 80% of
// the canvas width; otherwise it scales to 70% of the canvas height. The
// result is centered horizontally and sits slightly above vertical center.
func Placement(baseW, baseH, canvasW, canvasH int) image.Rectangle {
	imgRatio := float64(baseW) / float64(baseH)
	canvasRatio := float64(canvasW) / float64(canvasH)

	var w, h int
	if imgRatio > canvasRatio {
		w = int(float64(canvasW) * 0.8)
		h = int(float64(w) / imgRatio)
	} else {
		h = int(float64(canvasH) * 0.7)
		w = int(float64(h) * imgRatio)
	}

	x := (canvasW - w) / 2
	y := (canvasH-h)/2 - centerLift
	return image.Rect(x, y, x+w, y+h)
}

// Render composes one platform variant: brand-colored canvas, the scaled
// base image, and the campaign message overlaid near the bottom with a drop
// shadow for legibility. Returns JPEG bytes.
func Render(base image.Image, spec Spec, message, primaryColor string) ([]byte, error) {
	bg, ok := parseHexColor(primaryColor)
	if !ok {
		bg = color.RGBA{0xff, 0xff, 0xff, 0xff}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)

	bounds := base.Bounds()
	place := Placement(bounds.Dx(), bounds.Dy(), spec.Width, spec.Height)
	xdraw.CatmullRom.Scale(canvas, place, base, bounds, xdraw.Over, nil)

	drawCaption(canvas, truncate(message, captionLimit), spec, bg)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("variants: encode %s: %w", spec.Platform, err)
	}
	return buf.Bytes(), nil
}

// drawCaption draws the message twice with a small offset: the shadow pass
// first, then the legible pass in white.
func drawCaption(canvas *image.RGBA, text string, spec Spec, bg color.RGBA) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	x := (spec.Width - width) / 2
	y := spec.Height - captionBaseline

	shadow := color.RGBA{A: 0xff}
	if bg.R == 0 && bg.G == 0 && bg.B == 0 {
		shadow = color.RGBA{0xff, 0xff, 0xff, 0xff}
	}

	drawText(canvas, text, x+shadowOffset, y+shadowOffset, shadow, face)
	drawText(canvas, text, x, y, color.RGBA{0xff, 0xff, 0xff, 0xff}, face)
}

func drawText(dst *image.RGBA, text string, x, y int, col color.RGBA, face font.Face) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// truncate caps s at limit runes, never splitting a multi-byte character.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// parseHexColor parses a #RRGGBB string.
func parseHexColor(s string) (color.RGBA, bool) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, false
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		hi, ok1 := hexDigit(s[1+i*2])
		lo, ok2 := hexDigit(s[2+i*2])
		if !ok1 || !ok2 {
			return color.RGBA{}, false
		}
		rgb[i] = hi<<4 | lo
	}
	return color.RGBA{rgb[0], rgb[1], rgb[2], 0xff}, true
}

func hexDigit(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
