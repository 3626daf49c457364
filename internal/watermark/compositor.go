// Package watermark stamps the brand mark onto generated result images,
// falling back to rendered text when the logo asset is unavailable.
package watermark

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	// DefaultText is stamped when no logo is available and the caller
	// supplies no text of its own.
	DefaultText = "FabricPress"

	logoWidthRatio   = 0.15
	logoPaddingRatio = 0.03
	logoOpacity      = 0.8

	textSizeRatio = 0.05
	minTextSize   = 16
	textAlpha     = 178 // 0.7 * 255

	// The logo key tolerance is looser than a typical chroma key: compressed
	// source logos carry anti-aliased fringes around the background color
	// that must be cleared too.
	defaultKeyTolerance = 100
)

// ColorKey describes which logo background color becomes transparent.
type ColorKey struct {
	R, G, B   uint8
	Tolerance float64
}

// DefaultLogoKey matches the yellow background of the shipped brand logo.
var DefaultLogoKey = ColorKey{R: 240, G: 230, B: 74, Tolerance: defaultKeyTolerance}

// Spec selects the mark to stamp. A non-empty Logo is tried first; an empty
// or undecodable logo falls back to Text (or DefaultText).
type Spec struct {
	Logo []byte
	Text string
}

// RemoveColorKey makes every pixel within the key's Euclidean RGB distance
// fully transparent, in place, and returns img. Pixels outside the tolerance
// are untouched, so the operation is idempotent.
func RemoveColorKey(img *image.NRGBA, key ColorKey) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			dr := float64(row[i]) - float64(key.R)
			dg := float64(row[i+1]) - float64(key.G)
			db := float64(row[i+2]) - float64(key.B)
			if math.Sqrt(dr*dr+dg*dg+db*db) < key.Tolerance {
				row[i+3] = 0
			}
		}
	}
	return img
}

// CompositeLogo chroma-keys a private copy of logo, scales it to 15% of the
// main image's width and draws it into the bottom-right corner at 0.8
// opacity. The main image's dimensions are never changed.
func CompositeLogo(main *image.NRGBA, logo image.Image) *image.NRGBA {
	mainW := main.Bounds().Dx()
	mainH := main.Bounds().Dy()

	keyed := RemoveColorKey(imaging.Clone(logo), DefaultLogoKey)

	targetW := int(math.Round(float64(mainW) * logoWidthRatio))
	if targetW < 1 {
		targetW = 1
	}
	scaled := imaging.Resize(keyed, targetW, 0, imaging.Lanczos)

	padding := int(math.Round(float64(mainW) * logoPaddingRatio))
	pos := image.Pt(
		mainW-scaled.Bounds().Dx()-padding,
		mainH-scaled.Bounds().Dy()-padding,
	)

	return imaging.Overlay(main, scaled, pos, logoOpacity)
}

// CompositeText renders text in an italic face sized to 5% of the main
// image's width (16px minimum), translucent orange, anchored bottom-right.
// The padding here equals the font size rather than the logo path's 3% of
// width; the two paths deliberately derive padding differently.
func CompositeText(main *image.NRGBA, text string) (*image.NRGBA, error) {
	if text == "" {
		text = DefaultText
	}

	mainW := main.Bounds().Dx()
	mainH := main.Bounds().Dy()

	fontSize := int(float64(mainW) * textSizeRatio)
	if fontSize < minTextSize {
		fontSize = minTextSize
	}

	face, err := italicFace(float64(fontSize))
	if err != nil {
		return nil, fmt.Errorf("load watermark face: %w", err)
	}
	defer face.Close()

	out := imaging.Clone(main)
	drawer := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 138, B: 0, A: textAlpha}),
		Face: face,
	}

	padding := fontSize
	x := mainW - drawer.MeasureString(text).Ceil() - padding
	if x < 0 {
		x = 0
	}
	baseline := mainH - padding

	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
	return out, nil
}

// Stamp applies the mark described by spec to main. A missing or corrupt
// logo is not an error: the text fallback is always a complete substitute,
// so only the text path's own failures propagate.
func Stamp(main *image.NRGBA, spec Spec) (*image.NRGBA, error) {
	if len(spec.Logo) > 0 {
		logo, err := imaging.Decode(bytes.NewReader(spec.Logo))
		if err == nil {
			return CompositeLogo(main, logo), nil
		}
	}
	return CompositeText(main, spec.Text)
}

var italic struct {
	once sync.Once
	font *opentype.Font
	err  error
}

func italicFace(size float64) (font.Face, error) {
	italic.once.Do(func() {
		italic.font, italic.err = opentype.Parse(goitalic.TTF)
	})
	if italic.err != nil {
		return nil, italic.err
	}
	return opentype.NewFace(italic.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
