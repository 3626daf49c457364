package watermark

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestRemoveColorKey(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 240, G: 230, B: 74, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 20, G: 20, B: 200, A: 255})

	RemoveColorKey(img, DefaultLogoKey)

	if img.Pix[3] != 0 {
		t.Fatalf("expected key-colored pixel to become transparent, alpha=%d", img.Pix[3])
	}
	if img.Pix[7] != 255 {
		t.Fatalf("expected distant pixel to keep alpha, alpha=%d", img.Pix[7])
	}

	// RGB of the keyed pixel must survive; only alpha is cleared.
	if img.Pix[0] != 240 || img.Pix[1] != 230 || img.Pix[2] != 74 {
		t.Fatalf("keyed pixel RGB changed: %v", img.Pix[0:3])
	}
}

func TestRemoveColorKeyIdempotent(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if (x+y)%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{R: 238, G: 228, B: 80, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 200, B: 10, A: 255})
			}
		}
	}

	RemoveColorKey(img, DefaultLogoKey)
	once := make([]uint8, len(img.Pix))
	copy(once, img.Pix)

	RemoveColorKey(img, DefaultLogoKey)
	if !bytes.Equal(once, img.Pix) {
		t.Fatal("expected second pass to change nothing")
	}
}

func TestCompositeLogoPlacement(t *testing.T) {
	background := color.NRGBA{R: 0, G: 0, B: 255, A: 255}
	main := uniform(1000, 1000, background)

	// 100x100 logo: key-colored background with a centered red block.
	logo := uniform(100, 100, color.NRGBA{R: 240, G: 230, B: 74, A: 255})
	for y := 25; y < 75; y++ {
		for x := 25; x < 75; x++ {
			logo.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}

	out := CompositeLogo(main, logo)

	if out.Bounds().Dx() != 1000 || out.Bounds().Dy() != 1000 {
		t.Fatalf("main dimensions changed: %v", out.Bounds())
	}

	// 15% scale and 3% padding on a 1000px image: a 150x150 window at
	// (820,820).
	center := out.NRGBAAt(895, 895)
	if center.R < 180 || center.B > 80 {
		t.Fatalf("expected blended red logo pixel at window center, got %+v", center)
	}
	// 0.8 opacity red over blue: roughly (204,0,51).
	if center.R > 225 {
		t.Fatalf("logo drawn opaque, expected 0.8 opacity blend, got %+v", center)
	}

	// Keyed logo background inside the window: the main image shows through.
	corner := out.NRGBAAt(822, 822)
	if delta(corner.R, background.R) > 2 || delta(corner.G, background.G) > 2 || delta(corner.B, background.B) > 2 {
		t.Fatalf("expected keyed background to stay transparent, got %+v", corner)
	}

	// Outside the window nothing changes.
	if got := out.NRGBAAt(100, 100); got != background {
		t.Fatalf("pixel outside logo window changed: %+v", got)
	}
	if got := out.NRGBAAt(810, 810); got != background {
		t.Fatalf("pixel left of logo window changed: %+v", got)
	}
}

func TestCompositeTextBottomRight(t *testing.T) {
	background := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	main := uniform(1000, 1000, background)

	out, err := CompositeText(main, "")
	if err != nil {
		t.Fatalf("composite text: %v", err)
	}

	if out.Bounds().Dx() != 1000 || out.Bounds().Dy() != 1000 {
		t.Fatalf("main dimensions changed: %v", out.Bounds())
	}

	changed := 0
	for y := 0; y < 1000; y++ {
		for x := 0; x < 1000; x++ {
			if out.NRGBAAt(x, y) == background {
				continue
			}
			changed++
			// Font size 50, padding 50: glyphs live in a band above the
			// baseline at y=950, right-aligned.
			if y < 880 || y > 975 {
				t.Fatalf("text pixel outside bottom band at (%d,%d)", x, y)
			}
			if x > 955 {
				t.Fatalf("text pixel inside right padding at (%d,%d)", x, y)
			}
		}
	}
	if changed == 0 {
		t.Fatal("expected text to be rendered")
	}
}

func TestStampPrefersLogo(t *testing.T) {
	main := uniform(400, 400, color.NRGBA{R: 10, G: 10, B: 10, A: 255})

	logo := uniform(40, 40, color.NRGBA{R: 240, G: 230, B: 74, A: 255})
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			logo.SetNRGBA(x, y, color.NRGBA{G: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, logo); err != nil {
		t.Fatalf("encode logo: %v", err)
	}

	stamped, err := Stamp(main, Spec{Logo: buf.Bytes()})
	if err != nil {
		t.Fatalf("stamp: %v", err)
	}

	want := CompositeLogo(main, logo)
	if !bytes.Equal(stamped.Pix, want.Pix) {
		t.Fatal("expected Stamp with a valid logo to match CompositeLogo")
	}
}

func TestStampFallsBackOnCorruptLogo(t *testing.T) {
	main := uniform(400, 400, color.NRGBA{R: 10, G: 10, B: 10, A: 255})

	stamped, err := Stamp(main, Spec{Logo: []byte("not an image"), Text: "Atelier"})
	if err != nil {
		t.Fatalf("expected corrupt logo to fall back to text, got error: %v", err)
	}

	want, err := CompositeText(main, "Atelier")
	if err != nil {
		t.Fatalf("composite text: %v", err)
	}
	if !bytes.Equal(stamped.Pix, want.Pix) {
		t.Fatal("expected Stamp fallback to match CompositeText")
	}
}

func uniform(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func delta(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}
