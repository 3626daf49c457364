package colorcast

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestDeriveGainsNeutralImage(t *testing.T) {
	img := uniformNRGBA(2, 2, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	gains := DeriveGains(EstimateIlluminant(img))
	for c, gain := range gains {
		if gain != 1.0 {
			t.Fatalf("expected gain 1.0 for white image channel %d, got %v", c, gain)
		}
	}

	gray := uniformNRGBA(4, 4, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	gains = DeriveGains(EstimateIlluminant(gray))
	for c, gain := range gains {
		if math.Abs(gain-1.0) > 1e-9 {
			t.Fatalf("expected gain 1.0 for gray image channel %d, got %v", c, gain)
		}
	}
}

func TestDeriveGainsNearBlackGuard(t *testing.T) {
	img := uniformNRGBA(3, 3, color.NRGBA{R: 1, G: 1, B: 1, A: 255})

	gains := DeriveGains(EstimateIlluminant(img))
	for c, gain := range gains {
		if gain != 1.0 {
			t.Fatalf("expected near-black image to keep unit gain on channel %d, got %v", c, gain)
		}
	}
}

func TestDeriveGainsAlwaysClamped(t *testing.T) {
	estimates := []Illuminant{
		{0.9, 0.02, 0.02},
		{1.0, 1.0, 0.011},
		{0.5, 0.5, 0.5},
		{0.99, 0.012, 0.5},
	}
	for _, est := range estimates {
		gains := DeriveGains(est)
		for c, gain := range gains {
			if gain < 0.6 || gain > 1.5 {
				t.Fatalf("gain out of bounds for estimate %v channel %d: %v", est, c, gain)
			}
		}
	}

	// Single-color image: the lit channel pulls hard against the dark ones.
	red := uniformNRGBA(8, 8, color.NRGBA{R: 250, G: 4, B: 4, A: 255})
	gains := DeriveGains(EstimateIlluminant(red))
	for c, gain := range gains {
		if gain < 0.6 || gain > 1.5 {
			t.Fatalf("gain out of bounds for red image channel %d: %v", c, gain)
		}
	}
}

func TestApplyClampsAndPreservesAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	pixels := []color.NRGBA{
		{R: 250, G: 10, B: 128, A: 255},
		{R: 200, G: 0, B: 255, A: 0},
		{R: 3, G: 90, B: 17, A: 128},
		{R: 255, G: 255, B: 255, A: 17},
	}
	img.SetNRGBA(0, 0, pixels[0])
	img.SetNRGBA(1, 0, pixels[1])
	img.SetNRGBA(0, 1, pixels[2])
	img.SetNRGBA(1, 1, pixels[3])

	Apply(img, Gains{1.5, 0.6, 1.5})

	wantAlpha := []uint8{255, 0, 128, 17}
	for i := 0; i < 4; i++ {
		got := img.Pix[i*4+3]
		if got != wantAlpha[i] {
			t.Fatalf("pixel %d alpha changed: want %d, got %d", i, wantAlpha[i], got)
		}
	}

	if img.Pix[0] != 255 {
		t.Fatalf("expected 250*1.5 to clamp to 255, got %d", img.Pix[0])
	}
	if img.Pix[1] != 6 {
		t.Fatalf("expected 10*0.6 to round to 6, got %d", img.Pix[1])
	}
	if img.Pix[2] != 192 {
		t.Fatalf("expected 128*1.5 = 192, got %d", img.Pix[2])
	}
}

func TestNeedsCorrection(t *testing.T) {
	cast := uniformNRGBA(50, 50, color.NRGBA{R: 200, G: 100, B: 100, A: 255})
	if !NeedsCorrection(cast) {
		t.Fatal("expected strong red imbalance to need correction")
	}

	neutral := uniformNRGBA(50, 50, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	if NeedsCorrection(neutral) {
		t.Fatal("expected uniform gray to need no correction")
	}

	black := uniformNRGBA(50, 50, color.NRGBA{A: 255})
	if NeedsCorrection(black) {
		t.Fatal("expected all-black image to need no correction")
	}
}

func TestCorrectReducesCast(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 210, G: 90, B: 40, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{R: 190, G: 110, B: 60, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 205, G: 95, B: 45, A: 255})

	inputSpread := channelSpread(img)

	out := Correct(img)
	if out.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Fatalf("dimensions changed: %v", out.Bounds())
	}

	outputSpread := channelSpread(out)
	if outputSpread >= inputSpread {
		t.Fatalf("expected cast reduction, spread went from %v to %v", inputSpread, outputSpread)
	}

	for i := 0; i < 4; i++ {
		if out.Pix[i*4+3] != 255 {
			t.Fatalf("pixel %d alpha changed to %d", i, out.Pix[i*4+3])
		}
	}
}

// channelSpread is the gap between the highest and lowest channel mean; a
// neutral image has spread 0.
func channelSpread(img *image.NRGBA) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var sums [3]float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4
			sums[0] += float64(img.Pix[i])
			sums[1] += float64(img.Pix[i+1])
			sums[2] += float64(img.Pix[i+2])
		}
	}

	n := float64(w * h)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, sum := range sums {
		mean := sum / n
		lo = math.Min(lo, mean)
		hi = math.Max(hi, mean)
	}
	return hi - lo
}

func uniformNRGBA(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}
