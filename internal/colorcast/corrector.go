// Package colorcast removes global color casts from fabric photographs using
// the Shades of Gray illuminant estimation method.
package colorcast

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// Minkowski norm exponent. p=1 is gray-world (undercorrects on strong
	// casts), p=inf is max-RGB (blows up on specular highlights); p=6 sits
	// between the two.
	minkowskiP = 6.0

	// Gains outside this range do more damage than the cast they fix,
	// especially on legitimately monochrome fabrics.
	minGain = 0.6
	maxGain = 1.5

	// Channels darker than this are treated as unlit rather than cast.
	darkChannelFloor = 0.01

	sampleEdge     = 100
	imbalanceRatio = 0.15
)

// Illuminant is the estimated scene illuminant, one value per RGB channel,
// each in [0,1].
type Illuminant [3]float64

// Gains holds per-channel multipliers that neutralize an estimated cast.
type Gains [3]float64

// EstimateIlluminant computes the generalized (Minkowski) mean of each
// channel across every pixel of img.
func EstimateIlluminant(img *image.NRGBA) Illuminant {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return Illuminant{}
	}

	var sums [3]float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			sums[0] += math.Pow(float64(row[i])/255.0, minkowskiP)
			sums[1] += math.Pow(float64(row[i+1])/255.0, minkowskiP)
			sums[2] += math.Pow(float64(row[i+2])/255.0, minkowskiP)
		}
	}

	n := float64(w * h)
	var est Illuminant
	for c := range est {
		est[c] = math.Pow(sums[c]/n, 1.0/minkowskiP)
	}
	return est
}

// DeriveGains maps an illuminant estimate to per-channel gains that pull the
// estimate toward neutral gray, clamped to [0.6, 1.5].
func DeriveGains(est Illuminant) Gains {
	grayTarget := (est[0] + est[1] + est[2]) / 3.0

	var gains Gains
	for c := range gains {
		gain := 1.0
		if est[c] > darkChannelFloor {
			gain = grayTarget / est[c]
		}
		gains[c] = math.Min(maxGain, math.Max(minGain, gain))
	}
	return gains
}

// Apply scales every pixel's RGB channels by gains in place and returns img.
// Results are rounded to nearest and clamped to [0,255]; alpha is never
// touched.
func Apply(img *image.NRGBA, gains Gains) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			row[i] = scaleChannel(row[i], gains[0])
			row[i+1] = scaleChannel(row[i+1], gains[1])
			row[i+2] = scaleChannel(row[i+2], gains[2])
		}
	}
	return img
}

// Correct runs the full estimate/derive/apply chain on img in place.
func Correct(img *image.NRGBA) *image.NRGBA {
	return Apply(img, DeriveGains(EstimateIlluminant(img)))
}

// NeedsCorrection reports whether img shows a channel imbalance worth
// correcting. It samples the image into a fixed 100x100 square and compares
// simple arithmetic channel means; a channel deviating from the overall mean
// by more than 15% signals a cast.
//
// This heuristic is intentionally unrelated to the p=6 estimator above:
// callers may gate Correct behind it or skip it entirely, and the two are
// allowed to disagree on borderline images.
func NeedsCorrection(img image.Image) bool {
	sample := imaging.Resize(img, sampleEdge, sampleEdge, imaging.NearestNeighbor)

	bounds := sample.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return false
	}

	var sums [3]float64
	for y := 0; y < h; y++ {
		row := sample.Pix[y*sample.Stride : y*sample.Stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			sums[0] += float64(row[i])
			sums[1] += float64(row[i+1])
			sums[2] += float64(row[i+2])
		}
	}

	n := float64(w * h)
	meanR := sums[0] / n
	meanG := sums[1] / n
	meanB := sums[2] / n

	overall := (meanR + meanG + meanB) / 3.0
	if overall == 0 {
		return false
	}

	threshold := imbalanceRatio * overall
	return math.Abs(meanR-overall) > threshold ||
		math.Abs(meanG-overall) > threshold ||
		math.Abs(meanB-overall) > threshold
}

func scaleChannel(v uint8, gain float64) uint8 {
	scaled := math.Round(float64(v) * gain)
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}
