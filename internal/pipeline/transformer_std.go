package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/loomlight/fabricpress/internal/colorcast"
	"github.com/loomlight/fabricpress/internal/domain"
	"github.com/loomlight/fabricpress/internal/watermark"
	_ "golang.org/x/image/webp"
)

// Corrected fabric photos feed a downstream generation model, so they are
// exported at higher quality than routine thumbnails.
const (
	defaultQuality             = 80
	defaultColorCorrectQuality = 95
)

type stdTransformer struct {
	assets AssetSource
}

func (t stdTransformer) Transform(ctx context.Context, input []byte, step domain.PipelineStep) ([]byte, string, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, "", 0, 0, ctx.Err()
	default:
	}

	src, srcFormat, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("decode source image: %w: %w", ErrDecode, err)
	}

	action := strings.ToLower(strings.TrimSpace(step.Action))

	var out image.Image
	switch action {
	case domain.ActionColorCorrect:
		out = correctColor(src, step.Mode)
	case domain.ActionWatermark:
		out, err = t.applyWatermark(ctx, src, step.Watermark)
		if err != nil {
			return nil, "", 0, 0, err
		}
	case domain.ActionResize:
		out, err = resizeToWidth(src, step.Width)
		if err != nil {
			return nil, "", 0, 0, err
		}
	default:
		return nil, "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidStepAction, step.Action)
	}

	format := normalizeOutputFormat(strings.ToLower(strings.TrimSpace(step.Format)))
	if strings.TrimSpace(step.Format) == "" {
		format = normalizeOutputFormat(strings.ToLower(srcFormat))
	}

	quality := step.Quality
	if quality == 0 && action == domain.ActionColorCorrect {
		quality = defaultColorCorrectQuality
	}

	output, err := encodeImage(out, format, quality)
	if err != nil {
		return nil, "", 0, 0, err
	}

	bounds := out.Bounds()
	return output, format, bounds.Dx(), bounds.Dy(), nil
}

// correctColor neutralizes a global cast in the fabric photo. In auto mode
// the cheap sampling heuristic decides whether correction is worthwhile;
// photos it declines pass through with their pixel values unchanged.
func correctColor(src image.Image, mode string) image.Image {
	img := imaging.Clone(src)

	if strings.ToLower(strings.TrimSpace(mode)) != domain.ColorCorrectModeAlways {
		if !colorcast.NeedsCorrection(img) {
			return img
		}
	}
	return colorcast.Correct(img)
}

func (t stdTransformer) applyWatermark(ctx context.Context, src image.Image, wm *domain.Watermark) (image.Image, error) {
	spec := watermark.Spec{}
	if wm != nil {
		spec.Text = strings.TrimSpace(wm.Text)
	}

	if t.assets != nil {
		if logo, err := t.assets.Logo(ctx); err == nil {
			spec.Logo = logo
		}
		// An unavailable logo asset is not an error; Stamp renders the
		// text fallback instead.
	}

	out, err := watermark.Stamp(imaging.Clone(src), spec)
	if err != nil {
		return nil, fmt.Errorf("apply watermark: %w", err)
	}
	return out, nil
}

func resizeToWidth(src image.Image, width int) (image.Image, error) {
	if width <= 0 {
		return nil, fmt.Errorf("resize action requires width > 0")
	}

	srcW := src.Bounds().Dx()
	if srcW == 0 || src.Bounds().Dy() == 0 {
		return nil, fmt.Errorf("source image has invalid dimensions")
	}
	if width == srcW {
		return imaging.Clone(src), nil
	}

	return imaging.Resize(src, width, 0, imaging.Lanczos), nil
}

func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case "jpeg":
		if quality <= 0 || quality > 100 {
			quality = defaultQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w: %w", ErrEncode, err)
		}
	case "png":
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w: %w", ErrEncode, err)
		}
	case "webp":
		return nil, fmt.Errorf("%w: webp export requires govips build tag", ErrEncode)
	default:
		return nil, fmt.Errorf("%w: unsupported output format: %s", ErrEncode, format)
	}

	return buf.Bytes(), nil
}
