//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/loomlight/fabricpress/internal/domain"
)

// govipsTransformer keeps resize and export on libvips. The color-correct
// and watermark stages have exact per-channel numeric contracts (Minkowski
// norm, gain clamps, chroma-key distances), so they run on the shared pixel
// path rather than an approximate vips equivalent.
type govipsTransformer struct {
	assets AssetSource
}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, step domain.PipelineStep) ([]byte, string, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, "", 0, 0, ctx.Err()
	default:
	}

	switch strings.ToLower(strings.TrimSpace(step.Action)) {
	case domain.ActionColorCorrect, domain.ActionWatermark:
		return stdTransformer{assets: t.assets}.Transform(ctx, input, step)
	case domain.ActionResize:
	default:
		return nil, "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidStepAction, step.Action)
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("decode source image: %w: %w", ErrDecode, err)
	}
	defer img.Close()

	if err := applyGovipsResize(img, step.Width); err != nil {
		return nil, "", 0, 0, err
	}

	format := formatForStep(step.Format, input)
	data, err := exportGovipsImage(img, format, step.Quality)
	if err != nil {
		return nil, "", 0, 0, err
	}

	return data, format, img.Width(), img.Height(), nil
}

func applyGovipsResize(img *vips.ImageRef, targetWidth int) error {
	if targetWidth <= 0 {
		return fmt.Errorf("resize action requires width > 0")
	}
	if img.Width() <= 0 {
		return fmt.Errorf("source image has invalid width")
	}

	scale := float64(targetWidth) / float64(img.Width())
	if scale <= 0 {
		return fmt.Errorf("invalid resize scale")
	}

	if err := img.Resize(scale, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}

func formatForStep(stepFormat string, input []byte) string {
	if strings.TrimSpace(stepFormat) != "" {
		return normalizeOutputFormat(strings.ToLower(strings.TrimSpace(stepFormat)))
	}

	switch vips.DetermineImageType(input) {
	case vips.ImageTypeJPEG:
		return "jpeg"
	case vips.ImageTypeWEBP:
		return "webp"
	default:
		return "png"
	}
}

func exportGovipsImage(img *vips.ImageRef, format string, quality int) ([]byte, error) {
	switch format {
	case "jpeg":
		params := vips.NewJpegExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w: %w", ErrEncode, err)
		}
		return data, nil
	case "png":
		params := vips.NewPngExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w: %w", ErrEncode, err)
		}
		return data, nil
	case "webp":
		params := vips.NewWebpExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w: %w", ErrEncode, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unsupported output format: %s", ErrEncode, format)
	}
}
