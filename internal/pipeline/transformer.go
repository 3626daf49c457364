package pipeline

import (
	"context"
	"errors"

	"github.com/loomlight/fabricpress/internal/domain"
)

var (
	ErrUnsupportedSourceType = errors.New("unsupported source_type")
	ErrInvalidStepAction     = errors.New("invalid pipeline action")

	// ErrDecode and ErrEncode mark hard failures at the bitmap boundary.
	// Pixel stages cannot proceed without a valid bitmap, so both propagate
	// to the caller; a missing watermark logo asset deliberately does not
	// (the compositor falls back to text).
	ErrDecode = errors.New("image decode failed")
	ErrEncode = errors.New("image encode failed")
)

type Transformer interface {
	Transform(ctx context.Context, input []byte, step domain.PipelineStep) (data []byte, format string, width, height int, err error)
}

func normalizeOutputFormat(format string) string {
	switch format {
	case "jpg":
		return "jpeg"
	case "jpeg", "png", "webp":
		return format
	default:
		return "png"
	}
}
