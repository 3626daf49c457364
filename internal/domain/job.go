package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"

	ActionColorCorrect = "color_correct"
	ActionWatermark    = "watermark"
	ActionResize       = "resize"

	// Color-correct gating. "auto" samples the photo and skips correction
	// when no channel imbalance is found; "always" applies it regardless.
	ColorCorrectModeAuto   = "auto"
	ColorCorrectModeAlways = "always"
)

type CreateJobRequest struct {
	SourceType string         `json:"source_type"`
	UserID     string         `json:"user_id,omitempty"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	ObjectKey  string         `json:"object_key,omitempty"`
	Pipeline   []PipelineStep `json:"pipeline"`
}

type PipelineStep struct {
	ID        string     `json:"id"`
	Action    string     `json:"action"`
	Mode      string     `json:"mode,omitempty"`
	Width     int        `json:"width,omitempty"`
	Format    string     `json:"format,omitempty"`
	Quality   int        `json:"quality,omitempty"`
	Watermark *Watermark `json:"watermark,omitempty"`
}

// Watermark carries optional overrides for a watermark step. The logo asset
// itself is resolved by the worker; Text replaces the default fallback
// string when the logo cannot be loaded.
type Watermark struct {
	Text string `json:"text,omitempty"`
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	Pipeline   []PipelineStep
	ObjectKey  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if len(r.Pipeline) == 0 {
		return errors.New("pipeline must contain at least one step")
	}
	for i, step := range r.Pipeline {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("pipeline[%d].id is required", i)
		}
		if err := step.validate(); err != nil {
			return fmt.Errorf("pipeline[%d]: %w", i, err)
		}
	}
	return nil
}

func (s PipelineStep) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Action)) {
	case "":
		return errors.New("action is required")
	case ActionColorCorrect:
		mode := strings.ToLower(strings.TrimSpace(s.Mode))
		if mode != "" && mode != ColorCorrectModeAuto && mode != ColorCorrectModeAlways {
			return fmt.Errorf("unsupported color_correct mode: %s", s.Mode)
		}
	case ActionWatermark:
	case ActionResize:
		if s.Width <= 0 {
			return errors.New("resize requires width > 0")
		}
	default:
		return fmt.Errorf("unsupported action: %s", s.Action)
	}

	if s.Quality < 0 || s.Quality > 100 {
		return fmt.Errorf("quality must be within [0,100], got %d", s.Quality)
	}
	return nil
}
