package queue

import (
	"testing"
	"time"

	"github.com/loomlight/fabricpress/internal/domain"
)

func TestProcessPhotoTaskRoundTrip(t *testing.T) {
	payload := ProcessPhotoPayload{
		JobID:      "job-123",
		SourceType: "s3_presigned",
		ObjectKey:  "uploads/job-123/source",
		Pipeline: []domain.PipelineStep{
			{
				ID:     "neutralized",
				Action: "color_correct",
				Mode:   "auto",
			},
			{
				ID:     "branded",
				Action: "watermark",
				Watermark: &domain.Watermark{
					Text: "Atelier",
				},
			},
		},
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewProcessPhotoTask(payload)
	if err != nil {
		t.Fatalf("NewProcessPhotoTask returned error: %v", err)
	}
	if task.Type() != TypeProcessPhoto {
		t.Fatalf("expected task type %q, got %q", TypeProcessPhoto, task.Type())
	}

	parsed, err := ParseProcessPhotoPayload(task)
	if err != nil {
		t.Fatalf("ParseProcessPhotoPayload returned error: %v", err)
	}

	if parsed.JobID != payload.JobID {
		t.Fatalf("expected job_id %q, got %q", payload.JobID, parsed.JobID)
	}
	if len(parsed.Pipeline) != 2 {
		t.Fatalf("expected two pipeline steps, got %d", len(parsed.Pipeline))
	}
	if parsed.Pipeline[1].Watermark == nil || parsed.Pipeline[1].Watermark.Text != "Atelier" {
		t.Fatalf("expected watermark text to survive the round trip, got %+v", parsed.Pipeline[1].Watermark)
	}
}
