package domain

import "testing"

func TestCreateJobRequestValidate(t *testing.T) {
	valid := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
		Pipeline: []PipelineStep{
			{
				ID:     "neutralized",
				Action: "color_correct",
				Mode:   "auto",
			},
			{
				ID:     "branded",
				Action: "watermark",
			},
			{
				ID:     "web_small",
				Action: "resize",
				Width:  640,
			},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	invalid := CreateJobRequest{}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	missingObjectKey := CreateJobRequest{
		SourceType: SourceTypeLocalFile,
		Pipeline: []PipelineStep{
			{
				ID:     "web_small",
				Action: "resize",
				Width:  640,
			},
		},
	}
	if err := missingObjectKey.Validate(); err == nil {
		t.Fatal("expected validation error for local_file object_key")
	}

	unsupportedSourceType := CreateJobRequest{
		SourceType: "http_url",
		Pipeline: []PipelineStep{
			{
				ID:     "web_small",
				Action: "resize",
				Width:  640,
			},
		},
	}
	if err := unsupportedSourceType.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported source_type")
	}
}

func TestPipelineStepValidate(t *testing.T) {
	base := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
	}

	unsupportedAction := base
	unsupportedAction.Pipeline = []PipelineStep{{ID: "sharpened", Action: "sharpen"}}
	if err := unsupportedAction.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported action")
	}

	badMode := base
	badMode.Pipeline = []PipelineStep{{ID: "neutralized", Action: ActionColorCorrect, Mode: "sometimes"}}
	if err := badMode.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported color_correct mode")
	}

	zeroWidth := base
	zeroWidth.Pipeline = []PipelineStep{{ID: "web_small", Action: ActionResize}}
	if err := zeroWidth.Validate(); err == nil {
		t.Fatal("expected validation error for resize without width")
	}

	badQuality := base
	badQuality.Pipeline = []PipelineStep{{ID: "branded", Action: ActionWatermark, Quality: 101}}
	if err := badQuality.Validate(); err == nil {
		t.Fatal("expected validation error for quality > 100")
	}

	missingStepID := base
	missingStepID.Pipeline = []PipelineStep{{Action: ActionWatermark}}
	if err := missingStepID.Validate(); err == nil {
		t.Fatal("expected validation error for missing step id")
	}
}
