package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/loomlight/fabricpress/internal/domain"
)

const TypeProcessPhoto = "photo:process"

type ProcessPhotoPayload struct {
	JobID       string                `json:"job_id"`
	SourceType  string                `json:"source_type"`
	WebhookURL  string                `json:"webhook_url,omitempty"`
	ObjectKey   string                `json:"object_key"`
	Pipeline    []domain.PipelineStep `json:"pipeline"`
	RequestedAt time.Time             `json:"requested_at"`
}

func NewProcessPhotoTask(payload ProcessPhotoPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal process payload: %w", err)
	}
	return asynq.NewTask(TypeProcessPhoto, body), nil
}

func ParseProcessPhotoPayload(task *asynq.Task) (ProcessPhotoPayload, error) {
	var payload ProcessPhotoPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessPhotoPayload{}, fmt.Errorf("unmarshal process payload: %w", err)
	}
	return payload, nil
}
