package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireJob is the canonical JSON shape of a Job, shared by the broker wire
// and the job_queue jsonb columns.
type wireJob struct {
	ID        string             `json:"id"`
	Type      string             `json:"job_type"`
	Request   *GenerationRequest `json:"request_data"`
	Status    string             `json:"job_status"`
	Team      string             `json:"team,omitempty"`
	CreatedAt string             `json:"created_at"`
	Metadata  ExecutionMetadata  `json:"execution_metadata,omitempty"`
}

// EncodeJob serializes j into the canonical wire form. created_at is
// rendered in UTC with an explicit offset.
func EncodeJob(j Job) ([]byte, error) {
	req := j.Request
	w := wireJob{
		ID:        j.ID,
		Type:      string(j.Type),
		Request:   &req,
		Status:    string(j.Status),
		Team:      j.Team,
		CreatedAt: j.CreatedAt.UTC().Format(time.RFC3339Nano),
		Metadata:  j.Metadata,
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("op=job.encode: %w", err)
	}
	return b, nil
}

// DecodeJob parses the canonical wire form. Unknown fields are ignored;
// missing required fields fail loudly. Enum values are not constrained here:
// the consumer owns failing jobs with an unknown job_type.
func DecodeJob(body []byte) (Job, error) {
	var w wireJob
	if err := json.Unmarshal(body, &w); err != nil {
		return Job{}, fmt.Errorf("op=job.decode: %w: malformed json", ErrInvalidArgument)
	}
	switch {
	case w.ID == "":
		return Job{}, fmt.Errorf("op=job.decode: %w: id required", ErrInvalidArgument)
	case w.Type == "":
		return Job{}, fmt.Errorf("op=job.decode: %w: job_type required", ErrInvalidArgument)
	case w.Request == nil:
		return Job{}, fmt.Errorf("op=job.decode: %w: request_data required", ErrInvalidArgument)
	case w.Status == "":
		return Job{}, fmt.Errorf("op=job.decode: %w: job_status required", ErrInvalidArgument)
	case w.CreatedAt == "":
		return Job{}, fmt.Errorf("op=job.decode: %w: created_at required", ErrInvalidArgument)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
	if err != nil {
		return Job{}, fmt.Errorf("op=job.decode: %w: created_at must be ISO-8601 with timezone", ErrInvalidArgument)
	}
	return Job{
		ID:        w.ID,
		Type:      JobType(w.Type),
		Request:   *w.Request,
		Status:    JobStatus(w.Status),
		Team:      w.Team,
		CreatedAt: createdAt,
		Metadata:  w.Metadata,
	}, nil
}

// UnmarshalJSON applies the request defaults for absent fields.
func (r *GenerationRequest) UnmarshalJSON(b []byte) error {
	type alias GenerationRequest
	aux := alias{NumOptions: 1, Height: 1024, Width: 1024}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.Plugins == nil {
		aux.Plugins = []Plugin{}
	}
	*r = GenerationRequest(aux)
	return nil
}
