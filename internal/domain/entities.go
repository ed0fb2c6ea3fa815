package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrConnectionLost    = errors.New("connection lost")
	ErrModerationBlocked = errors.New("moderation blocked")
	ErrInternal          = errors.New("internal error")
)

//go:generate mockery --name=JobRepository --with-expecter --filename=job_repository_mock.go
//go:generate mockery --name=Publisher --with-expecter --filename=publisher_mock.go
//go:generate mockery --name=Generator --with-expecter --filename=generator_mock.go

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobAssigned  JobStatus = "assigned"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobStopped   JobStatus = "stopped"
)

// IsTerminal reports whether the status is final. Terminal rows are never
// transitioned out of.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobStopped
}

// Valid reports whether the status is one of the known lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobAssigned, JobRunning, JobSucceeded, JobFailed, JobStopped:
		return true
	}
	return false
}

type JobType string

const (
	JobTypeTextToImage    JobType = "text-to-image"
	JobTypeTextToPortrait JobType = "text-to-portrait"
)

// Valid reports whether the job type is dispatchable.
func (t JobType) Valid() bool {
	return t == JobTypeTextToImage || t == JobTypeTextToPortrait
}

// Plugin references an externally stored LoRA weight file by id.
type Plugin struct {
	ID     string `json:"id"`
	Weight int    `json:"weight"`
	Data   any    `json:"data,omitempty"`
}

// GenerationRequest is the user-supplied payload of a Job.
// Absent numeric fields default on decode (num_options=1, height=width=1024);
// plugins defaults to the empty list.
type GenerationRequest struct {
	Prompt         string   `json:"prompt" validate:"required"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	NumOptions     int      `json:"num_options" validate:"gt=0"`
	Height         int      `json:"height" validate:"gt=0"`
	Width          int      `json:"width" validate:"gt=0"`
	Seed           *int64   `json:"seed,omitempty"`
	Plugins        []Plugin `json:"plugins"`
}

// Job is one row of job_queue. The core mutates it exactly twice: on claim
// (filler) and on completion (consumer), plus the optional TTL reap.
type Job struct {
	ID        string
	Type      JobType
	Request   GenerationRequest
	Status    JobStatus
	Team      string
	CreatedAt time.Time
	Metadata  ExecutionMetadata
}

// Expired reports whether the job sat queued longer than the discard
// threshold at instant now. created_at is compared in UTC.
func (j Job) Expired(now time.Time, threshold time.Duration) bool {
	return now.UTC().Sub(j.CreatedAt.UTC()) > threshold
}

// Execution is the output of one generator run.
type Execution struct {
	Image   []byte
	Seed    int64
	Runtime int64 // milliseconds
}

// ImageArtifact is the persisted record of one execution; it becomes the
// data column of an images row.
type ImageArtifact struct {
	Filename string `json:"filename"`
	Seed     int64  `json:"seed"`
	Runtime  int64  `json:"runtime"`
}

// Repositories (ports)

type JobRepository interface {
	// ClaimNextQueued atomically assigns the oldest queued job to nodeID and
	// returns it. ErrNotFound when nothing is claimable.
	ClaimNextQueued(ctx Context, nodeID string) (Job, error)
	Get(ctx Context, id string) (Job, error)
	// MarkTerminal sets job_status and replaces execution_metadata. The
	// caller owns merging. Idempotent for a repeated terminal status.
	MarkTerminal(ctx Context, id string, status JobStatus, meta ExecutionMetadata) error
	// AnnotatePublishFailure merges {publish_error: reason} into
	// execution_metadata without touching job_status.
	AnnotatePublishFailure(ctx Context, id, reason string) error
}

type ImageRepository interface {
	// InsertImages records one images row per artifact in one transaction.
	InsertImages(ctx Context, jobID string, artifacts []ImageArtifact) error
}

type TeamRepository interface {
	// IsNSFWAllowed answers the team's nsfw_allowed flag; lookup failures
	// degrade to false.
	IsNSFWAllowed(ctx Context, teamID string) bool
}

type PluginRepository interface {
	ListIDs(ctx Context) ([]string, error)
}

// Broker (ports)

// Publisher is the filler's view of the broker queue. The queue name is
// bound at adapter construction.
type Publisher interface {
	// Publish sends body as a persistent message with the given message id.
	Publish(ctx Context, body []byte, messageID string) error
	// Depth is the queue's current message count (passive declare).
	Depth(ctx Context) (int, error)
}

// Delivery is one in-flight queue message with its acknowledgement handles.
// Exactly one of Ack or Reject must be called; Reject never requeues.
type Delivery struct {
	Body      []byte
	MessageID string
	Ack       func() error
	Reject    func() error
}

// Consumer is the processor's view of the broker queue.
type Consumer interface {
	// Deliveries opens a manually acknowledged subscription. The returned
	// channel closes when the connection drops or ctx is done.
	Deliveries(ctx Context) (<-chan Delivery, error)
}

// External collaborators (ports)

type Generator interface {
	// TextToImage runs one inference with the given seed. Blocking; runs to
	// completion.
	TextToImage(ctx Context, req GenerationRequest, seed int64) (Execution, error)
}

type BlobStore interface {
	// Upload stores data and returns the generated filename (without path).
	Upload(ctx Context, bucket string, data []byte) (string, error)
	Download(ctx Context, bucket, filename string) ([]byte, error)
}

// Moderation is the category verdict for one prompt.
type Moderation struct {
	Categories map[string]bool
}

type Moderator interface {
	Classify(ctx Context, prompt string) (Moderation, error)
}

// Context is an alias to allow decoupling from std context in domain.
// Adapters and usecases pass context.Context through.

type Context = context.Context
