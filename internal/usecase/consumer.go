// Package usecase contains the worker role services. The filler moves
// queued rows onto the broker; the consumer turns deliveries into stored
// images and one terminal row state per job.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/imagegen-dispatch/internal/adapter/observability"
	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// Artifact buckets per job type. Portraits are kept apart from general
// images because their visibility rules differ downstream.
const (
	bucketImages   = "images"
	bucketPersonas = "personas"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator instance.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Consumer processes dispatched jobs end to end: decode, guard, moderate,
// generate, persist, finalize.
type Consumer struct {
	Jobs      domain.JobRepository
	Images    domain.ImageRepository
	Teams     domain.TeamRepository
	Queue     domain.Consumer
	Generator domain.Generator
	Blobs     domain.BlobStore
	Moderator domain.Moderator

	NodeID  string
	NodeGPU string
}

// Run consumes deliveries until ctx is done. A closed delivery stream
// outside shutdown means the broker connection dropped; that is returned as
// ErrConnectionLost for the harness to rebuild the session.
func (c Consumer) Run(ctx domain.Context) error {
	deliveries, err := c.Queue.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("op=consume: %w", err)
	}
	slog.Info("consuming dispatch queue")
	for d := range deliveries {
		c.Process(ctx, d)
	}
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("op=consume: deliveries closed: %w", domain.ErrConnectionLost)
}

// Process handles one delivery. All failure paths resolve the delivery
// (reject, no requeue) and converge the job row to a terminal state; errors
// inside the failure path itself are logged, never propagated.
func (c Consumer) Process(ctx domain.Context, d domain.Delivery) {
	tracer := otel.Tracer("usecase.consumer")
	ctx, span := tracer.Start(ctx, "consumer.Process")
	defer span.End()

	start := time.Now()
	job, err := domain.DecodeJob(d.Body)
	if err != nil {
		slog.Error("dropping undecodable delivery",
			slog.String("message_id", d.MessageID),
			slog.Any("error", err))
		if rerr := d.Reject(); rerr != nil {
			slog.Error("reject failed", slog.String("message_id", d.MessageID), slog.Any("error", rerr))
		}
		return
	}

	// Redelivery guard: a job that already reached a terminal state is done,
	// whatever this delivery says.
	stored, err := c.Jobs.Get(ctx, job.ID)
	if err == nil && stored.Status.IsTerminal() {
		slog.Info("skipping already finished job",
			slog.String("job_id", job.ID),
			slog.String("status", string(stored.Status)))
		if aerr := d.Ack(); aerr != nil {
			slog.Error("ack failed", slog.String("job_id", job.ID), slog.Any("error", aerr))
		}
		return
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("terminal guard lookup failed, processing anyway",
			slog.String("job_id", job.ID),
			slog.Any("error", err))
	}

	observability.StartProcessingJob(string(job.Type))
	slog.Info("processing job",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.Int("num_options", job.Request.NumOptions))

	execs, err := c.dispatch(ctx, job)
	if err == nil {
		err = c.persist(ctx, job, execs)
	}
	if err != nil {
		c.fail(ctx, job, d, start, err)
		return
	}

	var total int64
	for _, e := range execs {
		total += e.Runtime
	}
	meta := domain.NewExecutionMetadata(c.NodeGPU, c.NodeID).WithRuntime(total)
	if err := c.Jobs.MarkTerminal(ctx, job.ID, domain.JobSucceeded, meta); err != nil {
		c.fail(ctx, job, d, start, err)
		return
	}
	observability.CompleteJob(string(job.Type))
	if err := d.Ack(); err != nil {
		slog.Error("ack failed", slog.String("job_id", job.ID), slog.Any("error", err))
	}
	slog.Info("job succeeded",
		slog.String("job_id", job.ID),
		slog.Int("images", len(execs)),
		slog.Int64("runtime_ms", total))
}

// dispatch validates the request, applies moderation and runs the generator
// once per requested option.
func (c Consumer) dispatch(ctx domain.Context, job domain.Job) ([]domain.Execution, error) {
	if !job.Type.Valid() {
		return nil, fmt.Errorf("%w: invalid job type %q", domain.ErrInvalidArgument, job.Type)
	}
	if err := validateRequest(job.Request); err != nil {
		return nil, err
	}

	// Portraits never render NSFW content, whatever the team may do.
	nsfwAllowed := false
	if job.Type == domain.JobTypeTextToImage {
		nsfwAllowed = c.Teams.IsNSFWAllowed(ctx, job.Team)
	}
	verdict, err := c.Moderator.Classify(ctx, job.Request.Prompt)
	if err != nil {
		return nil, fmt.Errorf("moderation: %w", err)
	}
	if err := verdict.CheckPrompt(nsfwAllowed); err != nil {
		return nil, err
	}

	execs := make([]domain.Execution, 0, job.Request.NumOptions)
	for i := 0; i < job.Request.NumOptions; i++ {
		seed := rand.Int63()
		if job.Request.Seed != nil {
			seed = *job.Request.Seed
		}
		exec, err := c.Generator.TextToImage(ctx, job.Request, seed)
		if err != nil {
			return nil, fmt.Errorf("generate %d/%d: %w", i+1, job.Request.NumOptions, err)
		}
		observability.ObserveGeneration(string(job.Type), float64(exec.Runtime)/1000)
		execs = append(execs, exec)
	}
	return execs, nil
}

// persist uploads every execution's image and records the artifact rows in
// one transaction. Blobs already uploaded when a later step fails are left
// to orphan; the job row is what converges.
func (c Consumer) persist(ctx domain.Context, job domain.Job, execs []domain.Execution) error {
	bucket := bucketImages
	if job.Type == domain.JobTypeTextToPortrait {
		bucket = bucketPersonas
	}
	artifacts := make([]domain.ImageArtifact, 0, len(execs))
	for _, e := range execs {
		filename, err := c.Blobs.Upload(ctx, bucket, e.Image)
		if err != nil {
			return fmt.Errorf("upload artifact: %w", err)
		}
		artifacts = append(artifacts, domain.ImageArtifact{
			Filename: filename,
			Seed:     e.Seed,
			Runtime:  e.Runtime,
		})
	}
	if err := c.Images.InsertImages(ctx, job.ID, artifacts); err != nil {
		return fmt.Errorf("record artifacts: %w", err)
	}
	return nil
}

// fail resolves a delivery on the error path: reject first so the broker
// drops the message, then converge the row to failed. Failures in here are
// logged only; the worker must survive its own error path.
func (c Consumer) fail(ctx domain.Context, job domain.Job, d domain.Delivery, start time.Time, cause error) {
	slog.Error("job failed",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.Any("error", cause))
	observability.FailJob(string(job.Type))
	if err := d.Reject(); err != nil {
		slog.Error("reject failed", slog.String("job_id", job.ID), slog.Any("error", err))
	}
	meta := domain.NewExecutionMetadata(c.NodeGPU, c.NodeID).
		WithRuntime(time.Since(start).Milliseconds()).
		WithError(cause.Error())
	if err := c.Jobs.MarkTerminal(ctx, job.ID, domain.JobFailed, meta); err != nil {
		slog.Error("failed-state write failed", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}

// validateRequest applies the request rules: non-blank prompt, positive
// num_options and dimensions.
func validateRequest(req domain.GenerationRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt required", domain.ErrInvalidArgument)
	}
	if err := getValidator().Struct(req); err != nil {
		return fmt.Errorf("%w: validation failed: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}
