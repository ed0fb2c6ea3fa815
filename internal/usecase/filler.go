package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/imagegen-dispatch/internal/adapter/observability"
	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// reapReason is stored on jobs that aged out of the queue table before a
// filler could dispatch them.
const reapReason = "expired (job too long in queue)"

// Filler moves queued job rows onto the dispatch queue, oldest first,
// keeping the broker depth under the configured ceiling.
type Filler struct {
	Jobs  domain.JobRepository
	Queue domain.Publisher

	NodeID       string
	DepthCeiling int
	TTL          time.Duration
	PollPeriod   time.Duration
	PublishPause time.Duration
}

// NewFiller constructs a Filler with its dependencies.
func NewFiller(jobs domain.JobRepository, queue domain.Publisher, nodeID string, ceiling int, ttl, poll, pause time.Duration) Filler {
	return Filler{
		Jobs:         jobs,
		Queue:        queue,
		NodeID:       nodeID,
		DepthCeiling: ceiling,
		TTL:          ttl,
		PollPeriod:   poll,
		PublishPause: pause,
	}
}

// Run executes fill cycles until ctx is done. Connection loss is returned to
// the caller for a reconnect; any other cycle error is logged and the next
// poll starts fresh.
func (f Filler) Run(ctx domain.Context) error {
	poll := f.PollPeriod
	if poll <= 0 {
		poll = 10 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if err := f.FillCycle(ctx); err != nil {
			if errors.Is(err, domain.ErrConnectionLost) {
				return fmt.Errorf("op=fill: %w", err)
			}
			slog.Error("fill cycle failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// FillCycle tops the broker queue up to the depth ceiling. Expired rows are
// reaped instead of published; a publish failure annotates the row and ends
// the cycle without reverting the claim.
func (f Filler) FillCycle(ctx domain.Context) error {
	depth, err := f.Queue.Depth(ctx)
	if err != nil {
		return fmt.Errorf("queue depth: %w", err)
	}
	for depth < f.DepthCeiling {
		job, err := f.Jobs.ClaimNextQueued(ctx, f.NodeID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("claim: %w", err)
		}

		if job.Expired(time.Now(), f.TTL) {
			slog.Info("reaping expired job",
				slog.String("job_id", job.ID),
				slog.Time("created_at", job.CreatedAt))
			meta := domain.ExecutionMetadata{}.WithError(reapReason)
			if err := f.Jobs.MarkTerminal(ctx, job.ID, domain.JobStopped, meta); err != nil {
				slog.Error("reap write failed", slog.String("job_id", job.ID), slog.Any("error", err))
			}
			observability.ReapJob()
			continue
		}

		body, err := domain.EncodeJob(job)
		if err != nil {
			return fmt.Errorf("encode %s: %w", job.ID, err)
		}
		if err := f.Queue.Publish(ctx, body, job.ID); err != nil {
			slog.Error("publish failed, leaving job assigned",
				slog.String("job_id", job.ID),
				slog.Any("error", err))
			if aerr := f.Jobs.AnnotatePublishFailure(ctx, job.ID, err.Error()); aerr != nil {
				slog.Error("publish-failure annotation failed", slog.String("job_id", job.ID), slog.Any("error", aerr))
			}
			return fmt.Errorf("publish %s: %w", job.ID, err)
		}
		observability.PublishJob(string(job.Type))
		slog.Info("job dispatched",
			slog.String("job_id", job.ID),
			slog.String("job_type", string(job.Type)),
			slog.Int("depth", depth))

		depth, err = f.Queue.Depth(ctx)
		if err != nil {
			return fmt.Errorf("queue depth: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.PublishPause):
		}
	}
	return nil
}
