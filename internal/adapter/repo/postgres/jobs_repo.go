package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// JobRepo claims and finalizes rows of the job_queue table using a minimal
// pgx pool.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

// claimSQL moves the oldest queued row to assigned in one statement. SKIP
// LOCKED keeps concurrent claimers from selecting the same row; the jsonb
// merge preserves metadata keys written by producers.
const claimSQL = `UPDATE job_queue
SET job_status = 'assigned',
    execution_metadata = jsonb_set(COALESCE(execution_metadata, '{}'), '{node}', to_jsonb($1::text), true)
        || jsonb_build_object('assigned_at', $2::text)
WHERE id = (
    SELECT id FROM job_queue
    WHERE job_status = 'queued'
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
RETURNING id, job_type, request_data, COALESCE(team, ''), created_at`

// ClaimNextQueued assigns the oldest queued job to nodeID and returns it.
// domain.ErrNotFound means the queue table holds nothing claimable.
func (r *JobRepo) ClaimNextQueued(ctx domain.Context, nodeID string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ClaimNextQueued")
	defer span.End()
	assignedAt := time.Now().UTC().Format(time.RFC3339Nano)
	row := r.Pool.QueryRow(ctx, claimSQL, nodeID, assignedAt)
	var j domain.Job
	var reqData []byte
	if err := row.Scan(&j.ID, &j.Type, &reqData, &j.Team, &j.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Job{}, fmt.Errorf("op=job.claim: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.claim: %w", err)
	}
	j.Status = domain.JobAssigned
	if err := json.Unmarshal(reqData, &j.Request); err != nil {
		return domain.Job{}, fmt.Errorf("op=job.claim: %w: request_data of %s", domain.ErrInvalidArgument, j.ID)
	}
	return j, nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	q := `SELECT id, job_type, request_data, job_status, COALESCE(team, ''), created_at, COALESCE(execution_metadata, '{}') FROM job_queue WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var j domain.Job
	var reqData, metaData []byte
	if err := row.Scan(&j.ID, &j.Type, &reqData, &j.Status, &j.Team, &j.CreatedAt, &metaData); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	if err := json.Unmarshal(reqData, &j.Request); err != nil {
		return domain.Job{}, fmt.Errorf("op=job.get: %w: request_data of %s", domain.ErrInvalidArgument, id)
	}
	if err := json.Unmarshal(metaData, &j.Metadata); err != nil {
		return domain.Job{}, fmt.Errorf("op=job.get: %w: execution_metadata of %s", domain.ErrInvalidArgument, id)
	}
	return j, nil
}

// MarkTerminal sets a terminal job_status and replaces execution_metadata in
// a single statement. Rows already terminal are left untouched, so repeated
// calls are no-ops and a finished job never changes state again.
func (r *JobRepo) MarkTerminal(ctx domain.Context, id string, status domain.JobStatus, meta domain.ExecutionMetadata) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.MarkTerminal")
	defer span.End()
	if !status.IsTerminal() {
		return fmt.Errorf("op=job.mark_terminal: %w: status %q is not terminal", domain.ErrInvalidArgument, status)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil { return fmt.Errorf("op=job.mark_terminal: %w", err) }
	q := `UPDATE job_queue SET job_status=$2, execution_metadata=$3 WHERE id=$1 AND job_status NOT IN ('succeeded','failed','stopped')`
	if _, err := r.Pool.Exec(ctx, q, id, status, metaJSON); err != nil {
		return fmt.Errorf("op=job.mark_terminal: %w", err)
	}
	return nil
}

// AnnotatePublishFailure merges {publish_error: reason} into the row's
// execution_metadata. job_status stays assigned so the row remains visible
// to out-of-band reconciliation.
func (r *JobRepo) AnnotatePublishFailure(ctx domain.Context, id, reason string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.AnnotatePublishFailure")
	defer span.End()
	q := `UPDATE job_queue SET execution_metadata = COALESCE(execution_metadata, '{}') || jsonb_build_object('publish_error', $2::text) WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, reason); err != nil {
		return fmt.Errorf("op=job.annotate_publish_failure: %w", err)
	}
	return nil
}
