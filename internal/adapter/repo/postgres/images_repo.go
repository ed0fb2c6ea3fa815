// Package postgres provides PostgreSQL database adapters.
//
// It implements repository interfaces over the job_queue, images, teams and
// plugins tables. The package provides type-safe database operations with
// connection pooling and transaction support.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

//go:generate mockery --config=.mockery.yml
//go:generate mockery --config=.mockery-pgx.yml

// ImageRepo persists generated image records using a minimal pgx pool.
type ImageRepo struct{ Pool PgxPool }

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// NewImageRepo constructs an ImageRepo with the given pool.
func NewImageRepo(p PgxPool) *ImageRepo { return &ImageRepo{Pool: p} }

// InsertImages stores one row per artifact for a finished job inside a
// single transaction, so a job either records all of its images or none.
// Rows are inserted private; visibility is granted elsewhere.
func (r *ImageRepo) InsertImages(ctx domain.Context, jobID string, artifacts []domain.ImageArtifact) error {
	tracer := otel.Tracer("repo.images")
	ctx, span := tracer.Start(ctx, "images.InsertImages")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "images"),
		attribute.Int("image.count", len(artifacts)),
	)
	if jobID == "" {
		return fmt.Errorf("op=image.insert: %w: job id required", domain.ErrInvalidArgument)
	}
	if len(artifacts) == 0 {
		return fmt.Errorf("op=image.insert: %w: no artifacts", domain.ErrInvalidArgument)
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO images (data, is_public, job_id) VALUES `)
	args := make([]any, 0, len(artifacts)*3)
	for i, a := range artifacts {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("op=image.insert: %w", err)
		}
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "($%d,$%d,$%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, data, false, jobID)
	}

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=image.insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("op=image.insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=image.insert: %w", err)
	}
	return nil
}
