package postgres

import (
	"log/slog"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// TeamRepo answers team permission lookups from the teams table.
type TeamRepo struct{ Pool PgxPool }

// NewTeamRepo constructs a TeamRepo with the given pool.
func NewTeamRepo(p PgxPool) *TeamRepo { return &TeamRepo{Pool: p} }

// IsNSFWAllowed reports whether the team exists and has the nsfw_allowed
// flag set. Lookup failures deny: a job is cheaper to re-run than a wrongly
// published image.
func (r *TeamRepo) IsNSFWAllowed(ctx domain.Context, teamID string) bool {
	tracer := otel.Tracer("repo.teams")
	ctx, span := tracer.Start(ctx, "teams.IsNSFWAllowed")
	defer span.End()
	span.SetAttributes(attribute.String("team.id", teamID))
	if teamID == "" {
		return false
	}
	q := `SELECT id FROM teams WHERE id=$1 AND nsfw_allowed = TRUE`
	row := r.Pool.QueryRow(ctx, q, teamID)
	var id string
	if err := row.Scan(&id); err != nil {
		if err != pgx.ErrNoRows {
			slog.Error("team nsfw lookup failed, denying", slog.String("team", teamID), slog.Any("error", err))
		}
		return false
	}
	return true
}
