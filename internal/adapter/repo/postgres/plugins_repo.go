package postgres

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// PluginRepo lists installable plugin models from the plugins table.
type PluginRepo struct{ Pool PgxPool }

// NewPluginRepo constructs a PluginRepo with the given pool.
func NewPluginRepo(p PgxPool) *PluginRepo { return &PluginRepo{Pool: p} }

// ListIDs returns the ids of every registered plugin.
func (r *PluginRepo) ListIDs(ctx domain.Context) ([]string, error) {
	tracer := otel.Tracer("repo.plugins")
	ctx, span := tracer.Start(ctx, "plugins.ListIDs")
	defer span.End()
	q := `SELECT id FROM plugins`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=plugin.list: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("op=plugin.list: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=plugin.list: %w", err)
	}
	return ids, nil
}

// Upsert registers a plugin id, replacing its display metadata if the row
// already exists.
func (r *PluginRepo) Upsert(ctx domain.Context, id string, data map[string]any) error {
	tracer := otel.Tracer("repo.plugins")
	ctx, span := tracer.Start(ctx, "plugins.Upsert")
	defer span.End()
	if id == "" {
		return fmt.Errorf("op=plugin.upsert: %w: id required", domain.ErrInvalidArgument)
	}
	meta, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("op=plugin.upsert: %w", err)
	}
	q := `INSERT INTO plugins (id, data) VALUES ($1, $2)
	      ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`
	if _, err := r.Pool.Exec(ctx, q, id, meta); err != nil {
		return fmt.Errorf("op=plugin.upsert: %w", err)
	}
	return nil
}
