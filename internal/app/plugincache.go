package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// bucketPlugins holds the LoRA weight files referenced by plugin rows.
const bucketPlugins = "plugins"

// WarmPluginCache downloads every registered plugin's weight file into dir,
// skipping files already present. The generator backend reads weights from
// this directory at inference time, so an incomplete cache is a startup
// failure, not something to limp along with.
func WarmPluginCache(ctx context.Context, plugins domain.PluginRepository, blobs domain.BlobStore, dir string) error {
	ids, err := plugins.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("plugin list: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("plugin cache dir: %w", err)
	}
	cached := 0
	for _, id := range ids {
		name := id + ".safetensors"
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		data, err := blobs.Download(ctx, bucketPlugins, name)
		if err != nil {
			return fmt.Errorf("plugin fetch %s: %w", id, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("plugin write %s: %w", id, err)
		}
		cached++
		slog.Info("plugin cached",
			slog.String("plugin_id", id),
			slog.Int("bytes", len(data)))
	}
	slog.Info("plugin cache warm",
		slog.Int("plugins", len(ids)),
		slog.Int("downloaded", cached),
		slog.String("dir", dir))
	return nil
}
