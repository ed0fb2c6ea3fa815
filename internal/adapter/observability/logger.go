package observability

import (
	"log/slog"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/imagegen-dispatch/internal/config"
)

// SetupLogger configures a JSON slog logger with worker identity fields.
// LOGGING_LEVEL selects the handler level; unknown values fall back to info.
// The instance field is minted per process so restarts and misconfigured
// duplicate node ids stay distinguishable in aggregated logs.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LoggingLevel)}
	h := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("mode", cfg.Mode),
		slog.String("node_id", cfg.NodeID),
		slog.String("instance", ulid.Make().String()),
	)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
