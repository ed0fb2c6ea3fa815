// Package app wires application components and startup helpers.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

// defaultReconnectDelay paces broker redials when no delay is configured.
const defaultReconnectDelay = 5 * time.Second

// Session runs one broker session: dial, serve, and return when the
// connection drops, a fatal error occurs, or ctx ends.
type Session func(ctx context.Context) error

// ServeBroker keeps session running across broker connection losses with a
// constant pause between attempts. Each attempt dials fresh, so a session
// never inherits a dead channel. Errors other than domain.ErrConnectionLost
// stop the loop and are returned; shutdown via ctx returns nil.
func ServeBroker(ctx context.Context, delay time.Duration, session Session) error {
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	op := func() error {
		err := session(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrConnectionLost):
			slog.Warn("broker session lost, reconnecting",
				slog.Duration("delay", delay),
				slog.Any("error", err))
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	bo := backoff.WithContext(backoff.NewConstantBackOff(delay), ctx)
	err := backoff.Retry(op, bo)
	if err != nil && ctx.Err() != nil {
		// Shutdown raced a reconnect pause.
		return nil
	}
	return err
}
