package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

func TestServeBroker_RebuildsSessionAfterConnectionLoss(t *testing.T) {
	t.Parallel()
	calls := 0
	session := func(_ context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("deliveries closed: %w", domain.ErrConnectionLost)
		}
		return nil
	}

	err := ServeBroker(context.Background(), time.Millisecond, session)

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "each loss gets a fresh session")
}

func TestServeBroker_FatalErrorStopsTheLoop(t *testing.T) {
	t.Parallel()
	calls := 0
	fatal := errors.New("missing queue name")
	session := func(_ context.Context) error { calls++; return fatal }

	err := ServeBroker(context.Background(), time.Millisecond, session)

	require.Error(t, err)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestServeBroker_CleanSessionEndReturnsNil(t *testing.T) {
	t.Parallel()
	calls := 0
	session := func(_ context.Context) error { calls++; return nil }

	err := ServeBroker(context.Background(), time.Millisecond, session)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestServeBroker_ShutdownDuringPauseReturnsNil(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session := func(_ context.Context) error {
		return fmt.Errorf("conn dropped: %w", domain.ErrConnectionLost)
	}
	time.AfterFunc(20*time.Millisecond, cancel)

	err := ServeBroker(ctx, time.Hour, session)

	require.NoError(t, err)
}
