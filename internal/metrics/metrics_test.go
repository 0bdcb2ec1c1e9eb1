package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopHandleDoesNotPanic(t *testing.T) {
	h := NewNoop()
	ctx := context.Background()

	h.CacheHit(ctx)
	h.CacheMiss(ctx)
	h.BytesRelayed(ctx, 128)
	h.UpstreamDialError(ctx)
	h.ConnectionOpened(ctx)
	h.ConnectionClosed(ctx)
	h.CommandProcessed(ctx, OutcomeHit)
	h.CommandProcessed(ctx, OutcomeMiss)
	h.CommandProcessed(ctx, OutcomeMalformed)
}

func TestNewRegistersInstrumentsWithoutError(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	require.NotNil(t, h)

	ctx := context.Background()
	h.CacheHit(ctx)
	h.CommandProcessed(ctx, OutcomeHit)
}
