package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_ShutdownRunsLIFOOnce(t *testing.T) {
	h := New(quietLogger(), time.Second)

	var order []string
	h.Register("store", func(ctx context.Context) error {
		order = append(order, "store")
		return nil
	})
	h.Register("flush", func(ctx context.Context) error {
		order = append(order, "flush")
		return errors.New("disk full")
	})

	err := h.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []string{"flush", "store"}, order)

	require.NoError(t, h.Shutdown())
	assert.Len(t, order, 2)
}

func TestHandler_ContextCancelledByStop(t *testing.T) {
	h := New(quietLogger(), time.Second)

	ctx, stop := h.Context(context.Background())
	require.NoError(t, ctx.Err())

	stop()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, h.Interrupted())
}
