package window

//go:generate mockgen -source=../../ports/ports.go -destination=../../ports/mocks/mock_window_store.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quiz/internal/ratelimit/models"
	"quiz/internal/ratelimit/ports/mocks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallbackStoreUsesPrimaryWhenHealthy(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mocks.NewMockWindowStore(ctrl)
	now := time.Now()
	want := models.Entry{Count: 3, WindowStart: now}

	primary.EXPECT().Hit(gomock.Any(), "k", testWindow, now).Return(want, nil)

	store := NewFallbackStore("test", primary, WithFallbackLogger(discardLogger()))
	got, err := store.Hit(context.Background(), "k", testWindow, now)

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, gobreaker.StateClosed, store.State())
}

func TestFallbackStoreDegradesAndOpens(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mocks.NewMockWindowStore(ctrl)
	now := time.Now()

	primary.EXPECT().Hit(gomock.Any(), "k", testWindow, now).
		Return(models.Entry{}, errors.New("connection refused")).Times(2)

	degraded := 0
	store := NewFallbackStore("test", primary,
		WithFailureThreshold(2),
		WithOpenTimeout(time.Hour),
		WithFallbackLogger(discardLogger()),
		WithDegradeHook(func() { degraded++ }),
	)

	for i := 1; i <= 4; i++ {
		e, err := store.Hit(context.Background(), "k", testWindow, now)
		require.NoError(t, err)
		assert.Equal(t, i, e.Count, "fallback keeps counting in memory")
	}

	assert.Equal(t, gobreaker.StateOpen, store.State())
	assert.Equal(t, 4, degraded)
}

func TestFallbackStoreSweepAndReset(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mocks.NewMockWindowStore(ctrl)
	cutoff := time.Now()

	primary.EXPECT().Sweep(gomock.Any(), cutoff).Return(2, nil)
	primary.EXPECT().Reset(gomock.Any(), "k").Return(nil)

	store := NewFallbackStore("test", primary, WithFallbackLogger(discardLogger()))

	removed, err := store.Sweep(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	require.NoError(t, store.Reset(context.Background(), "k"))
}
