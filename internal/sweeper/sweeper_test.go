package sweeper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nwws-alert/ingest/internal/bus"
	"github.com/nwws-alert/ingest/internal/model"
	"github.com/nwws-alert/ingest/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SweepsExpiredRecordsOnEachTick(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "alerts.json"), bus.New(), zerolog.Nop())

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	st.Upsert([]model.Alert{
		{ID: "expired", Expiry: &past},
		{ID: "active", Expiry: &future},
	})

	s := New(st, 10*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	require.NoError(t, err)

	snap := st.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "active", snap[0].ID)
}

func TestRun_ReturnsNilWhenContextCancelledImmediately(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "alerts.json"), bus.New(), zerolog.Nop())
	s := New(st, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	assert.NoError(t, err)
}

func TestNew_DefaultsPeriodWhenNonPositive(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "alerts.json"), bus.New(), zerolog.Nop())
	s := New(st, 0, zerolog.Nop())
	assert.Equal(t, 45*time.Second, s.period)
}
