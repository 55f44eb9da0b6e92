package ingest

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nwws-alert/ingest/internal/builder"
	"github.com/nwws-alert/ingest/internal/bus"
	"github.com/nwws-alert/ingest/internal/geodata"
	"github.com/nwws-alert/ingest/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelay_GrowsExponentiallyWithJitterBound(t *testing.T) {
	initial := 2 * time.Second

	d1 := backoffDelay(initial, 1)
	d2 := backoffDelay(initial, 2)
	d3 := backoffDelay(initial, 3)

	assert.GreaterOrEqual(t, d1, initial)
	assert.Less(t, d1, initial+time.Second)

	assert.GreaterOrEqual(t, d2, 2*initial)
	assert.Less(t, d2, 2*initial+time.Second)

	assert.GreaterOrEqual(t, d3, 4*initial)
	assert.Less(t, d3, 4*initial+time.Second)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, isAuthError(errors.New("stream error: not-authorized")))
	assert.True(t, isAuthError(errors.New("http 401 unauthorized")))
	assert.False(t, isAuthError(errors.New("connection reset by peer")))
	assert.False(t, isAuthError(nil))
}

func TestIsNetworkError(t *testing.T) {
	assert.True(t, isNetworkError(errors.New("dial tcp: lookup nwws-oi.weather.gov: EAI_AGAIN")))
	assert.True(t, isNetworkError(errors.New("read: connection reset by peer")))
	assert.True(t, isNetworkError(errors.New("read tcp: i/o timeout")))
	assert.False(t, isNetworkError(errors.New("stream error: not-authorized")))
	assert.False(t, isNetworkError(nil))
}

func TestStanzaExtension_SequenceID(t *testing.T) {
	ext := stanzaExtension{ID: "nwws1.123"}
	proc, seq, ok := ext.sequenceID()
	require.True(t, ok)
	assert.Equal(t, "nwws1", proc)
	assert.Equal(t, 123, seq)

	ext = stanzaExtension{ID: "malformed"}
	_, _, ok = ext.sequenceID()
	assert.False(t, ok)
}

func TestFormatProductRef(t *testing.T) {
	assert.Equal(t, "KARX/SRUS83", formatProductRef("KARX", "SRUS83"))
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	geo, err := geodata.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	b := builder.New(builder.Config{}, geo, nil, zerolog.Nop(), nil)
	st := store.New(filepath.Join(t.TempDir(), "alerts.json"), bus.New(), zerolog.Nop())
	return New(Config{Username: "u", Password: "p"}, b, st, zerolog.Nop())
}

func TestCheckSequenceGap_TracksLastSequenceAcrossGap(t *testing.T) {
	s := newTestSupervisor(t)

	s.checkSequenceGap("proc1", 1)
	s.checkSequenceGap("proc1", 2)
	// no assertion on the log output itself (no hook wired in this test),
	// just that consecutive and gapped sequences don't panic or corrupt state.
	s.checkSequenceGap("proc1", 5)

	s.seqMu.Lock()
	last := s.lastSeq["proc1"]
	s.seqMu.Unlock()
	assert.Equal(t, 5, last)
}

func TestNew_AppliesDefaults(t *testing.T) {
	s := newTestSupervisor(t)
	assert.Equal(t, "SparkAlerts NWWS Ingest Client", s.cfg.Resource)
	assert.Equal(t, 10, s.cfg.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, s.cfg.InitialReconnectDelay)
	assert.Equal(t, StateDisconnected, s.State())
}
