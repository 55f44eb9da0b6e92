package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nwws-alert/ingest/internal/bus"
	"github.com/nwws-alert/ingest/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alerts.json")
	return New(path, bus.New(), zerolog.Nop())
}

func TestUpsert_NewThenUpdate(t *testing.T) {
	s := newTestStore(t)
	a := model.Alert{ID: "KSGX.TO.W.0002", Issued: time.Now().UTC()}

	s.Upsert([]model.Alert{a})
	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "KSGX.TO.W.0002", snap[0].ID)

	a.Headline = "updated"
	s.Upsert([]model.Alert{a})
	snap = s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "updated", snap[0].Headline)
}

func TestUpsert_InheritsGeometryWhenIncomingRecordHasNone(t *testing.T) {
	s := newTestStore(t)
	ring := [][][2]float64{{{-117.0, 34.0}, {-117.1, 34.0}, {-117.1, 34.1}, {-117.0, 34.0}}}
	a := model.Alert{ID: "KSGX.TO.W.0002", Issued: time.Now().UTC(), Geometry: ring}
	s.Upsert([]model.Alert{a})

	update := model.Alert{ID: "KSGX.TO.W.0002", Issued: time.Now().UTC(), Headline: "extended"}
	s.Upsert([]model.Alert{update})

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "extended", snap[0].Headline)
	assert.Equal(t, ring, snap[0].Geometry)
}

func TestUpsert_KeepsIncomingGeometryWhenPresent(t *testing.T) {
	s := newTestStore(t)
	oldRing := [][][2]float64{{{-117.0, 34.0}, {-117.1, 34.0}, {-117.1, 34.1}, {-117.0, 34.0}}}
	newRing := [][][2]float64{{{-118.0, 35.0}, {-118.1, 35.0}, {-118.1, 35.1}, {-118.0, 35.0}}}
	s.Upsert([]model.Alert{{ID: "KSGX.TO.W.0002", Issued: time.Now().UTC(), Geometry: oldRing}})
	s.Upsert([]model.Alert{{ID: "KSGX.TO.W.0002", Issued: time.Now().UTC(), Geometry: newRing}})

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, newRing, snap[0].Geometry)
}

func TestDeleteByVTECKey_RemovesExactlyOne(t *testing.T) {
	s := newTestStore(t)
	vtec := model.VTEC{Office: "KSGX", Phenomena: "TO", Significance: "W", EventTrackingNumber: "0002"}
	other := model.VTEC{Office: "KSGX", Phenomena: "TO", Significance: "W", EventTrackingNumber: "0003"}
	a := model.Alert{ID: "KSGX.TO.W.0002", Properties: model.Properties{VTEC: &vtec}}
	b := model.Alert{ID: "KSGX.TO.W.0003", Properties: model.Properties{VTEC: &other}}
	s.Upsert([]model.Alert{a, b})

	s.DeleteByVTECKey("KSGX", "TO", "W", "0002")

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "KSGX.TO.W.0003", snap[0].ID)
}

func TestSweepExpired_DropsOnlyPast(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	s.Upsert([]model.Alert{
		{ID: "past", Expiry: &past},
		{ID: "future", Expiry: &future},
	})

	s.SweepExpired(now)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "future", snap[0].ID)
}

func TestNew_MalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	s := New(path, bus.New(), zerolog.Nop())
	assert.Empty(t, s.Snapshot())
}

func TestApplyStartupFilter_KeepsLatestIssued(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	older := model.Alert{ID: "dup", Issued: time.Now().Add(-time.Hour).UTC()}
	newer := model.Alert{ID: "dup", Issued: time.Now().UTC()}

	s := New(path, bus.New(), zerolog.Nop())
	s.records = []model.Alert{older, newer}
	s.applyStartupFilter()

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, newer.Issued.Unix(), snap[0].Issued.Unix())
}
