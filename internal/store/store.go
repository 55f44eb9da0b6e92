// Package store is the persistent, single-writer alert store: a
// JSON-file-backed record set with change dispatch.
package store

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/nwws-alert/ingest/internal/bus"
	"github.com/nwws-alert/ingest/internal/model"
	"github.com/rs/zerolog"
)

// Store owns alerts.json exclusively; all mutation goes through its
// methods under a single writer lock.
type Store struct {
	mu       sync.RWMutex
	path     string
	records  []model.Alert
	dispatch *bus.Bus
	log      zerolog.Logger
}

// New constructs a Store backed by path, loading any existing content and
// applying the startup filter. A missing or malformed file starts the
// store empty rather than aborting.
func New(path string, dispatch *bus.Bus, log zerolog.Logger) *Store {
	s := &Store{path: path, dispatch: dispatch, log: log}
	s.load()
	s.applyStartupFilter()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("could not read alert store, starting empty")
		}
		s.records = nil
		return
	}
	if len(data) == 0 {
		s.records = nil
		return
	}
	var records []model.Alert
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("alert store file malformed, starting empty")
		s.records = nil
		return
	}
	s.records = records
}

// applyStartupFilter keeps only the latest-issued record per id among
// records sharing an id; records lacking an id are kept as-is.
func (s *Store) applyStartupFilter() {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[string]model.Alert)
	var unidentified []model.Alert
	var order []string
	for _, rec := range s.records {
		if rec.ID == "" {
			unidentified = append(unidentified, rec)
			continue
		}
		existing, ok := latest[rec.ID]
		if !ok {
			order = append(order, rec.ID)
			latest[rec.ID] = rec
			continue
		}
		if rec.Issued.After(existing.Issued) {
			latest[rec.ID] = rec
		}
	}
	filtered := make([]model.Alert, 0, len(order)+len(unidentified))
	for _, id := range order {
		filtered = append(filtered, latest[id])
	}
	filtered = append(filtered, unidentified...)
	s.records = filtered
	s.persistLocked()
}

// Snapshot returns a read-only ordered copy of the current records.
func (s *Store) Snapshot() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, len(s.records))
	copy(out, s.records)
	return out
}

// Upsert removes any existing record sharing an incoming id, appends the
// incoming records, persists, and emits one NEW or UPDATE event per id.
// An incoming record with no geometry inherits the prior record's
// geometry, so continuation/extension products that carry no new
// coordinates keep the original polygon.
func (s *Store) Upsert(incoming []model.Alert) {
	if len(incoming) == 0 {
		return
	}
	s.mu.Lock()
	var events []bus.Event
	for _, rec := range incoming {
		prior, existed := s.removeByIDFullLocked(rec.ID)
		if existed && len(rec.Geometry) == 0 {
			rec.Geometry = prior.Geometry
		}
		s.records = append(s.records, rec)
		evtType := bus.EventNew
		if existed {
			evtType = bus.EventUpdate
		}
		events = append(events, bus.Event{Type: evtType, Alert: rec})
	}
	s.persistLocked()
	s.mu.Unlock()

	for _, evt := range events {
		s.dispatch.Publish(evt)
	}
}

// DeleteByID removes the record with the given id, if present, and emits an
// UPDATE event.
func (s *Store) DeleteByID(id string) {
	s.mu.Lock()
	removed, ok := s.removeByIDFullLocked(id)
	if ok {
		s.persistLocked()
	}
	s.mu.Unlock()
	if ok {
		s.dispatch.Publish(bus.Event{Type: bus.EventUpdate, Alert: removed})
	}
}

// DeleteByVTECKey finds the first record whose VTEC matches the given key
// and deletes it.
func (s *Store) DeleteByVTECKey(office, phenomena, significance, etn string) {
	s.mu.Lock()
	var target string
	for _, rec := range s.records {
		if rec.Properties.VTEC == nil {
			continue
		}
		o, p, sig, e := rec.Properties.VTEC.Key()
		if o == office && p == phenomena && sig == significance && e == etn {
			target = rec.ID
			break
		}
	}
	if target == "" {
		s.mu.Unlock()
		return
	}
	removed, ok := s.removeByIDFullLocked(target)
	if ok {
		s.persistLocked()
	}
	s.mu.Unlock()
	if ok {
		s.dispatch.Publish(bus.Event{Type: bus.EventUpdate, Alert: removed})
	}
}

// SweepExpired retains only records with no expiry or expiry >= now,
// persists, and emits one bulk UPDATE event if anything was removed.
func (s *Store) SweepExpired(now time.Time) {
	s.mu.Lock()
	kept := s.records[:0:0]
	removedAny := false
	for _, rec := range s.records {
		if rec.Expiry != nil && rec.Expiry.Before(now) {
			removedAny = true
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	if removedAny {
		s.persistLocked()
	}
	s.mu.Unlock()

	if removedAny {
		s.dispatch.Publish(bus.Event{Type: bus.EventUpdate})
	}
}

// removeByIDFullLocked removes a record by id, returning the removed record
// and whether one existed. Caller holds s.mu.
func (s *Store) removeByIDFullLocked(id string) (model.Alert, bool) {
	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return rec, true
		}
	}
	return model.Alert{}, false
}

// persistLocked writes the current records to disk as pretty-printed JSON.
// Caller holds s.mu.
func (s *Store) persistLocked() {
	records := s.records
	if records == nil {
		records = []model.Alert{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal alert store")
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("failed to persist alert store")
	}
}
