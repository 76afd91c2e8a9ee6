// Package memory is an in-process store for local runs and tests. It keeps
// every row in memory and loses them on restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
)

// state holds all rows. It is only touched with Store.mu held.
type state struct {
	stations   []domain.Station
	sensors    []domain.Sensor
	readings   []domain.Reading
	thresholds map[domain.SensorType]domain.Threshold
	alerts     []domain.Alert
	nextID     int64
}

// journal records how to undo a transaction's writes. Stations, sensors,
// readings and alerts are append-only, so their lengths at the start of the
// transaction are enough to discard new rows; in-place updates register an
// undo func.
type journal struct {
	stations, sensors, readings, alerts int
	nextID                              int64
	undo                                []func()
}

func (s *state) begin() *journal {
	return &journal{
		stations: len(s.stations),
		sensors:  len(s.sensors),
		readings: len(s.readings),
		alerts:   len(s.alerts),
		nextID:   s.nextID,
	}
}

func (s *state) rollback(j *journal) {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	s.stations = s.stations[:j.stations]
	s.sensors = s.sensors[:j.sensors]
	s.readings = s.readings[:j.readings]
	s.alerts = s.alerts[:j.alerts]
	s.nextID = j.nextID
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store implements store.Store in memory.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{state: &state{thresholds: make(map[domain.SensorType]domain.Threshold)}}
}

// AddStation provisions a station and returns it with its assigned id.
func (s *Store) AddStation(st domain.Station) domain.Station {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.ID = s.state.id()
	if st.Status == "" {
		st.Status = domain.StationNormal
	}
	s.state.stations = append(s.state.stations, st)
	return st
}

// Readings returns a copy of every stored reading in insertion order.
func (s *Store) Readings() []domain.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.readings)
}

// Alerts returns a copy of every stored alert in insertion order.
func (s *Store) Alerts() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.alerts)
}

// WithinTx runs fn with writes applied in place and journaled. If fn fails
// or ctx ends, the journal is replayed backwards and the writes disappear.
// The store lock is held for the duration of fn, so fn must not call s.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.state.begin()
	err := fn(&txStore{state: s.state, journal: j})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.state.rollback(j)
		return err
	}
	return nil
}

func (s *Store) FindStationByDeviceID(_ context.Context, deviceID string) (domain.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.findStation(deviceID)
}

func (s *Store) ListStations(_ context.Context) ([]domain.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.stations), nil
}

func (s *Store) UpdateStationStatus(_ context.Context, stationID int64, status domain.StationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateStationStatus(stationID, status)
}

func (s *Store) UpsertSensor(_ context.Context, stationID int64, sensorType domain.SensorType) (domain.Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.upsertSensor(stationID, sensorType)
}

func (s *Store) InsertReading(_ context.Context, r domain.Reading) (domain.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.insertReading(r)
}

func (s *Store) ReadingsInWindow(_ context.Context, q store.WindowQuery) ([]domain.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.readingsInWindow(q), nil
}

func (s *Store) GetThreshold(_ context.Context, sensorType domain.SensorType) (domain.Threshold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getThreshold(sensorType)
}

func (s *Store) UpsertThreshold(_ context.Context, th domain.Threshold) (domain.Threshold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.upsertThreshold(th)
}

func (s *Store) InsertAlert(_ context.Context, a domain.Alert) (domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.insertAlert(a)
}

func (s *Store) AcknowledgeAlert(_ context.Context, id int64, at time.Time) (domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.acknowledgeAlert(id, at)
}

func (s *Store) ListAlerts(_ context.Context, q store.AlertQuery) ([]domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listAlerts(q), nil
}

// --- state operations (caller holds the lock) ---

func (s *state) findStation(deviceID string) (domain.Station, error) {
	for _, st := range s.stations {
		if st.DeviceID == deviceID {
			return st, nil
		}
	}
	return domain.Station{}, fmt.Errorf("station %q: %w", deviceID, store.ErrNotFound)
}

func (s *state) stationExists(id int64) bool {
	return slices.ContainsFunc(s.stations, func(st domain.Station) bool { return st.ID == id })
}

func (s *state) sensorExists(id int64) bool {
	return slices.ContainsFunc(s.sensors, func(se domain.Sensor) bool { return se.ID == id })
}

func (s *state) updateStationStatus(stationID int64, status domain.StationStatus) error {
	for i := range s.stations {
		if s.stations[i].ID == stationID {
			s.stations[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("station %d: %w", stationID, store.ErrNotFound)
}

func (s *state) upsertSensor(stationID int64, sensorType domain.SensorType) (domain.Sensor, error) {
	if !s.stationExists(stationID) {
		return domain.Sensor{}, fmt.Errorf("station %d: %w", stationID, store.ErrNotFound)
	}
	for _, se := range s.sensors {
		if se.StationID == stationID && se.Type == sensorType {
			return se, nil
		}
	}
	se := domain.Sensor{ID: s.id(), StationID: stationID, Type: sensorType}
	s.sensors = append(s.sensors, se)
	return se, nil
}

func (s *state) insertReading(r domain.Reading) (domain.Reading, error) {
	idx := slices.IndexFunc(s.sensors, func(se domain.Sensor) bool { return se.ID == r.SensorID })
	if idx < 0 {
		return domain.Reading{}, fmt.Errorf("sensor %d: %w", r.SensorID, store.ErrNotFound)
	}
	r.ID = s.id()
	r.StationID = s.sensors[idx].StationID
	r.SensorType = s.sensors[idx].Type
	s.readings = append(s.readings, r)
	return r, nil
}

func (s *state) readingsInWindow(q store.WindowQuery) []domain.Reading {
	var out []domain.Reading
	for _, r := range s.readings {
		if q.StationID != 0 && r.StationID != q.StationID {
			continue
		}
		if len(q.SensorTypes) > 0 && !slices.Contains(q.SensorTypes, r.SensorType) {
			continue
		}
		if r.RecordedAt.Before(q.From) || !r.RecordedAt.Before(q.To) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out
}

func (s *state) getThreshold(sensorType domain.SensorType) (domain.Threshold, error) {
	th, ok := s.thresholds[sensorType]
	if !ok {
		return domain.Threshold{}, fmt.Errorf("threshold %s: %w", sensorType, store.ErrNotFound)
	}
	return th, nil
}

func (s *state) upsertThreshold(th domain.Threshold) (domain.Threshold, error) {
	if err := th.Validate(); err != nil {
		return domain.Threshold{}, err
	}
	s.thresholds[th.SensorType] = th
	return th, nil
}

func (s *state) insertAlert(a domain.Alert) (domain.Alert, error) {
	if !s.stationExists(a.StationID) {
		return domain.Alert{}, fmt.Errorf("station %d: %w", a.StationID, store.ErrNotFound)
	}
	if a.SensorID != nil && !s.sensorExists(*a.SensorID) {
		return domain.Alert{}, fmt.Errorf("sensor %d: %w", *a.SensorID, store.ErrNotFound)
	}
	a.ID = s.id()
	if a.UID == uuid.Nil {
		a.UID = uuid.New()
	}
	s.alerts = append(s.alerts, a)
	return a, nil
}

func (s *state) acknowledgeAlert(id int64, at time.Time) (domain.Alert, error) {
	for i := range s.alerts {
		if s.alerts[i].ID != id {
			continue
		}
		if !s.alerts[i].Acknowledged {
			s.alerts[i].Acknowledged = true
			s.alerts[i].AcknowledgedAt = &at
		}
		return s.alerts[i], nil
	}
	return domain.Alert{}, fmt.Errorf("alert %d: %w", id, store.ErrNotFound)
}

func (s *state) listAlerts(q store.AlertQuery) []domain.Alert {
	limit := q.Limit
	if limit <= 0 {
		limit = store.DefaultAlertLimit
	}
	var out []domain.Alert
	// Newest first.
	for i := len(s.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		a := s.alerts[i]
		if q.StationID != 0 && a.StationID != q.StationID {
			continue
		}
		if q.UnacknowledgedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	return out
}

// txStore writes to the live state without locking and journals in-place
// updates; the owning Store holds the lock for the transaction's lifetime.
type txStore struct {
	state   *state
	journal *journal
}

func (t *txStore) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *txStore) FindStationByDeviceID(_ context.Context, deviceID string) (domain.Station, error) {
	return t.state.findStation(deviceID)
}

func (t *txStore) ListStations(_ context.Context) ([]domain.Station, error) {
	return slices.Clone(t.state.stations), nil
}

func (t *txStore) UpdateStationStatus(_ context.Context, stationID int64, status domain.StationStatus) error {
	for i := range t.state.stations {
		if t.state.stations[i].ID == stationID {
			prev := t.state.stations[i].Status
			t.journal.undo = append(t.journal.undo, func() { t.state.stations[i].Status = prev })
			break
		}
	}
	return t.state.updateStationStatus(stationID, status)
}

func (t *txStore) UpsertSensor(_ context.Context, stationID int64, sensorType domain.SensorType) (domain.Sensor, error) {
	return t.state.upsertSensor(stationID, sensorType)
}

func (t *txStore) InsertReading(_ context.Context, r domain.Reading) (domain.Reading, error) {
	return t.state.insertReading(r)
}

func (t *txStore) ReadingsInWindow(_ context.Context, q store.WindowQuery) ([]domain.Reading, error) {
	return t.state.readingsInWindow(q), nil
}

func (t *txStore) GetThreshold(_ context.Context, sensorType domain.SensorType) (domain.Threshold, error) {
	return t.state.getThreshold(sensorType)
}

func (t *txStore) UpsertThreshold(_ context.Context, th domain.Threshold) (domain.Threshold, error) {
	prev, had := t.state.thresholds[th.SensorType]
	out, err := t.state.upsertThreshold(th)
	if err != nil {
		return out, err
	}
	t.journal.undo = append(t.journal.undo, func() {
		if had {
			t.state.thresholds[th.SensorType] = prev
		} else {
			delete(t.state.thresholds, th.SensorType)
		}
	})
	return out, nil
}

func (t *txStore) InsertAlert(_ context.Context, a domain.Alert) (domain.Alert, error) {
	return t.state.insertAlert(a)
}

func (t *txStore) AcknowledgeAlert(_ context.Context, id int64, at time.Time) (domain.Alert, error) {
	for i := range t.state.alerts {
		if t.state.alerts[i].ID == id {
			prev := t.state.alerts[i]
			t.journal.undo = append(t.journal.undo, func() { t.state.alerts[i] = prev })
			break
		}
	}
	return t.state.acknowledgeAlert(id, at)
}

func (t *txStore) ListAlerts(_ context.Context, q store.AlertQuery) ([]domain.Alert, error) {
	return t.state.listAlerts(q), nil
}
