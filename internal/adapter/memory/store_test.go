package memory

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
)

var (
	errAbort = errors.New("abort")
	t0       = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	s       *Store
	station domain.Station
	sensor  domain.Sensor
	alert   domain.Alert
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := New()
	st := s.AddStation(domain.Station{DeviceID: "STN-0042"})
	se, err := s.UpsertSensor(ctx, st.ID, domain.SensorAirTemperature)
	require.NoError(t, err)
	_, err = s.InsertReading(ctx, domain.Reading{SensorID: se.ID, Value: 24, RecordedAt: t0})
	require.NoError(t, err)
	_, err = s.UpsertThreshold(ctx, domain.Threshold{SensorType: domain.SensorAirTemperature, Min: 5, Max: 35})
	require.NoError(t, err)
	a, err := s.InsertAlert(ctx, domain.Alert{StationID: st.ID, Type: domain.AlertThresholdViolation, Severity: domain.SeverityMedium})
	require.NoError(t, err)
	return fixture{s: s, station: st, sensor: se, alert: a}
}

// writeAll touches every kind of row inside one transaction.
func (f fixture) writeAll(ctx context.Context, tx store.Store) error {
	se, err := tx.UpsertSensor(ctx, f.station.ID, domain.SensorAirHumidity)
	if err != nil {
		return err
	}
	if _, err := tx.InsertReading(ctx, domain.Reading{SensorID: se.ID, Value: 91, RecordedAt: t0.Add(time.Hour)}); err != nil {
		return err
	}
	if _, err := tx.InsertAlert(ctx, domain.Alert{StationID: f.station.ID, Type: domain.AlertGateCommand, Severity: domain.SeverityLow}); err != nil {
		return err
	}
	if err := tx.UpdateStationStatus(ctx, f.station.ID, domain.StationCritical); err != nil {
		return err
	}
	if _, err := tx.UpsertThreshold(ctx, domain.Threshold{SensorType: domain.SensorAirTemperature, Min: 0, Max: 40}); err != nil {
		return err
	}
	if _, err := tx.UpsertThreshold(ctx, domain.Threshold{SensorType: domain.SensorAirHumidity, Min: 10, Max: 95}); err != nil {
		return err
	}
	_, err = tx.AcknowledgeAlert(ctx, f.alert.ID, t0.Add(2*time.Hour))
	return err
}

func TestWithinTx_Commit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.s.WithinTx(ctx, func(tx store.Store) error { return f.writeAll(ctx, tx) }))

	assert.Len(t, f.s.Readings(), 2)
	assert.Len(t, f.s.Alerts(), 2)
	st, err := f.s.FindStationByDeviceID(ctx, "STN-0042")
	require.NoError(t, err)
	assert.Equal(t, domain.StationCritical, st.Status)
	th, err := f.s.GetThreshold(ctx, domain.SensorAirTemperature)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, th.Max, 1e-9)
	assert.True(t, f.s.Alerts()[0].Acknowledged)
}

func TestWithinTx_Rollback(t *testing.T) {
	tests := []struct {
		name string
		ctx  func() context.Context
		fn   func(f fixture, ctx context.Context, tx store.Store) error
	}{
		{
			name: "error from fn",
			ctx:  context.Background,
			fn: func(f fixture, ctx context.Context, tx store.Store) error {
				if err := f.writeAll(ctx, tx); err != nil {
					return err
				}
				return errAbort
			},
		},
		{
			name: "context cancelled",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			fn: func(f fixture, _ context.Context, tx store.Store) error {
				return f.writeAll(context.Background(), tx)
			},
		},
		{
			name: "nested failure",
			ctx:  context.Background,
			fn: func(f fixture, ctx context.Context, tx store.Store) error {
				return tx.WithinTx(ctx, func(inner store.Store) error {
					if err := f.writeAll(ctx, inner); err != nil {
						return err
					}
					return errAbort
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := tt.ctx()
			readings, alerts := f.s.Readings(), f.s.Alerts()
			nextID := f.s.state.nextID

			err := f.s.WithinTx(ctx, func(tx store.Store) error { return tt.fn(f, ctx, tx) })
			require.Error(t, err)

			bg := context.Background()
			assert.Equal(t, readings, f.s.Readings())
			assert.Equal(t, alerts, f.s.Alerts())
			assert.False(t, f.s.Alerts()[0].Acknowledged)
			assert.Equal(t, nextID, f.s.state.nextID)

			st, err := f.s.FindStationByDeviceID(bg, "STN-0042")
			require.NoError(t, err)
			assert.Equal(t, domain.StationNormal, st.Status)

			th, err := f.s.GetThreshold(bg, domain.SensorAirTemperature)
			require.NoError(t, err)
			assert.InDelta(t, 35.0, th.Max, 1e-9)
			_, err = f.s.GetThreshold(bg, domain.SensorAirHumidity)
			assert.ErrorIs(t, err, store.ErrNotFound)

			got, err := f.s.ReadingsInWindow(bg, store.WindowQuery{SensorTypes: []domain.SensorType{domain.SensorAirHumidity}, From: t0, To: t0.Add(24 * time.Hour)})
			require.NoError(t, err)
			assert.Empty(t, got)

			// The store stays usable and ids continue from where they were.
			se, err := f.s.UpsertSensor(bg, f.station.ID, domain.SensorAirHumidity)
			require.NoError(t, err)
			assert.Equal(t, nextID+1, se.ID)
		})
	}
}

// A transaction writes to the live rows rather than a copy of them, so its
// cost does not grow with the number of stored readings.
func TestWithinTx_DoesNotCopyRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.s.state.readings = slices.Grow(f.s.state.readings, 8)
	first := &f.s.state.readings[0]

	err := f.s.WithinTx(ctx, func(tx store.Store) error {
		_, err := tx.InsertReading(ctx, domain.Reading{SensorID: f.sensor.ID, Value: 25, RecordedAt: t0.Add(time.Hour)})
		return err
	})
	require.NoError(t, err)

	require.Len(t, f.s.state.readings, 2)
	assert.Same(t, first, &f.s.state.readings[0], "reading rows were copied")
}
