package threshold

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
)

type fakeThresholds struct {
	bands  map[domain.SensorType]domain.Threshold
	getErr error
}

func (f *fakeThresholds) GetThreshold(_ context.Context, st domain.SensorType) (domain.Threshold, error) {
	if f.getErr != nil {
		return domain.Threshold{}, f.getErr
	}
	th, ok := f.bands[st]
	if !ok {
		return domain.Threshold{}, store.ErrNotFound
	}
	return th, nil
}

func (f *fakeThresholds) UpsertThreshold(_ context.Context, th domain.Threshold) (domain.Threshold, error) {
	if f.bands == nil {
		f.bands = make(map[domain.SensorType]domain.Threshold)
	}
	f.bands[th.SensorType] = th
	return th, nil
}

func TestEvaluate(t *testing.T) {
	ts := &fakeThresholds{bands: map[domain.SensorType]domain.Threshold{
		domain.SensorSoilMoisture: {SensorType: domain.SensorSoilMoisture, Min: 20, Max: 60},
	}}
	e := NewEvaluator(ts, nil)
	ctx := context.Background()

	t.Run("inside band", func(t *testing.T) {
		v, err := e.Evaluate(ctx, domain.SensorSoilMoisture, 40)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("below min is medium", func(t *testing.T) {
		v, err := e.Evaluate(ctx, domain.SensorSoilMoisture, 5)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, domain.Below, v.Direction)
		assert.Equal(t, domain.SeverityMedium, v.Severity)
		assert.Equal(t, 5.0, v.Value)
	})

	t.Run("no band configured is skipped", func(t *testing.T) {
		v, err := e.Evaluate(ctx, domain.SensorWindSpeed, 99)
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestEvaluate_StoreError(t *testing.T) {
	e := NewEvaluator(&fakeThresholds{getErr: errors.New("connection reset")}, nil)
	_, err := e.Evaluate(context.Background(), domain.SensorRainfall, 3)
	assert.ErrorContains(t, err, "connection reset")
}

type lowPolicy struct{}

func (lowPolicy) Severity(domain.Violation) domain.Severity { return domain.SeverityLow }

func TestEvaluate_PolicyFloorIsMedium(t *testing.T) {
	ts := &fakeThresholds{bands: map[domain.SensorType]domain.Threshold{
		domain.SensorWindSpeed: {SensorType: domain.SensorWindSpeed, Min: 0, Max: 20},
	}}
	v, err := NewEvaluator(ts, lowPolicy{}).Evaluate(context.Background(), domain.SensorWindSpeed, 21)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, domain.SeverityMedium, v.Severity)
}

func TestEvaluate_Escalation(t *testing.T) {
	ts := &fakeThresholds{bands: map[domain.SensorType]domain.Threshold{
		domain.SensorWindSpeed: {SensorType: domain.SensorWindSpeed, Min: 0, Max: 20},
	}}
	policy, err := domain.ParseEscalation("0.25:high,0.5:critical")
	require.NoError(t, err)
	e := NewEvaluator(ts, policy)

	v, err := e.Evaluate(context.Background(), domain.SensorWindSpeed, 26)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityHigh, v.Severity)

	v, err = e.Evaluate(context.Background(), domain.SensorWindSpeed, 40)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, v.Severity)
}

func TestSet(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	defer domain.SetClock(nil)

	ts := &fakeThresholds{}
	e := NewEvaluator(ts, nil)

	th, err := e.Set(context.Background(), domain.SensorAirTemperature, -5, 45)
	require.NoError(t, err)
	assert.Equal(t, now, th.UpdatedAt)

	got, err := e.Get(context.Background(), domain.SensorAirTemperature)
	require.NoError(t, err)
	assert.Equal(t, 45.0, got.Max)

	_, err = e.Set(context.Background(), domain.SensorAirTemperature, 45, -5)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)
	assert.Equal(t, 45.0, ts.bands[domain.SensorAirTemperature].Max, "rejected band must not be stored")
}
