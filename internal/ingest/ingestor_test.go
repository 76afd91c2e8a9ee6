package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/adapter/memory"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/alert"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/ingest"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/observability"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/threshold"
)

const (
	testDevice      = "STN-0042"
	telemetryTopic  = "station-telemetry"
	statusTopic     = "station-status"
	alertTopic      = "station-alerts"
	commandTopic    = "station-commands"
	testRecordedISO = "2025-06-01T10:00:00Z"
)

var topics = ingest.Topics{Telemetry: telemetryTopic, Status: statusTopic}

// --- fakes ---

type fakePublisher struct {
	mu   sync.Mutex
	msgs map[string][][]byte
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, _ []byte, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.msgs == nil {
		f.msgs = make(map[string][][]byte)
	}
	f.msgs[topic] = append(f.msgs[topic], value)
	return nil
}

func (f *fakePublisher) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs[topic])
}

type erroringEvaluator struct{}

func (erroringEvaluator) Evaluate(context.Context, domain.SensorType, float64) (*domain.Violation, error) {
	return nil, errors.New("threshold table unavailable")
}

// faultyStore injects storage failures into an otherwise working store.
type faultyStore struct {
	store.Store
	findErr   error
	failTypes map[domain.SensorType]bool
}

func (f *faultyStore) FindStationByDeviceID(ctx context.Context, id string) (domain.Station, error) {
	if f.findErr != nil {
		return domain.Station{}, f.findErr
	}
	return f.Store.FindStationByDeviceID(ctx, id)
}

func (f *faultyStore) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.WithinTx(ctx, func(tx store.Store) error {
		return fn(&faultyTx{Store: tx, failTypes: f.failTypes})
	})
}

type faultyTx struct {
	store.Store
	failTypes map[domain.SensorType]bool
}

func (f *faultyTx) UpsertSensor(ctx context.Context, stationID int64, st domain.SensorType) (domain.Sensor, error) {
	if f.failTypes[st] {
		return domain.Sensor{}, errors.New("deadlock detected")
	}
	return f.Store.UpsertSensor(ctx, stationID, st)
}

// --- helpers ---

type harness struct {
	mem      *memory.Store
	pub      *fakePublisher
	ingestor *ingest.Ingestor
	station  domain.Station
}

func newHarness(t *testing.T, opts ...func(*harnessOpts)) harness {
	t.Helper()
	o := harnessOpts{}
	for _, fn := range opts {
		fn(&o)
	}

	mem := memory.New()
	st := mem.AddStation(domain.Station{DeviceID: testDevice, Status: o.status})
	_, err := mem.UpsertThreshold(context.Background(), domain.Threshold{SensorType: domain.SensorSoilMoisture, Min: 20, Max: 60})
	require.NoError(t, err)

	var s store.Store = mem
	if o.wrap != nil {
		s = o.wrap(mem)
	}

	var eval ingest.Evaluator = threshold.NewEvaluator(s, nil)
	if o.evaluator != nil {
		eval = o.evaluator
	}

	pub := &fakePublisher{}
	metrics := observability.NewMetricsForTesting()
	gen := alert.NewGenerator(s, pub, alertTopic, slog.Default(), metrics)
	return harness{
		mem:      mem,
		pub:      pub,
		ingestor: ingest.NewIngestor(s, eval, gen, topics, slog.Default(), metrics),
		station:  st,
	}
}

type harnessOpts struct {
	status    domain.StationStatus
	wrap      func(*memory.Store) store.Store
	evaluator ingest.Evaluator
}

func envelope(t *testing.T, device string, data map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"device_id": device,
		"ts":        testRecordedISO,
		"boot_id":   3,
		"seq":       101,
		"msg_id":    "3-101",
		"data":      data,
	})
	require.NoError(t, err)
	return b
}

func (h harness) stationStatus(t *testing.T) domain.StationStatus {
	t.Helper()
	st, err := h.mem.FindStationByDeviceID(context.Background(), testDevice)
	require.NoError(t, err)
	return st.Status
}

// --- tests ---

func TestIngest_StoresReadingsWithoutViolation(t *testing.T) {
	h := newHarness(t)

	res := h.ingestor.Ingest(context.Background(), envelope(t, testDevice, map[string]any{
		"air_temp_c":        24.6,
		"air_rh_pct":        91,
		"soil_moisture_pct": 41,
		"firmware":          "1.2.0",
	}))

	require.True(t, res.Success, res.Errors)
	assert.NoError(t, res.Err())
	assert.Equal(t, 3, res.RecordsCreated)
	assert.Zero(t, res.AlertsTriggered)
	assert.Empty(t, res.Errors)

	readings := h.mem.Readings()
	require.Len(t, readings, 3)
	for _, r := range readings {
		assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), r.RecordedAt)
		assert.Equal(t, h.station.ID, r.StationID)
	}
	assert.Equal(t, domain.StationNormal, h.stationStatus(t))
}

func TestIngest_BelowMinimumRaisesOneAlert(t *testing.T) {
	h := newHarness(t)

	res := h.ingestor.Ingest(context.Background(), envelope(t, testDevice, map[string]any{
		"soil_moisture_pct": 8.5,
		"air_temp_c":        22,
	}))

	require.True(t, res.Success)
	assert.Equal(t, 2, res.RecordsCreated)
	assert.Equal(t, 1, res.AlertsTriggered)

	alerts := h.mem.Alerts()
	require.Len(t, alerts, 1)
	assert.GreaterOrEqual(t, alerts[0].Severity, domain.SeverityMedium)
	assert.Equal(t, domain.SensorSoilMoisture, alerts[0].SensorType)
	require.NotNil(t, alerts[0].ReadingID)

	var stored *domain.Reading
	for _, r := range h.mem.Readings() {
		if r.ID == *alerts[0].ReadingID {
			stored = &r
		}
	}
	require.NotNil(t, stored, "alert must reference the stored reading")
	assert.Equal(t, 8.5, stored.Value)

	assert.Equal(t, domain.StationWarning, h.stationStatus(t))
	assert.Equal(t, 1, h.pub.count(alertTopic))
}

func TestIngest_UnknownDevice(t *testing.T) {
	h := newHarness(t)

	res := h.ingestor.Ingest(context.Background(), envelope(t, "STN-9999", map[string]any{"soil_moisture_pct": 1}))

	assert.False(t, res.Success)
	assert.Equal(t, domain.FailureUnknownDevice, res.Kind)
	assert.ErrorIs(t, res.Err(), domain.ErrUnknownDevice)
	assert.Zero(t, res.RecordsCreated)
	assert.Empty(t, h.mem.Readings())
	assert.Empty(t, h.mem.Alerts())
	assert.False(t, res.Kind.Retryable())
}

func TestIngest_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		kind domain.FailureKind
	}{
		{"malformed json", []byte(`{"device_id":`), domain.FailureValidation},
		{"missing data", []byte(`{"device_id":"STN-0042","ts":"2025-06-01T10:00:00Z"}`), domain.FailureValidation},
		{"non-iso ts", []byte(`{"device_id":"STN-0042","ts":"yesterday","data":{}}`), domain.FailureValidation},
		{"no recognized fields", []byte(`{"device_id":"STN-0042","ts":"2025-06-01T10:00:00Z","data":{"uv_index":3,"air_temp_c":"hot"}}`), domain.FailureNoRecognizedFields},
		{"status vocabulary on telemetry path", []byte(`{"device_id":"STN-0042","ts":"2025-06-01T10:00:00Z","data":{"battery_v":12.6}}`), domain.FailureNoRecognizedFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			res := h.ingestor.Ingest(context.Background(), tt.raw)
			assert.False(t, res.Success)
			assert.Equal(t, tt.kind, res.Kind)
			assert.ErrorIs(t, res.Err(), tt.kind.Sentinel())
			assert.NotEmpty(t, res.Errors)
			assert.Empty(t, h.mem.Readings())
		})
	}
}

func TestOnMessage_RoutesByTopic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.ingestor.OnMessage(ctx, statusTopic, envelope(t, testDevice, map[string]any{
		"battery_v":       12.7,
		"battery_soc_pct": 88,
		"cc_temp_c":       41.5,
	}))
	require.True(t, res.Success)
	assert.Equal(t, 3, res.RecordsCreated)

	types := map[domain.SensorType]bool{}
	for _, r := range h.mem.Readings() {
		types[r.SensorType] = true
	}
	assert.Equal(t, map[domain.SensorType]bool{
		domain.SensorBatteryVoltage: true,
		domain.SensorBatteryCharge:  true,
		domain.SensorControllerTemp: true,
	}, types)

	res = h.ingestor.OnMessage(ctx, telemetryTopic, envelope(t, testDevice, map[string]any{"rain_mm": 1.2}))
	require.True(t, res.Success)

	res = h.ingestor.OnMessage(ctx, "station-firmware", envelope(t, testDevice, map[string]any{"rain_mm": 1.2}))
	assert.False(t, res.Success)
	assert.Equal(t, domain.FailureValidation, res.Kind)
	assert.Equal(t, testDevice, res.DeviceID)
}

func TestIngest_RedeliveryDuplicatesReadings(t *testing.T) {
	h := newHarness(t)
	raw := envelope(t, testDevice, map[string]any{"soil_moisture_pct": 5})

	for range 2 {
		res := h.ingestor.Ingest(context.Background(), raw)
		require.True(t, res.Success)
	}

	assert.Len(t, h.mem.Readings(), 2)
	assert.Len(t, h.mem.Alerts(), 2)
}

func TestIngest_ClearsOfflineStatus(t *testing.T) {
	h := newHarness(t, func(o *harnessOpts) { o.status = domain.StationOffline })

	res := h.ingestor.Ingest(context.Background(), envelope(t, testDevice, map[string]any{"air_temp_c": 20}))
	require.True(t, res.Success)
	assert.Equal(t, domain.StationNormal, h.stationStatus(t))
}

func TestIngest_OfflineStationWithViolationBecomesWarning(t *testing.T) {
	h := newHarness(t, func(o *harnessOpts) { o.status = domain.StationOffline })

	res := h.ingestor.Ingest(context.Background(), envelope(t, testDevice, map[string]any{"soil_moisture_pct": 90}))
	require.True(t, res.Success)
	assert.Equal(t, domain.StationWarning, h.stationStatus(t))
}

func TestIngest_ThresholdFailureStillStoresReading(t *testing.T) {
	h := newHarness(t, func(o *harnessOpts) { o.evaluator = erroringEvaluator{} })

	res := h.ingestor.Ingest(context.Background(), envelope(t, testDevice, map[string]any{"soil_moisture_pct": 5}))

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RecordsCreated)
	assert.Zero(t, res.AlertsTriggered)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "threshold table unavailable")
	assert.Len(t, h.mem.Readings(), 1)
}

func TestIngest_PartialStorageFailure(t *testing.T) {
	h := newHarness(t, func(o *harnessOpts) {
		o.wrap = func(m *memory.Store) store.Store {
			return &faultyStore{Store: m, failTypes: map[domain.SensorType]bool{domain.SensorSoilMoisture: true}}
		}
	})

	res := h.ingestor.Ingest(context.Background(), envelope(t, testDevice, map[string]any{
		"soil_moisture_pct": 5,
		"air_temp_c":        20,
		"rain_mm":           0,
	}))

	assert.True(t, res.Success, "best-effort per field")
	assert.Equal(t, 2, res.RecordsCreated)
	assert.Zero(t, res.AlertsTriggered)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "deadlock detected")
	assert.Empty(t, h.mem.Alerts(), "failed field rolls back its alert with its reading")
	assert.Zero(t, h.pub.count(alertTopic))
}

func TestIngest_AllFieldsFailIsRetryable(t *testing.T) {
	h := newHarness(t, func(o *harnessOpts) {
		o.wrap = func(m *memory.Store) store.Store {
			return &faultyStore{Store: m, failTypes: map[domain.SensorType]bool{domain.SensorAirTemperature: true}}
		}
	})

	res := h.ingestor.Ingest(context.Background(), envelope(t, testDevice, map[string]any{"air_temp_c": 20}))

	assert.False(t, res.Success)
	assert.Equal(t, domain.FailureStorage, res.Kind)
	assert.True(t, res.Kind.Retryable())
	assert.ErrorIs(t, res.Err(), domain.ErrStorage)
}

func TestIngest_StationLookupFailureIsStorage(t *testing.T) {
	h := newHarness(t, func(o *harnessOpts) {
		o.wrap = func(m *memory.Store) store.Store {
			return &faultyStore{Store: m, findErr: fmt.Errorf("dial tcp: connection refused")}
		}
	})

	res := h.ingestor.Ingest(context.Background(), envelope(t, testDevice, map[string]any{"air_temp_c": 20}))
	assert.Equal(t, domain.FailureStorage, res.Kind)
	assert.Empty(t, h.mem.Readings())
}
