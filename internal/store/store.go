// Package store defines the persistent store the ingestion pipeline, alert
// generator and risk engine depend on. Adapters live under internal/adapter.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// StationStore resolves and updates stations. Stations are provisioned
// outside this service and are never created implicitly.
type StationStore interface {
	FindStationByDeviceID(ctx context.Context, deviceID string) (domain.Station, error)
	ListStations(ctx context.Context) ([]domain.Station, error)
	UpdateStationStatus(ctx context.Context, stationID int64, status domain.StationStatus) error
}

// SensorStore lazily creates sensors. UpsertSensor is idempotent.
type SensorStore interface {
	UpsertSensor(ctx context.Context, stationID int64, sensorType domain.SensorType) (domain.Sensor, error)
}

// WindowQuery selects readings recorded in [From, To). A zero StationID
// matches every station; empty SensorTypes matches every type.
type WindowQuery struct {
	StationID   int64
	SensorTypes []domain.SensorType
	From        time.Time
	To          time.Time
}

// ReadingStore appends and queries readings.
type ReadingStore interface {
	InsertReading(ctx context.Context, r domain.Reading) (domain.Reading, error)
	ReadingsInWindow(ctx context.Context, q WindowQuery) ([]domain.Reading, error)
}

// ThresholdStore holds one active band per sensor type.
type ThresholdStore interface {
	GetThreshold(ctx context.Context, sensorType domain.SensorType) (domain.Threshold, error)
	UpsertThreshold(ctx context.Context, th domain.Threshold) (domain.Threshold, error)
}

// AlertQuery filters alert listings. Limit <= 0 means the adapter default.
type AlertQuery struct {
	StationID          int64
	UnacknowledgedOnly bool
	Limit              int
}

// AlertStore persists alerts. Alerts are acknowledged, never deleted.
type AlertStore interface {
	InsertAlert(ctx context.Context, a domain.Alert) (domain.Alert, error)
	AcknowledgeAlert(ctx context.Context, id int64, at time.Time) (domain.Alert, error)
	ListAlerts(ctx context.Context, q AlertQuery) ([]domain.Alert, error)
}

// Store is the full persistent store.
type Store interface {
	StationStore
	SensorStore
	ReadingStore
	ThresholdStore
	AlertStore

	// WithinTx runs fn against a store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise. fn
	// must only use the store it is given.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// DefaultAlertLimit caps alert listings when the query does not set a limit.
const DefaultAlertLimit = 100
