package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Station is a physical field device identified by its DeviceID.
type Station struct {
	ID        int64         `json:"id"`
	DeviceID  string        `json:"device_id"`
	Name      string        `json:"name,omitempty"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Status    StationStatus `json:"status"`
}

// HasCoordinates reports whether the station has a non-zero position.
func (s Station) HasCoordinates() bool {
	return s.Latitude != 0 || s.Longitude != 0
}

// Sensor belongs to exactly one station and is unique per (station, type).
type Sensor struct {
	ID        int64      `json:"id"`
	StationID int64      `json:"station_id"`
	Type      SensorType `json:"sensor_type"`
}

// Reading is an append-only measurement. It is never updated once stored.
type Reading struct {
	ID         int64      `json:"id"`
	SensorID   int64      `json:"sensor_id"`
	StationID  int64      `json:"station_id"`
	SensorType SensorType `json:"sensor_type"`
	Value      float64    `json:"value"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// Measurement is a mapped (sensor type, value) pair taken from an envelope.
type Measurement struct {
	Type  SensorType
	Value float64
}

// AlertType distinguishes sensor-triggered alerts from audit entries.
type AlertType string

const (
	AlertThresholdViolation AlertType = "threshold_violation"
	AlertGateCommand        AlertType = "gate_command"
)

// Alert is a derived fact raised by the alert generator. Operators acknowledge
// alerts; they are never deleted.
type Alert struct {
	ID             int64      `json:"id"`
	UID            uuid.UUID  `json:"uid"`
	StationID      int64      `json:"station_id"`
	SensorID       *int64     `json:"sensor_id,omitempty"`
	ReadingID      *int64     `json:"reading_id,omitempty"`
	SensorType     SensorType `json:"sensor_type,omitempty"`
	Type           AlertType  `json:"alert_type"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Value          *float64   `json:"value,omitempty"`
	ThresholdMin   *float64   `json:"threshold_min,omitempty"`
	ThresholdMax   *float64   `json:"threshold_max,omitempty"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// MessageKind selects the field vocabulary of an envelope.
type MessageKind string

const (
	KindTelemetry MessageKind = "telemetry"
	KindStatus    MessageKind = "status"
)

// GateAction is an actuator command for a station gate.
type GateAction string

const (
	GateLock   GateAction = "lock"
	GateUnlock GateAction = "unlock"
)

// ParseGateAction accepts "lock" or "unlock".
func ParseGateAction(s string) (GateAction, error) {
	switch GateAction(s) {
	case GateLock, GateUnlock:
		return GateAction(s), nil
	default:
		return "", fmt.Errorf("%w: unsupported gate action %q", ErrInvalidCommand, s)
	}
}

// GateCommand is the payload published to a station's command topic.
type GateCommand struct {
	Action    GateAction `json:"action"`
	Timestamp time.Time  `json:"timestamp"`
	UserID    int64      `json:"user_id"`
	Username  string     `json:"username"`
}

// RawEvent represents an unprocessed message from the bus.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}
