// Package alert persists alerts raised by threshold violations and manual
// operator actions, escalates station status, and publishes notifications.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/observability"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
)

// Store is the subset of the persistent store the generator writes to.
type Store interface {
	store.StationStore
	store.AlertStore
}

// Generator creates alerts. It never deduplicates: every call persists a new
// row.
type Generator struct {
	store     Store
	publisher domain.Publisher
	topic     string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewGenerator creates a generator. Notifications are disabled when
// publisher is nil or topic is empty.
func NewGenerator(s Store, publisher domain.Publisher, topic string, logger *slog.Logger, metrics *observability.Metrics) *Generator {
	return &Generator{
		store:     s,
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		metrics:   metrics,
	}
}

// WithStore returns a copy of the generator writing through s, typically a
// transaction-bound store.
func (g *Generator) WithStore(s Store) *Generator {
	cp := *g
	cp.store = s
	return &cp
}

// Raise persists a threshold violation alert for reading and escalates the
// station status. It does not publish; call Notify after the surrounding
// transaction commits.
func (g *Generator) Raise(ctx context.Context, station domain.Station, sensor domain.Sensor, reading domain.Reading, v domain.Violation) (domain.Alert, error) {
	value, lo, hi := v.Value, v.Min, v.Max
	a := domain.Alert{
		UID:          uuid.New(),
		StationID:    station.ID,
		SensorID:     &sensor.ID,
		ReadingID:    &reading.ID,
		SensorType:   sensor.Type,
		Type:         domain.AlertThresholdViolation,
		Severity:     v.Severity,
		Message:      v.Message(),
		Value:        &value,
		ThresholdMin: &lo,
		ThresholdMax: &hi,
		CreatedAt:    domain.Now(),
	}

	saved, err := g.store.InsertAlert(ctx, a)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	if err := g.escalate(ctx, station, v.Severity); err != nil {
		return domain.Alert{}, err
	}
	g.metrics.AlertsRaised.WithLabelValues(saved.Severity.String(), string(saved.Type)).Inc()
	return saved, nil
}

// RaiseManual records a non-threshold event such as an operator command. The
// sensor is optional. Manual alerts do not change station status and are
// published immediately.
func (g *Generator) RaiseManual(ctx context.Context, station domain.Station, sensor *domain.Sensor, alertType domain.AlertType, message string, sev domain.Severity) (domain.Alert, error) {
	a := domain.Alert{
		UID:       uuid.New(),
		StationID: station.ID,
		Type:      alertType,
		Severity:  sev,
		Message:   message,
		CreatedAt: domain.Now(),
	}
	if sensor != nil {
		a.SensorID = &sensor.ID
		a.SensorType = sensor.Type
	}

	saved, err := g.store.InsertAlert(ctx, a)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("insert manual alert: %w", err)
	}
	g.metrics.AlertsRaised.WithLabelValues(saved.Severity.String(), string(saved.Type)).Inc()
	g.Notify(ctx, station, saved)
	return saved, nil
}

func (g *Generator) escalate(ctx context.Context, station domain.Station, sev domain.Severity) error {
	next := domain.EscalateStatus(station.Status, sev)
	if next == station.Status {
		return nil
	}
	if err := g.store.UpdateStationStatus(ctx, station.ID, next); err != nil {
		return fmt.Errorf("update station status: %w", err)
	}
	return nil
}

// Notification is the payload published to the alert topic.
type Notification struct {
	DeviceID string       `json:"device_id"`
	Alert    domain.Alert `json:"alert"`
}

// Notify publishes alerts keyed by device id. Failures are logged and
// counted, never returned: the alerts are already persisted.
func (g *Generator) Notify(ctx context.Context, station domain.Station, alerts ...domain.Alert) {
	if g.publisher == nil || g.topic == "" {
		return
	}
	for _, a := range alerts {
		payload, err := json.Marshal(Notification{DeviceID: station.DeviceID, Alert: a})
		if err != nil {
			g.logger.Error("marshal alert notification", "error", err, "alert_id", a.ID)
			continue
		}
		if err := g.publisher.Publish(ctx, g.topic, []byte(station.DeviceID), payload); err != nil {
			g.logger.Warn("publish alert notification failed",
				"error", err, "device_id", station.DeviceID, "alert_id", a.ID)
			g.metrics.PublishErrors.WithLabelValues("alert").Inc()
			continue
		}
		g.metrics.MessagesProduced.WithLabelValues("alert").Inc()
	}
}

// Acknowledge marks an alert as acknowledged. Acknowledging twice keeps the
// first acknowledgement time.
func (g *Generator) Acknowledge(ctx context.Context, id int64) (domain.Alert, error) {
	a, err := g.store.AcknowledgeAlert(ctx, id, domain.Now())
	if err != nil {
		return domain.Alert{}, fmt.Errorf("acknowledge alert %d: %w", id, err)
	}
	return a, nil
}

// ListForStation returns the newest alerts for a device.
func (g *Generator) ListForStation(ctx context.Context, deviceID string, unacknowledgedOnly bool, limit int) ([]domain.Alert, error) {
	st, err := g.store.FindStationByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("find station %s: %w", deviceID, err)
	}
	alerts, err := g.store.ListAlerts(ctx, store.AlertQuery{
		StationID:          st.ID,
		UnacknowledgedOnly: unacknowledgedOnly,
		Limit:              limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}
