package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/alert"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/observability"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
)

// CommandService sends actuator commands to stations and records each one as
// an audit alert.
type CommandService struct {
	store     store.Store
	publisher domain.Publisher
	topic     string
	alerts    *alert.Generator
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewCommandService creates a command service publishing to topic.
func NewCommandService(s store.Store, p domain.Publisher, topic string, g *alert.Generator, logger *slog.Logger, metrics *observability.Metrics) *CommandService {
	return &CommandService{
		store:     s,
		publisher: p,
		topic:     topic,
		alerts:    g,
		logger:    logger,
		metrics:   metrics,
	}
}

// Gate publishes a lock or unlock command keyed by device id, then records a
// low-severity gate_command alert against the station's gate sensor.
func (c *CommandService) Gate(ctx context.Context, deviceID string, action domain.GateAction, userID int64, username string) (domain.GateCommand, error) {
	if _, err := domain.ParseGateAction(string(action)); err != nil {
		return domain.GateCommand{}, err
	}

	station, err := c.store.FindStationByDeviceID(ctx, deviceID)
	if err != nil {
		return domain.GateCommand{}, fmt.Errorf("find station %s: %w", deviceID, err)
	}

	cmd := domain.GateCommand{
		Action:    action,
		Timestamp: domain.Now(),
		UserID:    userID,
		Username:  username,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return domain.GateCommand{}, fmt.Errorf("marshal gate command: %w", err)
	}
	if err := c.publisher.Publish(ctx, c.topic, []byte(deviceID), payload); err != nil {
		c.metrics.PublishErrors.WithLabelValues("command").Inc()
		return domain.GateCommand{}, fmt.Errorf("publish gate command: %w", err)
	}
	c.metrics.MessagesProduced.WithLabelValues("command").Inc()

	// The command is already on the wire; an audit failure is logged only.
	sensor, err := c.store.UpsertSensor(ctx, station.ID, domain.SensorGateState)
	var sensorRef *domain.Sensor
	if err != nil {
		c.logger.Warn("resolve gate sensor failed", "error", err, "device_id", deviceID)
	} else {
		sensorRef = &sensor
	}
	msg := fmt.Sprintf("gate %s requested by %s", action, username)
	if _, err := c.alerts.RaiseManual(ctx, station, sensorRef, domain.AlertGateCommand, msg, domain.SeverityLow); err != nil {
		c.logger.Warn("record gate command alert failed", "error", err, "device_id", deviceID)
	}

	c.logger.Info("gate command sent", "device_id", deviceID, "action", action, "user_id", userID)
	return cmd, nil
}
