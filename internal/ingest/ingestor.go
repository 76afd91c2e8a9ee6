// Package ingest turns inbound station envelopes into stored readings and
// alerts, and drives the Kafka consume loop that feeds it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/alert"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/observability"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
)

// Evaluator checks a value against the active threshold for its sensor type.
type Evaluator interface {
	Evaluate(ctx context.Context, sensorType domain.SensorType, value float64) (*domain.Violation, error)
}

// Result summarizes the outcome of ingesting one envelope.
type Result struct {
	Success         bool               `json:"success"`
	RecordsCreated  int                `json:"records_created"`
	AlertsTriggered int                `json:"alerts_triggered"`
	Errors          []string           `json:"errors,omitempty"`
	Kind            domain.FailureKind `json:"failure_kind,omitempty"`
	DeviceID        string             `json:"device_id,omitempty"`
}

// Err returns the failure as an error matching the domain sentinels, or nil on
// success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	sentinel := r.Kind.Sentinel()
	if sentinel == nil {
		sentinel = domain.ErrStorage
	}
	if len(r.Errors) == 0 {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, r.Errors[0])
}

func failed(kind domain.FailureKind, deviceID, msg string) Result {
	return Result{Kind: kind, DeviceID: deviceID, Errors: []string{msg}}
}

// Topics maps bus topics to envelope kinds for OnMessage.
type Topics struct {
	Telemetry string
	Status    string
}

// Ingestor validates, maps, stores and evaluates envelopes. It is safe for
// concurrent use; callers serialize messages per station.
type Ingestor struct {
	store     store.Store
	evaluator Evaluator
	alerts    *alert.Generator
	topics    Topics
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewIngestor creates an ingestor.
func NewIngestor(s store.Store, e Evaluator, g *alert.Generator, topics Topics, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	return &Ingestor{
		store:     s,
		evaluator: e,
		alerts:    g,
		topics:    topics,
		logger:    logger,
		metrics:   metrics,
	}
}

// OnMessage routes a payload by topic to the telemetry or status path.
func (in *Ingestor) OnMessage(ctx context.Context, topic string, payload []byte) Result {
	switch topic {
	case in.topics.Telemetry:
		return in.Ingest(ctx, payload)
	case in.topics.Status:
		return in.IngestStatus(ctx, payload)
	default:
		return in.record(failed(domain.FailureValidation, domain.PeekDeviceID(payload),
			fmt.Sprintf("unroutable topic %q", topic)))
	}
}

// Ingest processes a telemetry envelope.
func (in *Ingestor) Ingest(ctx context.Context, raw []byte) Result {
	return in.record(in.ingest(ctx, domain.KindTelemetry, raw))
}

// IngestStatus processes a device-health envelope.
func (in *Ingestor) IngestStatus(ctx context.Context, raw []byte) Result {
	return in.record(in.ingest(ctx, domain.KindStatus, raw))
}

func (in *Ingestor) ingest(ctx context.Context, kind domain.MessageKind, raw []byte) Result {
	env, err := domain.ParseEnvelope(raw)
	if err != nil {
		return failed(domain.FailureValidation, domain.PeekDeviceID(raw), err.Error())
	}

	station, err := in.store.FindStationByDeviceID(ctx, env.DeviceID)
	if errors.Is(err, store.ErrNotFound) {
		return failed(domain.FailureUnknownDevice, env.DeviceID,
			fmt.Sprintf("station %q is not registered", env.DeviceID))
	}
	if err != nil {
		return failed(domain.FailureStorage, env.DeviceID, fmt.Sprintf("find station: %v", err))
	}

	measurements := domain.MapFields(kind, env.Data)
	if len(measurements) == 0 {
		return failed(domain.FailureNoRecognizedFields, env.DeviceID,
			fmt.Sprintf("no recognized %s fields in data", kind))
	}

	res := Result{DeviceID: env.DeviceID}

	if station.Status == domain.StationOffline {
		if err := in.store.UpdateStationStatus(ctx, station.ID, domain.StationNormal); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("clear offline status: %v", err))
		} else {
			station.Status = domain.StationNormal
		}
	}

	var raised []domain.Alert
	for _, m := range measurements {
		a, stored, err := in.storeMeasurement(ctx, &station, m, env)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
		if stored {
			res.RecordsCreated++
		}
		if a != nil {
			raised = append(raised, *a)
		}
	}
	res.AlertsTriggered = len(raised)

	if len(raised) > 0 {
		in.alerts.Notify(ctx, station, raised...)
	}

	if res.RecordsCreated == 0 {
		res.Kind = domain.FailureStorage
		return res
	}
	res.Success = true
	return res
}

// storeMeasurement writes one reading and, if it violates its band, the alert
// for it in a single transaction. A threshold lookup failure is reported but
// does not prevent the reading from being stored.
func (in *Ingestor) storeMeasurement(ctx context.Context, station *domain.Station, m domain.Measurement, env domain.Envelope) (*domain.Alert, bool, error) {
	violation, evalErr := in.evaluator.Evaluate(ctx, m.Type, m.Value)
	if evalErr != nil {
		in.logger.Warn("threshold evaluation failed, storing reading without alert",
			"error", evalErr, "device_id", env.DeviceID, "sensor_type", m.Type)
		evalErr = fmt.Errorf("%s: evaluate threshold: %w", m.Type, evalErr)
	}

	var (
		raised *domain.Alert
		status = station.Status
	)
	err := in.store.WithinTx(ctx, func(tx store.Store) error {
		sensor, err := tx.UpsertSensor(ctx, station.ID, m.Type)
		if err != nil {
			return fmt.Errorf("upsert sensor: %w", err)
		}
		reading, err := tx.InsertReading(ctx, domain.Reading{
			SensorID:   sensor.ID,
			StationID:  station.ID,
			SensorType: m.Type,
			Value:      m.Value,
			RecordedAt: env.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("insert reading: %w", err)
		}
		if violation == nil {
			return nil
		}
		a, err := in.alerts.WithStore(tx).Raise(ctx, *station, sensor, reading, *violation)
		if err != nil {
			return fmt.Errorf("raise alert: %w", err)
		}
		raised = &a
		status = domain.EscalateStatus(station.Status, violation.Severity)
		return nil
	})
	if err != nil {
		in.logger.Error("store measurement failed",
			"error", err, "device_id", env.DeviceID, "sensor_type", m.Type)
		return nil, false, fmt.Errorf("%s: %w", m.Type, errors.Join(err, evalErr))
	}

	station.Status = status
	in.metrics.ReadingsStored.Inc()
	return raised, true, evalErr
}

func (in *Ingestor) record(res Result) Result {
	if res.Success {
		if len(res.Errors) > 0 {
			in.logger.Warn("envelope partially ingested",
				"device_id", res.DeviceID, "records", res.RecordsCreated, "errors", res.Errors)
		}
		return res
	}
	in.metrics.IngestFailures.WithLabelValues(string(res.Kind)).Inc()
	in.logger.Warn("envelope rejected",
		"kind", res.Kind, "device_id", res.DeviceID, "errors", res.Errors)
	return res
}
