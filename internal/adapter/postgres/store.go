// Package postgres implements store.Store on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
)

//go:embed schema.sql
var schema string

// foreignKeyViolation is the SQLSTATE raised when a referenced row is missing.
const foreignKeyViolation = "23503"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements store.Store. A Store returned to a WithinTx callback is
// bound to that transaction.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, db: pool}, nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("store is bound to a transaction")
	}
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WithinTx runs fn in a transaction. Nested calls open a savepoint.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&Store{db: tx})
	})
}

// --- stations ---

const stationColumns = `id, device_id, name, latitude, longitude, status`

func scanStation(row pgx.Row) (domain.Station, error) {
	var st domain.Station
	var status string
	if err := row.Scan(&st.ID, &st.DeviceID, &st.Name, &st.Latitude, &st.Longitude, &status); err != nil {
		return domain.Station{}, err
	}
	st.Status = domain.StationStatus(status)
	return st, nil
}

func (s *Store) FindStationByDeviceID(ctx context.Context, deviceID string) (domain.Station, error) {
	st, err := scanStation(s.db.QueryRow(ctx,
		`SELECT `+stationColumns+` FROM stations WHERE device_id = $1`, deviceID))
	if err != nil {
		return domain.Station{}, wrap(err, "find station %q", deviceID)
	}
	return st, nil
}

func (s *Store) ListStations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.db.Query(ctx, `SELECT `+stationColumns+` FROM stations ORDER BY id`)
	if err != nil {
		return nil, wrap(err, "list stations")
	}
	defer rows.Close()

	var out []domain.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, wrap(err, "scan station")
		}
		out = append(out, st)
	}
	return out, wrap(rows.Err(), "list stations")
}

func (s *Store) UpdateStationStatus(ctx context.Context, stationID int64, status domain.StationStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE stations SET status = $2 WHERE id = $1`, stationID, string(status))
	if err != nil {
		return wrap(err, "update station %d status", stationID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("station %d: %w", stationID, store.ErrNotFound)
	}
	return nil
}

// --- sensors and readings ---

func (s *Store) UpsertSensor(ctx context.Context, stationID int64, sensorType domain.SensorType) (domain.Sensor, error) {
	se := domain.Sensor{StationID: stationID, Type: sensorType}
	err := s.db.QueryRow(ctx, `
		INSERT INTO sensors (station_id, sensor_type) VALUES ($1, $2)
		ON CONFLICT (station_id, sensor_type) DO UPDATE SET sensor_type = EXCLUDED.sensor_type
		RETURNING id`, stationID, string(sensorType)).Scan(&se.ID)
	if err != nil {
		return domain.Sensor{}, wrap(err, "upsert sensor %s for station %d", sensorType, stationID)
	}
	return se, nil
}

func (s *Store) InsertReading(ctx context.Context, r domain.Reading) (domain.Reading, error) {
	var sensorType string
	err := s.db.QueryRow(ctx, `
		WITH s AS (SELECT id, station_id, sensor_type FROM sensors WHERE id = $1),
		ins AS (
			INSERT INTO readings (sensor_id, value, recorded_at)
			SELECT id, $2, $3 FROM s
			RETURNING id
		)
		SELECT ins.id, s.station_id, s.sensor_type FROM ins, s`,
		r.SensorID, r.Value, r.RecordedAt.UTC()).Scan(&r.ID, &r.StationID, &sensorType)
	if err != nil {
		return domain.Reading{}, wrap(err, "insert reading for sensor %d", r.SensorID)
	}
	r.SensorType = domain.SensorType(sensorType)
	return r, nil
}

func (s *Store) ReadingsInWindow(ctx context.Context, q store.WindowQuery) ([]domain.Reading, error) {
	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.sensor_id, s.station_id, s.sensor_type, r.value, r.recorded_at
		FROM readings r
		JOIN sensors s ON s.id = r.sensor_id
		WHERE ($1::bigint = 0 OR s.station_id = $1)
		  AND (cardinality($2::text[]) = 0 OR s.sensor_type = ANY($2))
		  AND r.recorded_at >= $3 AND r.recorded_at < $4
		ORDER BY r.recorded_at, r.id`,
		q.StationID, sensorTypeStrings(q.SensorTypes), q.From.UTC(), q.To.UTC())
	if err != nil {
		return nil, wrap(err, "query readings")
	}
	defer rows.Close()

	var out []domain.Reading
	for rows.Next() {
		var r domain.Reading
		var sensorType string
		if err := rows.Scan(&r.ID, &r.SensorID, &r.StationID, &sensorType, &r.Value, &r.RecordedAt); err != nil {
			return nil, wrap(err, "scan reading")
		}
		r.SensorType = domain.SensorType(sensorType)
		r.RecordedAt = r.RecordedAt.UTC()
		out = append(out, r)
	}
	return out, wrap(rows.Err(), "query readings")
}

// --- thresholds ---

func (s *Store) GetThreshold(ctx context.Context, sensorType domain.SensorType) (domain.Threshold, error) {
	th := domain.Threshold{SensorType: sensorType}
	err := s.db.QueryRow(ctx,
		`SELECT min_value, max_value, updated_at FROM thresholds WHERE sensor_type = $1`,
		string(sensorType)).Scan(&th.Min, &th.Max, &th.UpdatedAt)
	if err != nil {
		return domain.Threshold{}, wrap(err, "threshold %s", sensorType)
	}
	th.UpdatedAt = th.UpdatedAt.UTC()
	return th, nil
}

func (s *Store) UpsertThreshold(ctx context.Context, th domain.Threshold) (domain.Threshold, error) {
	if err := th.Validate(); err != nil {
		return domain.Threshold{}, err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO thresholds (sensor_type, min_value, max_value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sensor_type) DO UPDATE
		SET min_value = EXCLUDED.min_value, max_value = EXCLUDED.max_value, updated_at = EXCLUDED.updated_at`,
		string(th.SensorType), th.Min, th.Max, th.UpdatedAt.UTC())
	if err != nil {
		return domain.Threshold{}, wrap(err, "upsert threshold %s", th.SensorType)
	}
	return th, nil
}

// --- alerts ---

const alertColumns = `id, uid, station_id, sensor_id, reading_id, sensor_type, alert_type, severity,
	message, value, threshold_min, threshold_max, acknowledged, acknowledged_at, created_at`

func scanAlert(row pgx.Row) (domain.Alert, error) {
	var a domain.Alert
	var sensorType, alertType, severity string
	err := row.Scan(&a.ID, &a.UID, &a.StationID, &a.SensorID, &a.ReadingID, &sensorType, &alertType, &severity,
		&a.Message, &a.Value, &a.ThresholdMin, &a.ThresholdMax, &a.Acknowledged, &a.AcknowledgedAt, &a.CreatedAt)
	if err != nil {
		return domain.Alert{}, err
	}
	sev, err := domain.ParseSeverity(severity)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("alert %d: %w", a.ID, err)
	}
	a.SensorType = domain.SensorType(sensorType)
	a.Type = domain.AlertType(alertType)
	a.Severity = sev
	a.CreatedAt = a.CreatedAt.UTC()
	if a.AcknowledgedAt != nil {
		at := a.AcknowledgedAt.UTC()
		a.AcknowledgedAt = &at
	}
	return a, nil
}

func (s *Store) InsertAlert(ctx context.Context, a domain.Alert) (domain.Alert, error) {
	if a.UID == uuid.Nil {
		a.UID = uuid.New()
	}
	out, err := scanAlert(s.db.QueryRow(ctx, `
		INSERT INTO alerts (uid, station_id, sensor_id, reading_id, sensor_type, alert_type, severity,
			message, value, threshold_min, threshold_max, acknowledged, acknowledged_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+alertColumns,
		a.UID, a.StationID, a.SensorID, a.ReadingID, string(a.SensorType), string(a.Type), a.Severity.String(),
		a.Message, a.Value, a.ThresholdMin, a.ThresholdMax, a.Acknowledged, a.AcknowledgedAt, a.CreatedAt.UTC()))
	if err != nil {
		return domain.Alert{}, wrap(err, "insert alert for station %d", a.StationID)
	}
	return out, nil
}

func (s *Store) AcknowledgeAlert(ctx context.Context, id int64, at time.Time) (domain.Alert, error) {
	a, err := scanAlert(s.db.QueryRow(ctx, `
		UPDATE alerts
		SET acknowledged = TRUE, acknowledged_at = COALESCE(acknowledged_at, $2)
		WHERE id = $1
		RETURNING `+alertColumns, id, at.UTC()))
	if err != nil {
		return domain.Alert{}, wrap(err, "acknowledge alert %d", id)
	}
	return a, nil
}

func (s *Store) ListAlerts(ctx context.Context, q store.AlertQuery) ([]domain.Alert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE ($1::bigint = 0 OR station_id = $1)
		  AND (NOT $2::boolean OR NOT acknowledged)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, q.StationID, q.UnacknowledgedOnly, alertLimit(q.Limit))
	if err != nil {
		return nil, wrap(err, "list alerts")
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, wrap(err, "scan alert")
		}
		out = append(out, a)
	}
	return out, wrap(rows.Err(), "list alerts")
}

// --- helpers ---

func alertLimit(n int) int {
	if n <= 0 {
		return store.DefaultAlertLimit
	}
	return n
}

func sensorTypeStrings(types []domain.SensorType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// wrap annotates err with context. Missing rows and references to missing
// rows become store.ErrNotFound; anything else is a storage failure.
func wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, store.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%s: %w: %s", msg, store.ErrNotFound, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w: %w", msg, domain.ErrStorage, err)
}
