package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/observability"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
)

// DefaultWindow is the history window used when the caller does not set one.
const DefaultWindow = 10 * 24 * time.Hour

// Store is the read-only view of the persistent store the engine needs.
type Store interface {
	store.StationStore
	store.ReadingStore
}

// Engine fetches reading windows and runs the pillar calculators. It only
// reads from the store.
type Engine struct {
	store    Store
	geocoder domain.Geocoder
	window   time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewEngine creates an engine. geocoder may be nil; window <= 0 uses
// DefaultWindow.
func NewEngine(s Store, geocoder domain.Geocoder, window time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{
		store:    s,
		geocoder: geocoder,
		window:   window,
		logger:   logger,
		metrics:  metrics,
	}
}

// Window returns the engine's default window.
func (e *Engine) Window() time.Duration { return e.window }

// Calculate runs one pillar over readings.
func Calculate(p Pillar, readings []domain.Reading) PillarSummary {
	switch p {
	case PillarDrought:
		return CalculateDrought(readings).Summary()
	case PillarFlood:
		return CalculateFlood(readings).Summary()
	case PillarStorm:
		return CalculateStorm(readings).Summary()
	default:
		return CalculateDisease(HourlySamples(readings)).Summary()
	}
}

// Pillar computes a single pillar for the station over the trailing window.
func (e *Engine) Pillar(ctx context.Context, deviceID string, p Pillar, window time.Duration) (PillarSummary, error) {
	station, err := e.store.FindStationByDeviceID(ctx, deviceID)
	if err != nil {
		return PillarSummary{}, fmt.Errorf("find station %s: %w", deviceID, err)
	}
	from, to := e.bounds(window)
	readings, err := e.store.ReadingsInWindow(ctx, store.WindowQuery{
		StationID:   station.ID,
		SensorTypes: p.sensorTypes(),
		From:        from,
		To:          to,
	})
	if err != nil {
		return PillarSummary{}, fmt.Errorf("read %s window: %w", p, err)
	}
	summary := Calculate(p, readings)
	e.metrics.RiskComputations.WithLabelValues(string(p), summary.RiskLevel.String()).Inc()
	return summary, nil
}

// Dashboard computes all four pillars for a device.
func (e *Engine) Dashboard(ctx context.Context, deviceID string, window time.Duration) (Dashboard, error) {
	station, err := e.store.FindStationByDeviceID(ctx, deviceID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("find station %s: %w", deviceID, err)
	}
	return e.DashboardFor(ctx, station, window)
}

// DashboardFor computes all four pillars for a resolved station with a single
// window query.
func (e *Engine) DashboardFor(ctx context.Context, station domain.Station, window time.Duration) (Dashboard, error) {
	start := time.Now()
	from, to := e.bounds(window)

	var types []domain.SensorType
	seen := make(map[domain.SensorType]bool)
	for _, p := range Pillars() {
		for _, st := range p.sensorTypes() {
			if !seen[st] {
				seen[st] = true
				types = append(types, st)
			}
		}
	}

	readings, err := e.store.ReadingsInWindow(ctx, store.WindowQuery{
		StationID:   station.ID,
		SensorTypes: types,
		From:        from,
		To:          to,
	})
	if err != nil {
		return Dashboard{}, fmt.Errorf("read risk window: %w", err)
	}

	d := Dashboard{
		DeviceID:   station.DeviceID,
		StationID:  station.ID,
		Place:      e.place(ctx, station),
		From:       from,
		To:         to,
		ComputedAt: domain.Now(),
	}
	levels := make([]domain.RiskLevel, 0, len(Pillars()))
	for _, p := range Pillars() {
		s := Calculate(p, readings)
		e.metrics.RiskComputations.WithLabelValues(string(p), s.RiskLevel.String()).Inc()
		d.Pillars = append(d.Pillars, s)
		levels = append(levels, s.RiskLevel)
	}
	d.OverallRisk = domain.MaxRiskLevel(levels...)

	e.metrics.RiskDuration.Observe(time.Since(start).Seconds())
	return d, nil
}

func (e *Engine) bounds(window time.Duration) (time.Time, time.Time) {
	if window <= 0 {
		window = e.window
	}
	to := domain.Now()
	return to.Add(-window), to
}

// place labels the station's coordinates. Lookup failures leave it empty.
func (e *Engine) place(ctx context.Context, station domain.Station) string {
	if e.geocoder == nil || !station.HasCoordinates() {
		return ""
	}
	res, err := e.geocoder.ReverseGeocode(ctx, station.Latitude, station.Longitude)
	if err != nil {
		e.logger.Debug("reverse geocode failed", "error", err, "device_id", station.DeviceID)
		return ""
	}
	if res.PlaceName != "" {
		return res.PlaceName
	}
	return res.FormattedAddress
}
