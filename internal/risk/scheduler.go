package risk

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/observability"
)

// Scheduler periodically computes the dashboard for every station and
// publishes it keyed by device id.
type Scheduler struct {
	engine    *Engine
	stations  Store
	publisher domain.Publisher
	topic     string
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewScheduler creates a scheduler. A nil clock uses real time.
func NewScheduler(engine *Engine, stations Store, publisher domain.Publisher, topic string, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		engine:    engine,
		stations:  stations,
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run computes once immediately and then every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("risk scheduler started", "interval", s.interval, "topic", s.topic)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("risk scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.RunOnce(ctx)
		}
	}
}

// RunOnce computes and publishes every station's dashboard. Per-station
// failures are logged and skipped. Returns the number published.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	stations, err := s.stations.ListStations(ctx)
	if err != nil {
		s.logger.Error("list stations for risk run failed", "error", err)
		return 0
	}

	published := 0
	for _, st := range stations {
		if ctx.Err() != nil {
			break
		}
		d, err := s.engine.DashboardFor(ctx, st, 0)
		if err != nil {
			s.logger.Warn("risk dashboard failed", "error", err, "device_id", st.DeviceID)
			continue
		}
		payload, err := json.Marshal(d)
		if err != nil {
			s.logger.Error("marshal risk dashboard", "error", err, "device_id", st.DeviceID)
			continue
		}
		if err := s.publisher.Publish(ctx, s.topic, []byte(st.DeviceID), payload); err != nil {
			s.logger.Warn("publish risk dashboard failed", "error", err, "device_id", st.DeviceID)
			s.metrics.PublishErrors.WithLabelValues("risk").Inc()
			continue
		}
		s.metrics.MessagesProduced.WithLabelValues("risk").Inc()
		published++
	}
	s.logger.Debug("risk run complete", "stations", len(stations), "published", published)
	return published
}
