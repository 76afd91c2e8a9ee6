package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/risk"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
)

// maxRiskDays bounds the ?days= window accepted by the risk endpoints.
const maxRiskDays = 90

// RiskService computes dashboards and single pillars for a station.
type RiskService interface {
	Window() time.Duration
	Dashboard(ctx context.Context, deviceID string, window time.Duration) (risk.Dashboard, error)
	Pillar(ctx context.Context, deviceID string, p risk.Pillar, window time.Duration) (risk.PillarSummary, error)
}

// AlertService lists and acknowledges alerts.
type AlertService interface {
	Acknowledge(ctx context.Context, id int64) (domain.Alert, error)
	ListForStation(ctx context.Context, deviceID string, unacknowledgedOnly bool, limit int) ([]domain.Alert, error)
}

// ThresholdService reads and replaces threshold bands.
type ThresholdService interface {
	Get(ctx context.Context, sensorType domain.SensorType) (domain.Threshold, error)
	Set(ctx context.Context, sensorType domain.SensorType, minVal, maxVal float64) (domain.Threshold, error)
}

// GateService issues gate commands.
type GateService interface {
	Gate(ctx context.Context, deviceID string, action domain.GateAction, userID int64, username string) (domain.GateCommand, error)
}

// API groups the services behind the operator routes. Routes for a nil
// service are not registered.
type API struct {
	Risk       RiskService
	Alerts     AlertService
	Thresholds ThresholdService
	Gates      GateService
}

// Checks combines readiness checkers; it is ready when all of them are.
type Checks []sharedobs.ReadinessChecker

func (c Checks) CheckReadiness(ctx context.Context) error {
	for _, check := range c {
		if err := check.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Server exposes health, readiness, metrics and the operator API.
type Server struct {
	httpServer *http.Server
	api        API
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// routes backed by api.
func NewServer(addr string, ready sharedobs.ReadinessChecker, api API, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		api:    api,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	if api.Risk != nil {
		mux.HandleFunc("GET /stations/{device_id}/risk", s.handleDashboard)
		mux.HandleFunc("GET /stations/{device_id}/risk/{pillar}", s.handlePillar)
	}
	if api.Alerts != nil {
		mux.HandleFunc("GET /stations/{device_id}/alerts", s.handleListAlerts)
		mux.HandleFunc("POST /alerts/{id}/ack", s.handleAcknowledge)
	}
	if api.Thresholds != nil {
		mux.HandleFunc("GET /thresholds/{sensor_type}", s.handleGetThreshold)
		mux.HandleFunc("PUT /thresholds/{sensor_type}", s.handleSetThreshold)
	}
	if api.Gates != nil {
		mux.HandleFunc("POST /stations/{device_id}/gate", s.handleGate)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// --- risk ---

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	window, err := s.window(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.api.Risk.Dashboard(r.Context(), r.PathValue("device_id"), window)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, d)
}

func (s *Server) handlePillar(w http.ResponseWriter, r *http.Request) {
	p, err := risk.ParsePillar(r.PathValue("pillar"))
	if err != nil {
		s.writeError(w, r, badRequest(err.Error()))
		return
	}
	window, err := s.window(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.api.Risk.Pillar(r.Context(), r.PathValue("device_id"), p, window)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, summary)
}

// window reads ?days=N, falling back to the engine's default window.
func (s *Server) window(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return s.api.Risk.Window(), nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > maxRiskDays {
		return 0, badRequest("days must be an integer between 1 and " + strconv.Itoa(maxRiskDays))
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

// --- alerts ---

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unacked := q.Get("unacknowledged") == "true"
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, badRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}
	alerts, err := s.api.Alerts.ListForStation(r.Context(), r.PathValue("device_id"), unacked, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		s.writeError(w, r, badRequest("alert id must be a positive integer"))
		return
	}
	a, err := s.api.Alerts.Acknowledge(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, a)
}

// --- thresholds ---

type thresholdRequest struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	st, err := domain.ParseSensorType(r.PathValue("sensor_type"))
	if err != nil {
		s.writeError(w, r, badRequest(err.Error()))
		return
	}
	th, err := s.api.Thresholds.Get(r.Context(), st)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, th)
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	st, err := domain.ParseSensorType(r.PathValue("sensor_type"))
	if err != nil {
		s.writeError(w, r, badRequest(err.Error()))
		return
	}
	var req thresholdRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Min == nil || req.Max == nil {
		s.writeError(w, r, badRequest("min and max are required"))
		return
	}
	th, err := s.api.Thresholds.Set(r.Context(), st, *req.Min, *req.Max)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, th)
}

// --- gate ---

type gateRequest struct {
	Action   string `json:"action"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	action, err := domain.ParseGateAction(req.Action)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cmd, err := s.api.Gates.Gate(r.Context(), r.PathValue("device_id"), action, req.UserID, req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusAccepted, cmd)
}

// --- errors ---

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, domain.ErrInvalidThreshold),
		errors.Is(err, domain.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
