package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers        []string
	KafkaTelemetryTopic string
	KafkaStatusTopic    string
	KafkaCommandTopic   string
	KafkaAlertTopic     string // empty disables alert notifications
	KafkaRiskTopic      string // empty disables scheduled risk publication
	KafkaGroupID        string
	HTTPAddr            string
	ShutdownTimeout     time.Duration

	LogLevel          string
	LogFormat         string
	LogFile           string
	LogFileMaxMB      int
	LogFileMaxBackups int

	BatchSize          int
	BatchFlushInterval time.Duration
	IngestWorkers      int

	StoreDriver  string
	DatabaseURL  string
	DBMigrate    bool
	SeedStations []string // memory driver only

	RiskWindow      time.Duration
	RiskInterval    time.Duration // 0 disables the scheduler
	AlertEscalation string

	// Mapbox reverse geocoding for dashboard place labels.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads an optional .env file (ENV_FILE, default ".env") without
// overriding variables already set, then reads configuration from the
// environment, applying defaults where unset.
func Load() (*Config, error) {
	if err := loadEnvFile(sharedcfg.EnvOrDefault("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s", false)
	if err != nil {
		return nil, err
	}
	riskWindow, err := parseDuration("RISK_WINDOW", "240h", false)
	if err != nil {
		return nil, err
	}
	riskInterval, err := parseDuration("RISK_INTERVAL", "1h", true)
	if err != nil {
		return nil, err
	}
	workers, err := parsePositiveInt("INGEST_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	dbMigrate, err := parseBool("DB_MIGRATE", true)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTelemetryTopic: sharedcfg.EnvOrDefault("KAFKA_TELEMETRY_TOPIC", "station-telemetry"),
		KafkaStatusTopic:    sharedcfg.EnvOrDefault("KAFKA_STATUS_TOPIC", "station-status"),
		KafkaCommandTopic:   sharedcfg.EnvOrDefault("KAFKA_COMMAND_TOPIC", "station-commands"),
		KafkaAlertTopic:     envOrDefaultAllowEmpty("KAFKA_ALERT_TOPIC", "station-alerts"),
		KafkaRiskTopic:      envOrDefaultAllowEmpty("KAFKA_RISK_TOPIC", "station-risk"),
		KafkaGroupID:        sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "station-ingestor"),
		HTTPAddr:            sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout:     shutdownTimeout,

		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		LogFile:           os.Getenv("LOG_FILE"),
		LogFileMaxMB:      parseIntOr("LOG_FILE_MAX_MB", 100),
		LogFileMaxBackups: parseIntOr("LOG_FILE_MAX_BACKUPS", 5),

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		IngestWorkers:      workers,

		StoreDriver:  strings.ToLower(sharedcfg.EnvOrDefault("STORE_DRIVER", StorePostgres)),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DBMigrate:    dbMigrate,
		SeedStations: splitList(os.Getenv("SEED_STATIONS")),

		RiskWindow:      riskWindow,
		RiskInterval:    riskInterval,
		AlertEscalation: os.Getenv("ALERT_ESCALATION"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseIntOr("MAPBOX_CACHE_SIZE", 1000),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.KafkaTelemetryTopic == "" {
		return errors.New("KAFKA_TELEMETRY_TOPIC is required")
	}
	if c.KafkaStatusTopic == "" {
		return errors.New("KAFKA_STATUS_TOPIC is required")
	}
	if c.KafkaCommandTopic == "" {
		return errors.New("KAFKA_COMMAND_TOPIC is required")
	}
	if c.KafkaTelemetryTopic == c.KafkaStatusTopic {
		return errors.New("KAFKA_TELEMETRY_TOPIC and KAFKA_STATUS_TOPIC must differ")
	}
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if _, err := domain.ParseEscalation(c.AlertEscalation); err != nil {
		return fmt.Errorf("invalid ALERT_ESCALATION: %w", err)
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// envOrDefaultAllowEmpty returns def only when key is unset, so an explicit
// empty value can disable a feature.
func envOrDefaultAllowEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseIntOr(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
