// Command genmock generates hourly station envelopes for a weather scenario
// and writes them as a JSON-lines fixture, optionally publishing them to the
// telemetry and status topics.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -device STN-0042 -days 10 -scenario wet \
//	  -out data/mock/stn-0042_wet.jsonl
//
//	go run ./cmd/genmock -scenario storm -out - -publish -brokers localhost:9092
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	kafkaadapter "github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/adapter/kafka"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/config"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
)

// statusEvery is how often, in hours, a status envelope is emitted.
const statusEvery = 6

// Line is one fixture record: the message kind and its envelope.
type Line struct {
	Kind     domain.MessageKind `json:"kind"`
	Envelope domain.Envelope    `json:"envelope"`
}

type options struct {
	device   string
	days     int
	scenario string
	start    time.Time
	seed     uint64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	device := flag.String("device", "STN-0042", "station device id")
	days := flag.Int("days", 10, "number of days of hourly telemetry")
	scenario := flag.String("scenario", "calm", "weather scenario: "+strings.Join(scenarioNames(), ", "))
	start := flag.String("start", "2025-06-01", "first day (UTC, YYYY-MM-DD)")
	seed := flag.Uint64("seed", 42, "random seed for reproducible noise")
	out := flag.String("out", "", "output path for the JSON-lines fixture, - for stdout")
	publish := flag.Bool("publish", false, "also publish envelopes to Kafka")
	brokers := flag.String("brokers", "localhost:9092", "comma-separated Kafka brokers")
	telemetryTopic := flag.String("telemetry-topic", "station-telemetry", "telemetry topic")
	statusTopic := flag.String("status-topic", "station-status", "status topic")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	startDay, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}

	lines, err := generate(options{
		device:   *device,
		days:     *days,
		scenario: *scenario,
		start:    startDay.UTC(),
		seed:     *seed,
	})
	if err != nil {
		return err
	}

	if err := writeLines(*out, lines); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	if *out != "-" {
		log.Printf("wrote %d envelopes to %s", len(lines), *out)
	}

	if *publish {
		cfg := &config.Config{KafkaBrokers: sharedcfg.ParseBrokers(*brokers)}
		topics := map[domain.MessageKind]string{domain.KindTelemetry: *telemetryTopic, domain.KindStatus: *statusTopic}
		if err := publishLines(context.Background(), cfg, topics, lines); err != nil {
			return fmt.Errorf("publishing: %w", err)
		}
		log.Printf("published %d envelopes to %s", len(lines), *brokers)
	}

	printStats(lines)
	return nil
}

// weather returns the telemetry data object for hour h of a scenario.
type weather func(h int, rng *rand.Rand) map[string]any

var scenarios = map[string]weather{
	// Persistent leaf wetness at a mild temperature: high disease risk.
	"wet": func(h int, rng *rand.Rand) map[string]any {
		return map[string]any{
			"air_temp_c":        round1(25 + jitter(rng, 0.4)),
			"air_rh_pct":        round1(95 + jitter(rng, 0.5)),
			"rain_mm":           round1(math.Max(0, 1.5+jitter(rng, 1.5))),
			"soil_moisture_pct": round1(72 + jitter(rng, 2)),
			"wind_speed_ms":     round1(math.Max(0, 2+jitter(rng, 1))),
			"air_pressure_hpa":  round1(1008 + jitter(rng, 1)),
		}
	},
	// Hot, dry and rainless: high drought risk.
	"dry": func(h int, rng *rand.Rand) map[string]any {
		return map[string]any{
			"air_temp_c":        round1(34 + 4*diurnal(h) + jitter(rng, 0.5)),
			"air_rh_pct":        round1(38 + jitter(rng, 3)),
			"rain_mm":           0.0,
			"soil_moisture_pct": round1(math.Max(5, 18-float64(h)/48+jitter(rng, 0.5))),
			"wind_speed_ms":     round1(math.Max(0, 3+jitter(rng, 1))),
			"air_pressure_hpa":  round1(1012 + jitter(rng, 1)),
		}
	},
	// Strong wind and a falling barometer with heavy rain.
	"storm": func(h int, rng *rand.Rand) map[string]any {
		return map[string]any{
			"air_temp_c":        round1(27 + jitter(rng, 0.5)),
			"air_rh_pct":        round1(88 + jitter(rng, 2)),
			"rain_mm":           round1(math.Max(0, 4+jitter(rng, 2))),
			"soil_moisture_pct": round1(80 + jitter(rng, 2)),
			"wind_speed_ms":     round1(math.Max(0, 20+jitter(rng, 3))),
			"air_pressure_hpa":  round1(1010 - float64(h)/12 + jitter(rng, 0.3)),
		}
	},
	// Seasonal baseline: low risk on every pillar.
	"calm": func(h int, rng *rand.Rand) map[string]any {
		rain := 0.0
		if rng.IntN(24) == 0 {
			rain = round1(2 + rng.Float64()*3)
		}
		return map[string]any{
			"air_temp_c":        round1(29 + 4*diurnal(h) + jitter(rng, 0.5)),
			"air_rh_pct":        round1(68 - 10*diurnal(h) + jitter(rng, 2)),
			"rain_mm":           rain,
			"soil_moisture_pct": round1(45 + jitter(rng, 2)),
			"wind_speed_ms":     round1(math.Max(0, 3+jitter(rng, 1))),
			"air_pressure_hpa":  round1(1012 + jitter(rng, 0.5)),
		}
	},
}

func scenarioNames() []string {
	return []string{"calm", "dry", "storm", "wet"}
}

func generate(o options) ([]Line, error) {
	w, ok := scenarios[o.scenario]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (want one of %s)", o.scenario, strings.Join(scenarioNames(), ", "))
	}
	if o.days < 1 {
		return nil, fmt.Errorf("days must be at least 1")
	}

	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	rssi := -71.0
	hours := o.days * 24
	lines := make([]Line, 0, hours+hours/statusEvery)
	var seq int64

	envelope := func(ts time.Time, data map[string]any) domain.Envelope {
		seq++
		return domain.Envelope{
			DeviceID:  o.device,
			Timestamp: ts,
			BootID:    1,
			Seq:       seq,
			MsgID:     fmt.Sprintf("1-%d", seq),
			Data:      data,
			SIMSerial: "8966001234567890",
			SIMRSSI:   &rssi,
		}
	}

	for h := 0; h < hours; h++ {
		ts := o.start.Add(time.Duration(h) * time.Hour)
		lines = append(lines, Line{Kind: domain.KindTelemetry, Envelope: envelope(ts, w(h, rng))})
		if h%statusEvery == 0 {
			lines = append(lines, Line{Kind: domain.KindStatus, Envelope: envelope(ts, status(h, rng))})
		}
	}
	return lines, nil
}

func status(h int, rng *rand.Rand) map[string]any {
	sun := math.Max(0, diurnal(h))
	return map[string]any{
		"solar_v":         round1(18 * sun),
		"solar_a":         round1(3 * sun),
		"battery_v":       round1(12.4 + sun + jitter(rng, 0.1)),
		"battery_soc_pct": round1(math.Min(100, 70+25*sun+jitter(rng, 2))),
		"load_a":          round1(0.4 + jitter(rng, 0.05)),
		"cc_temp_c":       round1(30 + 8*sun),
	}
}

// diurnal is a daily cycle peaking at 14:00 UTC.
func diurnal(h int) float64 {
	return math.Cos(2 * math.Pi * float64(h%24-14) / 24)
}

func jitter(rng *rand.Rand, amp float64) float64 {
	return (rng.Float64()*2 - 1) * amp
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func writeLines(path string, lines []Line) error {
	var w io.Writer
	if path == "-" {
		w = os.Stdout
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func publishLines(ctx context.Context, cfg *config.Config, topics map[domain.MessageKind]string, lines []Line) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	writer := kafkaadapter.NewWriter(cfg, logger)
	defer writer.Close()

	for _, l := range lines {
		payload, err := json.Marshal(l.Envelope)
		if err != nil {
			return err
		}
		if err := writer.Publish(ctx, topics[l.Kind], []byte(l.Envelope.DeviceID), payload); err != nil {
			return err
		}
	}
	return nil
}

func printStats(lines []Line) {
	counts := map[domain.MessageKind]int{}
	for _, l := range lines {
		counts[l.Kind]++
	}
	log.Printf("telemetry: %d, status: %d", counts[domain.KindTelemetry], counts[domain.KindStatus])
}
