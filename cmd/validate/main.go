// Command validate replays a genmock JSON-lines fixture through the same
// envelope validation, field mapping and risk calculators the ingestor uses,
// and checks the resulting risk levels against expectations.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -fixture data/mock/stn-0042_wet.jsonl \
//	  -expect disease=high,drought=low
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/risk"
)

// fixtureLine keeps the envelope raw so it is validated exactly as it would
// arrive on the bus.
type fixtureLine struct {
	Kind     domain.MessageKind `json:"kind"`
	Envelope json.RawMessage    `json:"envelope"`
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	fixture := flag.String("fixture", "", "path to a genmock JSON-lines fixture")
	expect := flag.String("expect", "", "expected levels, e.g. disease=high,drought=low")
	flag.Parse()

	if *fixture == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(*fixture, *expect))
}

func run(fixturePath, expectFlag string) int {
	fmt.Println("=== Station Fixture Validation ===")
	fmt.Println()

	expected, err := parseExpectations(expectFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	lines, err := loadFixture(fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load fixture: %v\n", err)
		return 1
	}

	envelopes, envPhase := validateEnvelopes(lines)
	readings, mapPhase := validateMapping(envelopes)
	summaries := computeRisk(readings)
	phases := []*phase{
		envPhase,
		mapPhase,
		validateRisk(summaries, expected),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d lines, %d envelopes, %d readings\n", len(lines), len(envelopes), len(readings))
	for _, s := range summaries {
		fmt.Printf("  %-14s %-7s score=%.2f\n", s.Title, s.RiskLevel, s.Score)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadFixture(path string) ([]fixtureLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []fixtureLine
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var l fixtureLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		lines = append(lines, l)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no records in %s", path)
	}
	return lines, nil
}

func parseExpectations(s string) (map[risk.Pillar]domain.RiskLevel, error) {
	out := make(map[risk.Pillar]domain.RiskLevel)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, level, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid expectation %q: want pillar=level", part)
		}
		p, err := risk.ParsePillar(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		lvl, err := domain.ParseRiskLevel(strings.TrimSpace(level))
		if err != nil {
			return nil, err
		}
		out[p] = lvl
	}
	return out, nil
}

// ── Validation phases ──

type parsedEnvelope struct {
	kind domain.MessageKind
	env  domain.Envelope
}

// validateEnvelopes checks every envelope is accepted, belongs to one device
// and carries strictly increasing sequence numbers within a boot.
func validateEnvelopes(lines []fixtureLine) ([]parsedEnvelope, *phase) {
	p := &phase{name: "Envelope validation"}
	var out []parsedEnvelope
	devices := map[string]int{}
	lastSeq := map[int64]int64{}

	for i, l := range lines {
		if l.Kind != domain.KindTelemetry && l.Kind != domain.KindStatus {
			p.errorf("line %d: unknown kind %q", i+1, l.Kind)
			continue
		}
		if !domain.Validate(l.Envelope) {
			p.errorf("line %d: envelope rejected", i+1)
			continue
		}
		env, err := domain.ParseEnvelope(l.Envelope)
		if err != nil {
			p.errorf("line %d: %v", i+1, err)
			continue
		}
		devices[env.DeviceID]++
		if prev, ok := lastSeq[env.BootID]; ok && env.Seq <= prev {
			p.errorf("line %d: seq %d not after %d in boot %d", i+1, env.Seq, prev, env.BootID)
		}
		lastSeq[env.BootID] = env.Seq
		out = append(out, parsedEnvelope{kind: l.Kind, env: env})
	}

	if len(devices) > 1 {
		ids := make([]string, 0, len(devices))
		for id := range devices {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		p.errorf("fixture mixes devices: %s", strings.Join(ids, ", "))
	}
	return out, p
}

// validateMapping maps every envelope to measurements and converts telemetry
// into readings for the risk phase.
func validateMapping(envelopes []parsedEnvelope) ([]domain.Reading, *phase) {
	p := &phase{name: "Field mapping"}
	var readings []domain.Reading
	var id int64

	for _, pe := range envelopes {
		ms := domain.MapFields(pe.kind, pe.env.Data)
		if len(ms) == 0 {
			p.errorf("%s %s at %s: no recognized fields", pe.kind, pe.env.MsgID, pe.env.Timestamp.Format("2006-01-02T15:04Z"))
			continue
		}
		table := domain.FieldTable(pe.kind)
		for key := range pe.env.Data {
			if _, ok := table[key]; !ok {
				p.errorf("%s %s: unmapped field %q", pe.kind, pe.env.MsgID, key)
			}
		}
		for _, m := range ms {
			id++
			readings = append(readings, domain.Reading{
				ID:         id,
				SensorType: m.Type,
				Value:      m.Value,
				RecordedAt: pe.env.Timestamp,
			})
		}
	}
	return readings, p
}

func computeRisk(readings []domain.Reading) []risk.PillarSummary {
	sort.SliceStable(readings, func(i, j int) bool { return readings[i].RecordedAt.Before(readings[j].RecordedAt) })
	out := make([]risk.PillarSummary, 0, len(risk.Pillars()))
	for _, p := range risk.Pillars() {
		out = append(out, risk.Calculate(p, readings))
	}
	return out
}

func validateRisk(summaries []risk.PillarSummary, expected map[risk.Pillar]domain.RiskLevel) *phase {
	p := &phase{name: "Risk expectations"}
	for _, s := range summaries {
		want, ok := expected[s.Pillar]
		if !ok {
			continue
		}
		if s.RiskLevel != want {
			p.errorf("%s: got %s (score %.2f), want %s", s.Pillar, s.RiskLevel, s.Score, want)
		}
	}
	return p
}
