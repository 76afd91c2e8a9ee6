// Package risk derives the four agronomic risk pillars (drought, flood, storm
// and disease) from a window of stored readings.
//
// Every calculator is a pure reduction over its input: the same readings
// always produce the same output, and missing or sparse history degrades to a
// zero score at low risk instead of an error.
package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
)

// Pillar names one of the four risk categories.
type Pillar string

const (
	PillarDrought Pillar = "drought"
	PillarFlood   Pillar = "flood"
	PillarStorm   Pillar = "storm"
	PillarDisease Pillar = "disease"
)

// Pillars lists every pillar in dashboard order.
func Pillars() []Pillar {
	return []Pillar{PillarDrought, PillarFlood, PillarStorm, PillarDisease}
}

// ParsePillar validates a pillar name.
func ParsePillar(s string) (Pillar, error) {
	for _, p := range Pillars() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown risk pillar %q", s)
}

// Title is the human-readable pillar heading.
func (p Pillar) Title() string {
	switch p {
	case PillarDrought:
		return "Drought Risk"
	case PillarFlood:
		return "Flood Risk"
	case PillarStorm:
		return "Storm Risk"
	case PillarDisease:
		return "Disease Risk"
	default:
		return string(p)
	}
}

// sensorTypes returns the sensor types a pillar reads.
func (p Pillar) sensorTypes() []domain.SensorType {
	switch p {
	case PillarDrought:
		return []domain.SensorType{domain.SensorRainfall, domain.SensorSoilMoisture}
	case PillarFlood:
		return []domain.SensorType{domain.SensorRainfall, domain.SensorSoilMoisture}
	case PillarStorm:
		return []domain.SensorType{domain.SensorWindSpeed, domain.SensorAirPressure, domain.SensorRainfall}
	case PillarDisease:
		return []domain.SensorType{domain.SensorAirTemperature, domain.SensorAirHumidity}
	default:
		return nil
	}
}

// PillarSummary is the outbound form of one pillar: the common fields plus
// calculator-specific details flattened into the same JSON object.
type PillarSummary struct {
	Pillar    Pillar
	Title     string
	RiskLevel domain.RiskLevel
	Score     float64
	Details   map[string]any
}

func (s PillarSummary) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Details)+4)
	for k, v := range s.Details {
		out[k] = v
	}
	out["pillar"] = s.Pillar
	out["title"] = s.Title
	out["risk_level"] = s.RiskLevel
	out["score"] = s.Score
	return json.Marshal(out)
}

// Dashboard aggregates all four pillars for one station.
type Dashboard struct {
	DeviceID    string           `json:"device_id"`
	StationID   int64            `json:"station_id"`
	Place       string           `json:"place,omitempty"`
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	ComputedAt  time.Time        `json:"computed_at"`
	OverallRisk domain.RiskLevel `json:"overall_risk"`
	Pillars     []PillarSummary  `json:"pillars"`
}

// levelFromPoints maps a summed point score onto the ordinal scale.
func levelFromPoints(points, medium, high float64) domain.RiskLevel {
	switch {
	case points >= high:
		return domain.RiskHigh
	case points >= medium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
