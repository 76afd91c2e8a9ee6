package risk

import (
	"sort"
	"time"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
)

// BUS scoring constants.
const (
	busMinTemp         = 15.0
	busMaxTemp         = 38.0
	busWetRH           = 90.0
	busMinLWD          = 4
	busLongLWD         = 16
	busHighThreshold   = 2.25
	busMediumThreshold = 1.5
)

// HourlySample is the mean temperature and humidity for one clock hour.
type HourlySample struct {
	Hour        time.Time
	Temperature float64
	Humidity    float64
}

// DewPoint approximates the dew point in °C from air temperature (°C) and
// relative humidity (%).
func DewPoint(temperature, humidity float64) float64 {
	return temperature - (100-humidity)/5
}

// HourlySamples buckets air temperature and humidity readings into UTC clock
// hours and averages each bucket. Hours missing either measurement are
// dropped. The result is ordered by hour.
func HourlySamples(readings []domain.Reading) []HourlySample {
	type acc struct {
		tSum, hSum float64
		tN, hN     int
	}
	buckets := make(map[time.Time]*acc)
	for _, r := range readings {
		if r.SensorType != domain.SensorAirTemperature && r.SensorType != domain.SensorAirHumidity {
			continue
		}
		hour := r.RecordedAt.UTC().Truncate(time.Hour)
		b, ok := buckets[hour]
		if !ok {
			b = &acc{}
			buckets[hour] = b
		}
		if r.SensorType == domain.SensorAirTemperature {
			b.tSum += r.Value
			b.tN++
		} else {
			b.hSum += r.Value
			b.hN++
		}
	}

	samples := make([]HourlySample, 0, len(buckets))
	for hour, b := range buckets {
		if b.tN == 0 || b.hN == 0 {
			continue
		}
		samples = append(samples, HourlySample{
			Hour:        hour,
			Temperature: b.tSum / float64(b.tN),
			Humidity:    b.hSum / float64(b.hN),
		})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Hour.Before(samples[j].Hour) })
	return samples
}

// DiseaseResult is the output of the BUS leaf-wetness model.
type DiseaseResult struct {
	BUSScore       float64          `json:"bus_score"`
	RiskLevel      domain.RiskLevel `json:"risk_level"`
	DewPointAvg    float64          `json:"dew_point_avg"`
	LWDHours       int              `json:"lwd_hours"`
	TemperatureAvg float64          `json:"temperature_avg"`
	HumidityAvg    float64          `json:"humidity_avg"`
	DaysAnalyzed   float64          `json:"days_analyzed"`
	SampleCount    int              `json:"sample_count"`
}

// CalculateDisease scores fungal disease pressure from hourly samples. An
// empty window yields a zero score at low risk.
func CalculateDisease(samples []HourlySample) DiseaseResult {
	n := len(samples)
	if n == 0 {
		return DiseaseResult{RiskLevel: domain.RiskLow}
	}

	var tSum, hSum, dSum float64
	lwd := 0
	for _, s := range samples {
		tSum += s.Temperature
		hSum += s.Humidity
		dSum += DewPoint(s.Temperature, s.Humidity)
		if s.Humidity > busWetRH {
			lwd++
		}
	}
	tAvg := tSum / float64(n)

	res := DiseaseResult{
		RiskLevel:      domain.RiskLow,
		DewPointAvg:    round2(dSum / float64(n)),
		LWDHours:       lwd,
		TemperatureAvg: round2(tAvg),
		HumidityAvg:    round2(hSum / float64(n)),
		DaysAnalyzed:   round2(float64(n) / 24),
		SampleCount:    n,
	}

	// Rules 1 and 2: outside the viable temperature range or too little
	// wetness, there is no infection pressure.
	if tAvg < busMinTemp || tAvg > busMaxTemp {
		return res
	}
	if lwd < busMinLWD {
		return res
	}

	bus := 0.0
	if tAvg > 14 {
		bus = float64(lwd) / 4
	}
	if lwd > busLongLWD {
		bus += float64(lwd-12) / 6
	}
	if tAvg < 23 || tAvg > 26 {
		bus -= 2
	}
	if tAvg < 19 || tAvg > 29 {
		bus -= 2
	}
	if bus < 0 {
		bus = 0
	}

	res.BUSScore = round2(bus)
	switch {
	case bus >= busHighThreshold:
		res.RiskLevel = domain.RiskHigh
	case bus >= busMediumThreshold:
		res.RiskLevel = domain.RiskMedium
	}
	return res
}

// Summary converts the result to its dashboard form.
func (r DiseaseResult) Summary() PillarSummary {
	return PillarSummary{
		Pillar:    PillarDisease,
		Title:     PillarDisease.Title(),
		RiskLevel: r.RiskLevel,
		Score:     r.BUSScore,
		Details: map[string]any{
			"bus_score":       r.BUSScore,
			"dew_point_avg":   r.DewPointAvg,
			"lwd_hours":       r.LWDHours,
			"temperature_avg": r.TemperatureAvg,
			"humidity_avg":    r.HumidityAvg,
			"days_analyzed":   r.DaysAnalyzed,
			"sample_count":    r.SampleCount,
		},
	}
}
