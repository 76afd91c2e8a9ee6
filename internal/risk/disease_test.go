package risk

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// uniform returns n consecutive hourly samples at the same conditions.
func uniform(n int, temp, rh float64) []HourlySample {
	out := make([]HourlySample, n)
	for i := range out {
		out[i] = HourlySample{Hour: t0.Add(time.Duration(i) * time.Hour), Temperature: temp, Humidity: rh}
	}
	return out
}

// wetThenDry returns wet hours at 95% RH followed by dry hours at 60% RH.
func wetThenDry(wet, dry int, temp float64) []HourlySample {
	return append(uniform(wet, temp, 95), uniform(dry, temp, 60)...)
}

func TestCalculateDisease_TenHumidDays(t *testing.T) {
	got := CalculateDisease(uniform(240, 25, 95))

	want := DiseaseResult{
		BUSScore:       98,
		RiskLevel:      domain.RiskHigh,
		DewPointAvg:    24,
		LWDHours:       240,
		TemperatureAvg: 25,
		HumidityAvg:    95,
		DaysAnalyzed:   10,
		SampleCount:    240,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CalculateDisease mismatch (-want +got):\n%s", diff)
	}
}

func TestCalculateDisease_Empty(t *testing.T) {
	got := CalculateDisease(nil)
	assert.Equal(t, DiseaseResult{RiskLevel: domain.RiskLow}, got)
}

func TestCalculateDisease_Rules(t *testing.T) {
	tests := []struct {
		name    string
		samples []HourlySample
		score   float64
		level   domain.RiskLevel
	}{
		{"too cold regardless of humidity", uniform(48, 10, 99), 0, domain.RiskLow},
		{"too hot", uniform(48, 39, 99), 0, domain.RiskLow},
		{"short wetness", wetThenDry(3, 45, 25), 0, domain.RiskLow},
		{"lwd 8 at optimum is medium", wetThenDry(8, 40, 25), 2, domain.RiskMedium},
		{"lwd 9 reaches high", wetThenDry(9, 39, 25), 2.25, domain.RiskHigh},
		{"long wetness bonus", wetThenDry(18, 30, 24), 5.5, domain.RiskHigh},
		{"suboptimal temperature penalty", wetThenDry(16, 32, 20), 2, domain.RiskMedium},
		{"double penalty", wetThenDry(20, 28, 17), 2.33, domain.RiskHigh},
		{"clamped at zero", wetThenDry(4, 44, 16), 0, domain.RiskLow},
		{"boundary temperature 15 is viable", wetThenDry(12, 12, 15), 0, domain.RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateDisease(tt.samples)
			assert.InDelta(t, tt.score, got.BUSScore, 1e-9)
			assert.Equal(t, tt.level, got.RiskLevel)
			assert.GreaterOrEqual(t, got.BUSScore, 0.0)
		})
	}
}

func TestCalculateDisease_ReportsAveragesWhenShortCircuited(t *testing.T) {
	got := CalculateDisease(uniform(24, 10, 80))
	assert.Zero(t, got.BUSScore)
	assert.Equal(t, 10.0, got.TemperatureAvg)
	assert.Equal(t, 80.0, got.HumidityAvg)
	assert.Equal(t, 6.0, got.DewPointAvg)
	assert.Equal(t, 1.0, got.DaysAnalyzed)
}

func TestCalculateDisease_DaysAnalyzedIsFractional(t *testing.T) {
	got := CalculateDisease(uniform(30, 25, 50))
	assert.Equal(t, 1.25, got.DaysAnalyzed)
}

func TestCalculateDisease_Idempotent(t *testing.T) {
	samples := wetThenDry(20, 28, 17)
	first := CalculateDisease(samples)
	second := CalculateDisease(samples)
	assert.Empty(t, cmp.Diff(first, second))
}

func TestDewPoint_MonotonicInHumidity(t *testing.T) {
	for _, temp := range []float64{-5, 0, 12.5, 25, 40} {
		prev := DewPoint(temp, 0)
		for rh := 1.0; rh <= 100; rh++ {
			cur := DewPoint(temp, rh)
			require.LessOrEqual(t, prev, cur, "T=%v RH=%v", temp, rh)
			prev = cur
		}
	}
	assert.Equal(t, 25.0, DewPoint(25, 100))
}

func TestHourlySamples(t *testing.T) {
	reading := func(st domain.SensorType, at time.Time, v float64) domain.Reading {
		return domain.Reading{SensorType: st, RecordedAt: at, Value: v}
	}
	readings := []domain.Reading{
		reading(domain.SensorAirTemperature, t0.Add(time.Hour+10*time.Minute), 24),
		reading(domain.SensorAirHumidity, t0.Add(time.Hour+15*time.Minute), 90),
		reading(domain.SensorAirTemperature, t0.Add(time.Hour+40*time.Minute), 26),
		reading(domain.SensorAirTemperature, t0.Add(5*time.Minute), 20),
		reading(domain.SensorAirHumidity, t0.Add(20*time.Minute), 70),
		reading(domain.SensorAirTemperature, t0.Add(2*time.Hour), 30), // no humidity in this hour
		reading(domain.SensorRainfall, t0.Add(2*time.Hour), 4),
	}

	got := HourlySamples(readings)

	want := []HourlySample{
		{Hour: t0, Temperature: 20, Humidity: 70},
		{Hour: t0.Add(time.Hour), Temperature: 25, Humidity: 90},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("HourlySamples mismatch (-want +got):\n%s", diff)
	}
}
