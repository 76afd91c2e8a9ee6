package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreshold_Check(t *testing.T) {
	band := Threshold{SensorType: SensorSoilMoisture, Min: 20, Max: 60}

	tests := []struct {
		name      string
		value     float64
		violated  bool
		direction Direction
		ratio     float64
	}{
		{"inside", 40, false, "", 0},
		{"at min", 20, false, "", 0},
		{"at max", 60, false, "", 0},
		{"below", 10, true, Below, 0.25},
		{"above", 80, true, Above, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := band.Check(tt.value)
			assert.Equal(t, tt.violated, ok)
			assert.Equal(t, tt.direction, v.Direction)
			assert.InDelta(t, tt.ratio, v.Ratio, 1e-9)
		})
	}
}

func TestThreshold_Validate(t *testing.T) {
	tests := []struct {
		name    string
		th      Threshold
		wantErr bool
	}{
		{"valid", Threshold{SensorType: SensorAirTemperature, Min: -5, Max: 45}, false},
		{"equal bounds", Threshold{SensorType: SensorAirTemperature, Min: 10, Max: 10}, true},
		{"inverted", Threshold{SensorType: SensorAirTemperature, Min: 45, Max: -5}, true},
		{"NaN", Threshold{SensorType: SensorAirTemperature, Min: math.NaN(), Max: 10}, true},
		{"unknown sensor", Threshold{SensorType: "uv_index", Min: 0, Max: 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.th.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidThreshold)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestViolation_Message(t *testing.T) {
	v, ok := Threshold{SensorType: SensorWindSpeed, Min: 0, Max: 20}.Check(25)
	require.True(t, ok)
	assert.Equal(t, "wind_speed 25.00 is above threshold range [0.00, 20.00]", v.Message())
}

func TestFlatPolicy(t *testing.T) {
	p := FlatPolicy{}
	assert.Equal(t, SeverityMedium, p.Severity(Violation{Ratio: 0.01}))
	assert.Equal(t, SeverityMedium, p.Severity(Violation{Ratio: 50}))
}

func TestParseEscalation(t *testing.T) {
	t.Run("empty is flat", func(t *testing.T) {
		p, err := ParseEscalation("")
		require.NoError(t, err)
		assert.IsType(t, FlatPolicy{}, p)
	})

	t.Run("steps", func(t *testing.T) {
		p, err := ParseEscalation("0.5:critical, 0.25:high")
		require.NoError(t, err)
		assert.Equal(t, SeverityMedium, p.Severity(Violation{Ratio: 0.1}))
		assert.Equal(t, SeverityHigh, p.Severity(Violation{Ratio: 0.25}))
		assert.Equal(t, SeverityCritical, p.Severity(Violation{Ratio: 3}))
	})

	for _, bad := range []string{"0.5", "x:high", "-1:high", "0.5:severe", "0.5:low"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := ParseEscalation(bad)
			assert.Error(t, err)
		})
	}
}

func TestSeverity_Text(t *testing.T) {
	b, err := json.Marshal(map[string]Severity{"s": SeverityHigh})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"high"}`, string(b))

	var out struct {
		S Severity `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"critical"}`), &out))
	assert.Equal(t, SeverityCritical, out.S)
	assert.Error(t, json.Unmarshal([]byte(`{"s":"urgent"}`), &out))

	assert.True(t, SeverityLow < SeverityMedium && SeverityMedium < SeverityHigh && SeverityHigh < SeverityCritical)
}

func TestRiskLevel(t *testing.T) {
	assert.Equal(t, RiskHigh, MaxRiskLevel(RiskLow, RiskHigh, RiskMedium))
	assert.Equal(t, RiskLow, MaxRiskLevel())

	b, err := json.Marshal(RiskMedium)
	require.NoError(t, err)
	assert.Equal(t, `"medium"`, string(b))

	lvl, err := ParseRiskLevel("HIGH")
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, lvl)
}

func TestEscalateStatus(t *testing.T) {
	tests := []struct {
		current StationStatus
		sev     Severity
		want    StationStatus
	}{
		{StationNormal, SeverityLow, StationWarning},
		{StationNormal, SeverityMedium, StationWarning},
		{StationNormal, SeverityHigh, StationCritical},
		{StationWarning, SeverityMedium, StationWarning},
		{StationWarning, SeverityCritical, StationCritical},
		{StationCritical, SeverityLow, StationCritical},
		{StationOffline, SeverityMedium, StationWarning},
	}
	for _, tt := range tests {
		t.Run(string(tt.current)+"/"+tt.sev.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, EscalateStatus(tt.current, tt.sev))
		})
	}
}

func TestParseGateAction(t *testing.T) {
	a, err := ParseGateAction("lock")
	require.NoError(t, err)
	assert.Equal(t, GateLock, a)

	_, err = ParseGateAction("open")
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestSetClock(t *testing.T) {
	t.Run("set custom clock", func(t *testing.T) {
		fixedTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		SetClock(clockwork.NewFakeClockAt(fixedTime))
		defer SetClock(nil)
		assert.Equal(t, fixedTime, Now())
	})

	t.Run("reset to real clock", func(t *testing.T) {
		SetClock(clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
		SetClock(nil)
		assert.True(t, time.Since(Now()) < time.Second)
	})
}
