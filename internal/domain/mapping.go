package domain

import (
	"encoding/json"
	"math"
	"sort"
)

// telemetryFields maps weather/soil firmware keys to sensor types.
var telemetryFields = map[string]SensorType{
	"wind_speed_ms":     SensorWindSpeed,
	"air_temp_c":        SensorAirTemperature,
	"air_rh_pct":        SensorAirHumidity,
	"air_pressure_hpa":  SensorAirPressure,
	"rain_mm":           SensorRainfall,
	"soil_moisture_pct": SensorSoilMoisture,
	"soil_temp_c":       SensorSoilTemperature,
	"cabinet_temp_c":    SensorCabinetTemperature,
	"cabinet_rh_pct":    SensorCabinetHumidity,
	"gate_state":        SensorGateState,
}

// statusFields maps device-health (battery, charge controller, load) keys.
var statusFields = map[string]SensorType{
	"solar_v":         SensorSolarVoltage,
	"solar_a":         SensorSolarCurrent,
	"battery_v":       SensorBatteryVoltage,
	"battery_a":       SensorBatteryCurrent,
	"battery_soc_pct": SensorBatteryCharge,
	"load_v":          SensorLoadVoltage,
	"load_a":          SensorLoadCurrent,
	"cc_temp_c":       SensorControllerTemp,
}

// FieldTable returns the mapping table for a message kind, or nil for an
// unknown kind.
func FieldTable(kind MessageKind) map[string]SensorType {
	switch kind {
	case KindTelemetry:
		return telemetryFields
	case KindStatus:
		return statusFields
	default:
		return nil
	}
}

// MapFields converts an envelope data object into measurements using the
// table for kind. Keys absent from the table and values that are not finite
// numbers are skipped. Output is ordered by field name so results are stable.
func MapFields(kind MessageKind, data map[string]any) []Measurement {
	table := FieldTable(kind)
	if table == nil || len(data) == 0 {
		return nil
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		if _, ok := table[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]Measurement, 0, len(keys))
	for _, k := range keys {
		v, ok := numeric(data[k])
		if !ok {
			continue
		}
		out = append(out, Measurement{Type: table[k], Value: v})
	}
	return out
}

func numeric(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
