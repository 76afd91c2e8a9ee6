package domain

import "fmt"

// SensorType identifies what a sensor measures. The set is closed: values
// outside the constants below are rejected by ParseSensorType.
type SensorType string

const (
	SensorWindSpeed          SensorType = "wind_speed"
	SensorAirTemperature     SensorType = "air_temperature"
	SensorAirHumidity        SensorType = "air_humidity"
	SensorAirPressure        SensorType = "air_pressure"
	SensorRainfall           SensorType = "rainfall"
	SensorSoilMoisture       SensorType = "soil_moisture"
	SensorSoilTemperature    SensorType = "soil_temperature"
	SensorCabinetTemperature SensorType = "cabinet_temperature"
	SensorCabinetHumidity    SensorType = "cabinet_humidity"
	SensorSolarVoltage       SensorType = "solar_voltage"
	SensorSolarCurrent       SensorType = "solar_current"
	SensorBatteryVoltage     SensorType = "battery_voltage"
	SensorBatteryCurrent     SensorType = "battery_current"
	SensorBatteryCharge      SensorType = "battery_charge"
	SensorLoadVoltage        SensorType = "load_voltage"
	SensorLoadCurrent        SensorType = "load_current"
	SensorControllerTemp     SensorType = "controller_temperature"
	SensorGateState          SensorType = "gate_state"
)

var sensorTypes = []SensorType{
	SensorWindSpeed,
	SensorAirTemperature,
	SensorAirHumidity,
	SensorAirPressure,
	SensorRainfall,
	SensorSoilMoisture,
	SensorSoilTemperature,
	SensorCabinetTemperature,
	SensorCabinetHumidity,
	SensorSolarVoltage,
	SensorSolarCurrent,
	SensorBatteryVoltage,
	SensorBatteryCurrent,
	SensorBatteryCharge,
	SensorLoadVoltage,
	SensorLoadCurrent,
	SensorControllerTemp,
	SensorGateState,
}

// SensorTypes returns every known sensor type in declaration order.
func SensorTypes() []SensorType {
	out := make([]SensorType, len(sensorTypes))
	copy(out, sensorTypes)
	return out
}

// Valid reports whether t is one of the declared sensor types.
func (t SensorType) Valid() bool {
	for _, known := range sensorTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t SensorType) String() string { return string(t) }

// ParseSensorType converts a string into a SensorType, rejecting unknown values.
func ParseSensorType(s string) (SensorType, error) {
	t := SensorType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown sensor type %q", s)
	}
	return t, nil
}
