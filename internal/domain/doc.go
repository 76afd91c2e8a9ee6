// Package domain models field station telemetry: stations, their sensors,
// the immutable readings they produce, threshold bands and the alerts raised
// when a reading leaves its band.
//
// # Envelopes
//
// Stations publish JSON envelopes over the message bus. Telemetry and
// device-health ("status") envelopes share one shape and differ only in the
// vocabulary of the data object:
//
//	{
//	  "device_id": "STN-0042",
//	  "ts": "2025-06-01T10:00:00Z",
//	  "boot_id": 17,
//	  "seq": 5021,
//	  "msg_id": "17-5021",
//	  "data": {"air_temp_c": 24.6, "air_rh_pct": 91.0, "rain_mm": 0.2},
//	  "sim_serial": "8966...",
//	  "sim_rssi": -71
//	}
//
// An envelope is structurally valid when device_id is a non-empty string, ts
// is an ISO-8601 timestamp and data is a JSON object. See [ParseEnvelope].
//
// # Field mapping
//
// Firmware field names are mapped to canonical [SensorType] values through two
// fixed tables, one per [MessageKind]. Unknown keys and non-numeric values are
// dropped without error so that firmware can add fields ahead of the backend.
// See [MapFields].
//
// # Units
//
//	Temperature: degrees Celsius
//	Humidity:    percent relative humidity (0-100)
//	Pressure:    hectopascals
//	Rainfall:    millimetres per reading interval
//	Wind speed:  metres per second
//	Soil moisture: percent volumetric water content
//	Electrical:  volts, amperes, percent state of charge
//
// # Severity
//
// Alerts use the ordered scale low < medium < high < critical. Any threshold
// violation is at least medium. The flat policy assigns medium to every
// violation; escalation beyond that is opt-in through an explicit
// [EscalationPolicy].
package domain
