package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Envelope is the structured payload a station publishes on the bus.
type Envelope struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"ts"`
	BootID    int64          `json:"boot_id"`
	Seq       int64          `json:"seq"`
	MsgID     string         `json:"msg_id"`
	Data      map[string]any `json:"data"`
	SIMSerial string         `json:"sim_serial,omitempty"`
	SIMRSSI   *float64       `json:"sim_rssi,omitempty"`
}

// timestampLayouts are the ISO-8601 forms accepted for "ts". Layouts without
// an offset are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// rawEnvelope keeps fields undecoded so type mismatches can be reported
// individually instead of failing the whole unmarshal.
type rawEnvelope struct {
	DeviceID  json.RawMessage `json:"device_id"`
	Timestamp json.RawMessage `json:"ts"`
	BootID    json.RawMessage `json:"boot_id"`
	Seq       json.RawMessage `json:"seq"`
	MsgID     json.RawMessage `json:"msg_id"`
	Data      json.RawMessage `json:"data"`
	SIMSerial json.RawMessage `json:"sim_serial"`
	SIMRSSI   json.RawMessage `json:"sim_rssi"`
}

// Validate reports whether raw is a structurally valid envelope. It has no
// side effects and is used for both telemetry and status envelopes.
func Validate(raw []byte) bool {
	_, err := ParseEnvelope(raw)
	return err == nil
}

// ParseEnvelope decodes and validates an envelope. Errors wrap ErrValidation.
func ParseEnvelope(raw []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: payload is not a JSON object", ErrValidation)
	}

	var r rawEnvelope
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return Envelope{}, fmt.Errorf("%w: decode: %v", ErrValidation, err)
	}

	var env Envelope
	if isNull(r.DeviceID) || json.Unmarshal(r.DeviceID, &env.DeviceID) != nil {
		return Envelope{}, fmt.Errorf("%w: device_id must be a string", ErrValidation)
	}
	if strings.TrimSpace(env.DeviceID) == "" {
		return Envelope{}, fmt.Errorf("%w: device_id is empty", ErrValidation)
	}

	var ts string
	if isNull(r.Timestamp) || json.Unmarshal(r.Timestamp, &ts) != nil {
		return Envelope{}, fmt.Errorf("%w: ts must be an ISO-8601 string", ErrValidation)
	}
	parsed, ok := parseTimestamp(ts)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: ts %q is not ISO-8601", ErrValidation, ts)
	}
	env.Timestamp = parsed

	if isNull(r.Data) || json.Unmarshal(r.Data, &env.Data) != nil || env.Data == nil {
		return Envelope{}, fmt.Errorf("%w: data must be an object", ErrValidation)
	}

	// Optional fields are decoded leniently; a malformed value is dropped.
	if !isNull(r.BootID) {
		_ = json.Unmarshal(r.BootID, &env.BootID)
	}
	if !isNull(r.Seq) {
		_ = json.Unmarshal(r.Seq, &env.Seq)
	}
	if !isNull(r.MsgID) {
		_ = json.Unmarshal(r.MsgID, &env.MsgID)
	}
	if !isNull(r.SIMSerial) {
		_ = json.Unmarshal(r.SIMSerial, &env.SIMSerial)
	}
	if !isNull(r.SIMRSSI) {
		var rssi float64
		if json.Unmarshal(r.SIMRSSI, &rssi) == nil {
			env.SIMRSSI = &rssi
		}
	}

	return env, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// PeekDeviceID extracts device_id from a payload without full validation.
// It returns "" when the payload has no usable device_id.
func PeekDeviceID(raw []byte) string {
	var head struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.DeviceID
}
