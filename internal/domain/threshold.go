package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Threshold is the active [Min, Max] band for a sensor type.
type Threshold struct {
	SensorType SensorType `json:"sensor_type"`
	Min        float64    `json:"min"`
	Max        float64    `json:"max"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate enforces Min < Max with finite bounds.
func (t Threshold) Validate() error {
	if !t.SensorType.Valid() {
		return fmt.Errorf("%w: unknown sensor type %q", ErrInvalidThreshold, t.SensorType)
	}
	if math.IsNaN(t.Min) || math.IsNaN(t.Max) || math.IsInf(t.Min, 0) || math.IsInf(t.Max, 0) {
		return fmt.Errorf("%w: bounds must be finite", ErrInvalidThreshold)
	}
	if t.Min >= t.Max {
		return fmt.Errorf("%w: min %.2f must be less than max %.2f", ErrInvalidThreshold, t.Min, t.Max)
	}
	return nil
}

// Direction tells which side of the band a value fell on.
type Direction string

const (
	Below Direction = "below"
	Above Direction = "above"
)

// Violation describes a value outside its threshold band.
type Violation struct {
	SensorType SensorType
	Value      float64
	Min        float64
	Max        float64
	Direction  Direction
	// Ratio is the distance outside the band divided by the band width.
	Ratio    float64
	Severity Severity
}

// Message renders a human-readable description of the violation.
func (v Violation) Message() string {
	return fmt.Sprintf("%s %.2f is %s threshold range [%.2f, %.2f]",
		v.SensorType, v.Value, v.Direction, v.Min, v.Max)
}

// Check compares value against the band. Bounds are inclusive.
func (t Threshold) Check(value float64) (Violation, bool) {
	if value >= t.Min && value <= t.Max {
		return Violation{}, false
	}
	v := Violation{
		SensorType: t.SensorType,
		Value:      value,
		Min:        t.Min,
		Max:        t.Max,
	}
	width := t.Max - t.Min
	if value < t.Min {
		v.Direction = Below
		v.Ratio = (t.Min - value) / width
	} else {
		v.Direction = Above
		v.Ratio = (value - t.Max) / width
	}
	return v, true
}

// SeverityPolicy assigns a severity to a violation. Implementations must
// never return less than SeverityMedium.
type SeverityPolicy interface {
	Severity(v Violation) Severity
}

// FlatPolicy assigns medium to every violation.
type FlatPolicy struct{}

func (FlatPolicy) Severity(Violation) Severity { return SeverityMedium }

// EscalationStep raises severity once a violation's ratio reaches Ratio.
type EscalationStep struct {
	Ratio    float64
	Severity Severity
}

// EscalationPolicy starts at medium and applies the highest matching step.
type EscalationPolicy struct {
	Steps []EscalationStep
}

func (p EscalationPolicy) Severity(v Violation) Severity {
	sev := SeverityMedium
	for _, step := range p.Steps {
		if v.Ratio >= step.Ratio && step.Severity > sev {
			sev = step.Severity
		}
	}
	return sev
}

// ParseEscalation builds a severity policy from "ratio:severity" pairs, e.g.
// "0.25:high,0.5:critical". An empty string yields the flat policy.
func ParseEscalation(s string) (SeverityPolicy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return FlatPolicy{}, nil
	}
	var steps []EscalationStep
	for _, part := range strings.Split(s, ",") {
		ratioStr, sevStr, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("escalation step %q: expected ratio:severity", part)
		}
		ratio, err := strconv.ParseFloat(strings.TrimSpace(ratioStr), 64)
		if err != nil || ratio < 0 {
			return nil, fmt.Errorf("escalation step %q: invalid ratio", part)
		}
		sev, err := ParseSeverity(strings.TrimSpace(sevStr))
		if err != nil {
			return nil, fmt.Errorf("escalation step %q: %w", part, err)
		}
		if sev < SeverityMedium {
			return nil, fmt.Errorf("escalation step %q: severity below medium", part)
		}
		steps = append(steps, EscalationStep{Ratio: ratio, Severity: sev})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Ratio < steps[j].Ratio })
	return EscalationPolicy{Steps: steps}, nil
}
