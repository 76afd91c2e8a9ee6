package domain

import (
	"fmt"
	"strings"
)

// Severity is the ordered alert severity scale.
type Severity uint8

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

// ParseSeverity converts a lowercase severity name into a Severity.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if strings.EqualFold(s, name) {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) {
	if _, ok := severityNames[s]; !ok {
		return nil, fmt.Errorf("invalid severity %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// RiskLevel is the closed ordinal scale produced by the risk calculators.
type RiskLevel uint8

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

func (l RiskLevel) String() string {
	switch l {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return fmt.Sprintf("risk(%d)", uint8(l))
	}
}

// ParseRiskLevel converts a lowercase level name into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(s) {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	default:
		return 0, fmt.Errorf("unknown risk level %q", s)
	}
}

func (l RiskLevel) MarshalText() ([]byte, error) {
	if l > RiskHigh {
		return nil, fmt.Errorf("invalid risk level %d", uint8(l))
	}
	return []byte(l.String()), nil
}

func (l *RiskLevel) UnmarshalText(b []byte) error {
	v, err := ParseRiskLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// MaxRiskLevel returns the highest of the given levels, or RiskLow for none.
func MaxRiskLevel(levels ...RiskLevel) RiskLevel {
	out := RiskLow
	for _, l := range levels {
		if l > out {
			out = l
		}
	}
	return out
}

// StationStatus is the derived health of a station.
type StationStatus string

const (
	StationNormal   StationStatus = "normal"
	StationWarning  StationStatus = "warning"
	StationCritical StationStatus = "critical"
	StationOffline  StationStatus = "offline"
)

// Valid reports whether s is a declared station status.
func (s StationStatus) Valid() bool {
	switch s {
	case StationNormal, StationWarning, StationCritical, StationOffline:
		return true
	default:
		return false
	}
}

// EscalateStatus returns the station status after an alert of the given
// severity. Status only moves upwards; lowering it is an operator action.
func EscalateStatus(current StationStatus, sev Severity) StationStatus {
	target := StationWarning
	if sev >= SeverityHigh {
		target = StationCritical
	}
	switch current {
	case StationCritical:
		return StationCritical
	case StationWarning:
		if target == StationCritical {
			return StationCritical
		}
		return StationWarning
	default:
		return target
	}
}
