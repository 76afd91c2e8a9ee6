package domain

import "errors"

// Ingestion failure taxonomy. Each failed message is classified by exactly one
// of these; callers match with errors.Is.
var (
	ErrValidation         = errors.New("invalid envelope")
	ErrUnknownDevice      = errors.New("unknown device")
	ErrNoRecognizedFields = errors.New("no recognized sensor fields")
	ErrStorage            = errors.New("storage failure")
)

var (
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrInvalidCommand   = errors.New("invalid command")
)

// FailureKind labels an ingestion failure for results, logs and metrics.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureValidation         FailureKind = "validation"
	FailureUnknownDevice      FailureKind = "unknown_device"
	FailureNoRecognizedFields FailureKind = "no_recognized_fields"
	FailureStorage            FailureKind = "storage"
)

// Sentinel returns the error value matching the failure kind, or nil.
func (k FailureKind) Sentinel() error {
	switch k {
	case FailureValidation:
		return ErrValidation
	case FailureUnknownDevice:
		return ErrUnknownDevice
	case FailureNoRecognizedFields:
		return ErrNoRecognizedFields
	case FailureStorage:
		return ErrStorage
	default:
		return nil
	}
}

// Retryable reports whether redelivering the whole message may succeed.
func (k FailureKind) Retryable() bool {
	return k == FailureStorage
}
