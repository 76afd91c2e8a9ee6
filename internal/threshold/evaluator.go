// Package threshold evaluates readings against the active band for their
// sensor type and manages those bands.
package threshold

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/store"
)

// Evaluator looks up thresholds and applies a severity policy to violations.
type Evaluator struct {
	store  store.ThresholdStore
	policy domain.SeverityPolicy
}

// NewEvaluator creates an evaluator. A nil policy falls back to the flat
// medium policy.
func NewEvaluator(s store.ThresholdStore, policy domain.SeverityPolicy) *Evaluator {
	if policy == nil {
		policy = domain.FlatPolicy{}
	}
	return &Evaluator{store: s, policy: policy}
}

// Evaluate returns the violation for value, or nil when the value is inside
// its band or no band is configured for the sensor type.
func (e *Evaluator) Evaluate(ctx context.Context, sensorType domain.SensorType, value float64) (*domain.Violation, error) {
	th, err := e.store.GetThreshold(ctx, sensorType)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get threshold %s: %w", sensorType, err)
	}

	v, violated := th.Check(value)
	if !violated {
		return nil, nil
	}
	v.Severity = e.policy.Severity(v)
	if v.Severity < domain.SeverityMedium {
		v.Severity = domain.SeverityMedium
	}
	return &v, nil
}

// Get returns the active band for sensorType.
func (e *Evaluator) Get(ctx context.Context, sensorType domain.SensorType) (domain.Threshold, error) {
	return e.store.GetThreshold(ctx, sensorType)
}

// Set validates and stores a new band for sensorType.
func (e *Evaluator) Set(ctx context.Context, sensorType domain.SensorType, minVal, maxVal float64) (domain.Threshold, error) {
	th := domain.Threshold{
		SensorType: sensorType,
		Min:        minVal,
		Max:        maxVal,
		UpdatedAt:  domain.Now(),
	}
	if err := th.Validate(); err != nil {
		return domain.Threshold{}, err
	}
	saved, err := e.store.UpsertThreshold(ctx, th)
	if err != nil {
		return domain.Threshold{}, fmt.Errorf("upsert threshold %s: %w", sensorType, err)
	}
	return saved, nil
}
