// Package eligibility implements the affordability threshold rule used to
// decide whether a proposed development is eligible.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/domain"
)

// Threshold is the inclusive share of units that must be affordable,
// expressed as a ratio of two integers to keep the comparison exact.
const (
	thresholdNumerator   = 3
	thresholdDenominator = 10
)

// IsEligible reports whether affordable >= 0.30 * units. The comparison is
// done in integers: 0.3*10 is not exactly 3 in floating point. A zero-unit
// project with zero affordable units satisfies the literal rule.
func IsEligible(affordable, units int) bool {
	return affordable >= minAffordable(units)
}

// minAffordable returns ceil(units * 3/10) without multiplying units, so
// the result cannot overflow for any int.
func minAffordable(units int) int {
	if units <= 0 {
		return 0
	}
	q, r := units/thresholdDenominator, units%thresholdDenominator
	return q*thresholdNumerator + (r*thresholdNumerator+thresholdDenominator-1)/thresholdDenominator
}

// RequiredAffordable returns the minimum affordable unit count as a float,
// for display only.
func RequiredAffordable(units int) float64 {
	return float64(units) * thresholdNumerator / thresholdDenominator
}

// Evaluator computes assessment results. It has no state apart from its
// clock and the simulated processing delay.
type Evaluator struct {
	clock clock.Clock
	delay time.Duration
}

// NewEvaluator returns an Evaluator. delay simulates the latency of the
// external computation the rule stands in for; zero disables it.
func NewEvaluator(clk clock.Clock, delay time.Duration) *Evaluator {
	if clk == nil {
		clk = clock.Real()
	}
	return &Evaluator{clock: clk, delay: delay}
}

// Evaluate applies the threshold rule to input. The only non-pure element
// of the result is ProcessedAt, taken from the injected clock.
func (e *Evaluator) Evaluate(ctx context.Context, sessionID string, input domain.AssessmentInput) (domain.AssessmentResult, error) {
	if e.delay > 0 {
		select {
		case <-e.clock.After(e.delay):
		case <-ctx.Done():
			return domain.AssessmentResult{}, ctx.Err()
		}
	}

	affordable := input.Affordability.Total()
	units := input.ProjectUnitsTotal
	eligible := IsEligible(affordable, units)
	processedAt := e.clock.Now().UTC()

	return domain.AssessmentResult{
		SessionID:       sessionID,
		ProjectName:     input.ProjectName,
		Eligible:        eligible,
		TotalAffordable: affordable,
		TotalUnits:      units,
		ProcessedAt:     &processedAt,
		Totals: &domain.Totals{
			Units:      units,
			Affordable: float64(affordable),
		},
		Decision: &domain.Decision{
			Eligible: eligible,
			Reason:   reason(eligible, affordable, units),
		},
	}, nil
}

func reason(eligible bool, affordable, units int) string {
	required := RequiredAffordable(units)
	if eligible {
		return fmt.Sprintf("%d of %d units affordable meets the 30%% threshold (%.1f required)", affordable, units, required)
	}
	return fmt.Sprintf("%d of %d units affordable is below the 30%% threshold (%.1f required)", affordable, units, required)
}
