// Package validator implements the Validator (spec.md §4.5): each tick it
// scans open predictions whose horizon has elapsed, joins them against
// realized CPU, and maintains a rolling per-(workload, model) accuracy
// rate, MAPE, and RMSE over the last 100 records.
//
// Stateless pure functions over metric slices, the same shape as the
// teacher's internal/saturation/analyzer.go Analyzer.
package validator

import (
	"math"
	"sort"
	"time"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

// AccuracyThreshold is the relative-error cutoff below which a closed
// prediction counts as accurate (spec.md §3).
const AccuracyThreshold = 0.15

// WindowSize bounds the rolling accuracy window per (workload, model).
const WindowSize = 100

// Close evaluates an open prediction against the realized CPU value at
// its target time, returning the closed record.
func Close(p types.Prediction, realizedCPU float64) types.Prediction {
	p.RealizedCPU = realizedCPU
	p.Closed = true
	if realizedCPU == 0 {
		p.Accurate = p.Predicted == 0
	} else {
		p.Accurate = math.Abs(p.Predicted-realizedCPU)/realizedCPU < AccuracyThreshold
	}
	return p
}

// Stats is a rolling accuracy summary for one (workload, model) pair.
type Stats struct {
	AccuracyRate float64
	MAPE         float64
	RMSE         float64
	RecordCount  int
}

// Rollup computes Stats over the most recent WindowSize closed
// predictions (oldest first in closed).
func Rollup(closed []types.Prediction) Stats {
	if len(closed) == 0 {
		return Stats{}
	}
	window := closed
	if len(window) > WindowSize {
		window = window[len(window)-WindowSize:]
	}
	var accurate int
	var apeSum, sqErrSum float64
	for _, p := range window {
		if p.Accurate {
			accurate++
		}
		if p.RealizedCPU != 0 {
			apeSum += math.Abs(p.Predicted-p.RealizedCPU) / p.RealizedCPU
		}
		err := p.Predicted - p.RealizedCPU
		sqErrSum += err * err
	}
	n := float64(len(window))
	return Stats{
		AccuracyRate: float64(accurate) / n,
		MAPE:         apeSum / n,
		RMSE:         math.Sqrt(sqErrSum / n),
		RecordCount:  len(window),
	}
}

// GroupByModel buckets closed predictions by model tag, for computing
// Stats per forecaster family within one workload.
func GroupByModel(closed []types.Prediction) map[string][]types.Prediction {
	out := map[string][]types.Prediction{}
	for _, p := range closed {
		out[p.ModelTag] = append(out[p.ModelTag], p)
	}
	return out
}

// OptimalTargetLearnDays is the history span a learned target needs to
// clear the Control Loop's auto-tuning confidence gate (spec.md §4.9(d)).
const OptimalTargetLearnDays = 7

// LearnOptimalTarget derives a Validator-trusted auto-tuned HPA target
// (spec.md §3 Optimal-target record) from recent utilization history:
// the 90th-percentile CPU utilization, as a percent of the pod's CPU
// request, is the level a steady-state target should sit at without
// forcing reactive scaling. hourOfDay restricts the sample to that hour
// for a per-hour-of-day record; -1 uses the whole window.
func LearnOptimalTarget(id types.WorkloadID, history []types.Sample, hourOfDay int, now time.Time) (types.OptimalTarget, bool) {
	var utilPct []float64
	var oldest time.Time
	for _, s := range history {
		if s.CPURequest <= 0 {
			continue
		}
		if hourOfDay >= 0 && s.Timestamp.Hour() != hourOfDay {
			continue
		}
		utilPct = append(utilPct, s.CPUMillicores/float64(s.CPURequest)*100)
		if oldest.IsZero() || s.Timestamp.Before(oldest) {
			oldest = s.Timestamp
		}
	}
	if len(utilPct) == 0 {
		return types.OptimalTarget{}, false
	}
	sort.Float64s(utilPct)
	idx := int(math.Ceil(0.90*float64(len(utilPct)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(utilPct) {
		idx = len(utilPct) - 1
	}

	days := now.Sub(oldest).Hours() / 24
	confidence := math.Min(1.0, days/OptimalTargetLearnDays) * math.Max(0.3, 1.0-coefficientOfVariation(utilPct))

	return types.OptimalTarget{
		Workload:    id,
		HourOfDay:   hourOfDay,
		TargetPct:   utilPct[idx],
		SampleCount: len(utilPct),
		Confidence:  confidence,
		LastUpdated: now,
	}, true
}

func coefficientOfVariation(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(vals)))
	return std / mean
}
