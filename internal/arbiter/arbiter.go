// Package arbiter implements the Priority Arbiter (spec.md §4.6): the
// tier-to-target mapping, cluster-pressure adjustment, pre-scale
// confidence thresholds, scale-speed multipliers, preemption, and the
// per-tick iteration order.
//
// The cheapest/most-expensive selection-under-pressure shape is grounded
// on the teacher's pkg/solver greedy cost ranking
// (convertSaturationTargetsToDecisions / CalculateSaturationTargets),
// generalized from variant cost to priority tier.
package arbiter

import (
	"sort"
	"time"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

// BaseTarget maps a priority tier to its default HPA CPU target percent.
func BaseTarget(tier types.PriorityTier) int32 {
	switch tier {
	case types.PriorityCritical:
		return 55
	case types.PriorityHigh:
		return 60
	case types.PriorityMedium:
		return 70
	case types.PriorityLow:
		return 80
	case types.PriorityBestEffort:
		return 85
	default:
		return 70
	}
}

// PreScaleConfidenceThreshold maps a priority tier to the minimum
// prediction confidence that authorizes a pre-scale trigger.
func PreScaleConfidenceThreshold(tier types.PriorityTier) float64 {
	switch tier {
	case types.PriorityCritical:
		return 0.60
	case types.PriorityHigh:
		return 0.65
	case types.PriorityMedium:
		return 0.70
	case types.PriorityLow:
		return 0.75
	case types.PriorityBestEffort:
		return 0.80
	default:
		return 0.70
	}
}

// ScaleSpeedMultiplier is the advisory up-scale multiplier for a tier;
// down is its reciprocal.
func ScaleSpeedMultiplier(tier types.PriorityTier) float64 {
	switch tier {
	case types.PriorityCritical:
		return 2.0
	case types.PriorityHigh:
		return 1.5
	case types.PriorityMedium:
		return 1.0
	case types.PriorityLow:
		return 0.5
	case types.PriorityBestEffort:
		return 0.25
	default:
		return 1.0
	}
}

// ScaleSpeedMultiplierDown is the reciprocal of the up multiplier.
func ScaleSpeedMultiplierDown(tier types.PriorityTier) float64 {
	return 1.0 / ScaleSpeedMultiplier(tier)
}

// PressureAdjustment computes the additive target correction from
// cluster pressure, per spec.md §4.6. Pressure is the max node
// utilization percent over watched nodes.
func PressureAdjustment(tier types.PriorityTier, pressure float64) int32 {
	switch {
	case pressure > 85:
		switch tier {
		case types.PriorityCritical, types.PriorityHigh:
			return -5
		case types.PriorityLow, types.PriorityBestEffort:
			return 10
		}
	case pressure < 40:
		switch tier {
		case types.PriorityLow, types.PriorityBestEffort:
			return 5
		}
	}
	return 0
}

// AdjustedTarget applies PressureAdjustment to BaseTarget and clamps to
// [minTarget, maxTarget].
func AdjustedTarget(tier types.PriorityTier, pressure float64, minTarget, maxTarget int32) int32 {
	t := BaseTarget(tier) + PressureAdjustment(tier, pressure)
	if t < minTarget {
		t = minTarget
	}
	if t > maxTarget {
		t = maxTarget
	}
	return t
}

// PreemptionCooldown is the minimum time between successive preemptions
// of the same workload, to prevent oscillation.
const PreemptionCooldown = 5 * time.Minute

// Preemption computes the +5 cost/yield bump applied to a co-scheduled
// low/best_effort workload when cluster pressure exceeds 80% and a
// critical/high workload is present, subject to cooldown.
func Preemption(targetTier types.PriorityTier, pressure float64, criticalOrHighPresent bool, lastPreemption time.Time, now time.Time) (delta int32, ok bool) {
	if pressure <= 80 || !criticalOrHighPresent {
		return 0, false
	}
	if targetTier != types.PriorityLow && targetTier != types.PriorityBestEffort {
		return 0, false
	}
	if now.Sub(lastPreemption) < PreemptionCooldown {
		return 0, false
	}
	return 5, true
}

// OrderedWorkload pairs a workload id with its priority tier for sort.
type OrderedWorkload struct {
	ID       types.WorkloadID
	Priority types.PriorityTier
}

// Order returns workloads sorted critical-first, ties broken by name
// (spec.md §3, §4.6).
func Order(workloads []OrderedWorkload) []OrderedWorkload {
	out := make([]OrderedWorkload, len(workloads))
	copy(out, workloads)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].ID.Name < out[j].ID.Name
	})
	return out
}
