// Package prescale implements the Pre-Scale Manager (spec.md §4.7): the
// idle/pre_scaling/rolling_back state machine that raises minReplicas
// ahead of a predicted spike and automatically rolls back.
//
// The snapshot-before-mutate, record-condition-after flow is grounded on
// the teacher's applySaturationDecisions
// (internal/engines/saturation/engine.go); the cooldown-gated trigger
// machine generalizes the teacher's scale-from-zero traffic-detection
// state machine (internal/engines/scalefromzero/doc.go) from
// zero-to-one scaling to minReplicas overrides.
package prescale

import (
	"math"
	"time"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

// Params bundles the tunables spec.md §4.7/§6 expose.
type Params struct {
	Threshold       float64 // PRESCALE_THRESHOLD, default 75
	RollbackMinutes float64 // PRESCALE_ROLLBACK_MINUTES, default 60
	CooldownMinutes float64 // PRESCALE_COOLDOWN_MINUTES, default 15
	MaxHorizon      types.Horizon
	PeakPassedRatio float64 // default 0.6
}

// DefaultParams returns the spec-mandated defaults.
func DefaultParams() Params {
	return Params{
		Threshold:       75,
		RollbackMinutes: 60,
		CooldownMinutes: 15,
		MaxHorizon:      types.Horizon1h,
		PeakPassedRatio: 0.6,
	}
}

// BestPrediction picks the maximum-confidence prediction among those
// whose horizon is <= params.MaxHorizon, per spec.md §4.7.
func BestPrediction(predictions []types.Prediction, maxHorizon types.Horizon) (types.Prediction, bool) {
	maxMinutes := maxHorizon.Minutes()
	var best types.Prediction
	found := false
	for _, p := range predictions {
		if p.Horizon.Minutes() > maxMinutes {
			continue
		}
		if !found || p.Confidence > best.Confidence {
			best = p
			found = true
		}
	}
	return best, found
}

// ShouldTrigger evaluates the trigger rule of spec.md §4.7.
func ShouldTrigger(predicted, confidence, confidenceThreshold float64, threshold float64, lastTrigger time.Time, now time.Time, cooldownMinutes float64) bool {
	if predicted < threshold {
		return false
	}
	if confidence < confidenceThreshold {
		return false
	}
	if now.Sub(lastTrigger) < time.Duration(cooldownMinutes*float64(time.Minute)) {
		return false
	}
	return true
}

// NewMinReplicas computes new_min = ceil(current_replicas * P / target_cpu),
// clamped to [originalMin, originalMax] and never decreased from current.
func NewMinReplicas(currentReplicas int32, predictedPct, targetCPU float64, originalMin, originalMax, currentMin int32) int32 {
	if targetCPU <= 0 {
		targetCPU = 1
	}
	raw := math.Ceil(float64(currentReplicas) * predictedPct / targetCPU)
	n := int32(raw)
	if n < originalMin {
		n = originalMin
	}
	if n > originalMax {
		n = originalMax
	}
	if n < currentMin {
		n = currentMin
	}
	return n
}

// Trigger enters pre_scaling on a freshly snapshotted or already-active
// profile, returning the updated profile. It is the caller's
// responsibility to actually patch the HPA; this function only advances
// state.
func Trigger(profile types.PreScaleProfile, newMin int32, reason string, confidence float64, now time.Time, rollbackMinutes float64) types.PreScaleProfile {
	if profile.State == types.PreScaleIdle {
		profile.OverrideStart = now
	}
	profile.CurrentMin = newMin
	profile.State = types.PreScalePreScaling
	profile.RollbackAt = now.Add(time.Duration(rollbackMinutes * float64(time.Minute)))
	profile.Reason = reason
	profile.Confidence = confidence
	profile.PreScaleCount++
	return profile
}

// ShouldRollback evaluates the three rollback conditions of spec.md
// §4.7: expiry, peak-passed, or workload gone.
func ShouldRollback(profile types.PreScaleProfile, now time.Time, realizedCPULast10Min, originalTargetPct float64, peakPassedRatio float64, workloadGone bool) (bool, string) {
	if workloadGone {
		return true, "workload no longer discovered"
	}
	if !now.Before(profile.RollbackAt) {
		return true, "rollback deadline reached"
	}
	if realizedCPULast10Min <= originalTargetPct*peakPassedRatio {
		return true, "peak passed"
	}
	return false, ""
}

// Rollback transitions a profile back to idle with minReplicas restored
// to the snapshot.
func Rollback(profile types.PreScaleProfile) types.PreScaleProfile {
	profile.State = types.PreScaleIdle
	profile.CurrentMin = profile.OriginalMin
	profile.Reason = ""
	return profile
}

// SnapshotIfNeeded captures {originalMin, originalMax, originalTargetPct}
// the first time a workload is pre-scaled; subsequent triggers reuse the
// existing snapshot (spec.md §3: "at most one pre-scale profile exists").
func SnapshotIfNeeded(profile types.PreScaleProfile, currentMin, currentMax, currentTargetPct int32) types.PreScaleProfile {
	if profile.State == types.PreScaleIdle && profile.OriginalMin == 0 && profile.OriginalMax == 0 {
		profile.OriginalMin = currentMin
		profile.OriginalMax = currentMax
		profile.OriginalTargetPct = currentTargetPct
		profile.CurrentMin = currentMin
	}
	return profile
}

// ManualOverride forces a new_min subject to [originalMin, originalMax].
func ManualOverride(profile types.PreScaleProfile, requestedMin int32, now time.Time, rollbackMinutes float64) types.PreScaleProfile {
	n := requestedMin
	if n < profile.OriginalMin {
		n = profile.OriginalMin
	}
	if n > profile.OriginalMax {
		n = profile.OriginalMax
	}
	return Trigger(profile, n, "manual override", 1.0, now, rollbackMinutes)
}
