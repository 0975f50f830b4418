// Package autopilot implements the Autopilot subsystem (spec.md §4.8):
// the learning -> recommend -> apply lifecycle for container resource
// requests, its safety gates, and its post-apply monitor with
// auto-rollback.
//
// The pre-change snapshot-then-patch-then-monitor flow is grounded on
// the teacher's applySaturationDecisions
// (internal/engines/saturation/engine.go) and the external-metric
// gating idiom of internal/actuator/doc.go, generalized from emitting a
// desired-replica metric to patching deployment resource requests
// directly.
package autopilot

import (
	"math"
	"time"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

// Params bundles the tunables of spec.md §4.8.
type Params struct {
	LearnDays           int
	CPUBufferPct        float64
	MemBufferPct        float64
	MinCPURequest       int64
	MinMemRequest       int64
	MaxChangePercent    float64
	MinConfidence       float64
	CooldownHours       float64
	MonitorMinutes      float64
	MaxRestartIncrease  int32
	MaxOOMIncrease      int32
	MaxReadinessDropPct float64
}

// DefaultParams returns the spec-mandated defaults.
func DefaultParams() Params {
	return Params{
		LearnDays:           14,
		CPUBufferPct:        0.20,
		MemBufferPct:        0.25,
		MinCPURequest:       50,
		MinMemRequest:       64,
		MaxChangePercent:    30,
		MinConfidence:       0.80,
		CooldownHours:       24,
		MonitorMinutes:      10,
		MaxRestartIncrease:  2,
		MaxOOMIncrease:      1,
		MaxReadinessDropPct: 20,
	}
}

// AdvanceLearning transitions not_started -> learning -> completed (or
// graduated, if autoGraduate), computing baselines on completion.
func AdvanceLearning(state types.AutopilotState, now time.Time, params Params, cpuP95, memP95, cv float64, autoGraduate bool) types.AutopilotState {
	switch state.LearningState {
	case types.LearningNotStarted:
		state.LearningState = types.Learning
		state.LearningStart = now
	case types.Learning:
		days := now.Sub(state.LearningStart).Hours() / 24
		if days >= float64(params.LearnDays) {
			state.BaselineCPUP95 = cpuP95
			state.BaselineMemP95 = memP95
			state.LearningState = types.LearningCompleted
			if autoGraduate {
				state.LearningState = types.LearningGraduated
			}
		}
	}
	return state
}

// Confidence is min(1.0, days_observed/LEARN_DAYS) attenuated by CV.
func Confidence(daysObserved float64, learnDays int, cv float64) float64 {
	base := math.Min(1.0, daysObserved/float64(learnDays))
	attenuation := math.Max(0.3, 1.0-cv)
	return base * attenuation
}

// Recommendation is a computed cpu/mem request recommendation.
type Recommendation struct {
	CPURequest int64
	MemRequest int64
	Skip       bool
	SkipReason string
}

// Recommend computes the recommendation for a graduated workload,
// applying the noise floor and max-change clamp of spec.md §4.8.
func Recommend(params Params, cpuP95, memP95 float64, currentCPU, currentMem int64) Recommendation {
	cpuRec := int64(math.Ceil(cpuP95 * (1 + params.CPUBufferPct)))
	if cpuRec < params.MinCPURequest {
		cpuRec = params.MinCPURequest
	}
	memRec := int64(math.Ceil(memP95 * (1 + params.MemBufferPct)))
	if memRec < params.MinMemRequest {
		memRec = params.MinMemRequest
	}

	cpuRec = clampChange(currentCPU, cpuRec, params.MaxChangePercent)
	memRec = clampChange(currentMem, memRec, params.MaxChangePercent)

	if currentCPU > 0 && relativeChange(currentCPU, cpuRec) < 0.05 &&
		currentMem > 0 && relativeChange(currentMem, memRec) < 0.05 {
		return Recommendation{CPURequest: currentCPU, MemRequest: currentMem, Skip: true, SkipReason: "within noise floor"}
	}

	return Recommendation{CPURequest: cpuRec, MemRequest: memRec}
}

func relativeChange(current, rec int64) float64 {
	if current == 0 {
		return 1
	}
	return math.Abs(float64(rec-current)) / float64(current)
}

func clampChange(current, rec int64, maxChangePercent float64) int64 {
	if current == 0 {
		return rec
	}
	maxDelta := float64(current) * (maxChangePercent / 100.0)
	delta := float64(rec - current)
	if math.Abs(delta) > maxDelta {
		if delta > 0 {
			return current + int64(maxDelta)
		}
		return current - int64(maxDelta)
	}
	return rec
}

// GateInputs bundles everything the safety gates need.
type GateInputs struct {
	Confidence            float64
	TimeSinceLastChange   time.Duration
	Priority              types.PriorityTier
	ReductionPercent      float64 // positive when the change reduces the request
	HighPriorityApproved  bool    // manual approval for a >15% high-priority reduction
	ActivePreScaleOverride bool
	IsReduction           bool
	ChangePercent         float64
}

// GateResult is the outcome of the five safety gates of spec.md §4.8.
type GateResult struct {
	Allowed bool
	Reason  string
}

// EvaluateGates checks all five apply-safety gates; all must hold.
func EvaluateGates(in GateInputs, params Params) GateResult {
	if in.Confidence < params.MinConfidence {
		return GateResult{Allowed: false, Reason: "confidence below minimum"}
	}
	if in.TimeSinceLastChange < time.Duration(params.CooldownHours*float64(time.Hour)) {
		return GateResult{Allowed: false, Reason: "cooldown not elapsed"}
	}
	if in.Priority == types.PriorityCritical {
		return GateResult{Allowed: false, Reason: "critical priority requires manual approval"}
	}
	if in.Priority == types.PriorityHigh && in.IsReduction && in.ReductionPercent > 15 && !in.HighPriorityApproved {
		return GateResult{Allowed: false, Reason: "high-priority reduction >15% requires manual approval"}
	}
	if in.ActivePreScaleOverride && in.IsReduction {
		return GateResult{Allowed: false, Reason: "active pre-scale override blocks reduction"}
	}
	if in.ChangePercent > params.MaxChangePercent {
		return GateResult{Allowed: false, Reason: "change exceeds max change percent"}
	}
	return GateResult{Allowed: true}
}

// Apply snapshots current state and records the applied change, ready
// for the caller to actually patch the Deployment.
func Apply(state types.AutopilotState, snapshot types.ResourceSnapshot, cpuReq, memReq int64, now time.Time, monitorMinutes float64) types.AutopilotState {
	state.PreChangeSnap = &snapshot
	state.LastAppliedCPU = cpuReq
	state.LastAppliedMem = memReq
	state.LastChangeTime = now
	state.MonitorDeadline = now.Add(time.Duration(monitorMinutes * float64(time.Minute)))
	return state
}

// MonitorTrigger evaluates the three rollback triggers of spec.md §4.8
// against the pre-change snapshot.
func MonitorTrigger(snapshot types.ResourceSnapshot, current types.ResourceSnapshot, params Params) (bool, string) {
	if current.RestartCount-snapshot.RestartCount > params.MaxRestartIncrease {
		return true, "restart count increased beyond threshold"
	}
	if current.OOMKillCount-snapshot.OOMKillCount > params.MaxOOMIncrease {
		return true, "oom-kill count increased beyond threshold"
	}
	if snapshot.ReadyReplicas > 0 {
		dropPct := 100.0 * float64(snapshot.ReadyReplicas-current.ReadyReplicas) / float64(snapshot.ReadyReplicas)
		if dropPct > params.MaxReadinessDropPct {
			return true, "ready-replica fraction dropped beyond threshold"
		}
	}
	return false, ""
}

// Rollback restores the snapshot and marks the workload
// cooldown_extended.
func Rollback(state types.AutopilotState) types.AutopilotState {
	if state.PreChangeSnap != nil {
		state.LastAppliedCPU = state.PreChangeSnap.CPURequest
		state.LastAppliedMem = state.PreChangeSnap.MemoryRequest
	}
	state.CooldownExtended = true
	state.PreChangeSnap = nil
	return state
}

// Confirm discards the snapshot once the monitor window elapses with no
// trigger; the change is considered confirmed.
func Confirm(state types.AutopilotState) types.AutopilotState {
	state.PreChangeSnap = nil
	return state
}
