package autopilot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/autopilot"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

func TestRightSizingScenario(t *testing.T) {
	// spec.md §8 scenario 2.
	params := autopilot.DefaultParams()
	rec := autopilot.Recommend(params, 250, 320, 500, 512)
	require.Equal(t, int64(300), rec.CPURequest)
	require.Equal(t, int64(400), rec.MemRequest)
	require.False(t, rec.Skip)
}

func TestNoiseFloorSkipsSmallChange(t *testing.T) {
	params := autopilot.DefaultParams()
	rec := autopilot.Recommend(params, 208, 256, 250, 320)
	require.True(t, rec.Skip)
}

func TestMaxChangeClamp(t *testing.T) {
	params := autopilot.DefaultParams()
	rec := autopilot.Recommend(params, 1000, 100, 100, 100)
	// 30% of 100 = 30, so cpuRec clamps to 130 even though raw rec is 1200.
	require.Equal(t, int64(130), rec.CPURequest)
}

func TestGatesBlockCriticalPriority(t *testing.T) {
	params := autopilot.DefaultParams()
	res := autopilot.EvaluateGates(autopilot.GateInputs{
		Confidence:          0.9,
		TimeSinceLastChange: 48 * time.Hour,
		Priority:            types.PriorityCritical,
	}, params)
	require.False(t, res.Allowed)
}

func TestGatesBlockReductionDuringPreScale(t *testing.T) {
	params := autopilot.DefaultParams()
	res := autopilot.EvaluateGates(autopilot.GateInputs{
		Confidence:             0.9,
		TimeSinceLastChange:    48 * time.Hour,
		Priority:               types.PriorityMedium,
		ActivePreScaleOverride: true,
		IsReduction:            true,
		ChangePercent:          10,
	}, params)
	require.False(t, res.Allowed)
}

func TestMonitorRollbackOnOOMScenario(t *testing.T) {
	// spec.md §8 scenario 3.
	snap := types.ResourceSnapshot{CPURequest: 500, MemoryRequest: 512, OOMKillCount: 0, ReadyReplicas: 3}
	current := types.ResourceSnapshot{OOMKillCount: 2, ReadyReplicas: 3}
	trigger, reason := autopilot.MonitorTrigger(snap, current, autopilot.DefaultParams())
	require.True(t, trigger)
	require.Contains(t, reason, "oom")

	state := types.AutopilotState{PreChangeSnap: &snap, LastAppliedCPU: 300, LastAppliedMem: 400}
	rolledBack := autopilot.Rollback(state)
	require.Equal(t, int64(500), rolledBack.LastAppliedCPU)
	require.Equal(t, int64(512), rolledBack.LastAppliedMem)
	require.True(t, rolledBack.CooldownExtended)
}

func TestMonitorNoTriggerWithinThresholds(t *testing.T) {
	snap := types.ResourceSnapshot{RestartCount: 1, OOMKillCount: 0, ReadyReplicas: 5}
	current := types.ResourceSnapshot{RestartCount: 2, OOMKillCount: 0, ReadyReplicas: 5}
	trigger, _ := autopilot.MonitorTrigger(snap, current, autopilot.DefaultParams())
	require.False(t, trigger)
}
