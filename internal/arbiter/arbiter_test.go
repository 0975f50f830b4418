package arbiter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/arbiter"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

func TestNodePressureCorrection(t *testing.T) {
	// scenario 4 of spec.md §8: high priority, base 60, pressure 88 -> 55.
	target := arbiter.AdjustedTarget(types.PriorityHigh, 88, 20, 95)
	require.Equal(t, int32(55), target)
}

func TestLowPressureCostBias(t *testing.T) {
	target := arbiter.AdjustedTarget(types.PriorityLow, 35, 20, 95)
	require.Equal(t, int32(85), target)
}

func TestOrderingCriticalFirstTiesByName(t *testing.T) {
	workloads := []arbiter.OrderedWorkload{
		{ID: types.WorkloadID{Name: "zeta"}, Priority: types.PriorityMedium},
		{ID: types.WorkloadID{Name: "alpha"}, Priority: types.PriorityCritical},
		{ID: types.WorkloadID{Name: "beta"}, Priority: types.PriorityCritical},
	}
	ordered := arbiter.Order(workloads)
	require.Equal(t, "alpha", ordered[0].ID.Name)
	require.Equal(t, "beta", ordered[1].ID.Name)
	require.Equal(t, "zeta", ordered[2].ID.Name)
}

func TestPreemptionRespectsCooldown(t *testing.T) {
	now := time.Now()
	delta, ok := arbiter.Preemption(types.PriorityLow, 85, true, now.Add(-10*time.Minute), now)
	require.True(t, ok)
	require.Equal(t, int32(5), delta)

	_, ok2 := arbiter.Preemption(types.PriorityLow, 85, true, now.Add(-1*time.Minute), now)
	require.False(t, ok2)
}

func TestPreScaleConfidenceThresholdPerTier(t *testing.T) {
	require.Equal(t, 0.60, arbiter.PreScaleConfidenceThreshold(types.PriorityCritical))
	require.Equal(t, 0.80, arbiter.PreScaleConfidenceThreshold(types.PriorityBestEffort))
}
