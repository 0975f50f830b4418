package prescale_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/prescale"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

func TestPreScaleOnPredictedSpikeScenario(t *testing.T) {
	// spec.md §8 scenario 1.
	newMin := prescale.NewMinReplicas(3, 90, 70, 2, 10, 2)
	require.Equal(t, int32(4), newMin)

	now := time.Date(2026, 1, 1, 8, 45, 0, 0, time.UTC)
	profile := types.PreScaleProfile{Workload: types.WorkloadID{Name: "app"}, OriginalMin: 2, OriginalMax: 10, State: types.PreScaleIdle}
	profile = prescale.SnapshotIfNeeded(profile, 2, 10, 70)
	profile = prescale.Trigger(profile, newMin, "predicted spike", 0.9, now, 60)

	require.Equal(t, types.PreScalePreScaling, profile.State)
	require.Equal(t, int32(4), profile.CurrentMin)
	require.Equal(t, time.Date(2026, 1, 1, 9, 45, 0, 0, time.UTC), profile.RollbackAt)

	later := time.Date(2026, 1, 1, 9, 50, 0, 0, time.UTC)
	shouldRollback, _ := prescale.ShouldRollback(profile, later, 50, float64(profile.OriginalTargetPct), 0.6, false)
	require.True(t, shouldRollback)
	profile = prescale.Rollback(profile)
	require.Equal(t, types.PreScaleIdle, profile.State)
	require.Equal(t, int32(2), profile.CurrentMin)
}

func TestBestPredictionIgnoresHorizonsBeyondMax(t *testing.T) {
	preds := []types.Prediction{
		{Horizon: types.Horizon15m, Confidence: 0.5},
		{Horizon: types.Horizon1h, Confidence: 0.9},
		{Horizon: types.Horizon4h, Confidence: 0.99},
	}
	best, ok := prescale.BestPrediction(preds, types.Horizon1h)
	require.True(t, ok)
	require.Equal(t, types.Horizon1h, best.Horizon)
}

func TestShouldTriggerRequiresThresholdConfidenceAndCooldown(t *testing.T) {
	now := time.Now()
	require.True(t, prescale.ShouldTrigger(80, 0.8, 0.7, 75, now.Add(-20*time.Minute), now, 15))
	require.False(t, prescale.ShouldTrigger(70, 0.8, 0.7, 75, now.Add(-20*time.Minute), now, 15))
	require.False(t, prescale.ShouldTrigger(80, 0.6, 0.7, 75, now.Add(-20*time.Minute), now, 15))
	require.False(t, prescale.ShouldTrigger(80, 0.8, 0.7, 75, now.Add(-5*time.Minute), now, 15))
}

func TestNewMinReplicasNeverDecreasesFromCurrent(t *testing.T) {
	n := prescale.NewMinReplicas(2, 50, 70, 2, 10, 6)
	require.Equal(t, int32(6), n)
}
