package validator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/validator"
)

func TestCloseMarksAccurateWithinThreshold(t *testing.T) {
	p := types.Prediction{Predicted: 100, ModelTag: "mean"}
	closed := validator.Close(p, 110)
	require.True(t, closed.Accurate)
	closed2 := validator.Close(p, 130)
	require.False(t, closed2.Accurate)
}

func TestRollupAccuracyOnKnownGoodSeries(t *testing.T) {
	var closed []types.Prediction
	for i := 0; i < 20; i++ {
		p := validator.Close(types.Prediction{Predicted: 100, ModelTag: "mean"}, 101)
		closed = append(closed, p)
	}
	stats := validator.Rollup(closed)
	require.GreaterOrEqual(t, stats.AccuracyRate, 0.95)
	require.Equal(t, 20, stats.RecordCount)
}

func TestRollupWindowCap(t *testing.T) {
	var closed []types.Prediction
	for i := 0; i < 150; i++ {
		closed = append(closed, validator.Close(types.Prediction{Predicted: 100}, 100))
	}
	stats := validator.Rollup(closed)
	require.Equal(t, validator.WindowSize, stats.RecordCount)
}

func TestGroupByModel(t *testing.T) {
	closed := []types.Prediction{
		{ModelTag: "mean"}, {ModelTag: "trend"}, {ModelTag: "mean"},
	}
	groups := validator.GroupByModel(closed)
	require.Len(t, groups["mean"], 2)
	require.Len(t, groups["trend"], 1)
}

func TestLearnOptimalTargetIgnoresUnrequestedSamplesAndLowConfidenceSpans(t *testing.T) {
	id := types.WorkloadID{Namespace: "ns", Name: "app", HPAName: "app-hpa"}
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	_, ok := validator.LearnOptimalTarget(id, nil, -1, now)
	require.False(t, ok)

	var history []types.Sample
	for i := 0; i < 100; i++ {
		history = append(history, types.Sample{
			Workload: id, Timestamp: now.Add(-time.Duration(i) * time.Minute),
			CPUMillicores: 600, CPURequest: 1000,
		})
	}
	// one sample with no CPU request is excluded, not treated as 0% utilization.
	history = append(history, types.Sample{Workload: id, Timestamp: now, CPUMillicores: 999, CPURequest: 0})

	opt, ok := validator.LearnOptimalTarget(id, history, -1, now)
	require.True(t, ok)
	require.Equal(t, 100, opt.SampleCount)
	require.InDelta(t, 60.0, opt.TargetPct, 0.01)
	// the sampled span is under a day, far short of OptimalTargetLearnDays.
	require.Less(t, opt.Confidence, 0.2)
}
