package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/store"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

func openTemp(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tss.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendSampleIdempotentPerTick(t *testing.T) {
	s := openTemp(t)
	id := types.WorkloadID{Namespace: "ns", Name: "app", HPAName: "app-hpa"}
	ts := time.Unix(1_700_000_000, 0).UTC()

	require.NoError(t, s.AppendSample(types.Sample{Workload: id, Timestamp: ts, CPUMillicores: 100}))
	require.NoError(t, s.AppendSample(types.Sample{Workload: id, Timestamp: ts, CPUMillicores: 200}))

	rows, err := s.ReadRange(id, ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 200.0, rows[0].CPUMillicores)
}

func TestReadRangeBoundsAndOrdersByWorkload(t *testing.T) {
	s := openTemp(t)
	id := types.WorkloadID{Namespace: "ns", Name: "app", HPAName: "app-hpa"}
	other := types.WorkloadID{Namespace: "ns", Name: "other", HPAName: "other-hpa"}
	base := time.Unix(1_700_000_000, 0).UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendSample(types.Sample{Workload: id, Timestamp: base.Add(time.Duration(i) * time.Minute), CPUMillicores: float64(i)}))
	}
	require.NoError(t, s.AppendSample(types.Sample{Workload: other, Timestamp: base, CPUMillicores: 999}))

	rows, err := s.ReadRange(id, base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		require.Equal(t, id, r.Workload)
	}
}

func TestCompactRemovesExpiredSamples(t *testing.T) {
	s := openTemp(t)
	id := types.WorkloadID{Namespace: "ns", Name: "app", HPAName: "app-hpa"}
	now := time.Now()
	old := now.Add(-31 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	require.NoError(t, s.AppendSample(types.Sample{Workload: id, Timestamp: old, CPUMillicores: 1}))
	require.NoError(t, s.AppendSample(types.Sample{Workload: id, Timestamp: recent, CPUMillicores: 2}))

	deleted, err := s.Compact(now)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	rows, err := s.ReadRange(id, old.Add(-time.Hour), now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 2.0, rows[0].CPUMillicores)
}

func TestPredictionCloseLifecycle(t *testing.T) {
	s := openTemp(t)
	id := types.WorkloadID{Namespace: "ns", Name: "app", HPAName: "app-hpa"}
	issue := time.Now().Add(-2 * time.Hour)

	p := types.Prediction{Workload: id, IssueTime: issue, Horizon: types.Horizon1h, Predicted: 50, ModelTag: "mean", Confidence: 0.8}
	require.NoError(t, s.AppendPrediction(p))

	due, err := s.OpenPredictionsDue(time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)

	due[0].RealizedCPU = 52
	due[0].Accurate = true
	require.NoError(t, s.ClosePrediction(due[0]))

	due2, err := s.OpenPredictionsDue(time.Now())
	require.NoError(t, err)
	require.Len(t, due2, 0)
}

func TestClosedPredictionsExcludesOpenRecords(t *testing.T) {
	s := openTemp(t)
	id := types.WorkloadID{Namespace: "ns", Name: "app", HPAName: "app-hpa"}
	issue := time.Now().Add(-2 * time.Hour)

	closedP := types.Prediction{Workload: id, IssueTime: issue, Horizon: types.Horizon1h, Predicted: 50, ModelTag: "mean"}
	openP := types.Prediction{Workload: id, IssueTime: issue.Add(time.Minute), Horizon: types.Horizon30m, Predicted: 40, ModelTag: "mean"}
	require.NoError(t, s.AppendPrediction(closedP))
	require.NoError(t, s.AppendPrediction(openP))

	closedP.RealizedCPU = 52
	closedP.Accurate = true
	require.NoError(t, s.ClosePrediction(closedP))

	got, err := s.ClosedPredictions(id)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 52.0, got[0].RealizedCPU)
}

func TestOptimalTargetRoundtrip(t *testing.T) {
	s := openTemp(t)
	id := types.WorkloadID{Namespace: "ns", Name: "app", HPAName: "app-hpa"}

	_, found, err := s.GetOptimalTarget(id, -1)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.PutOptimalTarget(types.OptimalTarget{Workload: id, HourOfDay: -1, TargetPct: 65, SampleCount: 200, Confidence: 0.9}))
	got, found, err := s.GetOptimalTarget(id, -1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 65.0, got.TargetPct)
}
