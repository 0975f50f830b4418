package controlloop_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/config"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/controlloop"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/discovery"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/store"
	wtypes "github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

type fakeMetrics struct {
	snapshots map[wtypes.WorkloadID]controlloop.WorkloadSnapshot
	pressure  float64
	patchedTargets map[wtypes.WorkloadID]int32
	patchedMins    map[wtypes.WorkloadID]int32
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		snapshots:      map[wtypes.WorkloadID]controlloop.WorkloadSnapshot{},
		patchedTargets: map[wtypes.WorkloadID]int32{},
		patchedMins:    map[wtypes.WorkloadID]int32{},
	}
}

func (f *fakeMetrics) GatherWorkload(ctx context.Context, id wtypes.WorkloadID) (controlloop.WorkloadSnapshot, error) {
	return f.snapshots[id], nil
}
func (f *fakeMetrics) ClusterPressure(ctx context.Context) (float64, error) { return f.pressure, nil }
func (f *fakeMetrics) PatchHPATarget(ctx context.Context, id wtypes.WorkloadID, percent int32) error {
	f.patchedTargets[id] = percent
	return nil
}
func (f *fakeMetrics) PatchHPAMin(ctx context.Context, id wtypes.WorkloadID, n int32) error {
	f.patchedMins[id] = n
	return nil
}
func (f *fakeMetrics) PatchDeploymentRequests(ctx context.Context, id wtypes.WorkloadID, cpuMilli, memMiB int64) error {
	return nil
}

func newTestLoop(t *testing.T, metrics controlloop.MetricsSource, statics []discovery.StaticEntry) *controlloop.Loop {
	t.Helper()
	tss, err := store.Open(filepath.Join(t.TempDir(), "tss.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tss.Close() })
	cfg := config.Default()
	cfg.EnableAutoDiscovery = false
	snap := config.NewSnapshot(cfg)
	disc := discovery.New(nil, statics, "")
	return controlloop.New(snap, tss, metrics, disc, nil)
}

func TestTickSucceedsForHealthyWorkload(t *testing.T) {
	metrics := newFakeMetrics()
	id := wtypes.WorkloadID{Namespace: "ns", Name: "app", HPAName: "app-hpa"}
	metrics.snapshots[id] = controlloop.WorkloadSnapshot{
		Replicas: 3, HPA: controlloop.HPAState{MinReplicas: 2, MaxReplicas: 10, TargetPct: 70},
		Pods: []controlloop.PodObservation{{AgeSeconds: 600, CPUMillicores: 50}},
	}
	loop := newTestLoop(t, metrics, []discovery.StaticEntry{
		{Namespace: "ns", Name: "app", HPAName: "app-hpa", Priority: wtypes.PriorityMedium, StartupFilterMinutes: 2},
	})
	require.NoError(t, loop.Tick(context.Background()))
}

func TestTickComputesNodePressureCorrectedTarget(t *testing.T) {
	metrics := newFakeMetrics()
	metrics.pressure = 88
	id := wtypes.WorkloadID{Namespace: "ns", Name: "app", HPAName: "app-hpa"}
	metrics.snapshots[id] = controlloop.WorkloadSnapshot{
		Replicas: 3, HPA: controlloop.HPAState{MinReplicas: 2, MaxReplicas: 10, TargetPct: 60},
		Pods: []controlloop.PodObservation{{AgeSeconds: 600, CPUMillicores: 50}},
	}
	loop := newTestLoop(t, metrics, []discovery.StaticEntry{
		{Namespace: "ns", Name: "app", HPAName: "app-hpa", Priority: wtypes.PriorityHigh, StartupFilterMinutes: 2},
	})
	require.NoError(t, loop.Tick(context.Background()))
	// spec.md §8 scenario 4: base(high)=60, pressure 88% > 85 knocks -5.
	require.Equal(t, int32(55), metrics.patchedTargets[id])
}

func TestRunReturnsWhenContextDone(t *testing.T) {
	metrics := newFakeMetrics()
	loop := newTestLoop(t, metrics, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	loop.Run(ctx)
}
