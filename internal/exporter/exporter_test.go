package exporter_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/exporter"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

// InitMetrics registers its gauges/counters exactly once per process
// (sync.Once, mirroring the teacher's singleton metrics registry), so
// every subtest here shares one registry and one Emitter instead of each
// constructing its own.
func TestEmitter(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := exporter.InitMetrics(reg)

	t.Run("decision writes target and min replicas", func(t *testing.T) {
		id := types.WorkloadID{Namespace: "ns", Name: "app", HPAName: "app-hpa"}
		e.EmitDecision(types.Decision{Workload: id, TargetWritten: 65}, 3)

		require.Equal(t, 65.0, gaugeValue(t, reg, "smart_autoscaler_hpa_target_percent", id))
		require.Equal(t, 3.0, gaugeValue(t, reg, "smart_autoscaler_min_replicas_active", id))
	})

	t.Run("skipped decision increments counter", func(t *testing.T) {
		id := types.WorkloadID{Namespace: "ns", Name: "skip-app", HPAName: "skip-hpa"}
		e.EmitDecision(types.Decision{Workload: id, TargetSkipped: true, SkipReason: "cooldown"}, 0)

		require.Equal(t, 1.0, counterValue(t, reg, "smart_autoscaler_decisions_skipped_total", id))
	})

	t.Run("prediction accuracy gauge", func(t *testing.T) {
		id := types.WorkloadID{Namespace: "ns", Name: "acc-app", HPAName: "acc-hpa"}
		e.EmitPredictionAccuracy(id, "holt_winters", 0.83)

		require.Equal(t, 0.83, gaugeValue(t, reg, "smart_autoscaler_prediction_accuracy_ratio", id))
	})

	t.Run("degraded gauge reflects decision", func(t *testing.T) {
		id := types.WorkloadID{Namespace: "ns", Name: "degraded-app", HPAName: "degraded-hpa"}
		e.EmitDecision(types.Decision{Workload: id, Degraded: true}, 1)

		require.Equal(t, 1.0, gaugeValue(t, reg, "smart_autoscaler_degraded", id))
	})
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string, id types.WorkloadID) float64 {
	t.Helper()
	return findMetric(t, reg, name, id).GetGauge().GetValue()
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, id types.WorkloadID) float64 {
	t.Helper()
	return findMetric(t, reg, name, id).GetCounter().GetValue()
}

func findMetric(t *testing.T, reg *prometheus.Registry, name string, id types.WorkloadID) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.Metric {
			if labelsMatch(m, id) {
				return m
			}
		}
	}
	t.Fatalf("metric %s for %s not found", name, id.String())
	return nil
}

func labelsMatch(m *dto.Metric, id types.WorkloadID) bool {
	want := map[string]string{"namespace": id.Namespace, "workload": id.Name, "hpa": id.HPAName}
	got := map[string]string{}
	for _, lp := range m.Label {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}
