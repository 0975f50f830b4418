// Package exporter publishes the Control Loop's per-tick decisions as
// Prometheus metrics, the external-collaborator boundary named in
// spec.md §7 "Out of scope" (the exporter itself lives outside the
// core; only the interface into it lives here).
//
// Structurally grounded on the teacher's internal/metrics/metrics.go:
// sync.Once init and CounterVec/GaugeVec construction, generalized from
// replica-scaling metrics to workload-decision metrics.
package exporter

import (
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

var (
	once sync.Once

	hpaTargetWritten  *prometheus.GaugeVec
	minReplicasActive *prometheus.GaugeVec
	decisionSkipped   *prometheus.CounterVec
	preScaleActive    *prometheus.GaugeVec
	predictionAccuracy *prometheus.GaugeVec
	degradedMode      *prometheus.GaugeVec
)

// Emitter publishes Decision records and prediction accuracy to a
// Prometheus registry.
type Emitter struct {
	controllerInstance string
}

// InitMetrics registers every gauge/counter exactly once, mirroring the
// teacher's sync.Once guard so repeated construction in tests is safe.
func InitMetrics(registry prometheus.Registerer) *Emitter {
	once.Do(func() {
		labels := []string{"namespace", "workload", "hpa"}
		if inst := os.Getenv("CONTROLLER_INSTANCE"); inst != "" {
			labels = append(labels, "controller_instance")
		}
		hpaTargetWritten = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smart_autoscaler_hpa_target_percent",
			Help: "HPA CPU target percent last written by the control loop.",
		}, labels)
		minReplicasActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smart_autoscaler_min_replicas_active",
			Help: "Current minReplicas override in effect, 0 when idle.",
		}, labels)
		decisionSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_autoscaler_decisions_skipped_total",
			Help: "Count of ticks where the decision for a workload was a refusal to act.",
		}, append(labels, "reason"))
		preScaleActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smart_autoscaler_prescale_active",
			Help: "1 if a pre-scale override is active for this workload, else 0.",
		}, labels)
		predictionAccuracy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smart_autoscaler_prediction_accuracy_ratio",
			Help: "Rolling prediction accuracy rate per workload and model.",
		}, append(labels, "model"))
		degradedMode = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smart_autoscaler_degraded",
			Help: "1 if the workload's decision this tick was made in degraded mode.",
		}, labels)

		registry.MustRegister(hpaTargetWritten, minReplicasActive, decisionSkipped, preScaleActive, predictionAccuracy, degradedMode)
	})
	return &Emitter{controllerInstance: os.Getenv("CONTROLLER_INSTANCE")}
}

func (e *Emitter) labelValues(id types.WorkloadID) prometheus.Labels {
	l := prometheus.Labels{"namespace": id.Namespace, "workload": id.Name, "hpa": id.HPAName}
	if e.controllerInstance != "" {
		l["controller_instance"] = e.controllerInstance
	}
	return l
}

// EmitDecision publishes one workload's per-tick decision.
func (e *Emitter) EmitDecision(d types.Decision, currentMin int32) {
	labels := e.labelValues(d.Workload)
	if !d.TargetSkipped {
		hpaTargetWritten.With(labels).Set(float64(d.TargetWritten))
	}
	minReplicasActive.With(labels).Set(float64(currentMin))
	if d.TargetSkipped {
		reasonLabels := prometheus.Labels{}
		for k, v := range labels {
			reasonLabels[k] = v
		}
		reasonLabels["reason"] = d.SkipReason
		decisionSkipped.With(reasonLabels).Inc()
	}
	degradedVal := 0.0
	if d.Degraded {
		degradedVal = 1.0
	}
	degradedMode.With(labels).Set(degradedVal)
	preScaleVal := 0.0
	if d.PreScaleAction != "" {
		preScaleVal = 1.0
	}
	preScaleActive.With(labels).Set(preScaleVal)
}

// EmitPredictionAccuracy publishes the Validator's rolling accuracy for
// one (workload, model) pair.
func (e *Emitter) EmitPredictionAccuracy(id types.WorkloadID, model string, accuracy float64) {
	labels := e.labelValues(id)
	labels["model"] = model
	predictionAccuracy.With(labels).Set(accuracy)
}
