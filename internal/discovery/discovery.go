// Package discovery resolves the set of watched workloads (spec.md §2.10)
// from static config and from HPA annotations, feeding the Control Loop.
//
// The label-filtered listing and annotation-driven predicate style is
// grounded on the teacher's internal/utils/variant.go
// (ActiveVariantAutoscalingByModel / readyVariantAutoscalings) and
// internal/controller/predicates.go (VariantAutoscalingPredicate).
package discovery

import (
	"context"
	"sort"

	promoperator "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apitypes "k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/config"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/errs"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

// StaticEntry is one statically configured workload (spec.md §6
// "Per-workload" config block).
type StaticEntry struct {
	Namespace            string
	Name                 string
	HPAName              string
	StartupFilterMinutes int
	Priority             types.PriorityTier
	AutopilotEnabled     bool
}

// Discoverer resolves the watched-workload set every tick.
type Discoverer struct {
	k8s                client.Client
	static             []StaticEntry
	controllerInstance string
}

// New constructs a Discoverer over static entries plus, when
// EnableAutoDiscovery is on, annotated HPAs.
func New(k8s client.Client, static []StaticEntry, controllerInstance string) *Discoverer {
	return &Discoverer{k8s: k8s, static: static, controllerInstance: controllerInstance}
}

// Discover returns the full watched-workload set: static entries plus
// annotated HPAs, deduplicated by WorkloadID, where an HPA annotation
// overrides the matching static entry's field and unannotated fields keep
// the static value. The result is sorted by name (final ordering is the
// Arbiter's job).
func (d *Discoverer) Discover(ctx context.Context, cfg config.Global) ([]types.Workload, error) {
	seen := map[types.WorkloadID]types.Workload{}

	for _, e := range d.static {
		w := types.Workload{
			ID: types.WorkloadID{Namespace: e.Namespace, Name: e.Name, HPAName: e.HPAName},
			Priority: e.Priority, StartupFilterMinutes: e.StartupFilterMinutes,
			Source: types.SourceConfig, AutopilotEnabled: e.AutopilotEnabled,
		}
		if !w.Priority.Valid() {
			w.Priority = types.PriorityMedium
		}
		seen[w.ID] = w
	}

	if cfg.EnableAutoDiscovery {
		var hpas autoscalingv2.HorizontalPodAutoscalerList
		if err := d.k8s.List(ctx, &hpas); err != nil {
			return nil, err
		}
		for _, hpa := range hpas.Items {
			if d.controllerInstance != "" && hpa.Annotations[config.AnnotationControllerInstance] != d.controllerInstance {
				continue
			}
			w, ok := config.WorkloadFromAnnotations(hpa.Namespace, hpa.Spec.ScaleTargetRef.Name, hpa.Name, hpa.Annotations)
			if !ok {
				continue
			}
			if static, exists := seen[w.ID]; exists {
				if !types.PriorityTier(hpa.Annotations[config.AnnotationPriority]).Valid() {
					w.Priority = static.Priority
				}
				if _, set := hpa.Annotations[config.AnnotationStartupFilter]; !set {
					w.StartupFilterMinutes = static.StartupFilterMinutes
				}
				if _, set := hpa.Annotations[config.AnnotationAutopilot]; !set {
					w.AutopilotEnabled = static.AutopilotEnabled
				}
			}
			seen[w.ID] = w
		}
	}

	out := make([]types.Workload, 0, len(seen))
	for _, w := range seen {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Name < out[j].ID.Name })
	return out, nil
}

// CheckSelfServiceMonitor verifies the ServiceMonitor that exposes this
// controller's own metrics still exists, so an operator relying on
// Prometheus scraping the exporter's output finds out promptly if it was
// deleted out-of-band rather than silently losing observability.
func (d *Discoverer) CheckSelfServiceMonitor(ctx context.Context, namespace, name string) error {
	var sm promoperator.ServiceMonitor
	if err := d.k8s.Get(ctx, apitypes.NamespacedName{Namespace: namespace, Name: name}, &sm); err != nil {
		if apierrors.IsNotFound(err) {
			return errs.Wrap(errs.NotFound, err)
		}
		return err
	}
	return nil
}

// Reconcile drops any per-workload state (profiles, autopilot states)
// whose workload id is no longer present in current, per spec.md §3
// "Lifecycle": destroyed when the workload is no longer discovered.
func Reconcile[T any](current []types.Workload, state map[types.WorkloadID]T) {
	present := make(map[types.WorkloadID]bool, len(current))
	for _, w := range current {
		present[w.ID] = true
	}
	for id := range state {
		if !present[id] {
			delete(state, id)
		}
	}
}
