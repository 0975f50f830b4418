package discovery_test

import (
	"context"
	"testing"

	promoperator "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	"github.com/stretchr/testify/require"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/config"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/discovery"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

func newScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	s := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(s))
	require.NoError(t, promoperator.AddToScheme(s))
	return s
}

func TestDiscoverMergesStaticAndAnnotatedWorkloads(t *testing.T) {
	scheme := newScheme(t)
	minReplicas := int32(2)
	annotatedHPA := &autoscalingv2.HorizontalPodAutoscaler{
		ObjectMeta: metav1.ObjectMeta{
			Name: "web-hpa", Namespace: "ns",
			Annotations: map[string]string{
				config.AnnotationEnabled:  "true",
				config.AnnotationPriority: "high",
			},
		},
		Spec: autoscalingv2.HorizontalPodAutoscalerSpec{
			ScaleTargetRef: autoscalingv2.CrossVersionObjectReference{Name: "web"},
			MinReplicas:    &minReplicas,
		},
	}
	fakeClient := fake.NewClientBuilder().WithScheme(scheme).WithObjects(annotatedHPA).Build()

	disc := discovery.New(fakeClient, []discovery.StaticEntry{
		{Namespace: "ns", Name: "api", HPAName: "api-hpa", Priority: types.PriorityCritical},
	}, "")

	cfg := config.Default()
	cfg.EnableAutoDiscovery = true
	workloads, err := disc.Discover(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, workloads, 2)

	byName := map[string]types.Workload{}
	for _, w := range workloads {
		byName[w.ID.Name] = w
	}
	require.Equal(t, types.PriorityCritical, byName["api"].Priority)
	require.Equal(t, types.PriorityHigh, byName["web"].Priority)
}

func TestDiscoverIgnoresHPAsWithoutEnabledAnnotation(t *testing.T) {
	scheme := newScheme(t)
	hpa := &autoscalingv2.HorizontalPodAutoscaler{
		ObjectMeta: metav1.ObjectMeta{Name: "unrelated-hpa", Namespace: "ns"},
		Spec:       autoscalingv2.HorizontalPodAutoscalerSpec{ScaleTargetRef: autoscalingv2.CrossVersionObjectReference{Name: "unrelated"}},
	}
	fakeClient := fake.NewClientBuilder().WithScheme(scheme).WithObjects(hpa).Build()
	disc := discovery.New(fakeClient, nil, "")

	cfg := config.Default()
	cfg.EnableAutoDiscovery = true
	workloads, err := disc.Discover(context.Background(), cfg)
	require.NoError(t, err)
	require.Empty(t, workloads)
}

func TestCheckSelfServiceMonitorReportsNotFound(t *testing.T) {
	scheme := newScheme(t)
	fakeClient := fake.NewClientBuilder().WithScheme(scheme).Build()
	disc := discovery.New(fakeClient, nil, "")

	err := disc.CheckSelfServiceMonitor(context.Background(), "ns", "missing-monitor")
	require.Error(t, err)
}

func TestCheckSelfServiceMonitorFindsPresentMonitor(t *testing.T) {
	scheme := newScheme(t)
	sm := &promoperator.ServiceMonitor{ObjectMeta: metav1.ObjectMeta{Name: "present", Namespace: "ns"}}
	fakeClient := fake.NewClientBuilder().WithScheme(scheme).WithObjects(sm).Build()
	disc := discovery.New(fakeClient, nil, "")

	require.NoError(t, disc.CheckSelfServiceMonitor(context.Background(), "ns", "present"))
}

func TestReconcileDropsStateForUndiscoveredWorkloads(t *testing.T) {
	gone := types.WorkloadID{Namespace: "ns", Name: "gone", HPAName: "gone-hpa"}
	kept := types.WorkloadID{Namespace: "ns", Name: "kept", HPAName: "kept-hpa"}
	state := map[types.WorkloadID]int{gone: 1, kept: 2}
	discovery.Reconcile([]types.Workload{{ID: kept}}, state)
	require.NotContains(t, state, gone)
	require.Contains(t, state, kept)
}
