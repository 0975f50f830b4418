package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	promoperator "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	promapi "github.com/prometheus/client_golang/api"
	promapiv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prommodel "github.com/prometheus/common/model"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	"k8s.io/apimachinery/pkg/runtime"
	apitypes "k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/config"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/controlloop"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/discovery"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/exporter"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/metricsclient"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/store"
	wtypes "github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

var setupLog = ctrl.Log.WithName("setup")

func main() {
	var configFile, tssPath string
	flag.StringVar(&configFile, "config", "", "path to the YAML config file")
	flag.StringVar(&tssPath, "tss-path", "/var/lib/smart-hpa-controller/tss.db", "path to the embedded time-series store")
	flag.Parse()

	ctrl.SetLogger(zap.New())

	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		setupLog.Error(err, "unable to load config")
		os.Exit(1)
	}
	cfg = cfg.OverlayEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		setupLog.Error(err, "invalid config")
		os.Exit(1)
	}
	snapshot := config.NewSnapshot(cfg)

	tss, err := store.Open(tssPath)
	if err != nil {
		setupLog.Error(err, "unable to open time-series store")
		os.Exit(1)
	}
	defer tss.Close()

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		setupLog.Error(err, "unable to add client-go types to scheme")
		os.Exit(1)
	}
	if err := autoscalingv2.AddToScheme(scheme); err != nil {
		setupLog.Error(err, "unable to add autoscaling/v2 to scheme")
		os.Exit(1)
	}
	if err := promoperator.AddToScheme(scheme); err != nil {
		setupLog.Error(err, "unable to add monitoring/v1 to scheme")
		os.Exit(1)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{Scheme: scheme})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	promTransport := metricsclient.NewAuthTransport(http.DefaultTransport, metricsclient.AuthConfig{
		TenantID:    cfg.TenantID,
		BearerToken: os.Getenv("METRICS_BEARER_TOKEN"),
	})
	promClient, err := promapi.NewClient(promapi.Config{Address: cfg.MetricsEndpoint, RoundTripper: promTransport})
	if err != nil {
		setupLog.Error(err, "unable to build metrics store client")
		os.Exit(1)
	}

	metrClient := metricsclient.New(mgr.GetClient(), promapiv1.NewAPI(promClient), metricsclient.AuthConfig{TenantID: cfg.TenantID}, 0, 0)
	adapter := &loopMetricsAdapter{client: metrClient}

	controllerInstance := os.Getenv("CONTROLLER_INSTANCE")
	disc := discovery.New(mgr.GetClient(), nil, controllerInstance)
	emitter := exporter.InitMetrics(ctrlmetrics.Registry)

	loop := controlloop.New(snapshot, tss, adapter, disc, emitter)

	if err := mgr.Add(managerRunnable{loop}); err != nil {
		setupLog.Error(err, "unable to register control loop with manager")
		os.Exit(1)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

// managerRunnable adapts the Control Loop to controller-runtime's
// manager.Runnable so its lifetime is tied to leader election and
// graceful shutdown the same way the reconcilers are.
type managerRunnable struct {
	loop *controlloop.Loop
}

func (m managerRunnable) Start(ctx context.Context) error {
	m.loop.Run(ctx)
	return nil
}

// loopMetricsAdapter bridges metricsclient.Client's namespaced-name reads
// and writes to the Control Loop's WorkloadID-keyed MetricsSource
// interface, and resolves one cluster-wide pressure value (the busiest
// node's CPU utilization) from the Prometheus-compatible metrics store.
type loopMetricsAdapter struct {
	client *metricsclient.Client
}

func (a *loopMetricsAdapter) GatherWorkload(ctx context.Context, id wtypes.WorkloadID) (controlloop.WorkloadSnapshot, error) {
	hpa, err := a.client.ReadHPA(ctx, apitypes.NamespacedName{Namespace: id.Namespace, Name: id.HPAName})
	if err != nil {
		return controlloop.WorkloadSnapshot{}, err
	}
	dep, err := a.client.ReadDeployment(ctx, apitypes.NamespacedName{Namespace: id.Namespace, Name: id.Name})
	if err != nil {
		return controlloop.WorkloadSnapshot{}, err
	}
	pods, err := a.client.ListPods(ctx, id.Namespace, dep.PodSelector)
	if err != nil {
		return controlloop.WorkloadSnapshot{}, err
	}

	now := time.Now()
	obs := make([]controlloop.PodObservation, 0, len(pods))
	for _, p := range pods {
		age := 0.0
		if !p.StartTime.IsZero() {
			age = now.Sub(p.StartTime).Seconds()
		}
		obs = append(obs, controlloop.PodObservation{
			AgeSeconds:   age,
			Ready:        p.Ready,
			RestartCount: p.RestartCount,
			OOMKilled:    p.OOMKilled,
		})
	}

	return controlloop.WorkloadSnapshot{
		Pods:          obs,
		Replicas:      int32(len(pods)),
		HPA:           controlloop.HPAState{MinReplicas: hpa.MinReplicas, MaxReplicas: hpa.MaxReplicas, TargetPct: hpa.TargetPct},
		CPURequest:    dep.CPURequest,
		MemoryRequest: dep.MemoryRequest,
	}, nil
}

// nodePressureQuery yields each node's CPU utilization percent;
// ClusterPressure takes the maximum over the returned nodes (spec.md
// §4.6's pressure signal).
const nodePressureQuery = `100 - (avg by (node) (rate(node_cpu_seconds_total{mode="idle"}[5m])) * 100)`

func (a *loopMetricsAdapter) ClusterPressure(ctx context.Context) (float64, error) {
	val, err := a.client.QueryInstant(ctx, nodePressureQuery, time.Now())
	if err != nil {
		return 0, err
	}
	vec, ok := val.(prommodel.Vector)
	if !ok || len(vec) == 0 {
		return 0, nil
	}
	max := 0.0
	for _, sample := range vec {
		if v := float64(sample.Value); v > max {
			max = v
		}
	}
	return max, nil
}

func (a *loopMetricsAdapter) PatchHPATarget(ctx context.Context, id wtypes.WorkloadID, percent int32) error {
	return a.client.PatchHPATarget(ctx, apitypes.NamespacedName{Namespace: id.Namespace, Name: id.HPAName}, percent)
}

func (a *loopMetricsAdapter) PatchHPAMin(ctx context.Context, id wtypes.WorkloadID, n int32) error {
	return a.client.PatchHPAMin(ctx, apitypes.NamespacedName{Namespace: id.Namespace, Name: id.HPAName}, n)
}

func (a *loopMetricsAdapter) PatchDeploymentRequests(ctx context.Context, id wtypes.WorkloadID, cpuMilli, memMiB int64) error {
	return a.client.PatchDeploymentRequests(ctx, apitypes.NamespacedName{Namespace: id.Namespace, Name: id.Name}, cpuMilli, memMiB)
}
