// Package metricsclient is the only component that speaks to the
// Prometheus-compatible metrics store and the Kubernetes API (spec.md
// §4.1). Every outbound query and mutation is rate-limited per target,
// retried with exponential backoff on transient failure, and guarded by
// a per-target circuit breaker.
package metricsclient

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	promapiv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prommodel "github.com/prometheus/common/model"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
	corev1 "k8s.io/api/core/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/errs"
)

// Target names the outbound collaborators each with their own limiter
// and breaker, per spec.md §4.1 and §5.
const (
	TargetMetrics    = "metrics"
	TargetKubernetes = "kubernetes"
)

// AuthConfig carries the optional tenant/auth parameters for a
// multi-tenant metrics store.
type AuthConfig struct {
	TenantID    string
	BearerToken string
	BasicUser   string
	BasicPass   string
	Headers     map[string]string
}

// guard bundles a rate limiter, retrier, and circuit breaker for one
// outbound target.
type guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]
}

func newGuard(qps float64, name string) *guard {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &guard{
		limiter: rate.NewLimiter(rate.Limit(qps), int(qps)+1),
		breaker: gobreaker.NewCircuitBreaker[any](st),
	}
}

// call runs fn through the limiter, breaker, and up to 3 attempts with
// exponential backoff (waits of 1s then 2s, each plus up to 250ms of
// jitter), classifying the final error per errs.Classify.
func (g *guard) call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.TransientExternal, err)
	}
	res, err := g.breaker.Execute(func() (any, error) {
		return retry.DoWithData(
			func() (any, error) { return fn(ctx) },
			retry.Context(ctx),
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
			retry.MaxJitter(250*time.Millisecond),
			retry.RetryIf(func(err error) bool {
				return errs.Classify(err) == errs.TransientExternal
			}),
			retry.LastErrorOnly(true),
		)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errs.Wrap(errs.TransientExternal, fmt.Errorf("%w: %s", errs.ErrCircuitOpen, g.breaker.Name()))
		}
		return nil, errs.Wrap(errs.Classify(err), err)
	}
	return res, nil
}

// Client is the Metrics Client: a rate-limited, retrying, circuit-broken
// wrapper over Prometheus reads and Kubernetes reads/writes.
type Client struct {
	k8s   client.Client
	prom  promapiv1.API
	auth  AuthConfig
	kube  *guard
	metr  *guard
}

// New constructs a Client with the default 10 QPS metrics / 20 QPS
// Kubernetes token buckets (spec.md §4.1), overridable via qps.
func New(k8s client.Client, prom promapiv1.API, auth AuthConfig, metricsQPS, kubeQPS float64) *Client {
	if metricsQPS <= 0 {
		metricsQPS = 10
	}
	if kubeQPS <= 0 {
		kubeQPS = 20
	}
	return &Client{
		k8s:  k8s,
		prom: prom,
		auth: auth,
		kube: newGuard(kubeQPS, TargetKubernetes),
		metr: newGuard(metricsQPS, TargetMetrics),
	}
}

// QueryInstant evaluates promql at the given time.
func (c *Client) QueryInstant(ctx context.Context, promql string, at time.Time) (prommodel.Value, error) {
	res, err := c.metr.call(ctx, func(ctx context.Context) (any, error) {
		v, _, err := c.prom.Query(ctx, promql, at)
		return v, err
	})
	if err != nil {
		return nil, err
	}
	return res.(prommodel.Value), nil
}

// QueryRange evaluates promql over [start,end] at the given step.
func (c *Client) QueryRange(ctx context.Context, promql string, start, end time.Time, step time.Duration) (prommodel.Value, error) {
	r := promapiv1.Range{Start: start, End: end, Step: step}
	res, err := c.metr.call(ctx, func(ctx context.Context) (any, error) {
		v, _, err := c.prom.QueryRange(ctx, promql, r)
		return v, err
	})
	if err != nil {
		return nil, err
	}
	return res.(prommodel.Value), nil
}

// HPAView is the subset of an HPA the control loop reads.
type HPAView struct {
	MinReplicas int32
	MaxReplicas int32
	TargetPct   int32
}

// ReadHPA fetches the current minReplicas/maxReplicas/target for id.
func (c *Client) ReadHPA(ctx context.Context, id types.NamespacedName) (HPAView, error) {
	res, err := c.kube.call(ctx, func(ctx context.Context) (any, error) {
		var hpa autoscalingv2.HorizontalPodAutoscaler
		if err := c.k8s.Get(ctx, id, &hpa); err != nil {
			if apierrors.IsNotFound(err) {
				return nil, errs.Wrap(errs.NotFound, err)
			}
			return nil, err
		}
		view := HPAView{MinReplicas: 1, MaxReplicas: hpa.Spec.MaxReplicas}
		if hpa.Spec.MinReplicas != nil {
			view.MinReplicas = *hpa.Spec.MinReplicas
		}
		for _, m := range hpa.Spec.Metrics {
			if m.Type == autoscalingv2.ResourceMetricSourceType && m.Resource != nil &&
				m.Resource.Name == corev1.ResourceCPU && m.Resource.Target.AverageUtilization != nil {
				view.TargetPct = *m.Resource.Target.AverageUtilization
			}
		}
		return view, nil
	})
	if err != nil {
		return HPAView{}, err
	}
	return res.(HPAView), nil
}

// PatchHPATarget writes spec.metrics[*].resource.target.averageUtilization
// for the CPU resource metric.
func (c *Client) PatchHPATarget(ctx context.Context, id types.NamespacedName, percent int32) error {
	_, err := c.kube.call(ctx, func(ctx context.Context) (any, error) {
		var hpa autoscalingv2.HorizontalPodAutoscaler
		if err := c.k8s.Get(ctx, id, &hpa); err != nil {
			if apierrors.IsNotFound(err) {
				return nil, errs.Wrap(errs.NotFound, err)
			}
			return nil, err
		}
		original := hpa.DeepCopy()
		updated := false
		for i, m := range hpa.Spec.Metrics {
			if m.Type == autoscalingv2.ResourceMetricSourceType && m.Resource != nil && m.Resource.Name == corev1.ResourceCPU {
				p := percent
				hpa.Spec.Metrics[i].Resource.Target.AverageUtilization = &p
				updated = true
			}
		}
		if !updated {
			return nil, errs.Wrap(errs.NotFound, fmt.Errorf("hpa %s has no cpu resource metric", id))
		}
		return nil, c.k8s.Patch(ctx, &hpa, client.MergeFrom(original))
	})
	return err
}

// PatchHPAMin writes spec.minReplicas.
func (c *Client) PatchHPAMin(ctx context.Context, id types.NamespacedName, n int32) error {
	_, err := c.kube.call(ctx, func(ctx context.Context) (any, error) {
		var hpa autoscalingv2.HorizontalPodAutoscaler
		if err := c.k8s.Get(ctx, id, &hpa); err != nil {
			if apierrors.IsNotFound(err) {
				return nil, errs.Wrap(errs.NotFound, err)
			}
			return nil, err
		}
		original := hpa.DeepCopy()
		hpa.Spec.MinReplicas = &n
		return nil, c.k8s.Patch(ctx, &hpa, client.MergeFrom(original))
	})
	return err
}

// DeploymentView is the subset of a Deployment the control loop reads.
type DeploymentView struct {
	NodeSelector map[string]string
	PodSelector  map[string]string
	CPURequest   int64
	MemoryRequest int64
}

// ReadDeployment fetches node selector and first-container requests.
func (c *Client) ReadDeployment(ctx context.Context, id types.NamespacedName) (DeploymentView, error) {
	res, err := c.kube.call(ctx, func(ctx context.Context) (any, error) {
		var d appsv1.Deployment
		if err := c.k8s.Get(ctx, id, &d); err != nil {
			if apierrors.IsNotFound(err) {
				return nil, errs.Wrap(errs.NotFound, err)
			}
			return nil, err
		}
		view := DeploymentView{NodeSelector: d.Spec.Template.Spec.NodeSelector}
		if d.Spec.Selector != nil {
			view.PodSelector = d.Spec.Selector.MatchLabels
		}
		if len(d.Spec.Template.Spec.Containers) > 0 {
			req := d.Spec.Template.Spec.Containers[0].Resources.Requests
			view.CPURequest = req.Cpu().MilliValue()
			view.MemoryRequest = req.Memory().Value() / (1024 * 1024)
		}
		return view, nil
	})
	if err != nil {
		return DeploymentView{}, err
	}
	return res.(DeploymentView), nil
}

// PatchDeploymentRequests writes container[0].resources.requests for cpu
// (millicores) and memory (MiB). Never touches resources.limits.
func (c *Client) PatchDeploymentRequests(ctx context.Context, id types.NamespacedName, cpuMilli, memMiB int64) error {
	_, err := c.kube.call(ctx, func(ctx context.Context) (any, error) {
		var d appsv1.Deployment
		if err := c.k8s.Get(ctx, id, &d); err != nil {
			if apierrors.IsNotFound(err) {
				return nil, errs.Wrap(errs.NotFound, err)
			}
			return nil, err
		}
		if len(d.Spec.Template.Spec.Containers) == 0 {
			return nil, errs.Wrap(errs.InternalAssertion, fmt.Errorf("deployment %s has no containers", id))
		}
		original := d.DeepCopy()
		setRequests(&d.Spec.Template.Spec.Containers[0], cpuMilli, memMiB)
		return nil, c.k8s.Patch(ctx, &d, client.MergeFrom(original))
	})
	return err
}

// PodView is the subset of pod status the control loop reads for
// maturity filtering and autopilot monitoring.
type PodView struct {
	Name         string
	StartTime    time.Time
	Ready        bool
	RestartCount int32
	OOMKilled    bool
}

// ListPods returns pod views for the deployment's selector-matched pods.
func (c *Client) ListPods(ctx context.Context, namespace string, selector map[string]string) ([]PodView, error) {
	res, err := c.kube.call(ctx, func(ctx context.Context) (any, error) {
		var pods corev1.PodList
		if err := c.k8s.List(ctx, &pods, client.InNamespace(namespace), client.MatchingLabels(selector)); err != nil {
			return nil, err
		}
		views := make([]PodView, 0, len(pods.Items))
		for _, p := range pods.Items {
			v := PodView{Name: p.Name}
			if p.Status.StartTime != nil {
				v.StartTime = p.Status.StartTime.Time
			}
			ready := false
			var restarts int32
			oom := false
			for _, cs := range p.Status.ContainerStatuses {
				if cs.Ready {
					ready = true
				}
				restarts += cs.RestartCount
				if cs.LastTerminationState.Terminated != nil && cs.LastTerminationState.Terminated.Reason == "OOMKilled" {
					oom = true
				}
			}
			v.Ready = ready
			v.RestartCount = restarts
			v.OOMKilled = oom
			views = append(views, v)
		}
		return views, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]PodView), nil
}

// NodeView is the subset of node capacity the control loop reads for
// cluster-pressure computation.
type NodeView struct {
	Name             string
	Labels           map[string]string
	CPUCapacity      int64
	CPUAllocatable   int64
	CPUUsedPercent   float64
}

// ListNodes returns every node's capacity view. CPUUsedPercent must be
// filled in by the caller from a metrics-store query; this call only
// resolves the Kubernetes-side static fields.
func (c *Client) ListNodes(ctx context.Context) ([]NodeView, error) {
	res, err := c.kube.call(ctx, func(ctx context.Context) (any, error) {
		var nodes corev1.NodeList
		if err := c.k8s.List(ctx, &nodes); err != nil {
			return nil, err
		}
		views := make([]NodeView, 0, len(nodes.Items))
		for _, n := range nodes.Items {
			views = append(views, NodeView{
				Name:           n.Name,
				Labels:         n.Labels,
				CPUCapacity:    n.Status.Capacity.Cpu().MilliValue(),
				CPUAllocatable: n.Status.Allocatable.Cpu().MilliValue(),
			})
		}
		return views, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]NodeView), nil
}

func setRequests(ctr *corev1.Container, cpuMilli, memMiB int64) {
	if ctr.Resources.Requests == nil {
		ctr.Resources.Requests = corev1.ResourceList{}
	}
	ctr.Resources.Requests[corev1.ResourceCPU] = *resourceQuantityMilli(cpuMilli)
	ctr.Resources.Requests[corev1.ResourceMemory] = *resourceQuantityMiB(memMiB)
}
