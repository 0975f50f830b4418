// Package config loads process configuration from environment variables
// and an optional YAML file, and layers per-workload HPA annotation
// overrides on top with explicit precedence: annotation > per-workload
// config > global default. A hot-reloaded config that fails to parse
// never replaces the active snapshot.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/errs"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

// Global is the process-wide control-loop configuration. Every numeric
// knob from spec.md §4.8 and §6 lives here with its documented default.
type Global struct {
	CheckIntervalSeconds  int     `yaml:"checkIntervalSeconds"`
	TargetNodeUtilization float64 `yaml:"targetNodeUtilization"`

	EnablePredictive    bool `yaml:"enablePredictive"`
	EnablePreScale      bool `yaml:"enablePreScale"`
	EnableAutopilot     bool `yaml:"enableAutopilot"`
	EnableAutoDiscovery bool `yaml:"enableAutoDiscovery"`

	AutopilotLevel         types.AutopilotLevel `yaml:"autopilotLevel"`
	LearnDays              int                  `yaml:"learnDays"`
	CPUBufferPct           float64              `yaml:"cpuBufferPct"`
	MemBufferPct           float64              `yaml:"memBufferPct"`
	MinCPURequest          int64                `yaml:"minCPURequest"`
	MinMemRequest          int64                `yaml:"minMemRequest"`
	MaxChangePercent       float64              `yaml:"maxChangePercent"`
	AutopilotMinConfidence float64              `yaml:"autopilotMinConfidence"`
	CooldownHours          float64              `yaml:"cooldownHours"`
	MonitorMinutes         float64              `yaml:"monitorMinutes"`
	MaxRestartIncrease     int32                `yaml:"maxRestartIncrease"`
	MaxOOMIncrease         int32                `yaml:"maxOOMIncrease"`
	MaxReadinessDropPct    float64              `yaml:"maxReadinessDropPct"`

	PreScaleThreshold       float64 `yaml:"preScaleThreshold"`
	PreScaleMinConfidence   float64 `yaml:"preScaleMinConfidence"`
	PreScaleRollbackMinutes float64 `yaml:"preScaleRollbackMinutes"`
	PreScaleCooldownMinutes float64 `yaml:"preScaleCooldownMinutes"`
	PreScaleMaxHorizon      types.Horizon `yaml:"preScaleMaxHorizon"`

	PredictionMinAccuracy float64 `yaml:"predictionMinAccuracy"`
	PredictionMinSamples  int     `yaml:"predictionMinSamples"`

	MinTargetPercent int32 `yaml:"minTargetPercent"`
	MaxTargetPercent int32 `yaml:"maxTargetPercent"`

	MetricsEndpoint string `yaml:"metricsEndpoint"`
	TenantID        string `yaml:"tenantID"`

	SuppressWritesForGitOps bool `yaml:"suppressWritesForGitOps"`

	BoundedConcurrency int `yaml:"boundedConcurrency"`

	SelfServiceMonitorNamespace string `yaml:"selfServiceMonitorNamespace"`
	SelfServiceMonitorName      string `yaml:"selfServiceMonitorName"`
}

// Default returns the configuration with every spec-mandated default
// value populated.
func Default() Global {
	return Global{
		CheckIntervalSeconds:  60,
		TargetNodeUtilization: 70,

		EnablePredictive:    true,
		EnablePreScale:      true,
		EnableAutopilot:     false,
		EnableAutoDiscovery: true,

		AutopilotLevel:         types.AutopilotDisabled,
		LearnDays:              14,
		CPUBufferPct:           0.20,
		MemBufferPct:           0.25,
		MinCPURequest:          50,
		MinMemRequest:          64,
		MaxChangePercent:       30,
		AutopilotMinConfidence: 0.80,
		CooldownHours:          24,
		MonitorMinutes:         10,
		MaxRestartIncrease:     2,
		MaxOOMIncrease:         1,
		MaxReadinessDropPct:    20,

		PreScaleThreshold:       75,
		PreScaleMinConfidence:   0.70,
		PreScaleRollbackMinutes: 60,
		PreScaleCooldownMinutes: 15,
		PreScaleMaxHorizon:      types.Horizon1h,

		PredictionMinAccuracy: 0.70,
		PredictionMinSamples:  20,

		MinTargetPercent: 20,
		MaxTargetPercent: 95,

		BoundedConcurrency: 8,
	}
}

// Validate enforces the numeric ranges spec.md fixes; an invalid config
// is rejected at load (fail-fast on startup, reject-and-keep-previous on
// hot reload).
func (g Global) Validate() error {
	if g.CheckIntervalSeconds < 10 || g.CheckIntervalSeconds > 3600 {
		return errs.Wrap(errs.InvalidConfig, fmt.Errorf("checkIntervalSeconds %d out of [10,3600]", g.CheckIntervalSeconds))
	}
	if g.TargetNodeUtilization < 10 || g.TargetNodeUtilization > 95 {
		return errs.Wrap(errs.InvalidConfig, fmt.Errorf("targetNodeUtilization %v out of [10,95]", g.TargetNodeUtilization))
	}
	if g.MinTargetPercent < 1 || g.MaxTargetPercent > 100 || g.MinTargetPercent >= g.MaxTargetPercent {
		return errs.Wrap(errs.InvalidConfig, fmt.Errorf("target bounds [%d,%d] invalid", g.MinTargetPercent, g.MaxTargetPercent))
	}
	switch g.AutopilotLevel {
	case types.AutopilotDisabled, types.AutopilotObserve, types.AutopilotRecommend, types.AutopilotApply:
	default:
		return errs.Wrap(errs.InvalidConfig, fmt.Errorf("autopilotLevel %q invalid", g.AutopilotLevel))
	}
	if g.BoundedConcurrency < 1 {
		return errs.Wrap(errs.InvalidConfig, fmt.Errorf("boundedConcurrency must be >= 1"))
	}
	return nil
}

// LoadFromFile parses a YAML file into a Global seeded with defaults.
func LoadFromFile(path string) (Global, error) {
	g := Default()
	if path == "" {
		return g, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return g, errs.Wrap(errs.InvalidConfig, err)
	}
	if err := yaml.Unmarshal(b, &g); err != nil {
		return g, errs.Wrap(errs.InvalidConfig, err)
	}
	if err := g.Validate(); err != nil {
		return g, err
	}
	return g, nil
}

// OverlayEnv applies recognized environment variables on top of g,
// returning a new value (env takes precedence over file defaults but is
// itself the global layer, still below annotations).
func (g Global) OverlayEnv(lookup func(string) (string, bool)) Global {
	out := g
	if v, ok := lookup("CHECK_INTERVAL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			out.CheckIntervalSeconds = n
		}
	}
	if v, ok := lookup("TARGET_NODE_UTILIZATION"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out.TargetNodeUtilization = f
		}
	}
	if v, ok := lookup("ENABLE_PREDICTIVE"); ok {
		out.EnablePredictive = parseBool(v, out.EnablePredictive)
	}
	if v, ok := lookup("ENABLE_PRESCALE"); ok {
		out.EnablePreScale = parseBool(v, out.EnablePreScale)
	}
	if v, ok := lookup("ENABLE_AUTOPILOT"); ok {
		out.EnableAutopilot = parseBool(v, out.EnableAutopilot)
	}
	if v, ok := lookup("ENABLE_AUTO_DISCOVERY"); ok {
		out.EnableAutoDiscovery = parseBool(v, out.EnableAutoDiscovery)
	}
	if v, ok := lookup("AUTOPILOT_LEVEL"); ok {
		out.AutopilotLevel = types.AutopilotLevel(v)
	}
	if v, ok := lookup("PRESCALE_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out.PreScaleThreshold = f
		}
	}
	if v, ok := lookup("PRESCALE_MIN_CONFIDENCE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out.PreScaleMinConfidence = f
		}
	}
	if v, ok := lookup("PRESCALE_ROLLBACK_MINUTES"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out.PreScaleRollbackMinutes = f
		}
	}
	if v, ok := lookup("PRESCALE_COOLDOWN_MINUTES"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out.PreScaleCooldownMinutes = f
		}
	}
	if v, ok := lookup("PREDICTION_MIN_ACCURACY"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out.PredictionMinAccuracy = f
		}
	}
	if v, ok := lookup("PREDICTION_MIN_SAMPLES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			out.PredictionMinSamples = n
		}
	}
	if v, ok := lookup("METRICS_ENDPOINT"); ok {
		out.MetricsEndpoint = v
	}
	if v, ok := lookup("METRICS_TENANT_ID"); ok {
		out.TenantID = v
	}
	return out
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Annotation keys recognized on the HPA object when auto-discovery is on.
const (
	AnnotationEnabled      = "smart-autoscaler.io/enabled"
	AnnotationPriority     = "smart-autoscaler.io/priority"
	AnnotationStartupFilter = "smart-autoscaler.io/startup-filter"
	AnnotationAutopilot    = "smart-autoscaler.io/autopilot"
	// AnnotationControllerInstance isolates workloads between co-existing
	// controller deployments, mirroring the teacher's multi-instance label.
	AnnotationControllerInstance = "smart-autoscaler.io/controller-instance"
)

// WorkloadFromAnnotations builds a Workload from an HPA's annotation set,
// applying the documented defaults for any annotation left unset. Returns
// false if the workload is not enabled for auto-discovery.
func WorkloadFromAnnotations(namespace, name, hpaName string, annotations map[string]string) (types.Workload, bool) {
	if annotations[AnnotationEnabled] != "true" {
		return types.Workload{}, false
	}
	w := types.Workload{
		ID: types.WorkloadID{
			Namespace: namespace,
			Name:      name,
			HPAName:   hpaName,
		},
		Priority:             types.PriorityMedium,
		StartupFilterMinutes: 2,
		Source:               types.SourceAnnotation,
	}
	if p := types.PriorityTier(annotations[AnnotationPriority]); p.Valid() {
		w.Priority = p
	}
	if v, ok := annotations[AnnotationStartupFilter]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 60 {
			w.StartupFilterMinutes = n
		}
	}
	w.AutopilotEnabled = parseBool(annotations[AnnotationAutopilot], false)
	return w, true
}

// Snapshot is a mutex-guarded holder for the active Global, the only
// justified global alongside the TSS handle and the Metrics Client
// (spec.md §9).
type Snapshot struct {
	mu  sync.RWMutex
	cur Global
}

// NewSnapshot seeds a Snapshot with an initial, already-validated config.
func NewSnapshot(initial Global) *Snapshot {
	return &Snapshot{cur: initial}
}

// Get returns the currently active configuration.
func (s *Snapshot) Get() Global {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Reload validates candidate and swaps it in; on validation failure the
// previous snapshot remains active and the error is returned.
func (s *Snapshot) Reload(candidate Global) error {
	if err := candidate.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = candidate
	return nil
}
