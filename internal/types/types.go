// Package types defines the data model shared across the control loop:
// workload identity, samples, predictions, and the per-workload state
// records that the pre-scale manager and autopilot maintain in memory.
package types

import "time"

// PriorityTier governs HPA target bias and preemption rights.
type PriorityTier string

const (
	PriorityCritical   PriorityTier = "critical"
	PriorityHigh       PriorityTier = "high"
	PriorityMedium     PriorityTier = "medium"
	PriorityLow        PriorityTier = "low"
	PriorityBestEffort PriorityTier = "best_effort"
)

// Rank returns a total order for priority tiers: critical first.
func (p PriorityTier) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	case PriorityBestEffort:
		return 4
	default:
		return 2
	}
}

// Valid reports whether p is one of the five recognized tiers.
func (p PriorityTier) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityBestEffort:
		return true
	}
	return false
}

// WorkloadSource records whether a workload was declared via static
// config or discovered through HPA annotations.
type WorkloadSource string

const (
	SourceConfig     WorkloadSource = "config"
	SourceAnnotation WorkloadSource = "annotation"
)

// WorkloadID is the (namespace, name, hpa_name) triple identifying a workload.
type WorkloadID struct {
	Namespace string
	Name      string
	HPAName   string
}

// String renders the id as "namespace/name/hpa_name", used for map keys
// and log correlation.
func (w WorkloadID) String() string {
	return w.Namespace + "/" + w.Name + "/" + w.HPAName
}

// Workload is a discovered scaling target.
type Workload struct {
	ID                   WorkloadID
	Priority             PriorityTier
	StartupFilterMinutes int
	Source               WorkloadSource
	NodeSelector         map[string]string
	AutopilotEnabled     bool
}

// Sample is a single tick's observation for a workload, written by the
// Control Loop. Samples are the sole long-term state of the system.
type Sample struct {
	Workload         WorkloadID
	Timestamp        time.Time
	CPUMillicores    float64
	MemoryMiB        float64
	Replicas         int32
	HPATargetPercent int32
	NodeCPUPercent   float64
	CPURequest       int64
	MemoryRequest    int64
}

// Horizon is a forecast lead time.
type Horizon string

const (
	Horizon15m Horizon = "15m"
	Horizon30m Horizon = "30m"
	Horizon1h  Horizon = "1h"
	Horizon2h  Horizon = "2h"
	Horizon4h  Horizon = "4h"
)

// Minutes returns the horizon's length in minutes.
func (h Horizon) Minutes() float64 {
	switch h {
	case Horizon15m:
		return 15
	case Horizon30m:
		return 30
	case Horizon1h:
		return 60
	case Horizon2h:
		return 120
	case Horizon4h:
		return 240
	default:
		return 0
	}
}

// AllHorizons lists the five forecast horizons in ascending order.
var AllHorizons = []Horizon{Horizon15m, Horizon30m, Horizon1h, Horizon2h, Horizon4h}

// Prediction is an open or closed forecast record.
type Prediction struct {
	Workload     WorkloadID
	IssueTime    time.Time
	Horizon      Horizon
	Predicted    float64
	LowerBound   float64
	UpperBound   float64
	ModelTag     string
	Confidence   float64
	Closed       bool
	RealizedCPU  float64
	Accurate     bool
}

// TargetTime is when this prediction's horizon elapses.
func (p Prediction) TargetTime() time.Time {
	return p.IssueTime.Add(time.Duration(p.Horizon.Minutes()) * time.Minute)
}

// OptimalTarget is a learned HPA target percent for a workload, optionally
// stratified per hour-of-day (HourOfDay == -1 means unstratified).
type OptimalTarget struct {
	Workload    WorkloadID
	HourOfDay   int
	TargetPct   float64
	SampleCount int
	Confidence  float64
	LastUpdated time.Time
}

// PreScaleState is a state in the pre-scale manager's per-workload machine.
type PreScaleState string

const (
	PreScaleIdle        PreScaleState = "idle"
	PreScalePreScaling  PreScaleState = "pre_scaling"
	PreScaleRollingBack PreScaleState = "rolling_back"
)

// PreScaleProfile tracks one workload's minReplicas override lifecycle.
type PreScaleProfile struct {
	Workload                WorkloadID
	OriginalMin             int32
	OriginalMax             int32
	OriginalTargetPct       int32
	CurrentMin              int32
	State                   PreScaleState
	OverrideStart           time.Time
	RollbackAt              time.Time
	PreScaleCount           int
	SuccessfulPredictionCnt int
	Reason                  string
	Confidence              float64
}

// AutopilotLevel gates whether autopilot recommendations are computed,
// surfaced, or applied.
type AutopilotLevel string

const (
	AutopilotDisabled  AutopilotLevel = "disabled"
	AutopilotObserve   AutopilotLevel = "observe"
	AutopilotRecommend AutopilotLevel = "recommend"
	AutopilotApply     AutopilotLevel = "autopilot"
)

// LearningState is a stage in the autopilot baseline-learning machine.
type LearningState string

const (
	LearningNotStarted LearningState = "not_started"
	Learning           LearningState = "learning"
	LearningCompleted  LearningState = "completed"
	LearningGraduated  LearningState = "graduated"
)

// ResourceSnapshot is the pre-change state autopilot restores on rollback.
type ResourceSnapshot struct {
	ReplicaSetHash   string
	CPURequest       int64
	MemoryRequest    int64
	RestartCount     int32
	OOMKillCount     int32
	ReadyReplicas    int32
}

// AutopilotState is the per-workload resource-tuning lifecycle record.
type AutopilotState struct {
	Workload         WorkloadID
	LearningState    LearningState
	LearningStart    time.Time
	SampleCount      int
	BaselineCPUP95   float64
	BaselineMemP95   float64
	LastChangeTime   time.Time
	LastAppliedCPU   int64
	LastAppliedMem   int64
	PreChangeSnap    *ResourceSnapshot
	MonitorDeadline  time.Time
	CooldownExtended bool
}

// PatternTag classifies a workload's recent load shape.
type PatternTag string

const (
	PatternSteady           PatternTag = "steady"
	PatternBursty           PatternTag = "bursty"
	PatternPeriodic         PatternTag = "periodic"
	PatternGrowing          PatternTag = "growing"
	PatternDeclining        PatternTag = "declining"
	PatternWeeklySeasonal   PatternTag = "weekly_seasonal"
	PatternMonthlySeasonal  PatternTag = "monthly_seasonal"
	PatternEventDriven      PatternTag = "event_driven"
	PatternUnknown          PatternTag = "unknown"
)

// Decision is the recorded outcome of one workload's tick, including a
// refusal to act, which is a first-class outcome.
type Decision struct {
	Workload        WorkloadID
	Tick            time.Time
	Pattern         PatternTag
	ModelTag        string
	TargetWritten   int32
	TargetSkipped   bool
	SkipReason      string
	Degraded        bool
	PreScaleAction  string
	AutopilotAction string
}
