// Package controlloop implements the Control Loop (spec.md §4.9, §5):
// one sequential tick that orders workloads by priority and runs
// gather -> classify -> predict -> decide -> act -> record per workload,
// with bounded-concurrency I/O and never-overlapping ticks.
//
// The tick function's shape — read config, list active workloads, group
// and analyze, convert to decisions, apply — is grounded on the
// teacher's internal/engines/saturation/engine.go Engine.optimize(); the
// never-overlap guard follows the teacher's NewPollingExecutor wiring in
// NewEngine.
package controlloop

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/arbiter"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/autopilot"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/classifier"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/config"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/discovery"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/errs"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/exporter"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/forecast"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/prescale"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/store"
	wtypes "github.com/smart-autoscaler/smart-hpa-controller/internal/types"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/validator"
)

// PodObservation is one pod's age and CPU/memory usage, as gathered from
// the Metrics Client.
type PodObservation struct {
	AgeSeconds    float64
	CPUMillicores float64
	MemoryMiB     float64
	Ready         bool
	RestartCount  int32
	OOMKilled     bool
}

// WorkloadSnapshot is everything the Metrics Client gathers for one
// workload in a tick.
type WorkloadSnapshot struct {
	Pods            []PodObservation
	Replicas        int32
	HPA             HPAState
	CPURequest      int64
	MemoryRequest   int64
}

// HPAState is the subset of HPA state the loop reads and writes.
type HPAState struct {
	MinReplicas int32
	MaxReplicas int32
	TargetPct   int32
}

// MetricsSource is the narrow interface the Control Loop needs from the
// Metrics Client (spec.md §4.1); kept separate from the concrete client
// so the loop can be driven by fakes in tests.
type MetricsSource interface {
	GatherWorkload(ctx context.Context, id wtypes.WorkloadID) (WorkloadSnapshot, error)
	ClusterPressure(ctx context.Context) (float64, error)
	PatchHPATarget(ctx context.Context, id wtypes.WorkloadID, percent int32) error
	PatchHPAMin(ctx context.Context, id wtypes.WorkloadID, n int32) error
	PatchDeploymentRequests(ctx context.Context, id wtypes.WorkloadID, cpuMilli, memMiB int64) error
}

// Loop is the Control Loop. It owns the only in-memory mutable state
// that is not the TSS: per-workload pre-scale profiles and autopilot
// states, all guarded by the Loop's single mutex.
type Loop struct {
	cfg        *config.Snapshot
	tss        *store.Store
	metrics    MetricsSource
	discoverer *discovery.Discoverer
	emitter    *exporter.Emitter

	mu              sync.Mutex
	profiles        map[wtypes.WorkloadID]*wtypes.PreScaleProfile
	autopilotStates map[wtypes.WorkloadID]*wtypes.AutopilotState
	lastHPAWrite    map[wtypes.WorkloadID]time.Time
	lastPreemption  map[wtypes.WorkloadID]time.Time
	modelAccuracy   map[wtypes.WorkloadID][]forecast.ModelAccuracy

	running atomic.Bool
	nowFunc func() time.Time
}

// New constructs a Loop with the three justified process-scoped globals
// (TSS, Metrics Client, config snapshot) passed in explicitly rather
// than held as package globals (spec.md §9).
func New(cfg *config.Snapshot, tss *store.Store, metrics MetricsSource, discoverer *discovery.Discoverer, emitter *exporter.Emitter) *Loop {
	return &Loop{
		cfg:             cfg,
		tss:             tss,
		metrics:         metrics,
		discoverer:      discoverer,
		emitter:         emitter,
		profiles:        map[wtypes.WorkloadID]*wtypes.PreScaleProfile{},
		autopilotStates: map[wtypes.WorkloadID]*wtypes.AutopilotState{},
		lastHPAWrite:    map[wtypes.WorkloadID]time.Time{},
		lastPreemption:  map[wtypes.WorkloadID]time.Time{},
		modelAccuracy:   map[wtypes.WorkloadID][]forecast.ModelAccuracy{},
		nowFunc:         time.Now,
	}
}

// Run drives ticks on cfg.CheckIntervalSeconds until ctx is cancelled.
// If a tick overruns the interval, the next tick is skipped rather than
// allowed to overlap (spec.md §4.9).
func (l *Loop) Run(ctx context.Context) {
	log := ctrl.LoggerFrom(ctx)
	interval := time.Duration(l.cfg.Get().CheckIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.running.CompareAndSwap(false, true) {
				log.V(1).Info("tick overran interval, skipping")
				continue
			}
			func() {
				defer l.running.Store(false)
				if err := l.Tick(ctx); err != nil {
					log.Error(err, "tick failed")
				}
			}()
		}
	}
}

// Tick runs one full iteration of steps 1-6 of spec.md §4.9.
func (l *Loop) Tick(ctx context.Context) error {
	now := l.nowFunc()
	cfg := l.cfg.Get()

	workloads, err := l.discoverer.Discover(ctx, cfg)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	if cfg.SelfServiceMonitorName != "" {
		if err := l.discoverer.CheckSelfServiceMonitor(ctx, cfg.SelfServiceMonitorNamespace, cfg.SelfServiceMonitorName); err != nil {
			ctrl.LoggerFrom(ctx).Error(err, "self metrics ServiceMonitor missing, Prometheus will stop scraping this controller")
		}
	}
	l.mu.Lock()
	discovery.Reconcile(workloads, l.profiles)
	discovery.Reconcile(workloads, l.autopilotStates)
	l.mu.Unlock()

	pressure, err := l.metrics.ClusterPressure(ctx)
	degradedCluster := false
	if err != nil {
		if errs.KindOf(err) == errs.TransientExternal {
			degradedCluster = true
			pressure = 0
		} else {
			return fmt.Errorf("cluster pressure: %w", err)
		}
	}

	ordered := arbiter.Order(toOrdered(workloads))
	byID := map[wtypes.WorkloadID]wtypes.Workload{}
	for _, w := range workloads {
		byID[w.ID] = w
	}

	snapshots := l.gatherConcurrently(ctx, ordered, cfg.BoundedConcurrency)

	hadCriticalOrHigh := false
	for _, ow := range ordered {
		if ow.Priority == wtypes.PriorityCritical || ow.Priority == wtypes.PriorityHigh {
			hadCriticalOrHigh = true
			break
		}
	}

	for _, ow := range ordered {
		w := byID[ow.ID]
		snap, gatherErr := snapshots[w.ID].snap, snapshots[w.ID].err
		decision := l.processWorkload(ctx, now, cfg, w, snap, gatherErr, pressure, degradedCluster, hadCriticalOrHigh)
		l.mu.Lock()
		currentMin := int32(0)
		if p, ok := l.profiles[w.ID]; ok && p.State != wtypes.PreScaleIdle {
			currentMin = p.CurrentMin
			decision.PreScaleAction = string(p.State)
		}
		l.mu.Unlock()
		if l.emitter != nil {
			l.emitter.EmitDecision(decision, currentMin)
		}
	}

	l.runValidatorPass(now)
	return nil
}

type gatherResult struct {
	snap WorkloadSnapshot
	err  error
}

// gatherConcurrently fetches every workload's snapshot with bounded
// concurrency (spec.md §5 default 8), while leaving the caller free to
// process mutation steps strictly in priority order afterward.
func (l *Loop) gatherConcurrently(ctx context.Context, ordered []arbiter.OrderedWorkload, bound int) map[wtypes.WorkloadID]gatherResult {
	if bound <= 0 {
		bound = 8
	}
	results := make(map[wtypes.WorkloadID]gatherResult, len(ordered))
	var mu sync.Mutex
	sem := make(chan struct{}, bound)
	var wg sync.WaitGroup
	for _, ow := range ordered {
		wg.Add(1)
		sem <- struct{}{}
		go func(id wtypes.WorkloadID) {
			defer wg.Done()
			defer func() { <-sem }()
			snap, err := l.metrics.GatherWorkload(ctx, id)
			mu.Lock()
			results[id] = gatherResult{snap: snap, err: err}
			mu.Unlock()
		}(ow.ID)
	}
	wg.Wait()
	return results
}

func toOrdered(workloads []wtypes.Workload) []arbiter.OrderedWorkload {
	out := make([]arbiter.OrderedWorkload, len(workloads))
	for i, w := range workloads {
		out[i] = arbiter.OrderedWorkload{ID: w.ID, Priority: w.Priority}
	}
	return out
}

// processWorkload runs steps (a)-(h) of spec.md §4.9 for one workload.
func (l *Loop) processWorkload(ctx context.Context, now time.Time, cfg config.Global, w wtypes.Workload, snap WorkloadSnapshot, gatherErr error, pressure float64, degradedCluster bool, hadCriticalOrHigh bool) wtypes.Decision {
	decision := wtypes.Decision{Workload: w.ID, Tick: now, Degraded: degradedCluster}

	if gatherErr != nil {
		if errs.KindOf(gatherErr) == errs.NotFound {
			decision.TargetSkipped = true
			decision.SkipReason = "workload not found"
			return decision
		}
		decision.Degraded = true
		decision.TargetSkipped = true
		decision.SkipReason = "metrics gather failed"
		return decision
	}

	// (a) mature-pod CPU average.
	cpuAvg, matureConfidenceAttenuation := matureCPUAverage(snap.Pods, w.StartupFilterMinutes)

	// (b) append sample.
	sample := wtypes.Sample{
		Workload: w.ID, Timestamp: now, CPUMillicores: cpuAvg,
		Replicas: snap.Replicas, HPATargetPercent: snap.HPA.TargetPct,
		NodeCPUPercent: pressure, CPURequest: snap.CPURequest, MemoryRequest: snap.MemoryRequest,
	}
	if err := l.tss.AppendSample(sample); err != nil {
		decision.TargetSkipped = true
		decision.SkipReason = "tss append failed"
		decision.Degraded = true
	}

	var predictions []wtypes.Prediction
	pattern := wtypes.PatternUnknown
	history, _ := l.tss.ReadRange(w.ID, now.Add(-24*time.Hour), now)

	if cfg.EnablePredictive && len(history) > 0 {
		res := classifier.Classify(history, nil)
		pattern = res.Pattern
		decision.Pattern = pattern

		n := len(history)
		cv := coefficientOfVariation(history)
		hasSeasonality := pattern == wtypes.PatternWeeklySeasonal || pattern == wtypes.PatternMonthlySeasonal || pattern == wtypes.PatternPeriodic
		hasTrend := pattern == wtypes.PatternGrowing || pattern == wtypes.PatternDeclining
		modelName := forecast.Select(n, cv, hasSeasonality, hasTrend, l.modelAccuracyFor(w.ID))
		decision.ModelTag = modelName

		points := toForecastPoints(history, now)
		model := modelByName(modelName)
		if model.Fit(points) {
			for _, h := range wtypes.AllHorizons {
				p := model.Predict(h.Minutes())
				p.Confidence *= matureConfidenceAttenuation
				pred := forecast.ToTypesPrediction(w.ID, now, h, modelName, p)
				predictions = append(predictions, pred)
				_ = l.tss.AppendPrediction(pred)
			}
		}
	}

	// Validator-trusted optimal-target auto-tuning (spec.md §3, §4.9(d)):
	// relearn from the full retention window and persist each tick so
	// GetOptimalTarget below has something to read once enough history
	// has accumulated.
	if longHistory, err := l.tss.ReadRange(w.ID, now.Add(-store.Retention), now); err == nil {
		if opt, ok := validator.LearnOptimalTarget(w.ID, longHistory, -1, now); ok {
			_ = l.tss.PutOptimalTarget(opt)
		}
	}

	// (d) recommended HPA target. Cluster-pressure correction is folded
	// into arbiter.AdjustedTarget already (spec.md §4.6); it is not
	// applied a second time here.
	baseTarget := arbiter.AdjustedTarget(w.Priority, pressure, cfg.MinTargetPercent, cfg.MaxTargetPercent)
	target := baseTarget
	if opt, found, _ := l.tss.GetOptimalTarget(w.ID, -1); found && opt.Confidence >= 0.8 && opt.SampleCount >= daysToTickCount(7, cfg.CheckIntervalSeconds) {
		target = clampTarget(int32(math.Round(opt.TargetPct)), cfg.MinTargetPercent, cfg.MaxTargetPercent)
	}

	l.mu.Lock()
	lastPreempt := l.lastPreemption[w.ID]
	l.mu.Unlock()
	if delta, preempted := arbiter.Preemption(w.Priority, pressure, hadCriticalOrHigh, lastPreempt, now); preempted {
		target = clampTarget(target+delta, cfg.MinTargetPercent, cfg.MaxTargetPercent)
		l.mu.Lock()
		l.lastPreemption[w.ID] = now
		l.mu.Unlock()
	}

	decisionConfidence := 0.6 * matureConfidenceAttenuation
	if degradedCluster {
		decisionConfidence = 0
	}

	// (e) patch HPA target if change is significant, cooldown satisfied, confidence sufficient.
	l.mu.Lock()
	lastWrite := l.lastHPAWrite[w.ID]
	l.mu.Unlock()
	change := int32(math.Abs(float64(target - snap.HPA.TargetPct)))
	if !cfg.SuppressWritesForGitOps && change >= 3 && now.Sub(lastWrite) >= 5*time.Minute && decisionConfidence >= 0.6 {
		if err := l.metrics.PatchHPATarget(ctx, w.ID, target); err == nil {
			decision.TargetWritten = target
			l.mu.Lock()
			l.lastHPAWrite[w.ID] = now
			l.mu.Unlock()
		} else {
			decision.TargetSkipped = true
			decision.SkipReason = "hpa patch failed: " + err.Error()
		}
	} else {
		decision.TargetSkipped = true
		decision.SkipReason = "no qualifying target change"
		decision.TargetWritten = snap.HPA.TargetPct
	}

	// (f) Pre-Scale Manager.
	if cfg.EnablePreScale {
		l.runPreScale(ctx, now, cfg, w, snap, predictions, target)
	}

	// (g) Autopilot.
	if cfg.EnableAutopilot && w.AutopilotEnabled {
		l.runAutopilot(ctx, now, cfg, w, snap, history)
	}

	return decision
}

func (l *Loop) runPreScale(ctx context.Context, now time.Time, cfg config.Global, w wtypes.Workload, snap WorkloadSnapshot, predictions []wtypes.Prediction, targetCPU int32) {
	l.mu.Lock()
	profile, ok := l.profiles[w.ID]
	if !ok {
		profile = &wtypes.PreScaleProfile{Workload: w.ID, State: wtypes.PreScaleIdle}
		l.profiles[w.ID] = profile
	}
	current := *profile
	l.mu.Unlock()

	current = prescale.SnapshotIfNeeded(current, snap.HPA.MinReplicas, snap.HPA.MaxReplicas, snap.HPA.TargetPct)

	if current.State != wtypes.PreScaleIdle {
		gone := false
		realizedCPU := l.realizedCPUPercent(w.ID, now, snap.CPURequest)
		rollback, _ := prescale.ShouldRollback(current, now, realizedCPU, float64(current.OriginalTargetPct), prescale.DefaultParams().PeakPassedRatio, gone)
		if rollback {
			current = prescale.Rollback(current)
			if err := l.metrics.PatchHPAMin(ctx, w.ID, current.CurrentMin); err != nil {
				current.State = wtypes.PreScaleRollingBack
			}
		}
	} else {
		best, found := prescale.BestPrediction(predictions, cfg.PreScaleMaxHorizon)
		if found && snap.CPURequest > 0 {
			predictedPct := best.Predicted / float64(snap.CPURequest) * 100
			threshold := arbiter.PreScaleConfidenceThreshold(w.Priority)
			l.mu.Lock()
			lastTrigger := current.OverrideStart
			l.mu.Unlock()
			if prescale.ShouldTrigger(predictedPct, best.Confidence, threshold, cfg.PreScaleThreshold, lastTrigger, now, cfg.PreScaleCooldownMinutes) {
				newMin := prescale.NewMinReplicas(snap.Replicas, predictedPct, float64(targetCPU), current.OriginalMin, current.OriginalMax, current.CurrentMin)
				current = prescale.Trigger(current, newMin, "predicted spike", best.Confidence, now, cfg.PreScaleRollbackMinutes)
				if err := l.metrics.PatchHPAMin(ctx, w.ID, newMin); err != nil {
					current.State = wtypes.PreScaleIdle
				}
			}
		}
	}

	l.mu.Lock()
	*l.profiles[w.ID] = current
	l.mu.Unlock()
}

func (l *Loop) runAutopilot(ctx context.Context, now time.Time, cfg config.Global, w wtypes.Workload, snap WorkloadSnapshot, history []wtypes.Sample) {
	l.mu.Lock()
	state, ok := l.autopilotStates[w.ID]
	if !ok {
		state = &wtypes.AutopilotState{Workload: w.ID, LearningState: wtypes.LearningNotStarted}
		l.autopilotStates[w.ID] = state
	}
	current := *state
	profile, hasProfile := l.profiles[w.ID]
	activePreScale := hasProfile && profile.State != wtypes.PreScaleIdle
	l.mu.Unlock()

	cpuP95, memP95, cv := percentiles(history)
	params := autopilot.Params{
		LearnDays: cfg.LearnDays, CPUBufferPct: cfg.CPUBufferPct, MemBufferPct: cfg.MemBufferPct,
		MinCPURequest: cfg.MinCPURequest, MinMemRequest: cfg.MinMemRequest, MaxChangePercent: cfg.MaxChangePercent,
		MinConfidence: cfg.AutopilotMinConfidence, CooldownHours: cfg.CooldownHours, MonitorMinutes: cfg.MonitorMinutes,
		MaxRestartIncrease: cfg.MaxRestartIncrease, MaxOOMIncrease: cfg.MaxOOMIncrease, MaxReadinessDropPct: cfg.MaxReadinessDropPct,
	}
	current = autopilot.AdvanceLearning(current, now, params, cpuP95, memP95, cv, false)

	if current.PreChangeSnap != nil {
		if now.After(current.MonitorDeadline) {
			current = autopilot.Confirm(current)
		} else {
			snapNow := liveSnapshot(snap)
			if trigger, _ := autopilot.MonitorTrigger(*current.PreChangeSnap, snapNow, params); trigger {
				current = autopilot.Rollback(current)
				_ = l.metrics.PatchDeploymentRequests(ctx, w.ID, current.LastAppliedCPU, current.LastAppliedMem)
			}
		}
	} else if current.LearningState == wtypes.LearningGraduated && cfg.AutopilotLevel != wtypes.AutopilotDisabled {
		days := now.Sub(current.LearningStart).Hours() / 24
		confidence := autopilot.Confidence(days, cfg.LearnDays, cv)
		rec := autopilot.Recommend(params, cpuP95, memP95, snap.CPURequest, snap.MemoryRequest)
		if !rec.Skip && cfg.AutopilotLevel == wtypes.AutopilotApply {
			isReduction := rec.CPURequest < snap.CPURequest || rec.MemRequest < snap.MemoryRequest
			changePct := math.Max(relChange(snap.CPURequest, rec.CPURequest), relChange(snap.MemoryRequest, rec.MemRequest)) * 100
			gate := autopilot.EvaluateGates(autopilot.GateInputs{
				Confidence: confidence, TimeSinceLastChange: now.Sub(current.LastChangeTime), Priority: w.Priority,
				ActivePreScaleOverride: activePreScale, IsReduction: isReduction, ChangePercent: changePct,
			}, params)
			if gate.Allowed {
				snapshot := liveSnapshot(snap)
				current = autopilot.Apply(current, snapshot, rec.CPURequest, rec.MemRequest, now, cfg.MonitorMinutes)
				_ = l.metrics.PatchDeploymentRequests(ctx, w.ID, rec.CPURequest, rec.MemRequest)
			}
		}
	}

	l.mu.Lock()
	*l.autopilotStates[w.ID] = current
	l.mu.Unlock()
}

// realizedCPUPercent averages the last 10 minutes of samples as a
// percent of cpuRequest, for the Pre-Scale Manager's peak-passed
// rollback check (spec.md §4.7).
func (l *Loop) realizedCPUPercent(id wtypes.WorkloadID, now time.Time, cpuRequest int64) float64 {
	if cpuRequest <= 0 {
		return 0
	}
	recent, err := l.tss.ReadRange(id, now.Add(-10*time.Minute), now)
	if err != nil || len(recent) == 0 {
		return 0
	}
	var sum float64
	for _, s := range recent {
		sum += s.CPUMillicores
	}
	return sum / float64(len(recent)) / float64(cpuRequest) * 100
}

func (l *Loop) runValidatorPass(now time.Time) {
	due, err := l.tss.OpenPredictionsDue(now)
	if err != nil {
		return
	}
	touched := map[wtypes.WorkloadID]struct{}{}
	for _, p := range due {
		history, _ := l.tss.ReadRange(p.Workload, p.TargetTime().Add(-time.Minute), p.TargetTime().Add(time.Minute))
		realized := p.Predicted
		if len(history) > 0 {
			realized = history[len(history)-1].CPUMillicores
		}
		closed := validator.Close(p, realized)
		_ = l.tss.ClosePrediction(closed)
		touched[p.Workload] = struct{}{}
	}
	for id := range touched {
		closedPredictions, err := l.tss.ClosedPredictions(id)
		if err != nil {
			continue
		}
		l.RefreshModelAccuracy(id, closedPredictions)
	}
}

func (l *Loop) modelAccuracyFor(id wtypes.WorkloadID) []forecast.ModelAccuracy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.modelAccuracy[id]
}

// RefreshModelAccuracy recomputes per-model rolling accuracy for id from
// closed predictions; called after the Validator pass so the next
// tick's model selection can use it.
func (l *Loop) RefreshModelAccuracy(id wtypes.WorkloadID, closed []wtypes.Prediction) {
	groups := validator.GroupByModel(closed)
	var accs []forecast.ModelAccuracy
	for model, preds := range groups {
		stats := validator.Rollup(preds)
		accs = append(accs, forecast.ModelAccuracy{Model: model, AccuracyRate: stats.AccuracyRate, RecordCount: stats.RecordCount})
	}
	sort.Slice(accs, func(i, j int) bool { return accs[i].Model < accs[j].Model })
	l.mu.Lock()
	l.modelAccuracy[id] = accs
	l.mu.Unlock()
}

func matureCPUAverage(pods []PodObservation, startupFilterMinutes int) (float64, float64) {
	filterSeconds := float64(startupFilterMinutes * 60)
	var matureSum float64
	var matureCount int
	for _, p := range pods {
		if p.AgeSeconds >= filterSeconds {
			matureSum += p.CPUMillicores
			matureCount++
		}
	}
	if matureCount > 0 {
		return matureSum / float64(matureCount), 1.0
	}
	if len(pods) == 0 {
		return 0, 0.5
	}
	var allSum float64
	for _, p := range pods {
		allSum += p.CPUMillicores
	}
	return allSum / float64(len(pods)), 0.5
}

func coefficientOfVariation(history []wtypes.Sample) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, s := range history {
		sum += s.CPUMillicores
	}
	mean := sum / float64(len(history))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, s := range history {
		d := s.CPUMillicores - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(history)))
	return std / mean
}

func toForecastPoints(history []wtypes.Sample, now time.Time) []forecast.Point {
	out := make([]forecast.Point, len(history))
	for i, s := range history {
		out[i] = forecast.Point{MinutesAgo: now.Sub(s.Timestamp).Minutes(), Value: s.CPUMillicores}
	}
	return out
}

func modelByName(name string) forecast.Model {
	for _, m := range forecast.All() {
		if m.Name() == name {
			return m
		}
	}
	return &forecast.MeanModel{}
}

func clampTarget(v, min, max int32) int32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func daysToTickCount(days, checkIntervalSeconds int) int {
	if checkIntervalSeconds <= 0 {
		checkIntervalSeconds = 60
	}
	return days * 24 * 3600 / checkIntervalSeconds
}

func percentiles(history []wtypes.Sample) (cpuP95, memP95, cv float64) {
	if len(history) == 0 {
		return 0, 0, 0
	}
	cpus := make([]float64, len(history))
	mems := make([]float64, len(history))
	for i, s := range history {
		cpus[i] = s.CPUMillicores
		mems[i] = s.MemoryMiB
	}
	sort.Float64s(cpus)
	sort.Float64s(mems)
	cpuP95 = percentile(cpus, 0.95)
	memP95 = percentile(mems, 0.95)
	cv = coefficientOfVariation(history)
	return
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func liveSnapshot(snap WorkloadSnapshot) wtypes.ResourceSnapshot {
	var restarts, ready int32
	oom := int32(0)
	for _, p := range snap.Pods {
		restarts += p.RestartCount
		if p.Ready {
			ready++
		}
		if p.OOMKilled {
			oom++
		}
	}
	return wtypes.ResourceSnapshot{CPURequest: snap.CPURequest, MemoryRequest: snap.MemoryRequest, RestartCount: restarts, OOMKillCount: oom, ReadyReplicas: ready}
}

func relChange(current, rec int64) float64 {
	if current == 0 {
		return 1
	}
	return math.Abs(float64(rec-current)) / float64(current)
}
