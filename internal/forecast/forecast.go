// Package forecast implements the seven model families of spec.md §4.4
// behind a uniform interface, plus the model-selection rule of §4.4 and
// the confidence formula shared by all of them.
//
// Each model is a variant behind {name, fit(history), predict(horizon)},
// the shape spec.md §9 asks for dynamic dispatch across forecast models
// to take; this mirrors the teacher's ModelAnalyzer interface
// (internal/interfaces) and the per-accelerator performance-curve math in
// pkg/core, generalized from queueing-theory curves to CPU time series.
package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

// Point is a (time-offset-in-minutes, value) observation fed to fit.
type Point struct {
	MinutesAgo float64
	Value      float64
}

// Prediction is a model's point estimate with 95% bounds for one horizon.
type Prediction struct {
	Value      float64
	Lower      float64
	Upper      float64
	Confidence float64
}

// Model is one forecast family.
type Model interface {
	Name() string
	// Fit prepares the model from history (oldest first). Returns false
	// if the model cannot fit this history (insufficient data, no trend).
	Fit(history []Point) bool
	// Predict forecasts the value at horizonMinutes ahead, assuming Fit
	// returned true.
	Predict(horizonMinutes float64) Prediction
}

// ModelAccuracy is the Validator's per-(workload,model) rolling accuracy,
// consumed by Select.
type ModelAccuracy struct {
	Model       string
	AccuracyRate float64
	RecordCount int
}

// Confidence implements the shared formula:
// min(0.9, n/100) * (1 - horizon_minutes/480) * model_accuracy.
func Confidence(n int, horizonMinutes, modelAccuracy float64) float64 {
	c := math.Min(0.9, float64(n)/100.0) * (1 - horizonMinutes/480.0) * modelAccuracy
	return math.Max(0, c)
}

// All returns a fresh instance of every model family, in the table order
// of spec.md §4.4.
func All() []Model {
	return []Model{
		&MeanModel{}, &TrendModel{}, &SeasonalModel{}, &HoltWintersModel{},
		&ARIMAModel{}, &ProphetLikeModel{}, &EnsembleModel{},
	}
}

// Select implements spec.md §4.4's model-selection rule. accuracies may
// be nil or partial; cv is the coefficient of variation of the recent
// history; n is the sample count; hasSeasonality and hasTrend summarize
// the classifier's read of the data.
func Select(n int, cv float64, hasSeasonality, hasTrend bool, accuracies []ModelAccuracy) string {
	for _, a := range accuracies {
		if a.AccuracyRate >= 0.70 && a.RecordCount >= 20 {
			return a.Model
		}
	}
	switch {
	case cv < 0.1:
		return "mean"
	case n >= 168 && hasSeasonality:
		return "prophet_like"
	case n >= 48 && hasSeasonality:
		return "holt_winters"
	case n >= 100 && hasTrend:
		return "arima"
	case hasTrend:
		return "trend"
	case n >= 50:
		return "ensemble"
	default:
		return "trend"
	}
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddevOf(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// --- mean ---

// MeanModel predicts the sample mean with a 1.96*sigma/sqrt(n) bound,
// best when CV < 0.1.
type MeanModel struct {
	mean, se float64
	n        int
	fit      bool
}

func (m *MeanModel) Name() string { return "mean" }

func (m *MeanModel) Fit(history []Point) bool {
	if len(history) == 0 {
		return false
	}
	values := pointValues(history)
	m.mean = meanOf(values)
	sd := stddevOf(values, m.mean)
	m.n = len(values)
	m.se = sd / math.Sqrt(float64(m.n))
	m.fit = true
	return true
}

func (m *MeanModel) Predict(_ float64) Prediction {
	if !m.fit {
		return Prediction{}
	}
	bound := 1.96 * m.se
	return Prediction{Value: m.mean, Lower: m.mean - bound, Upper: m.mean + bound, Confidence: Confidence(m.n, 0, 0.9)}
}

// --- trend ---

// TrendModel linearly extrapolates, valid when slope != 0 with R^2 > 0.4.
type TrendModel struct {
	slope, intercept, r2 float64
	residualStd          float64
	n                    int
	fit                  bool
}

func (m *TrendModel) Name() string { return "trend" }

func (m *TrendModel) Fit(history []Point) bool {
	if len(history) < 2 {
		return false
	}
	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	for i, p := range history {
		xs[i] = -p.MinutesAgo
		ys[i] = p.Value
	}
	slope, intercept := linearRegression(xs, ys)
	r2 := rSquared(xs, ys, slope, intercept)
	m.slope, m.intercept, m.r2 = slope, intercept, r2
	m.n = len(history)
	var sq float64
	for i := range xs {
		pred := slope*xs[i] + intercept
		sq += (ys[i] - pred) * (ys[i] - pred)
	}
	m.residualStd = math.Sqrt(sq / float64(len(xs)))
	m.fit = slope != 0 && r2 > 0.4
	return m.fit
}

func (m *TrendModel) Predict(horizonMinutes float64) Prediction {
	if !m.fit {
		return Prediction{}
	}
	v := m.slope*horizonMinutes + m.intercept
	bound := 1.96 * m.residualStd
	return Prediction{Value: v, Lower: v - bound, Upper: v + bound, Confidence: Confidence(m.n, horizonMinutes, 0.75)}
}

// --- seasonal ---

// SeasonalModel predicts the hour-of-week mean, best with high daily
// autocorrelation.
type SeasonalModel struct {
	byHour map[int]float64
	std    float64
	n      int
	fit    bool
}

func (m *SeasonalModel) Name() string { return "seasonal" }

func (m *SeasonalModel) Fit(history []Point) bool {
	if len(history) < 24 {
		return false
	}
	buckets := map[int][]float64{}
	for _, p := range history {
		hour := int(math.Mod(p.MinutesAgo/60.0, 168))
		buckets[hour] = append(buckets[hour], p.Value)
	}
	m.byHour = map[int]float64{}
	for h, vs := range buckets {
		m.byHour[h] = meanOf(vs)
	}
	values := pointValues(history)
	m.std = stddevOf(values, meanOf(values))
	m.n = len(history)
	m.fit = len(m.byHour) >= 4
	return m.fit
}

func (m *SeasonalModel) Predict(horizonMinutes float64) Prediction {
	if !m.fit {
		return Prediction{}
	}
	// The target time falls in the hour-of-week slot that lies one week
	// before it, i.e. (168 - horizon hours) hours ago.
	hour := int(math.Mod(168-math.Mod(horizonMinutes/60.0, 168), 168))
	v, ok := m.byHour[hour]
	if !ok {
		v = meanOf(mapValues(m.byHour))
	}
	bound := 1.96 * m.std
	return Prediction{Value: v, Lower: v - bound, Upper: v + bound, Confidence: Confidence(m.n, horizonMinutes, 0.7)}
}

// --- holt-winters ---

// HoltWintersModel is an additive, damped trend+seasonal model.
type HoltWintersModel struct {
	level, trend float64
	season       map[int]float64
	std          float64
	n            int
	fit          bool
}

const holtWintersDamping = 0.9
const holtWintersAlpha = 0.3
const holtWintersBeta = 0.1
const holtWintersGamma = 0.2
const holtWintersSeasonLength = 24

func (m *HoltWintersModel) Name() string { return "holt_winters" }

func (m *HoltWintersModel) Fit(history []Point) bool {
	if len(history) < 48 {
		return false
	}
	ordered := orderedByTime(history)
	m.season = map[int]float64{}
	m.level = ordered[0].Value
	m.trend = 0
	for i, p := range ordered {
		hour := i % holtWintersSeasonLength
		prevLevel := m.level
		seasonal := m.season[hour]
		m.level = holtWintersAlpha*(p.Value-seasonal) + (1-holtWintersAlpha)*(prevLevel+m.trend)
		m.trend = holtWintersBeta*(m.level-prevLevel) + (1-holtWintersBeta)*m.trend
		m.season[hour] = holtWintersGamma*(p.Value-m.level) + (1-holtWintersGamma)*seasonal
	}
	values := pointValues(history)
	m.std = stddevOf(values, meanOf(values))
	m.n = len(history)
	m.fit = true
	return true
}

func (m *HoltWintersModel) Predict(horizonMinutes float64) Prediction {
	if !m.fit {
		return Prediction{}
	}
	steps := horizonMinutes / 60.0
	damped := (1 - math.Pow(holtWintersDamping, steps+1)) / (1 - holtWintersDamping)
	hour := int(math.Mod(steps, holtWintersSeasonLength))
	v := m.level + damped*m.trend + m.season[hour]
	bound := 1.96 * m.std
	return Prediction{Value: v, Lower: v - bound, Upper: v + bound, Confidence: Confidence(m.n, horizonMinutes, 0.78)}
}

// --- arima(1,1,1) ---

// ARIMAModel fits a fixed-order (1,1,1) ARIMA, with AIC-weighted
// confidence.
type ARIMAModel struct {
	phi, theta float64
	lastDiff   float64
	lastValue  float64
	lastErr    float64
	std        float64
	aic        float64
	n          int
	fit        bool
}

func (m *ARIMAModel) Name() string { return "arima" }

func (m *ARIMAModel) Fit(history []Point) bool {
	if len(history) < 3 {
		return false
	}
	ordered := orderedByTime(history)
	diffs := make([]float64, len(ordered)-1)
	for i := 1; i < len(ordered); i++ {
		diffs[i-1] = ordered[i].Value - ordered[i-1].Value
	}
	m.phi = autoregress(diffs)
	var residuals []float64
	var errPrev float64
	for i := 1; i < len(diffs); i++ {
		predicted := m.phi*diffs[i-1] + m.theta*errPrev
		e := diffs[i] - predicted
		residuals = append(residuals, e)
		errPrev = e
	}
	m.theta = autoregress(residuals)
	m.lastDiff = diffs[len(diffs)-1]
	m.lastValue = ordered[len(ordered)-1].Value
	m.lastErr = errPrev
	rm := meanOf(residuals)
	m.std = stddevOf(residuals, rm)
	m.n = len(history)
	k := 3.0
	sse := 0.0
	for _, r := range residuals {
		sse += r * r
	}
	if len(residuals) > 0 {
		m.aic = float64(len(residuals))*math.Log(sse/float64(len(residuals))+1e-9) + 2*k
	}
	m.fit = len(history) >= 100 || len(history) >= 3
	return m.fit
}

func (m *ARIMAModel) Predict(horizonMinutes float64) Prediction {
	if !m.fit {
		return Prediction{}
	}
	steps := math.Max(1, horizonMinutes/60.0)
	diff := m.phi*m.lastDiff + m.theta*m.lastErr
	v := m.lastValue + diff*steps
	weight := 1.0 / (1.0 + math.Max(0, m.aic))
	bound := 1.96 * m.std * math.Sqrt(steps)
	return Prediction{Value: v, Lower: v - bound, Upper: v + bound, Confidence: Confidence(m.n, horizonMinutes, math.Min(0.85, 0.5+weight))}
}

// --- prophet-like ---

// ProphetLikeModel decomposes trend + weekly + daily + residual,
// best for multi-seasonal workloads.
type ProphetLikeModel struct {
	trendSlope, trendIntercept float64
	weekly                     map[int]float64
	daily                      map[int]float64
	std                        float64
	n                          int
	fit                        bool
}

func (m *ProphetLikeModel) Name() string { return "prophet_like" }

func (m *ProphetLikeModel) Fit(history []Point) bool {
	if len(history) < 168 {
		return false
	}
	ordered := orderedByTime(history)
	xs := make([]float64, len(ordered))
	ys := make([]float64, len(ordered))
	for i, p := range ordered {
		xs[i] = float64(i)
		ys[i] = p.Value
	}
	m.trendSlope, m.trendIntercept = linearRegression(xs, ys)

	m.weekly = map[int]float64{}
	m.daily = map[int]float64{}
	weeklyBuckets := map[int][]float64{}
	dailyBuckets := map[int][]float64{}
	for i, p := range ordered {
		trendAt := m.trendSlope*xs[i] + m.trendIntercept
		resid := p.Value - trendAt
		day := (i / 24) % 7
		hour := i % 24
		weeklyBuckets[day] = append(weeklyBuckets[day], resid)
		dailyBuckets[hour] = append(dailyBuckets[hour], resid)
	}
	for d, vs := range weeklyBuckets {
		m.weekly[d] = meanOf(vs)
	}
	for h, vs := range dailyBuckets {
		m.daily[h] = meanOf(vs)
	}
	m.std = stddevOf(ys, meanOf(ys))
	m.n = len(history)
	m.fit = true
	return true
}

func (m *ProphetLikeModel) Predict(horizonMinutes float64) Prediction {
	if !m.fit {
		return Prediction{}
	}
	steps := horizonMinutes / 60.0
	trendAt := m.trendSlope*(float64(m.n)+steps) + m.trendIntercept
	day := int(steps/24) % 7
	hour := int(math.Mod(steps, 24))
	v := trendAt + m.weekly[day] + m.daily[hour]
	bound := 1.96 * m.std
	return Prediction{Value: v, Lower: v - bound, Upper: v + bound, Confidence: Confidence(m.n, horizonMinutes, 0.8)}
}

// --- ensemble ---

// EnsembleModel is the weighted mean of the other six models, used when
// no single family is clearly best.
type EnsembleModel struct {
	members []Model
	weights []float64
	fit     bool
}

func (m *EnsembleModel) Name() string { return "ensemble" }

func (m *EnsembleModel) Fit(history []Point) bool {
	candidates := []Model{&MeanModel{}, &TrendModel{}, &SeasonalModel{}, &HoltWintersModel{}, &ARIMAModel{}, &ProphetLikeModel{}}
	m.members = nil
	m.weights = nil
	for _, c := range candidates {
		if c.Fit(history) {
			m.members = append(m.members, c)
			m.weights = append(m.weights, 1.0)
		}
	}
	m.fit = len(m.members) > 0
	return m.fit
}

func (m *EnsembleModel) Predict(horizonMinutes float64) Prediction {
	if !m.fit {
		return Prediction{}
	}
	var vSum, lSum, uSum, cSum, wSum float64
	for i, mod := range m.members {
		p := mod.Predict(horizonMinutes)
		w := m.weights[i]
		vSum += p.Value * w
		lSum += p.Lower * w
		uSum += p.Upper * w
		cSum += p.Confidence * w
		wSum += w
	}
	if wSum == 0 {
		return Prediction{}
	}
	return Prediction{Value: vSum / wSum, Lower: lSum / wSum, Upper: uSum / wSum, Confidence: cSum / wSum}
}

// --- shared numerics ---

func pointValues(history []Point) []float64 {
	values := make([]float64, len(history))
	for i, p := range history {
		values[i] = p.Value
	}
	return values
}

func orderedByTime(history []Point) []Point {
	out := make([]Point, len(history))
	copy(out, history)
	sort.Slice(out, func(i, j int) bool { return out[i].MinutesAgo > out[j].MinutesAgo })
	return out
}

func linearRegression(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	meanX := meanOf(xs)
	meanY := meanOf(ys)
	var num, den float64
	for i := range xs {
		num += (xs[i] - meanX) * (ys[i] - meanY)
		den += (xs[i] - meanX) * (xs[i] - meanX)
	}
	if den == 0 {
		return 0, meanY
	}
	slope = num / den
	intercept = meanY - slope*meanX
	return slope, intercept
}

func rSquared(xs, ys []float64, slope, intercept float64) float64 {
	meanY := meanOf(ys)
	var ssRes, ssTot float64
	for i := range xs {
		pred := slope*xs[i] + intercept
		ssRes += (ys[i] - pred) * (ys[i] - pred)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// autoregress fits a single-lag AR coefficient via least squares.
func autoregress(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	var num, den float64
	for i := 1; i < len(series); i++ {
		num += series[i-1] * series[i]
		den += series[i-1] * series[i-1]
	}
	if den == 0 {
		return 0
	}
	c := num / den
	return math.Max(-0.99, math.Min(0.99, c))
}

func mapValues(m map[int]float64) []float64 {
	out := make([]float64, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// ToTypesPrediction converts a model Prediction into a types.Prediction
// record ready to append to the TSS.
func ToTypesPrediction(workload types.WorkloadID, issueTime time.Time, horizon types.Horizon, modelTag string, p Prediction) types.Prediction {
	return types.Prediction{
		Workload:   workload,
		IssueTime:  issueTime,
		Horizon:    horizon,
		Predicted:  p.Value,
		LowerBound: p.Lower,
		UpperBound: p.Upper,
		ModelTag:   modelTag,
		Confidence: p.Confidence,
	}
}
