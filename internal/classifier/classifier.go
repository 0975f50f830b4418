// Package classifier implements the Pattern Classifier (spec.md §4.3): an
// ordered set of statistical rules over the last 24h of per-minute CPU
// samples that assigns exactly one pattern tag with a confidence score.
//
// The ordered-rule-as-sequential-boolean-gates shape follows the
// teacher's saturation analyzer (shouldScaleUp/isScaleDownSafe), adapted
// from capacity triggers to load-shape classification.
package classifier

import (
	"math"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

// MinSamples is the minimum sample count below which the classifier
// returns PatternUnknown.
const MinSamples = 20

// Result is one classification outcome.
type Result struct {
	Pattern    types.PatternTag
	Confidence float64
}

// point is a single per-minute CPU observation with its timestamp's
// weekday and day-of-month, used by the seasonal rules.
type point struct {
	value   float64
	weekday int
	dayOfMonth int
	daysFromEnd int
}

// Classify assigns a pattern tag to samples, which must be ordered
// oldest-first and span at most 24h. daysInMonth lets callers pass the
// month length for the month-end rule without importing time here.
func Classify(samples []types.Sample, daysInMonth func(types.Sample) int) Result {
	if len(samples) < MinSamples {
		return Result{Pattern: types.PatternUnknown, Confidence: 0.3}
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.CPUMillicores
	}
	mean, stddev := meanStddev(values)
	cv := 0.0
	if mean != 0 {
		cv = stddev / mean
	}

	tag, base := decide(samples, values, mean, stddev, cv, daysInMonth)
	conf := confidence(len(samples), cv, tag)
	return Result{Pattern: tag, Confidence: clamp(conf*base, 0.3, 0.95)}
}

func decide(samples []types.Sample, values []float64, mean, stddev, cv float64, daysInMonth func(types.Sample) int) (types.PatternTag, float64) {
	if cv < 0.15 {
		return types.PatternSteady, 1.0
	}

	if cv > 0.5 {
		spikeRate := spikeRate(values, mean, stddev)
		if spikeRate > 0.10 {
			return types.PatternBursty, 1.0
		}
	}

	if wd, we, ok := weekdayWeekendMeans(samples); ok && mean != 0 {
		if math.Abs(wd-we)/mean > 0.20 {
			return types.PatternWeeklySeasonal, 1.0
		}
	}

	if me, rest, ok := monthEndMeans(samples, daysInMonth); ok && rest != 0 {
		if (me-rest)/rest > 0.25 {
			return types.PatternMonthlySeasonal, 1.0
		}
	}

	if countSpikeDecaySequences(values, mean, stddev) >= 3 {
		return types.PatternEventDriven, 1.0
	}

	if autocorrelation(values, 24*60/sampleSpacingMinutes(samples)) > 0.5 {
		return types.PatternPeriodic, 1.0
	}

	if slope := normalizedSlope(values); math.Abs(slope) > 0.20 {
		if slope > 0 {
			return types.PatternGrowing, 1.0
		}
		return types.PatternDeclining, 1.0
	}

	return types.PatternSteady, 0.8
}

func confidence(n int, cv float64, tag types.PatternTag) float64 {
	countFactor := math.Min(float64(n)/100.0, 1.0)
	base := 0.5 + 0.45*countFactor
	// Penalize confidence when CV sits far from the tag's canonical range.
	canonical := canonicalCV(tag)
	dev := math.Abs(cv - canonical)
	penalty := math.Max(0, 1.0-dev)
	return base * (0.5 + 0.5*penalty)
}

func canonicalCV(tag types.PatternTag) float64 {
	switch tag {
	case types.PatternSteady:
		return 0.05
	case types.PatternBursty:
		return 0.7
	default:
		return 0.3
	}
}

func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sqSum float64
	for _, v := range values {
		d := v - mean
		sqSum += d * d
	}
	return mean, math.Sqrt(sqSum / float64(len(values)))
}

func spikeRate(values []float64, mean, stddev float64) float64 {
	if stddev == 0 {
		return 0
	}
	count := 0
	threshold := mean + 2*stddev
	for _, v := range values {
		if v > threshold {
			count++
		}
	}
	return float64(count) / float64(len(values))
}

func weekdayWeekendMeans(samples []types.Sample) (weekdayMean, weekendMean float64, ok bool) {
	var wdSum, weSum float64
	var wdN, weN int
	for _, s := range samples {
		d := s.Timestamp.Weekday()
		if d == 0 || d == 6 {
			weSum += s.CPUMillicores
			weN++
		} else {
			wdSum += s.CPUMillicores
			wdN++
		}
	}
	if wdN == 0 || weN == 0 {
		return 0, 0, false
	}
	return wdSum / float64(wdN), weSum / float64(weN), true
}

func monthEndMeans(samples []types.Sample, daysInMonth func(types.Sample) int) (monthEndMean, restMean float64, ok bool) {
	if daysInMonth == nil {
		return 0, 0, false
	}
	var endSum, restSum float64
	var endN, restN int
	for _, s := range samples {
		total := daysInMonth(s)
		if total <= 0 {
			return 0, 0, false
		}
		day := s.Timestamp.Day()
		if total-day < 3 {
			endSum += s.CPUMillicores
			endN++
		} else {
			restSum += s.CPUMillicores
			restN++
		}
	}
	if endN == 0 || restN == 0 {
		return 0, 0, false
	}
	return endSum / float64(endN), restSum / float64(restN), true
}

func countSpikeDecaySequences(values []float64, mean, stddev float64) int {
	if stddev == 0 {
		return 0
	}
	threshold := mean + 2*stddev
	sequences := 0
	inSpike := false
	for _, v := range values {
		if v > threshold {
			if !inSpike {
				sequences++
				inSpike = true
			}
		} else if v < mean {
			inSpike = false
		}
	}
	return sequences
}

func sampleSpacingMinutes(samples []types.Sample) int {
	if len(samples) < 2 {
		return 1
	}
	d := samples[1].Timestamp.Sub(samples[0].Timestamp).Minutes()
	if d < 1 {
		return 1
	}
	return int(math.Round(d))
}

// autocorrelation computes the Pearson autocorrelation at the given lag
// (in samples), returning 0 if lag exceeds the series length.
func autocorrelation(values []float64, lag int) float64 {
	n := len(values)
	if lag <= 0 || lag >= n {
		return 0
	}
	mean, _ := meanStddev(values)
	var num, den float64
	for i := 0; i < n; i++ {
		den += (values[i] - mean) * (values[i] - mean)
	}
	for i := 0; i+lag < n; i++ {
		num += (values[i] - mean) * (values[i+lag] - mean)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// normalizedSlope fits a simple linear regression and returns the slope
// normalized by the series mean, so it is comparable across magnitudes.
func normalizedSlope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	meanX, _ := meanStddev(xs)
	meanY, _ := meanStddev(values)
	var num, den float64
	for i := 0; i < n; i++ {
		num += (xs[i] - meanX) * (values[i] - meanY)
		den += (xs[i] - meanX) * (xs[i] - meanX)
	}
	if den == 0 || meanY == 0 {
		return 0
	}
	slope := num / den
	totalChange := slope * float64(n-1)
	return totalChange / meanY
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
