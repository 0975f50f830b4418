package classifier_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/classifier"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

func samplesAt(values []float64, start time.Time, step time.Duration) []types.Sample {
	out := make([]types.Sample, len(values))
	for i, v := range values {
		out[i] = types.Sample{Timestamp: start.Add(time.Duration(i) * step), CPUMillicores: v}
	}
	return out
}

func TestUnknownBelowMinSamples(t *testing.T) {
	samples := samplesAt(make([]float64, 10), time.Now(), time.Minute)
	res := classifier.Classify(samples, nil)
	require.Equal(t, types.PatternUnknown, res.Pattern)
}

func TestSteadyLowCV(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 100
	}
	samples := samplesAt(values, time.Now(), time.Minute)
	res := classifier.Classify(samples, nil)
	require.Equal(t, types.PatternSteady, res.Pattern)
}

func TestBurstyHighCVWithSpikes(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = 10
	}
	// inject spikes far above mean+2sigma for >10% of samples
	for i := 0; i < 6; i++ {
		values[i*6] = 500
	}
	samples := samplesAt(values, time.Now(), time.Minute)
	res := classifier.Classify(samples, nil)
	require.Equal(t, types.PatternBursty, res.Pattern)
}

func TestGrowingTrend(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 50 + float64(i)*3
	}
	samples := samplesAt(values, time.Now(), time.Minute)
	res := classifier.Classify(samples, nil)
	require.Equal(t, types.PatternGrowing, res.Pattern)
}

func TestDecliningTrend(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 200 - float64(i)*5
	}
	samples := samplesAt(values, time.Now(), time.Minute)
	res := classifier.Classify(samples, nil)
	require.Equal(t, types.PatternDeclining, res.Pattern)
}

func TestConfidenceWithinBounds(t *testing.T) {
	values := make([]float64, 25)
	for i := range values {
		values[i] = 50 + float64(i%3)
	}
	samples := samplesAt(values, time.Now(), time.Minute)
	res := classifier.Classify(samples, nil)
	require.GreaterOrEqual(t, res.Confidence, 0.3)
	require.LessOrEqual(t, res.Confidence, 0.95)
}
