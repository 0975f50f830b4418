package forecast_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/forecast"
)

func constantHistory(n int, v float64) []forecast.Point {
	out := make([]forecast.Point, n)
	for i := 0; i < n; i++ {
		out[i] = forecast.Point{MinutesAgo: float64(n - i), Value: v}
	}
	return out
}

func TestMeanModelFitsConstantSeries(t *testing.T) {
	m := &forecast.MeanModel{}
	require.True(t, m.Fit(constantHistory(30, 100)))
	p := m.Predict(60)
	require.InDelta(t, 100, p.Value, 0.01)
}

func TestTrendModelCapturesSlope(t *testing.T) {
	history := make([]forecast.Point, 30)
	for i := range history {
		history[i] = forecast.Point{MinutesAgo: float64(30 - i), Value: float64(i) * 2}
	}
	m := &forecast.TrendModel{}
	require.True(t, m.Fit(history))
	p := m.Predict(10)
	require.Greater(t, p.Value, 0.0)
}

func TestConfidenceFormula(t *testing.T) {
	c := forecast.Confidence(100, 0, 1.0)
	require.InDelta(t, 0.9, c, 0.001)
	c2 := forecast.Confidence(100, 480, 1.0)
	require.InDelta(t, 0, c2, 0.001)
}

func TestSelectPrefersValidatedModel(t *testing.T) {
	accs := []forecast.ModelAccuracy{{Model: "holt_winters", AccuracyRate: 0.75, RecordCount: 25}}
	require.Equal(t, "holt_winters", forecast.Select(500, 0.3, true, true, accs))
}

func TestSelectFallsBackToDataCharacteristics(t *testing.T) {
	require.Equal(t, "mean", forecast.Select(50, 0.05, false, false, nil))
	require.Equal(t, "prophet_like", forecast.Select(200, 0.3, true, false, nil))
	require.Equal(t, "trend", forecast.Select(10, 0.3, false, true, nil))
}
