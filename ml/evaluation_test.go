package ml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateThresholds(t *testing.T) {
	probs := []float64{0.1, 0.25, 0.35, 0.8, 0.05, 0.6}
	labels := []int{0, 1, 1, 1, 0, 0}

	reports, err := EvaluateThresholds(probs, labels, []float64{0.3, 0.5})
	require.NoError(t, err)
	require.Len(t, reports, 2)

	low := reports[0]
	assert.Equal(t, ConfusionMatrix{TN: 2, FP: 1, FN: 1, TP: 2}, low.Confusion)
	assert.InDelta(t, 2.0/3.0, low.Positive.Precision, 1e-9)
	assert.InDelta(t, 2.0/3.0, low.Positive.Recall, 1e-9)
	assert.Equal(t, 3, low.Positive.Support)
	assert.InDelta(t, 4.0/6.0, low.Accuracy, 1e-9)

	high := reports[1]
	assert.Equal(t, ConfusionMatrix{TN: 2, FP: 1, FN: 2, TP: 1}, high.Confusion)
	assert.Less(t, high.Positive.Recall, low.Positive.Recall)

	text := low.Format()
	assert.True(t, strings.HasPrefix(text, "=== Threshold = 0.30 ==="))
	assert.Contains(t, text, "[[2 1]\n [1 2]]")
}

func TestEvaluateThresholdsErrors(t *testing.T) {
	_, err := EvaluateThresholds(nil, nil, DefaultThresholds)
	assert.Error(t, err)
	_, err = EvaluateThresholds([]float64{0.1}, []int{0, 1}, DefaultThresholds)
	assert.Error(t, err)
}

func TestROCAUC(t *testing.T) {
	perfect, err := ROCAUC([]float64{0.1, 0.2, 0.8, 0.9}, []int{0, 0, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, perfect, 1e-9)

	inverted, err := ROCAUC([]float64{0.9, 0.8, 0.2, 0.1}, []int{0, 0, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, inverted, 1e-9)

	mixed, err := ROCAUC([]float64{0.1, 0.4, 0.35, 0.8}, []int{0, 0, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, mixed, 1e-9)

	tied, err := ROCAUC([]float64{0.5, 0.5, 0.5, 0.5}, []int{0, 1, 0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, tied, 1e-9)

	_, err = ROCAUC([]float64{0.5}, []int{1})
	assert.Error(t, err)
}
