package ml

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separableData(n int, seed int64) ([][]float64, []int) {
	rnd := rand.New(rand.NewSource(seed))
	features := make([][]float64, n)
	labels := make([]int, n)
	for i := range features {
		x0 := rnd.Float64()
		x1 := rnd.Float64() * 10
		features[i] = []float64{x0, x1}
		if x0 > 0.6 {
			labels[i] = 1
		}
	}
	return features, labels
}

func smallParams() BoostParams {
	params := DefaultBoostParams()
	params.Rounds = 40
	params.LearningRate = 0.3
	params.MaxDepth = 3
	params.Subsample = 1
	params.ColsampleByTree = 1
	params.Workers = 2
	return params
}

func TestGradientBoostedClassifierLearnsBoundary(t *testing.T) {
	features, labels := separableData(400, 1)
	model := NewGradientBoostedClassifier([]string{"a", "b"}, smallParams())
	require.NoError(t, model.Fit(features, labels))
	assert.Equal(t, 40, model.NumTrees())

	high, err := model.PredictProba([]float64{0.9, 5})
	require.NoError(t, err)
	low, err := model.PredictProba([]float64{0.1, 5})
	require.NoError(t, err)

	assert.Greater(t, high, 0.8)
	assert.Less(t, low, 0.2)

	probs, err := PredictAll(model, features)
	require.NoError(t, err)
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
	auc, err := ROCAUC(probs, labels)
	require.NoError(t, err)
	assert.Greater(t, auc, 0.95)
}

func TestGradientBoostedClassifierDeterministic(t *testing.T) {
	features, labels := separableData(300, 2)
	params := smallParams()
	params.Subsample = 0.8
	params.ColsampleByTree = 0.5

	first := NewGradientBoostedClassifier([]string{"a", "b"}, params)
	second := NewGradientBoostedClassifier([]string{"a", "b"}, params)
	require.NoError(t, first.Fit(features, labels))
	require.NoError(t, second.Fit(features, labels))

	for _, row := range [][]float64{{0.2, 1}, {0.65, 3}, {0.99, 9}} {
		p1, err := first.PredictProba(row)
		require.NoError(t, err)
		p2, err := second.PredictProba(row)
		require.NoError(t, err)
		assert.Equal(t, p1, p2)
	}
}

func TestGradientBoostedClassifierSaveLoad(t *testing.T) {
	features, labels := separableData(200, 3)
	model := NewGradientBoostedClassifier([]string{"HR", "Temp"}, smallParams())
	require.NoError(t, model.Fit(features, labels))

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, model.Save(path))

	loaded, err := LoadModel(ModelTypeGBT, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"HR", "Temp"}, loaded.FeatureNames())

	for _, row := range features[:20] {
		want, err := model.PredictProba(row)
		require.NoError(t, err)
		got, err := loaded.PredictProba(row)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestGradientBoostedClassifierErrors(t *testing.T) {
	untrained := NewGradientBoostedClassifier([]string{"a"}, DefaultBoostParams())
	_, err := untrained.PredictProba([]float64{1})
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.ErrorIs(t, untrained.Save(filepath.Join(t.TempDir(), "m.json")), ErrNotTrained)

	features, labels := separableData(50, 4)
	model := NewGradientBoostedClassifier([]string{"a", "b"}, smallParams())
	require.NoError(t, model.Fit(features, labels))
	_, err = model.PredictProba([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	wrongSchema := NewGradientBoostedClassifier([]string{"a"}, smallParams())
	assert.ErrorIs(t, wrongSchema.Fit(features, labels), ErrSchemaMismatch)

	labels[0] = 2
	assert.Error(t, model.Fit(features, labels))

	_, err = LoadModel("xgboost", "whatever")
	assert.Error(t, err)
}

func TestBoostParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultBoostParams().Validate())

	bad := DefaultBoostParams()
	bad.Subsample = 0
	assert.Error(t, bad.Validate())

	bad = DefaultBoostParams()
	bad.LearningRate = -1
	assert.Error(t, bad.Validate())
}
