package ml

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingModel struct {
	calls int
	err   error
}

func (m *countingModel) PredictProba(vector []float64) (float64, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return vector[0] / 10, nil
}

func (m *countingModel) FeatureNames() []string {
	return []string{"x"}
}

func TestCachedModelMemoizes(t *testing.T) {
	inner := &countingModel{}
	cached, err := NewCachedModel(inner, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		p, err := cached.PredictProba([]float64{5})
		require.NoError(t, err)
		assert.Equal(t, 0.5, p)
	}
	assert.Equal(t, 1, inner.calls)

	_, _ = cached.PredictProba([]float64{1})
	_, _ = cached.PredictProba([]float64{2})
	assert.Equal(t, 2, cached.Len())
	_, _ = cached.PredictProba([]float64{5})
	assert.Equal(t, 4, inner.calls, "evicted entry is recomputed")
	assert.Equal(t, []string{"x"}, cached.FeatureNames())
}

func TestCachedModelDoesNotCacheErrors(t *testing.T) {
	inner := &countingModel{err: errors.New("boom")}
	cached, err := NewCachedModel(inner, 4)
	require.NoError(t, err)

	_, err = cached.PredictProba([]float64{1})
	assert.Error(t, err)
	_, err = cached.PredictProba([]float64{1})
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 0, cached.Len())

	_, err = NewCachedModel(inner, 0)
	assert.Error(t, err)
}
