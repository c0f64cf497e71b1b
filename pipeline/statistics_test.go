package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCorpus() *Corpus {
	nan := math.NaN()
	return &Corpus{
		Columns: []string{"Patient_ID", "HR", "Temp", "WBC", "SepsisLabel"},
		Rows: [][]float64{
			{1, 80, 36.0, nan, 0},
			{1, 100, nan, 10, 0},
			{2, 120, 39.0, 20, 1},
			{2, nan, 38.0, nan, nan},
		},
	}
}

func TestBuildFeatureMeans(t *testing.T) {
	table, err := BuildFeatureMeans(sampleCorpus(), "Patient_ID", "SepsisLabel")
	require.NoError(t, err)

	assert.Equal(t, []string{"HR", "Temp", "WBC"}, table.Names())
	hr, _ := table.Mean("HR")
	temp, _ := table.Mean("Temp")
	wbc, _ := table.Mean("WBC")
	assert.InDelta(t, 100.0, hr, 1e-9)
	assert.InDelta(t, 113.0/3.0, temp, 1e-9)
	assert.InDelta(t, 15.0, wbc, 1e-9)
}

func TestBuildFeatureMeansPolicy(t *testing.T) {
	_, err := BuildFeatureMeans(&Corpus{Columns: []string{"HR"}}, "Patient_ID", "SepsisLabel")
	assert.ErrorIs(t, err, ErrEmptyCorpus)

	nan := math.NaN()
	corpus := &Corpus{
		Columns: []string{"HR", "Lactate", "SepsisLabel"},
		Rows:    [][]float64{{80, nan, 0}, {90, nan, 1}},
	}
	_, err = BuildFeatureMeans(corpus, "Patient_ID", "SepsisLabel")
	assert.ErrorIs(t, err, ErrUndefinedMean)
	assert.Contains(t, err.Error(), "Lactate")
}

func TestFeatureColumns(t *testing.T) {
	assert.Equal(t, []string{"HR", "Temp", "WBC"}, FeatureColumns(sampleCorpus(), "Patient_ID", "SepsisLabel"))
	assert.Len(t, FeatureColumns(sampleCorpus()), 5)
}
