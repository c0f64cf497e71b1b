package pipeline

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"sepsiswatch/ml"
)

// ErrUndefinedMean is returned when a feature column has no observed value.
// The builder refuses to publish such a table instead of serving NaN.
var ErrUndefinedMean = errors.New("mean undefined: column has no observed values")

// FeatureColumns lists every column except the excluded identifier and label
// columns, in corpus order.
func FeatureColumns(corpus *Corpus, exclude ...string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	features := make([]string, 0, len(corpus.Columns))
	for _, column := range corpus.Columns {
		if !skip[column] {
			features = append(features, column)
		}
	}
	return features
}

// BuildFeatureMeans computes the arithmetic mean of every feature column over
// its non-missing values.
func BuildFeatureMeans(corpus *Corpus, idColumn, labelColumn string) (*ml.FeatureMeans, error) {
	if corpus == nil || corpus.Len() == 0 {
		return nil, ErrEmptyCorpus
	}
	features := FeatureColumns(corpus, idColumn, labelColumn)
	if len(features) == 0 {
		return nil, errors.New("corpus has no feature columns")
	}

	means := make([]float64, len(features))
	observed := make([]float64, 0, corpus.Len())
	for i, name := range features {
		col, _ := corpus.ColumnIndex(name)
		observed = observed[:0]
		for _, row := range corpus.Rows {
			if v := row[col]; !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}
		if len(observed) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUndefinedMean, name)
		}
		means[i] = stat.Mean(observed, nil)
	}
	return ml.NewFeatureMeans(features, means)
}
