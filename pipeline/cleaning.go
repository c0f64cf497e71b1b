package pipeline

import (
	"fmt"
	"math"

	"sepsiswatch/ml"
)

// Dataset is the model-ready view of a corpus: feature matrix in schema
// order and binary labels.
type Dataset struct {
	Features []string
	X        [][]float64
	Y        []int
}

// CleaningStats summarizes what imputation and dataset assembly changed.
type CleaningStats struct {
	Rows           int            `json:"rows"`
	ImputedCells   int            `json:"imputed_cells"`
	ImputedColumns map[string]int `json:"imputed_columns"`
	DroppedRows    int            `json:"dropped_rows"`
}

// ImputeMeans replaces every missing value of a feature column with its mean,
// in place. Columns absent from the table are left alone.
func ImputeMeans(corpus *Corpus, means *ml.FeatureMeans) (CleaningStats, error) {
	stats := CleaningStats{Rows: corpus.Len(), ImputedColumns: make(map[string]int)}
	for _, name := range means.Names() {
		col, ok := corpus.ColumnIndex(name)
		if !ok {
			return stats, fmt.Errorf("feature %s not in corpus", name)
		}
		mean, _ := means.Mean(name)
		for _, row := range corpus.Rows {
			if math.IsNaN(row[col]) {
				row[col] = mean
				stats.ImputedCells++
				stats.ImputedColumns[name]++
			}
		}
	}
	return stats, nil
}

// BuildDataset projects the corpus onto features and the label column. Rows
// without a label are dropped; any other label than 0 or 1 is an error.
func BuildDataset(corpus *Corpus, features []string, labelColumn string) (*Dataset, int, error) {
	labelCol, ok := corpus.ColumnIndex(labelColumn)
	if !ok {
		return nil, 0, fmt.Errorf("label column %s not in corpus", labelColumn)
	}
	cols := make([]int, len(features))
	for i, name := range features {
		col, ok := corpus.ColumnIndex(name)
		if !ok {
			return nil, 0, fmt.Errorf("feature %s not in corpus", name)
		}
		cols[i] = col
	}

	dataset := &Dataset{
		Features: append([]string(nil), features...),
		X:        make([][]float64, 0, corpus.Len()),
		Y:        make([]int, 0, corpus.Len()),
	}
	dropped := 0
	for r, row := range corpus.Rows {
		label := row[labelCol]
		if math.IsNaN(label) {
			dropped++
			continue
		}
		if label != 0 && label != 1 {
			return nil, dropped, fmt.Errorf("row %d: label %v is not binary", r, label)
		}
		vector := make([]float64, len(cols))
		for i, col := range cols {
			v := row[col]
			if math.IsNaN(v) {
				return nil, dropped, fmt.Errorf("row %d: feature %s still missing", r, features[i])
			}
			vector[i] = v
		}
		dataset.X = append(dataset.X, vector)
		dataset.Y = append(dataset.Y, int(label))
	}
	if len(dataset.X) == 0 {
		return nil, dropped, ErrEmptyCorpus
	}
	return dataset, dropped, nil
}
