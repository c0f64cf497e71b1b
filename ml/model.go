package ml

import (
	"errors"
	"fmt"
)

var (
	ErrNotTrained     = errors.New("model not trained")
	ErrSchemaMismatch = errors.New("feature schema mismatch")
)

// Model scores one complete feature vector, laid out in schema order, and
// returns the probability mass of the positive class.
type Model interface {
	PredictProba(vector []float64) (float64, error)
}

// SchemaModel is a Model that knows the ordered feature names it was fitted on.
type SchemaModel interface {
	Model
	FeatureNames() []string
}

// Trainer fits a model on labelled rows.
type Trainer interface {
	Fit(features [][]float64, labels []int) error
}

// CheckSchema fails unless both schemas hold the same names in the same order.
func CheckSchema(model, table []string) error {
	if len(model) != len(table) {
		return fmt.Errorf("%w: model has %d features, table has %d", ErrSchemaMismatch, len(model), len(table))
	}
	for i := range model {
		if model[i] != table[i] {
			return fmt.Errorf("%w: position %d is %q in model, %q in table", ErrSchemaMismatch, i, model[i], table[i])
		}
	}
	return nil
}
