package ml

import (
	"fmt"
)

// ModelTypeGBT names the gradient boosted artifact format.
const ModelTypeGBT = "gbt"

// LoadModel reads a model artifact of the given type; "" means gbt.
func LoadModel(modelType, path string) (SchemaModel, error) {
	switch modelType {
	case ModelTypeGBT, "":
		model := &GradientBoostedClassifier{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

var (
	_ SchemaModel = (*GradientBoostedClassifier)(nil)
	_ Trainer     = (*GradientBoostedClassifier)(nil)
)
