package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"sepsiswatch/ml"
)

// PartialInput is a caller-supplied subset of feature values. Keys outside
// the model schema are ignored.
type PartialInput map[string]any

// FeatureVector is a completed input in schema order. It is never mutated
// after Complete returns it.
type FeatureVector struct {
	names    []string
	values   []float64
	supplied int
}

// Len is the schema length.
func (v FeatureVector) Len() int {
	return len(v.values)
}

// Names returns the schema order.
func (v FeatureVector) Names() []string {
	return append([]string(nil), v.names...)
}

// Values returns a copy of the completed values in schema order.
func (v FeatureVector) Values() []float64 {
	return append([]float64(nil), v.values...)
}

// Supplied is the number of schema features taken from the partial input.
func (v FeatureVector) Supplied() int {
	return v.supplied
}

// Get returns the value of one named feature.
func (v FeatureVector) Get(name string) (float64, bool) {
	for i, n := range v.names {
		if n == name {
			return v.values[i], true
		}
	}
	return 0, false
}

// Prediction is the positive-class probability for one request.
type Prediction struct {
	Probability float64 `json:"probability"`
}

// Service completes partial inputs against the means table and scores them.
// A Service is immutable once built and safe for concurrent use.
type Service struct {
	model     ml.Model
	means     *ml.FeatureMeans
	modelName string
	cacheSize int
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithModelName sets the label reported by health checks.
func WithModelName(name string) Option {
	return func(s *Service) {
		s.modelName = name
	}
}

// WithCache memoizes up to size predictions. Zero disables the memo.
func WithCache(size int) Option {
	return func(s *Service) {
		s.cacheSize = size
	}
}

// NewService binds a model to its means table. The model schema and the
// table must list the same features in the same order.
func NewService(model ml.SchemaModel, means *ml.FeatureMeans, opts ...Option) (*Service, error) {
	const op = "inference.NewService"
	if model == nil {
		return nil, newError(KindArtifact, op, errors.New("model is nil"))
	}
	if means == nil || means.Len() == 0 {
		return nil, newError(KindArtifact, op, errors.New("feature means table is empty"))
	}
	if err := ml.CheckSchema(model.FeatureNames(), means.Names()); err != nil {
		return nil, newError(KindArtifact, op, err)
	}

	s := &Service{means: means, modelName: ml.ModelTypeGBT, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.model = model
	if s.cacheSize > 0 {
		cached, err := ml.NewCachedModel(model, s.cacheSize)
		if err != nil {
			return nil, newError(KindArtifact, op, err)
		}
		s.model = cached
	}
	return s, nil
}

// Means returns the table the service completes inputs from.
func (s *Service) Means() *ml.FeatureMeans {
	return s.means
}

// ModelName is reported by the health endpoint.
func (s *Service) ModelName() string {
	return s.modelName
}

// Complete fills every schema feature with its mean and overlays the known
// keys of partial.
func (s *Service) Complete(partial PartialInput) (FeatureVector, error) {
	const op = "inference.Complete"
	vector := FeatureVector{names: s.means.Names(), values: s.means.Values()}
	for key, raw := range partial {
		idx, ok := s.means.Index(key)
		if !ok {
			continue
		}
		value, err := toFloat(raw)
		if err != nil {
			return FeatureVector{}, newError(KindValidation, op, fmt.Errorf("feature %s: %w", key, err))
		}
		vector.values[idx] = value
		vector.supplied++
	}
	return vector, nil
}

// Predict returns the positive-class probability for partial.
func (s *Service) Predict(ctx context.Context, partial PartialInput) (Prediction, error) {
	const op = "inference.Predict"
	if err := ctx.Err(); err != nil {
		return Prediction{}, newError(KindInference, op, err)
	}
	vector, err := s.Complete(partial)
	if err != nil {
		return Prediction{}, err
	}
	p, err := s.model.PredictProba(vector.values)
	if err != nil {
		return Prediction{}, newError(KindInference, op, err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return Prediction{}, newError(KindInference, op, fmt.Errorf("probability %v outside [0,1]", p))
	}
	s.logger.Debug("prediction",
		zap.Int("supplied", vector.supplied),
		zap.Float64("probability", p),
	)
	return Prediction{Probability: p}, nil
}

func toFloat(raw any) (float64, error) {
	var v float64
	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", n.String())
		}
		v = f
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int8:
		v = float64(n)
	case int16:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint:
		v = float64(n)
	case uint8:
		v = float64(n)
	case uint16:
		v = float64(n)
	case uint32:
		v = float64(n)
	case uint64:
		v = float64(n)
	case nil:
		return 0, errors.New("value is null")
	default:
		return 0, fmt.Errorf("value of type %T is not a number", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %v is not finite", v)
	}
	return v, nil
}
