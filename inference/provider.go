package inference

import (
	"sync/atomic"

	"sepsiswatch/ml"
)

// Artifacts locates the files a Service is built from.
type Artifacts struct {
	ModelType string
	ModelPath string
	MeansPath string
}

// Load reads both artifacts and builds a Service from them.
func Load(artifacts Artifacts, opts ...Option) (*Service, error) {
	const op = "inference.Load"
	model, err := ml.LoadModel(artifacts.ModelType, artifacts.ModelPath)
	if err != nil {
		return nil, newError(KindArtifact, op, err)
	}
	means, err := ml.LoadFeatureMeans(artifacts.MeansPath)
	if err != nil {
		return nil, newError(KindArtifact, op, err)
	}
	modelType := artifacts.ModelType
	if modelType == "" {
		modelType = ml.ModelTypeGBT
	}
	opts = append([]Option{WithModelName(modelType)}, opts...)
	return NewService(model, means, opts...)
}

// Provider hands out the current Service. Readers never block; a swap only
// affects requests that start after it.
type Provider struct {
	current atomic.Pointer[Service]
}

// NewProvider starts out serving service.
func NewProvider(service *Service) *Provider {
	p := &Provider{}
	p.current.Store(service)
	return p
}

// Service returns the current Service.
func (p *Provider) Service() *Service {
	return p.current.Load()
}

// Swap publishes service and returns the one it replaced.
func (p *Provider) Swap(service *Service) *Service {
	return p.current.Swap(service)
}
