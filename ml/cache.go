package ml

import (
	"encoding/binary"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedModel memoizes probabilities by the exact bit pattern of the input
// vector. The wrapped model must be deterministic.
type CachedModel struct {
	model SchemaModel
	cache *lru.Cache[string, float64]
}

// NewCachedModel memoises model over the last size distinct vectors.
func NewCachedModel(model SchemaModel, size int) (*CachedModel, error) {
	cache, err := lru.New[string, float64](size)
	if err != nil {
		return nil, err
	}
	return &CachedModel{model: model, cache: cache}, nil
}

// PredictProba answers from the cache or the wrapped model.
func (c *CachedModel) PredictProba(vector []float64) (float64, error) {
	key := vectorKey(vector)
	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}
	p, err := c.model.PredictProba(vector)
	if err != nil {
		return 0, err
	}
	c.cache.Add(key, p)
	return p, nil
}

func (c *CachedModel) FeatureNames() []string {
	return c.model.FeatureNames()
}

func (c *CachedModel) Len() int {
	return c.cache.Len()
}

func vectorKey(vector []float64) string {
	buf := make([]byte, 0, 8*len(vector))
	for _, v := range vector {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return string(buf)
}
