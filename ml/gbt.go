package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
)

const artifactFormat = "sepsiswatch.gbt/v1"

// BoostParams mirrors the usual gradient boosting knobs.
type BoostParams struct {
	Rounds          int     `json:"rounds" yaml:"rounds"`
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate"`
	MaxDepth        int     `json:"max_depth" yaml:"max_depth"`
	Subsample       float64 `json:"subsample" yaml:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree" yaml:"colsample_bytree"`
	MinChildWeight  float64 `json:"min_child_weight" yaml:"min_child_weight"`
	Lambda          float64 `json:"lambda" yaml:"lambda"`
	Gamma           float64 `json:"gamma" yaml:"gamma"`
	MaxBins         int     `json:"max_bins" yaml:"max_bins"`
	Seed            int64   `json:"seed" yaml:"seed"`
	Workers         int     `json:"-" yaml:"workers"`
}

// DefaultBoostParams mirrors the settings the production model was trained with.
func DefaultBoostParams() BoostParams {
	return BoostParams{
		Rounds:          300,
		LearningRate:    0.05,
		MaxDepth:        6,
		Subsample:       0.8,
		ColsampleByTree: 0.8,
		MinChildWeight:  1,
		Lambda:          1,
		MaxBins:         defaultMaxBins,
		Seed:            42,
	}
}

// Validate rejects parameters that cannot fit a model.
func (p BoostParams) Validate() error {
	switch {
	case p.Rounds < 0:
		return errors.New("rounds must not be negative")
	case p.LearningRate <= 0:
		return errors.New("learning rate must be positive")
	case p.MaxDepth <= 0:
		return errors.New("max depth must be positive")
	case p.Subsample <= 0 || p.Subsample > 1:
		return errors.New("subsample must be in (0, 1]")
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return errors.New("colsample_bytree must be in (0, 1]")
	case p.MinChildWeight < 0 || p.Lambda < 0 || p.Gamma < 0:
		return errors.New("min_child_weight, lambda and gamma must not be negative")
	}
	return nil
}

// GradientBoostedClassifier is a binary logistic tree ensemble. Once fitted or
// loaded it is safe for concurrent PredictProba calls.
type GradientBoostedClassifier struct {
	params    BoostParams
	features  []string
	baseScore float64
	trees     []*RegressionTree
}

// NewGradientBoostedClassifier returns an unfitted classifier over features.
func NewGradientBoostedClassifier(features []string, params BoostParams) *GradientBoostedClassifier {
	return &GradientBoostedClassifier{
		params:   params,
		features: append([]string(nil), features...),
	}
}

// Fit is FitContext without cancellation.
func (g *GradientBoostedClassifier) Fit(features [][]float64, labels []int) error {
	return g.FitContext(context.Background(), features, labels)
}

// FitContext trains the ensemble; ctx is checked between boosting rounds.
func (g *GradientBoostedClassifier) FitContext(ctx context.Context, features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if len(g.features) != len(features[0]) {
		return fmt.Errorf("%w: %d names for %d columns", ErrSchemaMismatch, len(g.features), len(features[0]))
	}
	if err := g.params.Validate(); err != nil {
		return err
	}

	positives := 0
	for i, label := range labels {
		switch label {
		case 0:
		case 1:
			positives++
		default:
			return fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}

	rnd := rand.New(rand.NewSource(g.params.Seed))
	data, err := binFeatures(features, g.params.MaxBins, rnd, g.params.Workers)
	if err != nil {
		return err
	}

	prior := clamp(float64(positives)/float64(len(labels)), 1e-6, 1-1e-6)
	g.baseScore = math.Log(prior / (1 - prior))
	g.trees = make([]*RegressionTree, 0, g.params.Rounds)

	margins := make([]float64, len(labels))
	for i := range margins {
		margins[i] = g.baseScore
	}
	builder := &treeBuilder{
		data:   data,
		grad:   make([]float64, len(labels)),
		hess:   make([]float64, len(labels)),
		params: g.params,
	}

	for round := 0; round < g.params.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, label := range labels {
			p := sigmoid(margins[i])
			builder.grad[i] = p - float64(label)
			builder.hess[i] = math.Max(p*(1-p), 1e-16)
		}
		builder.columns = sampleColumns(len(g.features), g.params.ColsampleByTree, rnd)

		tree, err := builder.build(subsampleRows(len(labels), g.params.Subsample, rnd))
		if err != nil {
			return err
		}
		for i, row := range features {
			delta, err := tree.Predict(row)
			if err != nil {
				return err
			}
			margins[i] += delta
		}
		g.trees = append(g.trees, tree)
	}
	return nil
}

// PredictProba is the sigmoid of Margin.
func (g *GradientBoostedClassifier) PredictProba(vector []float64) (float64, error) {
	margin, err := g.Margin(vector)
	if err != nil {
		return 0, err
	}
	return sigmoid(margin), nil
}

// Margin returns the raw log-odds score.
func (g *GradientBoostedClassifier) Margin(vector []float64) (float64, error) {
	if len(g.features) == 0 || g.trees == nil {
		return 0, ErrNotTrained
	}
	if len(vector) != len(g.features) {
		return 0, fmt.Errorf("%w: got %d values, model expects %d", ErrSchemaMismatch, len(vector), len(g.features))
	}
	margin := g.baseScore
	for i, tree := range g.trees {
		delta, err := tree.Predict(vector)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		margin += delta
	}
	return margin, nil
}

// FeatureNames returns the schema the model was fitted on.
func (g *GradientBoostedClassifier) FeatureNames() []string {
	return append([]string(nil), g.features...)
}

func (g *GradientBoostedClassifier) NumTrees() int {
	return len(g.trees)
}

func (g *GradientBoostedClassifier) Params() BoostParams {
	return g.params
}

type gbtArtifact struct {
	Format    string       `json:"format"`
	Features  []string     `json:"features"`
	BaseScore float64      `json:"base_score"`
	Params    BoostParams  `json:"params"`
	Trees     [][]TreeNode `json:"trees"`
}

// Save writes the JSON artifact.
func (g *GradientBoostedClassifier) Save(path string) error {
	if g.trees == nil {
		return ErrNotTrained
	}
	artifact := gbtArtifact{
		Format:    artifactFormat,
		Features:  g.features,
		BaseScore: g.baseScore,
		Params:    g.params,
		Trees:     make([][]TreeNode, len(g.trees)),
	}
	for i, tree := range g.trees {
		artifact.Trees[i] = tree.nodes
	}
	payload, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// Load reads an artifact written by Save and checks its format tag.
func (g *GradientBoostedClassifier) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact gbtArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if artifact.Format != artifactFormat {
		return fmt.Errorf("%s: unsupported model format %q", path, artifact.Format)
	}
	if len(artifact.Features) == 0 {
		return fmt.Errorf("%s: model has no features", path)
	}
	if math.IsNaN(artifact.BaseScore) || math.IsInf(artifact.BaseScore, 0) {
		return fmt.Errorf("%s: invalid base score", path)
	}

	trees := make([]*RegressionTree, 0, len(artifact.Trees))
	for i, nodes := range artifact.Trees {
		tree, err := newRegressionTree(nodes, len(artifact.Features))
		if err != nil {
			return fmt.Errorf("%s: tree %d: %w", path, i, err)
		}
		trees = append(trees, tree)
	}

	g.features = artifact.Features
	g.baseScore = artifact.BaseScore
	g.params = artifact.Params
	g.trees = trees
	return nil
}

func sampleColumns(count int, ratio float64, rnd *rand.Rand) []int {
	keep := int(math.Ceil(ratio * float64(count)))
	if keep >= count || keep <= 0 {
		columns := make([]int, count)
		for i := range columns {
			columns[i] = i
		}
		return columns
	}
	columns := rnd.Perm(count)[:keep]
	sort.Ints(columns)
	return columns
}

func subsampleRows(count int, ratio float64, rnd *rand.Rand) []int {
	rows := make([]int, 0, int(float64(count)*ratio)+1)
	for i := 0; i < count; i++ {
		if ratio >= 1 || rnd.Float64() < ratio {
			rows = append(rows, i)
		}
	}
	return rows
}

func sigmoid(margin float64) float64 {
	if margin >= 0 {
		return 1 / (1 + math.Exp(-margin))
	}
	e := math.Exp(margin)
	return e / (1 + e)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
