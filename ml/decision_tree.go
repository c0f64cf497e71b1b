package ml

import (
	"errors"
	"fmt"
)

// RegressionTree is one additive stage of the boosted ensemble. Nodes are
// stored flat; children are absolute indexes into the slice and node 0 is the
// root.
type RegressionTree struct {
	nodes []TreeNode
}

// TreeNode is one node of the flattened tree; children index the same slice.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

func newRegressionTree(nodes []TreeNode, featureCount int) (*RegressionTree, error) {
	if len(nodes) == 0 {
		return nil, errors.New("tree has no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= featureCount {
			return nil, fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		// children always come after their parent, which also rules out cycles
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return nil, fmt.Errorf("node %d: invalid children %d/%d", i, node.LeftChild, node.RightChild)
		}
	}
	return &RegressionTree{nodes: nodes}, nil
}

// Predict returns the leaf value reached by features.
func (t *RegressionTree) Predict(features []float64) (float64, error) {
	if len(t.nodes) == 0 {
		return 0, ErrNotTrained
	}
	idx := 0
	for {
		node := t.nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(t.nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (t *RegressionTree) Nodes() []TreeNode {
	return append([]TreeNode(nil), t.nodes...)
}

func (t *RegressionTree) Depth() int {
	if len(t.nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := t.nodes[idx]
		if node.IsLeaf {
			return 0
		}
		return 1 + max(walk(node.LeftChild), walk(node.RightChild))
	}
	return walk(0)
}

type splitCandidate struct {
	column int
	bin    int
	gain   float64
}

// treeBuilder grows one tree on binned training data using second order
// gradient statistics.
type treeBuilder struct {
	data    *binnedMatrix
	grad    []float64
	hess    []float64
	columns []int
	params  BoostParams
	nodes   []TreeNode
}

func (b *treeBuilder) build(rows []int) (*RegressionTree, error) {
	b.nodes = b.nodes[:0]
	if _, err := b.grow(rows, 0); err != nil {
		return nil, err
	}
	return &RegressionTree{nodes: append([]TreeNode(nil), b.nodes...)}, nil
}

func (b *treeBuilder) grow(rows []int, depth int) (int, error) {
	var sumGrad, sumHess float64
	for _, row := range rows {
		sumGrad += b.grad[row]
		sumHess += b.hess[row]
	}

	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      b.leafValue(sumGrad, sumHess),
		IsLeaf:     true,
	})

	if depth >= b.params.MaxDepth || len(rows) < 2 || sumHess < 2*b.params.MinChildWeight {
		return idx, nil
	}

	split, ok, err := b.bestSplit(rows, sumGrad, sumHess)
	if err != nil {
		return 0, err
	}
	if !ok {
		return idx, nil
	}

	column := b.columns[split.column]
	bins := b.data.bins[column]
	left := make([]int, 0, len(rows)/2)
	right := make([]int, 0, len(rows)/2)
	for _, row := range rows {
		if int(bins[row]) <= split.bin {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx, nil
	}

	leftIdx, err := b.grow(left, depth+1)
	if err != nil {
		return 0, err
	}
	rightIdx, err := b.grow(right, depth+1)
	if err != nil {
		return 0, err
	}

	b.nodes[idx] = TreeNode{
		FeatureIdx: column,
		Threshold:  b.data.cuts[column][split.bin],
		LeftChild:  leftIdx,
		RightChild: rightIdx,
		Value:      b.nodes[idx].Value,
		IsLeaf:     false,
	}
	return idx, nil
}

func (b *treeBuilder) leafValue(sumGrad, sumHess float64) float64 {
	if sumHess+b.params.Lambda == 0 {
		return 0
	}
	return -sumGrad / (sumHess + b.params.Lambda) * b.params.LearningRate
}

// bestSplit builds a gradient histogram per sampled column and returns the
// split with the highest gain. Ties go to the earlier column and lower bin.
func (b *treeBuilder) bestSplit(rows []int, sumGrad, sumHess float64) (splitCandidate, bool, error) {
	results := make([]splitCandidate, len(b.columns))
	found := make([]bool, len(b.columns))
	parentScore := sumGrad * sumGrad / (sumHess + b.params.Lambda)

	g := newWorkerGroup(b.params.Workers)
	for pos, column := range b.columns {
		pos, column := pos, column
		g.Go(func() error {
			cuts := b.data.cuts[column]
			if len(cuts) == 0 {
				return nil
			}
			histGrad := make([]float64, len(cuts)+1)
			histHess := make([]float64, len(cuts)+1)
			bins := b.data.bins[column]
			for _, row := range rows {
				bin := bins[row]
				histGrad[bin] += b.grad[row]
				histHess[bin] += b.hess[row]
			}

			var leftGrad, leftHess float64
			best := splitCandidate{column: pos, bin: -1}
			for bin := 0; bin < len(cuts); bin++ {
				leftGrad += histGrad[bin]
				leftHess += histHess[bin]
				rightGrad := sumGrad - leftGrad
				rightHess := sumHess - leftHess
				if leftHess < b.params.MinChildWeight || rightHess < b.params.MinChildWeight {
					continue
				}
				gain := 0.5*(leftGrad*leftGrad/(leftHess+b.params.Lambda)+
					rightGrad*rightGrad/(rightHess+b.params.Lambda)-parentScore) - b.params.Gamma
				if gain > best.gain {
					best.gain = gain
					best.bin = bin
				}
			}
			if best.bin >= 0 {
				results[pos] = best
				found[pos] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return splitCandidate{}, false, err
	}

	best := splitCandidate{bin: -1}
	ok := false
	for pos := range results {
		if found[pos] && (!ok || results[pos].gain > best.gain) {
			best = results[pos]
			ok = true
		}
	}
	return best, ok, nil
}
