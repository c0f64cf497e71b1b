package ml

import (
	"errors"
	"testing"
)

func TestRegressionTreePredict(t *testing.T) {
	tree, err := newRegressionTree([]TreeNode{
		{FeatureIdx: 0, Threshold: 0.5, LeftChild: 1, RightChild: 2},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: -1, IsLeaf: true},
		{FeatureIdx: 1, Threshold: 10, LeftChild: 3, RightChild: 4},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 0.5, IsLeaf: true},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 2, IsLeaf: true},
	}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		features []float64
		want     float64
	}{
		{[]float64{0.5, 100}, -1},
		{[]float64{0.6, 10}, 0.5},
		{[]float64{0.6, 11}, 2},
	}
	for _, tc := range cases {
		got, err := tree.Predict(tc.features)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tc.want {
			t.Fatalf("predict %v: expected %v, got %v", tc.features, tc.want, got)
		}
	}
	if tree.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", tree.Depth())
	}
}

func TestRegressionTreeRejectsBrokenNodes(t *testing.T) {
	cases := map[string][]TreeNode{
		"empty":           nil,
		"feature range":   {{FeatureIdx: 3, LeftChild: 1, RightChild: 2}, {IsLeaf: true}, {IsLeaf: true}},
		"child backwards": {{FeatureIdx: 0, LeftChild: 0, RightChild: 1}, {IsLeaf: true}},
		"child missing":   {{FeatureIdx: 0, LeftChild: 1, RightChild: 5}, {IsLeaf: true}},
	}
	for name, nodes := range cases {
		if _, err := newRegressionTree(nodes, 2); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestRegressionTreeUntrained(t *testing.T) {
	tree := &RegressionTree{}
	if _, err := tree.Predict([]float64{1}); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
}

func TestQuantileCuts(t *testing.T) {
	cuts := quantileCuts([]float64{3, 1, 2, 2, 1}, 16)
	want := []float64{1.5, 2.5}
	if len(cuts) != len(want) {
		t.Fatalf("expected %v, got %v", want, cuts)
	}
	for i := range want {
		if cuts[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, cuts)
		}
	}
	if quantileCuts([]float64{7, 7, 7}, 16) != nil {
		t.Fatal("constant column must have no cuts")
	}

	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i)
	}
	cuts = quantileCuts(values, 8)
	if len(cuts) > 7 {
		t.Fatalf("expected at most 7 cuts, got %d", len(cuts))
	}
	for i := 1; i < len(cuts); i++ {
		if cuts[i] <= cuts[i-1] {
			t.Fatalf("cuts not ascending: %v", cuts)
		}
	}
}
