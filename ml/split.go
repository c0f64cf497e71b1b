package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Split holds a train/test partition. Rows are shared with the input, not copied.
type Split struct {
	TrainX [][]float64
	TrainY []int
	TestX  [][]float64
	TestY  []int
}

// StratifiedSplit holds out testRatio of every class so both partitions keep
// the original class ratio. The same seed always yields the same partition.
func StratifiedSplit(features [][]float64, labels []int, testRatio float64, seed int64) (Split, error) {
	if len(features) == 0 {
		return Split{}, errors.New("features empty")
	}
	if len(features) != len(labels) {
		return Split{}, errors.New("features and labels size mismatch")
	}
	if testRatio <= 0 || testRatio >= 1 {
		return Split{}, fmt.Errorf("test ratio %.3f must be in (0, 1)", testRatio)
	}

	byClass := make(map[int][]int)
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	for label := range byClass {
		classes = append(classes, label)
	}
	sort.Ints(classes)

	rnd := rand.New(rand.NewSource(seed))
	var trainIdx, testIdx []int
	for _, label := range classes {
		indices := byClass[label]
		if len(indices) < 2 {
			return Split{}, fmt.Errorf("class %d has %d rows, too few to stratify", label, len(indices))
		}
		rnd.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
		nTest := int(math.Round(testRatio * float64(len(indices))))
		if nTest == 0 && len(indices) > 1 {
			nTest = 1
		}
		if nTest >= len(indices) {
			return Split{}, fmt.Errorf("class %d has %d rows, too few to stratify", label, len(indices))
		}
		testIdx = append(testIdx, indices[:nTest]...)
		trainIdx = append(trainIdx, indices[nTest:]...)
	}
	rnd.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rnd.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })

	split := Split{
		TrainX: make([][]float64, len(trainIdx)),
		TrainY: make([]int, len(trainIdx)),
		TestX:  make([][]float64, len(testIdx)),
		TestY:  make([]int, len(testIdx)),
	}
	for i, idx := range trainIdx {
		split.TrainX[i] = features[idx]
		split.TrainY[i] = labels[idx]
	}
	for i, idx := range testIdx {
		split.TestX[i] = features[idx]
		split.TestY[i] = labels[idx]
	}
	return split, nil
}

// ClassCounts returns the number of rows per label.
func ClassCounts(labels []int) map[int]int {
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	return counts
}
