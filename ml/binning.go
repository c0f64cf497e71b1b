package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

const (
	maxBinLimit    = 256
	binSampleLimit = 200000
	defaultMaxBins = 256
)

// binnedMatrix stores every training value as the index of its quantile bin,
// column major. A value x falls in bin i when cuts[i-1] < x <= cuts[i]; values
// above the last cut land in bin len(cuts).
type binnedMatrix struct {
	rows int
	cuts [][]float64
	bins [][]uint8
}

func newWorkerGroup(workers int) *errgroup.Group {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g := &errgroup.Group{}
	g.SetLimit(workers)
	return g
}

func binFeatures(features [][]float64, maxBins int, rnd *rand.Rand, workers int) (*binnedMatrix, error) {
	if len(features) == 0 {
		return nil, errors.New("features empty")
	}
	if maxBins <= 1 || maxBins > maxBinLimit {
		maxBins = defaultMaxBins
	}
	columns := len(features[0])
	for i, row := range features {
		if len(row) != columns {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), columns)
		}
	}

	sample := sampleRows(len(features), binSampleLimit, rnd)
	m := &binnedMatrix{
		rows: len(features),
		cuts: make([][]float64, columns),
		bins: make([][]uint8, columns),
	}

	g := newWorkerGroup(workers)
	for col := 0; col < columns; col++ {
		col := col
		g.Go(func() error {
			values := make([]float64, 0, len(sample))
			for _, row := range sample {
				v := features[row][col]
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("row %d column %d: non-finite value", row, col)
				}
				values = append(values, v)
			}
			cuts := quantileCuts(values, maxBins)

			bins := make([]uint8, len(features))
			for row := range features {
				v := features[row][col]
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("row %d column %d: non-finite value", row, col)
				}
				bins[row] = uint8(sort.SearchFloat64s(cuts, v))
			}
			m.cuts[col] = cuts
			m.bins[col] = bins
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

// quantileCuts returns at most maxBins-1 ascending split points. Columns with
// few distinct values get a cut halfway between neighbours.
func quantileCuts(values []float64, maxBins int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	unique := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			unique = append(unique, v)
		}
	}
	if len(unique) <= 1 {
		return nil
	}

	if len(unique) <= maxBins {
		cuts := make([]float64, 0, len(unique)-1)
		for i := 0; i < len(unique)-1; i++ {
			cuts = append(cuts, unique[i]+(unique[i+1]-unique[i])/2)
		}
		return cuts
	}

	cuts := make([]float64, 0, maxBins-1)
	for q := 1; q < maxBins; q++ {
		v := sorted[q*len(sorted)/maxBins]
		if len(cuts) > 0 && v <= cuts[len(cuts)-1] {
			continue
		}
		if v >= unique[len(unique)-1] {
			break
		}
		cuts = append(cuts, v)
	}
	return cuts
}

func sampleRows(n, limit int, rnd *rand.Rand) []int {
	if n <= limit {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	rows := rnd.Perm(n)[:limit]
	sort.Ints(rows)
	return rows
}
