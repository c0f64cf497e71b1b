package ml

import (
	"errors"
	"fmt"
	"math/rand"
)

const (
	BalancerSMOTE  = "smote"
	BalancerRandom = "random"
	BalancerNone   = "none"
)

// Balancer resamples a training partition so that both classes have the
// same number of rows. It must never be applied to evaluation data.
type Balancer interface {
	Resample(features [][]float64, labels []int) ([][]float64, []int, error)
}

// NewBalancer returns the balancer registered under kind.
func NewBalancer(kind string, neighbors int, seed int64, workers int) (Balancer, error) {
	switch kind {
	case BalancerSMOTE, "":
		return &SMOTE{K: neighbors, Seed: seed, Workers: workers}, nil
	case BalancerRandom:
		return &RandomOversampler{Seed: seed}, nil
	case BalancerNone:
		return NoBalancing{}, nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", kind)
	}
}

// SMOTE synthesizes minority rows by interpolating between a minority row and
// one of its K nearest minority neighbours.
type SMOTE struct {
	K       int
	Seed    int64
	Workers int
}

// Resample appends synthetic minority rows until both classes are even.
func (s *SMOTE) Resample(features [][]float64, labels []int) ([][]float64, []int, error) {
	minority, need, err := minorityPlan(features, labels)
	if err != nil || need == 0 {
		return features, labels, err
	}
	if len(minority.rows) < 2 {
		return nil, nil, fmt.Errorf("smote needs at least 2 minority rows, got %d", len(minority.rows))
	}
	k := s.K
	if k <= 0 {
		k = 5
	}
	if k > len(minority.rows)-1 {
		k = len(minority.rows) - 1
	}

	rnd := rand.New(rand.NewSource(s.Seed))
	bases := make([]int, need)
	used := make(map[int]struct{})
	for i := range bases {
		bases[i] = rnd.Intn(len(minority.rows))
		used[bases[i]] = struct{}{}
	}

	neighbors := make([][]int, len(minority.rows))
	g := newWorkerGroup(s.Workers)
	for base := range used {
		base := base
		g.Go(func() error {
			neighbors[base] = nearestNeighbors(features, minority.rows, base, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	outX := make([][]float64, len(features), len(features)+need)
	copy(outX, features)
	outY := make([]int, len(labels), len(labels)+need)
	copy(outY, labels)

	for _, base := range bases {
		origin := features[minority.rows[base]]
		nb := features[minority.rows[neighbors[base][rnd.Intn(k)]]]
		gap := rnd.Float64()
		synthetic := make([]float64, len(origin))
		for j := range origin {
			synthetic[j] = origin[j] + gap*(nb[j]-origin[j])
		}
		outX = append(outX, synthetic)
		outY = append(outY, minority.label)
	}
	return outX, outY, nil
}

// nearestNeighbors returns positions in rows of the k rows closest to
// rows[target], excluding target itself.
func nearestNeighbors(features [][]float64, rows []int, target, k int) []int {
	origin := features[rows[target]]
	best := make([]int, 0, k)
	dist := make([]float64, 0, k)
	for pos, row := range rows {
		if pos == target {
			continue
		}
		d := squaredDistance(origin, features[row])
		if len(best) == k && d >= dist[k-1] {
			continue
		}
		i := len(best)
		if len(best) < k {
			best = append(best, 0)
			dist = append(dist, 0)
		} else {
			i = k - 1
		}
		for i > 0 && dist[i-1] > d {
			best[i] = best[i-1]
			dist[i] = dist[i-1]
			i--
		}
		best[i] = pos
		dist[i] = d
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

// RandomOversampler duplicates randomly chosen minority rows.
type RandomOversampler struct {
	Seed int64
}

// Resample duplicates random minority rows until both classes are even.
func (r *RandomOversampler) Resample(features [][]float64, labels []int) ([][]float64, []int, error) {
	minority, need, err := minorityPlan(features, labels)
	if err != nil || need == 0 {
		return features, labels, err
	}
	rnd := rand.New(rand.NewSource(r.Seed))
	outX := make([][]float64, len(features), len(features)+need)
	copy(outX, features)
	outY := make([]int, len(labels), len(labels)+need)
	copy(outY, labels)
	for i := 0; i < need; i++ {
		row := minority.rows[rnd.Intn(len(minority.rows))]
		outX = append(outX, append([]float64(nil), features[row]...))
		outY = append(outY, minority.label)
	}
	return outX, outY, nil
}

// NoBalancing returns the training partition unchanged.
type NoBalancing struct{}

func (NoBalancing) Resample(features [][]float64, labels []int) ([][]float64, []int, error) {
	return features, labels, nil
}

type minorityClass struct {
	label int
	rows  []int
}

// minorityPlan finds the rarer class and how many rows it is short of the
// majority class.
func minorityPlan(features [][]float64, labels []int) (minorityClass, int, error) {
	if len(features) != len(labels) {
		return minorityClass{}, 0, errors.New("features and labels size mismatch")
	}
	counts := ClassCounts(labels)
	if len(counts) != 2 {
		return minorityClass{}, 0, fmt.Errorf("balancing needs exactly 2 classes, got %d", len(counts))
	}
	if counts[0]+counts[1] != len(labels) {
		return minorityClass{}, 0, errors.New("labels must be 0 or 1")
	}

	minLabel, majLabel := 1, 0
	if counts[0] < counts[1] {
		minLabel, majLabel = 0, 1
	}
	need := counts[majLabel] - counts[minLabel]
	rows := make([]int, 0, counts[minLabel])
	for i, label := range labels {
		if label == minLabel {
			rows = append(rows, i)
		}
	}
	return minorityClass{label: minLabel, rows: rows}, need, nil
}
