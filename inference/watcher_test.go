package inference

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sepsiswatch/ml"
)

func writeArtifacts(t *testing.T, dir string, means []float64) Artifacts {
	t.Helper()
	rnd := rand.New(rand.NewSource(7))
	features := make([][]float64, 200)
	labels := make([]int, len(features))
	for i := range features {
		row := make([]float64, len(schema))
		for j := range row {
			row[j] = rnd.Float64() * 100
		}
		features[i] = row
		if row[0] > 60 {
			labels[i] = 1
		}
	}
	params := ml.DefaultBoostParams()
	params.Rounds = 10
	params.MaxDepth = 2
	params.LearningRate = 0.3
	params.Workers = 2
	model := ml.NewGradientBoostedClassifier(schema, params)
	require.NoError(t, model.Fit(features, labels))

	artifacts := Artifacts{
		ModelType: ml.ModelTypeGBT,
		ModelPath: filepath.Join(dir, "model.json"),
		MeansPath: filepath.Join(dir, "feature_means.json"),
	}
	require.NoError(t, model.Save(artifacts.ModelPath))
	writeMeans(t, artifacts.MeansPath, means)
	return artifacts
}

func writeMeans(t *testing.T, path string, values []float64) {
	t.Helper()
	table, err := ml.NewFeatureMeans(schema, values)
	require.NoError(t, err)
	require.NoError(t, table.Save(path))
}

func TestLoadBuildsService(t *testing.T) {
	artifacts := writeArtifacts(t, t.TempDir(), []float64{80, 97, 37, 120, 10, 60})
	svc, err := Load(artifacts, WithCache(8))
	require.NoError(t, err)
	assert.Equal(t, ml.ModelTypeGBT, svc.ModelName())
	assert.Equal(t, schema, svc.Means().Names())

	input := PartialInput{"HR": 140, "O2Sat": 85, "Temp": 39.5, "SBP": 85, "WBC": 18}
	first, err := svc.Predict(context.Background(), input)
	require.NoError(t, err)
	second, err := svc.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadMissingArtifact(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(Artifacts{ModelPath: filepath.Join(dir, "none.json"), MeansPath: filepath.Join(dir, "m.json")})
	require.Error(t, err)
	assert.Equal(t, KindArtifact, KindOf(err))
}

func TestProviderSwap(t *testing.T) {
	first := testService(t)
	second := testService(t)
	provider := NewProvider(first)
	assert.Same(t, first, provider.Service())
	assert.Same(t, first, provider.Swap(second))
	assert.Same(t, second, provider.Service())
}

func TestWatcherReloadKeepsServiceOnFailure(t *testing.T) {
	dir := t.TempDir()
	artifacts := writeArtifacts(t, dir, []float64{80, 97, 37, 120, 10, 60})
	svc, err := Load(artifacts)
	require.NoError(t, err)
	provider := NewProvider(svc)

	var failures atomic.Int32
	watcher := NewWatcher(provider, artifacts, WatcherConfig{OnReload: func(err error) {
		if err != nil {
			failures.Add(1)
		}
	}}, nil)

	require.NoError(t, os.WriteFile(artifacts.MeansPath, []byte(`{"HR": 1}`), 0o644))
	err = watcher.Reload()
	require.Error(t, err)
	assert.Equal(t, KindArtifact, KindOf(err))
	assert.Same(t, svc, provider.Service())
	assert.Equal(t, int32(1), failures.Load())

	writeMeans(t, artifacts.MeansPath, []float64{81, 97, 37, 120, 10, 60})
	require.NoError(t, watcher.Reload())
	assert.NotSame(t, svc, provider.Service())
}

func TestWatcherPicksUpChangedMeans(t *testing.T) {
	dir := t.TempDir()
	artifacts := writeArtifacts(t, dir, []float64{80, 97, 37, 120, 10, 60})
	svc, err := Load(artifacts)
	require.NoError(t, err)
	provider := NewProvider(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher := NewWatcher(provider, artifacts, WatcherConfig{Debounce: 20 * time.Millisecond}, nil)
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	writeMeans(t, artifacts.MeansPath, []float64{95, 97, 37, 120, 10, 60})

	require.Eventually(t, func() bool {
		hr, _ := provider.Service().Means().Mean("HR")
		return hr == 95
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestResetTimerDropsStaleExpiry(t *testing.T) {
	timer := time.NewTimer(time.Millisecond)
	defer timer.Stop()
	time.Sleep(20 * time.Millisecond)

	resetTimer(timer, 200*time.Millisecond)
	select {
	case <-timer.C:
		t.Fatal("debounce fired from an old expiry")
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case <-timer.C:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired after reset")
	}
}
