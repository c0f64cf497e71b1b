package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadCorpusCombinesFolders(t *testing.T) {
	root := t.TempDir()
	setA := filepath.Join(root, "training_setA")
	setB := filepath.Join(root, "training_setB")
	writeFile(t, setA, "p000001.psv", "HR|Temp|SepsisLabel\n80|36.5|0\nNaN|37.1|0\n")
	writeFile(t, setA, "p000002.psv", "\ufeffHR|Temp|SepsisLabel\n120||1\n")
	writeFile(t, setA, "notes.txt", "ignored")
	// same columns, different order
	writeFile(t, setB, "p100001.psv", "Temp|SepsisLabel|HR\n38.0|1|110\n")

	core, logs := observer.New(zap.InfoLevel)
	missing := filepath.Join(root, "nope")
	corpus, err := LoadCorpus(context.Background(), []string{setA, missing, setB}, DefaultIngestionConfig(), zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, []string{"HR", "Temp", "SepsisLabel"}, corpus.Columns)
	assert.Equal(t, 3, corpus.Files)
	require.Equal(t, 4, corpus.Len())

	assert.Equal(t, []float64{80, 36.5, 0}, corpus.Rows[0])
	assert.True(t, math.IsNaN(corpus.Rows[1][0]))
	assert.Equal(t, 120.0, corpus.Rows[2][0])
	assert.True(t, math.IsNaN(corpus.Rows[2][1]))
	assert.Equal(t, []float64{110, 38.0, 1}, corpus.Rows[3])

	warnings := logs.FilterMessage("corpus folder not found, skipping").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, missing, warnings[0].ContextMap()["folder"])
}

func TestLoadCorpusEmpty(t *testing.T) {
	root := t.TempDir()
	_, err := LoadCorpus(context.Background(), []string{filepath.Join(root, "missing")}, DefaultIngestionConfig(), nil)
	assert.ErrorIs(t, err, ErrEmptyCorpus)

	writeFile(t, root, "p1.psv", "HR|SepsisLabel\n")
	_, err = LoadCorpus(context.Background(), []string{root}, DefaultIngestionConfig(), nil)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestLoadCorpusRejectsMalformedFiles(t *testing.T) {
	cases := map[string][]string{
		"column mismatch": {"HR|SepsisLabel\n1|0\n", "HR|Temp\n1|2\n"},
		"bad number":      {"HR|SepsisLabel\nfast|0\n"},
		"ragged row":      {"HR|SepsisLabel\n1|0|3\n"},
		"duplicate":       {"HR|HR\n1|2\n"},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			for i, content := range files {
				writeFile(t, dir, "p"+string(rune('0'+i))+".psv", content)
			}
			_, err := LoadCorpus(context.Background(), []string{dir}, DefaultIngestionConfig(), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadCorpusTextIdentifierColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "all.psv", "Patient_ID|HR|SepsisLabel\nabc-1|90|0\n17|95|1\n")
	corpus, err := LoadCorpus(context.Background(), []string{dir}, DefaultIngestionConfig(), nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(corpus.Rows[0][0]))
	assert.Equal(t, 17.0, corpus.Rows[1][0])
}
