package ml

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureMeansKeepsOrderOnDisk(t *testing.T) {
	names := []string{"HR", "O2Sat", "Temp", "Age"}
	table, err := NewFeatureMeans(names, []float64{84.58, 97.19, 36.97, 62.0})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "feature_means.json")
	require.NoError(t, table.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Less(t, strings.Index(text, `"HR"`), strings.Index(text, `"O2Sat"`))
	assert.Less(t, strings.Index(text, `"Temp"`), strings.Index(text, `"Age"`))

	var generic map[string]float64
	require.NoError(t, json.Unmarshal(raw, &generic), "artifact must stay plain JSON")
	assert.Equal(t, 84.58, generic["HR"])

	loaded, err := LoadFeatureMeans(path)
	require.NoError(t, err)
	assert.Equal(t, names, loaded.Names())
	assert.Equal(t, table.Values(), loaded.Values())

	mean, ok := loaded.Mean("Temp")
	assert.True(t, ok)
	assert.Equal(t, 36.97, mean)
	_, ok = loaded.Mean("Nope")
	assert.False(t, ok)
}

func TestFeatureMeansRejectsBadInput(t *testing.T) {
	_, err := NewFeatureMeans(nil, nil)
	assert.Error(t, err)
	_, err = NewFeatureMeans([]string{"HR", "HR"}, []float64{1, 2})
	assert.Error(t, err)
	_, err = NewFeatureMeans([]string{"HR"}, []float64{1, 2})
	assert.Error(t, err)

	for _, doc := range []string{`[]`, `{"HR": null}`, `{"HR": "high"}`, `{"HR": 1, "HR": 2}`, `{}`} {
		var table FeatureMeans
		assert.Error(t, json.Unmarshal([]byte(doc), &table), doc)
	}

	for _, doc := range []string{
		"{\"HR\": 84.6}\n{\"HR\": 1, \"Temp\": ",
		`{"HR": 84.6} {"Temp": 37}`,
		`{"HR": 84.6} 7`,
	} {
		var table FeatureMeans
		assert.Error(t, table.UnmarshalJSON([]byte(doc)), doc)
	}

	path := filepath.Join(t.TempDir(), "feature_means.json")
	require.NoError(t, os.WriteFile(path, []byte("{\"HR\": 84.6}\n{\"HR\": 1, \"Temp\": "), 0o644))
	_, err = LoadFeatureMeans(path)
	assert.Error(t, err)
}

func TestFeatureMeansCopiesAreIndependent(t *testing.T) {
	table, err := NewFeatureMeans([]string{"HR"}, []float64{80})
	require.NoError(t, err)
	values := table.Values()
	values[0] = 1
	names := table.Names()
	names[0] = "X"
	assert.Equal(t, []float64{80}, table.Values())
	assert.Equal(t, []string{"HR"}, table.Names())
}

func TestCheckSchema(t *testing.T) {
	assert.NoError(t, CheckSchema([]string{"a", "b"}, []string{"a", "b"}))
	assert.ErrorIs(t, CheckSchema([]string{"a", "b"}, []string{"b", "a"}), ErrSchemaMismatch)
	assert.ErrorIs(t, CheckSchema([]string{"a"}, []string{"a", "b"}), ErrSchemaMismatch)
}
