package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// FeatureMeans is the ordered table of population means used to fill
// features a caller did not observe. Its key order is the model schema order.
// A table is never mutated after construction.
type FeatureMeans struct {
	names  []string
	values []float64
	index  map[string]int
}

// NewFeatureMeans copies names and values into a table. Names must be unique
// and every value finite.
func NewFeatureMeans(names []string, values []float64) (*FeatureMeans, error) {
	if len(names) == 0 {
		return nil, errors.New("feature means table is empty")
	}
	if len(names) != len(values) {
		return nil, fmt.Errorf("feature means: %d names but %d values", len(names), len(values))
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("feature means: empty name at position %d", i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("feature means: duplicate feature %q", name)
		}
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return nil, fmt.Errorf("feature means: %s has non-finite mean", name)
		}
		index[name] = i
	}
	return &FeatureMeans{
		names:  append([]string(nil), names...),
		values: append([]float64(nil), values...),
		index:  index,
	}, nil
}

func (m *FeatureMeans) Len() int {
	return len(m.names)
}

// Names returns the schema in order.
func (m *FeatureMeans) Names() []string {
	return append([]string(nil), m.names...)
}

// Values returns a fresh copy of the means in schema order.
func (m *FeatureMeans) Values() []float64 {
	return append([]float64(nil), m.values...)
}

// Index returns the schema position of name.
func (m *FeatureMeans) Index(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// Mean returns the mean stored for name.
func (m *FeatureMeans) Mean(name string) (float64, bool) {
	i, ok := m.index[name]
	if !ok {
		return 0, false
	}
	return m.values[i], true
}

// MarshalJSON writes a JSON object whose keys follow schema order.
func (m *FeatureMeans) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, name := range m.names {
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(m.values[i])
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", name, err)
		}
		buf.WriteString("    ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
		if i < len(m.names)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of name -> number, keeping document order.
func (m *FeatureMeans) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("feature means: expected a JSON object")
	}

	var names []string
	var values []float64
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("feature means: unexpected token %v", tok)
		}
		var value *float64
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("feature means: %s: %w", name, err)
		}
		if value == nil {
			return fmt.Errorf("feature means: %s is null", name)
		}
		names = append(names, name)
		values = append(values, *value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("feature means: unexpected data after JSON object")
	}

	table, err := NewFeatureMeans(names, values)
	if err != nil {
		return err
	}
	*m = *table
	return nil
}

// Save writes the table as indented JSON in schema order.
func (m *FeatureMeans) Save(path string) error {
	payload, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	return os.WriteFile(path, payload, 0o644)
}

// LoadFeatureMeans reads a table written by Save.
func LoadFeatureMeans(path string) (*FeatureMeans, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	table := &FeatureMeans{}
	if err := table.UnmarshalJSON(payload); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return table, nil
}
