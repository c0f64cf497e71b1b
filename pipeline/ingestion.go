package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEmptyCorpus is returned when no configured folder yields a row.
var ErrEmptyCorpus = errors.New("corpus is empty")

// Corpus is the combined table of every per-subject file. Missing values are
// NaN. Column order is the header order of the first file read.
type Corpus struct {
	Columns []string
	Rows    [][]float64
	Files   int
}

// Len is the number of rows.
func (c *Corpus) Len() int {
	return len(c.Rows)
}

// ColumnIndex finds a column by header name.
func (c *Corpus) ColumnIndex(name string) (int, bool) {
	for i, column := range c.Columns {
		if column == name {
			return i, true
		}
	}
	return -1, false
}

// IngestionConfig controls how corpus folders are scanned.
type IngestionConfig struct {
	Extension string
	Separator rune
	// TextColumns may hold non-numeric values; unparsable cells become NaN.
	TextColumns []string
	Workers     int
}

// DefaultIngestionConfig reads pipe-separated .psv files with Patient_ID as text.
func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		Extension:   ".psv",
		Separator:   '|',
		TextColumns: []string{"Patient_ID"},
		Workers:     8,
	}
}

type parsedFile struct {
	path   string
	header []string
	rows   [][]float64
}

// LoadCorpus reads every matching file of every folder. Folders that do not
// exist are skipped with a warning; the call only fails on an empty result or
// on a malformed file.
func LoadCorpus(ctx context.Context, folders []string, config IngestionConfig, logger *zap.Logger) (*Corpus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Extension == "" {
		config.Extension = ".psv"
	}
	if config.Separator == 0 {
		config.Separator = '|'
	}

	var paths []string
	for _, folder := range folders {
		entries, err := os.ReadDir(folder)
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("corpus folder not found, skipping", zap.String("folder", folder))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read folder %s: %w", folder, err)
		}
		count := 0
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), config.Extension) {
				continue
			}
			paths = append(paths, filepath.Join(folder, entry.Name()))
			count++
		}
		logger.Info("found corpus files", zap.String("folder", folder), zap.Int("files", count))
	}
	if len(paths) == 0 {
		return nil, ErrEmptyCorpus
	}
	sort.Strings(paths)

	textColumns := make(map[string]bool, len(config.TextColumns))
	for _, column := range config.TextColumns {
		textColumns[column] = true
	}

	parsed := make([]parsedFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if config.Workers > 0 {
		g.SetLimit(config.Workers)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			file, err := readDelimitedFile(path, config.Separator, textColumns)
			if err != nil {
				return err
			}
			parsed[i] = file
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	corpus := &Corpus{Columns: parsed[0].header, Files: len(parsed)}
	for _, file := range parsed {
		order, err := alignColumns(corpus.Columns, file.header)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file.path, err)
		}
		for _, row := range file.rows {
			if order == nil {
				corpus.Rows = append(corpus.Rows, row)
				continue
			}
			aligned := make([]float64, len(row))
			for dst, src := range order {
				aligned[dst] = row[src]
			}
			corpus.Rows = append(corpus.Rows, aligned)
		}
	}
	if len(corpus.Rows) == 0 {
		return nil, ErrEmptyCorpus
	}
	logger.Info("corpus loaded",
		zap.Int("files", corpus.Files),
		zap.Int("rows", len(corpus.Rows)),
		zap.Int("columns", len(corpus.Columns)),
	)
	return corpus, nil
}

// alignColumns maps canonical positions to positions in header. A nil result
// means header already matches.
func alignColumns(canonical, header []string) ([]int, error) {
	if len(canonical) != len(header) {
		return nil, fmt.Errorf("has %d columns, expected %d", len(header), len(canonical))
	}
	same := true
	position := make(map[string]int, len(header))
	for i, name := range header {
		position[name] = i
		if canonical[i] != name {
			same = false
		}
	}
	if same {
		return nil, nil
	}
	order := make([]int, len(canonical))
	for dst, name := range canonical {
		src, ok := position[name]
		if !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
		order[dst] = src
	}
	return order, nil
}

func readDelimitedFile(path string, separator rune, textColumns map[string]bool) (parsedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return parsedFile{}, err
	}
	defer f.Close()

	reader := csv.NewReader(transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.Comma = separator
	reader.ReuseRecord = true

	record, err := reader.Read()
	if err == io.EOF {
		return parsedFile{}, fmt.Errorf("%s: missing header", path)
	}
	if err != nil {
		return parsedFile{}, fmt.Errorf("%s: %w", path, err)
	}
	header := make([]string, len(record))
	seen := make(map[string]bool, len(record))
	for i, name := range record {
		header[i] = strings.TrimSpace(name)
		if seen[header[i]] {
			return parsedFile{}, fmt.Errorf("%s: duplicate column %q", path, header[i])
		}
		seen[header[i]] = true
	}

	file := parsedFile{path: path, header: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return parsedFile{}, fmt.Errorf("%s: %w", path, err)
		}
		row := make([]float64, len(header))
		for i, cell := range record {
			value, err := parseCell(cell)
			if err != nil {
				if !textColumns[header[i]] {
					line, _ := reader.FieldPos(i)
					return parsedFile{}, fmt.Errorf("%s:%d: column %s: %w", path, line, header[i], err)
				}
				value = math.NaN()
			}
			row[i] = value
		}
		file.rows = append(file.rows, row)
	}
	return file, nil
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "nan") || strings.EqualFold(cell, "na") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}
