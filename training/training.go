// Package training builds the offline artifacts: the feature means table and
// the gradient boosted sepsis classifier.
package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"sepsiswatch/config"
	"sepsiswatch/db"
	"sepsiswatch/ml"
	"sepsiswatch/pipeline"
)

// ErrSingleClass is returned when the corpus labels hold only one class.
var ErrSingleClass = errors.New("label column has a single class")

// Options drives one training run.
type Options struct {
	Folders     []string
	Ingestion   pipeline.IngestionConfig
	IDColumn    string
	LabelColumn string
	TestRatio   float64
	Seed        int64
	Balancer    string
	Neighbors   int
	Thresholds  []float64
	Boost       ml.BoostParams
	// ModelPath receives the fitted model. MeansPath, when set, receives the
	// means table the training data was imputed with.
	ModelPath string
	MeansPath string
	Workers   int
}

// OptionsFromConfig maps the corpus, training and artifact sections to Options.
func OptionsFromConfig(c *config.Config) Options {
	ingestion := pipeline.DefaultIngestionConfig()
	ingestion.Extension = c.Corpus.Extension
	ingestion.Workers = c.Corpus.Workers
	if c.Corpus.IDColumn != "" {
		ingestion.TextColumns = []string{c.Corpus.IDColumn}
	}
	return Options{
		Folders:     c.Corpus.Folders,
		Ingestion:   ingestion,
		IDColumn:    c.Corpus.IDColumn,
		LabelColumn: c.Corpus.LabelColumn,
		TestRatio:   c.Training.TestRatio,
		Seed:        c.Training.Seed,
		Balancer:    c.Training.Balancer,
		Neighbors:   c.Training.Neighbors,
		Thresholds:  c.Training.Thresholds,
		Boost:       c.Training.Boost,
		ModelPath:   c.Artifacts.ModelPath,
		MeansPath:   c.Artifacts.MeansPath,
		Workers:     c.Corpus.Workers,
	}
}

// Recorder persists a finished run.
type Recorder interface {
	SaveTrainingRun(ctx context.Context, run db.TrainingRun) (string, error)
}

// Result describes a finished run.
type Result struct {
	RunID         string
	Model         *ml.GradientBoostedClassifier
	Means         *ml.FeatureMeans
	Reports       []ml.ThresholdReport
	AUC           float64
	Rows          int
	DroppedRows   int
	ImputedCells  int
	TrainRows     int
	TestRows      int
	SyntheticRows int
	ClassCounts   map[int]int
	Duration      time.Duration
}

// BuildMeans loads the corpus and computes the feature means table.
func BuildMeans(ctx context.Context, opts Options, logger *zap.Logger) (*ml.FeatureMeans, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	corpus, err := pipeline.LoadCorpus(ctx, opts.Folders, opts.Ingestion, logger)
	if err != nil {
		return nil, err
	}
	return pipeline.BuildFeatureMeans(corpus, opts.IDColumn, opts.LabelColumn)
}

// Run trains, evaluates and saves the model. The recorder may be nil.
func Run(ctx context.Context, opts Options, recorder Recorder, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ModelPath == "" {
		return nil, errors.New("model output path is required")
	}
	if len(opts.Thresholds) == 0 {
		opts.Thresholds = ml.DefaultThresholds
	}
	if opts.Boost.Workers == 0 {
		opts.Boost.Workers = opts.Workers
	}
	start := time.Now()

	corpus, err := pipeline.LoadCorpus(ctx, opts.Folders, opts.Ingestion, logger)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	means, err := pipeline.BuildFeatureMeans(corpus, opts.IDColumn, opts.LabelColumn)
	if err != nil {
		return nil, fmt.Errorf("feature means: %w", err)
	}
	cleaning, err := pipeline.ImputeMeans(corpus, means)
	if err != nil {
		return nil, fmt.Errorf("impute: %w", err)
	}
	dataset, dropped, err := pipeline.BuildDataset(corpus, means.Names(), opts.LabelColumn)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	counts := ml.ClassCounts(dataset.Y)
	if len(counts) < 2 {
		return nil, ErrSingleClass
	}
	logger.Info("dataset ready",
		zap.Int("rows", len(dataset.X)),
		zap.Int("features", len(dataset.Features)),
		zap.Int("dropped_rows", dropped),
		zap.Int("imputed_cells", cleaning.ImputedCells),
		zap.Int("negatives", counts[0]),
		zap.Int("positives", counts[1]),
	)

	split, err := ml.StratifiedSplit(dataset.X, dataset.Y, opts.TestRatio, opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	balancer, err := ml.NewBalancer(opts.Balancer, opts.Neighbors, opts.Seed, opts.Workers)
	if err != nil {
		return nil, err
	}
	trainX, trainY, err := balancer.Resample(split.TrainX, split.TrainY)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	synthetic := len(trainX) - len(split.TrainX)
	logger.Info("training partition balanced",
		zap.String("balancer", opts.Balancer),
		zap.Int("train_rows", len(trainX)),
		zap.Int("synthetic_rows", synthetic),
		zap.Int("test_rows", len(split.TestX)),
	)

	model := ml.NewGradientBoostedClassifier(means.Names(), opts.Boost)
	if err := model.FitContext(ctx, trainX, trainY); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	probs, err := ml.PredictAll(model, split.TestX)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	reports, err := ml.EvaluateThresholds(probs, split.TestY, opts.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	auc, err := ml.ROCAUC(probs, split.TestY)
	if err != nil {
		return nil, fmt.Errorf("roc auc: %w", err)
	}

	if err := ensureDir(opts.ModelPath); err != nil {
		return nil, err
	}
	if err := model.Save(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	if opts.MeansPath != "" {
		if err := ensureDir(opts.MeansPath); err != nil {
			return nil, err
		}
		if err := means.Save(opts.MeansPath); err != nil {
			return nil, fmt.Errorf("save means: %w", err)
		}
	}

	result := &Result{
		Model:         model,
		Means:         means,
		Reports:       reports,
		AUC:           auc,
		Rows:          corpus.Len(),
		DroppedRows:   dropped,
		ImputedCells:  cleaning.ImputedCells,
		TrainRows:     len(split.TrainX),
		TestRows:      len(split.TestX),
		SyntheticRows: synthetic,
		ClassCounts:   counts,
		Duration:      time.Since(start),
	}
	logger.Info("model trained",
		zap.String("model_path", opts.ModelPath),
		zap.Int("trees", model.NumTrees()),
		zap.Float64("roc_auc", auc),
		zap.Duration("duration", result.Duration),
	)

	if recorder != nil {
		id, err := recorder.SaveTrainingRun(ctx, result.trainingRun(opts))
		if err != nil {
			return result, fmt.Errorf("record run: %w", err)
		}
		result.RunID = id
	}
	return result, nil
}

func (r *Result) trainingRun(opts Options) db.TrainingRun {
	params, _ := json.Marshal(r.Model.Params())
	run := db.TrainingRun{
		ModelName:     ml.ModelTypeGBT,
		ModelPath:     opts.ModelPath,
		MeansPath:     opts.MeansPath,
		Balancer:      opts.Balancer,
		Features:      r.Means.Len(),
		TrainRows:     r.TrainRows,
		TestRows:      r.TestRows,
		SyntheticRows: r.SyntheticRows,
		DroppedRows:   r.DroppedRows,
		AUC:           r.AUC,
		Params:        string(params),
		Duration:      r.Duration,
		TrainedAt:     time.Now(),
	}
	for _, report := range r.Reports {
		run.Thresholds = append(run.Thresholds, db.ThresholdMetrics{
			Threshold: report.Threshold,
			Accuracy:  report.Accuracy,
			Precision: report.Positive.Precision,
			Recall:    report.Positive.Recall,
			F1:        report.Positive.F1,
			TN:        report.Confusion.TN,
			FP:        report.Confusion.FP,
			FN:        report.Confusion.FN,
			TP:        report.Confusion.TP,
		})
	}
	return run
}

// Report renders the threshold sweep and the AUC for a terminal.
func (r *Result) Report() string {
	var b strings.Builder
	for _, report := range r.Reports {
		b.WriteString(report.Format())
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "ROC AUC Score: %.4f\n", r.AUC)
	return b.String()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
