package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"sepsiswatch/logging"
	"sepsiswatch/ml"
)

// Config is the whole process configuration, one section per concern.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       logging.Config  `yaml:"log"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Training  TrainingConfig  `yaml:"training"`
	Database  struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Port         int      `yaml:"port"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	CORSOrigins  []string `yaml:"cors_origins"`
}

// ArtifactsConfig locates the served model and means files.
type ArtifactsConfig struct {
	ModelType string `yaml:"model_type"`
	ModelPath string `yaml:"model_path"`
	MeansPath string `yaml:"means_path"`
	Watch     bool   `yaml:"watch"`
	CacheSize int    `yaml:"cache_size"`
}

// CorpusConfig describes where the patient files live and how to read them.
type CorpusConfig struct {
	Folders     []string `yaml:"folders"`
	Extension   string   `yaml:"extension"`
	IDColumn    string   `yaml:"id_column"`
	LabelColumn string   `yaml:"label_column"`
	Workers     int      `yaml:"workers"`
}

// TrainingConfig holds the split, balancing and boosting settings.
type TrainingConfig struct {
	TestRatio  float64        `yaml:"test_ratio"`
	Seed       int64          `yaml:"seed"`
	Balancer   string         `yaml:"balancer"`
	Neighbors  int            `yaml:"neighbors"`
	Thresholds []float64      `yaml:"thresholds"`
	Boost      ml.BoostParams `yaml:"boost"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.HTTP = HTTPConfig{
		Port:         5000,
		MaxBodyBytes: 64 << 10,
		CORSOrigins:  []string{"*"},
	}
	c.Log = logging.DefaultConfig()
	c.Artifacts = ArtifactsConfig{
		ModelType: ml.ModelTypeGBT,
		ModelPath: "sepsis_gbt_balanced.json",
		MeansPath: "feature_means.json",
		CacheSize: 1024,
	}
	c.Corpus = CorpusConfig{
		Folders:     []string{"training_setA", "training_setB"},
		Extension:   ".psv",
		IDColumn:    "Patient_ID",
		LabelColumn: "SepsisLabel",
		Workers:     8,
	}
	c.Training = TrainingConfig{
		TestRatio:  0.2,
		Seed:       42,
		Balancer:   ml.BalancerSMOTE,
		Neighbors:  5,
		Thresholds: append([]float64(nil), ml.DefaultThresholds...),
		Boost:      ml.DefaultBoostParams(),
	}
	c.Database.Path = "sepsis_runs.db"
	return c
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SEPSIS_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SEPSIS_HTTP_PORT: %w", err)
		}
		c.HTTP.Port = port
	}
	if v := os.Getenv("SEPSIS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SEPSIS_MODEL_PATH"); v != "" {
		c.Artifacts.ModelPath = v
	}
	if v := os.Getenv("SEPSIS_MEANS_PATH"); v != "" {
		c.Artifacts.MeansPath = v
	}
	if v := os.Getenv("SEPSIS_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be positive")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Artifacts.ModelPath == "" || c.Artifacts.MeansPath == "" {
		return errors.New("artifacts.model_path and artifacts.means_path are required")
	}
	if c.Artifacts.ModelType != "" && c.Artifacts.ModelType != ml.ModelTypeGBT {
		return fmt.Errorf("unsupported artifacts.model_type %q", c.Artifacts.ModelType)
	}
	if c.Artifacts.CacheSize < 0 {
		return errors.New("artifacts.cache_size must not be negative")
	}
	if c.Corpus.LabelColumn == "" {
		return errors.New("corpus.label_column is required")
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio %v must be in (0, 1)", c.Training.TestRatio)
	}
	for _, t := range c.Training.Thresholds {
		if t <= 0 || t >= 1 {
			return fmt.Errorf("training threshold %v must be in (0, 1)", t)
		}
	}
	switch c.Training.Balancer {
	case ml.BalancerSMOTE, ml.BalancerRandom, ml.BalancerNone:
	default:
		return fmt.Errorf("unknown training.balancer %q", c.Training.Balancer)
	}
	if c.Training.Balancer == ml.BalancerSMOTE && c.Training.Neighbors <= 0 {
		return errors.New("training.neighbors must be positive for smote")
	}
	if err := c.Training.Boost.Validate(); err != nil {
		return fmt.Errorf("training.boost: %w", err)
	}
	return nil
}
