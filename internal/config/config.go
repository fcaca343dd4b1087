// Package config loads and saves the pipeline configuration.
//
// Configuration lives in one YAML file with sections for data selection,
// model sizing, training, output layout, and the HTTP service. Every field
// has a default matching the reference protocol, so an absent file or an
// empty section is a valid configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration loaded from YAML.
type Config struct {
	// Data selects and shapes the patch dataset.
	Data struct {
		// DatasetName tags checkpoints, logs, and snapshots.
		DatasetName string `yaml:"datasetName"`

		// DataDir is the root folder holding image and label patches.
		DataDir string `yaml:"dataDir"`

		// MatchedCSV is the matched-pairs table for inference, relative
		// to DataDir unless absolute.
		MatchedCSV string `yaml:"matchedCsv"`

		// Organ restricts training and evaluation to files whose name
		// contains this substring; empty means all organs.
		Organ string `yaml:"organ"`

		// Percentage is the few-shot fraction of annotated pairs to
		// train on, in (0, 100].
		Percentage float64 `yaml:"percentage"`

		// TargetHeight and TargetWidth are the patch dimensions the
		// predictor consumes.
		TargetHeight int `yaml:"targetHeight"`
		TargetWidth  int `yaml:"targetWidth"`

		// TrainRatio, ValRatio, and TestRatio split the dataset.
		TrainRatio int `yaml:"trainRatio"`
		ValRatio   int `yaml:"valRatio"`
		TestRatio  int `yaml:"testRatio"`
	} `yaml:"data"`

	// Model sizes the warp predictor.
	Model struct {
		// Name selects the architecture from the registry.
		Name string `yaml:"name"`

		// Depth is the number of UNet encoder levels.
		Depth int `yaml:"depth"`

		// NumFilters is the width of the first encoder level.
		NumFilters int `yaml:"numFilters"`
	} `yaml:"model"`

	// Train controls the cyclic registration loop.
	Train struct {
		// Seed drives shuffling and augmentation sampling.
		Seed int `yaml:"seed"`

		LearningRate float64 `yaml:"learningRate"`
		BatchSize    int     `yaml:"batchSize"`
		MaxEpochs    int     `yaml:"maxEpochs"`

		// Patience is the early-stopping budget in epochs without
		// validation improvement.
		Patience int `yaml:"patience"`

		// LatentLoss names the objective of the upstream matching model;
		// it only tags run artifacts here.
		LatentLoss string `yaml:"latentLoss"`

		// StrongAugmentation switches the unannotated view from a warped
		// copy of the annotated patch to an independent patch.
		StrongAugmentation bool `yaml:"strongAugmentation"`

		// SnapshotsPerEpoch is the number of side-by-side grids written
		// per validation pass.
		SnapshotsPerEpoch int `yaml:"snapshotsPerEpoch"`
	} `yaml:"train"`

	// Output fixes where run artifacts land.
	Output struct {
		// RootDir is the base folder for logs, checkpoints, snapshots,
		// and predictions.
		RootDir string `yaml:"rootDir"`
	} `yaml:"output"`

	// Serve configures the HTTP registration service.
	Serve struct {
		Addr string `yaml:"addr"`
	} `yaml:"serve"`
}

// DefaultConfig returns the configuration with reference defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Data.DatasetName = "A28+axis"
	cfg.Data.DataDir = "data"
	cfg.Data.MatchedCSV = "matched_pairs.csv"
	cfg.Data.Organ = ""
	cfg.Data.Percentage = 100.0
	cfg.Data.TargetHeight = 32
	cfg.Data.TargetWidth = 32
	cfg.Data.TrainRatio = 6
	cfg.Data.ValRatio = 2
	cfg.Data.TestRatio = 2

	cfg.Model.Name = "unet"
	cfg.Model.Depth = 4
	cfg.Model.NumFilters = 32

	cfg.Train.Seed = 1
	cfg.Train.LearningRate = 1e-3
	cfg.Train.BatchSize = 8
	cfg.Train.MaxEpochs = 50
	cfg.Train.Patience = 50
	cfg.Train.LatentLoss = "SimCLR"
	cfg.Train.StrongAugmentation = false
	cfg.Train.SnapshotsPerEpoch = 2

	cfg.Output.RootDir = "results"

	cfg.Serve.Addr = ":8080"

	return cfg
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults; a present file overrides them field by field.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to a YAML file, creating parent
// directories as needed.
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile writes the default configuration to configPath.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate rejects configurations no run can use. Violations are reported
// one at a time; callers treat them as fatal.
func (c *Config) Validate() error {
	if c.Data.Percentage <= 0 || c.Data.Percentage > 100 {
		return fmt.Errorf("data.percentage must be in (0, 100], got %v", c.Data.Percentage)
	}
	if c.Data.TargetHeight < 1 || c.Data.TargetWidth < 1 {
		return fmt.Errorf("data target dimensions must be positive, got %dx%d", c.Data.TargetHeight, c.Data.TargetWidth)
	}
	if c.Data.TrainRatio < 1 || c.Data.ValRatio < 0 || c.Data.TestRatio < 0 {
		return fmt.Errorf("data split ratio %d:%d:%d is not usable", c.Data.TrainRatio, c.Data.ValRatio, c.Data.TestRatio)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name must be set")
	}
	if c.Model.Depth < 1 {
		return fmt.Errorf("model.depth must be at least 1, got %d", c.Model.Depth)
	}
	if c.Model.NumFilters < 1 {
		return fmt.Errorf("model.numFilters must be at least 1, got %d", c.Model.NumFilters)
	}
	if c.Train.LearningRate <= 0 {
		return fmt.Errorf("train.learningRate must be positive, got %v", c.Train.LearningRate)
	}
	if c.Train.BatchSize < 1 {
		return fmt.Errorf("train.batchSize must be at least 1, got %d", c.Train.BatchSize)
	}
	if c.Train.MaxEpochs < 1 {
		return fmt.Errorf("train.maxEpochs must be at least 1, got %d", c.Train.MaxEpochs)
	}
	if c.Train.Patience < 0 {
		return fmt.Errorf("train.patience must not be negative, got %d", c.Train.Patience)
	}
	return nil
}

// RunName is the tag shared by every artifact of one training run.
func (c *Config) RunName() string {
	organ := c.Data.Organ
	if organ == "" {
		organ = "none"
	}
	return fmt.Sprintf("dataset-%s_fewShot-%.1f%%_organ-%s_depth-%d_latentLoss-%s_seed%d",
		c.Data.DatasetName, c.Data.Percentage, organ, c.Model.Depth, c.Train.LatentLoss, c.Train.Seed)
}

// LogPath is the training log file for this run.
func (c *Config) LogPath() string {
	return filepath.Join(c.Output.RootDir, "logs", c.RunName()+".log")
}

// CheckpointPath is the model checkpoint file for this run.
func (c *Config) CheckpointPath() string {
	return filepath.Join(c.Output.RootDir, "checkpoints", c.RunName()+".cwpt")
}

// SnapshotDir holds the per-epoch side-by-side grids for this run.
func (c *Config) SnapshotDir() string {
	return filepath.Join(c.Output.RootDir, "snapshots", c.RunName())
}

// PredDir holds predicted label patches; stitched canvases land in its
// sibling folders.
func (c *Config) PredDir() string {
	return filepath.Join(c.Output.RootDir, "predictions", c.RunName(), "pred_patches")
}

// MatchedCSVPath resolves the matched-pairs table against DataDir.
func (c *Config) MatchedCSVPath() string {
	if filepath.IsAbs(c.Data.MatchedCSV) {
		return c.Data.MatchedCSV
	}
	return filepath.Join(c.Data.DataDir, c.Data.MatchedCSV)
}
