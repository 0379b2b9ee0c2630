// Package config loads the YAML configuration of vessel-morph.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"vessel-morph/internal/analysis"
	"vessel-morph/internal/models"
	"vessel-morph/internal/processing"
	"vessel-morph/internal/segmentation"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "vessel-morph.yaml"

type Config struct {
	Image       ImageConfig       `yaml:"image" json:"image"`
	Measurement MeasurementConfig `yaml:"measurement" json:"measurement"`
	Masking     MaskingConfig     `yaml:"masking" json:"masking"`
	Predictor   PredictorConfig   `yaml:"predictor" json:"predictor"`
	Log         LogConfig         `yaml:"log" json:"log"`
	Categories  []string          `yaml:"categories" json:"categories"`
}

type ImageConfig struct {
	PixelSize             float64 `yaml:"pixel_size" json:"pixel_size"`
	SizeUnit              string  `yaml:"size_unit" json:"size_unit"`
	MaxInternalResolution int     `yaml:"max_internal_resolution" json:"max_internal_resolution"`
}

type MeasurementConfig struct {
	AngleStep       float64 `yaml:"angle_step" json:"angle_step"`
	SurroundSamples int     `yaml:"surround_samples" json:"surround_samples"`
}

type MaskingConfig struct {
	GreenThreshold int `yaml:"green_threshold" json:"green_threshold"`
	RedThreshold   int `yaml:"red_threshold" json:"red_threshold"`
	OpeningSize    int `yaml:"opening_size" json:"opening_size"`
	ClosingSize    int `yaml:"closing_size" json:"closing_size"`
}

// PredictorConfig selects the segmentation backend. Without a weights URL
// the Otsu model is used.
type PredictorConfig struct {
	WeightsURL       string        `yaml:"weights_url" json:"weights_url"`
	WeightsPath      string        `yaml:"weights_path" json:"weights_path"`
	ScoreThreshold   float64       `yaml:"score_threshold" json:"score_threshold"`
	OverlapThreshold float64       `yaml:"overlap_threshold" json:"overlap_threshold"`
	InitTimeout      time.Duration `yaml:"init_timeout" json:"init_timeout"`
}

type LogConfig struct {
	Level   string `yaml:"level" json:"level"`
	Console bool   `yaml:"console" json:"console"`
}

func DefaultConfig() *Config {
	return &Config{
		Image: ImageConfig{
			PixelSize:             models.DefaultPixelSize,
			SizeUnit:              models.DefaultSizeUnit,
			MaxInternalResolution: 1024,
		},
		Measurement: MeasurementConfig{
			AngleStep:       10,
			SurroundSamples: 100,
		},
		Masking: MaskingConfig{
			GreenThreshold: processing.DefaultThreshold,
			RedThreshold:   processing.DefaultThreshold,
			OpeningSize:    6,
			ClosingSize:    10,
		},
		Predictor: PredictorConfig{
			WeightsPath:      "weights/segmenter.bin",
			ScoreThreshold:   0.8,
			OverlapThreshold: 0.5,
			InitTimeout:      2 * time.Minute,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Categories: []string{"Category 1", "Category 2", "Category 3"},
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write stores cfg as YAML.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	switch {
	case c.Image.PixelSize <= 0:
		return NewValidationError("image.pixel_size", c.Image.PixelSize, "must be positive")
	case c.Image.SizeUnit == "":
		return NewValidationError("image.size_unit", c.Image.SizeUnit, "must not be empty")
	case c.Image.MaxInternalResolution <= 0:
		return NewValidationError("image.max_internal_resolution", c.Image.MaxInternalResolution, "must be positive")
	case c.Measurement.AngleStep <= 0 || c.Measurement.AngleStep > 360:
		return NewValidationError("measurement.angle_step", c.Measurement.AngleStep, "must be in (0, 360]")
	case c.Measurement.SurroundSamples <= 0:
		return NewValidationError("measurement.surround_samples", c.Measurement.SurroundSamples, "must be positive")
	case !inRange(c.Masking.GreenThreshold, 0, 255):
		return NewValidationError("masking.green_threshold", c.Masking.GreenThreshold, "must be in [0, 255]")
	case !inRange(c.Masking.RedThreshold, 0, 255):
		return NewValidationError("masking.red_threshold", c.Masking.RedThreshold, "must be in [0, 255]")
	case c.Masking.OpeningSize < 1:
		return NewValidationError("masking.opening_size", c.Masking.OpeningSize, "must be at least 1")
	case c.Masking.ClosingSize < 1:
		return NewValidationError("masking.closing_size", c.Masking.ClosingSize, "must be at least 1")
	case c.Predictor.ScoreThreshold < 0 || c.Predictor.ScoreThreshold > 1:
		return NewValidationError("predictor.score_threshold", c.Predictor.ScoreThreshold, "must be in [0, 1]")
	case c.Predictor.OverlapThreshold < 0 || c.Predictor.OverlapThreshold > 1:
		return NewValidationError("predictor.overlap_threshold", c.Predictor.OverlapThreshold, "must be in [0, 1]")
	case c.Predictor.WeightsURL != "" && c.Predictor.WeightsPath == "":
		return NewValidationError("predictor.weights_path", c.Predictor.WeightsPath, "required with a weights url")
	case len(c.Categories) == 0:
		return NewValidationError("categories", c.Categories, "at least one category is required")
	}
	return nil
}

// PredictorOptions maps the predictor section onto segmentation options.
func (c *Config) PredictorOptions() segmentation.Options {
	return segmentation.Options{
		WeightsURL:  c.Predictor.WeightsURL,
		WeightsPath: c.Predictor.WeightsPath,
		InitTimeout: c.Predictor.InitTimeout,
	}
}

// AnalysisSettings maps the measurement and masking sections onto the
// defaults of new analyses.
func (c *Config) AnalysisSettings() analysis.Settings {
	return analysis.Settings{
		AngleStep:       c.Measurement.AngleStep,
		SurroundSamples: c.Measurement.SurroundSamples,
		GreenThreshold:  c.Masking.GreenThreshold,
		RedThreshold:    c.Masking.RedThreshold,
		OpeningSize:     c.Masking.OpeningSize,
		ClosingSize:     c.Masking.ClosingSize,
	}
}

func inRange(v, lo, hi int) bool {
	return v >= lo && v <= hi
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("invalid config value for '%s' (%v): %s", ve.Field, ve.Value, ve.Message)
}
