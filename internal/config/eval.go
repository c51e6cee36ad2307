package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of environment variables that override file values,
// e.g. TAGEVAL_MIN_THRESHOLD=0.05.
const EnvPrefix = "TAGEVAL"

// Defaults applied by the Get* accessors when a field is unset.
const (
	DefaultMinThreshold   = 0.01
	DefaultPrecisionFloor = 0.5
	DefaultAnnotatorID    = 0
	DefaultMode           = "fine"
)

// EvalConfig holds the parameters of one evaluation run. All fields are
// optional; the Get* methods supply defaults for anything left unset, so
// partial JSON files are safe.
type EvalConfig struct {
	// Scores below this value are not used as candidate thresholds.
	MinThreshold *float64 `json:"min_threshold,omitempty" envconfig:"MIN_THRESHOLD"`

	// Denominator floor for precision and recall; must lie strictly in (0, 1).
	PrecisionFloor *float64 `json:"precision_floor,omitempty" envconfig:"PRECISION_FLOOR"`

	// Maximum number of categories swept concurrently.
	Parallelism *int `json:"parallelism,omitempty" envconfig:"PARALLELISM"`

	// Annotator whose rows form the reference ground truth.
	AnnotatorID *int `json:"annotator_id,omitempty" envconfig:"ANNOTATOR_ID"`

	// "fine" or "coarse".
	Mode *string `json:"mode,omitempty" envconfig:"MODE"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyEvalConfig returns an EvalConfig with every field unset.
func EmptyEvalConfig() *EvalConfig {
	return &EvalConfig{}
}

// DefaultEvalConfig returns an EvalConfig with every field set to its default.
func DefaultEvalConfig() *EvalConfig {
	return &EvalConfig{
		MinThreshold:   ptrFloat64(DefaultMinThreshold),
		PrecisionFloor: ptrFloat64(DefaultPrecisionFloor),
		Parallelism:    ptrInt(runtime.GOMAXPROCS(0)),
		AnnotatorID:    ptrInt(DefaultAnnotatorID),
		Mode:           ptrString(DefaultMode),
	}
}

// LoadEvalConfig loads an EvalConfig from a JSON file, then applies
// TAGEVAL_* environment overrides and validates the result.
// The file must have a .json extension and be at most 1MB.
func LoadEvalConfig(path string) (*EvalConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEvalConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return finish(cfg)
}

// FromEnv builds an EvalConfig from TAGEVAL_* environment variables only.
func FromEnv() (*EvalConfig, error) {
	return finish(EmptyEvalConfig())
}

func finish(cfg *EvalConfig) (*EvalConfig, error) {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *EvalConfig) Validate() error {
	if c.MinThreshold != nil && *c.MinThreshold < 0 {
		return fmt.Errorf("min_threshold must be non-negative, got %f", *c.MinThreshold)
	}
	if c.PrecisionFloor != nil {
		if *c.PrecisionFloor <= 0 || *c.PrecisionFloor >= 1 {
			return fmt.Errorf("precision_floor must be strictly between 0 and 1, got %f", *c.PrecisionFloor)
		}
	}
	if c.Parallelism != nil && *c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", *c.Parallelism)
	}
	if c.AnnotatorID != nil && *c.AnnotatorID < 0 {
		return fmt.Errorf("annotator_id must be non-negative, got %d", *c.AnnotatorID)
	}
	if c.Mode != nil && *c.Mode != "fine" && *c.Mode != "coarse" {
		return fmt.Errorf("mode must be \"fine\" or \"coarse\", got %q", *c.Mode)
	}
	return nil
}

// GetMinThreshold returns the min_threshold value or the default.
func (c *EvalConfig) GetMinThreshold() float64 {
	if c.MinThreshold == nil {
		return DefaultMinThreshold
	}
	return *c.MinThreshold
}

// GetPrecisionFloor returns the precision_floor value or the default.
func (c *EvalConfig) GetPrecisionFloor() float64 {
	if c.PrecisionFloor == nil {
		return DefaultPrecisionFloor
	}
	return *c.PrecisionFloor
}

// GetParallelism returns the parallelism value, defaulting to GOMAXPROCS.
func (c *EvalConfig) GetParallelism() int {
	if c.Parallelism == nil {
		return runtime.GOMAXPROCS(0)
	}
	return *c.Parallelism
}

// GetAnnotatorID returns the annotator_id value or the default.
func (c *EvalConfig) GetAnnotatorID() int {
	if c.AnnotatorID == nil {
		return DefaultAnnotatorID
	}
	return *c.AnnotatorID
}

// GetMode returns the mode value or the default.
func (c *EvalConfig) GetMode() string {
	if c.Mode == nil || *c.Mode == "" {
		return DefaultMode
	}
	return *c.Mode
}

// Resolved returns a copy of c with every unset field replaced by its
// default, e.g. for recording the parameters a run actually used.
func (c *EvalConfig) Resolved() *EvalConfig {
	return &EvalConfig{
		MinThreshold:   ptrFloat64(c.GetMinThreshold()),
		PrecisionFloor: ptrFloat64(c.GetPrecisionFloor()),
		Parallelism:    ptrInt(c.GetParallelism()),
		AnnotatorID:    ptrInt(c.GetAnnotatorID()),
		Mode:           ptrString(c.GetMode()),
	}
}
