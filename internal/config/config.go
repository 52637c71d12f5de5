package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keagan/reelscope/internal/analysis"
	"github.com/keagan/reelscope/internal/ffmpeg"
	"github.com/keagan/reelscope/internal/ocr"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir     string `yaml:"work_dir"`
	TempDir     string `yaml:"temp_dir"`
	Concurrency int    `yaml:"concurrency"`

	Log LogConfig `yaml:"log"`

	// Analysis tunables and pass scheduling
	Analysis AnalysisConfig `yaml:"analysis"`

	// FFmpeg settings
	FFmpeg ffmpeg.Options `yaml:"ffmpeg"`

	OCR ocr.Config `yaml:"ocr"`

	// Upload limits
	Limits LimitsConfig `yaml:"limits"`

	Server ServerConfig `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AnalysisConfig struct {
	analysis.Params `yaml:",inline"`
	SinglePass      bool `yaml:"single_pass"`
}

type LimitsConfig struct {
	AllowedExtensions  []string `yaml:"allowed_extensions"`
	MaxFileSizeMB      int64    `yaml:"max_file_size_mb"`
	MaxDurationSeconds float64  `yaml:"max_duration_seconds"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadMB    int64         `yaml:"max_upload_mb"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings the analyzer or server cannot run with
func (c *Config) Validate() error {
	if err := c.Analysis.Params.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.Limits.MaxFileSizeMB <= 0 {
		return errors.New("limits: max_file_size_mb must be positive")
	}
	if c.Limits.MaxDurationSeconds <= 0 {
		return errors.New("limits: max_duration_seconds must be positive")
	}
	if len(c.Limits.AllowedExtensions) == 0 {
		return errors.New("limits: allowed_extensions must not be empty")
	}
	if c.Server.MaxUploadMB < c.Limits.MaxFileSizeMB {
		return fmt.Errorf("server: max_upload_mb (%d) must be at least limits.max_file_size_mb (%d)",
			c.Server.MaxUploadMB, c.Limits.MaxFileSizeMB)
	}
	return nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		WorkDir:     "./work",
		TempDir:     "./temp",
		Concurrency: 4,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Analysis: AnalysisConfig{
			Params: analysis.DefaultParams(),
		},
		FFmpeg: ffmpeg.Options{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
		},
		OCR: ocr.DefaultConfig(),
		Limits: LimitsConfig{
			AllowedExtensions:  []string{".mp4", ".mov", ".avi"},
			MaxFileSizeMB:      200,
			MaxDurationSeconds: 120,
		},
		Server: ServerConfig{
			Addr:           ":8000",
			ReadTimeout:    5 * time.Minute,
			WriteTimeout:   10 * time.Minute,
			RequestTimeout: 10 * time.Minute,
			MaxUploadMB:    210,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./reelscope.yaml",
		"./reelscope.yml",
		filepath.Join(os.Getenv("HOME"), ".reelscope", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
