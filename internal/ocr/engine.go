// Package ocr wraps the text recognizers used to detect on-screen text.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnknownEngine is returned by New for an unregistered engine name.
var ErrUnknownEngine = errors.New("unknown ocr engine")

// Engine recognizes text in a grayscale image.
type Engine interface {
	Recognize(ctx context.Context, img *image.Gray) (string, error)
	Close() error
}

// Config selects and tunes an engine.
type Config struct {
	Engine   string        `yaml:"engine"`
	Binary   string        `yaml:"binary"`
	Language string        `yaml:"language"`
	PSM      int           `yaml:"psm"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultConfig runs the tesseract CLI in English with automatic page
// segmentation.
func DefaultConfig() Config {
	return Config{
		Engine:   "tesseract",
		Binary:   "tesseract",
		Language: "eng",
		PSM:      3,
		Timeout:  10 * time.Second,
	}
}

// Factory builds an engine from its configuration.
type Factory func(logger zerolog.Logger, cfg Config) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"none": func(zerolog.Logger, Config) (Engine, error) { return Noop{}, nil },
	}
)

// Register makes an engine available to New under name.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Engines lists the registered engine names.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the engine named by cfg.Engine.
func New(logger zerolog.Logger, cfg Config) (Engine, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Engine]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownEngine, cfg.Engine, Engines())
	}
	return f(logger.With().Str("component", "ocr").Str("engine", cfg.Engine).Logger(), cfg)
}

// Noop never finds text.
type Noop struct{}

func (Noop) Recognize(context.Context, *image.Gray) (string, error) {
	return "", nil
}

func (Noop) Close() error {
	return nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
