//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"
)

func init() {
	Register("gosseract", newGosseract)
}

// Gosseract recognizes text in-process through libtesseract. The client
// is not safe for concurrent use, so calls are serialized.
type Gosseract struct {
	logger zerolog.Logger
	mu     sync.Mutex
	client *gosseract.Client
}

func newGosseract(logger zerolog.Logger, cfg Config) (Engine, error) {
	client := gosseract.NewClient()
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	psm := gosseract.PSM_AUTO
	if cfg.PSM > 0 {
		psm = gosseract.PageSegMode(cfg.PSM)
	}
	if err := client.SetPageSegMode(psm); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	return &Gosseract{logger: logger, client: client}, nil
}

func (g *Gosseract) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set OCR image: %w", err)
	}
	text, err := g.client.Text()
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}
	return text, nil
}

func (g *Gosseract) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.client.Close()
}
