package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

func init() {
	Register("tesseract", newTesseract)
}

// Tesseract runs the tesseract command line tool once per image, feeding
// a PNG on stdin and reading plain text from stdout.
type Tesseract struct {
	logger zerolog.Logger
	path   string
	cfg    Config
}

func newTesseract(logger zerolog.Logger, cfg Config) (Engine, error) {
	return NewTesseract(logger, cfg)
}

// NewTesseract locates the tesseract binary.
func NewTesseract(logger zerolog.Logger, cfg Config) (*Tesseract, error) {
	bin := cfg.Binary
	if bin == "" {
		bin = "tesseract"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("tesseract not found in PATH: %w", err)
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}

	logger.Debug().Str("path", path).Msg("tesseract initialized")
	return &Tesseract{logger: logger, path: path, cfg: cfg}, nil
}

func (t *Tesseract) args() []string {
	args := []string{"stdin", "stdout", "-l", t.cfg.Language}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	return args
}

// Recognize runs one tesseract process. The configured timeout bounds
// each call on top of ctx.
func (t *Tesseract) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.path, t.args()...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("tesseract: %w", ctx.Err())
		}
		return "", fmt.Errorf("tesseract failed: %w\nstderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (t *Tesseract) Close() error {
	return nil
}
