package analysis

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/keagan/reelscope/internal/frames"
	"github.com/keagan/reelscope/internal/ocr"
)

// textMeter tracks the share of samples on which OCR finds text.
type textMeter struct {
	logger   zerolog.Logger
	engine   ocr.Engine
	minLen   int
	sampled  int
	withText int
	failures int
}

func newTextMeter(logger zerolog.Logger, engine ocr.Engine, minLen int) *textMeter {
	return &textMeter{logger: logger, engine: engine, minLen: minLen}
}

func (m *textMeter) observe(ctx context.Context, f *frames.Frame) {
	text, err := m.engine.Recognize(ctx, f.Gray())
	sig := Signal[string]{Value: text, Err: err}
	if sig.Err != nil {
		m.failures++
		m.logger.Debug().Err(sig.Err).Int("frame", f.Index).Msg("ocr failed, counting frame as textless")
	}
	if HasText(sig.Or(""), m.minLen) {
		m.withText++
	}
	m.sampled++
}

func (m *textMeter) ratio() float64 {
	if m.sampled == 0 {
		return 0
	}
	return float64(m.withText) / float64(m.sampled)
}

// HasText reports whether recognized text is long enough to count:
// more than minLen characters once surrounding whitespace is trimmed.
func HasText(text string, minLen int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) > minLen
}
