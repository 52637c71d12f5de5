// Package analysis computes content metrics and ranked thumbnails from
// the sampled frames of a video.
package analysis

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/keagan/reelscope/internal/frames"
	"github.com/keagan/reelscope/internal/ocr"
)

// Analyzer runs the analysis passes. Each method performs its own full
// decode of the input and is safe to call concurrently.
type Analyzer struct {
	logger   zerolog.Logger
	opener   frames.Opener
	ocr      ocr.Engine
	params   Params
	onDecode func(int)
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithDecodeHook registers fn to be called for every decoded frame of
// every pass. fn may be called from several goroutines.
func WithDecodeHook(fn func(index int)) Option {
	return func(a *Analyzer) { a.onDecode = fn }
}

// New creates an analyzer. A nil OCR engine never detects text.
func New(logger zerolog.Logger, opener frames.Opener, engine ocr.Engine, params Params, opts ...Option) (*Analyzer, error) {
	if opener == nil {
		return nil, errors.New("frame opener is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		engine = ocr.Noop{}
	}
	a := &Analyzer{
		logger: logger.With().Str("component", "analysis").Logger(),
		opener: opener,
		ocr:    engine,
		params: params,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Params returns the analyzer settings.
func (a *Analyzer) Params() Params {
	return a.params
}

// DetectHardCuts counts abrupt scene changes between consecutive samples.
func (a *Analyzer) DetectHardCuts(ctx context.Context, path string, fps float64) (int, error) {
	c := newCutCounter(a.params.CutThreshold)
	if _, err := a.pass(ctx, "cuts", path, fps, c); err != nil {
		return 0, err
	}
	a.logger.Info().Str("path", path).Int("hard_cuts", c.cuts).Msg("hard cut detection complete")
	return c.cuts, nil
}

// CalculateAverageMotion returns the mean optical-flow magnitude between
// consecutive samples, or 0 when fewer than two frames were sampled.
func (a *Analyzer) CalculateAverageMotion(ctx context.Context, path string, fps float64) (float64, error) {
	m := newMotionMeter(a.logger, a.params.Flow)
	if _, err := a.pass(ctx, "motion", path, fps, m); err != nil {
		return 0, err
	}
	a.logger.Info().
		Str("path", path).
		Float64("avg_motion", m.average()).
		Int("pairs", m.pairs).
		Int("skipped", m.failures).
		Msg("motion estimation complete")
	return m.average(), nil
}

// CalculateTextPresenceRatio returns the share of samples carrying text.
func (a *Analyzer) CalculateTextPresenceRatio(ctx context.Context, path string, fps float64) (float64, error) {
	m := newTextMeter(a.logger, a.ocr, a.params.MinTextLength)
	if _, err := a.pass(ctx, "text", path, fps, m); err != nil {
		return 0, err
	}
	a.logger.Info().
		Str("path", path).
		Float64("text_ratio", m.ratio()).
		Int("sampled", m.sampled).
		Int("ocr_failures", m.failures).
		Msg("text presence estimation complete")
	return m.ratio(), nil
}

// ExtractTopThumbnails returns up to maxThumbnails of the sharpest,
// mutually distinct samples, cropped for platform, best first. A
// non-positive maxThumbnails uses the configured default.
func (a *Analyzer) ExtractTopThumbnails(ctx context.Context, path string, fps float64, platform Platform, maxThumbnails int) ([]Thumbnail, error) {
	tp := newThumbnailPicker(a.logger, a.params, a.limit(maxThumbnails))
	if _, err := a.pass(ctx, "thumbnails", path, fps, tp); err != nil {
		return nil, err
	}
	thumbs := tp.thumbnails(platform)
	a.logger.Info().
		Str("path", path).
		Str("platform", string(platform)).
		Int("thumbnails", len(thumbs)).
		Msg("thumbnail extraction complete")
	return thumbs, nil
}

// Result bundles the output of every pass.
type Result struct {
	Samples          int
	HardCuts         int
	AverageMotion    float64
	TextPresentRatio float64
	Thumbnails       []Thumbnail
}

// AnalyzeAll computes every metric and the thumbnails from a single
// decode. Its values equal those of the four separate methods.
func (a *Analyzer) AnalyzeAll(ctx context.Context, path string, fps float64, platform Platform, maxThumbnails int) (*Result, error) {
	cuts := newCutCounter(a.params.CutThreshold)
	motion := newMotionMeter(a.logger, a.params.Flow)
	text := newTextMeter(a.logger, a.ocr, a.params.MinTextLength)
	thumbs := newThumbnailPicker(a.logger, a.params, a.limit(maxThumbnails))

	n, err := a.pass(ctx, "all", path, fps, cuts, motion, text, thumbs)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Samples:          n,
		HardCuts:         cuts.cuts,
		AverageMotion:    motion.average(),
		TextPresentRatio: text.ratio(),
		Thumbnails:       thumbs.thumbnails(platform),
	}
	a.logger.Info().
		Str("path", path).
		Int("samples", n).
		Int("hard_cuts", res.HardCuts).
		Float64("avg_motion", res.AverageMotion).
		Float64("text_ratio", res.TextPresentRatio).
		Int("thumbnails", len(res.Thumbnails)).
		Msg("single pass analysis complete")
	return res, nil
}

func (a *Analyzer) limit(n int) int {
	if n <= 0 {
		return a.params.MaxThumbnails
	}
	return n
}
