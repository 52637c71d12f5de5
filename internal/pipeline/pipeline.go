package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/keagan/reelscope/internal/analysis"
	"github.com/keagan/reelscope/internal/config"
	"github.com/keagan/reelscope/internal/ffmpeg"
	"github.com/keagan/reelscope/internal/ocr"
)

// Pipeline orchestrates probing and the analysis passes for one video at
// a time per call
type Pipeline struct {
	base   zerolog.Logger
	logger zerolog.Logger
	config *Config
	comp   Components
}

// New creates a new pipeline instance backed by ffmpeg and the
// configured OCR engine
func New(logger zerolog.Logger, cfg *Config, appCfg *config.Config) (*Pipeline, error) {
	if appCfg == nil {
		appCfg = config.Default()
	}
	if cfg == nil {
		cfg = &Config{
			Concurrency: appCfg.Concurrency,
			SinglePass:  appCfg.Analysis.SinglePass,
		}
	}

	// Initialize ffmpeg executor
	ffmpegExec, err := ffmpeg.New(logger, appCfg.FFmpeg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	engine, err := ocr.New(logger, appCfg.OCR)
	if err != nil {
		if errors.Is(err, ocr.ErrUnknownEngine) {
			return nil, err
		}
		// Missing OCR tooling counts every frame as textless.
		logger.Warn().Err(err).Str("engine", appCfg.OCR.Engine).Msg("ocr unavailable, text presence will be 0")
		engine = ocr.Noop{}
	}

	return NewWithComponents(logger, cfg, Components{
		Prober: ffmpegExec,
		Opener: ffmpegExec,
		OCR:    engine,
		Params: appCfg.Analysis.Params,
	})
}

// NewWithComponents builds a pipeline on explicit collaborators
func NewWithComponents(logger zerolog.Logger, cfg *Config, comp Components) (*Pipeline, error) {
	if cfg == nil {
		cfg = &Config{Concurrency: 4}
	}
	if comp.Prober == nil || comp.Opener == nil {
		return nil, errors.New("pipeline requires a prober and a frame opener")
	}
	if comp.OCR == nil {
		comp.OCR = ocr.Noop{}
	}
	if err := comp.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis params: %w", err)
	}
	return &Pipeline{
		base:   logger,
		logger: logger.With().Str("component", "pipeline").Logger(),
		config: cfg,
		comp:   comp,
	}, nil
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	return p.comp.OCR.Close()
}

// Probe reads metadata for input
func (p *Pipeline) Probe(ctx context.Context, input string) (*ffmpeg.VideoInfo, error) {
	if input == "" {
		return nil, fmt.Errorf("input path cannot be empty")
	}
	return p.comp.Prober.ProbeVideo(ctx, input)
}

// Analyze runs the full analysis pipeline on input video
func (p *Pipeline) Analyze(ctx context.Context, input string, opts AnalyzeOptions) (*Report, error) {
	info, err := p.Probe(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}
	return p.AnalyzeInfo(ctx, info, opts)
}

// AnalyzeInfo runs every pass on an already probed video
func (p *Pipeline) AnalyzeInfo(ctx context.Context, info *ffmpeg.VideoInfo, opts AnalyzeOptions) (*Report, error) {
	p.logger.Info().
		Str("input", info.FilePath).
		Str("platform", string(opts.Platform)).
		Bool("single_pass", p.config.SinglePass).
		Msg("starting analysis pipeline")

	passes := 4
	if p.config.SinglePass {
		passes = 1
	}
	a, err := p.analyzer(opts, passes*info.TotalFrames)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Info: info,
		Metrics: analysis.Metrics{
			FPS:         info.FPS,
			TotalFrames: info.TotalFrames,
		},
	}
	if info.FPS > 0 {
		report.Metrics.DurationSeconds = float64(info.TotalFrames) / info.FPS
	}

	path, fps := info.FilePath, info.FPS
	if p.config.SinglePass {
		res, err := a.AnalyzeAll(ctx, path, fps, opts.Platform, opts.MaxThumbnails)
		if err != nil {
			return nil, err
		}
		report.Metrics.HardCutCount = res.HardCuts
		report.Metrics.AvgMotionMagnitude = res.AverageMotion
		report.Metrics.TextPresentRatio = res.TextPresentRatio
		report.Thumbnails = res.Thumbnails
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(1, p.config.Concurrency))

		g.Go(func() (err error) {
			report.Metrics.HardCutCount, err = a.DetectHardCuts(gctx, path, fps)
			return err
		})
		g.Go(func() (err error) {
			report.Metrics.AvgMotionMagnitude, err = a.CalculateAverageMotion(gctx, path, fps)
			return err
		})
		g.Go(func() (err error) {
			report.Metrics.TextPresentRatio, err = a.CalculateTextPresenceRatio(gctx, path, fps)
			return err
		})
		g.Go(func() (err error) {
			report.Thumbnails, err = a.ExtractTopThumbnails(gctx, path, fps, opts.Platform, opts.MaxThumbnails)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	p.logger.Info().
		Str("input", info.FilePath).
		Int("hard_cuts", report.Metrics.HardCutCount).
		Float64("avg_motion", report.Metrics.AvgMotionMagnitude).
		Float64("text_ratio", report.Metrics.TextPresentRatio).
		Int("thumbnails", len(report.Thumbnails)).
		Msg("analysis pipeline complete")

	return report, nil
}

// Thumbnails runs only the thumbnail pass
func (p *Pipeline) Thumbnails(ctx context.Context, input string, opts AnalyzeOptions) ([]analysis.Thumbnail, error) {
	info, err := p.Probe(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}
	a, err := p.analyzer(opts, info.TotalFrames)
	if err != nil {
		return nil, err
	}
	return a.ExtractTopThumbnails(ctx, info.FilePath, info.FPS, opts.Platform, opts.MaxThumbnails)
}

// analyzer builds an analyzer whose decode hook reports progress
// against total frames.
func (p *Pipeline) analyzer(opts AnalyzeOptions, total int) (*analysis.Analyzer, error) {
	var aopts []analysis.Option
	if opts.Progress != nil {
		var (
			mu   sync.Mutex
			done int
		)
		progress := opts.Progress
		aopts = append(aopts, analysis.WithDecodeHook(func(int) {
			mu.Lock()
			defer mu.Unlock()
			done++
			progress(done, total)
		}))
	}
	return analysis.New(p.base, p.comp.Opener, p.comp.OCR, p.comp.Params, aopts...)
}
