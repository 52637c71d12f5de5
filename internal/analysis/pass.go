package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/keagan/reelscope/internal/frames"
)

// observer consumes the sampled frames of one decode pass in order.
type observer interface {
	observe(ctx context.Context, f *frames.Frame)
}

// pass opens path, samples it and feeds every sample to the observers.
// The source is closed on every path. It returns the number of samples.
func (a *Analyzer) pass(ctx context.Context, name, path string, fps float64, obs ...observer) (int, error) {
	src, err := a.opener.Open(ctx, path)
	if err != nil {
		if errors.Is(err, frames.ErrSourceUnavailable) || ctx.Err() != nil {
			return 0, err
		}
		return 0, fmt.Errorf("open %s: %w: %v", path, frames.ErrSourceUnavailable, err)
	}
	defer src.Close()

	s := frames.NewSampler(src, frames.SamplerOptions{
		FPS:      fps,
		Period:   a.params.SampleInterval,
		MaxWidth: a.params.MaxFrameWidth,
		OnDecode: a.onDecode,
	})
	a.logger.Debug().
		Str("pass", name).
		Str("path", path).
		Int("interval", s.Interval()).
		Msg("decode pass started")

	samples := 0
	for {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		f, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return samples, fmt.Errorf("%s pass: %w", name, err)
		}
		for _, o := range obs {
			o.observe(ctx, f)
		}
		samples++
	}

	a.logger.Debug().
		Str("pass", name).
		Int("samples", samples).
		Msg("decode pass finished")
	return samples, nil
}
