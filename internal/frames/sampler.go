package frames

import (
	"image"
	"image/draw"
	"io"
	"math"
	"time"

	"github.com/nfnt/resize"
)

// SamplerOptions configures a Sampler.
type SamplerOptions struct {
	// FPS is the caller-probed frame rate of the source.
	FPS float64
	// Period is the time between two sampled frames.
	Period time.Duration
	// MaxWidth caps the width of emitted frames; 0 disables resizing.
	MaxWidth int
	// OnDecode, if set, is called for every decoded frame, sampled or not.
	OnDecode func(index int)
}

// Interval returns the sampling stride in frames: round(fps*period),
// never less than one.
func Interval(fps float64, period time.Duration) int {
	n := int(math.Round(fps * period.Seconds()))
	if n < 1 {
		return 1
	}
	return n
}

// Sampler emits the frames of a Source whose index is a multiple of the
// sampling interval, downscaled to the configured width cap. It reads
// the source strictly forward and cannot be rewound.
type Sampler struct {
	src      Source
	interval int
	maxWidth int
	onDecode func(int)
	done     bool
}

// NewSampler wraps src. The sampler does not take ownership of src.
func NewSampler(src Source, opts SamplerOptions) *Sampler {
	return &Sampler{
		src:      src,
		interval: Interval(opts.FPS, opts.Period),
		maxWidth: opts.MaxWidth,
		onDecode: opts.OnDecode,
	}
}

// Interval reports the stride in frames.
func (s *Sampler) Interval() int {
	return s.interval
}

// Next returns the next sampled frame or io.EOF.
func (s *Sampler) Next() (*Frame, error) {
	if s.done {
		return nil, io.EOF
	}
	for {
		f, err := s.src.Next()
		if err != nil {
			s.done = true
			return nil, err
		}
		if s.onDecode != nil {
			s.onDecode(f.Index)
		}
		if f.Index%s.interval != 0 {
			continue
		}
		f.Image = Downscale(f.Image, s.maxWidth)
		return f, nil
	}
}

// Downscale shrinks img to maxWidth keeping the aspect ratio, with the
// height rounded to the nearest pixel. Images already narrow enough are
// returned unchanged.
func Downscale(img *image.RGBA, maxWidth int) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if maxWidth <= 0 || w <= maxWidth {
		return img
	}
	nh := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	if nh < 1 {
		nh = 1
	}

	out := resize.Resize(uint(maxWidth), uint(nh), img, resize.Bilinear)
	if rgba, ok := out.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := out.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, out, b.Min, draw.Src)
	return rgba
}
