package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/keagan/reelscope/internal/analysis"
	"github.com/keagan/reelscope/internal/ffmpeg"
	"github.com/keagan/reelscope/internal/frames"
	"github.com/keagan/reelscope/internal/frames/framestest"
)

type fakeProber struct {
	infos map[string]*ffmpeg.VideoInfo
}

func (f *fakeProber) ProbeVideo(_ context.Context, path string) (*ffmpeg.VideoInfo, error) {
	info, ok := f.infos[path]
	if !ok {
		return nil, frames.ErrSourceUnavailable
	}
	return info, nil
}

type alwaysText struct{}

func (alwaysText) Recognize(context.Context, *image.Gray) (string, error) {
	return "FOLLOW FOR MORE", nil
}

func (alwaysText) Close() error {
	return nil
}

func newTestPipeline(t *testing.T, cfg *Config) *Pipeline {
	t.Helper()
	imgs := make([]*image.RGBA, 90)
	for i := range imgs {
		if (i/15)%2 == 0 {
			imgs[i] = framestest.Speckled(64, 36, 0, 255)
		} else {
			imgs[i] = framestest.Speckled(64, 36, 255, 0)
		}
	}
	opener := framestest.NewOpener()
	opener.Add("clip.mp4", framestest.Video{FPS: 30, Images: imgs})

	prober := &fakeProber{infos: map[string]*ffmpeg.VideoInfo{
		"clip.mp4": {FilePath: "clip.mp4", Width: 64, Height: 36, FPS: 30, TotalFrames: 90},
	}}

	p, err := NewWithComponents(zerolog.Nop(), cfg, Components{
		Prober: prober,
		Opener: opener,
		OCR:    alwaysText{},
		Params: analysis.DefaultParams(),
	})
	if err != nil {
		t.Fatalf("NewWithComponents failed: %v", err)
	}
	return p
}

func TestAnalyzeMergesPasses(t *testing.T) {
	for _, cfg := range []*Config{
		{Concurrency: 1},
		{Concurrency: 4},
		{SinglePass: true},
	} {
		p := newTestPipeline(t, cfg)

		var mu sync.Mutex
		var last, total int
		report, err := p.Analyze(context.Background(), "clip.mp4", AnalyzeOptions{
			Platform: analysis.Instagram,
			Progress: func(done, tot int) {
				mu.Lock()
				defer mu.Unlock()
				if done > last {
					last = done
				}
				total = tot
			},
		})
		if err != nil {
			t.Fatalf("%+v: Analyze failed: %v", cfg, err)
		}

		m := report.Metrics
		if m.FPS != 30 || m.TotalFrames != 90 || m.DurationSeconds != 3 {
			t.Errorf("%+v: unexpected probe metrics %+v", cfg, m)
		}
		if m.HardCutCount != 5 {
			t.Errorf("%+v: expected 5 cuts, got %d", cfg, m.HardCutCount)
		}
		if m.TextPresentRatio != 1 {
			t.Errorf("%+v: expected text ratio 1, got %v", cfg, m.TextPresentRatio)
		}
		if len(report.Thumbnails) != 2 {
			t.Errorf("%+v: expected 2 distinct thumbnails, got %d", cfg, len(report.Thumbnails))
		}
		for _, th := range report.Thumbnails {
			if th.Width != th.Height {
				t.Errorf("%+v: expected square crop, got %dx%d", cfg, th.Width, th.Height)
			}
		}
		if last != total || total == 0 {
			t.Errorf("%+v: expected progress to reach %d, got %d", cfg, total, last)
		}
	}
}

func TestProgressIsOrderedAcrossPasses(t *testing.T) {
	p := newTestPipeline(t, &Config{Concurrency: 4})

	var seen []int
	var lastTotal int
	_, err := p.Analyze(context.Background(), "clip.mp4", AnalyzeOptions{
		Progress: func(done, total int) {
			seen = append(seen, done)
			lastTotal = total
		},
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if lastTotal != 4*90 {
		t.Errorf("expected total %d, got %d", 4*90, lastTotal)
	}
	if len(seen) != lastTotal {
		t.Fatalf("expected %d progress calls, got %d", lastTotal, len(seen))
	}
	for i, done := range seen {
		if done != i+1 {
			t.Fatalf("call %d: expected done %d, got %d", i, i+1, done)
		}
	}
}

func TestAnalyzeUnknownInput(t *testing.T) {
	p := newTestPipeline(t, nil)
	_, err := p.Analyze(context.Background(), "missing.mp4", AnalyzeOptions{})
	if !errors.Is(err, frames.ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
	if _, err := p.Analyze(context.Background(), "", AnalyzeOptions{}); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestAnalyzeDecodeFailure(t *testing.T) {
	prober := &fakeProber{infos: map[string]*ffmpeg.VideoInfo{
		"gone.mp4": {FilePath: "gone.mp4", Width: 64, Height: 36, FPS: 30, TotalFrames: 90},
	}}
	p, err := NewWithComponents(zerolog.Nop(), &Config{Concurrency: 4}, Components{
		Prober: prober,
		Opener: framestest.NewOpener(),
		Params: analysis.DefaultParams(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Analyze(context.Background(), "gone.mp4", AnalyzeOptions{}); !errors.Is(err, frames.ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestThumbnailsOnly(t *testing.T) {
	p := newTestPipeline(t, nil)
	thumbs, err := p.Thumbnails(context.Background(), "clip.mp4", AnalyzeOptions{Platform: analysis.TikTok, MaxThumbnails: 1})
	if err != nil {
		t.Fatalf("Thumbnails failed: %v", err)
	}
	if len(thumbs) != 1 {
		t.Fatalf("expected 1 thumbnail, got %d", len(thumbs))
	}
	if thumbs[0].Width != 20 || thumbs[0].Height != 36 {
		t.Errorf("expected 20x36 tiktok crop, got %dx%d", thumbs[0].Width, thumbs[0].Height)
	}
}

func TestNewWithComponentsValidates(t *testing.T) {
	if _, err := NewWithComponents(zerolog.Nop(), nil, Components{Params: analysis.DefaultParams()}); err == nil {
		t.Error("expected error without prober and opener")
	}
	bad := analysis.DefaultParams()
	bad.JPEGQuality = 0
	_, err := NewWithComponents(zerolog.Nop(), nil, Components{
		Prober: &fakeProber{},
		Opener: framestest.NewOpener(),
		Params: bad,
	})
	if err == nil {
		t.Error("expected error for invalid params")
	}
}
