package analysis

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/keagan/reelscope/internal/frames"
	"github.com/keagan/reelscope/internal/frames/framestest"
)

const clip = "clip.mp4"

// scriptedOCR replays a fixed list of outcomes, cycling when exhausted.
type scriptedOCR struct {
	mu     sync.Mutex
	calls  int
	script []Signal[string]
}

func (s *scriptedOCR) Recognize(context.Context, *image.Gray) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.script[s.calls%len(s.script)]
	s.calls++
	return out.Value, out.Err
}

func (s *scriptedOCR) Close() error { return nil }

func newTestAnalyzer(t *testing.T, v framestest.Video, engine *scriptedOCR) (*Analyzer, *framestest.Opener) {
	t.Helper()
	o := framestest.NewOpener()
	o.Add(clip, v)
	var a *Analyzer
	var err error
	if engine != nil {
		a, err = New(zerolog.Nop(), o, engine, DefaultParams())
	} else {
		a, err = New(zerolog.Nop(), o, nil, DefaultParams())
	}
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a, o
}

// alternating returns n frames at 30 fps whose sampled frames switch
// between mostly black and mostly white every sample.
func alternating(n int) framestest.Video {
	dark := framestest.Speckled(64, 48, 0, 255)
	bright := framestest.Speckled(64, 48, 255, 0)
	imgs := make([]*image.RGBA, n)
	for i := range imgs {
		if (i/15)%2 == 0 {
			imgs[i] = dark
		} else {
			imgs[i] = bright
		}
	}
	return framestest.Video{FPS: 30, Images: imgs}
}

func TestStaticVideo(t *testing.T) {
	v := framestest.Video{FPS: 30, Images: framestest.Repeat(framestest.Noise(64, 48, 1), 90)}
	a, o := newTestAnalyzer(t, v, nil)
	ctx := context.Background()

	cuts, err := a.DetectHardCuts(ctx, clip, 30)
	if err != nil {
		t.Fatalf("DetectHardCuts failed: %v", err)
	}
	if cuts != 0 {
		t.Errorf("expected 0 cuts, got %d", cuts)
	}

	motion, err := a.CalculateAverageMotion(ctx, clip, 30)
	if err != nil {
		t.Fatalf("CalculateAverageMotion failed: %v", err)
	}
	if motion != 0 {
		t.Errorf("expected 0 motion, got %v", motion)
	}

	if o.Opened() != 2 || o.Closed() != 2 {
		t.Errorf("expected 2 sources opened and closed, got %d/%d", o.Opened(), o.Closed())
	}
}

func TestAlternatingVideoCutsEveryTransition(t *testing.T) {
	// Samples at 0, 15, ..., 75: six samples, five transitions.
	a, _ := newTestAnalyzer(t, alternating(90), nil)

	cuts, err := a.DetectHardCuts(context.Background(), clip, 30)
	if err != nil {
		t.Fatalf("DetectHardCuts failed: %v", err)
	}
	if cuts != 5 {
		t.Errorf("expected 5 cuts, got %d", cuts)
	}
}

func TestSolidColorsAreNotCuts(t *testing.T) {
	black := framestest.Solid(32, 32, color.RGBA{A: 255})
	white := framestest.Solid(32, 32, color.RGBA{255, 255, 255, 255})
	v := framestest.Video{FPS: 2, Images: []*image.RGBA{black, white, black}}
	a, _ := newTestAnalyzer(t, v, nil)

	cuts, err := a.DetectHardCuts(context.Background(), clip, 2)
	if err != nil {
		t.Fatalf("DetectHardCuts failed: %v", err)
	}
	// Disjoint single-bin histograms score exactly 1.
	if cuts != 0 {
		t.Errorf("expected 0 cuts between solid frames, got %d", cuts)
	}
}

func TestMotionBetweenDifferentFrames(t *testing.T) {
	imgs := make([]*image.RGBA, 60)
	for i := range imgs {
		imgs[i] = framestest.Noise(64, 48, int64(i/15))
	}
	a, _ := newTestAnalyzer(t, framestest.Video{FPS: 30, Images: imgs}, nil)

	motion, err := a.CalculateAverageMotion(context.Background(), clip, 30)
	if err != nil {
		t.Fatalf("CalculateAverageMotion failed: %v", err)
	}
	if motion <= 0 || math.IsNaN(motion) {
		t.Errorf("expected positive motion, got %v", motion)
	}
}

func TestShortVideo(t *testing.T) {
	v := framestest.Video{FPS: 30, Images: framestest.Repeat(framestest.Noise(32, 32, 7), 10)}
	a, _ := newTestAnalyzer(t, v, &scriptedOCR{script: []Signal[string]{{Value: "BREAKING NEWS"}}})
	ctx := context.Background()

	cuts, err := a.DetectHardCuts(ctx, clip, 30)
	if err != nil || cuts != 0 {
		t.Errorf("expected 0 cuts, got %d, %v", cuts, err)
	}
	motion, err := a.CalculateAverageMotion(ctx, clip, 30)
	if err != nil || motion != 0 {
		t.Errorf("expected 0 motion, got %v, %v", motion, err)
	}
	ratio, err := a.CalculateTextPresenceRatio(ctx, clip, 30)
	if err != nil || ratio != 1 {
		t.Errorf("expected ratio 1 for the single sample, got %v, %v", ratio, err)
	}
}

func TestEmptyVideo(t *testing.T) {
	a, _ := newTestAnalyzer(t, framestest.Video{FPS: 30}, nil)

	res, err := a.AnalyzeAll(context.Background(), clip, 30, YouTube, 0)
	if err != nil {
		t.Fatalf("AnalyzeAll failed: %v", err)
	}
	if res.Samples != 0 || res.HardCuts != 0 || res.AverageMotion != 0 || res.TextPresentRatio != 0 {
		t.Errorf("expected neutral result, got %+v", res)
	}
	if len(res.Thumbnails) != 0 {
		t.Errorf("expected no thumbnails, got %d", len(res.Thumbnails))
	}
}

func TestTextPresenceRatio(t *testing.T) {
	engine := &scriptedOCR{script: []Signal[string]{
		{Value: "Subscribe now"},
		{Value: "  ab \n"},
		{Err: errors.New("tesseract crashed")},
		{Value: "LIMITED OFFER"},
	}}
	v := framestest.Video{FPS: 30, Images: framestest.Repeat(framestest.Noise(32, 32, 3), 120)}
	a, o := newTestAnalyzer(t, v, engine)

	ratio, err := a.CalculateTextPresenceRatio(context.Background(), clip, 30)
	if err != nil {
		t.Fatalf("CalculateTextPresenceRatio failed: %v", err)
	}
	// Eight samples, the script repeats twice: 4 of 8 carry text.
	if ratio != 0.5 {
		t.Errorf("expected 0.5, got %v", ratio)
	}
	if engine.calls != 8 {
		t.Errorf("expected 8 OCR calls, got %d", engine.calls)
	}
	if o.Closed() != 1 {
		t.Errorf("expected source closed, got %d", o.Closed())
	}
}

func TestTextRatioAllFailures(t *testing.T) {
	engine := &scriptedOCR{script: []Signal[string]{{Err: errors.New("boom")}}}
	v := framestest.Video{FPS: 30, Images: framestest.Repeat(framestest.Noise(16, 16, 3), 45)}
	a, _ := newTestAnalyzer(t, v, engine)

	ratio, err := a.CalculateTextPresenceRatio(context.Background(), clip, 30)
	if err != nil {
		t.Fatalf("expected OCR failures to be swallowed, got %v", err)
	}
	if ratio != 0 {
		t.Errorf("expected 0, got %v", ratio)
	}
}

func TestHasText(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"hello", false},
		{"  hello \n", false},
		{"hello!", true},
		{"héllo!", true},
		{"a b c", false},
		{"a b c d", true},
	}
	for _, tt := range tests {
		if got := HasText(tt.text, 5); got != tt.want {
			t.Errorf("HasText(%q) = %v, expected %v", tt.text, got, tt.want)
		}
	}
}

func distinctNoise(n, w, h int) []*image.RGBA {
	imgs := make([]*image.RGBA, n)
	for i := range imgs {
		imgs[i] = framestest.Noise(w, h, int64(i+1))
	}
	return imgs
}

func TestExtractTopThumbnailsLimitAndOrder(t *testing.T) {
	// At 2 fps every frame is sampled.
	v := framestest.Video{FPS: 2, Images: distinctNoise(12, 64, 36)}
	a, _ := newTestAnalyzer(t, v, nil)

	thumbs, err := a.ExtractTopThumbnails(context.Background(), clip, 2, YouTube, 5)
	if err != nil {
		t.Fatalf("ExtractTopThumbnails failed: %v", err)
	}
	if len(thumbs) != 5 {
		t.Fatalf("expected 5 thumbnails, got %d", len(thumbs))
	}
	seen := map[int]bool{}
	for i, th := range thumbs {
		if i > 0 && th.Score > thumbs[i-1].Score {
			t.Errorf("thumbnail %d scores higher than its predecessor", i)
		}
		if seen[th.FrameIndex] {
			t.Errorf("frame %d selected twice", th.FrameIndex)
		}
		seen[th.FrameIndex] = true
	}
}

func TestExtractTopThumbnailsDefaultLimit(t *testing.T) {
	v := framestest.Video{FPS: 2, Images: distinctNoise(15, 16, 16)}
	a, _ := newTestAnalyzer(t, v, nil)

	thumbs, err := a.ExtractTopThumbnails(context.Background(), clip, 2, Instagram, 0)
	if err != nil {
		t.Fatalf("ExtractTopThumbnails failed: %v", err)
	}
	if len(thumbs) != 10 {
		t.Errorf("expected default of 10 thumbnails, got %d", len(thumbs))
	}
}

func TestExtractTopThumbnailsDedup(t *testing.T) {
	same := framestest.Noise(32, 32, 42)
	imgs := append(framestest.Repeat(same, 5), framestest.Noise(32, 32, 1), framestest.Noise(32, 32, 2))
	v := framestest.Video{FPS: 2, Images: imgs}
	a, _ := newTestAnalyzer(t, v, nil)

	thumbs, err := a.ExtractTopThumbnails(context.Background(), clip, 2, "", 10)
	if err != nil {
		t.Fatalf("ExtractTopThumbnails failed: %v", err)
	}
	if len(thumbs) != 3 {
		t.Fatalf("expected 3 distinct thumbnails, got %d", len(thumbs))
	}
	for _, th := range thumbs {
		if th.FrameIndex > 0 && th.FrameIndex < 5 {
			t.Errorf("duplicate frame %d kept instead of the first occurrence", th.FrameIndex)
		}
	}
}

func TestThumbnailTiesKeepEarlierFrames(t *testing.T) {
	imgs := []*image.RGBA{
		framestest.Solid(16, 16, color.RGBA{10, 10, 10, 255}),
		framestest.Solid(16, 16, color.RGBA{20, 20, 20, 255}),
		framestest.Solid(16, 16, color.RGBA{30, 30, 30, 255}),
	}
	a, _ := newTestAnalyzer(t, framestest.Video{FPS: 2, Images: imgs}, nil)

	thumbs, err := a.ExtractTopThumbnails(context.Background(), clip, 2, "", 2)
	if err != nil {
		t.Fatalf("ExtractTopThumbnails failed: %v", err)
	}
	if len(thumbs) != 2 || thumbs[0].FrameIndex != 0 || thumbs[1].FrameIndex != 1 {
		t.Errorf("expected frames 0 and 1 in order, got %+v", thumbs)
	}
}

func TestThumbnailAspectRatios(t *testing.T) {
	tests := []struct {
		platform Platform
		w, h     int
	}{
		{YouTube, 320, 180},
		{YouTube, 180, 320},
		{Instagram, 320, 180},
		{TikTok, 320, 180},
		{TikTok, 180, 320},
	}
	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			v := framestest.Video{FPS: 2, Images: distinctNoise(3, tt.w, tt.h)}
			a, _ := newTestAnalyzer(t, v, nil)

			thumbs, err := a.ExtractTopThumbnails(context.Background(), clip, 2, tt.platform, 3)
			if err != nil {
				t.Fatalf("ExtractTopThumbnails failed: %v", err)
			}
			ratio, _ := tt.platform.AspectRatio()
			for _, th := range thumbs {
				img, err := jpeg.Decode(bytes.NewReader(th.Data))
				if err != nil {
					t.Fatalf("thumbnail is not a valid JPEG: %v", err)
				}
				b := img.Bounds()
				if b.Dx() != th.Width || b.Dy() != th.Height {
					t.Errorf("decoded %dx%d, reported %dx%d", b.Dx(), b.Dy(), th.Width, th.Height)
				}
				if math.Abs(float64(b.Dx())-float64(b.Dy())*ratio) > 1 &&
					math.Abs(float64(b.Dy())-float64(b.Dx())/ratio) > 1 {
					t.Errorf("%dx%d does not match ratio %v", b.Dx(), b.Dy(), ratio)
				}
			}
		})
	}
}

func TestThumbnailUnknownPlatformKeepsShape(t *testing.T) {
	v := framestest.Video{FPS: 2, Images: distinctNoise(1, 48, 20)}
	a, _ := newTestAnalyzer(t, v, nil)

	thumbs, err := a.ExtractTopThumbnails(context.Background(), clip, 2, "vimeo", 1)
	if err != nil {
		t.Fatalf("ExtractTopThumbnails failed: %v", err)
	}
	if len(thumbs) != 1 || thumbs[0].Width != 48 || thumbs[0].Height != 20 {
		t.Errorf("expected uncropped 48x20 thumbnail, got %+v", thumbs)
	}
}

func TestCropSize(t *testing.T) {
	tests := []struct {
		w, h         int
		ratio        float64
		wantW, wantH int
	}{
		{640, 360, 1, 360, 360},
		{360, 640, 1, 360, 360},
		{640, 360, 9.0 / 16.0, 202, 360},
		{360, 640, 16.0 / 9.0, 360, 202},
		{100, 100, 0, 100, 100},
	}
	for _, tt := range tests {
		w, h := CropSize(tt.w, tt.h, tt.ratio)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("CropSize(%d, %d, %v) = %dx%d, expected %dx%d", tt.w, tt.h, tt.ratio, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestParsePlatform(t *testing.T) {
	if p, ok := ParsePlatform(" TikTok "); !ok || p != TikTok {
		t.Errorf("expected tiktok, got %q, %v", p, ok)
	}
	if _, ok := ParsePlatform("vimeo"); ok {
		t.Error("expected vimeo to be rejected")
	}
}

func TestBase64(t *testing.T) {
	th := Thumbnail{Data: []byte("jpg")}
	if got := th.Base64(); got != "anBn" {
		t.Errorf("expected %q, got %q", "anBn", got)
	}
}

func TestOpenFailureIsSourceUnavailable(t *testing.T) {
	a, o := newTestAnalyzer(t, framestest.Video{FPS: 30}, nil)
	o.Err = errors.New("permission denied")
	ctx := context.Background()

	if _, err := a.DetectHardCuts(ctx, clip, 30); !errors.Is(err, frames.ErrSourceUnavailable) {
		t.Errorf("DetectHardCuts: expected ErrSourceUnavailable, got %v", err)
	}
	if _, err := a.CalculateAverageMotion(ctx, "other.mp4", 30); !errors.Is(err, frames.ErrSourceUnavailable) {
		t.Errorf("CalculateAverageMotion: expected ErrSourceUnavailable, got %v", err)
	}
	o.Err = nil
	if _, err := a.ExtractTopThumbnails(ctx, "missing.mp4", 30, YouTube, 3); !errors.Is(err, frames.ErrSourceUnavailable) {
		t.Errorf("ExtractTopThumbnails: expected ErrSourceUnavailable, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	a, _ := newTestAnalyzer(t, alternating(90), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.DetectHardCuts(ctx, clip, 30); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestIdempotentAndSinglePassMatches(t *testing.T) {
	engine := &scriptedOCR{script: []Signal[string]{{Value: "caption text"}, {Value: ""}}}
	a, o := newTestAnalyzer(t, alternating(90), engine)
	ctx := context.Background()

	cuts1, _ := a.DetectHardCuts(ctx, clip, 30)
	cuts2, _ := a.DetectHardCuts(ctx, clip, 30)
	motion1, _ := a.CalculateAverageMotion(ctx, clip, 30)
	motion2, _ := a.CalculateAverageMotion(ctx, clip, 30)
	if cuts1 != cuts2 || motion1 != motion2 {
		t.Errorf("repeated runs differ: cuts %d/%d motion %v/%v", cuts1, cuts2, motion1, motion2)
	}

	ratio, _ := a.CalculateTextPresenceRatio(ctx, clip, 30)
	thumbs, err := a.ExtractTopThumbnails(ctx, clip, 30, TikTok, 4)
	if err != nil {
		t.Fatalf("ExtractTopThumbnails failed: %v", err)
	}

	engine.calls = 0
	res, err := a.AnalyzeAll(ctx, clip, 30, TikTok, 4)
	if err != nil {
		t.Fatalf("AnalyzeAll failed: %v", err)
	}
	if res.HardCuts != cuts1 || res.AverageMotion != motion1 || res.TextPresentRatio != ratio {
		t.Errorf("single pass differs: %+v vs cuts=%d motion=%v ratio=%v", res, cuts1, motion1, ratio)
	}
	if len(res.Thumbnails) != len(thumbs) {
		t.Fatalf("expected %d thumbnails, got %d", len(thumbs), len(res.Thumbnails))
	}
	for i := range thumbs {
		if !bytes.Equal(res.Thumbnails[i].Data, thumbs[i].Data) {
			t.Errorf("thumbnail %d differs between modes", i)
		}
	}
	if o.Opened() != o.Closed() {
		t.Errorf("leaked sources: opened %d closed %d", o.Opened(), o.Closed())
	}
}

func TestNewRejectsInvalidParams(t *testing.T) {
	p := DefaultParams()
	p.MaxFrameWidth = 0
	if _, err := New(zerolog.Nop(), framestest.NewOpener(), nil, p); err == nil {
		t.Error("expected error for zero width cap")
	}
	if _, err := New(zerolog.Nop(), nil, nil, DefaultParams()); err == nil {
		t.Error("expected error for nil opener")
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"interval", func(p *Params) { p.SampleInterval = 0 }},
		{"threshold", func(p *Params) { p.CutThreshold = -1 }},
		{"quality", func(p *Params) { p.JPEGQuality = 101 }},
		{"dedup", func(p *Params) { p.DedupMode = "md5" }},
		{"prefix", func(p *Params) { p.DedupPrefixBytes = 0 }},
		{"thumbnails", func(p *Params) { p.MaxThumbnails = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := DefaultParams().Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestMetricsRounded(t *testing.T) {
	m := Metrics{FPS: 29.97002997, DurationSeconds: 10.0100001, AvgMotionMagnitude: 0.123456, TextPresentRatio: 1.0 / 3.0}.Rounded()
	if m.FPS != 29.97 || m.DurationSeconds != 10.01 || m.AvgMotionMagnitude != 0.1235 || m.TextPresentRatio != 0.3333 {
		t.Errorf("unexpected rounding: %+v", m)
	}
}

func TestSignalOr(t *testing.T) {
	if v := (Signal[int]{Value: 3}).Or(9); v != 3 {
		t.Errorf("expected 3, got %d", v)
	}
	if v := (Signal[int]{Value: 3, Err: errors.New("x")}).Or(9); v != 9 {
		t.Errorf("expected fallback 9, got %d", v)
	}
}

func noiseFrame(index int, seed int64) *frames.Frame {
	return &frames.Frame{Index: index, Image: framestest.Noise(40, 30, seed)}
}
