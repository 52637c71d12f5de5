// Package framestest provides in-memory frame sources and synthetic
// images for tests that must not depend on ffmpeg.
package framestest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/keagan/reelscope/internal/frames"
)

// Video is a list of images served as a decoded stream at FPS.
type Video struct {
	FPS    float64
	Images []*image.RGBA
}

// Opener serves registered videos by path. Every Open returns an
// independent Source over fresh copies of the images.
type Opener struct {
	mu     sync.Mutex
	videos map[string]Video
	opened int
	closed int

	// Err, when set, is returned by every Open.
	Err error
}

// NewOpener returns an empty Opener.
func NewOpener() *Opener {
	return &Opener{videos: make(map[string]Video)}
}

// Add registers a video under path.
func (o *Opener) Add(path string, v Video) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.videos[path] = v
}

// Open implements frames.Opener.
func (o *Opener) Open(ctx context.Context, path string) (frames.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	v, ok := o.videos[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, frames.ErrSourceUnavailable)
	}
	o.opened++
	return &source{owner: o, path: path, video: v}, nil
}

// Opened reports how many sources were handed out.
func (o *Opener) Opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened
}

// Closed reports how many sources were closed.
func (o *Opener) Closed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

type source struct {
	owner  *Opener
	path   string
	video  Video
	next   int
	closed bool
}

func (s *source) Next() (*frames.Frame, error) {
	if s.closed || s.next >= len(s.video.Images) {
		return nil, io.EOF
	}
	i := s.next
	s.next++
	var ts time.Duration
	if s.video.FPS > 0 {
		ts = time.Duration(float64(i) / s.video.FPS * float64(time.Second))
	}
	return &frames.Frame{Index: i, Timestamp: ts, Image: Clone(s.video.Images[i])}, nil
}

func (s *source) Info() frames.Info {
	info := frames.Info{Path: s.path, FPS: s.video.FPS, TotalFrames: len(s.video.Images)}
	if len(s.video.Images) > 0 {
		b := s.video.Images[0].Rect
		info.Width, info.Height = b.Dx(), b.Dy()
	}
	if s.video.FPS > 0 {
		info.Duration = time.Duration(float64(len(s.video.Images)) / s.video.FPS * float64(time.Second))
	}
	return info
}

func (s *source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.owner.mu.Lock()
	s.owner.closed++
	s.owner.mu.Unlock()
	return nil
}

// Repeat returns n references to img.
func Repeat(img *image.RGBA, n int) []*image.RGBA {
	out := make([]*image.RGBA, n)
	for i := range out {
		out[i] = img
	}
	return out
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// Speckled returns a gray image of value base with every 64th pixel set
// to speck. Two speckled frames with swapped values are far apart in
// histogram distance because both populate the same two bins.
func Speckled(w, h int, base, speck uint8) *image.RGBA {
	img := Solid(w, h, color.RGBA{base, base, base, 255})
	for p := 0; p < w*h; p += 64 {
		i := p * 4
		img.Pix[i], img.Pix[i+1], img.Pix[i+2] = speck, speck, speck
	}
	return img
}

// Noise returns an image of independent random gray pixels.
func Noise(w, h int, seed int64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r := rand.New(rand.NewSource(seed))
	for i := 0; i < len(img.Pix); i += 4 {
		v := uint8(r.Intn(256))
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

// Checkerboard returns a black and white board with square cells.
func Checkerboard(w, h, cell int) *image.RGBA {
	img := Solid(w, h, color.RGBA{0, 0, 0, 255})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				i := img.PixOffset(x, y)
				img.Pix[i], img.Pix[i+1], img.Pix[i+2] = 255, 255, 255
			}
		}
	}
	return img
}

// Clone returns a deep copy of img.
func Clone(img *image.RGBA) *image.RGBA {
	out := &image.RGBA{
		Pix:    make([]byte, len(img.Pix)),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	copy(out.Pix, img.Pix)
	return out
}
