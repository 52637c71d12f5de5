// Package frames defines the decoded-frame stream that every analyzer
// consumes and the sampler that thins it to a fixed time cadence.
package frames

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/keagan/reelscope/internal/vision"
)

// ErrSourceUnavailable is returned when a video cannot be opened or
// decoded at all.
var ErrSourceUnavailable = errors.New("video source unavailable")

// Frame is one decoded picture and its position in the source.
type Frame struct {
	// Index is the zero-based position in the full decoded stream.
	Index     int
	Timestamp time.Duration
	Image     *image.RGBA

	gray *image.Gray
}

// Gray returns the luma view of the frame, computed once.
func (f *Frame) Gray() *image.Gray {
	if f.gray == nil {
		f.gray = vision.Gray(f.Image)
	}
	return f.gray
}

// Info describes an open stream.
type Info struct {
	Path        string
	Width       int
	Height      int
	FPS         float64
	TotalFrames int
	Duration    time.Duration
}

// Source yields decoded frames in order. Next returns io.EOF once the
// stream is exhausted. A Source is owned by exactly one caller and must
// be closed on every exit path.
type Source interface {
	Next() (*Frame, error)
	Info() Info
	Close() error
}

// Opener opens a fresh Source per call.
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Source, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Source, error) {
	return f(ctx, path)
}
