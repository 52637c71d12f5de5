package analysis

import (
	"context"

	"github.com/keagan/reelscope/internal/frames"
	"github.com/keagan/reelscope/internal/vision"
)

// cutCounter counts samples whose histogram distance from the previous
// sample exceeds the threshold.
type cutCounter struct {
	threshold float64
	prev      *vision.Histogram
	cuts      int
}

func newCutCounter(threshold float64) *cutCounter {
	return &cutCounter{threshold: threshold}
}

func (c *cutCounter) observe(_ context.Context, f *frames.Frame) {
	h := vision.GrayHistogram(f.Gray()).NormalizeL2()
	if c.prev != nil && vision.ChiSquare(c.prev, h) > c.threshold {
		c.cuts++
	}
	c.prev = h
}
