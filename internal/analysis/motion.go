package analysis

import (
	"context"
	"image"

	"github.com/rs/zerolog"

	"github.com/keagan/reelscope/internal/frames"
	"github.com/keagan/reelscope/internal/vision"
)

// motionMeter averages the mean optical-flow magnitude between
// consecutive samples. The first sample is the baseline.
type motionMeter struct {
	logger   zerolog.Logger
	params   vision.FlowParams
	prev     *image.Gray
	sum      float64
	pairs    int
	failures int
}

func newMotionMeter(logger zerolog.Logger, p vision.FlowParams) *motionMeter {
	return &motionMeter{logger: logger, params: p}
}

func (m *motionMeter) observe(_ context.Context, f *frames.Frame) {
	gray := f.Gray()
	if m.prev != nil {
		sig := m.measure(m.prev, gray)
		if sig.Err != nil {
			m.failures++
			m.logger.Debug().Err(sig.Err).Int("frame", f.Index).Msg("optical flow skipped")
		} else {
			m.sum += sig.Value
			m.pairs++
		}
	}
	m.prev = gray
}

func (m *motionMeter) measure(prev, next *image.Gray) Signal[float64] {
	flow, err := vision.Farneback(prev, next, m.params)
	if err != nil {
		return Signal[float64]{Err: err}
	}
	return Signal[float64]{Value: flow.MeanMagnitude()}
}

func (m *motionMeter) average() float64 {
	if m.pairs == 0 {
		return 0
	}
	return m.sum / float64(m.pairs)
}
