package analysis

import "github.com/keagan/reelscope/pkg/util"

// Metrics is the content summary of one video.
type Metrics struct {
	FPS                float64 `json:"fps"`
	TotalFrames        int     `json:"total_frames"`
	DurationSeconds    float64 `json:"duration_seconds"`
	HardCutCount       int     `json:"hard_cut_count"`
	AvgMotionMagnitude float64 `json:"avg_motion_magnitude"`
	TextPresentRatio   float64 `json:"text_present_ratio"`
}

// Rounded returns a copy with fps and duration at two decimals and the
// motion and text values at four.
func (m Metrics) Rounded() Metrics {
	m.FPS = util.Round(m.FPS, 2)
	m.DurationSeconds = util.Round(m.DurationSeconds, 2)
	m.AvgMotionMagnitude = util.Round(m.AvgMotionMagnitude, 4)
	m.TextPresentRatio = util.Round(m.TextPresentRatio, 4)
	return m
}
