package ffmpeg

import (
	"time"

	"github.com/keagan/reelscope/internal/frames"
)

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath    string        `json:"file_path"`
	Duration    time.Duration `json:"duration"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	FPS         float64       `json:"fps"`
	TotalFrames int           `json:"total_frames"`
	Rotation    int           `json:"rotation"`
	Bitrate     int64         `json:"bitrate"`
	VideoCodec  string        `json:"video_codec"`
	HasAudio    bool          `json:"has_audio"`
	AudioCodec  string        `json:"audio_codec,omitempty"`
}

// DisplaySize returns the frame size after rotation metadata is applied,
// which is the size ffmpeg decodes to.
func (v *VideoInfo) DisplaySize() (int, int) {
	switch v.Rotation {
	case 90, 270:
		return v.Height, v.Width
	}
	return v.Width, v.Height
}

// FrameInfo describes the decoded stream.
func (v *VideoInfo) FrameInfo() frames.Info {
	w, h := v.DisplaySize()
	return frames.Info{
		Path:        v.FilePath,
		Width:       w,
		Height:      h,
		FPS:         v.FPS,
		TotalFrames: v.TotalFrames,
		Duration:    v.Duration,
	}
}
