package pipeline

import (
	"context"

	"github.com/keagan/reelscope/internal/analysis"
	"github.com/keagan/reelscope/internal/ffmpeg"
	"github.com/keagan/reelscope/internal/frames"
	"github.com/keagan/reelscope/internal/ocr"
)

// Report is the merged outcome of analyzing one video
type Report struct {
	Info       *ffmpeg.VideoInfo
	Metrics    analysis.Metrics
	Thumbnails []analysis.Thumbnail
}

// AnalyzeOptions configures analysis behavior
type AnalyzeOptions struct {
	Platform      analysis.Platform
	MaxThumbnails int
	// Progress, if set, receives decoded frame counts summed over every
	// pass. Calls are serialized and done only ever grows.
	Progress func(done, total int)
}

// Config holds pipeline-specific configuration
type Config struct {
	// Concurrency bounds how many decode passes run at once
	Concurrency int
	// SinglePass fans one decode out to every analyzer
	SinglePass bool
}

// Prober reads container metadata
type Prober interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
}

// Components are the collaborators a pipeline runs on
type Components struct {
	Prober Prober
	Opener frames.Opener
	OCR    ocr.Engine
	Params analysis.Params
}
