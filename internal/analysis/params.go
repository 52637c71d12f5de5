package analysis

import (
	"fmt"
	"time"

	"github.com/keagan/reelscope/internal/vision"
)

// DedupMode selects how thumbnail candidates are fingerprinted.
type DedupMode string

const (
	// DedupPrefix hashes the leading bytes of the raw pixel buffer.
	DedupPrefix DedupMode = "prefix"
	// DedupPerceptual uses a 64-bit difference hash of the frame.
	DedupPerceptual DedupMode = "perceptual"
)

// Params holds the tunables shared by every analysis pass.
type Params struct {
	SampleInterval   time.Duration     `yaml:"sample_interval"`
	MaxFrameWidth    int               `yaml:"max_frame_width"`
	CutThreshold     float64           `yaml:"cut_threshold"`
	MinTextLength    int               `yaml:"min_text_length"`
	MaxThumbnails    int               `yaml:"max_thumbnails"`
	DedupMode        DedupMode         `yaml:"dedup_mode"`
	DedupPrefixBytes int               `yaml:"dedup_prefix_bytes"`
	JPEGQuality      int               `yaml:"jpeg_quality"`
	Flow             vision.FlowParams `yaml:"flow"`
}

// DefaultParams returns the stock analysis settings.
func DefaultParams() Params {
	return Params{
		SampleInterval:   500 * time.Millisecond,
		MaxFrameWidth:    640,
		CutThreshold:     35,
		MinTextLength:    5,
		MaxThumbnails:    10,
		DedupMode:        DedupPrefix,
		DedupPrefixBytes: 1000,
		JPEGQuality:      95,
		Flow:             vision.DefaultFlowParams(),
	}
}

// Validate reports the first setting that cannot be used.
func (p Params) Validate() error {
	switch {
	case p.SampleInterval <= 0:
		return fmt.Errorf("sample_interval must be positive, got %s", p.SampleInterval)
	case p.MaxFrameWidth <= 0:
		return fmt.Errorf("max_frame_width must be positive, got %d", p.MaxFrameWidth)
	case p.CutThreshold < 0:
		return fmt.Errorf("cut_threshold must not be negative, got %v", p.CutThreshold)
	case p.MinTextLength < 0:
		return fmt.Errorf("min_text_length must not be negative, got %d", p.MinTextLength)
	case p.MaxThumbnails <= 0:
		return fmt.Errorf("max_thumbnails must be positive, got %d", p.MaxThumbnails)
	case p.DedupPrefixBytes <= 0:
		return fmt.Errorf("dedup_prefix_bytes must be positive, got %d", p.DedupPrefixBytes)
	case p.JPEGQuality < 1 || p.JPEGQuality > 100:
		return fmt.Errorf("jpeg_quality must be in [1, 100], got %d", p.JPEGQuality)
	}
	switch p.DedupMode {
	case DedupPrefix, DedupPerceptual:
	default:
		return fmt.Errorf("unknown dedup_mode %q", p.DedupMode)
	}
	return nil
}
