package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/keagan/reelscope/internal/frames"
	"github.com/keagan/reelscope/pkg/util"
)

// ProbeVideo extracts metadata from a video file. Every failure wraps
// frames.ErrSourceUnavailable.
func (e *Executor) ProbeVideo(ctx context.Context, filePath string) (*VideoInfo, error) {
	if filePath == "" {
		return nil, fmt.Errorf("%w: file path is required", frames.ErrSourceUnavailable)
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		detail := ""
		if ee, ok := err.(*exec.ExitError); ok {
			detail = strings.TrimSpace(string(ee.Stderr))
		}
		return nil, fmt.Errorf("%w: ffprobe %s: %v %s", frames.ErrSourceUnavailable, filePath, err, detail)
	}

	info, err := parseProbe(output)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", frames.ErrSourceUnavailable, filePath, err)
	}
	info.FilePath = filePath

	e.logger.Debug().
		Str("path", filePath).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Int("frames", info.TotalFrames).
		Msg("probed video")
	return info, nil
}

func parseProbe(output []byte) (*VideoInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = util.Seconds(dur)
	}
	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	video := false
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if video {
				continue
			}
			video = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName
			info.Rotation = stream.rotation()

			// r_frame_rate first, avg_frame_rate for streams that leave it unset
			info.FPS = util.ParseFrameRate(stream.RFrameRate)
			if info.FPS == 0 {
				info.FPS = util.ParseFrameRate(stream.AvgFrameRate)
			}
			if n, err := strconv.Atoi(stream.NbFrames); err == nil {
				info.TotalFrames = n
			}
			if info.Duration == 0 {
				if dur, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					info.Duration = util.Seconds(dur)
				}
			}
		case "audio":
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
		}
	}
	if !video {
		return nil, fmt.Errorf("no video stream")
	}
	if info.TotalFrames == 0 && info.FPS > 0 {
		info.TotalFrames = int(math.Round(info.Duration.Seconds() * info.FPS))
	}
	return info, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	Tags         struct {
		Rotate string `json:"rotate"`
	} `json:"tags"`
	SideDataList []struct {
		Rotation float64 `json:"rotation"`
	} `json:"side_data_list"`
}

// rotation returns the clockwise display rotation in [0, 360).
func (s probeStream) rotation() int {
	var deg float64
	if r, err := strconv.ParseFloat(s.Tags.Rotate, 64); err == nil {
		deg = r
	}
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			// display matrix rotation is counter-clockwise
			deg = -sd.Rotation
			break
		}
	}
	r := int(math.Round(deg)) % 360
	if r < 0 {
		r += 360
	}
	return r
}
