package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	ffmpeggo "github.com/u2takey/ffmpeg-go"

	"github.com/keagan/reelscope/internal/frames"
)

// stderrTailLines bounds how much ffmpeg stderr is kept for error reports.
const stderrTailLines = 20

var (
	_ frames.Opener = (*Executor)(nil)
	_ frames.Source = (*Decoder)(nil)
)

// Open probes path and starts a decode process. It implements
// frames.Opener.
func (e *Executor) Open(ctx context.Context, path string) (frames.Source, error) {
	info, err := e.ProbeVideo(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.OpenProbed(ctx, info)
}

// OpenProbed starts a decode process for an already probed file.
func (e *Executor) OpenProbed(ctx context.Context, info *VideoInfo) (*Decoder, error) {
	w, h := info.DisplaySize()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid frame size %dx%d", frames.ErrSourceUnavailable, info.FilePath, w, h)
	}

	args := e.decodeArgs(info.FilePath)
	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("starting decoder")

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, e.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %v", frames.ErrSourceUnavailable, err)
	}

	d := &Decoder{
		logger:     e.logger.With().Str("path", info.FilePath).Logger(),
		parent:     ctx,
		cancel:     cancel,
		cmd:        cmd,
		stdout:     bufio.NewReaderSize(stdout, 1<<20),
		info:       info.FrameInfo(),
		stderrDone: make(chan struct{}),
	}
	go d.drainStderr(stderr)
	return d, nil
}

// decodeArgs builds an ffmpeg command line that writes every decoded
// frame of the first video stream to stdout as packed RGBA.
func (e *Executor) decodeArgs(path string) []string {
	inputArgs := ffmpeggo.KwArgs{}
	if e.threads > 0 {
		inputArgs["threads"] = e.threads
	}
	stream := ffmpeggo.Input(path, inputArgs).Output("pipe:", ffmpeggo.KwArgs{
		"f":       "rawvideo",
		"pix_fmt": "rgba",
		"map":     "0:v:0",
		"vsync":   "passthrough",
	})

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	return append(args, stream.GetArgs()...)
}

// Decoder reads raw frames from a running ffmpeg process. It is owned by
// a single caller. Frames are freshly allocated and may be retained.
type Decoder struct {
	logger zerolog.Logger
	parent context.Context
	cancel context.CancelFunc
	cmd    *exec.Cmd
	stdout *bufio.Reader
	info   frames.Info
	next   int
	eof    bool

	stderrDone chan struct{}
	tailMu     sync.Mutex
	tail       []string

	waitOnce sync.Once
	waitErr  error
}

// Info reports the probed stream description.
func (d *Decoder) Info() frames.Info {
	return d.info
}

// Next returns the next decoded frame or io.EOF. A short final frame
// ends the stream.
func (d *Decoder) Next() (*frames.Frame, error) {
	if d.eof {
		return nil, io.EOF
	}

	img := image.NewRGBA(image.Rect(0, 0, d.info.Width, d.info.Height))
	_, err := io.ReadFull(d.stdout, img.Pix)
	if err == nil {
		f := &frames.Frame{Index: d.next, Timestamp: d.timestamp(d.next), Image: img}
		d.next++
		return f, nil
	}

	d.eof = true
	readFailed := !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF)
	if readFailed {
		d.cancel()
	}
	waitErr := d.wait()

	if ctxErr := d.parent.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if readFailed {
		return nil, fmt.Errorf("read frame %d: %w", d.next, err)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		d.logger.Warn().Int("frame", d.next).Msg("dropping truncated final frame")
	}
	if waitErr != nil {
		if d.next == 0 {
			return nil, fmt.Errorf("%w: %s: ffmpeg: %v: %s",
				frames.ErrSourceUnavailable, d.info.Path, waitErr, d.stderrTail())
		}
		d.logger.Warn().Err(waitErr).Int("frames", d.next).Str("stderr", d.stderrTail()).
			Msg("decoder exited early, keeping frames read so far")
	}

	d.logger.Debug().Int("frames", d.next).Msg("decoder finished")
	return nil, io.EOF
}

// Close stops the decode process. It is safe to call more than once.
func (d *Decoder) Close() error {
	d.eof = true
	d.cancel()
	d.wait()
	return nil
}

func (d *Decoder) timestamp(index int) time.Duration {
	if d.info.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(index) / d.info.FPS * float64(time.Second))
}

// wait reaps the process once stderr has been drained.
func (d *Decoder) wait() error {
	d.waitOnce.Do(func() {
		<-d.stderrDone
		d.waitErr = d.cmd.Wait()
	})
	return d.waitErr
}

func (d *Decoder) drainStderr(r io.Reader) {
	defer close(d.stderrDone)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		d.logger.Debug().Str("stderr", line).Msg("ffmpeg output")

		d.tailMu.Lock()
		d.tail = append(d.tail, line)
		if len(d.tail) > stderrTailLines {
			d.tail = d.tail[len(d.tail)-stderrTailLines:]
		}
		d.tailMu.Unlock()
	}
}

func (d *Decoder) stderrTail() string {
	d.tailMu.Lock()
	defer d.tailMu.Unlock()
	return strings.Join(d.tail, "\n")
}
