package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"hash/fnv"
	"image"
	"sort"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/keagan/reelscope/internal/frames"
	"github.com/keagan/reelscope/internal/vision"
)

// Platform names a publishing target with a fixed thumbnail shape.
type Platform string

const (
	YouTube   Platform = "youtube"
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
)

// Platforms lists the targets with a known aspect ratio.
func Platforms() []Platform {
	return []Platform{YouTube, Instagram, TikTok}
}

// ParsePlatform normalizes s and reports whether it is a known target.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	_, ok := p.AspectRatio()
	return p, ok
}

// AspectRatio returns width/height for the platform. Unknown platforms
// report false and keep the source shape.
func (p Platform) AspectRatio() (float64, bool) {
	switch p {
	case YouTube:
		return 16.0 / 9.0, true
	case Instagram:
		return 1, true
	case TikTok:
		return 9.0 / 16.0, true
	}
	return 0, false
}

// Thumbnail is one selected, cropped and JPEG-encoded frame.
type Thumbnail struct {
	Data       []byte
	Width      int
	Height     int
	Score      float64
	FrameIndex int
	Timestamp  time.Duration
}

// Base64 returns the JPEG bytes in standard base64.
func (t Thumbnail) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Data)
}

type candidate struct {
	score float64
	key   uint64
	seq   int
	frame *frames.Frame
}

// ahead orders candidates by score, earlier samples first on ties.
func (c *candidate) ahead(o *candidate) bool {
	if c.score != o.score {
		return c.score > o.score
	}
	return c.seq < o.seq
}

// thumbnailPicker keeps the best frame per fingerprint, and only the top
// limit fingerprints, so memory stays bounded on long inputs. The result
// equals ranking every sample and skipping repeated fingerprints.
type thumbnailPicker struct {
	logger zerolog.Logger
	params Params
	limit  int
	seq    int
	kept   []*candidate
}

func newThumbnailPicker(logger zerolog.Logger, p Params, limit int) *thumbnailPicker {
	return &thumbnailPicker{logger: logger, params: p, limit: limit}
}

func (tp *thumbnailPicker) observe(_ context.Context, f *frames.Frame) {
	c := &candidate{
		score: vision.LaplacianVariance(f.Gray()),
		key:   tp.fingerprint(f),
		seq:   tp.seq,
		frame: f,
	}
	tp.seq++
	tp.offer(c)
}

func (tp *thumbnailPicker) offer(c *candidate) {
	for i, k := range tp.kept {
		if k.key != c.key {
			continue
		}
		if c.ahead(k) {
			tp.kept[i] = c
			tp.sort()
		}
		return
	}
	if len(tp.kept) < tp.limit {
		tp.kept = append(tp.kept, c)
		tp.sort()
		return
	}
	if last := tp.kept[len(tp.kept)-1]; c.ahead(last) {
		tp.kept[len(tp.kept)-1] = c
		tp.sort()
	}
}

func (tp *thumbnailPicker) sort() {
	sort.SliceStable(tp.kept, func(i, j int) bool {
		return tp.kept[i].ahead(tp.kept[j])
	})
}

func (tp *thumbnailPicker) fingerprint(f *frames.Frame) uint64 {
	if tp.params.DedupMode == DedupPerceptual {
		h, err := goimagehash.DifferenceHash(f.Image)
		if err == nil {
			return h.GetHash()
		}
		tp.logger.Debug().Err(err).Int("frame", f.Index).Msg("perceptual hash failed, using pixel prefix")
	}
	return PrefixKey(f.Image.Pix, tp.params.DedupPrefixBytes)
}

// thumbnails crops and encodes the kept frames in rank order. Frames
// that fail to encode are dropped.
func (tp *thumbnailPicker) thumbnails(platform Platform) []Thumbnail {
	out := make([]Thumbnail, 0, len(tp.kept))
	for _, c := range tp.kept {
		img := CropToPlatform(c.frame.Image, platform)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(tp.params.JPEGQuality)); err != nil {
			tp.logger.Warn().Err(err).Int("frame", c.frame.Index).Msg("dropping thumbnail that failed to encode")
			continue
		}
		b := img.Bounds()
		out = append(out, Thumbnail{
			Data:       buf.Bytes(),
			Width:      b.Dx(),
			Height:     b.Dy(),
			Score:      c.score,
			FrameIndex: c.frame.Index,
			Timestamp:  c.frame.Timestamp,
		})
	}
	return out
}

// PrefixKey hashes at most n leading bytes of pix with FNV-1a.
func PrefixKey(pix []byte, n int) uint64 {
	if n > len(pix) {
		n = len(pix)
	}
	h := fnv.New64a()
	h.Write(pix[:n])
	return h.Sum64()
}

// CropSize returns the largest centred size of w x h with the given
// width/height ratio, truncating to whole pixels.
func CropSize(w, h int, ratio float64) (int, int) {
	if w <= 0 || h <= 0 || ratio <= 0 {
		return w, h
	}
	if float64(w)/float64(h) > ratio {
		return max(1, int(float64(h)*ratio)), h
	}
	return w, max(1, int(float64(w)/ratio))
}

// CropToPlatform centre-crops img to the platform's aspect ratio.
func CropToPlatform(img image.Image, p Platform) image.Image {
	ratio, ok := p.AspectRatio()
	if !ok {
		return img
	}
	b := img.Bounds()
	w, h := CropSize(b.Dx(), b.Dy(), ratio)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.CropCenter(img, w, h)
}
