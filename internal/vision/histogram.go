package vision

import (
	"image"
	"math"
)

// HistogramBins is the number of intensity bins, one per 8-bit level.
const HistogramBins = 256

// Histogram is a 256-bin intensity histogram.
type Histogram [HistogramBins]float64

// GrayHistogram counts pixel intensities of g.
func GrayHistogram(g *image.Gray) *Histogram {
	var h Histogram
	w, ht := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < ht; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for _, v := range row {
			h[v]++
		}
	}
	return &h
}

// NormalizeL2 scales h in place to unit Euclidean norm. An empty
// histogram is left untouched.
func (h *Histogram) NormalizeL2() *Histogram {
	var sum float64
	for _, v := range h {
		sum += v * v
	}
	if sum == 0 {
		return h
	}
	scale := 1 / math.Sqrt(sum)
	for i := range h {
		h[i] *= scale
	}
	return h
}

// ChiSquare returns sum((ref_i - cur_i)^2 / ref_i) over bins where the
// reference is non-zero. Bins empty in the reference do not contribute.
func ChiSquare(ref, cur *Histogram) float64 {
	var d float64
	for i := range ref {
		a := ref[i]
		if math.Abs(a) <= epsilon {
			continue
		}
		diff := a - cur[i]
		d += diff * diff / a
	}
	return d
}

const epsilon = 2.220446049250313e-16
