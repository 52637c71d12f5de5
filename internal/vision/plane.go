package vision

import (
	"image"
	"math"
)

// plane is a single-channel float image used by the flow estimator.
type plane struct {
	w, h int
	pix  []float64
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]float64, w*h)}
}

func planeFromGray(g *image.Gray) *plane {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	p := newPlane(w, h)
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for x, v := range row {
			p.pix[y*w+x] = float64(v)
		}
	}
	return p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sample reads p at a fractional position with bilinear weights,
// replicating edge pixels outside the plane.
func (p *plane) sample(fx, fy float64) float64 {
	if fx < 0 {
		fx = 0
	} else if fx > float64(p.w-1) {
		fx = float64(p.w - 1)
	}
	if fy < 0 {
		fy = 0
	} else if fy > float64(p.h-1) {
		fy = float64(p.h - 1)
	}
	x0, y0 := int(fx), int(fy)
	x1, y1 := min(x0+1, p.w-1), min(y0+1, p.h-1)
	ax, ay := fx-float64(x0), fy-float64(y0)

	top := p.pix[y0*p.w+x0]*(1-ax) + p.pix[y0*p.w+x1]*ax
	bot := p.pix[y1*p.w+x0]*(1-ax) + p.pix[y1*p.w+x1]*ax
	return top*(1-ay) + bot*ay
}

// resized returns p scaled to w x h with bilinear interpolation and
// pixel-centre alignment.
func (p *plane) resized(w, h int) *plane {
	out := newPlane(w, h)
	sx := float64(p.w) / float64(w)
	sy := float64(p.h) / float64(h)
	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			out.pix[y*w+x] = p.sample(fx, fy)
		}
	}
	return out
}

func (p *plane) scale(f float64) *plane {
	for i := range p.pix {
		p.pix[i] *= f
	}
	return p
}

// gaussianKernel returns normalized weights for offsets -radius..radius.
func gaussianKernel(sigma float64, radius int) []float64 {
	k := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+radius] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// gaussianBlur smooths p with a separable Gaussian of the given sigma.
func (p *plane) gaussianBlur(sigma float64) *plane {
	ksize := int(math.Round(sigma*5)) | 1
	radius := ksize / 2
	if radius < 1 {
		return p
	}
	k := gaussianKernel(sigma, radius)

	tmp := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var s float64
			for i := -radius; i <= radius; i++ {
				s += k[i+radius] * p.pix[y*p.w+clampInt(x+i, 0, p.w-1)]
			}
			tmp.pix[y*p.w+x] = s
		}
	}
	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var s float64
			for i := -radius; i <= radius; i++ {
				s += k[i+radius] * tmp.pix[clampInt(y+i, 0, p.h-1)*p.w+x]
			}
			out.pix[y*p.w+x] = s
		}
	}
	return out
}

// boxBlur replaces every value with the mean of its (2r+1)^2
// neighbourhood, replicating edges. Runs in place.
func (p *plane) boxBlur(r int) {
	if r < 1 {
		return
	}
	norm := 1 / float64(2*r+1)
	line := make([]float64, max(p.w, p.h))

	for y := 0; y < p.h; y++ {
		row := p.pix[y*p.w : (y+1)*p.w]
		var s float64
		for i := -r; i <= r; i++ {
			s += row[clampInt(i, 0, p.w-1)]
		}
		for x := 0; x < p.w; x++ {
			line[x] = s * norm
			s += row[clampInt(x+r+1, 0, p.w-1)] - row[clampInt(x-r, 0, p.w-1)]
		}
		copy(row, line[:p.w])
	}

	for x := 0; x < p.w; x++ {
		var s float64
		for i := -r; i <= r; i++ {
			s += p.pix[clampInt(i, 0, p.h-1)*p.w+x]
		}
		for y := 0; y < p.h; y++ {
			line[y] = s * norm
			s += p.pix[clampInt(y+r+1, 0, p.h-1)*p.w+x] - p.pix[clampInt(y-r, 0, p.h-1)*p.w+x]
		}
		for y := 0; y < p.h; y++ {
			p.pix[y*p.w+x] = line[y]
		}
	}
}
