package vision

import (
	"errors"
	"image"
	"math"
)

// ErrSizeMismatch is returned when two frames handed to the flow
// estimator have different dimensions.
var ErrSizeMismatch = errors.New("vision: frame sizes differ")

// minPyramidSize is the smallest level side the pyramid descends to.
const minPyramidSize = 32

// FlowParams configures the Farneback estimator.
type FlowParams struct {
	PyrScale   float64 `yaml:"pyr_scale"`
	Levels     int     `yaml:"levels"`
	WinSize    int     `yaml:"win_size"`
	Iterations int     `yaml:"iterations"`
	PolyN      int     `yaml:"poly_n"`
	PolySigma  float64 `yaml:"poly_sigma"`
}

// DefaultFlowParams returns the parameter set used for motion metrics.
func DefaultFlowParams() FlowParams {
	return FlowParams{
		PyrScale:   0.5,
		Levels:     3,
		WinSize:    15,
		Iterations: 3,
		PolyN:      5,
		PolySigma:  1.2,
	}
}

// FlowField holds per-pixel displacement from the previous frame to the
// next one, row-major.
type FlowField struct {
	Width  int
	Height int
	DX     []float64
	DY     []float64
}

// MeanMagnitude returns the spatial mean of the Euclidean norm of the
// displacement vectors.
func (f *FlowField) MeanMagnitude() float64 {
	n := len(f.DX)
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Hypot(f.DX[i], f.DY[i])
	}
	return sum / float64(n)
}

// Farneback estimates dense optical flow between prev and next using
// polynomial expansion on a Gaussian pyramid. next(p) ≈ prev(p - d(p)).
func Farneback(prev, next *image.Gray, p FlowParams) (*FlowField, error) {
	w, h := prev.Rect.Dx(), prev.Rect.Dy()
	if next.Rect.Dx() != w || next.Rect.Dy() != h {
		return nil, ErrSizeMismatch
	}
	if w == 0 || h == 0 {
		return &FlowField{Width: w, Height: h}, nil
	}
	p = p.sanitized()

	base0, base1 := planeFromGray(prev), planeFromGray(next)

	levels := 0
	scale := 1.0
	for k := 1; k <= p.Levels; k++ {
		scale *= p.PyrScale
		if int(math.Round(float64(w)*scale)) < minPyramidSize ||
			int(math.Round(float64(h)*scale)) < minPyramidSize {
			break
		}
		levels = k
	}

	var fx, fy *plane
	for k := levels; k >= 0; k-- {
		scale := math.Pow(p.PyrScale, float64(k))
		lw := int(math.Round(float64(w) * scale))
		lh := int(math.Round(float64(h) * scale))

		i0, i1 := base0, base1
		if k > 0 {
			sigma := (1/scale - 1) * 0.5
			i0 = base0.gaussianBlur(sigma).resized(lw, lh)
			i1 = base1.gaussianBlur(sigma).resized(lw, lh)
		}

		if fx == nil {
			fx, fy = newPlane(lw, lh), newPlane(lw, lh)
		} else {
			fx = fx.resized(lw, lh).scale(1 / p.PyrScale)
			fy = fy.resized(lw, lh).scale(1 / p.PyrScale)
		}

		r0 := polyExpand(i0, p.PolyN, p.PolySigma)
		r1 := polyExpand(i1, p.PolyN, p.PolySigma)
		for it := 0; it < p.Iterations; it++ {
			m := flowMatrices(r0, r1, fx, fy)
			for _, c := range m {
				c.boxBlur(p.WinSize / 2)
			}
			solveFlow(m, fx, fy)
		}
	}

	return &FlowField{Width: w, Height: h, DX: fx.pix, DY: fy.pix}, nil
}

func (p FlowParams) sanitized() FlowParams {
	d := DefaultFlowParams()
	if p.PyrScale <= 0 || p.PyrScale >= 1 {
		p.PyrScale = d.PyrScale
	}
	if p.Levels < 0 {
		p.Levels = 0
	}
	if p.WinSize < 1 {
		p.WinSize = d.WinSize
	}
	if p.Iterations < 1 {
		p.Iterations = 1
	}
	if p.PolyN < 1 {
		p.PolyN = d.PolyN
	}
	if p.PolySigma <= 0 {
		p.PolySigma = d.PolySigma
	}
	return p
}

// Polynomial expansion channels: f(x) ≈ xᵀAx + bᵀx + c with
// A = [[axx, axy], [axy, ayy]].
const (
	chBX = iota
	chBY
	chAXX
	chAYY
	chAXY
	numCoeffs
)

type coeffs [numCoeffs]*plane

// polyExpand fits a quadratic to the Gaussian-weighted (2n+1)^2
// neighbourhood of every pixel by weighted least squares.
func polyExpand(src *plane, n int, sigma float64) coeffs {
	g := gaussianKernel(sigma, n)

	// Normal equations over the basis {1, x, y, x², y², xy}.
	var gram [6][6]float64
	for dy := -n; dy <= n; dy++ {
		for dx := -n; dx <= n; dx++ {
			wt := g[dx+n] * g[dy+n]
			fx, fy := float64(dx), float64(dy)
			basis := [6]float64{1, fx, fy, fx * fx, fy * fy, fx * fy}
			for i := 0; i < 6; i++ {
				for j := 0; j < 6; j++ {
					gram[i][j] += wt * basis[i] * basis[j]
				}
			}
		}
	}
	inv := invert6(gram)

	w, h := src.w, src.h
	v0, v1, v2 := newPlane(w, h), newPlane(w, h), newPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s0, s1, s2 float64
			for k := -n; k <= n; k++ {
				f := src.pix[clampInt(y+k, 0, h-1)*w+x] * g[k+n]
				fk := float64(k)
				s0 += f
				s1 += fk * f
				s2 += fk * fk * f
			}
			i := y*w + x
			v0.pix[i], v1.pix[i], v2.pix[i] = s0, s1, s2
		}
	}

	var out coeffs
	for c := range out {
		out[c] = newPlane(w, h)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var m [6]float64 // projections on 1, x, y, x², y², xy
			for k := -n; k <= n; k++ {
				j := y*w + clampInt(x+k, 0, w-1)
				gk := g[k+n]
				fk := float64(k)
				m[0] += gk * v0.pix[j]
				m[1] += fk * gk * v0.pix[j]
				m[2] += gk * v1.pix[j]
				m[3] += fk * fk * gk * v0.pix[j]
				m[4] += gk * v2.pix[j]
				m[5] += fk * gk * v1.pix[j]
			}
			var r [6]float64
			for a := 0; a < 6; a++ {
				for b := 0; b < 6; b++ {
					r[a] += inv[a][b] * m[b]
				}
			}
			i := y*w + x
			out[chBX].pix[i] = r[1]
			out[chBY].pix[i] = r[2]
			out[chAXX].pix[i] = r[3]
			out[chAYY].pix[i] = r[4]
			out[chAXY].pix[i] = r[5] / 2
		}
	}
	return out
}

// Per-pixel terms of the windowed normal equations G d = h.
const (
	mG11 = iota
	mG12
	mG22
	mH1
	mH2
	numMatrix
)

// flowMatrices builds AᵀA and AᵀΔb for every pixel given the current
// flow estimate, comparing prev's expansion at p with next's at p + d.
func flowMatrices(r0, r1 coeffs, fx, fy *plane) [numMatrix]*plane {
	w, h := fx.w, fx.h
	var m [numMatrix]*plane
	for c := range m {
		m[c] = newPlane(w, h)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			dx, dy := fx.pix[i], fy.pix[i]
			sx, sy := float64(x)+dx, float64(y)+dy

			a11 := (r0[chAXX].pix[i] + r1[chAXX].sample(sx, sy)) * 0.5
			a22 := (r0[chAYY].pix[i] + r1[chAYY].sample(sx, sy)) * 0.5
			a12 := (r0[chAXY].pix[i] + r1[chAXY].sample(sx, sy)) * 0.5

			bx := -0.5*(r1[chBX].sample(sx, sy)-r0[chBX].pix[i]) + a11*dx + a12*dy
			by := -0.5*(r1[chBY].sample(sx, sy)-r0[chBY].pix[i]) + a12*dx + a22*dy

			m[mG11].pix[i] = a11*a11 + a12*a12
			m[mG12].pix[i] = a12 * (a11 + a22)
			m[mG22].pix[i] = a12*a12 + a22*a22
			m[mH1].pix[i] = a11*bx + a12*by
			m[mH2].pix[i] = a12*bx + a22*by
		}
	}
	return m
}

// solveFlow writes d = G⁻¹h into fx, fy. The small bias keeps flat
// regions, where G vanishes, at zero displacement.
func solveFlow(m [numMatrix]*plane, fx, fy *plane) {
	for i := range fx.pix {
		g11, g12, g22 := m[mG11].pix[i], m[mG12].pix[i], m[mG22].pix[i]
		h1, h2 := m[mH1].pix[i], m[mH2].pix[i]
		idet := 1 / (g11*g22 - g12*g12 + 1e-3)
		fx.pix[i] = (g22*h1 - g12*h2) * idet
		fy.pix[i] = (g11*h2 - g12*h1) * idet
	}
}

// invert6 inverts a symmetric positive definite 6x6 matrix by
// Gauss-Jordan elimination with partial pivoting.
func invert6(a [6][6]float64) [6][6]float64 {
	var inv [6][6]float64
	for i := range inv {
		inv[i][i] = 1
	}
	for col := 0; col < 6; col++ {
		pivot := col
		for r := col + 1; r < 6; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		d := a[col][col]
		if d == 0 {
			continue
		}
		for j := 0; j < 6; j++ {
			a[col][j] /= d
			inv[col][j] /= d
		}
		for r := 0; r < 6; r++ {
			if r == col {
				continue
			}
			f := a[r][col]
			if f == 0 {
				continue
			}
			for j := 0; j < 6; j++ {
				a[r][j] -= f * a[col][j]
				inv[r][j] -= f * inv[col][j]
			}
		}
	}
	return inv
}
