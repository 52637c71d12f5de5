package vision

import "image"

// LaplacianVariance returns the population variance of the 4-neighbour
// Laplacian response of g. Higher values mean more in-focus detail.
// Borders are mirrored without repeating the edge pixel.
func LaplacianVariance(g *image.Gray) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	n := w * h
	if n == 0 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(g.Pix[reflect101(y, h)*g.Stride+reflect101(x, w)])
	}

	resp := make([]float64, n)
	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			resp[y*w+x] = v
			sum += v
		}
	}

	mean := sum / float64(n)
	var ss float64
	for _, v := range resp {
		d := v - mean
		ss += d * d
	}
	return ss / float64(n)
}

// reflect101 maps i into [0, n) mirroring around the edge pixels
// (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		} else {
			i = 2*n - 2 - i
		}
	}
	return i
}
