// Package vision holds the pixel-level primitives used by the analyzers:
// grayscale conversion, intensity histograms, Laplacian sharpness and
// dense optical flow. Everything here is pure Go and works on the
// standard image types.
package vision

import (
	"image"
	"image/draw"
)

// BT.601 luma weights in Q14 fixed point.
const (
	lumaR     = 4899
	lumaG     = 9617
	lumaB     = 1868
	lumaShift = 14
	lumaRound = 1 << (lumaShift - 1)
)

// Gray converts img to 8-bit luma using Y = 0.299R + 0.587G + 0.114B.
func Gray(img image.Image) *image.Gray {
	switch src := img.(type) {
	case *image.Gray:
		return src
	case *image.RGBA:
		return grayFromRGBA(src.Pix, src.Stride, src.Rect)
	case *image.NRGBA:
		return grayFromRGBA(src.Pix, src.Stride, src.Rect)
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return grayFromRGBA(rgba.Pix, rgba.Stride, rgba.Rect)
}

func grayFromRGBA(pix []uint8, stride int, r image.Rectangle) *image.Gray {
	w, h := r.Dx(), r.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := pix[y*stride : y*stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+3]
			dst[x] = uint8((int(p[0])*lumaR + int(p[1])*lumaG + int(p[2])*lumaB + lumaRound) >> lumaShift)
		}
	}
	return out
}
