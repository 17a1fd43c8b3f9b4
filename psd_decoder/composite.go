package psd_decoder

import (
	"image"
)

// visibleLayers walks the records top-down and returns the pixel layers that
// are visible, themselves and through every enclosing group, bottom first.
func visibleLayers(layers []Layer) []*Layer {
	var (
		hiddenStack []bool
		hidden      bool
		out         []*Layer
	)
	for i := len(layers) - 1; i >= 0; i-- {
		l := &layers[i]
		switch {
		case l.IsGroupStart():
			hiddenStack = append(hiddenStack, hidden)
			hidden = hidden || l.Hidden()
		case l.IsGroupEnd():
			if n := len(hiddenStack); n > 0 {
				hidden = hiddenStack[n-1]
				hiddenStack = hiddenStack[:n-1]
			}
		default:
			if !hidden && !l.Hidden() && !l.Rect.Empty() {
				out = append(out, l)
			}
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// flattenLayers composites the visible layers onto a transparent canvas
// with normal blending and each layer's opacity. Other blend modes are
// composited as normal.
func flattenLayers(h Header, cs colorSpace, layers []Layer) (*image.NRGBA, error) {
	canvas := image.NewNRGBA(image.Rect(0, 0, int(h.Width), int(h.Height)))
	for _, l := range visibleLayers(layers) {
		r := l.Rect.Intersect(canvas.Rect)
		if r.Empty() || l.Opacity == 0 {
			continue
		}
		src, err := layerImage(l, h, cs)
		if err != nil {
			return nil, err
		}
		blendOver(canvas, src, r, l.Opacity)
	}
	return canvas, nil
}

// blendOver composites src over dst inside r with normal blending, scaling
// src alpha by opacity. Both images hold straight alpha and the arithmetic
// stays in straight alpha, so a layer over transparent pixels keeps its
// exact colors.
func blendOver(dst, src *image.NRGBA, r image.Rectangle, opacity uint8) {
	const one = 255 * 255
	for y := r.Min.Y; y < r.Max.Y; y++ {
		d := dst.Pix[dst.PixOffset(r.Min.X, y):dst.PixOffset(r.Max.X, y)]
		s := src.Pix[src.PixOffset(r.Min.X, y):src.PixOffset(r.Max.X, y)]
		for i := 0; i < len(d); i += 4 {
			a := uint64(s[i+3]) * uint64(opacity)
			if a == 0 {
				continue
			}
			// Weights in units of 1/(255*255*255).
			sw := a * 255
			dw := uint64(d[i+3]) * (one - a)
			total := sw + dw
			for c := 0; c < 3; c++ {
				num := uint64(s[i+c])*sw + uint64(d[i+c])*dw
				d[i+c] = uint8((num + total/2) / total)
			}
			d[i+3] = uint8((total + one/2) / one)
		}
	}
}
