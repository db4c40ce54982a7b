package geophoto

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
)

// symbolMask is the anti-aliased disk stamped at every rendered point,
// built once at the configured radius and reused for every raster tile
// (spec.md §4.3). The original rendered an oversampled ellipse and
// downsampled it for anti-aliasing; this approximates the same
// soft-edged disk by computing fractional pixel coverage directly.
func symbolMask(radiusPx int) *image.Alpha {
	size := radiusPx*2 + 1
	mask := image.NewAlpha(image.Rect(0, 0, size, size))
	center := float64(radiusPx)
	const oversample = 4
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			hits := 0
			for sy := 0; sy < oversample; sy++ {
				for sx := 0; sx < oversample; sx++ {
					px := float64(x) + (float64(sx)+0.5)/oversample
					py := float64(y) + (float64(sy)+0.5)/oversample
					dx := px - center - 0.5
					dy := py - center - 0.5
					if dx*dx+dy*dy <= float64(radiusPx)*float64(radiusPx) {
						hits++
					}
				}
			}
			coverage := uint8(hits * 255 / (oversample * oversample))
			mask.SetAlpha(x, y, color.Alpha{A: coverage})
		}
	}
	return mask
}

// RenderRasterTile draws one 256x256 PNG, stamping an anti-aliased disk
// of the configured radius at each point's pixel position. The PNG is
// encoded as RGBA with white color channels and the coverage mask as
// alpha; it is not a two-channel LA PNG. Points outside the tile (but
// within the stamping margin the caller already included) still
// contribute coverage to pixels inside the tile. Returns nil when
// points is empty, the original's "return None if !has_points"
// behavior (spec.md §4.3).
func RenderRasterTile(points [][2]float64, tileMinX, tileMinY, tileSize float64, radiusPx int) ([]byte, error) {
	img := image.NewAlpha(image.Rect(0, 0, 256, 256))
	mask := symbolMask(radiusPx)
	hasPoints := false

	for _, p := range points {
		pixX := (p[0] - tileMinX) / tileSize * 256
		pixY := (p[1] - tileMinY) / tileSize * 256
		pixY = 256 - pixY

		x := int(math.Floor(pixX))
		y := int(math.Floor(pixY))
		stampDisk(img, mask, x, y, radiusPx)
		hasPoints = true
	}
	if !hasPoints {
		return nil, nil
	}

	out := imageAlphaToLA(img)
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// stampDisk composites mask, centered on (cx, cy), onto dst using
// max-alpha blending so overlapping points never darken each other's
// edges (matching PIL's paste-with-mask semantics, which simply
// overwrites rather than accumulates).
func stampDisk(dst *image.Alpha, mask *image.Alpha, cx, cy, radiusPx int) {
	left := cx - radiusPx
	top := cy - radiusPx
	size := radiusPx*2 + 1
	for my := 0; my < size; my++ {
		dy := top + my
		if dy < 0 || dy >= dst.Rect.Dy() {
			continue
		}
		for mx := 0; mx < size; mx++ {
			dx := left + mx
			if dx < 0 || dx >= dst.Rect.Dx() {
				continue
			}
			a := mask.AlphaAt(mx, my).A
			if a == 0 {
				continue
			}
			existing := dst.AlphaAt(dx, dy).A
			if a > existing {
				dst.SetAlpha(dx, dy, color.Alpha{A: a})
			}
		}
	}
}

// imageAlphaToLA converts a single-channel alpha mask into an NRGBA
// image with white color channels (255) and the mask as alpha, carrying
// the same content the original's `im2.putalpha(im)` on an all-white 'L'
// base produced.
func imageAlphaToLA(src *image.Alpha) *image.NRGBA {
	bounds := src.Bounds()
	out := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			a := src.AlphaAt(x, y).A
			out.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: a})
		}
	}
	return out
}
