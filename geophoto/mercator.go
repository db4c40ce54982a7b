package geophoto

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// maxMercatorLat is the latitude at which Web Mercator's y coordinate
// would otherwise diverge; WGS84 coordinates are clamped to this band
// before projecting, matching every other Web Mercator tile scheme.
const maxMercatorLat = 85.05112878

func clampLat(lat float64) float64 {
	if lat > maxMercatorLat {
		return maxMercatorLat
	}
	if lat < -maxMercatorLat {
		return -maxMercatorLat
	}
	return lat
}

// ToMercator projects one WGS84 (lon, lat) pair into Web Mercator
// meters, clamping latitude to the supported band first.
func ToMercator(lon, lat float64) (x, y float64) {
	p := project.WGS84.ToMercator(orb.Point{lon, clampLat(lat)})
	return p[0], p[1]
}

// ToWGS84 is the inverse of ToMercator.
func ToWGS84(x, y float64) (lon, lat float64) {
	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return p[0], p[1]
}

// TransformBatch projects parallel slices of longitudes and latitudes
// into Web Mercator x/y, element by element through ToMercator.
func TransformBatch(lons, lats []float64) (xs, ys []float64) {
	n := len(lons)
	xs = make([]float64, n)
	ys = make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i], ys[i] = ToMercator(lons[i], lats[i])
	}
	return xs, ys
}

// mercatorWorldSize is the extent of the Web Mercator plane in meters,
// 2*pi*R for the spherical Earth radius used by the WGS84 ellipsoid
// pseudo-projection.
const mercatorWorldSize = 2 * math.Pi * 6378137.0

// PixelAtZoom converts a Mercator x/y pair into tile-pixel coordinates
// at the given zoom level, where each zoom level doubles the 256px
// tile grid's total pixel extent.
func PixelAtZoom(x, y float64, zoom uint8) (px, py float64) {
	worldPixels := float64(uint64(256) << zoom)
	px = (x + mercatorWorldSize/2) / mercatorWorldSize * worldPixels
	py = (mercatorWorldSize/2 - y) / mercatorWorldSize * worldPixels
	return px, py
}
