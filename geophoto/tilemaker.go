package geophoto

import (
	"github.com/cespare/xxhash/v2"

	"github.com/nakarte/geophotos/internal/config"
)

// mercatorWorldHalf is half the Web Mercator plane's extent in meters,
// the original's `max_coord = 20037508.342789244`.
const mercatorWorldHalf = 20037508.342789244

// tileExtents returns an XYZ tile's (minX, minY, size) in Mercator
// meters; row y=0 is the northernmost row.
func tileExtents(x, y uint32, z uint8) (minX, minY, size float64) {
	tileSize := 2 * mercatorWorldHalf / float64(uint64(1)<<z)
	return float64(x)*tileSize - mercatorWorldHalf, mercatorWorldHalf - float64(y+1)*tileSize, tileSize
}

// tileIndexFromTMS flips a tile's row to convert between the XYZ
// scheme the descent walks in and the TMS scheme MBTiles stores tiles
// under (spec.md §4.3).
func tileIndexFromTMS(x, y uint32, z uint8) (tmsX, tmsY uint32, tmsZ uint8) {
	return x, (uint32(1)<<z)-1-y, z
}

// bannedOwnerSet is a fast membership check over the configured banned
// owner ids, fingerprinted with xxhash rather than a linear string
// slice scan (spec.md §4.3 dropped-owner exclusion).
type bannedOwnerSet struct {
	hashes map[uint64]struct{}
}

func newBannedOwnerSet(owners []string) bannedOwnerSet {
	m := make(map[uint64]struct{}, len(owners))
	for _, o := range owners {
		m[xxhash.Sum64String(o)] = struct{}{}
	}
	return bannedOwnerSet{hashes: m}
}

func (b bannedOwnerSet) contains(owner string) bool {
	_, ok := b.hashes[xxhash.Sum64String(owner)]
	return ok
}

// tileResult is one rendered tile's payload and whether it was encoded
// as a vector tile (and therefore must not be subdivided further).
type tileResult struct {
	data     []byte
	isVector bool
}

// TileMaker walks the quad-tree from (0,0,0) down, rendering each tile
// from the 2D point index and writing it to an MBTiles archive (spec.md
// §4.3).
type TileMaker struct {
	cfg   config.Config
	index *PointIndex
}

// NewTileMaker builds a TileMaker over an already-populated point
// index.
func NewTileMaker(cfg config.Config, index *PointIndex) *TileMaker {
	return &TileMaker{cfg: cfg, index: index}
}

// Build renders the entire pyramid and writes every tile into w, using
// an explicit stack for the depth-first descent exactly as the
// original's `queue.pop()`/`queue.append` loop does (spec.md §4.3).
func (tm *TileMaker) Build(w *MBTilesWriter) (tilesWritten int, err error) {
	type coord struct {
		x, y uint32
		z    uint8
	}
	stack := []coord{{0, 0, 0}}

	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		res, err := tm.renderTile(c.x, c.y, c.z)
		if err != nil {
			return tilesWritten, err
		}
		if res == nil || len(res.data) == 0 {
			continue
		}

		tmsX, tmsY, tmsZ := tileIndexFromTMS(c.x, c.y, c.z)
		if err := w.WriteTile(tmsZ, tmsX, tmsY, res.data); err != nil {
			return tilesWritten, err
		}
		tilesWritten++

		if !res.isVector && c.z <= tm.cfg.MaxLevel {
			stack = append(stack,
				coord{c.x * 2, c.y * 2, c.z + 1},
				coord{c.x*2 + 1, c.y * 2, c.z + 1},
				coord{c.x * 2, c.y*2 + 1, c.z + 1},
				coord{c.x*2 + 1, c.y*2 + 1, c.z + 1},
			)
		}
	}
	return tilesWritten, nil
}

// renderTile is draw_normal_tile: enumerate the tile's points (capped
// at MaxPointsInNormalTile+1), pick vector/raster/overview mode by
// count and zoom (a tile at or above the overview floor is always an
// overview, regardless of how few points it holds), and gzip a vector
// tile's bytes when that shrinks it (spec.md §4.3).
func (tm *TileMaker) renderTile(x, y uint32, z uint8) (*tileResult, error) {
	minX, minY, size := tileExtents(x, y, z)
	pixelMeters := size / 256
	margin := float64(tm.cfg.SymbolRadiusPx) * pixelMeters

	points := tm.index.PointsInBox(minX-margin, minY-margin, minX+size+margin, minY+size+margin)
	ceiling := tm.cfg.MaxPointsInNormalTile + 1
	if len(points) > ceiling {
		points = points[:ceiling]
	}

	switch {
	case len(points) > tm.cfg.MaxPointsInNormalTile || z <= tm.cfg.MaxOverviewsLevel:
		return tm.renderOverviewTile(x, y, z)

	case len(points) <= tm.cfg.MaxPointsInVectorTile:
		data := EncodeVectorTile(x, y, z, minX, minY, size, points)
		compressed, err := maybeGzip(data)
		if err != nil {
			return nil, err
		}
		return &tileResult{data: compressed, isVector: true}, nil

	default:
		data, err := RenderRasterTile(points, minX, minY, size, tm.cfg.SymbolRadiusPx)
		if err != nil {
			return nil, err
		}
		return &tileResult{data: data, isVector: false}, nil
	}
}

// renderOverviewTile is draw_overview_tile: when a tile is too dense to
// enumerate every point, sample a coarse grid of step_pixels and emit a
// synthetic center point for every grid cell that has at least one real
// point, then raster-render those synthetic points (spec.md §4.3).
func (tm *TileMaker) renderOverviewTile(x, y uint32, z uint8) (*tileResult, error) {
	minX, minY, size := tileExtents(x, y, z)
	pixelMeters := size / 256
	stepPixels := float64(tm.cfg.StepPixels)
	stepMeters := stepPixels * pixelMeters

	marginSteps := float64((tm.cfg.SymbolRadiusPx-1)/tm.cfg.StepPixels + 2)
	marginPixels := marginSteps * stepPixels

	var synthetic [][2]float64
	for px := -marginPixels; px < 256+marginPixels-stepPixels; px += stepPixels {
		cellMinX := minX + px*pixelMeters
		cellMaxX := cellMinX + stepMeters
		for py := -marginPixels; py < 256+marginPixels-stepPixels; py += stepPixels {
			cellMinY := minY + py*pixelMeters
			cellMaxY := cellMinY + stepMeters
			if tm.index.CountInBox(cellMinX, cellMinY, cellMaxX, cellMaxY, 0) > 0 {
				synthetic = append(synthetic, [2]float64{cellMinX + stepMeters/2, cellMinY + stepMeters/2})
			}
		}
	}

	if len(synthetic) == 0 {
		data := EncodeVectorTile(x, y, z, minX, minY, size, nil)
		return &tileResult{data: data, isVector: true}, nil
	}
	data, err := RenderRasterTile(synthetic, minX, minY, size, tm.cfg.SymbolRadiusPx)
	if err != nil {
		return nil, err
	}
	return &tileResult{data: data, isVector: false}, nil
}
