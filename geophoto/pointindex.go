package geophoto

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/dgraph-io/badger/v4"
	"github.com/dhconnelly/rtreego"

	"github.com/nakarte/geophotos/internal/config"
)

// pixelPoint implements rtreego.Spatial for one rendered pixel position
// in the tile-maker's 2D point index.
type pixelPoint struct {
	px, py float64
	rect   *rtreego.Rect
}

func (p *pixelPoint) Bounds() *rtreego.Rect { return p.rect }

// PointIndex is the ephemeral 2D R-tree used while rendering a tile
// pyramid: one photo per pixel position, deduplicated so repeat visits
// to the same pixel do not bloat the tree (spec.md §4.3, §4.4).
type PointIndex struct {
	tree *rtreego.Rtree
	seen *roaring64.Bitmap
	n    int
}

const rtreeDimensions2 = 2

// NewPointIndex creates an empty 2D point index.
func NewPointIndex() *PointIndex {
	return &PointIndex{
		tree: rtreego.NewTree(rtreeDimensions2, rtreeMinChildren, rtreeMaxChildren),
		seen: roaring64.New(),
	}
}

func pixelKey(px, py int32) uint64 {
	return uint64(uint32(px))<<32 | uint64(uint32(py))
}

// Insert adds the pixel (px, py) to the index unless that exact pixel
// has already been inserted, mirroring the original's dedup pass before
// the rtree_i32 bulk insert.
func (idx *PointIndex) Insert(px, py float64) {
	key := pixelKey(int32(px), int32(py))
	if idx.seen.Contains(key) {
		return
	}
	idx.seen.Add(key)

	const eps = 1e-6
	rect, err := rtreego.NewRect(rtreego.Point{px, py}, []float64{eps, eps})
	if err != nil {
		return
	}
	idx.tree.Insert(&pixelPoint{px: px, py: py, rect: rect})
	idx.n++
}

// Len returns the number of distinct pixels indexed.
func (idx *PointIndex) Len() int { return idx.n }

// CountInBox counts distinct pixels inside [minX,maxX) x [minY,maxY),
// capping the scan at limit+1 comparisons the same way the density
// index's count does.
func (idx *PointIndex) CountInBox(minX, minY, maxX, maxY float64, limit int) int {
	bounds, err := rtreego.NewRect(
		rtreego.Point{minX, minY},
		[]float64{maxPositive(maxX-minX, 1e-9), maxPositive(maxY-minY, 1e-9)},
	)
	if err != nil {
		return 0
	}
	count := 0
	for _, r := range idx.tree.SearchIntersect(bounds) {
		p := r.(*pixelPoint)
		if p.px >= minX && p.px < maxX && p.py >= minY && p.py < maxY {
			count++
			if count > limit {
				return count
			}
		}
	}
	return count
}

// PointsInBox returns every distinct pixel inside the box, used by the
// vector/raster tile renderers once a tile's region is known to be
// small enough to enumerate directly.
func (idx *PointIndex) PointsInBox(minX, minY, maxX, maxY float64) [][2]float64 {
	bounds, err := rtreego.NewRect(
		rtreego.Point{minX, minY},
		[]float64{maxPositive(maxX-minX, 1e-9), maxPositive(maxY-minY, 1e-9)},
	)
	if err != nil {
		return nil
	}
	var out [][2]float64
	for _, r := range idx.tree.SearchIntersect(bounds) {
		p := r.(*pixelPoint)
		if p.px >= minX && p.px < maxX && p.py >= minY && p.py < maxY {
			out = append(out, [2]float64{p.px, p.py})
		}
	}
	return out
}

// pointMortonStage sorts (px, py) pairs by 2D Morton code before bulk
// insertion, the pixel-grid counterpart to the density index's 3D
// staging store.
type pointMortonStage struct {
	db  *badger.DB
	dir string
}

func openPointMortonStage(tempDir string) (*pointMortonStage, error) {
	dir := filepath.Join(tempDir, "point_morton")
	if err := os.RemoveAll(dir); err != nil {
		return nil, &StorageError{Store: "point_morton", Op: "clean", Err: err}
	}
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &StorageError{Store: "point_morton", Op: "open", Err: err}
	}
	return &pointMortonStage{db: db, dir: dir}, nil
}

func (s *pointMortonStage) close() {
	s.db.Close()
	os.RemoveAll(s.dir)
}

// BuildPointIndexSorted streams pixel coordinates through a Morton-sort
// staging pass before inserting into the R-tree, giving the bulk load
// spatial locality (spec.md §4.4).
func BuildPointIndexSorted(tempDir string, pixels [][2]float64) (*PointIndex, error) {
	stage, err := openPointMortonStage(tempDir)
	if err != nil {
		return nil, err
	}
	defer stage.close()

	wb := stage.db.NewWriteBatch()
	for i, pt := range pixels {
		morton := MortonEncode2D(uint32(int32(pt[0])), uint32(int32(pt[1])))
		key := make([]byte, 12)
		binary.BigEndian.PutUint64(key[:8], morton)
		binary.BigEndian.PutUint32(key[8:], uint32(i))
		val := make([]byte, 16)
		binary.LittleEndian.PutUint64(val[0:8], math.Float64bits(pt[0]))
		binary.LittleEndian.PutUint64(val[8:16], math.Float64bits(pt[1]))
		if err := wb.Set(key, val); err != nil {
			return nil, &StorageError{Store: "point_morton", Op: "stage", Err: err}
		}
	}
	if err := wb.Flush(); err != nil {
		return nil, &StorageError{Store: "point_morton", Op: "flush", Err: err}
	}

	idx := NewPointIndex()
	err = stage.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				px := math.Float64frombits(binary.LittleEndian.Uint64(val[0:8]))
				py := math.Float64frombits(binary.LittleEndian.Uint64(val[8:16]))
				idx.Insert(px, py)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, &StorageError{Store: "point_morton", Op: "scan", Err: err}
	}
	return idx, nil
}

// BuildPointIndexFromStore projects every non-banned, valid photo in
// store into Web Mercator meters and bulk-loads them into a fresh
// 2D point index, mirroring iterate_src_points/build_sorted_points_db's
// filtering: banned owners are dropped, coordinates are rejected when
// latitude falls outside the Mercator-representable band or either axis
// is exactly zero (a degenerate value the original treats as missing
// geodata, not a real point at null island) (spec.md §4.3).
func BuildPointIndexFromStore(cfg config.Config, tempDir string, store *PhotoStore) (*PointIndex, error) {
	banned := newBannedOwnerSet(cfg.BannedOwners)

	count, err := store.Count()
	if err != nil {
		return nil, err
	}

	pixels := make([][2]float64, 0, count)
	err = store.Each(func(id uint64, p Photo) error {
		if banned.contains(p.Owner) {
			return nil
		}
		lat := float64(p.LatE7) / 1e7
		lon := float64(p.LonE7) / 1e7
		if lat <= -maxMercatorLat || lat >= maxMercatorLat || lat == 0 || lon == 0 {
			return nil
		}
		x, y := ToMercator(lon, lat)
		pixels = append(pixels, [2]float64{x, y})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return BuildPointIndexSorted(tempDir, pixels)
}
