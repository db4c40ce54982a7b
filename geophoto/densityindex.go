package geophoto

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/dhconnelly/rtreego"
	"github.com/schollz/progressbar/v3"

	"github.com/nakarte/geophotos/internal/config"
)

// coordOffset matches the original's fixed-point scale for lat/lon
// when building the Morton sort key: coordinates are offset by 180e7 so
// the 3D Morton code only ever sees non-negative lanes.
const coordOffset = 1_800_000_000

// mortonLonLatShift and mortonDateShift bucket the offset coordinate
// (range ~3.6e9) and the unix upload timestamp (range up to ~2^31) down
// into the 21 bits MortonEncode3DApprox actually spreads per lane.
// Without this, the low-21-bit truncation inside spread3 wraps every
// ~0.2 degrees of longitude/latitude and every ~24 days of upload
// time, destroying the spatial/temporal locality the bulk load depends
// on (spec.md §4.4, "insertion order is essential").
const (
	mortonLonLatShift = 11
	mortonDateShift   = 10
)

// mortonStage is a disposable badger store used only to put photo
// records into Morton order before they are streamed into an R-tree.
// The original used a temporary leveldb for the same purpose
// (build_sorted_points_db in the retired scheduler); badger plays that
// role here (spec.md §4.4).
type mortonStage struct {
	db  *badger.DB
	dir string
}

func openMortonStage(tempDir, name string) (*mortonStage, error) {
	dir := filepath.Join(tempDir, name)
	if err := os.RemoveAll(dir); err != nil {
		return nil, &StorageError{Store: name, Op: "clean", Err: err}
	}
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &StorageError{Store: name, Op: "open", Err: err}
	}
	return &mortonStage{db: db, dir: dir}, nil
}

func (m *mortonStage) close() {
	m.db.Close()
	os.RemoveAll(m.dir)
}

// put records one entry keyed by its Morton code followed by photo id,
// so badger's native key-order iteration yields Morton order.
func (m *mortonStage) put(wb *badger.WriteBatch, morton uint64, photoID uint64, value []byte) error {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], morton)
	binary.BigEndian.PutUint64(key[8:], photoID)
	return wb.Set(key, value)
}

// densityPoint implements rtreego.Spatial as a degenerate (zero-volume)
// box at a single (lat, lon, upload_date) triple, mirroring the
// original's rtree_i32 virtual table rows which stored point bounds as
// (v, v) pairs per axis.
type densityPoint struct {
	photoID    uint64
	lat, lon   float64
	uploadDate int64
	rect       *rtreego.Rect
}

func (p *densityPoint) Bounds() *rtreego.Rect { return p.rect }

func newDensityRect(lat, lon float64, uploadDate int64) (*rtreego.Rect, error) {
	const eps = 1e-9
	return rtreego.NewRect(rtreego.Point{lat, lon, float64(uploadDate)}, []float64{eps, eps, eps})
}

// DensityIndex is the ephemeral 3D R-tree the scheduler queries to
// count photos inside a padded job box (spec.md §4.1, §4.4).
type DensityIndex struct {
	tree *rtreego.Rtree
	n    int
}

const (
	rtreeMinChildren = 25
	rtreeMaxChildren = 50
	rtreeDimensions3 = 3
)

// BuildDensityIndex streams the (lat, lon, upload_date) of every photo
// in src, in Morton order, into a fresh 3D R-tree. Progress is reported
// on a bar sized to src's record count, mirroring the teacher's
// two-pass bulk-load progress reporting in its MBTiles converter.
func BuildDensityIndex(cfg config.Config, tempDir string, src *PhotoStore) (*DensityIndex, error) {
	stage, err := openMortonStage(tempDir, "density_morton")
	if err != nil {
		return nil, err
	}
	defer stage.close()

	count, err := src.Count()
	if err != nil {
		return nil, err
	}

	wb := stage.db.NewWriteBatch()
	bar := progressbar.Default(int64(count), "sorting density index")
	err = src.Each(func(id uint64, p Photo) error {
		lat := float64(p.LatE7) / 1e7
		lon := float64(p.LonE7) / 1e7
		morton := MortonEncode3DApprox(
			uint32((int64(p.LonE7)+coordOffset)>>mortonLonLatShift),
			uint32((int64(p.LatE7)+coordOffset)>>mortonLonLatShift),
			uint32(p.UploadDate)>>mortonDateShift,
		)
		buf := make([]byte, 20)
		binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(lat))
		binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(lon))
		binary.LittleEndian.PutUint32(buf[16:20], uint32(p.UploadDate))
		if err := stage.put(wb, morton, id, buf); err != nil {
			return err
		}
		return bar.Add(1)
	})
	if err != nil {
		return nil, err
	}
	if err := wb.Flush(); err != nil {
		return nil, &StorageError{Store: "density_morton", Op: "flush", Err: err}
	}

	tree := rtreego.NewTree(rtreeDimensions3, rtreeMinChildren, rtreeMaxChildren)
	idx := &DensityIndex{tree: tree}

	bar2 := progressbar.Default(int64(count), "indexing density tree")
	err = stage.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			photoID := binary.BigEndian.Uint64(key[8:])
			err := item.Value(func(val []byte) error {
				lat := math.Float64frombits(binary.LittleEndian.Uint64(val[0:8]))
				lon := math.Float64frombits(binary.LittleEndian.Uint64(val[8:16]))
				uploadDate := int64(binary.LittleEndian.Uint32(val[16:20]))
				rect, err := newDensityRect(lat, lon, uploadDate)
				if err != nil {
					return err
				}
				tree.Insert(&densityPoint{photoID: photoID, lat: lat, lon: lon, uploadDate: uploadDate, rect: rect})
				idx.n++
				return nil
			})
			if err != nil {
				return err
			}
			_ = bar2.Add(1)
		}
		return nil
	})
	if err != nil {
		return nil, &StorageError{Store: "density_morton", Op: "scan", Err: err}
	}
	return idx, nil
}

// CountInBoxWithLimit counts photos inside j's padded box, stopping as
// soon as the count exceeds limit (spec.md §4.1,
// check_points_count_exceeds's LIMIT clause): the scheduler only needs
// to know whether a box is over the request cap, not its exact count.
func (d *DensityIndex) CountInBoxWithLimit(j Job, cfg config.Config, limit int) int {
	padded := padJobWithMargin(j, cfg)
	bounds, err := rtreego.NewRect(
		rtreego.Point{padded.MinLat, padded.MinLon, float64(padded.MinDate)},
		[]float64{
			maxPositive(padded.MaxLat-padded.MinLat, 1e-9),
			maxPositive(padded.MaxLon-padded.MinLon, 1e-9),
			maxPositive(float64(padded.MaxDate-padded.MinDate), 1e-9),
		},
	)
	if err != nil {
		return 0
	}
	count := 0
	for _, r := range d.tree.SearchIntersect(bounds) {
		p := r.(*densityPoint)
		if p.lat >= padded.MinLat && p.lat < padded.MaxLat &&
			p.lon >= padded.MinLon && p.lon < padded.MaxLon &&
			p.uploadDate >= padded.MinDate && p.uploadDate < padded.MaxDate {
			count++
			if count > limit {
				return count
			}
		}
	}
	return count
}

// Len returns the number of photos indexed.
func (d *DensityIndex) Len() int { return d.n }

func maxPositive(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
