package geophoto

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nakarte/geophotos/internal/config"
)

func TestPointIndexInsertDeduplicates(t *testing.T) {
	idx := NewPointIndex()
	idx.Insert(10, 20)
	idx.Insert(10, 20)
	idx.Insert(11, 20)
	assert.Equal(t, 2, idx.Len())
}

func TestPointIndexCountAndPointsInBox(t *testing.T) {
	idx := NewPointIndex()
	idx.Insert(5, 5)
	idx.Insert(50, 50)
	idx.Insert(500, 500)

	count := idx.CountInBox(0, 0, 100, 100, 10)
	assert.Equal(t, 2, count)

	points := idx.PointsInBox(0, 0, 100, 100)
	assert.Len(t, points, 2)
}

func TestBuildPointIndexSortedDeduplicatesAcrossStage(t *testing.T) {
	pixels := [][2]float64{{1, 1}, {2, 2}, {1, 1}, {3, 3}}
	idx, err := BuildPointIndexSorted(t.TempDir(), pixels)
	assert.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
}

func TestBuildPointIndexFromStoreFiltersBannedAndDegenerate(t *testing.T) {
	store := openTestPhotoStore(t)
	batch := map[uint64]Photo{
		1: {LatE7: 450000000, LonE7: 20000000, UploadDate: 1, Owner: "good-owner"},
		2: {LatE7: 450000000, LonE7: 20000000, UploadDate: 1, Owner: "100597270@N04"},
		3: {LatE7: 0, LonE7: 20000000, UploadDate: 1, Owner: "good-owner"},
		4: {LatE7: 450000000, LonE7: 0, UploadDate: 1, Owner: "good-owner"},
		5: {LatE7: 900000000, LonE7: 20000000, UploadDate: 1, Owner: "good-owner"},
	}
	assert.NoError(t, store.PutBatch(batch))

	cfg := config.Default()
	idx, err := BuildPointIndexFromStore(cfg, t.TempDir(), store)
	assert.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}
