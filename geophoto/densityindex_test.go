package geophoto

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nakarte/geophotos/internal/config"
)

func TestBuildDensityIndexCountsAllPhotos(t *testing.T) {
	store := openTestPhotoStore(t)
	batch := map[uint64]Photo{
		1: {LatE7: 100000000, LonE7: 100000000, UploadDate: 1000},
		2: {LatE7: 200000000, LonE7: 200000000, UploadDate: 2000},
		3: {LatE7: 300000000, LonE7: 300000000, UploadDate: 3000},
	}
	assert.NoError(t, store.PutBatch(batch))

	cfg := config.Default()
	idx, err := BuildDensityIndex(cfg, t.TempDir(), store)
	assert.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
}

func TestCountInBoxWithLimitFindsPointsInRange(t *testing.T) {
	store := openTestPhotoStore(t)
	batch := map[uint64]Photo{
		1: {LatE7: 100000000, LonE7: 100000000, UploadDate: 1000},
		2: {LatE7: 500000000, LonE7: 500000000, UploadDate: 5000},
	}
	assert.NoError(t, store.PutBatch(batch))

	cfg := config.Default()
	idx, err := BuildDensityIndex(cfg, t.TempDir(), store)
	assert.NoError(t, err)

	j := Job{MinLat: 9, MaxLat: 11, MinLon: 9, MaxLon: 11, MinDate: 0, MaxDate: 2000}
	count := idx.CountInBoxWithLimit(j, cfg, 100)
	assert.Equal(t, 1, count)
}

func TestCountInBoxWithLimitStopsAtLimit(t *testing.T) {
	store := openTestPhotoStore(t)
	batch := map[uint64]Photo{}
	for i := uint64(1); i <= 10; i++ {
		batch[i] = Photo{LatE7: 100000000, LonE7: 100000000, UploadDate: 1000}
	}
	assert.NoError(t, store.PutBatch(batch))

	cfg := config.Default()
	idx, err := BuildDensityIndex(cfg, t.TempDir(), store)
	assert.NoError(t, err)

	j := Job{MinLat: 9, MaxLat: 11, MinLon: 9, MaxLon: 11, MinDate: 0, MaxDate: 2000}
	count := idx.CountInBoxWithLimit(j, cfg, 3)
	assert.Greater(t, count, 3)
}
