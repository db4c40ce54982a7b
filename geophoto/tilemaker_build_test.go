package geophoto

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nakarte/geophotos/internal/config"
)

func TestTileMakerBuildWritesRootTile(t *testing.T) {
	idx := NewPointIndex()
	x, y := ToMercator(2.3522, 48.8566)
	idx.Insert(x, y)

	cfg := config.Default()
	// z=0 is an overview zoom, so the root renders as a raster and, since
	// z=0 <= MaxLevel, its four z=1 children are rendered and written too
	// (as rasters or empty vector tiles); none of them descends further.
	cfg.MaxLevel = 0

	maker := NewTileMaker(cfg, idx)
	w := openTestMBTiles(t)

	written, err := maker.Build(w)
	assert.NoError(t, err)
	assert.Equal(t, 5, written)
}

func TestTileMakerBuildEmptyIndexStillWritesRootVectorTile(t *testing.T) {
	// An empty point index still yields a (header-only) vector tile at
	// the root: z=0 takes the overview branch, an overview with no
	// populated cell emits an empty vector tile, and vector tiles are not
	// subdivided.
	idx := NewPointIndex()
	cfg := config.Default()
	cfg.MaxLevel = 0

	maker := NewTileMaker(cfg, idx)
	w := openTestMBTiles(t)

	written, err := maker.Build(w)
	assert.NoError(t, err)
	assert.Equal(t, 1, written)
}
