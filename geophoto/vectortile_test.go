package geophoto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeVectorTileRoundTrip(t *testing.T) {
	points := [][2]float64{
		{100, 100},
		{150, 200},
		{0, 0},
	}
	data := EncodeVectorTile(3, 5, 7, 0, 0, 1000, points)

	tileX, tileY, tileZ, decoded, err := DecodeVectorTile(data)
	assert.NoError(t, err)
	assert.Equal(t, uint32(3), tileX)
	assert.Equal(t, uint32(5), tileY)
	assert.Equal(t, uint8(7), tileZ)
	assert.Len(t, decoded, len(points))
}

func TestEncodeVectorTileEmptyPoints(t *testing.T) {
	data := EncodeVectorTile(1, 2, 3, 0, 0, 1000, nil)
	tileX, tileY, tileZ, decoded, err := DecodeVectorTile(data)
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), tileX)
	assert.Equal(t, uint32(2), tileY)
	assert.Equal(t, uint8(3), tileZ)
	assert.Len(t, decoded, 0)
}

func TestEncodeVectorTilePointScaling(t *testing.T) {
	// A point at the tile's min corner lands at extent-space (0, extent);
	// y is flipped so the tile's bottom edge (its minimum Mercator y) is
	// extent-space max.
	data := EncodeVectorTile(0, 0, 0, 0, 0, 100, [][2]float64{{0, 0}})
	_, _, _, points, err := DecodeVectorTile(data)
	assert.NoError(t, err)
	assert.Equal(t, int32(0), points[0][0])
	assert.Equal(t, int32(vectorTileExtent), points[0][1])
}

func TestDecodeVectorTileRejectsBadMagic(t *testing.T) {
	_, _, _, _, err := DecodeVectorTile([]byte("NOPE"))
	assert.Error(t, err)
}

func TestDecodeVectorTileRejectsTruncated(t *testing.T) {
	data := EncodeVectorTile(0, 0, 0, 0, 0, 100, [][2]float64{{1, 1}})
	_, _, _, _, err := DecodeVectorTile(data[:len(data)-1])
	assert.Error(t, err)
}

func TestMaybeGzipLeavesSmallTilesAlone(t *testing.T) {
	small := make([]byte, 100)
	out, err := maybeGzip(small)
	assert.NoError(t, err)
	assert.Equal(t, small, out)
}

func TestMaybeGzipCompressesCompressibleLargeTiles(t *testing.T) {
	large := make([]byte, 5000)
	out, err := maybeGzip(large)
	assert.NoError(t, err)
	assert.Less(t, len(out), len(large))
}
