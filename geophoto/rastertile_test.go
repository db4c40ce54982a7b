package geophoto

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderRasterTileNoPointsReturnsNil(t *testing.T) {
	data, err := RenderRasterTile(nil, 0, 0, 1000, 3)
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestRenderRasterTileProducesDecodablePNG(t *testing.T) {
	points := [][2]float64{{500, 500}}
	data, err := RenderRasterTile(points, 0, 0, 1000, 3)
	assert.NoError(t, err)
	assert.NotNil(t, data)

	img, err := png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
	bounds := img.Bounds()
	assert.Equal(t, 256, bounds.Dx())
	assert.Equal(t, 256, bounds.Dy())
}

func TestSymbolMaskIsOpaqueAtCenter(t *testing.T) {
	mask := symbolMask(5)
	center := 5
	a := mask.AlphaAt(center, center).A
	assert.Equal(t, uint8(255), a)
}

func TestSymbolMaskIsTransparentAtCorner(t *testing.T) {
	mask := symbolMask(5)
	a := mask.AlphaAt(0, 0).A
	assert.Equal(t, uint8(0), a)
}
