package geophoto

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMortonEncode2DRoundTrip(t *testing.T) {
	cases := [][2]uint32{
		{0, 0},
		{1, 0},
		{0, 1},
		{0xffffffff, 0xffffffff},
		{0x12345678, 0x87654321},
	}
	for _, c := range cases {
		code := MortonEncode2D(c[0], c[1])
		x, y := MortonDecode2D(code)
		assert.Equal(t, c[0], x)
		assert.Equal(t, c[1], y)
	}
}

func TestMortonEncode2DRoundTripRandom(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		x := r.Uint32()
		y := r.Uint32()
		code := MortonEncode2D(x, y)
		gotX, gotY := MortonDecode2D(code)
		assert.Equal(t, x, gotX)
		assert.Equal(t, y, gotY)
	}
}

func TestMortonEncode3DApproxRoundTrip(t *testing.T) {
	const mask21 = (1 << 21) - 1
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		x := r.Uint32() & mask21
		y := r.Uint32() & mask21
		z := r.Uint32() & mask21
		code := MortonEncode3DApprox(x, y, z)
		gotX, gotY, gotZ := MortonDecode3DApprox(code)
		assert.Equal(t, x, gotX)
		assert.Equal(t, y, gotY)
		assert.Equal(t, z, gotZ)
	}
}

func TestMortonEncode2DPreservesLocalityOrdering(t *testing.T) {
	// Adjacent cells in the same quadrant should sort closer together
	// than cells from opposite corners of the grid.
	near1 := MortonEncode2D(10, 10)
	near2 := MortonEncode2D(11, 10)
	far := MortonEncode2D(100000, 100000)

	diffNear := near2 - near1
	diffFar := far - near1
	assert.Less(t, diffNear, diffFar)
}
