package geophoto

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
)

// vptMagic is the 4-byte tag identifying a vector tile blob.
const vptMagic = "VPTT"

// vectorTileExtent is the coordinate space points are rescaled into
// inside a vector tile, 2^20, matching the original's fixed-point
// integer array encoding.
const vectorTileExtent = 1 << 20

// EncodeVectorTile packs tileX/Y/Z and the tile-local mercator points
// into the VPTT blob format: a 4-byte magic tag followed by a stream of
// little-endian int32s — (tile_x, tile_y, tile_z), then an (x, y) pair
// per point, each rescaled so the tile spans [0, vectorTileExtent] on
// both axes, with the y axis flipped so the tile's top edge is 0 (points
// in the caller's symbol margin fall outside that range) (spec.md §4.3).
func EncodeVectorTile(tileX, tileY uint32, tileZ uint8, tileMinX, tileMinY, tileSize float64, points [][2]float64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(vptMagic)

	writeInt32 := func(v int32) {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(v))
		buf.Write(tmp[:])
	}

	writeInt32(int32(tileX))
	writeInt32(int32(tileY))
	writeInt32(int32(tileZ))

	for _, p := range points {
		x := (p[0] - tileMinX) / tileSize * vectorTileExtent
		y := (1 - (p[1]-tileMinY)/tileSize) * vectorTileExtent
		writeInt32(int32(roundHalfAwayFromZero(x)))
		writeInt32(int32(roundHalfAwayFromZero(y)))
	}
	return buf.Bytes()
}

func roundHalfAwayFromZero(f float64) float64 {
	if f >= 0 {
		return float64(int64(f + 0.5))
	}
	return float64(int64(f - 0.5))
}

// DecodeVectorTile parses a VPTT blob back into its tile coordinate and
// raw extent-space points, primarily for tests that round-trip the
// format.
func DecodeVectorTile(data []byte) (tileX, tileY uint32, tileZ uint8, points [][2]int32, err error) {
	if len(data) < 4 || string(data[:4]) != vptMagic {
		return 0, 0, 0, nil, fmt.Errorf("geophoto: not a VPTT blob")
	}
	body := data[4:]
	if len(body)%4 != 0 {
		return 0, 0, 0, nil, fmt.Errorf("geophoto: truncated VPTT body")
	}
	ints := make([]int32, len(body)/4)
	for i := range ints {
		ints[i] = int32(binary.LittleEndian.Uint32(body[i*4 : i*4+4]))
	}
	if len(ints) < 3 {
		return 0, 0, 0, nil, fmt.Errorf("geophoto: VPTT body missing header")
	}
	tileX = uint32(ints[0])
	tileY = uint32(ints[1])
	tileZ = uint8(ints[2])
	rest := ints[3:]
	if len(rest)%2 != 0 {
		return 0, 0, 0, nil, fmt.Errorf("geophoto: VPTT point stream has odd length")
	}
	points = make([][2]int32, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		points = append(points, [2]int32{rest[i], rest[i+1]})
	}
	return tileX, tileY, tileZ, points, nil
}

// maybeGzip returns the gzip-compressed form of data when it is
// smaller, otherwise data unchanged, matching the original's
// "compress only if it actually helps" rule for tiles over 500 bytes
// (spec.md §4.3).
func maybeGzip(data []byte) ([]byte, error) {
	if len(data) <= 500 {
		return data, nil
	}
	buf := new(bytes.Buffer)
	gw := gzip.NewWriter(buf)
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	if buf.Len() < len(data) {
		return buf.Bytes(), nil
	}
	return data, nil
}
