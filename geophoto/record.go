package geophoto

import (
	"encoding/binary"
	"fmt"
)

// Photo is one geotagged photo record as stored in the photo KV store.
// Coordinates are fixed-point degrees times 1e7, matching the upstream
// API's precision without carrying floats into the store.
type Photo struct {
	LatE7      int32
	LonE7      int32
	Accuracy   int32
	FetchTS    int64
	UploadDate int64
	Owner      string
}

// Valid checks the invariants from spec.md §3.
func (p Photo) Valid() bool {
	lat := float64(p.LatE7) / 1e7
	lon := float64(p.LonE7) / 1e7
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 && p.UploadDate >= 0
}

const recordOwnerMaxLen = 255

// PackID renders a photo id as the fixed-width little-endian 64-bit key
// used by the photo KV store (spec.md §6).
func PackID(id uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, id)
	return b
}

// UnpackID is the inverse of PackID.
func UnpackID(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("geophoto: photo id key must be 8 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// PackRecord serializes a Photo into the compact value stored per photo id:
// two int32s, an int32 accuracy, two int64 timestamps, then a
// length-prefixed owner string. Fixed-width ints keep the record
// self-describing without a schema registry, the same tradeoff the
// original made with a pickled namedtuple.
func PackRecord(p Photo) ([]byte, error) {
	if len(p.Owner) > recordOwnerMaxLen {
		return nil, fmt.Errorf("geophoto: owner id exceeds %d bytes", recordOwnerMaxLen)
	}
	buf := make([]byte, 4+4+4+8+8+1+len(p.Owner))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.LatE7))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.LonE7))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.Accuracy))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(p.FetchTS))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(p.UploadDate))
	buf[28] = byte(len(p.Owner))
	copy(buf[29:], p.Owner)
	return buf, nil
}

// UnpackRecord is the inverse of PackRecord.
func UnpackRecord(b []byte) (Photo, error) {
	if len(b) < 29 {
		return Photo{}, fmt.Errorf("geophoto: photo record too short: %d bytes", len(b))
	}
	ownerLen := int(b[28])
	if len(b) != 29+ownerLen {
		return Photo{}, fmt.Errorf("geophoto: photo record length mismatch: want %d have %d", 29+ownerLen, len(b))
	}
	return Photo{
		LatE7:      int32(binary.LittleEndian.Uint32(b[0:4])),
		LonE7:      int32(binary.LittleEndian.Uint32(b[4:8])),
		Accuracy:   int32(binary.LittleEndian.Uint32(b[8:12])),
		FetchTS:    int64(binary.LittleEndian.Uint64(b[12:20])),
		UploadDate: int64(binary.LittleEndian.Uint64(b[20:28])),
		Owner:      string(b[29 : 29+ownerLen]),
	}, nil
}
