package geophoto

// Morton (Z-order) encoding gives the R-tree bulk loaders an insertion
// order with spatial locality, the same role sorted leveldb keys played
// in the original pipeline's staging pass.

// spread3 interleaves the low 21 bits of x with two zero bits each,
// the standard "magic numbers" bit-spread used for 3D Morton codes.
func spread3(x uint64) uint64 {
	x &= 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}

func compact3(x uint64) uint64 {
	x &= 0x1249249249249249
	x = (x | x>>2) & 0x10c30c30c30c30c3
	x = (x | x>>4) & 0x100f00f00f00f00f
	x = (x | x>>8) & 0x1f0000ff0000ff
	x = (x | x>>16) & 0x1f00000000ffff
	x = (x | x>>32) & 0x1fffff
	return x
}

// spread2 interleaves the low 32 bits of x with one zero bit each.
func spread2(x uint64) uint64 {
	x &= 0xffffffff
	x = (x | x<<16) & 0x0000ffff0000ffff
	x = (x | x<<8) & 0x00ff00ff00ff00ff
	x = (x | x<<4) & 0x0f0f0f0f0f0f0f0f
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return x
}

func compact2(x uint64) uint64 {
	x &= 0x5555555555555555
	x = (x | x>>1) & 0x3333333333333333
	x = (x | x>>2) & 0x0f0f0f0f0f0f0f0f
	x = (x | x>>4) & 0x00ff00ff00ff00ff
	x = (x | x>>8) & 0x0000ffff0000ffff
	x = (x | x>>16) & 0xffffffff
	return x
}

// MortonEncode2D interleaves the bits of two 32-bit lanes into a single
// 64-bit Z-order code, used to order the 2D point-index staging store.
func MortonEncode2D(x, y uint32) uint64 {
	return spread2(uint64(x)) | spread2(uint64(y))<<1
}

// MortonDecode2D is the inverse of MortonEncode2D.
func MortonDecode2D(code uint64) (x, y uint32) {
	return uint32(compact2(code)), uint32(compact2(code >> 1))
}

// MortonEncode3DApprox interleaves the low 21 bits of three lanes into
// a 63-bit approximate 3D Z-order code. Inputs wider than 21 bits are
// truncated: the density index only needs coarse spatial locality for
// its bulk-load insertion order, not an exact code (spec.md §4.4).
func MortonEncode3DApprox(x, y, z uint32) uint64 {
	return spread3(uint64(x)) | spread3(uint64(y))<<1 | spread3(uint64(z))<<2
}

// MortonDecode3DApprox is the inverse of MortonEncode3DApprox, valid
// only for codes produced by it (low 21 bits per lane).
func MortonDecode3DApprox(code uint64) (x, y, z uint32) {
	return uint32(compact3(code)), uint32(compact3(code >> 1)), uint32(compact3(code >> 2))
}
