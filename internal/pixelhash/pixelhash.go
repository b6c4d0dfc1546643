// Package pixelhash implements the cyclic-polynomial rolling hash used
// to fingerprint whole images and 64x64 pixel cells. The algorithm is
// ported from guacamole-server's libguac hash routines: a two-axis
// polynomial recurrence (row hash folded into a column accumulator)
// that produces a statistical sliding-window signature, not a
// cryptographic one — false positives downstream are always resolved
// by a byte-exact compare.
package pixelhash

import "github.com/skiffdesk/rvpgateway/internal/imaging"

// wholeImageSeed is XORed into the whole-image hash each step; the
// exact constant matters because hash_image must be byte-identical
// across implementations.
const wholeImageSeed = 0x1B872E69

// HashImage returns a 24-bit hash of the entire image. Order matters:
// pixels are folded in row-major order with a rotate-xor recurrence,
// then the top byte is folded back down into the low 24 bits.
func HashImage(img imaging.Image) uint32 {
	var h uint32
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			pixel := img.At(x, y)
			h = rotl32(h, 1) ^ pixel ^ wholeImageSeed
		}
	}
	return foldTopByte(h)
}

// foldTopByte folds only the top byte of h down into its low 24 bits,
// leaving the low 24 bits themselves as the base of the result. A
// 32-bit value whose top byte is already zero folds to itself.
func foldTopByte(h uint32) uint32 {
	upper := h & 0xFF000000
	return (h & 0xFFFFFF) ^ (upper >> 8) ^ (upper >> 16) ^ (upper >> 24)
}

func rotl32(v uint32, n uint) uint32 {
	return (v << n) | (v >> (32 - n))
}

// VisitFunc is called once per fully-formed 64x64 cell with the cell's
// upper-left corner and its hash. A nonzero return stops the scan
// early; that value becomes ForEachCell's return value.
type VisitFunc func(x, y int, hash uint64) uint64

// ForEachCell visits every aligned 64x64 cell of img in row-major
// order as soon as it becomes available: once y >= 63 and x >= 63, the
// window ending at (x,y) is complete. If img is smaller than one cell
// in either dimension, ForEachCell returns 0 without visiting anything.
func ForEachCell(img imaging.Image, visit VisitFunc) uint64 {
	const size = imaging.CellSize
	if img.Width < size || img.Height < size {
		return 0
	}

	cellHash := make([]uint64, img.Width)

	for y := 0; y < img.Height; y++ {
		var row uint64
		for x := 0; x < img.Width; x++ {
			pixel := uint64(img.At(x, y))
			row = (row*31)<<1 + pixel
			cellHash[x] = (cellHash[x]*31)<<1 + row

			if y >= size-1 && x >= size-1 {
				if r := visit(x-(size-1), y-(size-1), cellHash[x]); r != 0 {
					return r
				}
			}
		}
	}
	return 0
}

// HashCell computes the cell hash of img, which must be exactly 64x64
// (any other size returns 0), by running ForEachCell's recurrence over
// it. Used where only one cell's hash is needed (e.g. the needle in a
// search), without scanning an entire haystack image.
func HashCell(img imaging.Image) uint64 {
	const size = imaging.CellSize
	if img.Width != size || img.Height != size {
		return 0
	}
	var result uint64
	ForEachCell(img, func(x, y int, hash uint64) uint64 {
		result = hash
		return 0
	})
	return result
}
