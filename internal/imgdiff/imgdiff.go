// Package imgdiff implements equal-rectangle search and the
// largest-common-rectangle histogram algorithm built on top of
// pixelhash's cell hashing, ported from guacamole-server's VNC
// backend diff routines.
package imgdiff

import (
	"bytes"

	"github.com/skiffdesk/rvpgateway/internal/imaging"
	"github.com/skiffdesk/rvpgateway/internal/pixelhash"
)

// Step is the pixel granularity at which LargestCommonRect operates.
const Step = 16

// Search locates needle (which must be exactly 64x64) inside haystack
// by hash-then-verify: any cell whose hash matches the needle's is
// byte-exact compared before being accepted, so Search never returns
// a false positive. ok is false if no match was found, or if needle is
// not 64x64.
func Search(haystack, needle imaging.Image) (pos imaging.Point, ok bool) {
	if needle.Width != imaging.CellSize || needle.Height != imaging.CellSize {
		return imaging.Point{}, false
	}
	needleHash := pixelhash.HashCell(needle)

	found := false
	var result imaging.Point
	pixelhash.ForEachCell(haystack, func(x, y int, hash uint64) uint64 {
		if hash != needleHash {
			return 0
		}
		candidate := haystack.Sub(x, y, imaging.CellSize, imaging.CellSize)
		if Compare(candidate, needle) != 0 {
			return 0
		}
		found = true
		result = imaging.Point{X: x, Y: y}
		return 1
	})
	if !found {
		return imaging.Point{}, false
	}
	return result, true
}

// Compare performs a lexicographic comparison over (width, height, then
// row-wise memcmp of width*4 bytes per row), matching C's memcmp
// ordering for the byte comparison.
func Compare(a, b imaging.Image) int {
	if d := a.Width - b.Width; d != 0 {
		return d
	}
	if d := a.Height - b.Height; d != 0 {
		return d
	}
	rowBytes := a.Width * imaging.BytesPerPixel
	for y := 0; y < a.Height; y++ {
		aOff := a.RowOffset(y)
		bOff := b.RowOffset(y)
		ra := a.Data[aOff : aOff+rowBytes]
		rb := b.Data[bOff : bOff+rowBytes]
		if c := bytes.Compare(ra, rb); c != 0 {
			return c
		}
	}
	return 0
}

// rowGroupEqual compares one Step-wide column group of row y between a
// and b, byte for byte. minWidth bounds both images so a column group
// never reads past either row, and a trailing group narrower than Step
// is never compared at all: callers treat it as unequal (height 0),
// the same way the original forces height = 0 for a partial group
// rather than letting it participate in the histogram sweep.
func rowGroupEqual(a, b imaging.Image, colGroup, y, minWidth int) bool {
	x := colGroup * Step
	if x+Step > minWidth {
		return false
	}
	rowBytes := Step * imaging.BytesPerPixel
	aOff := a.RowOffset(y) + x*imaging.BytesPerPixel
	bOff := b.RowOffset(y) + x*imaging.BytesPerPixel
	return bytes.Equal(a.Data[aOff:aOff+rowBytes], b.Data[bOff:bOff+rowBytes])
}

type edge struct {
	x      int
	height int
}

// LargestCommonRect finds the axis-aligned rectangle of maximum area
// over which a and b agree pixel-for-pixel, at Step-pixel column
// granularity: each group of Step columns is one histogram bin, and
// the classical largest-rectangle-in-histogram sweep (monotone stack
// of (x,height) edges) runs across the per-row run lengths of equal
// groups. ok is false if a and b disagree everywhere (best_area == 0).
func LargestCommonRect(a, b imaging.Image) (rect imaging.Rect, ok bool) {
	minWidth := a.Width
	if b.Width < minWidth {
		minWidth = b.Width
	}
	minHeight := a.Height
	if b.Height < minHeight {
		minHeight = b.Height
	}
	if minWidth == 0 || minHeight == 0 {
		return imaging.Rect{}, false
	}

	numGroups := (minWidth + Step - 1) / Step
	runLength := make([]int, numGroups)

	var (
		bestArea   int
		bestX      int
		bestY      int
		bestHeight int
		bestWidth  int
	)

	for y := 0; y < minHeight; y++ {
		for g := 0; g < numGroups; g++ {
			if rowGroupEqual(a, b, g, y, minWidth) {
				runLength[g]++
			} else {
				runLength[g] = 0
			}
		}

		var stack []edge
		// Sentinel iteration at x == numGroups with height 0 drains the stack.
		for g := 0; g <= numGroups; g++ {
			height := 0
			if g < numGroups {
				height = runLength[g]
			}
			lastPoppedX := g
			for len(stack) > 0 && stack[len(stack)-1].height >= height {
				popped := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				lastPoppedX = popped.x
				width := (g - popped.x) * Step
				area := popped.height * width
				if area > bestArea {
					bestArea = area
					bestHeight = popped.height
					bestWidth = width
					bestX = popped.x * Step
					bestY = y
				}
			}
			if g < numGroups {
				stack = append(stack, edge{x: lastPoppedX, height: height})
			}
		}
	}

	if bestArea == 0 {
		return imaging.Rect{}, false
	}

	rect = imaging.Rect{
		X: bestX,
		Y: bestY - bestHeight + 1,
		W: bestWidth,
		H: bestHeight,
	}
	return rect, true
}
