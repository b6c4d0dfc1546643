// Package imaging holds the shared pixel-buffer data model consumed by
// the hashing, diffing and display packages: a borrowed, strided view
// over 32-bit pixels plus the plain Rect value type.
package imaging

import "fmt"

// BytesPerPixel is fixed across the core: every Image is 32 bits per
// pixel, interpreted as 0xAARRGGBB or 0x00RRGGBB depending on source.
const BytesPerPixel = 4

// CellSize is the fixed cell window the rolling hash operates over.
const CellSize = 64

// Image is a borrowed, strided view over 32-bit pixels. It never owns
// Data: callers that need to keep pixels beyond the lifetime of the
// buffer backing Data must copy it first.
type Image struct {
	Data   []byte
	Width  int
	Height int
	Stride int // bytes per row; Stride >= Width*BytesPerPixel
}

// New wraps a tightly packed RGBA buffer (stride == width*4) as an Image.
func New(data []byte, width, height int) Image {
	return Image{Data: data, Width: width, Height: height, Stride: width * BytesPerPixel}
}

// Valid reports whether the image's invariants hold: non-negative
// dimensions and a stride wide enough to hold one row of pixels.
func (img Image) Valid() bool {
	if img.Width < 0 || img.Height < 0 || img.Stride < img.Width*BytesPerPixel {
		return false
	}
	if img.Height == 0 {
		return true
	}
	return len(img.Data) >= img.Stride*(img.Height-1)+img.Width*BytesPerPixel
}

// RowOffset returns the byte offset of row y's first pixel.
func (img Image) RowOffset(y int) int {
	return y * img.Stride
}

// At returns the 32-bit pixel at (x,y), assembled little-endian as the
// memory layout requires (byte 0 is the least-significant byte).
func (img Image) At(x, y int) uint32 {
	off := img.RowOffset(y) + x*BytesPerPixel
	b := img.Data[off : off+4 : off+4]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Sub returns a borrowed view of the w x h rectangle at (x,y). Panics
// if the rectangle does not fit inside img — callers validate bounds
// before calling, matching the "Images are borrowed, not owned" model.
func (img Image) Sub(x, y, w, h int) Image {
	if x < 0 || y < 0 || x+w > img.Width || y+h > img.Height {
		panic(fmt.Sprintf("imaging: sub-rect (%d,%d,%d,%d) out of bounds for %dx%d image", x, y, w, h, img.Width, img.Height))
	}
	off := img.RowOffset(y) + x*BytesPerPixel
	return Image{Data: img.Data[off:], Width: w, Height: h, Stride: img.Stride}
}

// Rect is an axis-aligned pixel rectangle; (0,0) is the upper-left.
type Rect struct {
	X, Y, W, H int
}

// FitsIn reports whether r lies entirely within a width x height image.
func (r Rect) FitsIn(width, height int) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.W <= width && r.Y+r.H <= height
}

// Point is a simple (x,y) pair, used for search results and deltas.
type Point struct {
	X, Y int
}
