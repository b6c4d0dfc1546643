// Package display implements the display adapter (the gateway side of
// the outbound display channel): a local pixel-accurate Surface that
// mirrors whatever the backend reports, and an Adapter that turns
// backend.Callbacks into the channel's draw/copy/resize/cursor/
// end_frame/flush operations.
package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/skiffdesk/rvpgateway/internal/imaging"
)

// Surface is the gateway's authoritative copy of the remote
// framebuffer. It is the source scroll detection and pixel-diffing
// read from, and what a diagnostic Tap dumps.
type Surface struct {
	mu     sync.Mutex
	data   []byte
	width  int
	height int
	stride int

	cursor *Cursor

	taps []io.Writer
}

// Cursor is the locally-rendered cursor layer, kept separate from the
// framebuffer so resizing or redrawing the surface never clobbers it.
type Cursor struct {
	HotspotX, HotspotY int
	Width, Height      int
	Stride             int
	Data               []byte
	Visible            bool
}

// NewSurface allocates a width x height RGBA surface.
func NewSurface(width, height int) *Surface {
	s := &Surface{width: width, height: height, stride: width * imaging.BytesPerPixel}
	s.data = make([]byte, s.stride*height)
	return s
}

func (s *Surface) Width() int  { s.mu.Lock(); defer s.mu.Unlock(); return s.width }
func (s *Surface) Height() int { s.mu.Lock(); defer s.mu.Unlock(); return s.height }

// Draw copies a w x h rectangle of pixels (stride bytes per row) into
// the surface at (x, y).
func (s *Surface) Draw(x, y int, pixels []byte, w, h, stride int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if x < 0 || y < 0 || x+w > s.width || y+h > s.height {
		return fmt.Errorf("display: draw rect (%d,%d,%d,%d) out of bounds %dx%d", x, y, w, h, s.width, s.height)
	}
	rowBytes := w * imaging.BytesPerPixel
	for row := 0; row < h; row++ {
		srcOff := row * stride
		dstOff := (y+row)*s.stride + x*imaging.BytesPerPixel
		copy(s.data[dstOff:dstOff+rowBytes], pixels[srcOff:srcOff+rowBytes])
	}
	return nil
}

// Copy moves a w x h rectangle from (sx, sy) to (dx, dy) within the
// surface, handling overlap the way the compositor's blend routines
// assume non-overlapping strips cannot: by staging through a temporary
// buffer whenever source and destination rows could alias.
func (s *Surface) Copy(sx, sy, w, h, dx, dy int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sx < 0 || sy < 0 || sx+w > s.width || sy+h > s.height {
		return fmt.Errorf("display: copy src rect (%d,%d,%d,%d) out of bounds", sx, sy, w, h)
	}
	if dx < 0 || dy < 0 || dx+w > s.width || dy+h > s.height {
		return fmt.Errorf("display: copy dst rect (%d,%d,%d,%d) out of bounds", dx, dy, w, h)
	}

	rowBytes := w * imaging.BytesPerPixel
	staged := make([]byte, rowBytes*h)
	for row := 0; row < h; row++ {
		srcOff := (sy+row)*s.stride + sx*imaging.BytesPerPixel
		copy(staged[row*rowBytes:(row+1)*rowBytes], s.data[srcOff:srcOff+rowBytes])
	}
	for row := 0; row < h; row++ {
		dstOff := (dy+row)*s.stride + dx*imaging.BytesPerPixel
		copy(s.data[dstOff:dstOff+rowBytes], staged[row*rowBytes:(row+1)*rowBytes])
	}
	return nil
}

// Resize reallocates the backing buffer, discarding prior contents
// (the next full-frame draw is expected to repaint it).
func (s *Surface) Resize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("display: invalid resize %dx%d", w, h)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = w
	s.height = h
	s.stride = w * imaging.BytesPerPixel
	s.data = make([]byte, s.stride*h)
	return nil
}

// SetCursor replaces the cursor layer.
func (s *Surface) SetCursor(hotspotX, hotspotY int, pixels []byte, w, h, stride int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Cursor{HotspotX: hotspotX, HotspotY: hotspotY, Width: w, Height: h, Stride: stride, Visible: w > 0 && h > 0}
	c.Data = make([]byte, len(pixels))
	copy(c.Data, pixels)
	s.cursor = c
}

// CursorLayer returns the current cursor layer, or nil if none has been set.
func (s *Surface) CursorLayer() *Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Snapshot returns an owned copy of the surface contents as an Image,
// suitable for handing to the frame pacer or scroll/diff algorithms
// without aliasing the surface's own buffer.
func (s *Surface) Snapshot() imaging.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(s.data))
	copy(cp, s.data)
	return imaging.New(cp, s.width, s.height)
}

// EndFrame marks a frame boundary: any registered diagnostic taps
// receive the current surface contents.
func (s *Surface) EndFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.taps) == 0 {
		return
	}
	for _, w := range s.taps {
		w.Write(s.data)
	}
}
