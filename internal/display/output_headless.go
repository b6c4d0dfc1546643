//go:build headless

package display

import "sync/atomic"

// HeadlessOutput is a test double satisfying Output without any
// windowing system, for headless test/CI environments.
type HeadlessOutput struct {
	draws   atomic.Uint64
	copies  atomic.Uint64
	resizes atomic.Uint64
	cursors atomic.Uint64
	ends    atomic.Uint64
	flushes atomic.Uint64
}

// NewEbitenOutput mirrors the !headless constructor's name so callers
// do not need a build-tag switch at the call site.
func NewEbitenOutput(width, height int) *HeadlessOutput {
	return &HeadlessOutput{}
}

func (h *HeadlessOutput) Start(title string) error { return nil }

func (h *HeadlessOutput) Draw(x, y int, pixels []byte, w, hgt, stride int) error {
	h.draws.Add(1)
	return nil
}

func (h *HeadlessOutput) Copy(sx, sy, w, hgt, dx, dy int) error {
	h.copies.Add(1)
	return nil
}

func (h *HeadlessOutput) Resize(w, hgt int) error {
	h.resizes.Add(1)
	return nil
}

func (h *HeadlessOutput) Cursor(hotspotX, hotspotY int, pixels []byte, w, hgt, stride int) error {
	h.cursors.Add(1)
	return nil
}

func (h *HeadlessOutput) EndFrame() error {
	h.ends.Add(1)
	return nil
}

func (h *HeadlessOutput) Flush() error {
	h.flushes.Add(1)
	return nil
}
