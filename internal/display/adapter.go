package display

import (
	"github.com/skiffdesk/rvpgateway/internal/backend"
	"github.com/skiffdesk/rvpgateway/internal/rvplog"
)

// Output is the gateway's outbound display channel: the operations a
// browser-facing transport must support. Draw and Cursor
// carry raw pixel rectangles; Copy moves pixels already present on the
// remote side without resending them; Resize changes the canvas;
// EndFrame closes a batch of ops; Flush forces delivery of anything
// buffered.
type Output interface {
	Draw(x, y int, pixels []byte, w, h, stride int) error
	Copy(sx, sy, w, h, dx, dy int) error
	Resize(w, h int) error
	Cursor(hotspotX, hotspotY int, pixels []byte, w, h, stride int) error
	EndFrame() error
	Flush() error
}

// Adapter wires backend.Callbacks onto a Surface (the gateway's local
// mirror) and an Output (what the browser side actually receives).
// The Surface update always happens before the Output call: scroll
// detection and pixel-diffing at the session layer read from Surface,
// so it must reflect a rect before anything downstream reacts to it.
type Adapter struct {
	surface *Surface
	output  Output

	// copiedRecently is set by onFramebufferCopied and consumed by the
	// very next onFramebufferUpdated: servers that report a copy often
	// follow it with a redundant full-rect update of the same area, and
	// that one update is skipped rather than re-drawn.
	copiedRecently bool
}

// NewAdapter builds an Adapter over surface and output.
func NewAdapter(surface *Surface, output Output) *Adapter {
	return &Adapter{surface: surface, output: output}
}

// Callbacks returns the backend.Callbacks set that drives this
// Adapter. data is ignored; Adapter is self-contained.
func (a *Adapter) Callbacks() backend.Callbacks {
	return backend.Callbacks{
		FramebufferUpdated: a.onFramebufferUpdated,
		FramebufferCopied:  a.onFramebufferCopied,
		FramebufferResized: a.onFramebufferResized,
		CursorUpdated:      a.onCursorUpdated,
	}
}

func (a *Adapter) onFramebufferUpdated(_ any, x, y int, img []byte, w, h, stride int) {
	if a.copiedRecently {
		a.copiedRecently = false
		return
	}
	if err := a.surface.Draw(x, y, img, w, h, stride); err != nil {
		rvplog.L().Error("display: surface draw failed", "err", err)
		return
	}
	if err := a.output.Draw(x, y, img, w, h, stride); err != nil {
		rvplog.L().Error("display: output draw failed", "err", err)
	}
}

// onFramebufferCopied applies the copy locally and forwards it as a
// Copy op rather than resending pixel data: the whole point of a
// server-reported copy (typically the scroll/translation case C3
// detects upstream) is to avoid re-transmitting pixels already present
// on the browser side.
func (a *Adapter) onFramebufferCopied(_ any, sx, sy, w, h, dx, dy int) {
	a.copiedRecently = true
	if err := a.surface.Copy(sx, sy, w, h, dx, dy); err != nil {
		rvplog.L().Error("display: surface copy failed", "err", err)
		return
	}
	if err := a.output.Copy(sx, sy, w, h, dx, dy); err != nil {
		rvplog.L().Error("display: output copy failed", "err", err)
	}
}

func (a *Adapter) onFramebufferResized(_ any, w, h int) {
	if err := a.surface.Resize(w, h); err != nil {
		rvplog.L().Error("display: surface resize failed", "err", err)
		return
	}
	if err := a.output.Resize(w, h); err != nil {
		rvplog.L().Error("display: output resize failed", "err", err)
	}
}

func (a *Adapter) onCursorUpdated(_ any, hotspotX, hotspotY int, img []byte, w, h, stride int) {
	a.surface.SetCursor(hotspotX, hotspotY, img, w, h, stride)
	if err := a.output.Cursor(hotspotX, hotspotY, img, w, h, stride); err != nil {
		rvplog.L().Error("display: output cursor failed", "err", err)
	}
}

// EndFrame closes out a frame on both the local surface (for
// diagnostic taps) and the output channel.
func (a *Adapter) EndFrame() error {
	a.surface.EndFrame()
	return a.output.EndFrame()
}

// Flush forces delivery of anything the Output has buffered.
func (a *Adapter) Flush() error {
	return a.output.Flush()
}

// Surface exposes the adapter's local mirror, e.g. for the session
// driver to pull Snapshots for the frame pacer.
func (a *Adapter) Surface() *Surface { return a.surface }
