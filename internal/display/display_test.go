package display

import (
	"bytes"
	"testing"
)

type fakeOutput struct {
	draws, copies, resizes, cursors, ends, flushes int
	lastCopy                                       [6]int
}

func (f *fakeOutput) Draw(x, y int, pixels []byte, w, h, stride int) error {
	f.draws++
	return nil
}

func (f *fakeOutput) Copy(sx, sy, w, h, dx, dy int) error {
	f.copies++
	f.lastCopy = [6]int{sx, sy, w, h, dx, dy}
	return nil
}

func (f *fakeOutput) Resize(w, h int) error {
	f.resizes++
	return nil
}

func (f *fakeOutput) Cursor(hotspotX, hotspotY int, pixels []byte, w, h, stride int) error {
	f.cursors++
	return nil
}

func (f *fakeOutput) EndFrame() error { f.ends++; return nil }
func (f *fakeOutput) Flush() error    { f.flushes++; return nil }

func fillRect(w, h int, r, g, b, a byte) []byte {
	data := make([]byte, w*h*4)
	for i := 0; i < len(data); i += 4 {
		data[i], data[i+1], data[i+2], data[i+3] = r, g, b, a
	}
	return data
}

func TestSurfaceDrawAndSnapshot(t *testing.T) {
	s := NewSurface(64, 64)
	patch := fillRect(8, 8, 10, 20, 30, 255)
	if err := s.Draw(4, 4, patch, 8, 8, 8*4); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	snap := s.Snapshot()
	if snap.At(4, 4) != snap.At(11, 11) {
		t.Fatalf("drawn patch is not uniform")
	}
	if snap.At(0, 0) == snap.At(4, 4) {
		t.Fatalf("drawn patch leaked outside its rect")
	}
}

func TestSurfaceCopyHandlesOverlap(t *testing.T) {
	s := NewSurface(32, 32)
	patch := fillRect(16, 4, 1, 2, 3, 255)
	s.Draw(0, 0, patch, 16, 4, 16*4)

	if err := s.Copy(0, 0, 16, 4, 2, 0); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	snap := s.Snapshot()
	if snap.At(2, 0) != snap.At(0, 0) {
		t.Fatalf("overlapping copy corrupted destination")
	}
}

func TestSurfaceResizeDiscardsOldSize(t *testing.T) {
	s := NewSurface(16, 16)
	if err := s.Resize(32, 24); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if s.Width() != 32 || s.Height() != 24 {
		t.Fatalf("Width/Height = %d/%d, want 32/24", s.Width(), s.Height())
	}
}

func TestAdapterForwardsDrawToSurfaceAndOutput(t *testing.T) {
	s := NewSurface(64, 64)
	out := &fakeOutput{}
	a := NewAdapter(s, out)
	cb := a.Callbacks()

	patch := fillRect(4, 4, 9, 9, 9, 255)
	cb.FramebufferUpdated(nil, 0, 0, patch, 4, 4, 4*4)
	if out.draws != 1 {
		t.Fatalf("draws = %d, want 1", out.draws)
	}
	if s.Snapshot().At(1, 1) == 0 {
		t.Fatalf("surface was not updated by the callback")
	}
}

func TestAdapterCopyForwardsRectWithoutResendingPixels(t *testing.T) {
	s := NewSurface(64, 64)
	out := &fakeOutput{}
	a := NewAdapter(s, out)
	cb := a.Callbacks()

	patch := fillRect(8, 8, 1, 1, 1, 255)
	cb.FramebufferUpdated(nil, 0, 0, patch, 8, 8, 8*4)
	cb.FramebufferCopied(nil, 0, 0, 8, 8, 20, 20)

	if out.copies != 1 {
		t.Fatalf("copies = %d, want 1", out.copies)
	}
	if out.lastCopy != [6]int{0, 0, 8, 8, 20, 20} {
		t.Fatalf("lastCopy = %v, want (0,0,8,8,20,20)", out.lastCopy)
	}
}

func TestAdapterSkipsUpdateImmediatelyAfterCopy(t *testing.T) {
	s := NewSurface(64, 64)
	out := &fakeOutput{}
	a := NewAdapter(s, out)
	cb := a.Callbacks()

	cb.FramebufferCopied(nil, 0, 0, 8, 8, 20, 20)
	if out.copies != 1 {
		t.Fatalf("copies = %d, want 1", out.copies)
	}

	patch := fillRect(8, 8, 1, 1, 1, 255)
	cb.FramebufferUpdated(nil, 20, 20, patch, 8, 8, 8*4)
	if out.draws != 0 {
		t.Fatalf("draws = %d, want 0 (update immediately following a copy is suppressed)", out.draws)
	}

	// The next update is unaffected; the suppression only applies once.
	cb.FramebufferUpdated(nil, 0, 0, patch, 8, 8, 8*4)
	if out.draws != 1 {
		t.Fatalf("draws = %d, want 1 after the following update", out.draws)
	}
}

func TestAdapterCursorUpdatesSurfaceLayer(t *testing.T) {
	s := NewSurface(64, 64)
	out := &fakeOutput{}
	a := NewAdapter(s, out)
	cb := a.Callbacks()

	img := fillRect(2, 2, 1, 2, 3, 255)
	cb.CursorUpdated(nil, 5, 6, img, 2, 2, 2*4)

	c := s.CursorLayer()
	if c == nil || !c.Visible || c.HotspotX != 5 || c.HotspotY != 6 {
		t.Fatalf("cursor layer not set correctly: %+v", c)
	}
	if out.cursors != 1 {
		t.Fatalf("cursors = %d, want 1", out.cursors)
	}
}

func TestSurfaceTapReceivesEndFrameDump(t *testing.T) {
	s := NewSurface(4, 4)
	var buf bytes.Buffer
	s.Tap(&buf)
	s.EndFrame()
	if buf.Len() != 4*4*4 {
		t.Fatalf("tap received %d bytes, want %d", buf.Len(), 4*4*4)
	}
}
