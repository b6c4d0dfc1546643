package scenario

import (
	"context"
	"sync"
	"time"

	"github.com/skiffdesk/rvpgateway/internal/backend"
)

// FixtureBackend is a backend.Backend that replays a Lua scenario
// script as a sequence of backend.Callbacks invocations, standing in
// for a real classic or SDK connection in integration tests of
// internal/session and internal/display. Register it under a
// test-local backend.Kind; Create starts the script on its own
// goroutine, matching the way both real backends deliver callbacks
// off the caller's goroutine.
type FixtureBackend struct {
	Script string
}

// Create implements backend.Backend.
func (f *FixtureBackend) Create(ctx context.Context, settings backend.Settings, callbacks backend.Callbacks, data any) (backend.Handle, error) {
	h := &fixtureHandle{
		callbacks: callbacks,
		data:      data,
		updated:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		_ = Run(f.Script, &callbackOps{h: h})
	}()
	return h, nil
}

// fixtureHandle is the backend.Handle a FixtureBackend hands back. It
// also records every input call it receives so a test can assert on
// what the session driver sent upstream.
type fixtureHandle struct {
	callbacks backend.Callbacks
	data      any

	mu            sync.Mutex
	width, height int

	updated chan struct{}
	done    chan struct{}
	freed   bool

	Keys       []KeyEvent
	Pointers   []PointerEvent
	Clipboards [][]byte
}

// KeyEvent records one SendKey call observed by a fixtureHandle.
type KeyEvent struct {
	Keysym  uint32
	Pressed bool
}

// PointerEvent records one SendPointer call observed by a fixtureHandle.
type PointerEvent struct {
	X, Y int
	Mask uint8
}

func (h *fixtureHandle) Free() error {
	h.mu.Lock()
	h.freed = true
	h.mu.Unlock()
	return nil
}

func (h *fixtureHandle) WaitForUpdate(ctx context.Context, timeout time.Duration) (bool, error) {
	select {
	case <-h.updated:
		return true, nil
	case <-h.done:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(timeout):
		return false, nil
	}
}

func (h *fixtureHandle) Width() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width
}

func (h *fixtureHandle) Height() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.height
}

func (h *fixtureHandle) SendKey(keysym uint32, pressed bool) {
	h.mu.Lock()
	h.Keys = append(h.Keys, KeyEvent{Keysym: keysym, Pressed: pressed})
	h.mu.Unlock()
}

func (h *fixtureHandle) SendPointer(x, y int, mask uint8) {
	h.mu.Lock()
	h.Pointers = append(h.Pointers, PointerEvent{X: x, Y: y, Mask: mask})
	h.mu.Unlock()
}

func (h *fixtureHandle) SendClipboard(data []byte) {
	h.mu.Lock()
	cp := append([]byte(nil), data...)
	h.Clipboards = append(h.Clipboards, cp)
	h.mu.Unlock()
}

func (h *fixtureHandle) ClipboardEncoding() string { return "UTF-8" }

func (h *fixtureHandle) signal() {
	select {
	case h.updated <- struct{}{}:
	default:
	}
}

// callbackOps adapts scenario.Ops onto a fixtureHandle's
// backend.Callbacks, synthesizing a solid-gray pixel buffer for each
// draw/cursor event since the script only specifies geometry.
type callbackOps struct {
	h *fixtureHandle
}

func (c *callbackOps) Draw(x, y, w, h int) {
	buf := solidRGBA(w, h, 128)
	c.h.callbacks.FramebufferUpdated(c.h.data, x, y, buf, w, h, w*4)
	c.h.signal()
}

func (c *callbackOps) Copy(sx, sy, w, h, dx, dy int) {
	c.h.callbacks.FramebufferCopied(c.h.data, sx, sy, w, h, dx, dy)
	c.h.signal()
}

func (c *callbackOps) Resize(w, h int) {
	c.h.mu.Lock()
	c.h.width, c.h.height = w, h
	c.h.mu.Unlock()
	c.h.callbacks.FramebufferResized(c.h.data, w, h)
	c.h.signal()
}

func (c *callbackOps) Cursor(hotspotX, hotspotY, w, h int) {
	buf := solidRGBA(w, h, 255)
	c.h.callbacks.CursorUpdated(c.h.data, hotspotX, hotspotY, buf, w, h, w*4)
}

func (c *callbackOps) Clipboard(text string) {
	c.h.callbacks.ClipboardReceived(c.h.data, text)
}

func (c *callbackOps) Key(keysym int, pressed bool) {}
func (c *callbackOps) Pointer(x, y int, mask int)   {}
func (c *callbackOps) SleepMS(ms int)               { time.Sleep(time.Duration(ms) * time.Millisecond) }

func solidRGBA(w, h int, v byte) []byte {
	buf := make([]byte, w*h*4)
	for i := 0; i < len(buf); i += 4 {
		buf[i], buf[i+1], buf[i+2], buf[i+3] = v, v, v, 0xff
	}
	return buf
}
