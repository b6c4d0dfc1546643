package sdkbackend

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/skiffdesk/rvpgateway/internal/backend"
	"github.com/skiffdesk/rvpgateway/internal/eventpipe"
	"github.com/skiffdesk/rvpgateway/internal/rvperr"
	"github.com/skiffdesk/rvpgateway/internal/rvplog"
)

type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnected
)

// Factory constructs the VendorSDK instance a session uses; real
// deployments supply a binding to the actual vendor library.
type Factory func() VendorSDK

// sdkBackendImpl is the thread-confined implementation registered
// under backend.KindSDK.
type sdkBackendImpl struct {
	newSDK Factory
}

// Register installs this implementation as backend.KindSDK using the
// given VendorSDK factory. Call once at process startup with a real
// binding; tests call it with a fake.
func Register(newSDK Factory) {
	backend.Register(backend.KindSDK, &sdkBackendImpl{newSDK: newSDK})
}

func (b *sdkBackendImpl) Create(ctx context.Context, settings backend.Settings, callbacks backend.Callbacks, data any) (backend.Handle, error) {
	if err := settings.Validate(backend.KindSDK); err != nil {
		return nil, rvperr.New(rvperr.ServerError, "sdkbackend.create", err)
	}

	pipe, err := eventpipe.New()
	if err != nil {
		return nil, rvperr.New(rvperr.Fatal, "sdkbackend.create", err)
	}
	if err := pipe.SetWriteNonblocking(); err != nil {
		pipe.Close()
		return nil, rvperr.New(rvperr.Fatal, "sdkbackend.create", err)
	}

	h := &Handle{
		pipe:      pipe,
		payloads:  eventpipe.NewPayloads(),
		callbacks: callbacks,
		data:      data,
		sdk:       b.newSDK(),
		settings:  settings,
		state:     stateConnecting,
		done:      make(chan struct{}),
	}
	h.stateCond = sync.NewCond(&h.stateMu)
	h.updated = make(chan struct{}, 1)

	h.wg.Add(1)
	go h.runSDKThread()

	h.stateMu.Lock()
	for h.state == stateConnecting {
		h.stateCond.Wait()
	}
	finalState := h.state
	h.stateMu.Unlock()

	if finalState == stateDisconnected {
		h.wg.Wait()
		pipe.Close()
		return nil, rvperr.New(rvperr.NotFound, "sdkbackend.create", fmt.Errorf("connection failed during handshake"))
	}

	return h, nil
}

// Handle is the SDK-thread-confined connection handle.
type Handle struct {
	pipe     *eventpipe.Pipe
	payloads *eventpipe.Payloads

	callbacks backend.Callbacks
	data      any
	sdk       VendorSDK
	settings  backend.Settings

	stateMu   sync.Mutex
	stateCond *sync.Cond
	state     connState

	updated chan struct{} // saturating semaphore, capacity 1

	// width/height packed into one atomic word, following the
	// compositor's resolution-packing idiom (high 32 bits width, low
	// 32 bits height) so readers never observe a torn pair.
	dimensions atomic.Uint64

	buttonMask uint8 // remembered mask for scroll derivation, caller thread only

	wg   sync.WaitGroup
	done chan struct{}
}

func packDims(w, h int) uint64 {
	return uint64(uint32(w))<<32 | uint64(uint32(h))
}

func unpackDims(v uint64) (w, h int) {
	return int(int32(v >> 32)), int(int32(v))
}

// runSDKThread is the SDK's dedicated goroutine. It is locked to its
// OS thread for its entire lifetime: the vendor SDK asserts at runtime
// that every call happens on the thread that initialized it, so this
// goroutine must never migrate and must be the only one calling h.sdk.
func (h *Handle) runSDKThread() {
	defer h.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(h.done)

	hooks := Hooks{
		OnConnected:    func() { h.setState(stateConnected) },
		OnDisconnected: func() { h.setState(stateDisconnected) },
		OnFramebufferUpdated: func(x, y int, img []byte, w, h2, stride int) {
			h.setState(stateConnected) // first update forces CONNECTING -> CONNECTED
			h.signalUpdate()
			if h.callbacks.FramebufferUpdated != nil {
				h.callbacks.FramebufferUpdated(h.data, x, y, img, w, h2, stride)
			}
		},
		OnFramebufferResized: func(w, ht int) {
			h.dimensions.Store(packDims(w, ht))
			h.signalUpdate()
			if h.callbacks.FramebufferResized != nil {
				h.callbacks.FramebufferResized(h.data, w, ht)
			}
		},
		OnFramebufferCopied: func(sx, sy, w, ht, dx, dy int) {
			if h.callbacks.FramebufferCopied != nil {
				h.callbacks.FramebufferCopied(h.data, sx, sy, w, ht, dx, dy)
			}
		},
		OnCursorUpdated: func(hx, hy int, img []byte, w, ht, stride int) {
			if h.callbacks.CursorUpdated != nil {
				h.callbacks.CursorUpdated(h.data, hx, hy, img, w, ht, stride)
			}
		},
		OnClipboardReceived: func(text string) {
			if h.callbacks.ClipboardReceived != nil {
				h.callbacks.ClipboardReceived(h.data, text)
			}
		},
	}

	if err := h.sdk.Init(func(level, msg string) {
		rvplog.L().Info("sdkbackend: vendor log", "level", level, "msg", msg)
	}); err != nil {
		rvplog.L().Error("sdkbackend: init failed", "err", err)
		h.setState(stateDisconnected)
		return
	}
	LoadAddons(AddonDir, h.sdk.EnableAddon)
	if err := h.sdk.CreateViewer(h.settings, hooks); err != nil {
		rvplog.L().Error("sdkbackend: create viewer failed", "err", err)
		h.setState(stateDisconnected)
		return
	}
	if err := h.sdk.Connect(); err != nil {
		rvplog.L().Error("sdkbackend: connect failed", "err", err)
		h.setState(stateDisconnected)
		return
	}

	h.eventLoop()
	h.sdk.Close()
}

// eventLoop runs on the SDK's dedicated thread: each iteration selects
// on the pipe read end plus every SDK-requested fd, translates ready
// bits into MarkEvents, advances the SDK with one HandleEvents call,
// and dispatches any pipe records that arrived.
func (h *Handle) eventLoop() {
	for {
		h.stateMu.Lock()
		disconnected := h.state == stateDisconnected
		h.stateMu.Unlock()
		if disconnected {
			return
		}

		fds := h.sdk.EventFDs()
		timeoutMS, err := h.sdk.HandleEvents()
		if err != nil {
			rvplog.L().Error("sdkbackend: handle_events failed", "err", err)
			h.setState(stateDisconnected)
			return
		}

		ready, pipeReadable, stop := h.selectOnce(fds, timeoutMS)
		if stop {
			return
		}
		if len(ready) > 0 {
			h.sdk.MarkEvents(ready)
		}
		if pipeReadable {
			if h.dispatchPipe() {
				return
			}
		}
	}
}

func fdSetBit(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

// selectOnce blocks on the pipe read fd plus every SDK fd for up to
// timeoutMS milliseconds. stop is true if the select itself failed
// fatally.
func (h *Handle) selectOnce(fds []EventFD, timeoutMS int) (ready []EventFD, pipeReadable bool, stop bool) {
	var readSet, writeSet, exceptSet unix.FdSet
	maxFD := h.pipe.ReadFD()
	fdSetBit(&readSet, h.pipe.ReadFD())

	for _, fd := range fds {
		if fd.Read {
			fdSetBit(&readSet, fd.FD)
		}
		if fd.Write {
			fdSetBit(&writeSet, fd.FD)
		}
		if fd.Except {
			fdSetBit(&exceptSet, fd.FD)
		}
		if fd.FD > maxFD {
			maxFD = fd.FD
		}
	}

	timeout := unix.NsecToTimeval(int64(timeoutMS) * int64(time.Millisecond))
	n, err := unix.Select(maxFD+1, &readSet, &writeSet, &exceptSet, &timeout)
	if err != nil {
		if err == unix.EINTR {
			return nil, false, false
		}
		rvplog.L().Error("sdkbackend: select failed", "err", err)
		return nil, false, true
	}
	if n == 0 {
		return nil, false, false
	}

	if fdIsSet(&readSet, h.pipe.ReadFD()) {
		pipeReadable = true
	}
	for _, fd := range fds {
		r := fd.Read && fdIsSet(&readSet, fd.FD)
		w := fd.Write && fdIsSet(&writeSet, fd.FD)
		e := fd.Except && fdIsSet(&exceptSet, fd.FD)
		if r || w || e {
			ready = append(ready, EventFD{FD: fd.FD, Read: r, Write: w, Except: e})
		}
	}
	return ready, pipeReadable, false
}

// dispatchPipe reads and dispatches one record from the inbound pipe.
// Returns true if the record was DISCONNECT and the loop should exit.
func (h *Handle) dispatchPipe() bool {
	rec, err := h.pipe.Read()
	if err != nil {
		rvplog.L().Error("sdkbackend: pipe read failed", "err", err)
		h.setState(stateDisconnected)
		return true
	}

	switch rec.Type {
	case eventpipe.Key:
		if rec.Pressed {
			h.sdk.SendKeyDown(rec.KeySym)
		} else {
			h.sdk.SendKeyUp(rec.KeySym)
		}
	case eventpipe.Pointer:
		h.sdk.SendPointerEvent(int(rec.X), int(rec.Y), rec.Mask&0x7)
	case eventpipe.Clipboard:
		if text, ok := h.payloads.Take(rec.ClipboardPayloadID); ok {
			h.sdk.SendClipboardText(string(text))
		}
	case eventpipe.Disconnect:
		h.sdk.ClientStop()
		h.setState(stateDisconnected)
		return true
	case eventpipe.Scroll:
		// SendPointer derives SCROLL records at submission time and
		// writes them to the pipe. VendorSDK has no scroll entry
		// point, so they are consumed here without any SDK call.
	}
	return false
}

func (h *Handle) setState(s connState) {
	h.stateMu.Lock()
	if h.state == stateDisconnected {
		h.stateMu.Unlock()
		return // monotone: once DISCONNECTED, no further transitions
	}
	h.state = s
	h.stateMu.Unlock()
	h.stateCond.Broadcast()
}

func (h *Handle) signalUpdate() {
	select {
	case h.updated <- struct{}{}:
	default:
	}
}

// Free requests disconnect and joins the SDK thread, then closes the
// pipe.
func (h *Handle) Free() error {
	h.pipe.Write(eventpipe.Record{Type: eventpipe.Disconnect})
	h.wg.Wait()
	return h.pipe.Close()
}

// WaitForUpdate blocks until the update semaphore is signaled, timeout
// elapses, or the connection closes.
func (h *Handle) WaitForUpdate(ctx context.Context, timeout time.Duration) (bool, error) {
	select {
	case <-h.updated:
		return true, nil
	case <-h.done:
		return false, fmt.Errorf("sdkbackend: connection closed")
	case <-time.After(timeout):
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (h *Handle) Width() int {
	w, _ := unpackDims(h.dimensions.Load())
	return w
}

func (h *Handle) Height() int {
	_, ht := unpackDims(h.dimensions.Load())
	return ht
}

// SendKey enqueues a KEY record.
func (h *Handle) SendKey(keysym uint32, pressed bool) {
	if h.settings.ReadOnly {
		return
	}
	h.pipe.Write(eventpipe.Record{Type: eventpipe.Key, KeySym: keysym, Pressed: pressed})
}

// scrollBits identifies button-mask bits that represent scroll wheel
// up/down, per the classic 5-button wheel-mouse convention.
const (
	scrollUpBit   = 1 << 3
	scrollDownBit = 1 << 4
)

// SendPointer derives scroll events from the button mask: it compares
// mask against the remembered button mask, emits SCROLL records for
// newly-set wheel bits, and a POINTER record for the remaining (masked
// to bits 0-2) buttons.
func (h *Handle) SendPointer(x, y int, mask uint8) {
	if h.settings.ReadOnly {
		return
	}
	newlySet := mask &^ h.buttonMask
	if newlySet&scrollUpBit != 0 {
		h.pipe.Write(eventpipe.Record{Type: eventpipe.Scroll, ScrollDelta: 1})
	}
	if newlySet&scrollDownBit != 0 {
		h.pipe.Write(eventpipe.Record{Type: eventpipe.Scroll, ScrollDelta: -1})
	}
	h.buttonMask = mask

	h.pipe.Write(eventpipe.Record{
		Type: eventpipe.Pointer,
		X:    int32(x),
		Y:    int32(y),
		Mask: mask & 0x7,
	})
}

// SendClipboard enqueues a CLIPBOARD record carrying ownership of data
// via the Payloads store.
func (h *Handle) SendClipboard(data []byte) {
	if h.settings.ReadOnly {
		return
	}
	id := h.payloads.Store(data)
	h.pipe.Write(eventpipe.Record{Type: eventpipe.Clipboard, ClipboardPayloadID: id})
}

func (h *Handle) ClipboardEncoding() string { return "UTF-8" }
