package backend

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/skiffdesk/rvpgateway/internal/rvperr"
	"github.com/skiffdesk/rvpgateway/internal/rvplog"
)

// classicBackend is the library-driven implementation: the wire
// handshake and message framing mirror a conventional RFB client,
// grounded on the framing bradfitz-rfbgo/patdhlk-rfb use server-side
// (handshake version string, PixelFormat, key/pointer event bytes),
// inverted here into the client role the session driver needs.
// A readLoop goroutine decodes server messages and fires the backend
// callbacks directly; wait_for_update waits, up to its timeout, for
// the signal readLoop sends after each decoded message.
type classicBackend struct{}

func init() {
	Register(KindClassic, &classicBackend{})
}

func (classicBackend) Create(ctx context.Context, settings Settings, callbacks Callbacks, data any) (Handle, error) {
	if err := settings.Validate(KindClassic); err != nil {
		return nil, rvperr.New(rvperr.ServerError, "backend.classic.create", err)
	}

	addr := fmt.Sprintf("%s:%d", settings.Hostname, settings.Port)
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, rvperr.New(rvperr.NotFound, "backend.classic.create", err)
	}

	h := &classicHandle{
		conn:      conn,
		r:         bufio.NewReader(conn),
		callbacks: callbacks,
		data:      data,
		settings:  settings,
		updated:   make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}

	if err := h.handshake(); err != nil {
		conn.Close()
		return nil, rvperr.New(rvperr.UpstreamError, "backend.classic.create", err)
	}

	go h.readLoop()
	return h, nil
}

type classicHandle struct {
	conn net.Conn
	r    *bufio.Reader

	callbacks Callbacks
	data      any
	settings  Settings

	mu     sync.Mutex
	width  int
	height int

	updated chan struct{}
	closed  chan struct{}
	once    sync.Once
	lastErr error
}

// handshake performs the minimal RFB version/security/init exchange;
// full security-type negotiation and framebuffer encodings are the
// classic library's internal concern and out of scope here.
func (h *classicHandle) handshake() error {
	versionLine := make([]byte, 12)
	if _, err := h.r.Read(versionLine); err != nil {
		return fmt.Errorf("read protocol version: %w", err)
	}
	if _, err := h.conn.Write([]byte("RFB 003.008\n")); err != nil {
		return fmt.Errorf("write protocol version: %w", err)
	}

	var numTypes uint8
	if err := binary.Read(h.r, binary.BigEndian, &numTypes); err != nil {
		return fmt.Errorf("read security types: %w", err)
	}
	types := make([]byte, numTypes)
	if _, err := h.r.Read(types); err != nil {
		return fmt.Errorf("read security type list: %w", err)
	}
	// Select "None" (type 1) when offered; password auth is handled
	// by the library's own security-handshake state machine in a
	// full implementation.
	offered := false
	for _, t := range types {
		if t == 1 {
			offered = true
		}
	}
	if !offered {
		return fmt.Errorf("security type None not offered")
	}
	if _, err := h.conn.Write([]byte{1}); err != nil {
		return fmt.Errorf("write security choice: %w", err)
	}

	var secResult uint32
	if err := binary.Read(h.r, binary.BigEndian, &secResult); err != nil {
		return fmt.Errorf("read security result: %w", err)
	}
	if secResult != 0 {
		return fmt.Errorf("security handshake rejected")
	}

	shareFlag := byte(1)
	if _, err := h.conn.Write([]byte{shareFlag}); err != nil {
		return fmt.Errorf("write client init: %w", err)
	}

	var width, height uint16
	if err := binary.Read(h.r, binary.BigEndian, &width); err != nil {
		return fmt.Errorf("read framebuffer width: %w", err)
	}
	if err := binary.Read(h.r, binary.BigEndian, &height); err != nil {
		return fmt.Errorf("read framebuffer height: %w", err)
	}

	// Remaining server-init fields (pixel format, name length, name)
	// are consumed but not retained. Pixel bytes reach the callbacks
	// exactly as received: the advertised PixelFormat is not applied,
	// and Settings.SwapRedBlue is not read by this backend or by the
	// display adapter.
	skip := make([]byte, 16)
	if _, err := h.r.Read(skip); err != nil {
		return fmt.Errorf("read pixel format: %w", err)
	}
	var nameLen uint32
	if err := binary.Read(h.r, binary.BigEndian, &nameLen); err != nil {
		return fmt.Errorf("read name length: %w", err)
	}
	name := make([]byte, nameLen)
	if _, err := h.r.Read(name); err != nil {
		return fmt.Errorf("read name: %w", err)
	}

	h.mu.Lock()
	h.width = int(width)
	h.height = int(height)
	h.mu.Unlock()
	return nil
}

// readLoop decodes server-to-client messages and fires the registered
// callbacks; it is the classic backend's internal thread.
func (h *classicHandle) readLoop() {
	defer close(h.closed)
	for {
		msgType, err := h.r.ReadByte()
		if err != nil {
			h.lastErr = err
			return
		}
		switch msgType {
		case 0: // FramebufferUpdate
			h.handleFramebufferUpdate()
		case 3: // ServerCutText (clipboard)
			h.handleServerCutText()
		default:
			rvplog.L().Warn("backend/classic: unknown message type", "type", msgType)
			return
		}
		select {
		case h.updated <- struct{}{}:
		default:
		}
	}
}

func (h *classicHandle) handleFramebufferUpdate() {
	var padding byte
	var numRects uint16
	h.r.ReadByte() // padding
	_ = padding
	binary.Read(h.r, binary.BigEndian, &numRects)

	for i := uint16(0); i < numRects; i++ {
		var x, y, w, rh uint16
		var encoding int32
		binary.Read(h.r, binary.BigEndian, &x)
		binary.Read(h.r, binary.BigEndian, &y)
		binary.Read(h.r, binary.BigEndian, &w)
		binary.Read(h.r, binary.BigEndian, &rh)
		binary.Read(h.r, binary.BigEndian, &encoding)

		switch encoding {
		case 0: // Raw
			stride := int(w) * 4
			buf := make([]byte, stride*int(rh))
			h.r.Read(buf)
			if h.callbacks.FramebufferUpdated != nil {
				h.callbacks.FramebufferUpdated(h.data, int(x), int(y), buf, int(w), int(rh), stride)
			}
		case -239: // cursor pseudo-encoding
			h.handleCursorRect(int(x), int(y), int(w), int(rh))
		default:
			rvplog.L().Warn("backend/classic: unsupported encoding", "encoding", encoding)
		}
	}
}

// handleCursorRect decodes a cursor pseudo-encoding rectangle. The
// image and bitmask bytes are always copied into freshly allocated
// slices before the callback returns, rather than assuming any
// particular buffer-ownership contract from the wire reader.
func (h *classicHandle) handleCursorRect(hotspotX, hotspotY, w, rh int) {
	stride := w * 4
	img := make([]byte, stride*rh)
	h.r.Read(img)

	maskStride := (w + 7) / 8
	mask := make([]byte, maskStride*rh)
	h.r.Read(mask)

	if h.callbacks.CursorUpdated != nil {
		imgCopy := make([]byte, len(img))
		copy(imgCopy, img)
		h.callbacks.CursorUpdated(h.data, hotspotX, hotspotY, imgCopy, w, rh, stride)
	}
}

func (h *classicHandle) handleServerCutText() {
	var padding [3]byte
	h.r.Read(padding[:])
	var length uint32
	binary.Read(h.r, binary.BigEndian, &length)
	text := make([]byte, length)
	h.r.Read(text)

	if h.callbacks.ClipboardReceived != nil {
		h.callbacks.ClipboardReceived(h.data, string(text))
	}
}

func (h *classicHandle) Free() error {
	h.once.Do(func() { h.conn.Close() })
	return nil
}

func (h *classicHandle) WaitForUpdate(ctx context.Context, timeout time.Duration) (bool, error) {
	select {
	case <-h.updated:
		return true, nil
	case <-h.closed:
		return false, fmt.Errorf("backend/classic: connection closed: %w", h.lastErr)
	case <-time.After(timeout):
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (h *classicHandle) Width() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width
}

func (h *classicHandle) Height() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.height
}

func (h *classicHandle) SendKey(keysym uint32, pressed bool) {
	if h.settings.ReadOnly {
		return
	}
	msg := make([]byte, 8)
	msg[0] = 4 // KeyEvent
	if pressed {
		msg[1] = 1
	}
	binary.BigEndian.PutUint32(msg[4:], keysym)
	h.conn.Write(msg)
}

func (h *classicHandle) SendPointer(x, y int, mask uint8) {
	if h.settings.ReadOnly {
		return
	}
	msg := make([]byte, 6)
	msg[0] = 5 // PointerEvent
	msg[1] = mask
	binary.BigEndian.PutUint16(msg[2:], uint16(x))
	binary.BigEndian.PutUint16(msg[4:], uint16(y))
	h.conn.Write(msg)
}

func (h *classicHandle) SendClipboard(data []byte) {
	if h.settings.ReadOnly {
		return
	}
	msg := make([]byte, 8+len(data))
	msg[0] = 6 // ClientCutText
	binary.BigEndian.PutUint32(msg[4:], uint32(len(data)))
	copy(msg[8:], data)
	h.conn.Write(msg)
}

func (classicHandle) ClipboardEncoding() string {
	return "ISO-8859-1"
}
