// Package backend defines the pluggable viewer-protocol contract: a
// common connect/wait/inject-input/shutdown surface over the two
// implementations (classic library-driven and vendor-SDK
// thread-confined). The interface and its Settings struct generalize
// a VideoOutput-style interface and int-keyed factory into a named
// registry, the way google-periph's conn/x/xreg package resolves
// named driver implementations.
package backend

import (
	"context"
	"fmt"
	"time"
)

// Callbacks are fired by a Backend on its internal thread (for the
// classic backend) or its dedicated SDK thread (for the vendor-SDK
// backend). Data is the opaque pointer supplied at Create.
type Callbacks struct {
	ClipboardReceived  func(data any, text string)
	CursorUpdated      func(data any, hotspotX, hotspotY int, img []byte, w, h, stride int)
	FramebufferResized func(data any, w, h int)
	FramebufferCopied  func(data any, sx, sy, w, h, dx, dy int)
	FramebufferUpdated func(data any, x, y int, img []byte, w, h, stride int)
}

// Settings is the input to Create.
type Settings struct {
	Hostname string
	Port     int
	Password string // empty disables password auth

	Encodings string // advisory; SDK backend ignores

	ColorDepth int // 8, 16, 24, 32 — library backend only

	ReadOnly bool // disables clipboard and input delivery

	DestHost string // repeater target; unsupported by SDK backend
	DestPort int

	ReverseConnect bool // incoming-connect mode; unsupported by SDK backend
	ListenTimeout  time.Duration

	RemoteCursor bool // render cursor remotely (true) vs locally (false)
	SwapRedBlue  bool

	Retries int // connect retry budget for the session driver
}

// Kind names the two backend implementations.
type Kind string

const (
	KindClassic Kind = "classic"
	KindSDK     Kind = "sdk"
)

// Validate enforces the field-compatibility rules: a hostname is
// required, color_depth must be 8, 16, 24 or 32 when set, and the
// repeater, reverse-connect and color_depth fields are rejected for
// the SDK backend. ReadOnly is not checked here; each Handle's send
// methods drop input and clipboard writes when it is set.
func (s Settings) Validate(kind Kind) error {
	if s.Hostname == "" {
		return fmt.Errorf("backend: hostname is required")
	}
	if kind == KindSDK {
		if s.DestHost != "" || s.DestPort != 0 {
			return fmt.Errorf("backend: dest_host/dest_port are unsupported by the %s backend", kind)
		}
		if s.ReverseConnect || s.ListenTimeout != 0 {
			return fmt.Errorf("backend: reverse_connect/listen_timeout are unsupported by the %s backend", kind)
		}
		if s.ColorDepth != 0 {
			return fmt.Errorf("backend: color_depth only applies to the %s backend", KindClassic)
		}
	}
	if s.ColorDepth != 0 {
		switch s.ColorDepth {
		case 8, 16, 24, 32:
		default:
			return fmt.Errorf("backend: invalid color_depth %d", s.ColorDepth)
		}
	}
	return nil
}

// Handle represents an established connection.
type Handle interface {
	// Free disconnects and reclaims all resources associated with the
	// handle. Idempotent.
	Free() error

	// WaitForUpdate blocks until the receive-callback set fires once
	// or timeout elapses. Returns true if signaled, false on timeout,
	// and a non-nil error if the connection has closed.
	WaitForUpdate(ctx context.Context, timeout time.Duration) (bool, error)

	Width() int
	Height() int

	SendKey(keysym uint32, pressed bool)
	SendPointer(x, y int, mask uint8)
	SendClipboard(data []byte)

	// ClipboardEncoding names the encoding used on the wire: the
	// library backend returns "ISO-8859-1", the SDK backend "UTF-8".
	ClipboardEncoding() string
}

// Backend creates Handles for one Kind of viewer protocol.
type Backend interface {
	Create(ctx context.Context, settings Settings, callbacks Callbacks, data any) (Handle, error)
}

var registry = map[Kind]Backend{}

// Register installs a Backend implementation under the given Kind.
// Called from each implementation's init(), mirroring a named-driver
// registry rather than an int-switch factory.
func Register(kind Kind, b Backend) {
	registry[kind] = b
}

// New resolves a registered Backend by Kind.
func New(kind Kind) (Backend, error) {
	b, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("backend: unknown backend kind %q", kind)
	}
	return b, nil
}
