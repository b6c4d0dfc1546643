// Package sdkbackend implements the thread-confined vendor-SDK
// backend. The vendor SDK's own wire protocol is, like the classic
// backend's, out of scope here: what this package owns is the
// event-loop machinery that confines every call into that SDK to one
// dedicated goroutine locked to its OS thread, and translates the
// multi-threaded backend contract onto it via eventpipe. VendorSDK is
// the narrow seam a real binding plugs into; tests drive it with a
// fake that asserts no SDK call is ever made off that one thread.
package sdkbackend

import "github.com/skiffdesk/rvpgateway/internal/backend"

// EventFD describes one file descriptor the vendor SDK wants
// monitored, and which I/O conditions it cares about.
type EventFD struct {
	FD                  int
	Read, Write, Except bool
}

// Hooks are the vendor SDK's outbound callbacks, invoked only from the
// SDK thread.
type Hooks struct {
	OnConnected          func()
	OnDisconnected       func()
	OnFramebufferUpdated func(x, y int, img []byte, w, h, stride int)
	OnFramebufferResized func(w, h int)
	OnFramebufferCopied  func(sx, sy, w, h, dx, dy int)
	OnCursorUpdated      func(hotspotX, hotspotY int, img []byte, w, h, stride int)
	OnClipboardReceived  func(text string)
}

// VendorSDK is the seam a real vendor library binding implements. All
// methods are only ever called from the single goroutine Handle
// dedicates to the SDK (runSDKThread); the vendor SDK is not
// thread-safe and calling it from anywhere else is undefined.
type VendorSDK interface {
	// Init performs one-time SDK initialization, installing the
	// process-wide logger.
	Init(log func(level, msg string)) error

	// CreateViewer creates the viewer object and registers hooks.
	CreateViewer(settings backend.Settings, hooks Hooks) error

	// Connect initiates the TCP connect; completion is reported
	// asynchronously via Hooks.OnConnected/OnDisconnected.
	Connect() error

	// EventFDs returns the current set of fds the SDK wants the event
	// loop to monitor.
	EventFDs() []EventFD

	// MarkEvents reports which of the previously requested fds became
	// ready, before the next HandleEvents call.
	MarkEvents(ready []EventFD)

	// HandleEvents advances the SDK's internal state machine and
	// returns the timeout (in milliseconds) the event loop should use
	// for its next select call.
	HandleEvents() (nextTimeoutMS int, err error)

	SendKeyDown(keysym uint32) error
	SendKeyUp(keysym uint32) error
	SendPointerEvent(x, y int, mask uint8) error
	SendClipboardText(text string) error

	// ClientStop requests the session to stop; the event loop exits on
	// its next state check after this returns.
	ClientStop() error

	// EnableAddon is called once per file matched by the add-on file
	// convention at startup.
	EnableAddon(path string) error

	Close() error
}
