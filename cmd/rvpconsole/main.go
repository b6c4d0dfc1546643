// Command rvpconsole is a raw-mode terminal client for exercising a
// live backend connection without a display: keystrokes typed at the
// terminal are forwarded as key events, and every framebuffer/cursor/
// clipboard callback is logged to stderr so the wire traffic stays
// visible alongside the raw input.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/skiffdesk/rvpgateway/internal/backend"
)

// asciiToKeysym maps a printable ASCII byte onto its X11 keysym, which
// for the printable range is the code point itself; control characters
// are handled separately by the small table below.
func asciiToKeysym(b byte) (keysym uint32, ok bool) {
	if b >= 0x20 && b < 0x7f {
		return uint32(b), true
	}
	switch b {
	case '\r', '\n':
		return 0xff0d, true // XK_Return
	case '\t':
		return 0xff09, true // XK_Tab
	case 0x7f:
		return 0xff08, true // XK_BackSpace
	case 0x1b:
		return 0xff1b, true // XK_Escape
	default:
		return 0, false
	}
}

func main() {
	backendKind := flag.String("backend", "classic", "backend kind: classic or sdk")
	hostname := flag.String("hostname", "", "upstream host")
	port := flag.Int("port", 5900, "upstream port")
	password := flag.String("password", "", "upstream password")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rvpconsole -hostname HOST [options]\n\nType to send key events; Ctrl+C exits.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *hostname == "" {
		flag.Usage()
		os.Exit(1)
	}

	kind := backend.KindClassic
	if *backendKind == "sdk" {
		kind = backend.KindSDK
	}

	b, err := backend.New(kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvpconsole: %v\n", err)
		os.Exit(1)
	}

	callbacks := backend.Callbacks{
		FramebufferUpdated: func(_ any, x, y int, _ []byte, w, h, _ int) {
			fmt.Fprintf(os.Stderr, "\r\nupdate: %dx%d at (%d,%d)\r\n", w, h, x, y)
		},
		FramebufferResized: func(_ any, w, h int) {
			fmt.Fprintf(os.Stderr, "\r\nresize: %dx%d\r\n", w, h)
		},
		FramebufferCopied: func(_ any, sx, sy, w, h, dx, dy int) {
			fmt.Fprintf(os.Stderr, "\r\ncopy: %dx%d (%d,%d)->(%d,%d)\r\n", w, h, sx, sy, dx, dy)
		},
		CursorUpdated: func(_ any, hx, hy int, _ []byte, w, h, _ int) {
			fmt.Fprintf(os.Stderr, "\r\ncursor: %dx%d hotspot (%d,%d)\r\n", w, h, hx, hy)
		},
		ClipboardReceived: func(_ any, text string) {
			fmt.Fprintf(os.Stderr, "\r\nclipboard: %q\r\n", text)
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	handle, err := b.Create(ctx, backend.Settings{Hostname: *hostname, Port: *port, Password: *password}, callbacks, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvpconsole: connect: %v\n", err)
		os.Exit(1)
	}
	defer handle.Free()

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvpconsole: raw mode: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore(fd, oldState)

	fmt.Fprintf(os.Stderr, "connected to %s (%dx%d); Ctrl+C to exit\r\n", *hostname, handle.Width(), handle.Height())

	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}
		ch := buf[0]
		if ch == 0x03 { // Ctrl+C
			return
		}
		keysym, ok := asciiToKeysym(ch)
		if !ok {
			continue
		}
		handle.SendKey(keysym, true)
		handle.SendKey(keysym, false)
	}
}
