// Command rvpgatewayd wires a backend connection, the display
// adapter, and the video pacer into a running session: the minimal
// host process around internal/session.Driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skiffdesk/rvpgateway/internal/backend"
	"github.com/skiffdesk/rvpgateway/internal/display"
	"github.com/skiffdesk/rvpgateway/internal/rvplog"
	"github.com/skiffdesk/rvpgateway/internal/session"
	"github.com/skiffdesk/rvpgateway/internal/videopacer"
)

func main() {
	backendKind := flag.String("backend", "classic", "backend kind: classic or sdk")
	hostname := flag.String("hostname", "", "upstream host")
	port := flag.Int("port", 5900, "upstream port")
	password := flag.String("password", "", "upstream password")
	colorDepth := flag.Int("color-depth", 32, "classic backend color depth (8/16/24/32)")
	readOnly := flag.Bool("read-only", false, "disable clipboard and input delivery")
	retries := flag.Int("retries", 3, "connect retry budget")
	width := flag.Int("width", 1280, "encoder output width")
	height := flag.Int("height", 720, "encoder output height")
	bitrate := flag.Int("bitrate", 4_000_000, "encoder target bitrate in bits per second")
	frameWindow := flag.Duration("frame-window", 33*time.Millisecond, "frame flush period")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rvpgatewayd -hostname HOST [options]\n\nOptions:\n")
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

	settings := backend.Settings{
		Hostname:   *hostname,
		Port:       *port,
		Password:   *password,
		ColorDepth: *colorDepth,
		ReadOnly:   *readOnly,
		Retries:    *retries,
	}
	if kind == backend.KindSDK {
		settings.ColorDepth = 0
	}

	encoder, cleanupEncoder, err := buildEncoder(*width, *height, *bitrate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvpgatewayd: %v\n", err)
		os.Exit(1)
	}
	defer cleanupEncoder()

	surface := display.NewSurface(*width, *height)
	output := display.NewEbitenOutput(*width, *height)
	if err := output.Start("rvpgatewayd"); err != nil {
		fmt.Fprintf(os.Stderr, "rvpgatewayd: preview window: %v\n", err)
		os.Exit(1)
	}
	adapter := display.NewAdapter(surface, output)
	pacer := videopacer.New(encoder, stdoutOutbound{}, *width, *height)

	driver := session.New(session.Config{
		BackendKind:         kind,
		Settings:            settings,
		FrameWindow:         *frameWindow,
		ConnectRetryBackoff: time.Second,
	}, adapter, pacer)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := driver.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rvpgatewayd: connect: %v\n", err)
		os.Exit(1)
	}

	rvplog.L().Info("rvpgatewayd: connected", "backend", kind, "hostname", *hostname)

	if err := driver.Run(ctx); err != nil {
		if status, ok := session.AbortStatus(err); ok {
			fmt.Fprintf(os.Stderr, "rvpgatewayd: session aborted: %s (%v)\n", status, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "rvpgatewayd: %v\n", err)
		os.Exit(1)
	}
}

// stdoutOutbound is a placeholder Outbound that only logs; a real
// deployment replaces this with the browser-facing transport.
type stdoutOutbound struct{}

func (stdoutOutbound) Sync(timestampMS int64) { rvplog.L().Debug("frame", "pts", timestampMS) }
func (stdoutOutbound) EndOfStream()           { rvplog.L().Info("end of stream") }
