// Package session drives a single viewer connection end to end:
// connect-with-retries, frame-pacing, clipboard encoding conversion
// between the backend and the outbound channel, and abort-status
// mapping. It composes internal/backend, internal/display and
// internal/videopacer without owning any of their internals.
package session

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skiffdesk/rvpgateway/internal/backend"
	"github.com/skiffdesk/rvpgateway/internal/display"
	"github.com/skiffdesk/rvpgateway/internal/rvperr"
	"github.com/skiffdesk/rvpgateway/internal/rvplog"
	"github.com/skiffdesk/rvpgateway/internal/videopacer"
)

// Config parameterizes a Driver.
type Config struct {
	BackendKind backend.Kind
	Settings    backend.Settings

	// FrameWindow is the session loop's polling period; FrameTimeout is
	// derived as FrameWindow * FrameTimeoutFactor, matching the
	// original client's "three missed windows means stalled" heuristic.
	FrameWindow         time.Duration
	FrameTimeoutFactor  int
	ConnectRetryBackoff time.Duration
}

func (c Config) frameTimeout() time.Duration {
	factor := c.FrameTimeoutFactor
	if factor <= 0 {
		factor = 3
	}
	return c.FrameWindow * time.Duration(factor)
}

// Driver owns one backend.Handle for the lifetime of a connection.
type Driver struct {
	cfg     Config
	adapter *display.Adapter
	pacer   *videopacer.Pacer

	handle backend.Handle
}

// New constructs a Driver. adapter and pacer must already be wired to
// the same underlying output (see internal/display, internal/videopacer).
func New(cfg Config, adapter *display.Adapter, pacer *videopacer.Pacer) *Driver {
	return &Driver{cfg: cfg, adapter: adapter, pacer: pacer}
}

// Connect dials the configured backend, retrying up to
// cfg.Settings.Retries times with a fixed backoff between attempts.
func (d *Driver) Connect(ctx context.Context) error {
	b, err := backend.New(d.cfg.BackendKind)
	if err != nil {
		return rvperr.New(rvperr.ServerError, "session.connect", err)
	}

	retries := d.cfg.Settings.Retries
	if retries < 0 {
		retries = 0
	}
	backoff := d.cfg.ConnectRetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			rvplog.L().Warn("session: retrying connect", "attempt", attempt, "err", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		h, err := b.Create(ctx, d.cfg.Settings, d.adapter.Callbacks(), nil)
		if err == nil {
			d.handle = h
			return nil
		}
		lastErr = err
	}
	return rvperr.New(rvperr.NotFound, "session.connect", lastErr)
}

// Run drives the update-wait/frame-pacing loop until ctx is canceled or
// the connection fails. It always tears down the handle before
// returning.
func (d *Driver) Run(ctx context.Context) error {
	if d.handle == nil {
		return rvperr.New(rvperr.ServerError, "session.run", nil)
	}
	defer d.handle.Free()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.updateLoop(ctx) })
	g.Go(func() error { return d.flushLoop(ctx) })

	err := g.Wait()
	if closeErr := d.pacer.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// updateLoop waits for framebuffer updates and stages each resulting
// surface snapshot into the pacer. Each iteration normally waits no
// longer than FrameWindow, but if the previous iteration's own
// processing (surface snapshot plus pacer staging) ran long enough
// that the gap since the last frame ended already exceeds the frame
// timeout, the wait is extended to the full frame timeout instead:
// the loop gives a lagging upstream room to catch up rather than
// repeatedly timing out at the short window while still behind.
func (d *Driver) updateLoop(ctx context.Context) error {
	window := d.cfg.FrameWindow
	if window <= 0 {
		window = 200 * time.Millisecond
	}
	frameTimeout := d.cfg.frameTimeout()
	lastFrameEnd := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frameStart := time.Now()
		processingLag := frameStart.Sub(lastFrameEnd)

		wait := window
		if processingLag > frameTimeout {
			wait = frameTimeout
		}

		signaled, err := d.handle.WaitForUpdate(ctx, wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return rvperr.New(rvperr.UpstreamError, "session.wait_for_update", err)
		}
		lastFrameEnd = time.Now()
		if !signaled {
			continue
		}

		ts := time.Now().UnixMilli()
		snapshot := d.adapter.Surface().Snapshot()
		d.pacer.PrepareFrame(snapshot, ts)
		d.pacer.AdvanceTimeline(ts)
	}
}

// flushLoop periodically ends the current output frame and flushes it,
// independent of how often upstream updates actually arrive.
func (d *Driver) flushLoop(ctx context.Context) error {
	window := d.cfg.FrameWindow
	if window <= 0 {
		window = 200 * time.Millisecond
	}
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.adapter.EndFrame(); err != nil {
				rvplog.L().Warn("session: end_frame failed", "err", err)
				continue
			}
			if err := d.adapter.Flush(); err != nil {
				rvplog.L().Warn("session: flush failed", "err", err)
			}
		}
	}
}

// AbortStatus maps an error into the terminal status code the outbound
// channel should report, returning ("", false) for errors that do not
// carry a rvperr.Kind (and so are not session-ending).
func AbortStatus(err error) (status string, ok bool) {
	rerr, isRvpErr := err.(*rvperr.Error)
	if !isRvpErr {
		return "", false
	}
	status = rerr.Kind.Status()
	return status, status != ""
}
