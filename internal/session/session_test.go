package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/skiffdesk/rvpgateway/internal/backend"
	"github.com/skiffdesk/rvpgateway/internal/display"
	"github.com/skiffdesk/rvpgateway/internal/rvperr"
	"github.com/skiffdesk/rvpgateway/internal/videopacer"
)

type fakeBackend struct {
	failures int
	handle   *fakeHandle
}

func (f *fakeBackend) Create(ctx context.Context, settings backend.Settings, callbacks backend.Callbacks, data any) (backend.Handle, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("dial failed")
	}
	f.handle = &fakeHandle{updates: make(chan struct{}, 1)}
	return f.handle, nil
}

type fakeHandle struct {
	updates chan struct{}
	freed   bool
}

func (h *fakeHandle) Free() error { h.freed = true; return nil }
func (h *fakeHandle) WaitForUpdate(ctx context.Context, timeout time.Duration) (bool, error) {
	select {
	case <-h.updates:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(timeout):
		return false, nil
	}
}
func (h *fakeHandle) Width() int                  { return 64 }
func (h *fakeHandle) Height() int                 { return 64 }
func (h *fakeHandle) SendKey(uint32, bool)        {}
func (h *fakeHandle) SendPointer(int, int, uint8) {}
func (h *fakeHandle) SendClipboard([]byte)        {}
func (h *fakeHandle) ClipboardEncoding() string   { return "ISO-8859-1" }

type fakeEncoder struct{ encoded int }

func (e *fakeEncoder) Encode(frame []byte, pts int64) error { e.encoded++; return nil }
func (e *fakeEncoder) Flush() (bool, error)                 { return false, nil }
func (e *fakeEncoder) Close() error                         { return nil }

type fakeOutbound struct{ ended bool }

func (o *fakeOutbound) Sync(int64)   {}
func (o *fakeOutbound) EndOfStream() { o.ended = true }

type fakeOutput struct{}

func (fakeOutput) Draw(int, int, []byte, int, int, int) error            { return nil }
func (fakeOutput) Copy(int, int, int, int, int, int) error               { return nil }
func (fakeOutput) Resize(int, int) error                                 { return nil }
func (fakeOutput) Cursor(int, int, []byte, int, int, int) error          { return nil }
func (fakeOutput) EndFrame() error                                       { return nil }
func (fakeOutput) Flush() error                                          { return nil }

func TestConnectRetriesThenSucceeds(t *testing.T) {
	b := &fakeBackend{failures: 2}
	backend.Register("test-retry", b)

	s := display.NewSurface(64, 64)
	adapter := display.NewAdapter(s, fakeOutput{})
	pacer := videopacer.New(&fakeEncoder{}, &fakeOutbound{}, 64, 64)

	d := New(Config{
		BackendKind:         backend.Kind("test-retry"),
		Settings:            backend.Settings{Hostname: "host", Retries: 2},
		FrameWindow:         10 * time.Millisecond,
		ConnectRetryBackoff: time.Millisecond,
	}, adapter, pacer)

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if b.handle == nil {
		t.Fatalf("expected a handle after retries succeeded")
	}
}

func TestConnectExhaustsRetries(t *testing.T) {
	b := &fakeBackend{failures: 10}
	backend.Register("test-retry-fail", b)

	s := display.NewSurface(64, 64)
	adapter := display.NewAdapter(s, fakeOutput{})
	pacer := videopacer.New(&fakeEncoder{}, &fakeOutbound{}, 64, 64)

	d := New(Config{
		BackendKind:         backend.Kind("test-retry-fail"),
		Settings:            backend.Settings{Hostname: "host", Retries: 2},
		ConnectRetryBackoff: time.Millisecond,
	}, adapter, pacer)

	err := d.Connect(context.Background())
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if !errors.Is(err, rvperr.Sentinel(rvperr.NotFound)) {
		t.Fatalf("err = %v, want rvperr.NotFound", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	b := &fakeBackend{}
	backend.Register("test-run", b)

	s := display.NewSurface(64, 64)
	adapter := display.NewAdapter(s, fakeOutput{})
	enc := &fakeEncoder{}
	pacer := videopacer.New(enc, &fakeOutbound{}, 64, 64)

	d := New(Config{
		BackendKind: backend.Kind("test-run"),
		Settings:    backend.Settings{Hostname: "host"},
		FrameWindow: 5 * time.Millisecond,
	}, adapter, pacer)

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	b.handle.updates <- struct{}{}

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !b.handle.freed {
		t.Fatalf("expected handle to be freed after Run returns")
	}
	if enc.encoded == 0 {
		t.Fatalf("expected at least one encoded frame")
	}
}

func TestAbortStatusMapsRvperrKind(t *testing.T) {
	status, ok := AbortStatus(rvperr.New(rvperr.UpstreamError, "op", fmt.Errorf("boom")))
	if !ok || status != "UPSTREAM_ERROR" {
		t.Fatalf("status = %q, ok = %v, want UPSTREAM_ERROR/true", status, ok)
	}

	_, ok = AbortStatus(errors.New("plain"))
	if ok {
		t.Fatalf("expected ok=false for a non-rvperr error")
	}
}

func TestConvertClipboardRoundTripsAscii(t *testing.T) {
	original := []byte("hello world")
	utf8Data := ConvertClipboard(original, "ISO-8859-1", "UTF-8")
	back := ConvertClipboard(utf8Data, "UTF-8", "ISO-8859-1")
	if string(back) != string(original) {
		t.Fatalf("round trip = %q, want %q", back, original)
	}
}

func TestConvertClipboardSubstitutesOutOfRange(t *testing.T) {
	data := []byte("café 中") // e-acute is in Latin-1, the CJK char is not
	out := ConvertClipboard(data, "UTF-8", "ISO-8859-1")
	if out[len(out)-1] != '?' {
		t.Fatalf("expected out-of-range rune to be substituted with '?', got %q", out)
	}
}
