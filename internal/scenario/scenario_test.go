package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/skiffdesk/rvpgateway/internal/backend"
	"github.com/skiffdesk/rvpgateway/internal/display"
	"github.com/skiffdesk/rvpgateway/internal/session"
	"github.com/skiffdesk/rvpgateway/internal/videopacer"
)

type recordingOps struct {
	calls []string
}

func (r *recordingOps) Draw(x, y, w, h int) {
	r.calls = append(r.calls, "draw")
}
func (r *recordingOps) Copy(sx, sy, w, h, dx, dy int) {
	r.calls = append(r.calls, "copy")
}
func (r *recordingOps) Resize(w, h int) {
	r.calls = append(r.calls, "resize")
}
func (r *recordingOps) Cursor(hotspotX, hotspotY, w, h int) {
	r.calls = append(r.calls, "cursor")
}
func (r *recordingOps) Clipboard(text string) {
	r.calls = append(r.calls, "clipboard:"+text)
}
func (r *recordingOps) Key(keysym int, pressed bool) {
	r.calls = append(r.calls, "key")
}
func (r *recordingOps) Pointer(x, y, mask int) {
	r.calls = append(r.calls, "pointer")
}
func (r *recordingOps) SleepMS(ms int) {
	r.calls = append(r.calls, "sleep")
}

func TestRunDispatchesScriptedEventsInOrder(t *testing.T) {
	ops := &recordingOps{}
	script := `
resize(800, 600)
draw(0, 0, 64, 64)
copy(0, 0, 32, 32, 100, 100)
cursor(2, 2, 16, 16)
clipboard("hello")
key(65, true)
pointer(10, 10, 1)
`
	if err := Run(script, ops); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"resize", "draw", "copy", "cursor", "clipboard:hello", "key", "pointer"}
	if len(ops.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", ops.calls, want)
	}
	for i := range want {
		if ops.calls[i] != want[i] {
			t.Fatalf("calls[%d] = %q, want %q", i, ops.calls[i], want[i])
		}
	}
}

func TestRunRejectsMalformedScript(t *testing.T) {
	if err := Run("this is not lua (((", &recordingOps{}); err == nil {
		t.Fatalf("expected a syntax error")
	}
}

// TestFixtureBackendDrivesSessionDriver replays a small resize+draw
// scenario script through a FixtureBackend and a real session.Driver,
// checking that the driver connects, runs until its context deadline
// without error, and leaves the display surface at the scripted
// 32x32 size.
func TestFixtureBackendDrivesSessionDriver(t *testing.T) {
	script := `
resize(32, 32)
draw(0, 0, 32, 32)
sleep(5)
draw(0, 0, 32, 32)
`
	backend.Register(backend.Kind("test-scenario"), &FixtureBackend{Script: script})

	surface := display.NewSurface(32, 32)
	output := noopOutput{}
	adapter := display.NewAdapter(surface, output)
	pacer := videopacer.New(noopEncoder{}, noopOutbound{}, 32, 32)

	drv := session.New(session.Config{
		BackendKind: backend.Kind("test-scenario"),
		Settings:    backend.Settings{Hostname: "fixture"},
		FrameWindow: 10 * time.Millisecond,
	}, adapter, pacer)

	if err := drv.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := drv.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if surface.Width() != 32 || surface.Height() != 32 {
		t.Fatalf("surface dims = %dx%d, want 32x32", surface.Width(), surface.Height())
	}
}

type noopOutput struct{}

func (noopOutput) Draw(int, int, []byte, int, int, int) error   { return nil }
func (noopOutput) Copy(int, int, int, int, int, int) error      { return nil }
func (noopOutput) Resize(int, int) error                        { return nil }
func (noopOutput) Cursor(int, int, []byte, int, int, int) error { return nil }
func (noopOutput) EndFrame() error                              { return nil }
func (noopOutput) Flush() error                                 { return nil }

type noopEncoder struct{}

func (noopEncoder) Encode(frame []byte, pts int64) error { return nil }
func (noopEncoder) Flush() (bool, error)                 { return false, nil }
func (noopEncoder) Close() error                         { return nil }

type noopOutbound struct{}

func (noopOutbound) Sync(int64)   {}
func (noopOutbound) EndOfStream() {}
