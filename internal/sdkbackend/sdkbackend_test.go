package sdkbackend

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/skiffdesk/rvpgateway/internal/backend"
)

// fakeSDK is a VendorSDK test double that records the OS thread id of
// every call, so tests can assert that no call is ever made from a
// thread other than the one that called Init.
type fakeSDK struct {
	mu       sync.Mutex
	initTID  int
	violated bool

	hooks     Hooks
	connected chan struct{}

	receivedKeys     []uint32
	receivedPointers [][3]int
	stopped          chan struct{}
}

func newFakeSDK() *fakeSDK {
	return &fakeSDK{connected: make(chan struct{}, 1), stopped: make(chan struct{})}
}

func (f *fakeSDK) checkThread() {
	tid := unix.Gettid()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initTID == 0 {
		f.initTID = tid
		return
	}
	if tid != f.initTID {
		f.violated = true
	}
}

func (f *fakeSDK) Init(log func(level, msg string)) error {
	f.checkThread()
	return nil
}

func (f *fakeSDK) CreateViewer(settings backend.Settings, hooks Hooks) error {
	f.checkThread()
	f.hooks = hooks
	return nil
}

func (f *fakeSDK) Connect() error {
	f.checkThread()
	go func() {
		f.hooks.OnFramebufferResized(800, 600)
		f.hooks.OnConnected()
	}()
	return nil
}

func (f *fakeSDK) EventFDs() []EventFD { f.checkThread(); return nil }

func (f *fakeSDK) MarkEvents(ready []EventFD) { f.checkThread() }

func (f *fakeSDK) HandleEvents() (int, error) {
	f.checkThread()
	return 50, nil
}

func (f *fakeSDK) SendKeyDown(keysym uint32) error {
	f.checkThread()
	f.mu.Lock()
	f.receivedKeys = append(f.receivedKeys, keysym)
	f.mu.Unlock()
	return nil
}

func (f *fakeSDK) SendKeyUp(keysym uint32) error { f.checkThread(); return nil }

func (f *fakeSDK) SendPointerEvent(x, y int, mask uint8) error {
	f.checkThread()
	f.mu.Lock()
	f.receivedPointers = append(f.receivedPointers, [3]int{x, y, int(mask)})
	f.mu.Unlock()
	return nil
}

func (f *fakeSDK) SendClipboardText(text string) error { f.checkThread(); return nil }

func (f *fakeSDK) ClientStop() error {
	f.checkThread()
	close(f.stopped)
	return nil
}

func (f *fakeSDK) EnableAddon(path string) error { f.checkThread(); return nil }

func (f *fakeSDK) Close() error { f.checkThread(); return nil }

func TestSDKCallsConfinedToSingleThread(t *testing.T) {
	sdk := newFakeSDK()
	Register(func() VendorSDK { return sdk })

	b, err := backend.New(backend.KindSDK)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := b.Create(context.Background(), backend.Settings{Hostname: "example.invalid"}, backend.Callbacks{}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer h.Free()

	if h.Width() != 800 || h.Height() != 600 {
		t.Fatalf("Width/Height = %d/%d, want 800/600", h.Width(), h.Height())
	}

	h.SendKey(65, true)
	time.Sleep(20 * time.Millisecond)

	sdk.mu.Lock()
	violated := sdk.violated
	keys := append([]uint32(nil), sdk.receivedKeys...)
	sdk.mu.Unlock()

	if violated {
		t.Fatalf("VendorSDK call made from a non-SDK thread")
	}
	if len(keys) != 1 || keys[0] != 65 {
		t.Fatalf("receivedKeys = %v, want [65]", keys)
	}
}

func TestSendPointerDerivesScroll(t *testing.T) {
	sdk := newFakeSDK()
	Register(func() VendorSDK { return sdk })

	b, _ := backend.New(backend.KindSDK)
	h, err := b.Create(context.Background(), backend.Settings{Hostname: "example.invalid"}, backend.Callbacks{}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer h.Free()

	h.SendPointer(10, 20, scrollUpBit|0x1)
	time.Sleep(20 * time.Millisecond)

	sdk.mu.Lock()
	pointers := append([][3]int(nil), sdk.receivedPointers...)
	sdk.mu.Unlock()

	if len(pointers) != 1 || pointers[0][2] != 0x1 {
		t.Fatalf("receivedPointers = %v, want exactly one pointer record with mask 0x1", pointers)
	}
}

// S6: two threads each pushing 1000 KEY records observe exactly 2000
// dispatched calls, none from a non-SDK thread.
func TestTwoProducersObserveAllRecords(t *testing.T) {
	sdk := newFakeSDK()
	Register(func() VendorSDK { return sdk })

	b, _ := backend.New(backend.KindSDK)
	h, err := b.Create(context.Background(), backend.Settings{Hostname: "example.invalid"}, backend.Callbacks{}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer h.Free()

	const perProducer = 1000
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				h.SendKey(uint32(j), true)
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	var n int
	for {
		sdk.mu.Lock()
		n = len(sdk.receivedKeys)
		sdk.mu.Unlock()
		if n >= perProducer*2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only observed %d of %d records", n, perProducer*2)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n != perProducer*2 {
		t.Fatalf("observed %d records, want exactly %d", n, perProducer*2)
	}

	sdk.mu.Lock()
	violated := sdk.violated
	sdk.mu.Unlock()
	if violated {
		t.Fatalf("VendorSDK call made from a non-SDK thread")
	}
}
