//go:build !headless

package display

import (
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.design/x/clipboard"

	"github.com/skiffdesk/rvpgateway/internal/imaging"
)

// EbitenOutput is the local preview window: an Output implementation
// that mirrors every draw/copy/resize/cursor op into an ebiten window,
// adapted from the compositor's single RGBA framebuffer + vsync
// channel shape into a thin passive mirror driven entirely by Adapter
// calls rather than its own refresh ticker.
type EbitenOutput struct {
	mu          sync.RWMutex
	width       int
	height      int
	frameBuffer []byte
	window      *ebiten.Image

	cursor *Cursor

	running   bool
	vsyncChan chan struct{}

	pasteHandler func([]byte)

	clipboardOnce sync.Once
	clipboardOK   bool
}

// NewEbitenOutput creates a preview window sized width x height.
func NewEbitenOutput(width, height int) *EbitenOutput {
	return &EbitenOutput{
		width:       width,
		height:      height,
		frameBuffer: make([]byte, width*height*imaging.BytesPerPixel),
		vsyncChan:   make(chan struct{}, 1),
	}
}

// Start launches the ebiten run loop on its own goroutine (ebiten
// requires its entire lifetime live on one goroutine) and blocks until
// the first Draw call confirms the window is live.
func (eo *EbitenOutput) Start(title string) error {
	eo.mu.Lock()
	if eo.running {
		eo.mu.Unlock()
		return nil
	}
	eo.running = true
	eo.mu.Unlock()

	ebiten.SetWindowSize(eo.width, eo.height)
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizable(true)
	ebiten.SetRunnableOnUnfocused(true)

	go func() {
		if err := ebiten.RunGame(&ebitenGame{eo: eo}); err != nil {
			fmt.Printf("display: ebiten run loop exited: %v\n", err)
		}
	}()

	<-eo.vsyncChan
	return nil
}

// SetPasteHandler installs the callback invoked when the user pastes
// local clipboard text into the preview window (Ctrl+Shift+V).
func (eo *EbitenOutput) SetPasteHandler(fn func([]byte)) {
	eo.mu.Lock()
	eo.pasteHandler = fn
	eo.mu.Unlock()
}

func (eo *EbitenOutput) Draw(x, y int, pixels []byte, w, h, stride int) error {
	eo.mu.Lock()
	defer eo.mu.Unlock()
	if x < 0 || y < 0 || x+w > eo.width || y+h > eo.height {
		return fmt.Errorf("display/ebiten: draw rect out of bounds")
	}
	dstStride := eo.width * imaging.BytesPerPixel
	rowBytes := w * imaging.BytesPerPixel
	for row := 0; row < h; row++ {
		srcOff := row * stride
		dstOff := (y+row)*dstStride + x*imaging.BytesPerPixel
		copy(eo.frameBuffer[dstOff:dstOff+rowBytes], pixels[srcOff:srcOff+rowBytes])
	}
	return nil
}

func (eo *EbitenOutput) Copy(sx, sy, w, h, dx, dy int) error {
	eo.mu.Lock()
	defer eo.mu.Unlock()
	stride := eo.width * imaging.BytesPerPixel
	rowBytes := w * imaging.BytesPerPixel
	staged := make([]byte, rowBytes*h)
	for row := 0; row < h; row++ {
		srcOff := (sy+row)*stride + sx*imaging.BytesPerPixel
		copy(staged[row*rowBytes:(row+1)*rowBytes], eo.frameBuffer[srcOff:srcOff+rowBytes])
	}
	for row := 0; row < h; row++ {
		dstOff := (dy+row)*stride + dx*imaging.BytesPerPixel
		copy(eo.frameBuffer[dstOff:dstOff+rowBytes], staged[row*rowBytes:(row+1)*rowBytes])
	}
	return nil
}

func (eo *EbitenOutput) Resize(w, h int) error {
	eo.mu.Lock()
	defer eo.mu.Unlock()
	eo.width = w
	eo.height = h
	eo.frameBuffer = make([]byte, w*h*imaging.BytesPerPixel)
	if eo.window != nil {
		eo.window.Dispose()
		eo.window = nil
	}
	ebiten.SetWindowSize(w, h)
	return nil
}

func (eo *EbitenOutput) Cursor(hotspotX, hotspotY int, pixels []byte, w, h, stride int) error {
	eo.mu.Lock()
	defer eo.mu.Unlock()
	c := &Cursor{HotspotX: hotspotX, HotspotY: hotspotY, Width: w, Height: h, Stride: stride, Visible: w > 0 && h > 0}
	c.Data = make([]byte, len(pixels))
	copy(c.Data, pixels)
	eo.cursor = c
	return nil
}

func (eo *EbitenOutput) EndFrame() error { return nil }
func (eo *EbitenOutput) Flush() error    { return nil }

// ebitenGame adapts EbitenOutput onto ebiten.Game: EbitenOutput's own
// Draw method is the Output pixel-rect operation and cannot also carry
// ebiten.Game's Draw(screen *ebiten.Image) signature, so the game loop
// methods live on this separate delegating type instead.
type ebitenGame struct {
	eo *EbitenOutput
}

func (g *ebitenGame) Update() error              { return g.eo.update() }
func (g *ebitenGame) Draw(screen *ebiten.Image)  { g.eo.drawScreen(screen) }
func (g *ebitenGame) Layout(w, h int) (int, int) { return g.eo.Layout(w, h) }

// update watches for window close and a clipboard-paste shortcut,
// since all pixel state arrives via the Output.Draw/Copy/Resize ops.
func (eo *EbitenOutput) update() error {
	if ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}
	eo.mu.RLock()
	running := eo.running
	eo.mu.RUnlock()
	if !running {
		return ebiten.Termination
	}

	ctrl := ebiten.IsKeyPressed(ebiten.KeyControlLeft) || ebiten.IsKeyPressed(ebiten.KeyControlRight)
	shift := ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight)
	if ctrl && shift && ebiten.IsKeyPressed(ebiten.KeyV) {
		eo.handlePaste()
	}
	return nil
}

func (eo *EbitenOutput) handlePaste() {
	eo.clipboardOnce.Do(func() {
		eo.clipboardOK = clipboard.Init() == nil
	})
	if !eo.clipboardOK {
		return
	}
	data := clipboard.Read(clipboard.FmtText)
	if len(data) == 0 {
		return
	}
	eo.mu.RLock()
	handler := eo.pasteHandler
	eo.mu.RUnlock()
	if handler != nil {
		handler(data)
	}
}

// drawScreen composites the framebuffer and cursor layer and blits
// them to the window; named separately from Draw (the Output pixel
// op) to avoid colliding with ebiten.Game's own Draw method on
// ebitenGame above.
func (eo *EbitenOutput) drawScreen(screen *ebiten.Image) {
	eo.mu.Lock()
	if eo.window == nil {
		eo.window = ebiten.NewImage(eo.width, eo.height)
	}
	eo.window.WritePixels(eo.frameBuffer)
	cursor := eo.cursor
	eo.mu.Unlock()

	screen.DrawImage(eo.window, nil)
	if cursor != nil && cursor.Visible {
		cursorImg := ebiten.NewImageFromImage(newRGBAView(cursor.Data, cursor.Width, cursor.Height, cursor.Stride))
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Translate(float64(cursor.HotspotX), float64(cursor.HotspotY))
		screen.DrawImage(cursorImg, op)
	}

	select {
	case eo.vsyncChan <- struct{}{}:
	default:
	}
}

func (eo *EbitenOutput) Layout(_, _ int) (int, int) {
	eo.mu.RLock()
	defer eo.mu.RUnlock()
	return eo.width, eo.height
}
