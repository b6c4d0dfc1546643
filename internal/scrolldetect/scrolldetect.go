// Package scrolldetect detects whole-image translation (scrolling)
// between two same-sized images, built on imgdiff's Search and
// Compare. Ported from guacamole-server's scroll.c.
package scrolldetect

import "github.com/skiffdesk/rvpgateway/internal/imaging"
import "github.com/skiffdesk/rvpgateway/internal/imgdiff"

// windowSize is the centered region used to locate the scroll; tiles
// and deltas are resolved against this window rather than the whole
// image for speed.
const windowSize = 512

// Result describes a detected translation: the w x h rectangle of
// content found unchanged at src in a and dst in b.
type Result struct {
	Src  imaging.Point
	Dst  imaging.Point
	W, H int
}

// FindCommonRect detects whether b is a translated copy of a. Requires
// a and b to share dimensions and be at least 64x64; otherwise returns
// ok=false. This is one-sided: false negatives are allowed (the
// center-tile search may miss), false positives are not (the final
// Compare is authoritative).
func FindCommonRect(a, b imaging.Image) (result Result, ok bool) {
	if a.Width != b.Width || a.Height != b.Height {
		return Result{}, false
	}
	if a.Width < imaging.CellSize || a.Height < imaging.CellSize {
		return Result{}, false
	}

	wx, wy, ww, wh := centeredWindow(a.Width, a.Height)
	aWindow := a.Sub(wx, wy, ww, wh)
	bWindow := b.Sub(wx, wy, ww, wh)

	tileX := (ww - imaging.CellSize) / 2
	tileY := (wh - imaging.CellSize) / 2
	centerTile := bWindow.Sub(tileX, tileY, imaging.CellSize, imaging.CellSize)

	foundPos, found := imgdiff.Search(aWindow, centerTile)
	if !found {
		return Result{}, false
	}

	dx := tileX - foundPos.X
	dy := tileY - foundPos.Y

	srcX, dstX, rectW := alignAxis(dx, ww)
	srcY, dstY, rectH := alignAxis(dy, wh)
	if rectW <= 0 || rectH <= 0 {
		return Result{}, false
	}

	srcRect := aWindow.Sub(srcX, srcY, rectW, rectH)
	dstRect := bWindow.Sub(dstX, dstY, rectW, rectH)
	if imgdiff.Compare(srcRect, dstRect) != 0 {
		return Result{}, false
	}

	return Result{
		Src: imaging.Point{X: wx + srcX, Y: wy + srcY},
		Dst: imaging.Point{X: wx + dstX, Y: wy + dstY},
		W:   rectW,
		H:   rectH,
	}, true
}

// centeredWindow clamps the windowSize x windowSize window to fit
// inside a width x height image, centered.
func centeredWindow(width, height int) (x, y, w, h int) {
	w = windowSize
	if w > width {
		w = width
	}
	h = windowSize
	if h > height {
		h = height
	}
	x = (width - w) / 2
	y = (height - h) / 2
	return x, y, w, h
}

// alignAxis converts a signed delta along one axis into matching
// (srcOffset, dstOffset, length) triples, clipping negative deltas to
// the opposite edge as the translated-rectangle mapping requires.
func alignAxis(delta, extent int) (srcOff, dstOff, length int) {
	if delta >= 0 {
		srcOff = 0
		dstOff = delta
		length = extent - delta
	} else {
		srcOff = -delta
		dstOff = 0
		length = extent + delta
	}
	return srcOff, dstOff, length
}
