package imgdiff

import (
	"math/rand"
	"testing"

	"github.com/skiffdesk/rvpgateway/internal/imaging"
)

func solidImage(width, height int, pixel uint32) imaging.Image {
	data := make([]byte, width*height*imaging.BytesPerPixel)
	for i := 0; i < width*height; i++ {
		off := i * 4
		data[off] = byte(pixel)
		data[off+1] = byte(pixel >> 8)
		data[off+2] = byte(pixel >> 16)
		data[off+3] = byte(pixel >> 24)
	}
	return imaging.New(data, width, height)
}

func fillBlock(img imaging.Image, x, y, w, h int, pixel uint32) {
	for row := y; row < y+h; row++ {
		for col := x; col < x+w; col++ {
			off := img.RowOffset(row) + col*imaging.BytesPerPixel
			img.Data[off] = byte(pixel)
			img.Data[off+1] = byte(pixel >> 8)
			img.Data[off+2] = byte(pixel >> 16)
			img.Data[off+3] = byte(pixel >> 24)
		}
	}
}

// S2: a 256x256 haystack with random RGB; the needle is the sub-image
// at (96,48). Search must locate it exactly, and a tampered needle
// must not match.
func TestSearchFindsNeedle(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	data := make([]byte, 256*256*4)
	rng.Read(data)
	// alpha/high byte is ignored; zero it to keep comparisons simple.
	for i := 3; i < len(data); i += 4 {
		data[i] = 0
	}
	haystack := imaging.New(data, 256, 256)
	needle := haystack.Sub(96, 48, 64, 64)

	pos, ok := Search(haystack, needle)
	if !ok {
		t.Fatalf("expected to find needle")
	}
	if pos.X != 96 || pos.Y != 48 {
		t.Fatalf("found needle at (%d,%d), want (96,48)", pos.X, pos.Y)
	}
}

func TestSearchRejectsAlteredNeedle(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	data := make([]byte, 256*256*4)
	rng.Read(data)
	for i := 3; i < len(data); i += 4 {
		data[i] = 0
	}
	haystack := imaging.New(data, 256, 256)

	needleData := make([]byte, 64*64*4)
	copy(needleData, haystack.Sub(96, 48, 64, 64).Data)
	needle := imaging.New(needleData, 64, 64)
	// alter the last pixel
	off := needle.RowOffset(63) + 63*imaging.BytesPerPixel
	needle.Data[off] ^= 0xFF

	if _, ok := Search(haystack, needle); ok {
		t.Fatalf("expected altered needle not to be found")
	}
}

func TestSearchRejectsWrongSizedNeedle(t *testing.T) {
	haystack := solidImage(128, 128, 0x112233)
	needle := solidImage(32, 32, 0x112233)
	if _, ok := Search(haystack, needle); ok {
		t.Fatalf("expected non-64x64 needle to be rejected")
	}
}

func TestCompareOrdering(t *testing.T) {
	a := solidImage(64, 64, 0)
	b := solidImage(32, 64, 0)
	if Compare(a, b) <= 0 {
		t.Fatalf("expected a (wider) to compare greater than b")
	}
	if Compare(a, a) != 0 {
		t.Fatalf("expected identical images to compare equal")
	}
}

// S3: a = 256x256 solid red; b = same except a 100x80 solid-blue block
// at (30,40), covering rows 40..119. The largest equal rectangle is the
// full-width strip below the block, rows 120..255: 256x136 at (0,120),
// aligned to Step.
func TestLargestCommonRectAroundObstruction(t *testing.T) {
	a := solidImage(256, 256, 0x00FF0000)
	bData := make([]byte, len(a.Data))
	copy(bData, a.Data)
	b := imaging.New(bData, 256, 256)
	fillBlock(b, 30, 40, 100, 80, 0x000000FF)

	rect, ok := LargestCommonRect(a, b)
	if !ok {
		t.Fatalf("expected a common rectangle to be found")
	}
	if rect.W%Step != 0 {
		t.Fatalf("rectangle width %d is not a multiple of Step=%d", rect.W, Step)
	}
	want := imaging.Rect{X: 0, Y: 120, W: 256, H: 136}
	if rect != want {
		t.Fatalf("rect = %+v (area %d), want %+v (area %d)", rect, rect.W*rect.H, want, want.W*want.H)
	}
}

// Width not a multiple of Step: the trailing partial column group must
// never be counted as equal, so the returned width always stays a
// Step multiple and never reads past either image's row bounds.
func TestLargestCommonRectNonStepMultipleWidth(t *testing.T) {
	const width, height = 100, 64 // 100 = 6*Step + 4
	a := solidImage(width, height, 0x00FF0000)
	bData := make([]byte, len(a.Data))
	copy(bData, a.Data)
	b := imaging.New(bData, width, height)

	rect, ok := LargestCommonRect(a, b)
	if !ok {
		t.Fatalf("expected a common rectangle to be found")
	}
	if rect.W%Step != 0 {
		t.Fatalf("rectangle width %d is not a multiple of Step=%d", rect.W, Step)
	}
	if rect.X+rect.W > width {
		t.Fatalf("rect [%d,%d) extends past image width %d", rect.X, rect.X+rect.W, width)
	}
}

// Mismatched widths: b is narrower than a, so comparisons must be
// bounded by minWidth rather than a.Width, or they read past b's rows.
func TestLargestCommonRectMismatchedWidths(t *testing.T) {
	a := solidImage(96, 64, 0x00112233)
	b := solidImage(80, 64, 0x00112233)

	rect, ok := LargestCommonRect(a, b)
	if !ok {
		t.Fatalf("expected a common rectangle to be found")
	}
	if rect.X+rect.W > 80 {
		t.Fatalf("rect [%d,%d) extends past narrower image's width 80", rect.X, rect.X+rect.W)
	}
}

func TestLargestCommonRectNoOverlapReturnsFalse(t *testing.T) {
	a := solidImage(64, 64, 0x00FF0000)
	b := solidImage(64, 64, 0x0000FF00)
	if _, ok := LargestCommonRect(a, b); ok {
		t.Fatalf("expected no common rectangle between fully differing images")
	}
}
