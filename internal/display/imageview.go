//go:build !headless

package display

import (
	"image"
	"image/color"
)

// rgbaView presents a borrowed, strided byte slice as an image.Image
// without copying it, the same borrowed-view idiom internal/imaging
// and internal/videopacer use for scaling source buffers.
type rgbaView struct {
	data          []byte
	width, height int
	stride        int
}

func newRGBAView(data []byte, width, height, stride int) *rgbaView {
	return &rgbaView{data: data, width: width, height: height, stride: stride}
}

func (v *rgbaView) ColorModel() color.Model { return color.RGBAModel }

func (v *rgbaView) Bounds() image.Rectangle {
	return image.Rect(0, 0, v.width, v.height)
}

func (v *rgbaView) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= v.width || y >= v.height {
		return color.RGBA{}
	}
	off := y*v.stride + x*4
	return color.RGBA{R: v.data[off], G: v.data[off+1], B: v.data[off+2], A: v.data[off+3]}
}
