package videopacer

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/skiffdesk/rvpgateway/internal/imaging"
)

// scaleToYUV420 implements prepare_frame's conversion step: bicubic
// scale the borrowed RGB source to width x height, then pack planar
// YUV420 (I420: Y plane followed by half-resolution U and V planes),
// the pixel format the encoder is configured for.
func scaleToYUV420(src imaging.Image, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("videopacer: invalid output dimensions %dx%d", width, height)
	}
	if !src.Valid() {
		return nil, fmt.Errorf("videopacer: invalid source image")
	}

	srcImg := &borrowedRGBA{img: src}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), srcImg, srcImg.Bounds(), draw.Src, nil)

	return rgbaToYUV420(dst, width, height), nil
}

// borrowedRGBA adapts an imaging.Image to image.Image without copying,
// so draw.CatmullRom can read it directly.
type borrowedRGBA struct {
	img imaging.Image
}

func (b *borrowedRGBA) ColorModel() color.Model { return color.RGBAModel }

func (b *borrowedRGBA) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.img.Width, b.img.Height)
}

func (b *borrowedRGBA) At(x, y int) color.Color {
	p := b.img.At(x, y)
	return color.RGBA{
		R: byte(p >> 16),
		G: byte(p >> 8),
		B: byte(p),
		A: 0xFF,
	}
}

// rgbaToYUV420 packs an RGBA image into I420 planar form using BT.601
// coefficients, matching the colorimetry the original pacer's
// libswscale bicubic pass produces.
func rgbaToYUV420(img *image.RGBA, width, height int) []byte {
	ySize := width * height
	cSize := ((width + 1) / 2) * ((height + 1) / 2)
	out := make([]byte, ySize+2*cSize)

	yPlane := out[:ySize]
	uPlane := out[ySize : ySize+cSize]
	vPlane := out[ySize+cSize:]

	cStride := (width + 1) / 2

	for y := 0; y < height; y++ {
		rowOff := img.PixOffset(0, y)
		row := img.Pix[rowOff : rowOff+width*4]
		for x := 0; x < width; x++ {
			r := float64(row[x*4+0])
			g := float64(row[x*4+1])
			b := float64(row[x*4+2])
			yPlane[y*width+x] = clampByte(16 + 0.257*r + 0.504*g + 0.098*b)

			if x%2 == 0 && y%2 == 0 {
				cu := y/2*cStride + x/2
				uPlane[cu] = clampByte(128 - 0.148*r - 0.291*g + 0.439*b)
				vPlane[cu] = clampByte(128 + 0.439*r - 0.368*g - 0.071*b)
			}
		}
	}
	return out
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
