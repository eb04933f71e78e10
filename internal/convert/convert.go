package convert

import (
	"fmt"
	"image"
	"image/color"

	"unicornhat/internal/model"
)

// RGB converts any colour into a panel pixel. The panel has no alpha channel,
// so translucent colours are composited over black (their premultiplied
// value is used as is).
func RGB(c color.Color) model.RGB {
	r, g, b, _ := c.RGBA()
	return model.RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}

// UnpackRGB wraps a raw frame as an image. The frame holds w*h packed
// R, G, B triplets in row-major order, which is what streaming clients send:
//
//	byteIndex = (y*w + x) * 3
func UnpackRGB(b []byte, w, h int) (*image.NRGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("convert: invalid frame size %dx%d", w, h)
	}
	if len(b) != w*h*3 {
		return nil, fmt.Errorf("convert: expected %d bytes for %dx%d frame, got %d", w*h*3, w, h, len(b))
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < len(b); i, j = i+3, j+4 {
		img.Pix[j+0] = b[i+0]
		img.Pix[j+1] = b[i+1]
		img.Pix[j+2] = b[i+2]
		img.Pix[j+3] = 0xFF
	}
	return img, nil
}

// PackRGB is the inverse of UnpackRGB: it flattens the rectangle r of img
// into packed row-major RGB triplets.
func PackRGB(img image.Image, r image.Rectangle) []byte {
	out := make([]byte, 0, r.Dx()*r.Dy()*3)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := RGB(img.At(x, y))
			out = append(out, c.R, c.G, c.B)
		}
	}
	return out
}
