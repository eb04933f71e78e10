package convert

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unicornhat/internal/model"
)

func TestRGB(t *testing.T) {
	assert.Equal(t, model.RGB{R: 1, G: 2, B: 3}, RGB(color.NRGBA{R: 1, G: 2, B: 3, A: 255}))
	assert.Equal(t, model.RGB{R: 128}, RGB(color.NRGBA{R: 255, A: 128}))
	assert.Equal(t, model.Black, RGB(color.Transparent))
	assert.Equal(t, model.White, RGB(color.Gray{Y: 255}))
}

func TestUnpackRGB(t *testing.T) {
	b := []byte{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}
	img, err := UnpackRGB(b, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	assert.Equal(t, color.NRGBA{R: 4, G: 5, B: 6, A: 255}, img.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{R: 7, G: 8, B: 9, A: 255}, img.NRGBAAt(0, 1))

	assert.Equal(t, b, PackRGB(img, img.Bounds()))
}

func TestUnpackRGBSizeMismatch(t *testing.T) {
	_, err := UnpackRGB(make([]byte, 5), 1, 2)
	assert.Error(t, err)
	_, err = UnpackRGB(nil, 0, 2)
	assert.Error(t, err)
}
