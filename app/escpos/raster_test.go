package escpos

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestImage(width, height int, black func(x, y int) bool) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if black(x, y) {
				img.Set(x, y, color.RGBA{0, 0, 0, 255})
			} else {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	return img
}

func TestRasterizeStructure(t *testing.T) {
	img := newTestImage(2, 30, func(x, y int) bool { return false })
	out := Rasterize(img)

	// tightened line spacing, two stripes of (header + 2 columns + LF),
	// restored line spacing
	wantLen := 3 + 2*(5+2*3+1) + 3
	require.Len(t, out, wantLen)

	assert.Equal(t, []byte{ESC, 0x33, 24}, out[:3])
	assert.Equal(t, []byte{ESC, 0x2A, 33, 2, 0}, out[3:8])
	assert.Equal(t, []byte{ESC, 0x33, 30}, out[wantLen-3:])
}

func TestRasterizeInkFromRedChannel(t *testing.T) {
	// only the top-left pixel is ink
	img := newTestImage(2, 24, func(x, y int) bool { return x == 0 && y == 0 })
	out := Rasterize(img)

	// first column, first slice byte: MSB is row 0
	data := out[8:]
	assert.Equal(t, byte(0x80), data[0])
	assert.Equal(t, byte(0x00), data[1])
	assert.Equal(t, byte(0x00), data[2])
	// second column carries no ink
	assert.Equal(t, byte(0x00), data[3])
}

func TestRasterizePadsFinalStripe(t *testing.T) {
	// 30 rows of solid ink; the final stripe covers rows 24-47 and must
	// pad rows 30-47 with no ink instead of reading out of bounds
	img := newTestImage(1, 30, func(x, y int) bool { return true })

	var out []byte
	require.NotPanics(t, func() { out = Rasterize(img) })

	// second stripe: skip spacing prefix and first stripe
	stripe2 := out[3+(5+3+1):]
	data := stripe2[5:]
	assert.Equal(t, byte(0xFC), data[0]) // rows 24-29 ink, 30-31 padded
	assert.Equal(t, byte(0x00), data[1])
	assert.Equal(t, byte(0x00), data[2])
}

func TestRasterizeHonorsBoundsOffset(t *testing.T) {
	// images decoded from subregions do not start at (0,0)
	img := image.NewRGBA(image.Rect(10, 20, 12, 44))
	for y := 20; y < 44; y++ {
		for x := 10; x < 12; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	img.Set(10, 20, color.RGBA{0, 0, 0, 255})

	out := Rasterize(img)
	data := out[8:]
	assert.Equal(t, byte(0x80), data[0])
}

func TestRasterDocumentWrapsImage(t *testing.T) {
	img := newTestImage(1, 24, func(x, y int) bool { return false })
	out := RasterDocument(img)

	assert.Equal(t, []byte(Init+AlignCenter), out[:len(Init)+len(AlignCenter)])
	assert.Equal(t, []byte(FontReset), out[len(out)-len(FontReset):])
}
