package escpos

import (
	"bytes"
	"image"
)

// dotDensity selects 24-dot double-density mode for the ESC * bit image
// command.
const dotDensity = 33

// Rasterize converts a decoded bitmap into an ESC/P bit image sequence.
// A pixel is ink when its red channel is exactly zero; there is no
// gray-level support. The image is emitted as 24-row stripes, three bytes
// per column packed most-significant-bit first, with a line feed after each
// stripe. Line spacing is tightened to 24 dots for the duration and
// restored to the 30-dot default afterwards. Rows past the bottom of the
// image inside the final stripe pad with no ink.
func Rasterize(img image.Image) []byte {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	nL := byte(width % 256)
	nH := byte((height + 128) / 256)

	ink := make([]bool, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			ink[y*width+x] = uint8(r>>8) == 0
		}
	}

	var out bytes.Buffer
	out.Write([]byte{ESC, 0x33, 24})

	for offset := 0; offset < height; offset += 24 {
		out.Write([]byte{ESC, 0x2A, dotDensity, nL, nH})
		for x := 0; x < width; x++ {
			for k := 0; k < 3; k++ {
				var slice byte
				for b := 0; b < 8; b++ {
					y := ((offset/8)+k)*8 + b
					i := y*width + x
					if i < len(ink) && ink[i] {
						slice |= 1 << (7 - b)
					}
				}
				out.WriteByte(slice)
			}
		}
		out.WriteByte(NL)
	}

	out.Write([]byte{ESC, 0x33, 30})
	return out.Bytes()
}

// RasterDocument wraps a rasterized image with the initialize and
// format-reset commands so it can be prepended to a receipt body.
func RasterDocument(img image.Image) []byte {
	var out bytes.Buffer
	out.WriteString(Init)
	out.WriteString(AlignCenter)
	out.Write(Rasterize(img))
	out.WriteString(FontReset)
	return out.Bytes()
}
