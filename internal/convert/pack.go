// Package convert turns the captured screenshot into the packed 1bpp
// black/red planes the tri-color panel consumes.
package convert

import (
	"fmt"
	"image"
	"image/color"
)

// Panel geometry (Waveshare 7.5" B, tri-color).
const (
	PanelWidth  = 800
	PanelHeight = 480
	ByteStride  = PanelWidth / 8 // 100 bytes per row
	PlaneSize   = ByteStride * PanelHeight
)

// PackNRGBA converts an NRGBA screenshot into two 1bpp planes.
//
// The image width must be exactly PanelWidth and the height at least
// PanelHeight; taller captures are center-cropped vertically. Each plane is
// y-major, MSB-first, initialized to 0xFF (white); a cleared bit means ink.
func PackNRGBA(img *image.NRGBA) (black, red []byte, err error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if w != PanelWidth {
		return nil, nil, fmt.Errorf("convert: expected width %d, got %d", PanelWidth, w)
	}
	if h < PanelHeight {
		return nil, nil, fmt.Errorf("convert: expected height >= %d, got %d", PanelHeight, h)
	}

	startY := (h - PanelHeight) / 2

	black = make([]byte, PlaneSize)
	red = make([]byte, PlaneSize)
	for i := range black {
		black[i] = 0xFF
	}
	for i := range red {
		red[i] = 0xFF
	}

	// Walk the pixel buffer directly; At() per pixel is too slow on a Pi.
	for py := 0; py < PanelHeight; py++ {
		rowOff := (startY + py) * img.Stride

		for px := 0; px < PanelWidth; px++ {
			i := rowOff + px*4

			c := color.NRGBA{
				R: img.Pix[i+0],
				G: img.Pix[i+1],
				B: img.Pix[i+2],
				A: img.Pix[i+3],
			}

			// Transparent pixels read as paper.
			if c.A < 128 {
				continue
			}

			ink := classify(c)
			if ink == inkWhite {
				continue
			}

			byteIndex := py*ByteStride + (px >> 3)
			mask := byte(0x80 >> (px & 7))

			switch ink {
			case inkBlack:
				black[byteIndex] &^= mask
			case inkRed:
				red[byteIndex] &^= mask
			}
		}
	}

	return black, red, nil
}

type inkColor int

const (
	inkWhite inkColor = iota
	inkBlack
	inkRed
)

// classify maps a pixel to one of the three panel colors. Dark pixels
// (luma < 64) become black; bright red-dominant pixels (R > 128 and at
// least 32 above both G and B) become red; everything else stays white.
// The thresholds are tuned so the full-moon accent color on the calendar
// lands on the red plane.
func classify(c color.NRGBA) inkColor {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)

	luma := 0.299*r + 0.587*g + 0.114*b

	maxGB := g
	if b > maxGB {
		maxGB = b
	}

	if luma < 64 {
		return inkBlack
	}
	if r > 128 && r-maxGB > 32 {
		return inkRed
	}
	return inkWhite
}
