package convert

import (
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func bitAt(plane []byte, x, y int) byte {
	return plane[y*ByteStride+(x>>3)] & (0x80 >> (x & 7))
}

func TestPackWhiteImage(t *testing.T) {
	img := solid(PanelWidth, PanelHeight, color.NRGBA{255, 255, 255, 255})

	black, red, err := PackNRGBA(img)
	if err != nil {
		t.Fatal(err)
	}
	if len(black) != PlaneSize || len(red) != PlaneSize {
		t.Fatalf("plane sizes = %d/%d, expected %d", len(black), len(red), PlaneSize)
	}
	for i, b := range black {
		if b != 0xFF {
			t.Fatalf("black plane byte %d = %#x, expected 0xFF", i, b)
		}
	}
	for i, b := range red {
		if b != 0xFF {
			t.Fatalf("red plane byte %d = %#x, expected 0xFF", i, b)
		}
	}
}

func TestPackInkPixels(t *testing.T) {
	img := solid(PanelWidth, PanelHeight, color.NRGBA{255, 255, 255, 255})
	img.SetNRGBA(10, 20, color.NRGBA{0, 0, 0, 255})     // black ink
	img.SetNRGBA(11, 20, color.NRGBA{200, 40, 40, 255}) // red ink
	img.SetNRGBA(12, 20, color.NRGBA{0, 0, 0, 0})       // transparent -> white

	black, red, err := PackNRGBA(img)
	if err != nil {
		t.Fatal(err)
	}

	if bitAt(black, 10, 20) != 0 {
		t.Error("dark pixel did not clear its black-plane bit")
	}
	if bitAt(red, 10, 20) == 0 {
		t.Error("dark pixel landed on the red plane")
	}
	if bitAt(red, 11, 20) != 0 {
		t.Error("red pixel did not clear its red-plane bit")
	}
	if bitAt(black, 11, 20) == 0 {
		t.Error("red pixel landed on the black plane")
	}
	if bitAt(black, 12, 20) == 0 || bitAt(red, 12, 20) == 0 {
		t.Error("transparent pixel produced ink")
	}
}

func TestPackCenterCrop(t *testing.T) {
	// 100 extra rows: 50 cropped off the top, so a mark at source y=50 maps
	// to panel y=0.
	img := solid(PanelWidth, PanelHeight+100, color.NRGBA{255, 255, 255, 255})
	img.SetNRGBA(0, 50, color.NRGBA{0, 0, 0, 255})
	img.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 255}) // inside the cropped margin

	black, _, err := PackNRGBA(img)
	if err != nil {
		t.Fatal(err)
	}
	if bitAt(black, 0, 0) != 0 {
		t.Error("cropped mark at source y=50 missing from panel y=0")
	}

	marks := 0
	for i, b := range black {
		if b != 0xFF {
			marks++
			if i != 0 {
				t.Errorf("unexpected ink at plane byte %d", i)
			}
		}
	}
	if marks != 1 {
		t.Errorf("expected exactly 1 inked byte, found %d", marks)
	}
}

func TestPackRejectsWrongSize(t *testing.T) {
	if _, _, err := PackNRGBA(solid(640, PanelHeight, color.NRGBA{A: 255})); err == nil {
		t.Error("wrong width accepted")
	}
	if _, _, err := PackNRGBA(solid(PanelWidth, 240, color.NRGBA{A: 255})); err == nil {
		t.Error("short height accepted")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		c    color.NRGBA
		want inkColor
	}{
		{"black", color.NRGBA{0, 0, 0, 255}, inkBlack},
		{"dark gray", color.NRGBA{40, 40, 40, 255}, inkBlack},
		{"white", color.NRGBA{255, 255, 255, 255}, inkWhite},
		{"light gray", color.NRGBA{200, 200, 200, 255}, inkWhite},
		{"accent red", color.NRGBA{192, 57, 43, 255}, inkRed},
		{"pale pink", color.NRGBA{250, 230, 230, 255}, inkWhite},
		{"bright green", color.NRGBA{40, 220, 40, 255}, inkWhite},
	}
	for _, tc := range cases {
		if got := classify(tc.c); got != tc.want {
			t.Errorf("%s: classify = %v, expected %v", tc.name, got, tc.want)
		}
	}
}
