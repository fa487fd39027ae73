package imaging

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ironsheep/feature-tools-mcp/internal/raster"
)

// createPatternImage creates an image with different colors in each quadrant
func createPatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			if x < width/2 && y < height/2 {
				c = color.RGBA{255, 0, 0, 255} // Red top-left
			} else if x >= width/2 && y < height/2 {
				c = color.RGBA{0, 255, 0, 255} // Green top-right
			} else if x < width/2 && y >= height/2 {
				c = color.RGBA{0, 0, 255, 255} // Blue bottom-left
			} else {
				c = color.RGBA{255, 255, 255, 255} // White bottom-right
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestToGray_Luma(t *testing.T) {
	buf, err := ToGray(createPatternImage(10, 10), Luma)
	if err != nil {
		t.Fatalf("ToGray failed: %v", err)
	}
	if buf.Width != 10 || buf.Height != 10 || buf.Channels != 1 {
		t.Fatalf("shape: got %dx%dx%d, want 10x10x1", buf.Width, buf.Height, buf.Channels)
	}

	tests := []struct {
		name string
		x, y int
		want uint8
	}{
		{"red", 2, 2, 76},
		{"green", 7, 2, 150},
		{"blue", 2, 7, 29},
		{"white", 7, 7, 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buf.AtUnchecked(tt.x, tt.y, 0); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestToGray_Lightness(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.RGBA{0, 0, 0, 255})
	img.Set(1, 0, color.RGBA{128, 128, 128, 255})
	img.Set(2, 0, color.RGBA{255, 255, 255, 255})

	buf, err := ToGray(img, Lightness)
	if err != nil {
		t.Fatalf("ToGray failed: %v", err)
	}
	if got := buf.AtUnchecked(0, 0, 0); got != 0 {
		t.Errorf("black: got %d, want 0", got)
	}
	// L* of sRGB 128 is about 53.6.
	if got := buf.AtUnchecked(1, 0, 0); got < 136 || got > 138 {
		t.Errorf("mid gray: got %d, want 137±1", got)
	}
	if got := buf.AtUnchecked(2, 0, 0); got != 255 {
		t.Errorf("white: got %d, want 255", got)
	}
}

func TestToGray_GrayCopiedVerbatim(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 6, 4))
	for i := range g.Pix {
		g.Pix[i] = uint8(i * 7)
	}
	// A sub-image maps its own corner to (0,0).
	sub := g.SubImage(image.Rect(2, 1, 6, 4)).(*image.Gray)

	for _, mode := range []GrayMode{Luma, Lightness} {
		buf, err := ToGray(sub, mode)
		if err != nil {
			t.Fatalf("ToGray(%v) failed: %v", mode, err)
		}
		if buf.Width != 4 || buf.Height != 3 {
			t.Fatalf("shape: got %dx%d, want 4x3", buf.Width, buf.Height)
		}
		for y := 0; y < 3; y++ {
			for x := 0; x < 4; x++ {
				if got, want := buf.AtUnchecked(x, y, 0), g.GrayAt(x+2, y+1).Y; got != want {
					t.Fatalf("%v (%d,%d): got %d, want %d", mode, x, y, got, want)
				}
			}
		}
	}
}

func TestToGray_Empty(t *testing.T) {
	_, err := ToGray(image.NewRGBA(image.Rect(0, 0, 0, 5)), Luma)
	if !errors.Is(err, raster.ErrInvalidDimensions) {
		t.Errorf("got %v, want ErrInvalidDimensions", err)
	}
}

func TestToBuffer(t *testing.T) {
	buf, err := ToBuffer(createPatternImage(4, 4))
	if err != nil {
		t.Fatalf("ToBuffer failed: %v", err)
	}
	if buf.Channels != 4 {
		t.Fatalf("Channels: got %d, want 4", buf.Channels)
	}
	want := []uint8{0, 255, 0, 255}
	got := []uint8{buf.AtUnchecked(3, 0, 0), buf.AtUnchecked(3, 0, 1), buf.AtUnchecked(3, 0, 2), buf.AtUnchecked(3, 0, 3)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("green pixel mismatch (-want +got):\n%s", diff)
	}

	gray, err := ToBuffer(image.NewGray(image.Rect(0, 0, 3, 3)))
	if err != nil {
		t.Fatalf("ToBuffer failed: %v", err)
	}
	if gray.Channels != 1 {
		t.Errorf("gray Channels: got %d, want 1", gray.Channels)
	}
}

func TestToImage_RoundTrip(t *testing.T) {
	src := createPatternImage(8, 6)
	buf, err := ToBuffer(src)
	if err != nil {
		t.Fatalf("ToBuffer failed: %v", err)
	}
	img, err := ToImage(buf)
	if err != nil {
		t.Fatalf("ToImage failed: %v", err)
	}
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			r1, g1, b1, a1 := src.At(x, y).RGBA()
			r2, g2, b2, a2 := img.At(x, y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				t.Fatalf("pixel (%d,%d) changed", x, y)
			}
		}
	}

	gray, _ := raster.New[uint8](3, 2, 1)
	gray.SetUnchecked(2, 1, 0, 200)
	img, err = ToImage(gray)
	if err != nil {
		t.Fatalf("ToImage failed: %v", err)
	}
	g, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("single channel: got %T, want *image.Gray", img)
	}
	if g.GrayAt(2, 1).Y != 200 {
		t.Errorf("gray pixel: got %d, want 200", g.GrayAt(2, 1).Y)
	}
}

func TestToImage_ThreeChannelsOpaque(t *testing.T) {
	buf, _ := raster.New[uint8](1, 1, 3)
	buf.SetUnchecked(0, 0, 0, 10)
	buf.SetUnchecked(0, 0, 1, 20)
	buf.SetUnchecked(0, 0, 2, 30)

	img, err := ToImage(buf)
	if err != nil {
		t.Fatalf("ToImage failed: %v", err)
	}
	got := img.(*image.NRGBA).NRGBAAt(0, 0)
	if got != (color.NRGBA{10, 20, 30, 255}) {
		t.Errorf("got %+v, want {10 20 30 255}", got)
	}
}

func TestToImage_Errors(t *testing.T) {
	two, _ := raster.New[uint8](2, 2, 2)
	for _, buf := range []*raster.Buffer[uint8]{nil, two} {
		if _, err := ToImage(buf); !errors.Is(err, raster.ErrInvalidDimensions) {
			t.Errorf("got %v, want ErrInvalidDimensions", err)
		}
	}
}

func TestParseGrayMode(t *testing.T) {
	tests := []struct {
		in      string
		want    GrayMode
		wantErr bool
	}{
		{"", Luma, false},
		{"luma", Luma, false},
		{"lightness", Lightness, false},
		{"hsv", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseGrayMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGrayMode(%q): error %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseGrayMode(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}
