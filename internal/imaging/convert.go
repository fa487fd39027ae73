package imaging

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/feature-tools-mcp/internal/raster"
)

// GrayMode selects how color pixels are reduced to a single intensity.
type GrayMode int

const (
	// Luma uses the Rec. 601 weights 0.299 R + 0.587 G + 0.114 B.
	Luma GrayMode = iota
	// Lightness uses CIE L* (D65), scaled to [0, 255].
	Lightness
)

func (m GrayMode) String() string {
	switch m {
	case Luma:
		return "luma"
	case Lightness:
		return "lightness"
	}
	return fmt.Sprintf("GrayMode(%d)", int(m))
}

// ParseGrayMode parses "luma" or "lightness". An empty string selects Luma.
func ParseGrayMode(s string) (GrayMode, error) {
	switch s {
	case "luma", "":
		return Luma, nil
	case "lightness":
		return Lightness, nil
	}
	return 0, fmt.Errorf("unknown gray mode %q (use luma or lightness)", s)
}

// ToGray converts img into a single-channel 8-bit buffer.
//
// The buffer origin is the top-left corner of img.Bounds(), so buffer
// coordinates match display coordinates even for sub-images. Grayscale input
// is copied as is, regardless of mode. An empty image fails with
// raster.ErrInvalidDimensions.
func ToGray(img image.Image, mode GrayMode) (*raster.Buffer[uint8], error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	buf, err := raster.New[uint8](w, h, 1)
	if err != nil {
		return nil, err
	}

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			copy(buf.Pix[y*buf.Stride:], g.Pix[y*g.Stride:y*g.Stride+w])
		}
		return buf, nil
	}

	switch mode {
	case Lightness:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				buf.SetUnchecked(x, y, 0, lightness(img.At(b.Min.X+x, b.Min.Y+y)))
			}
		}
	default:
		// imaging.Grayscale returns an NRGBA image with R = G = B.
		gray := imaging.Grayscale(img)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				buf.SetUnchecked(x, y, 0, gray.Pix[y*gray.Stride+x*4])
			}
		}
	}
	return buf, nil
}

func lightness(c color.Color) uint8 {
	// MakeColor reports false for fully transparent pixels; they are black.
	col, ok := colorful.MakeColor(c)
	if !ok {
		return 0
	}
	l, _, _ := col.Lab()
	return raster.FromFloat64[uint8](l * 255)
}

// ToBuffer converts img into an 8-bit buffer that keeps its color.
//
// Grayscale images become one channel. Everything else becomes four
// non-premultiplied RGBA channels.
func ToBuffer(img image.Image) (*raster.Buffer[uint8], error) {
	if isGray(img) {
		return ToGray(img, Luma)
	}
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	return raster.FromSlice(b.Dx(), b.Dy(), 4, nrgba.Stride, nrgba.Pix)
}

// ToImage converts an 8-bit buffer back into a standard image.
//
// One channel yields *image.Gray, three channels an opaque *image.NRGBA and
// four channels an *image.NRGBA. Other channel counts fail with
// raster.ErrInvalidDimensions.
func ToImage(buf *raster.Buffer[uint8]) (image.Image, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: nil buffer", raster.ErrInvalidDimensions)
	}
	rect := image.Rect(0, 0, buf.Width, buf.Height)

	switch buf.Channels {
	case 1:
		g := image.NewGray(rect)
		for y := 0; y < buf.Height; y++ {
			row, _ := buf.Row(y)
			copy(g.Pix[y*g.Stride:], row)
		}
		return g, nil
	case 3, 4:
		out := image.NewNRGBA(rect)
		for y := 0; y < buf.Height; y++ {
			for x := 0; x < buf.Width; x++ {
				i := y*out.Stride + x*4
				out.Pix[i] = buf.AtUnchecked(x, y, 0)
				out.Pix[i+1] = buf.AtUnchecked(x, y, 1)
				out.Pix[i+2] = buf.AtUnchecked(x, y, 2)
				if buf.Channels == 4 {
					out.Pix[i+3] = buf.AtUnchecked(x, y, 3)
				} else {
					out.Pix[i+3] = 255
				}
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: cannot convert %d channels to an image", raster.ErrInvalidDimensions, buf.Channels)
}

func isGray(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	m := img.ColorModel()
	return m == color.GrayModel || m == color.Gray16Model
}
