package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"github.com/ironsheep/feature-tools-mcp/internal/detection"
)

// DefaultMarkerColor is used when no marker color is given.
const DefaultMarkerColor = "#00FF00"

// DrawKeypoints returns a copy of img with every keypoint marked.
//
// Each keypoint gets a circle of its ring radius and a tick from the centre
// along its orientation, so rotated features are visible at a glance.
// Markers that leave the image are clipped.
func DrawKeypoints(img image.Image, keypoints []detection.Keypoint, colorHex string) (*image.RGBA, error) {
	if colorHex == "" {
		colorHex = DefaultMarkerColor
	}
	c, err := parseHexColor(colorHex)
	if err != nil {
		return nil, fmt.Errorf("invalid marker color %q: %w", colorHex, err)
	}

	bounds := img.Bounds()
	result := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(result, result.Bounds(), img, bounds.Min, draw.Src)

	for _, kp := range keypoints {
		r := kp.Radius
		if r < 1 {
			r = 1
		}
		drawCircle(result, float64(kp.X), float64(kp.Y), r, c)
		drawLine(result, float64(kp.X), float64(kp.Y),
			float64(kp.X)+r*math.Cos(kp.Angle), float64(kp.Y)+r*math.Sin(kp.Angle), c)
	}
	return result, nil
}

// drawCircle plots the circle outline with one sample per pixel of
// circumference.
func drawCircle(img *image.RGBA, cx, cy, r float64, c color.RGBA) {
	steps := int(math.Ceil(2*math.Pi*r)) + 1
	for i := 0; i < steps; i++ {
		theta := 2 * math.Pi * float64(i) / float64(steps)
		plot(img, cx+r*math.Cos(theta), cy+r*math.Sin(theta), c)
	}
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 float64, c color.RGBA) {
	n := int(math.Ceil(math.Max(math.Abs(x1-x0), math.Abs(y1-y0))))
	if n == 0 {
		plot(img, x0, y0, c)
		return
	}
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		plot(img, x0+(x1-x0)*t, y0+(y1-y0)*t, c)
	}
}

func plot(img *image.RGBA, x, y float64, c color.RGBA) {
	px, py := int(math.Round(x)), int(math.Round(y))
	if image.Pt(px, py).In(img.Bounds()) {
		img.SetRGBA(px, py, c)
	}
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}
