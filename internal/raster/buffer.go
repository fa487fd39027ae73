package raster

import (
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	// ErrOutOfBounds is returned by checked accessors for coordinates or
	// channels outside the buffer.
	ErrOutOfBounds = errors.New("raster: out of bounds")

	// ErrInvalidDimensions is returned when a buffer would have zero size,
	// an undersized stride, or storage that does not match its extents.
	ErrInvalidDimensions = errors.New("raster: invalid dimensions")
)

// Sample is the set of supported sample types.
type Sample interface {
	uint8 | uint16 | float32 | float64
}

// Buffer is a 2D image with interleaved channels.
type Buffer[T Sample] struct {
	Pix      []T
	Width    int
	Height   int
	Channels int
	Stride   int
}

// New allocates a zeroed buffer with a tightly packed stride.
func New[T Sample](width, height, channels int) (*Buffer[T], error) {
	return NewWithStride[T](width, height, channels, width*channels)
}

// NewWithStride allocates a zeroed buffer whose rows are stride samples apart.
func NewWithStride[T Sample](width, height, channels, stride int) (*Buffer[T], error) {
	if err := validate(width, height, channels, stride); err != nil {
		return nil, err
	}
	return &Buffer[T]{
		Pix:      make([]T, stride*height),
		Width:    width,
		Height:   height,
		Channels: channels,
		Stride:   stride,
	}, nil
}

// FromSlice wraps existing storage without copying it.
//
// The buffer takes ownership of pix; the caller must not modify it afterwards
// except through the returned buffer.
func FromSlice[T Sample](width, height, channels, stride int, pix []T) (*Buffer[T], error) {
	if err := validate(width, height, channels, stride); err != nil {
		return nil, err
	}
	if len(pix) != stride*height {
		return nil, fmt.Errorf("%w: storage has %d samples, want %d", ErrInvalidDimensions, len(pix), stride*height)
	}
	return &Buffer[T]{
		Pix:      pix,
		Width:    width,
		Height:   height,
		Channels: channels,
		Stride:   stride,
	}, nil
}

func validate(width, height, channels, stride int) error {
	if width <= 0 || height <= 0 || channels <= 0 {
		return fmt.Errorf("%w: %dx%d with %d channels", ErrInvalidDimensions, width, height, channels)
	}
	if stride < width*channels {
		return fmt.Errorf("%w: stride %d smaller than row length %d", ErrInvalidDimensions, stride, width*channels)
	}
	return nil
}

// Bounds returns the pixel rectangle covered by the buffer.
func (b *Buffer[T]) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// InBounds reports whether (x, y) addresses a pixel of the buffer.
func (b *Buffer[T]) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

// Offset returns the index of sample (x, y, c) in Pix without validation.
func (b *Buffer[T]) Offset(x, y, c int) int {
	return y*b.Stride + x*b.Channels + c
}

// At returns the sample at (x, y, c).
func (b *Buffer[T]) At(x, y, c int) (T, error) {
	if !b.InBounds(x, y) || c < 0 || c >= b.Channels {
		var zero T
		return zero, fmt.Errorf("%w: (%d,%d,%d) in %dx%dx%d", ErrOutOfBounds, x, y, c, b.Width, b.Height, b.Channels)
	}
	return b.Pix[b.Offset(x, y, c)], nil
}

// AtUnchecked returns the sample at (x, y, c). The caller guarantees
// 0 <= x < Width, 0 <= y < Height and 0 <= c < Channels.
func (b *Buffer[T]) AtUnchecked(x, y, c int) T {
	return b.Pix[y*b.Stride+x*b.Channels+c]
}

// Set stores v at (x, y, c).
func (b *Buffer[T]) Set(x, y, c int, v T) error {
	if !b.InBounds(x, y) || c < 0 || c >= b.Channels {
		return fmt.Errorf("%w: (%d,%d,%d) in %dx%dx%d", ErrOutOfBounds, x, y, c, b.Width, b.Height, b.Channels)
	}
	b.Pix[b.Offset(x, y, c)] = v
	return nil
}

// SetUnchecked stores v at (x, y, c). The caller guarantees bounds, as for
// AtUnchecked.
func (b *Buffer[T]) SetUnchecked(x, y, c int, v T) {
	b.Pix[y*b.Stride+x*b.Channels+c] = v
}

// Row returns the Width*Channels samples of row y. The slice aliases the
// buffer storage; stride padding is excluded.
func (b *Buffer[T]) Row(y int) ([]T, error) {
	if y < 0 || y >= b.Height {
		return nil, fmt.Errorf("%w: row %d of %d", ErrOutOfBounds, y, b.Height)
	}
	start := y * b.Stride
	return b.Pix[start : start+b.Width*b.Channels : start+b.Width*b.Channels], nil
}

// Clone returns a deep copy with the same stride.
func (b *Buffer[T]) Clone() *Buffer[T] {
	pix := make([]T, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer[T]{
		Pix:      pix,
		Width:    b.Width,
		Height:   b.Height,
		Channels: b.Channels,
		Stride:   b.Stride,
	}
}

// Fill sets every sample of every pixel to v. Stride padding is untouched.
func (b *Buffer[T]) Fill(v T) {
	for y := 0; y < b.Height; y++ {
		row := b.Pix[y*b.Stride : y*b.Stride+b.Width*b.Channels]
		for i := range row {
			row[i] = v
		}
	}
}

// Channel extracts channel c into a new tightly packed single-channel buffer.
func (b *Buffer[T]) Channel(c int) (*Buffer[T], error) {
	if c < 0 || c >= b.Channels {
		return nil, fmt.Errorf("%w: channel %d of %d", ErrOutOfBounds, c, b.Channels)
	}
	out, err := New[T](b.Width, b.Height, 1)
	if err != nil {
		return nil, err
	}
	for y := 0; y < b.Height; y++ {
		src := b.Pix[y*b.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < b.Width; x++ {
			dst[x] = src[x*b.Channels+c]
		}
	}
	return out, nil
}

// SameShape reports whether two buffers have equal width, height and channel
// count. Stride may differ.
func (b *Buffer[T]) SameShape(o *Buffer[T]) bool {
	return b.Width == o.Width && b.Height == o.Height && b.Channels == o.Channels
}

// FromFloat64 converts v to a sample of type T. Integer sample types round
// half away from zero and saturate to their range; NaN becomes zero.
func FromFloat64[T Sample](v float64) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return T(saturate(v, math.MaxUint8))
	case uint16:
		return T(saturate(v, math.MaxUint16))
	}
	return T(v)
}

func saturate(v, max float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= max {
		return max
	}
	return math.Round(v)
}
