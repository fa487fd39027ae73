package descriptor

import (
	"fmt"
	"math/bits"
	"strings"
)

// Binary is a packed bit-string descriptor. Bit i lives in
// Words[i/64] at position i%64.
type Binary struct {
	Words []uint64 `json:"words"`
	Bits  int      `json:"bits"`
}

// NewBinary allocates a zeroed descriptor of n bits.
func NewBinary(n int) Binary {
	return Binary{
		Words: make([]uint64, (n+63)/64),
		Bits:  n,
	}
}

// Bit reports whether bit i is set. Out-of-range bits read as false.
func (b Binary) Bit(i int) bool {
	if i < 0 || i >= b.Bits {
		return false
	}
	return b.Words[i/64]&(1<<(uint(i)%64)) != 0
}

// SetBit sets bit i to v.
func (b Binary) SetBit(i int, v bool) {
	if i < 0 || i >= b.Bits {
		return
	}
	mask := uint64(1) << (uint(i) % 64)
	if v {
		b.Words[i/64] |= mask
	} else {
		b.Words[i/64] &^= mask
	}
}

// OnesCount returns the number of set bits.
func (b Binary) OnesCount() int {
	n := 0
	for _, w := range b.Words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Distance returns the Hamming distance to o. Bits present in only one of
// the two descriptors count as differing.
func (b Binary) Distance(o Binary) float64 {
	shared := min(len(b.Words), len(o.Words))
	d := 0
	for i := 0; i < shared; i++ {
		d += bits.OnesCount64(b.Words[i] ^ o.Words[i])
	}
	if b.Bits != o.Bits {
		d += abs(b.Bits - o.Bits)
	}
	return float64(d)
}

// String renders the bits least significant first, e.g. "0110".
func (b Binary) String() string {
	var sb strings.Builder
	sb.Grow(b.Bits)
	for i := 0; i < b.Bits; i++ {
		if b.Bit(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Hex renders the packed words as fixed-width hexadecimal, first word first.
func (b Binary) Hex() string {
	var sb strings.Builder
	for _, w := range b.Words {
		fmt.Fprintf(&sb, "%016x", w)
	}
	return sb.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
