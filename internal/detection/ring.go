package detection

// Offset is a pixel displacement relative to a candidate centre.
type Offset struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// Ring returns the discrete circle of the given radius as an ordered,
// closed sequence of offsets.
//
// The first quarter is traced from (radius, 0) towards (0, radius) by choosing,
// at every step, whichever of the three neighbouring grid points lies closest
// to the true circle. The remaining three quarters are that arc rotated by 90,
// 180 and 270 degrees, so the ring length is always a multiple of four and
// Ring(r)[i] and Ring(r)[i+len/2] are diametrically opposite.
//
// Radius 3 yields the classic 16-sample FAST ring.
func Ring(radius int) []Offset {
	if radius <= 0 {
		return nil
	}
	sq := radius * radius
	dist := func(x, y int) int {
		d := x*x + y*y - sq
		if d < 0 {
			return -d
		}
		return d
	}

	quarter := []Offset{{DX: radius, DY: 0}}
	for steps := 0; steps < 4*radius; steps++ {
		p := quarter[len(quarter)-1]
		d1 := dist(p.DX-1, p.DY)
		d2 := dist(p.DX-1, p.DY+1)
		d3 := dist(p.DX, p.DY+1)

		var next Offset
		switch {
		case d2 <= d1 && d2 <= d3:
			next = Offset{DX: p.DX - 1, DY: p.DY + 1}
		case d1 <= d2 && d1 <= d3:
			next = Offset{DX: p.DX - 1, DY: p.DY}
		default:
			next = Offset{DX: p.DX, DY: p.DY + 1}
		}
		if next.DX == 0 && next.DY == radius {
			break
		}
		quarter = append(quarter, next)
	}

	n := len(quarter)
	ring := make([]Offset, 0, 4*n)
	ring = append(ring, quarter...)
	for q := 0; q < 3; q++ {
		for i := 0; i < n; i++ {
			base := ring[len(ring)-n]
			ring = append(ring, Offset{DX: -base.DY, DY: base.DX})
		}
	}
	return ring
}
