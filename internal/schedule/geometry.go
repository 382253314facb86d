package schedule

// Point is a release position in the same coordinate space as the calendar bounds.
type Point struct {
	X, Y float64
}

// Rect is the calendar surface's bounding box. The zero Rect means the bounds
// are unknown.
type Rect struct {
	Left, Top, Right, Bottom float64
}

func (r Rect) IsZero() bool { return r == Rect{} }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right && p.Y >= r.Top && p.Y <= r.Bottom
}
