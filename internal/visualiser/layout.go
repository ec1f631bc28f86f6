package visualiser

// Rect is an axis-aligned rectangle in normalised device coordinates
// ([-1, 1] on both axes, origin at the centre, y up).
type Rect struct {
	X0, Y0, X1, Y1 float32
}

// BarLayout places one vertical bar per level across the full width,
// growing up from the bottom edge. Levels are clamped to [0, 1]; gap is the
// fraction of each slot left empty between bars.
func BarLayout(levels []float64, gap float32) []Rect {
	if len(levels) == 0 {
		return nil
	}
	gap = min(max(gap, 0), 0.9)

	slot := float32(2) / float32(len(levels))
	pad := slot * gap / 2
	rects := make([]Rect, len(levels))
	for i, level := range levels {
		h := float32(min(max(level, 0), 1)) * 2
		x0 := -1 + float32(i)*slot
		rects[i] = Rect{
			X0: x0 + pad,
			Y0: -1,
			X1: x0 + slot - pad,
			Y1: -1 + h,
		}
	}
	return rects
}
