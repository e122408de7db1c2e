package packing

import (
	"cmp"
	"slices"
)

// OverlapPair identifies two overlapping placements by their positions in the
// checked sequence. First is always less than Second.
type OverlapPair struct {
	First  int `json:"first"`
	Second int `json:"second"`
}

// BoxesOverlap reports whether two placements share a region of positive
// area. Rectangles are half-open, [x, x+w) by [y, y+h), so placements that
// only touch along an edge or at a corner do not overlap.
func BoxesOverlap(a, b Placement) bool {
	return a.X < b.Right() && b.X < a.Right() &&
		a.Y < b.Bottom() && b.Y < a.Bottom()
}

// CheckNoOverlap reports whether no two distinct placements overlap.
// Placements are distinguished by position, so two identical entries at the
// same offset do overlap.
func CheckNoOverlap(placements []Placement) bool {
	for i := range placements {
		for j := i + 1; j < len(placements); j++ {
			if BoxesOverlap(placements[i], placements[j]) {
				return false
			}
		}
	}
	return true
}

// FindOverlaps returns every overlapping pair, ordered by First then Second.
// It sweeps placements left to right and stops scanning a placement's
// neighbours once they start at or past its right edge, which gives the same
// answer as comparing every pair.
func FindOverlaps(placements []Placement) []OverlapPair {
	order := make([]int, len(placements))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(placements[a].X, placements[b].X)
	})

	var pairs []OverlapPair
	for oi, a := range order {
		right := placements[a].Right()
		for _, b := range order[oi+1:] {
			if placements[b].X >= right {
				break
			}
			if BoxesOverlap(placements[a], placements[b]) {
				pairs = append(pairs, OverlapPair{First: min(a, b), Second: max(a, b)})
			}
		}
	}

	slices.SortFunc(pairs, func(p, q OverlapPair) int {
		if c := cmp.Compare(p.First, q.First); c != 0 {
			return c
		}
		return cmp.Compare(p.Second, q.Second)
	})
	return pairs
}
