package packing

import (
	"cmp"
	"math"
	"slices"
	"strconv"
)

type shelfPacker struct {
	align  int
	verify bool
}

// Option configures a Packer created by New.
type Option func(*shelfPacker)

// WithAlignment rounds automatically chosen container widths up to a multiple
// of n. Values below 2 disable rounding. Explicit widths are never changed.
func WithAlignment(n int) Option {
	return func(p *shelfPacker) {
		p.align = n
	}
}

// WithVerification runs CheckNoOverlap on every result and fails with
// ErrOverlap instead of returning an overlapping packing.
func WithVerification(enabled bool) Option {
	return func(p *shelfPacker) {
		p.verify = enabled
	}
}

// New creates a Packer based on horizontal strip (shelf) packing.
func New(opts ...Option) Packer {
	p := &shelfPacker{align: 1}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pack packs items with the default packer. A maxWidth of zero or less
// selects the width automatically, see AutoWidth.
func Pack(items []Item, maxWidth int) (Result, error) {
	return New().Pack(items, maxWidth)
}

// PackBoxes packs bare boxes, using each box's input index as its ID.
func PackBoxes(boxes []Box, maxWidth int) (Result, error) {
	items := make([]Item, len(boxes))
	for i, b := range boxes {
		items[i] = Item{ID: strconv.Itoa(i), Box: b}
	}
	return Pack(items, maxWidth)
}

func (p *shelfPacker) Pack(items []Item, maxWidth int) (Result, error) {
	for i, it := range items {
		if !it.Box.valid() {
			return Result{}, &InvalidBoxError{Index: i, Box: it.Box}
		}
	}
	if len(items) == 0 {
		return Result{Placements: []Placement{}}, nil
	}

	if maxWidth <= 0 {
		maxWidth = AutoWidth(items, p.align)
	}
	for i, it := range items {
		if it.Box.Width > maxWidth {
			return Result{}, &OversizedBoxError{Index: i, Box: it.Box, MaxWidth: maxWidth}
		}
	}

	result := packStrips(sortForPacking(items), maxWidth)
	if p.verify && !CheckNoOverlap(result.Placements) {
		return Result{}, ErrOverlap
	}
	return result, nil
}

// AutoWidth picks a container width that keeps the packing roughly square
// while still fitting the widest box: max(widest, floor(sqrt(total area))).
// With align > 1 the width is rounded up to the next multiple of align.
func AutoWidth(items []Item, align int) int {
	totalArea, widest := 0, 0
	for _, it := range items {
		if a := it.Box.Area(); totalArea > math.MaxInt-a {
			totalArea = math.MaxInt
		} else {
			totalArea += a
		}
		widest = max(widest, it.Box.Width)
	}

	width := max(widest, isqrt(totalArea))
	if align > 1 && width%align != 0 {
		width += align - width%align
	}
	return width
}

// sortForPacking orders boxes by descending height, then descending width.
// The sort is stable so equal boxes keep their input order.
func sortForPacking(items []Item) []Item {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b Item) int {
		if c := cmp.Compare(b.Box.Height, a.Box.Height); c != 0 {
			return c
		}
		return cmp.Compare(b.Box.Width, a.Box.Width)
	})
	return sorted
}

// packStrips fills one horizontal strip at a time. Every box that fits in the
// remaining strip width is placed; the rest are deferred, in order, to the
// next strip. All boxes must be at most maxWidth wide or the loop never ends.
func packStrips(unplaced []Item, maxWidth int) Result {
	result := Result{
		Width:      maxWidth,
		Placements: make([]Placement, 0, len(unplaced)),
	}

	for len(unplaced) > 0 {
		stripWidth, stripHeight := 0, 0
		var deferred []Item
		for _, it := range unplaced {
			if it.Box.Width > maxWidth-stripWidth {
				deferred = append(deferred, it)
				continue
			}
			result.Placements = append(result.Placements, Placement{X: stripWidth, Y: result.Height, Item: it})
			stripWidth += it.Box.Width
			stripHeight = max(stripHeight, it.Box.Height)
		}
		result.Height += stripHeight
		result.Strips++
		unplaced = deferred
	}

	return result
}

// isqrt returns floor(sqrt(n)) for n >= 0.
func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	r := int(math.Sqrt(float64(n)))
	// The float estimate can be off by one either way; divisions keep the
	// corrections from overflowing near math.MaxInt.
	for r > n/r {
		r--
	}
	for r+1 <= n/(r+1) {
		r++
	}
	return r
}
