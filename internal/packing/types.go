package packing

import (
	"fmt"
	"math"
)

// MaxDimension is the largest accepted box width or height. Keeping sides
// below 2^20 keeps every area and offset sum the packer computes far from
// int overflow, even for millions of boxes.
const MaxDimension = 1 << 20

// Box is an immutable rectangle size. Two boxes are equal when both
// dimensions match, so Box values can be compared with ==.
type Box struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewBox returns a Box after checking that both dimensions are in
// [1, MaxDimension].
func NewBox(width, height int) (Box, error) {
	b := Box{Width: width, Height: height}
	if !b.valid() {
		return Box{}, &InvalidBoxError{Index: -1, Box: b}
	}
	return b, nil
}

// Area returns width * height.
func (b Box) Area() int {
	return b.Width * b.Height
}

func (b Box) String() string {
	return fmt.Sprintf("Box(%d, %d)", b.Width, b.Height)
}

func (b Box) valid() bool {
	return b.Width > 0 && b.Height > 0 && b.Width <= MaxDimension && b.Height <= MaxDimension
}

// Item pairs a Box with an opaque caller identity so the caller can tell
// which input produced which placement. The packer only reads the Box.
type Item struct {
	ID  string `json:"id"`
	Box Box    `json:"box"`
}

// Placement is a box assigned a top-left offset within a container.
type Placement struct {
	X int `json:"x"`
	Y int `json:"y"`
	Item
}

// Right returns the first column past the placement.
func (p Placement) Right() int {
	return p.X + p.Box.Width
}

// Bottom returns the first row past the placement.
func (p Placement) Bottom() int {
	return p.Y + p.Box.Height
}

func (p Placement) String() string {
	return fmt.Sprintf("(%d, %d, %s)", p.X, p.Y, p.Box)
}

// Result is the outcome of a single packing call.
// Placements follow the order in which boxes were placed, strip by strip.
type Result struct {
	Width      int
	Height     int
	Strips     int
	Placements []Placement
}

// Area returns the container area, saturating at math.MaxInt when a caller
// supplied container width makes the product too large for an int.
func (r Result) Area() int {
	if r.Height > 0 && r.Width > math.MaxInt/r.Height {
		return math.MaxInt
	}
	return r.Width * r.Height
}

// Efficiency reports the share of the container covered by boxes, in [0, 1].
func (r Result) Efficiency() float64 {
	area := float64(r.Width) * float64(r.Height)
	if area == 0 {
		return 0
	}
	used := 0.0
	for _, p := range r.Placements {
		used += float64(p.Box.Area())
	}
	return used / area
}

// Packer describes the behaviour required from a box packer.
type Packer interface {
	Pack(items []Item, maxWidth int) (Result, error)
}
