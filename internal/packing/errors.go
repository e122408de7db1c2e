package packing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBox is matched by InvalidBoxError.
	ErrInvalidBox = fmt.Errorf("box width and height must be integers between 1 and %d", MaxDimension)
	// ErrOversizedBox is matched by OversizedBoxError.
	ErrOversizedBox = errors.New("box is wider than the maximum container width")
	// ErrOverlap is returned when verification finds two overlapping placements.
	ErrOverlap = errors.New("packing produced overlapping placements")
)

// InvalidBoxError reports a box with a width or height outside [1, MaxDimension].
// Index is the position of the offending item in the input, or -1 when the
// box was not part of a collection.
type InvalidBoxError struct {
	Index int
	Box   Box
}

func (e *InvalidBoxError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid %s: %v", e.Box, ErrInvalidBox)
	}
	return fmt.Sprintf("box %d: invalid %s: %v", e.Index, e.Box, ErrInvalidBox)
}

func (e *InvalidBoxError) Unwrap() error {
	return ErrInvalidBox
}

// OversizedBoxError reports a box that can never be admitted to a strip
// because it is wider than the container. Without this check the shelf loop
// would defer the box forever.
type OversizedBoxError struct {
	Index    int
	Box      Box
	MaxWidth int
}

func (e *OversizedBoxError) Error() string {
	return fmt.Sprintf("box %d: %s exceeds max width %d: %v", e.Index, e.Box, e.MaxWidth, ErrOversizedBox)
}

func (e *OversizedBoxError) Unwrap() error {
	return ErrOversizedBox
}
