package valueobjects

import (
	"encoding/json"
	"math"

	pkgerrors "loom-backend/pkg/errors"
)

// Position is a value object representing node coordinates on the 2D canvas
type Position struct {
	x float64
	y float64
}

// NewPosition creates a position with validation
func NewPosition(x, y float64) (Position, error) {
	if !isValidCoordinate(x) || !isValidCoordinate(y) {
		return Position{}, pkgerrors.NewValidationError("invalid coordinates: must be finite numbers")
	}
	return Position{x: x, y: y}, nil
}

// X returns the X coordinate
func (p Position) X() float64 {
	return p.x
}

// Y returns the Y coordinate
func (p Position) Y() float64 {
	return p.y
}

// Equals checks if two positions are equal
func (p Position) Equals(other Position) bool {
	const epsilon = 1e-9
	return math.Abs(p.x-other.x) < epsilon &&
		math.Abs(p.y-other.y) < epsilon
}

// Translate moves the position by the given offsets
func (p Position) Translate(dx, dy float64) (Position, error) {
	return NewPosition(p.x+dx, p.y+dy)
}

// DistanceTo calculates the Euclidean distance to another position
func (p Position) DistanceTo(other Position) float64 {
	dx := p.x - other.x
	dy := p.y - other.y
	return math.Sqrt(dx*dx + dy*dy)
}

// positionJSON is the wire shape; positions cross the collaboration
// channel inside canvas blocks.
type positionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MarshalJSON implements json.Marshaler
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal(positionJSON{X: p.x, Y: p.y})
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Position) UnmarshalJSON(data []byte) error {
	var raw positionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pos, err := NewPosition(raw.X, raw.Y)
	if err != nil {
		return err
	}
	*p = pos
	return nil
}

// Size is a value object for a node's rendered width and height
type Size struct {
	width  float64
	height float64
}

// NewSize creates a size with validation
func NewSize(width, height float64) (Size, error) {
	if !isValidCoordinate(width) || !isValidCoordinate(height) || width < 0 || height < 0 {
		return Size{}, pkgerrors.NewValidationError("invalid size: must be non-negative finite numbers")
	}
	return Size{width: width, height: height}, nil
}

// Width returns the width
func (s Size) Width() float64 {
	return s.width
}

// Height returns the height
func (s Size) Height() float64 {
	return s.height
}

// IsZero checks whether the size has not been measured yet
func (s Size) IsZero() bool {
	return s.width == 0 && s.height == 0
}

// Box is an axis-aligned bounding box, used by the layout engine
type Box struct {
	Position Position
	Size     Size
}

// Intersects reports whether two boxes overlap with positive area
func (b Box) Intersects(other Box) bool {
	return b.Position.x < other.Position.x+other.Size.width &&
		other.Position.x < b.Position.x+b.Size.width &&
		b.Position.y < other.Position.y+other.Size.height &&
		other.Position.y < b.Position.y+b.Size.height
}

// isValidCoordinate checks if a coordinate is a valid finite number
func isValidCoordinate(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
