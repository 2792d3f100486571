package geom

import (
	"fmt"
	"math"
)

// Position is a floored block coordinate.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

// Floor converts a world-space coordinate into the block position containing it.
func Floor(x, y, z float64) Position {
	return Position{
		X: int(math.Floor(x)),
		Y: int(math.Floor(y)),
		Z: int(math.Floor(z)),
	}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Z)
}

// DistanceTo returns the euclidean distance between two block positions.
func (p Position) DistanceTo(o Position) float64 {
	dx := float64(p.X - o.X)
	dy := float64(p.Y - o.Y)
	dz := float64(p.Z - o.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Bounds is an axis-aligned box described by two opposite corners.
// Either corner may be unset; a box is only active once both are set.
type Bounds struct {
	Corner1 *Position `json:"corner1,omitempty" yaml:"corner1,omitempty"`
	Corner2 *Position `json:"corner2,omitempty" yaml:"corner2,omitempty"`
}

// Active reports whether both corners are configured.
func (b Bounds) Active() bool {
	return b.Corner1 != nil && b.Corner2 != nil
}

// MinMax normalizes the corners into per-axis minimum and maximum positions.
func (b Bounds) MinMax() (Position, Position) {
	c1, c2 := *b.Corner1, *b.Corner2
	return Position{X: min(c1.X, c2.X), Y: min(c1.Y, c2.Y), Z: min(c1.Z, c2.Z)},
		Position{X: max(c1.X, c2.X), Y: max(c1.Y, c2.Y), Z: max(c1.Z, c2.Z)}
}

// Contains reports whether p lies inside the closed box. An inactive box
// contains every position.
func (b Bounds) Contains(p Position) bool {
	if !b.Active() {
		return true
	}
	lo, hi := b.MinMax()
	return p.X >= lo.X && p.X <= hi.X &&
		p.Y >= lo.Y && p.Y <= hi.Y &&
		p.Z >= lo.Z && p.Z <= hi.Z
}

func (b Bounds) String() string {
	if !b.Active() {
		return "none"
	}
	lo, hi := b.MinMax()
	return fmt.Sprintf("%s - %s", lo, hi)
}
