package geom

import (
	"math"
	"testing"
)

func ptr(p Position) *Position { return &p }

func TestBounds_Contains(t *testing.T) {
	box := Bounds{Corner1: ptr(Position{0, 0, 0}), Corner2: ptr(Position{20, 100, 20})}

	tests := []struct {
		name string
		pos  Position
		want bool
	}{
		{"inside", Position{10, 64, 10}, true},
		{"min corner", Position{0, 0, 0}, true},
		{"max corner", Position{20, 100, 20}, true},
		{"outside x", Position{21, 64, 10}, false},
		{"outside y below", Position{10, -1, 10}, false},
		{"outside z", Position{10, 64, -5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := box.Contains(tt.pos); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.pos, got, tt.want)
			}
		})
	}
}

func TestBounds_ContainsIsSymmetricInCorners(t *testing.T) {
	corners := [][2]Position{
		{{0, 0, 0}, {20, 100, 20}},
		{{-5, 70, 30}, {5, 60, -30}},
		{{3, 3, 3}, {3, 3, 3}},
	}
	points := []Position{{0, 0, 0}, {3, 3, 3}, {0, 65, 0}, {-6, 65, 0}, {10, 50, 10}, {5, 60, -30}}

	for _, c := range corners {
		a := Bounds{Corner1: ptr(c[0]), Corner2: ptr(c[1])}
		b := Bounds{Corner1: ptr(c[1]), Corner2: ptr(c[0])}
		for _, p := range points {
			if a.Contains(p) != b.Contains(p) {
				t.Errorf("corners %v point %v: swapping corners changed the result", c, p)
			}
		}
	}
}

func TestBounds_UnsetContainsEverything(t *testing.T) {
	points := []Position{{0, 0, 0}, {1 << 20, -64, -(1 << 20)}, {-1, 320, 7}}

	for _, b := range []Bounds{{}, {Corner1: ptr(Position{0, 0, 0})}, {Corner2: ptr(Position{1, 1, 1})}} {
		for _, p := range points {
			if !b.Contains(p) {
				t.Errorf("%v.Contains(%v) = false, want true", b, p)
			}
		}
	}
}

func TestFloor(t *testing.T) {
	want := Position{10, 64, -11}
	if got := Floor(10.7, 64.0, -10.2); got != want {
		t.Errorf("Floor() = %v, want %v", got, want)
	}
}

func TestPosition_DistanceTo(t *testing.T) {
	got := Position{0, 0, 0}.DistanceTo(Position{3, 4, 0})
	if math.Abs(got-5.0) > 1e-9 {
		t.Errorf("DistanceTo() = %v, want 5", got)
	}
}
