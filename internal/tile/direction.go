package tile

import (
	"fmt"
	"strings"
)

// Direction names a neighbor of a tile on the planar grid.
type Direction int

const (
	Current Direction = iota
	Up
	Down
	Left
	Right
	UpLeft
	UpRight
	DownLeft
	DownRight
)

var directionNames = [...]string{
	Current:   "current",
	Up:        "up",
	Down:      "down",
	Left:      "left",
	Right:     "right",
	UpLeft:    "up_left",
	UpRight:   "up_right",
	DownLeft:  "down_left",
	DownRight: "down_right",
}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// ParseDirection accepts the names produced by String, case-insensitively.
func ParseDirection(s string) (Direction, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range directionNames {
		if n == name {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	if d < 0 || int(d) >= len(directionNames) {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(directionNames[d]), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// offset returns the grid delta for d. Up decreases Y.
func (d Direction) offset() (dx, dy int64) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	case UpLeft:
		return -1, -1
	case UpRight:
		return 1, -1
	case DownLeft:
		return -1, 1
	case DownRight:
		return 1, 1
	}
	return 0, 0
}

// Relative returns the neighbor of a in direction d. X wraps around the grid;
// a neighbor past the top or bottom edge does not exist and ok is false.
func Relative(a Address, d Direction) (Address, bool) {
	if d == Current {
		return a, true
	}
	n := Size(a.Z)
	if n == 0 {
		return Address{}, false
	}
	dx, dy := d.offset()
	y := a.Y + dy
	if y < 0 || y >= n {
		return Address{}, false
	}
	x := ((a.X+dx)%n + n) % n
	return Address{PlanetoidID: a.PlanetoidID, Z: a.Z, X: x, Y: y}, true
}
