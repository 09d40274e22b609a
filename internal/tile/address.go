// Package tile holds planar tile addressing shared by expansion and workers.
package tile

import "fmt"

// Address identifies a tile on a planetoid's planar grid at a zoom level.
type Address struct {
	PlanetoidID int   `json:"planetoid_id"`
	Z           int16 `json:"z"`
	X           int64 `json:"x"`
	Y           int64 `json:"y"`
}

func (a Address) String() string {
	return fmt.Sprintf("P=%d, Z=%d, X=%d, Y=%d", a.PlanetoidID, a.Z, a.X, a.Y)
}

// Size returns the number of tiles along one axis at zoom level z.
func Size(z int16) int64 {
	if z < 0 {
		return 0
	}
	return int64(1) << uint(z)
}

// Valid reports whether the address lies inside the grid for its zoom level.
func (a Address) Valid() bool {
	n := Size(a.Z)
	return n > 0 && a.X >= 0 && a.X < n && a.Y >= 0 && a.Y < n
}
