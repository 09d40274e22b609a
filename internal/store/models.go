// Package store contains the persistence layer for planetoidgen.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"planetoidgen/internal/tile"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Planetoid is a generated world. Agents and tiles are scoped by its ID.
type Planetoid struct {
	ID        int
	Title     string
	Seed      int64
	Radius    float64
	CreatedAt time.Time
}

// AgentInfo is one stage of a planetoid's pipeline.
// IndexID values are contiguous from 0 for a planetoid.
type AgentInfo struct {
	PlanetoidID       int
	IndexID           int
	Title             string
	Settings          string // Opaque to the scheduler, decoded by the agent itself
	ShouldRerunIfLast bool
}

func (a AgentInfo) String() string {
	return fmt.Sprintf("P=%d, I=%d, T=%s, SR=%t", a.PlanetoidID, a.IndexID, a.Title, a.ShouldRerunIfLast)
}

// Tile is the pipeline progress of one tile.
type Tile struct {
	ID          string
	PlanetoidID int
	Z           int16
	X           int64
	Y           int64

	// LastAgent is the stage of the most recent attempt, nil before the first.
	LastAgent *int

	// LastIndexedAgent is the highest completed stage, -1 when none. It never
	// moves backwards.
	LastIndexedAgent int

	CreatedAt time.Time

	// ModifiedAt is the lease of the worker running LastAgent. Nil when idle.
	ModifiedAt *time.Time
}

func (t *Tile) Address() tile.Address {
	return tile.Address{PlanetoidID: t.PlanetoidID, Z: t.Z, X: t.X, Y: t.Y}
}

func (t *Tile) String() string {
	lastAgent := "nil"
	if t.LastAgent != nil {
		lastAgent = fmt.Sprint(*t.LastAgent)
	}
	modified := "nil"
	if t.ModifiedAt != nil {
		modified = t.ModifiedAt.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%s, LA=%s, LIA=%d, Id=%s, ModifiedAt=%s",
		t.Address(), lastAgent, t.LastIndexedAgent, t.ID, modified)
}

// Report is a payload posted by a reporting stage for a requester's connection.
type Report struct {
	ID           int64
	ConnectionID string
	Payload      json.RawMessage
	CreatedAt    time.Time
}
