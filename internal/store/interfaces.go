package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// TileStore persists tile pipeline progress.
type TileStore interface {
	// SelectTile returns the tile at the address, creating it on first access.
	SelectTile(ctx context.Context, planetoidID int, z int16, x, y int64) (*Tile, error)

	// UpdateLastModified overwrites LastAgent and the lease timestamp.
	UpdateLastModified(ctx context.Context, tileID string, lastAgent *int, modifiedAt *time.Time) (*Tile, error)

	// AcquireLease marks the tile as being processed for agentIndex at now.
	AcquireLease(ctx context.Context, tileID string, agentIndex int, now time.Time) (*Tile, error)

	// CompleteAgent records a successful stage and clears the lease.
	// LastIndexedAgent only moves forward.
	CompleteAgent(ctx context.Context, tileID string, agentIndex int) (*Tile, error)

	// ReleaseLease clears the lease without touching progress.
	ReleaseLease(ctx context.Context, tileID string) (*Tile, error)
}

// AgentRegistry stores the ordered agents of each planetoid.
type AgentRegistry interface {
	// GetAgents returns the planetoid's agents ordered by IndexID.
	GetAgents(ctx context.Context, planetoidID int) ([]AgentInfo, error)

	// SetAgents replaces the planetoid's agents. Indices are assigned from
	// slice order, starting at 0.
	SetAgents(ctx context.Context, planetoidID int, agents []AgentInfo) ([]AgentInfo, error)

	// ClearAgents removes every agent of the planetoid and returns how many were removed.
	ClearAgents(ctx context.Context, planetoidID int) (int64, error)
}

// PlanetoidStore manages planetoids.
type PlanetoidStore interface {
	CreatePlanetoid(ctx context.Context, p *Planetoid) (int, error)
	GetPlanetoid(ctx context.Context, id int) (*Planetoid, error)
	ListPlanetoids(ctx context.Context) ([]Planetoid, error)
}

// ReportStore buffers report payloads per requester connection.
type ReportStore interface {
	SaveReport(ctx context.Context, connectionID string, payload json.RawMessage) error

	// DrainReports returns and removes the reports of a connection, oldest first.
	DrainReports(ctx context.Context, connectionID string) ([]Report, error)
}
