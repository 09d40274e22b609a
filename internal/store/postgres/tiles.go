package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"planetoidgen/internal/store"

	"github.com/google/uuid"
)

const tileColumns = `id, planetoid_id, z, x, y, last_agent, last_indexed_agent, created_at, modified_at`

// SelectTile reads the tile or creates it. The no-op update on conflict makes
// RETURNING yield the existing row.
func (s *Store) SelectTile(ctx context.Context, planetoidID int, z int16, x, y int64) (*store.Tile, error) {
	query := `
		INSERT INTO tiles (id, planetoid_id, z, x, y)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (planetoid_id, z, x, y) DO UPDATE SET planetoid_id = EXCLUDED.planetoid_id
		RETURNING ` + tileColumns

	t, err := scanTile(s.db.QueryRowContext(ctx, query, uuid.NewString(), planetoidID, z, x, y))
	if err != nil {
		return nil, fmt.Errorf("failed to select tile P=%d Z=%d X=%d Y=%d: %w", planetoidID, z, x, y, err)
	}
	return t, nil
}

func (s *Store) UpdateLastModified(ctx context.Context, tileID string, lastAgent *int, modifiedAt *time.Time) (*store.Tile, error) {
	query := `
		UPDATE tiles
		SET last_agent = $2, modified_at = $3
		WHERE id = $1
		RETURNING ` + tileColumns

	return s.updateTile(ctx, tileID, query, tileID, nullInt(lastAgent), nullTime(modifiedAt))
}

func (s *Store) AcquireLease(ctx context.Context, tileID string, agentIndex int, now time.Time) (*store.Tile, error) {
	return s.UpdateLastModified(ctx, tileID, &agentIndex, &now)
}

func (s *Store) CompleteAgent(ctx context.Context, tileID string, agentIndex int) (*store.Tile, error) {
	query := `
		UPDATE tiles
		SET last_agent = $2,
		    last_indexed_agent = GREATEST(last_indexed_agent, $2),
		    modified_at = NULL
		WHERE id = $1
		RETURNING ` + tileColumns

	return s.updateTile(ctx, tileID, query, tileID, agentIndex)
}

func (s *Store) ReleaseLease(ctx context.Context, tileID string) (*store.Tile, error) {
	query := `
		UPDATE tiles
		SET modified_at = NULL
		WHERE id = $1
		RETURNING ` + tileColumns

	return s.updateTile(ctx, tileID, query, tileID)
}

func (s *Store) updateTile(ctx context.Context, tileID, query string, args ...interface{}) (*store.Tile, error) {
	t, err := scanTile(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tile %s: %w", tileID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update tile %s: %w", tileID, err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTile(row rowScanner) (*store.Tile, error) {
	var (
		t          store.Tile
		lastAgent  sql.NullInt64
		modifiedAt sql.NullTime
	)
	if err := row.Scan(
		&t.ID, &t.PlanetoidID, &t.Z, &t.X, &t.Y,
		&lastAgent, &t.LastIndexedAgent, &t.CreatedAt, &modifiedAt,
	); err != nil {
		return nil, err
	}
	if lastAgent.Valid {
		v := int(lastAgent.Int64)
		t.LastAgent = &v
	}
	if modifiedAt.Valid {
		v := modifiedAt.Time
		t.ModifiedAt = &v
	}
	return &t, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
