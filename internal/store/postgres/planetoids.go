package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"planetoidgen/internal/store"
)

func (s *Store) CreatePlanetoid(ctx context.Context, p *store.Planetoid) (int, error) {
	query := `
		INSERT INTO planetoids (title, seed, radius)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := s.db.QueryRowContext(ctx, query, p.Title, p.Seed, p.Radius).Scan(&p.ID, &p.CreatedAt); err != nil {
		return 0, fmt.Errorf("failed to create planetoid %q: %w", p.Title, err)
	}
	return p.ID, nil
}

func (s *Store) GetPlanetoid(ctx context.Context, id int) (*store.Planetoid, error) {
	query := "SELECT id, title, seed, radius, created_at FROM planetoids WHERE id = $1"

	var p store.Planetoid
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Title, &p.Seed, &p.Radius, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("planetoid %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPlanetoids(ctx context.Context) ([]store.Planetoid, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, title, seed, radius, created_at FROM planetoids ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	planetoids := []store.Planetoid{}
	for rows.Next() {
		var p store.Planetoid
		if err := rows.Scan(&p.ID, &p.Title, &p.Seed, &p.Radius, &p.CreatedAt); err != nil {
			return nil, err
		}
		planetoids = append(planetoids, p)
	}
	return planetoids, rows.Err()
}
