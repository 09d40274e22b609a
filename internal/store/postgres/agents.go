package postgres

import (
	"context"
	"fmt"

	"planetoidgen/internal/store"
)

func (s *Store) GetAgents(ctx context.Context, planetoidID int) ([]store.AgentInfo, error) {
	return s.getAgents(ctx, nil, planetoidID)
}

func (s *Store) getAgents(ctx context.Context, tx store.DBTransaction, planetoidID int) ([]store.AgentInfo, error) {
	query := `
		SELECT planetoid_id, index_id, title, settings, should_rerun_if_last
		FROM agents
		WHERE planetoid_id = $1
		ORDER BY index_id ASC
	`

	rows, err := s.getExecutor(tx).QueryContext(ctx, query, planetoidID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents of planetoid %d: %w", planetoidID, err)
	}
	defer rows.Close()

	agents := []store.AgentInfo{}
	for rows.Next() {
		var a store.AgentInfo
		if err := rows.Scan(&a.PlanetoidID, &a.IndexID, &a.Title, &a.Settings, &a.ShouldRerunIfLast); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agents rows error: %w", err)
	}
	return agents, nil
}

// SetAgents replaces the pipeline of a planetoid in one transaction.
func (s *Store) SetAgents(ctx context.Context, planetoidID int, agents []store.AgentInfo) ([]store.AgentInfo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := s.clearAgents(ctx, tx, planetoidID); err != nil {
		return nil, err
	}

	for i, a := range agents {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (planetoid_id, index_id, title, settings, should_rerun_if_last)
			VALUES ($1, $2, $3, $4, $5)
		`, planetoidID, i, a.Title, a.Settings, a.ShouldRerunIfLast)
		if err != nil {
			return nil, fmt.Errorf("failed to insert agent %d (%s): %w", i, a.Title, err)
		}
	}

	saved, err := s.getAgents(ctx, tx, planetoidID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) ClearAgents(ctx context.Context, planetoidID int) (int64, error) {
	return s.clearAgents(ctx, nil, planetoidID)
}

func (s *Store) clearAgents(ctx context.Context, tx store.DBTransaction, planetoidID int) (int64, error) {
	res, err := s.getExecutor(tx).ExecContext(ctx, `DELETE FROM agents WHERE planetoid_id = $1`, planetoidID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear agents of planetoid %d: %w", planetoidID, err)
	}
	return res.RowsAffected()
}
