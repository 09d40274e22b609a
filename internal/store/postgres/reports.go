package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"planetoidgen/internal/store"
)

func (s *Store) SaveReport(ctx context.Context, connectionID string, payload json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (connection_id, payload) VALUES ($1, $2)`,
		connectionID, []byte(payload))
	if err != nil {
		return fmt.Errorf("failed to save report for %s: %w", connectionID, err)
	}
	return nil
}

func (s *Store) DrainReports(ctx context.Context, connectionID string) ([]store.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM reports
		WHERE connection_id = $1
		RETURNING id, connection_id, payload, created_at
	`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to drain reports for %s: %w", connectionID, err)
	}
	defer rows.Close()

	reports := []store.Report{}
	for rows.Next() {
		var (
			r       store.Report
			payload []byte
		)
		if err := rows.Scan(&r.ID, &r.ConnectionID, &payload, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Payload = json.RawMessage(payload)
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].ID < reports[j].ID })
	return reports, nil
}
