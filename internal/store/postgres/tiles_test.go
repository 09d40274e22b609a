package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"planetoidgen/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSelectTile_CreatesOrReads(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	created := time.Now().Truncate(time.Second)
	mock.ExpectQuery(`INSERT INTO tiles .* ON CONFLICT \(planetoid_id, z, x, y\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), 1, int16(3), int64(4), int64(5)).
		WillReturnRows(sqlmock.NewRows(tileRowColumns).
			AddRow("tile-1", 1, 3, 4, 5, nil, -1, created, nil))

	tile, err := s.SelectTile(context.Background(), 1, 3, 4, 5)
	if err != nil {
		t.Fatalf("SelectTile failed: %v", err)
	}
	if tile.ID != "tile-1" {
		t.Errorf("got ID %s, want tile-1", tile.ID)
	}
	if tile.LastAgent != nil {
		t.Errorf("expected nil LastAgent, got %d", *tile.LastAgent)
	}
	if tile.LastIndexedAgent != -1 {
		t.Errorf("got LastIndexedAgent %d, want -1", tile.LastIndexedAgent)
	}
	if tile.ModifiedAt != nil {
		t.Error("expected nil ModifiedAt")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAcquireLease(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()
	mock.ExpectQuery(`UPDATE tiles\s+SET last_agent = \$2, modified_at = \$3`).
		WithArgs("tile-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(tileRowColumns).
			AddRow("tile-1", 1, 0, 0, 0, 2, 1, now, now))

	tile, err := s.AcquireLease(context.Background(), "tile-1", 2, now)
	if err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if tile.LastAgent == nil || *tile.LastAgent != 2 {
		t.Errorf("got LastAgent %v, want 2", tile.LastAgent)
	}
	if tile.ModifiedAt == nil || !tile.ModifiedAt.Equal(now) {
		t.Errorf("got ModifiedAt %v, want %v", tile.ModifiedAt, now)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCompleteAgent_IsMonotonic(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`last_indexed_agent = GREATEST\(last_indexed_agent, \$2\)`).
		WithArgs("tile-1", 1).
		WillReturnRows(sqlmock.NewRows(tileRowColumns).
			AddRow("tile-1", 1, 0, 0, 0, 1, 3, time.Now(), nil))

	tile, err := s.CompleteAgent(context.Background(), "tile-1", 1)
	if err != nil {
		t.Fatalf("CompleteAgent failed: %v", err)
	}
	if tile.LastIndexedAgent != 3 {
		t.Errorf("got LastIndexedAgent %d, want 3", tile.LastIndexedAgent)
	}
	if tile.ModifiedAt != nil {
		t.Error("expected lease to be cleared")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReleaseLease_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`UPDATE tiles\s+SET modified_at = NULL`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.ReleaseLease(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateLastModified_ClearsValues(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`UPDATE tiles`).
		WithArgs("tile-1", nil, nil).
		WillReturnRows(sqlmock.NewRows(tileRowColumns).
			AddRow("tile-1", 1, 0, 0, 0, nil, -1, time.Now(), nil))

	if _, err := s.UpdateLastModified(context.Background(), "tile-1", nil, nil); err != nil {
		t.Fatalf("UpdateLastModified failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
