package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"planetoidgen/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestCreatePlanetoid(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	created := time.Now().Truncate(time.Second)
	mock.ExpectQuery(`INSERT INTO planetoids`).
		WithArgs("Terra", int64(42), 6371.0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, created))

	p := &store.Planetoid{Title: "Terra", Seed: 42, Radius: 6371}
	id, err := s.CreatePlanetoid(context.Background(), p)
	if err != nil {
		t.Fatalf("CreatePlanetoid failed: %v", err)
	}
	if id != 3 || p.ID != 3 {
		t.Errorf("got id %d (%d), want 3", id, p.ID)
	}
}

func TestGetPlanetoid_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT id, title, seed, radius, created_at FROM planetoids WHERE id = \$1`).
		WithArgs(9).
		WillReturnError(sql.ErrNoRows)

	p, err := s.GetPlanetoid(context.Background(), 9)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound, got %v", err)
	}
	if p != nil {
		t.Error("expected nil planetoid")
	}
}

func TestListPlanetoids(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`FROM planetoids ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "seed", "radius", "created_at"}).
			AddRow(1, "Terra", 1, 1.0, time.Now()).
			AddRow(2, "Luna", 2, 0.27, time.Now()))

	ps, err := s.ListPlanetoids(context.Background())
	if err != nil {
		t.Fatalf("ListPlanetoids failed: %v", err)
	}
	if len(ps) != 2 || ps[1].Title != "Luna" {
		t.Errorf("unexpected planetoids: %+v", ps)
	}
}

func TestDrainReports_OldestFirst(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`DELETE FROM reports`).
		WithArgs("conn-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "connection_id", "payload", "created_at"}).
			AddRow(int64(8), "conn-1", []byte(`{"id":"b"}`), time.Now()).
			AddRow(int64(3), "conn-1", []byte(`{"id":"a"}`), time.Now()))

	reports, err := s.DrainReports(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("DrainReports failed: %v", err)
	}
	if len(reports) != 2 || reports[0].ID != 3 {
		t.Fatalf("unexpected reports: %+v", reports)
	}
	if string(reports[0].Payload) != `{"id":"a"}` {
		t.Errorf("got payload %s", reports[0].Payload)
	}
}

func TestSaveReport(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	payload := json.RawMessage(`{"id":"a"}`)
	mock.ExpectExec(`INSERT INTO reports`).
		WithArgs("conn-1", []byte(payload)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.SaveReport(context.Background(), "conn-1", payload); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
