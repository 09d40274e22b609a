package postgres

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

var tileRowColumns = []string{"id", "planetoid_id", "z", "x", "y", "last_agent", "last_indexed_agent", "created_at", "modified_at"}
