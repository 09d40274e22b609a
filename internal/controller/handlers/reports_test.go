package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"planetoidgen/internal/messaging"
	"planetoidgen/pkg/api"
)

func TestInternalReport_RoundTrip(t *testing.T) {
	f := newFixture()
	job := messaging.Job{ID: "j1", PlanetoidID: 1, AgentIndex: 2, Z: 3, X: 4, Y: 5, ConnectionID: "conn-1"}

	rr := httptest.NewRecorder()
	f.h.InternalReport(rr, request(http.MethodPost, "/internal/data/report", job))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusAccepted)
	}

	rr = httptest.NewRecorder()
	f.h.DrainReports(rr, request(http.MethodGet, "/connections/conn-1/reports", nil, "id", "conn-1"))
	var resp api.ReportsResponse
	decode(t, rr, &resp)
	if len(resp.Reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(resp.Reports))
	}

	var report api.TileReport
	if err := json.Unmarshal(resp.Reports[0].Payload, &report); err != nil {
		t.Fatal(err)
	}
	if report.JobID != "j1" || report.X != 4 || report.AgentIndex != 2 || report.ReportedAt.IsZero() {
		t.Errorf("unexpected report %+v", report)
	}

	// Drained reports are gone.
	rr = httptest.NewRecorder()
	f.h.DrainReports(rr, request(http.MethodGet, "/connections/conn-1/reports", nil, "id", "conn-1"))
	decode(t, rr, &resp)
	if len(resp.Reports) != 0 {
		t.Errorf("expected no reports after drain, got %d", len(resp.Reports))
	}
}

func TestInternalReport_WithoutConnectionIsDropped(t *testing.T) {
	f := newFixture()
	f.store.saveReportErr = errors.New("must not be called")

	rr := httptest.NewRecorder()
	f.h.InternalReport(rr, request(http.MethodPost, "/internal/data/report", messaging.Job{ID: "j1"}))
	if rr.Code != http.StatusAccepted {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusAccepted)
	}
}

func TestInternalReport_Errors(t *testing.T) {
	f := newFixture()
	rr := httptest.NewRecorder()
	f.h.InternalReport(rr, request(http.MethodPost, "/internal/data/report", "nope"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusBadRequest)
	}

	f.store.saveReportErr = errors.New("db down")
	rr = httptest.NewRecorder()
	f.h.InternalReport(rr, request(http.MethodPost, "/internal/data/report", messaging.Job{ConnectionID: "c"}))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusInternalServerError)
	}

	f.store.drainErr = errors.New("db down")
	rr = httptest.NewRecorder()
	f.h.DrainReports(rr, request(http.MethodGet, "/", nil, "id", "c"))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}
