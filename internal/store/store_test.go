package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/models"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		s, err := New(dbPath)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		s.Close()
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	run, err := s.CreateRun("clean", true, from, to)
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.ID == "" {
		t.Error("Run ID should not be empty")
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil")
	}
	if got.Command != "clean" || !got.DryRun {
		t.Errorf("Unexpected run: %+v", got)
	}
	if !got.From.Equal(from) || !got.To.Equal(to) {
		t.Errorf("Range not preserved: %s - %s", got.From, got.To)
	}
	if got.EndedAt != nil {
		t.Error("New run should not be ended")
	}

	if err := s.FinishRun(run.ID, "2 deleted"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	got, _ = s.GetRun(run.ID)
	if got.EndedAt == nil {
		t.Error("Finished run should have an end time")
	}
	if got.Summary != "2 deleted" {
		t.Errorf("Expected summary '2 deleted', got %q", got.Summary)
	}

	if err := s.FinishRun("missing", "x"); err == nil {
		t.Error("FinishRun on an unknown run should fail")
	}
	missing, err := s.GetRun("missing")
	if err != nil || missing != nil {
		t.Errorf("GetRun(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	now := time.Now()
	for _, cmd := range []string{"archive", "clean", "clean"} {
		if _, err := s.CreateRun(cmd, false, now.Add(-time.Hour), now); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}

	runs, err := s.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("Expected 3 runs, got %d", len(runs))
	}

	runs, err = s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("Expected 2 runs with limit, got %d", len(runs))
	}
}

func TestDecisions(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	run, err := s.CreateRun("clean", false, time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	writes := []struct {
		disposition models.Disposition
		uri         string
		size        int64
	}{
		{models.DispositionDeleted, "a", 100},
		{models.DispositionDeleted, "b", 50},
		{models.DispositionSkipped, "c", 7},
		{models.DispositionFailed, "d", 1},
	}
	for _, w := range writes {
		d, err := s.WriteDecision(run.ID, w.disposition, w.uri, "libs", w.size, "hash", "")
		if err != nil {
			t.Fatalf("WriteDecision failed: %v", err)
		}
		if d.ID == "" {
			t.Error("Decision ID should not be empty")
		}
	}

	decisions, err := s.ListDecisions(run.ID)
	if err != nil {
		t.Fatalf("ListDecisions failed: %v", err)
	}
	if len(decisions) != 4 {
		t.Fatalf("Expected 4 decisions, got %d", len(decisions))
	}
	if decisions[0].URI != "a" || decisions[3].URI != "d" {
		t.Errorf("Decisions out of order: %s ... %s", decisions[0].URI, decisions[3].URI)
	}

	totals, err := s.SummarizeRun(run.ID)
	if err != nil {
		t.Fatalf("SummarizeRun failed: %v", err)
	}
	byDisposition := make(map[models.Disposition]DispositionTotal)
	for _, tot := range totals {
		byDisposition[tot.Disposition] = tot
	}
	if got := byDisposition[models.DispositionDeleted]; got.Count != 2 || got.Bytes != 150 {
		t.Errorf("Deleted totals = %+v, want 2 / 150", got)
	}
	if got := byDisposition[models.DispositionSkipped]; got.Count != 1 || got.Bytes != 7 {
		t.Errorf("Skipped totals = %+v, want 1 / 7", got)
	}

	other, err := s.ListDecisions("other-run")
	if err != nil {
		t.Fatalf("ListDecisions failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected no decisions for another run, got %d", len(other))
	}
}

func newTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
