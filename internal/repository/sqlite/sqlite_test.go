package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/model"
)

// ========================================
// Test Setup Helpers
// ========================================

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "catalog_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tempDir, "test.db")
	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}

	return db, cleanup
}

func newEvent(id string, ts time.Time) *model.DumpingEvent {
	return &model.DumpingEvent{
		EventID:   id,
		CameraID:  "cam_01",
		Location:  "MG Road",
		Timestamp: ts,
		Actor:     "truck",
		VideoKey:  "dumping_videos/cam_01/" + id + "/dumping.mp4",
	}
}

// ========================================
// Database Tests
// ========================================

func TestDatabase_Connection(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "db_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "nested", "test.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

func TestDatabase_ReopenKeepsData(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")
	ctx := context.Background()

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if _, err := NewEventRepository(db).Insert(ctx, newEvent("e1", time.Now())); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	db.Close()

	db, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	count, err := NewEventRepository(db).Count(ctx, nil)
	if err != nil || count != 1 {
		t.Errorf("Count after reopen = %d, %v", count, err)
	}
}

// ========================================
// Event Repository Tests
// ========================================

func TestEventRepository_InsertIsIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEventRepository(db)
	ctx := context.Background()
	ev := newEvent("20240101_120000_aaaa0000", time.Now())
	ev.Plates = []model.PlateDetection{{PlateID: 1, ImageKey: "plate_images/a.jpg", Confidence: 0.9, FrameTime: "1.0s"}}

	inserted, err := repo.Insert(ctx, ev)
	if err != nil || !inserted {
		t.Fatalf("First insert = %v, %v", inserted, err)
	}
	if ev.ID <= 0 {
		t.Errorf("Expected positive ID, got %d", ev.ID)
	}

	inserted, err = repo.Insert(ctx, newEvent("20240101_120000_aaaa0000", time.Now()))
	if err != nil {
		t.Fatalf("Second insert failed: %v", err)
	}
	if inserted {
		t.Error("Second insert of the same event id should be ignored")
	}

	count, _ := repo.Count(ctx, &dto.EventFilters{})
	if count != 1 {
		t.Errorf("Expected 1 event, got %d", count)
	}

	got, _ := repo.GetByEventID(ctx, ev.EventID)
	if len(got.Plates) != 1 {
		t.Errorf("Expected plates of the first insert to survive, got %d", len(got.Plates))
	}
}

func TestEventRepository_GetByEventID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEventRepository(db)
	locs := NewLocationRepository(db)
	ctx := context.Background()

	locID, err := locs.Insert(ctx, &model.LegalLocation{Name: "MG Road"})
	if err != nil {
		t.Fatalf("Location insert failed: %v", err)
	}

	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)
	ev := newEvent("e1", ts)
	ev.LegalLocationID = &locID
	ev.PlateProcessed = true
	repo.Insert(ctx, ev)

	got, err := repo.GetByEventID(ctx, "e1")
	if err != nil {
		t.Fatalf("GetByEventID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected event, got nil")
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, expected %v", got.Timestamp, ts)
	}
	if got.LegalLocationID == nil || *got.LegalLocationID != locID {
		t.Errorf("LegalLocationID = %v, expected %d", got.LegalLocationID, locID)
	}
	if !got.PlateProcessed || got.Actor != "truck" || got.VideoKey != ev.VideoKey {
		t.Errorf("unexpected event: %+v", got)
	}

	missing, err := repo.GetByEventID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for missing event, got %v, %v", missing, err)
	}
}

func TestEventRepository_ListNewestFirst(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEventRepository(db)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)

	repo.Insert(ctx, newEvent("b", base))
	repo.Insert(ctx, newEvent("c", base.Add(time.Hour)))
	repo.Insert(ctx, newEvent("a", base)) // same timestamp as b
	other := newEvent("d", base.Add(2*time.Hour))
	other.CameraID = "cam_02"
	repo.Insert(ctx, other)

	all, err := repo.List(ctx, &dto.EventFilters{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var ids string
	for _, ev := range all {
		ids += ev.EventID
	}
	if ids != "dcba" {
		t.Errorf("List order = %s, expected dcba", ids)
	}

	cam1, _ := repo.List(ctx, &dto.EventFilters{Camera: "cam_01"})
	if len(cam1) != 3 {
		t.Errorf("Expected 3 events for cam_01, got %d", len(cam1))
	}

	page, _ := repo.List(ctx, &dto.EventFilters{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].EventID != "c" {
		t.Errorf("unexpected page: %+v", page)
	}

	recent, _ := repo.List(ctx, &dto.EventFilters{DateAfter: base.Add(30 * time.Minute)})
	if len(recent) != 2 {
		t.Errorf("Expected 2 events after cutoff, got %d", len(recent))
	}
}

func TestEventRepository_ReplacePlates(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEventRepository(db)
	ctx := context.Background()
	repo.Insert(ctx, newEvent("e1", time.Now()))

	plates := []model.PlateDetection{
		{PlateID: 2, ImageKey: "b.jpg", Confidence: 0.7, FrameTime: "2.0s"},
		{PlateID: 1, ImageKey: "a.jpg", Confidence: 0.8, FrameTime: "1.0s"},
	}
	if err := repo.ReplacePlates(ctx, "e1", plates, true); err != nil {
		t.Fatalf("ReplacePlates failed: %v", err)
	}

	got, _ := repo.GetByEventID(ctx, "e1")
	if !got.PlateProcessed || len(got.Plates) != 2 {
		t.Fatalf("unexpected event after refresh: %+v", got)
	}
	if got.Plates[0].PlateID != 1 || got.Plates[0].EventID != "e1" {
		t.Errorf("plates not ordered by plate id: %+v", got.Plates)
	}

	if err := repo.ReplacePlates(ctx, "e1", plates[:1], true); err != nil {
		t.Fatalf("ReplacePlates failed: %v", err)
	}
	got, _ = repo.GetByEventID(ctx, "e1")
	if len(got.Plates) != 1 {
		t.Errorf("Expected 1 plate after second replace, got %d", len(got.Plates))
	}
}

func TestEventRepository_Delete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEventRepository(db)
	ctx := context.Background()
	ev := newEvent("e1", time.Now())
	ev.Plates = []model.PlateDetection{{PlateID: 1}}
	repo.Insert(ctx, ev)

	if err := repo.Delete(ctx, "e1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := repo.GetByEventID(ctx, "e1"); got != nil {
		t.Error("Event should be deleted")
	}
	plates, _ := platesByEventID(ctx, db.Conn(), "e1")
	if len(plates) != 0 {
		t.Errorf("Expected plates to be deleted, got %d", len(plates))
	}
}

func TestEventRepository_ConcurrentInserts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEventRepository(db)
	ctx := context.Background()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			// every id is inserted twice
			ev := newEvent(fmt.Sprintf("e%d", idx%5), time.Now())
			if _, err := repo.Insert(ctx, ev); err != nil {
				t.Errorf("Concurrent insert %d failed: %v", idx, err)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	count, _ := repo.Count(ctx, nil)
	if count != 5 {
		t.Errorf("Expected 5 events, got %d", count)
	}
}

// ========================================
// Camera and Location Repository Tests
// ========================================

func TestCameraRepository_GetOrCreate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewCameraRepository(db)
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, &model.Camera{CameraID: "cam_01", Location: "MG Road", Ward: "12", City: "Kochi"})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	second, err := repo.GetOrCreate(ctx, &model.Camera{CameraID: "cam_01", Location: "ignored"})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if first.ID != second.ID || second.Location != "MG Road" || second.City != "Kochi" {
		t.Errorf("GetOrCreate should return the existing row: %+v vs %+v", first, second)
	}

	cams, _ := repo.List(ctx)
	if len(cams) != 1 {
		t.Errorf("Expected 1 camera, got %d", len(cams))
	}

	if cam, err := repo.GetByCameraID(ctx, "cam_99"); cam != nil || err != nil {
		t.Errorf("Expected nil, nil for unknown camera, got %v, %v", cam, err)
	}
}

func TestLocationRepository_FindByName(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewLocationRepository(db)
	ctx := context.Background()

	id, err := repo.Insert(ctx, &model.LegalLocation{Name: "Depot 4", Ward: "3", City: "Kochi"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := repo.Insert(ctx, &model.LegalLocation{Name: "Depot 4"}); err == nil {
		t.Error("Expected error for duplicate location name")
	}

	loc, err := repo.FindByName(ctx, "Depot 4")
	if err != nil || loc == nil || loc.ID != id || loc.Ward != "3" {
		t.Errorf("FindByName = %+v, %v", loc, err)
	}

	missing, err := repo.FindByName(ctx, "Nowhere")
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for unknown location, got %v, %v", missing, err)
	}

	all, _ := repo.List(ctx)
	if len(all) != 1 {
		t.Errorf("Expected 1 location, got %d", len(all))
	}
}
