package eventstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dumpwatch/internal/dto"
)

// ========================================
// Test Setup Helpers
// ========================================

func newRecord(id string) *dto.EventRecord {
	return &dto.EventRecord{
		EventID:   id,
		CameraID:  "cam_01",
		Location:  "MG Road",
		Timestamp: "2024-01-01 12:00:00",
		Actor:     "truck",
	}
}

func setupEvent(t *testing.T) (*Store, string) {
	t.Helper()
	store := New(t.TempDir())
	dir := store.EventDir("cam_01", "e1")
	if err := store.Create(dir, newRecord("e1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return store, dir
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// ========================================
// Record Tests
// ========================================

func TestCreate_LaysOutDirectory(t *testing.T) {
	store, dir := setupEvent(t)

	if want := filepath.Join(store.Root(), "cam_01", "event_e1"); dir != want {
		t.Errorf("EventDir = %s, expected %s", dir, want)
	}
	for _, sub := range []string{DumpingDir, PlatesDir} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Errorf("expected %s directory, err=%v", sub, err)
		}
	}

	rec, err := store.Read(dir)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec.DumpingVideo != dto.DefaultVideoPath {
		t.Errorf("DumpingVideo = %q", rec.DumpingVideo)
	}
	if rec.Plates == nil || len(rec.Plates) != 0 || rec.PlateProcessed {
		t.Errorf("unexpected plate state: %+v", rec)
	}

	raw, _ := os.ReadFile(filepath.Join(dir, RecordFile))
	if !strings.Contains(string(raw), `"plates": []`) {
		t.Errorf("plates should be written as an empty list: %s", raw)
	}
}

func TestRead_MissingOrPartialIsNotReady(t *testing.T) {
	store := New(t.TempDir())
	dir := filepath.Join(store.Root(), "cam_01", "event_x")

	if _, err := store.Read(dir); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady for missing record, got %v", err)
	}

	writeFile(t, filepath.Join(dir, RecordFile))
	if _, err := store.Read(dir); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady for invalid JSON, got %v", err)
	}
}

func TestAppendPlate_AndFreeze(t *testing.T) {
	store, dir := setupEvent(t)

	for i := 1; i <= 3; i++ {
		err := store.AppendPlate(dir, dto.PlateRecord{PlateID: i, Image: "plates/p.jpg", Confidence: 0.8, FrameTime: "1.0s"})
		if err != nil {
			t.Fatalf("AppendPlate %d failed: %v", i, err)
		}
	}
	if err := store.MarkPlatesProcessed(dir); err != nil {
		t.Fatalf("MarkPlatesProcessed failed: %v", err)
	}

	err := store.AppendPlate(dir, dto.PlateRecord{PlateID: 4})
	if !errors.Is(err, ErrFrozen) {
		t.Errorf("expected ErrFrozen, got %v", err)
	}

	rec, _ := store.Read(dir)
	if len(rec.Plates) != 3 || !rec.PlateProcessed {
		t.Errorf("unexpected record after freeze: %+v", rec)
	}
	if rec.EventID != "e1" || rec.Actor != "truck" {
		t.Errorf("metadata changed by updates: %+v", rec)
	}
}

func TestUpdate_FailingMutationWritesNothing(t *testing.T) {
	store, dir := setupEvent(t)
	before, _ := os.ReadFile(filepath.Join(dir, RecordFile))

	_, err := store.Update(dir, func(rec *dto.EventRecord) error {
		rec.Actor = "bus"
		return errors.New("nope")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	after, _ := os.ReadFile(filepath.Join(dir, RecordFile))
	if string(before) != string(after) {
		t.Error("record changed despite failing mutation")
	}
}

func TestUpdate_ConcurrentAppendsAreNotLost(t *testing.T) {
	store, dir := setupEvent(t)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := store.AppendPlate(dir, dto.PlateRecord{PlateID: id}); err != nil {
				t.Errorf("AppendPlate failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	rec, err := store.Read(dir)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(rec.Plates) != 20 {
		t.Errorf("expected 20 plates, got %d", len(rec.Plates))
	}

	// no temp files left behind
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestEnsureEventID_AssignsOnce(t *testing.T) {
	store := New(t.TempDir())
	dir := filepath.Join(store.Root(), "cam_01", "event_legacy")
	rec := newRecord("")
	if err := store.Create(dir, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	calls := 0
	gen := func() string { calls++; return "assigned-1" }

	id, err := store.EnsureEventID(dir, gen)
	if err != nil || id != "assigned-1" {
		t.Fatalf("EnsureEventID = %q, %v", id, err)
	}
	id, err = store.EnsureEventID(dir, gen)
	if err != nil || id != "assigned-1" {
		t.Fatalf("second EnsureEventID = %q, %v", id, err)
	}
	if calls != 1 {
		t.Errorf("id generator called %d times", calls)
	}

	var onDisk dto.EventRecord
	raw, _ := os.ReadFile(filepath.Join(dir, RecordFile))
	json.Unmarshal(raw, &onDisk)
	if onDisk.EventID != "assigned-1" {
		t.Errorf("id not written back: %q", onDisk.EventID)
	}
}

// ========================================
// Clip Readiness Tests
// ========================================

func TestClipReady(t *testing.T) {
	store, dir := setupEvent(t)
	rec, _ := store.Read(dir)
	now := time.Now()

	ready, err := ClipReady(dir, rec, time.Minute, now)
	if err != nil || ready {
		t.Errorf("missing video should not be ready: %v %v", ready, err)
	}

	writeFile(t, filepath.Join(dir, dto.DefaultVideoPath))
	if err := MarkRecording(dir); err != nil {
		t.Fatalf("MarkRecording failed: %v", err)
	}
	if ready, _ := ClipReady(dir, rec, time.Minute, now); ready {
		t.Error("clip with fresh recording marker should not be ready")
	}
	if ready, _ := ClipReady(dir, rec, time.Minute, now.Add(2*time.Minute)); !ready {
		t.Error("stale recording marker should be ignored")
	}

	if err := ClearRecording(dir); err != nil {
		t.Fatalf("ClearRecording failed: %v", err)
	}
	if ready, _ := ClipReady(dir, rec, time.Minute, now); !ready {
		t.Error("finished clip should be ready")
	}
	if err := ClearRecording(dir); err != nil {
		t.Errorf("clearing twice should be harmless: %v", err)
	}
}

func TestVideoPath_RejectsEscapes(t *testing.T) {
	rec := &dto.EventRecord{DumpingVideo: "../../etc/passwd"}
	if _, err := VideoPath("/evidence/cam/event_1", rec); err == nil {
		t.Error("expected error for escaping path")
	}
	if _, err := PlatePath("/evidence/cam/event_1", "/abs.jpg"); err == nil {
		t.Error("expected error for absolute path")
	}
	got, err := PlatePath("/evidence/cam/event_1", "plates/plate_001.jpg")
	if err != nil || got != filepath.Join("/evidence/cam/event_1", "plates", "plate_001.jpg") {
		t.Errorf("PlatePath = %q, %v", got, err)
	}
}

// ========================================
// Walk Tests
// ========================================

func TestEvents_ListsValidDirectories(t *testing.T) {
	store := New(t.TempDir())
	store.Create(store.EventDir("cam_02", "b"), newRecord("b"))
	store.Create(store.EventDir("cam_01", "z"), newRecord("z"))
	store.Create(store.EventDir("cam_01", "a"), newRecord("a"))
	os.MkdirAll(filepath.Join(store.Root(), "cam_01", "not_an_event"), 0755)
	writeFile(t, filepath.Join(store.Root(), "README.txt"))

	refs, err := store.Events("")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	var got []string
	for _, r := range refs {
		got = append(got, r.CameraID+"/"+r.DirID)
	}
	if strings.Join(got, ",") != "cam_01/a,cam_01/z,cam_02/b" {
		t.Errorf("Events = %v", got)
	}

	refs, _ = store.Events("cam_02")
	if len(refs) != 1 || refs[0].DirID != "b" {
		t.Errorf("Events(cam_02) = %+v", refs)
	}

	refs, err = store.Events("missing")
	if err != nil || len(refs) != 0 {
		t.Errorf("Events(missing) = %+v, %v", refs, err)
	}
}

func TestEvents_RejectsCameraOutsideRoot(t *testing.T) {
	parent := t.TempDir()
	store := New(filepath.Join(parent, "evidence"))
	outside := New(parent)
	outside.Create(outside.EventDir("outside", "x"), newRecord("x"))

	for _, id := range []string{"../outside", "..", ".", "cam/../../outside", `cam\01`, "/abs"} {
		refs, err := store.Events(id)
		if !errors.Is(err, ErrInvalidCamera) {
			t.Errorf("Events(%q) = %+v, %v; expected ErrInvalidCamera", id, refs, err)
		}
	}
}

func TestCameras_MissingRoot(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "nope"))
	cams, err := store.Cameras()
	if err != nil || len(cams) != 0 {
		t.Errorf("Cameras = %v, %v", cams, err)
	}
}
