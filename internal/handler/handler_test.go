package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dumpwatch/internal/config"
	"dumpwatch/internal/dto"
	"dumpwatch/internal/logger"
	"dumpwatch/internal/repository/sqlite"
	"dumpwatch/internal/service/catalog"
	"dumpwatch/internal/service/eventstore"
	"dumpwatch/internal/service/media"
	"dumpwatch/internal/service/registry"

	"github.com/stretchr/testify/require"
)

type env struct {
	store   *eventstore.Store
	media   *media.FileStore
	events  *sqlite.EventRepository
	cameras *sqlite.CameraRepository
	locs    *sqlite.LocationRepository
	sync    *catalog.Synchronizer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mediaStore, err := media.NewFileStore(t.TempDir())
	require.NoError(t, err)
	reg, err := registry.New(nil)
	require.NoError(t, err)

	e := &env{
		store:   eventstore.New(t.TempDir()),
		media:   mediaStore,
		events:  sqlite.NewEventRepository(db),
		cameras: sqlite.NewCameraRepository(db),
		locs:    sqlite.NewLocationRepository(db),
	}
	e.sync = catalog.NewSynchronizer(e.store, e.events, e.cameras, e.locs, mediaStore, reg, logger.NewNop())
	return e
}

func (e *env) addEvent(t *testing.T, cam, id, ts string) {
	t.Helper()
	dir := e.store.EventDir(cam, id)
	rec := &dto.EventRecord{
		EventID:        id,
		CameraID:       cam,
		Location:       "MG Road",
		Timestamp:      ts,
		Actor:          "truck",
		PlateProcessed: true,
		Plates:         []dto.PlateRecord{{PlateID: 1, Image: "plates/plate_001.jpg", Confidence: 0.8, FrameTime: "1.5s"}},
	}
	require.NoError(t, e.store.Create(dir, rec))
	require.NoError(t, os.WriteFile(filepath.Join(dir, dto.DefaultVideoPath), []byte("clip-"+id), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plates", "plate_001.jpg"), []byte("jpeg"), 0644))
}

func TestGetEventsHandler_SyncAndPaginate(t *testing.T) {
	e := newEnv(t)
	e.addEvent(t, "cam_01", "20250101_100000_aaaaaaaa", "2025-01-01 10:00:00")
	e.addEvent(t, "cam_01", "20250101_110000_bbbbbbbb", "2025-01-01 11:00:00")
	e.addEvent(t, "cam_02", "20250101_120000_cccccccc", "2025-01-01 12:00:00")

	h := GetEventsHandler(e.sync, e.events, e.locs, logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/events?sync=1&limit=2", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var data dto.EventsData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	require.NotNil(t, data.Synced)
	require.Equal(t, 3, data.Synced.Ingested)
	require.Equal(t, 3, data.Length)
	require.Equal(t, 2, data.TotalPages)
	require.Len(t, data.Events, 2)
	require.Equal(t, "20250101_120000_cccccccc", data.Events[0].EventID)
	require.Equal(t, "/api/events/video?event_id=20250101_120000_cccccccc", data.Events[0].VideoURL)
	require.Len(t, data.Events[0].Plates, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/events?camera=cam_01&page=2&limit=1", nil)
	rec = httptest.NewRecorder()
	h(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	data = dto.EventsData{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	require.Nil(t, data.Synced)
	require.Equal(t, 2, data.Length)
	require.Len(t, data.Events, 1)
	require.Equal(t, "20250101_100000_aaaaaaaa", data.Events[0].EventID)
}

func TestEventTimestampFormat(t *testing.T) {
	e := newEnv(t)
	e.addEvent(t, "cam_01", "20250101_100000_aaaaaaaa", "2025-01-01 10:00:00")
	_, err := e.sync.Sync(context.Background(), "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	GetEventsHandler(e.sync, e.events, e.locs, logger.NewNop())(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	var raw struct {
		Events []map[string]interface{} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Equal(t, "2025-01-01 10:00:00", raw.Events[0]["timestamp"])
}

func TestSyncEventsHandler(t *testing.T) {
	e := newEnv(t)
	e.addEvent(t, "cam_01", "20250101_100000_aaaaaaaa", "2025-01-01 10:00:00")
	h := SyncEventsHandler(e.sync, logger.NewNop())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/events/sync", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/events/sync", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report dto.SyncReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, 1, report.Ingested)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/events/sync?camera=..%2Foutside", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventVideoAndPlateHandlers(t *testing.T) {
	e := newEnv(t)
	e.addEvent(t, "cam_01", "20250101_100000_aaaaaaaa", "2025-01-01 10:00:00")
	_, err := e.sync.Sync(context.Background(), "")
	require.NoError(t, err)

	video := EventVideoHandler(e.events, e.media, logger.NewNop())
	rec := httptest.NewRecorder()
	video(rec, httptest.NewRequest(http.MethodGet, "/api/events/video?event_id=20250101_100000_aaaaaaaa", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	body, _ := io.ReadAll(rec.Body)
	require.Equal(t, "clip-20250101_100000_aaaaaaaa", string(body))

	rec = httptest.NewRecorder()
	video(rec, httptest.NewRequest(http.MethodGet, "/api/events/video?event_id=missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	video(rec, httptest.NewRequest(http.MethodGet, "/api/events/video", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	plate := PlateImageHandler(e.events, e.media, logger.NewNop())
	rec = httptest.NewRecorder()
	plate(rec, httptest.NewRequest(http.MethodGet, "/api/events/plate?event_id=20250101_100000_aaaaaaaa&plate_id=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "jpeg", rec.Body.String())

	rec = httptest.NewRecorder()
	plate(rec, httptest.NewRequest(http.MethodGet, "/api/events/plate?event_id=20250101_100000_aaaaaaaa&plate_id=7", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteEventHandler(t *testing.T) {
	e := newEnv(t)
	e.addEvent(t, "cam_01", "20250101_100000_aaaaaaaa", "2025-01-01 10:00:00")
	_, err := e.sync.Sync(context.Background(), "")
	require.NoError(t, err)

	h := DeleteEventHandler(e.sync, logger.NewNop())
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodDelete, "/api/events/delete?event_id=20250101_100000_aaaaaaaa", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	ev, err := e.events.GetByEventID(context.Background(), "20250101_100000_aaaaaaaa")
	require.NoError(t, err)
	require.Nil(t, ev)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodDelete, "/api/events/delete", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCamerasHandler(t *testing.T) {
	e := newEnv(t)
	h := CamerasHandler(e.cameras, logger.NewNop())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/cameras", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())

	e.addEvent(t, "cam_01", "20250101_100000_aaaaaaaa", "2025-01-01 10:00:00")
	_, err := e.sync.Sync(context.Background(), "")
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/cameras", nil))
	require.Contains(t, rec.Body.String(), "cam_01")
}

func TestLoginHandler(t *testing.T) {
	cfg := &config.Config{Password: "secret"}
	h := LoginHandler(cfg, logger.NewNop())

	form := url.Values{"password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	form = url.Values{"password": {"secret"}}
	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, AuthCookie, cookies[0].Name)
	require.Equal(t, "true", cookies[0].Value)

	rec = httptest.NewRecorder()
	LogoutHandler(rec, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestLogsHandlers(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{LogDirectory: dir}

	rec := httptest.NewRecorder()
	ShowLogsHandler(cfg, "info.log")(rec, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "info.log"), []byte("line\n"), 0644))
	rec = httptest.NewRecorder()
	ShowLogsHandler(cfg, "info.log")(rec, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "line\n", rec.Body.String())
}
