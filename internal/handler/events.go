package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/logger"
	"dumpwatch/internal/model"
	"dumpwatch/internal/repository"
	"dumpwatch/internal/service/catalog"
	"dumpwatch/internal/service/eventstore"
	"dumpwatch/internal/service/media"
)

const defaultPageSize = 24

// GetEventsHandler returns a page of catalogued events, newest first.
// With sync=1 the evidence tree is synchronised before listing.
func GetEventsHandler(sync *catalog.Synchronizer, eventRepo repository.EventRepository,
	locationRepo repository.LocationRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), defaultPageSize)

		filter := &dto.EventFilters{
			Camera:     q.Get("camera"),
			Actor:      q.Get("actor"),
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: endOfDay(parseDate(q.Get("dateBefore"))),
			Limit:      limit,
			Offset:     (page - 1) * limit,
		}

		data := dto.EventsData{CurrentPage: page, Limit: limit}

		if q.Get("sync") == "1" || q.Get("sync") == "true" {
			report, err := sync.Sync(r.Context(), filter.Camera)
			if err != nil {
				syncFailed(w, err, logger)
				return
			}
			data.Synced = &report
		}

		events, err := eventRepo.List(r.Context(), filter)
		if err != nil {
			logger.Error("Error querying events from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := eventRepo.Count(r.Context(), filter)
		if err != nil {
			logger.Error("Error counting events: %v", err)
			totalCount = len(events)
		}

		locationNames := map[int64]string{}
		if locations, err := locationRepo.List(r.Context()); err != nil {
			logger.Warning("Error listing locations: %v", err)
		} else {
			for _, l := range locations {
				locationNames[l.ID] = l.Name
			}
		}

		data.Events = make([]dto.EventInfo, 0, len(events))
		for _, ev := range events {
			info := toEventInfo(ev)
			if ev.LegalLocationID != nil {
				info.LegalLocation = locationNames[*ev.LegalLocationID]
			}
			data.Events = append(data.Events, info)
		}
		data.Length = totalCount
		data.TotalPages = (totalCount + limit - 1) / limit

		writeJSON(w, http.StatusOK, data, logger)
	}
}

// SyncEventsHandler handles POST /api/events/sync and returns the run report.
func SyncEventsHandler(sync *catalog.Synchronizer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		report, err := sync.Sync(r.Context(), r.URL.Query().Get("camera"))
		if err != nil {
			syncFailed(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report, logger)
	}
}

func syncFailed(w http.ResponseWriter, err error, logger *logger.Logger) {
	if errors.Is(err, eventstore.ErrInvalidCamera) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.Error("Error synchronising evidence: %v", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// EventVideoHandler streams the catalogued clip of ?event_id=.
func EventVideoHandler(eventRepo repository.EventRepository, store media.Store, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, ok := lookupEvent(w, r, eventRepo, logger)
		if !ok {
			return
		}
		if ev.VideoKey == "" {
			http.Error(w, "Event has no clip", http.StatusNotFound)
			return
		}
		serveMedia(w, r, store, ev.VideoKey, logger)
	}
}

// PlateImageHandler serves the crop ?plate_id= of ?event_id=.
func PlateImageHandler(eventRepo repository.EventRepository, store media.Store, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, ok := lookupEvent(w, r, eventRepo, logger)
		if !ok {
			return
		}
		plateID, err := strconv.Atoi(r.URL.Query().Get("plate_id"))
		if err != nil {
			http.Error(w, "plate_id required", http.StatusBadRequest)
			return
		}
		for _, p := range ev.Plates {
			if p.PlateID == plateID && p.ImageKey != "" {
				serveMedia(w, r, store, p.ImageKey, logger)
				return
			}
		}
		http.NotFound(w, r)
	}
}

// DeleteEventHandler removes a catalog entry and its media copies.
func DeleteEventHandler(sync *catalog.Synchronizer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete && r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		eventID := r.URL.Query().Get("event_id")
		if eventID == "" {
			http.Error(w, "event_id required", http.StatusBadRequest)
			return
		}
		if err := sync.Delete(r.Context(), eventID); err != nil {
			logger.Error("Failed to delete event %s: %v", eventID, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		logger.Info("Deleted event: %s", eventID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "event_id": eventID}, logger)
	}
}

// CamerasHandler lists the cameras known to the catalog.
func CamerasHandler(cameraRepo repository.CameraRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cameras, err := cameraRepo.List(r.Context())
		if err != nil {
			logger.Error("Error listing cameras: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if cameras == nil {
			cameras = []model.Camera{}
		}
		writeJSON(w, http.StatusOK, cameras, logger)
	}
}

func lookupEvent(w http.ResponseWriter, r *http.Request, eventRepo repository.EventRepository, logger *logger.Logger) (*model.DumpingEvent, bool) {
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		http.Error(w, "event_id required", http.StatusBadRequest)
		return nil, false
	}
	ev, err := eventRepo.GetByEventID(r.Context(), eventID)
	if err != nil {
		logger.Error("Error loading event %s: %v", eventID, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	if ev == nil {
		http.NotFound(w, r)
		return nil, false
	}
	return ev, true
}

func serveMedia(w http.ResponseWriter, r *http.Request, store media.Store, key string, logger *logger.Logger) {
	obj, err := store.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		logger.Error("Failed to open media %s: %v", key, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer obj.Body.Close()

	name := path.Base(key)
	w.Header().Set("Content-Type", media.ContentType(name))
	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, obj.ModifiedAt, rs)
		return
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		logger.Debug("Media stream %s interrupted: %v", key, err)
	}
}

func toEventInfo(ev model.DumpingEvent) dto.EventInfo {
	info := dto.EventInfo{
		EventID:        ev.EventID,
		Camera:         ev.CameraID,
		Location:       ev.Location,
		Timestamp:      ev.Timestamp,
		Actor:          ev.Actor,
		PlateProcessed: ev.PlateProcessed,
		Plates:         make([]dto.PlateInfo, 0, len(ev.Plates)),
	}
	id := url.QueryEscape(ev.EventID)
	if ev.VideoKey != "" {
		info.VideoURL = "/api/events/video?event_id=" + id
	}
	for _, p := range ev.Plates {
		plate := dto.PlateInfo{PlateID: p.PlateID, Confidence: p.Confidence, FrameTime: p.FrameTime}
		if p.ImageKey != "" {
			plate.ImageURL = "/api/events/plate?event_id=" + id + "&plate_id=" + strconv.Itoa(p.PlateID)
		}
		info.Plates = append(info.Plates, plate)
	}
	return info
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date in the HTML input format "2006-01-02" as local midnight.
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Add(24*time.Hour - time.Second)
}
