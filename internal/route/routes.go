package route

import (
	"net/http"
	"os"
	"path/filepath"

	"dumpwatch/internal/config"
	"dumpwatch/internal/handler"
	"dumpwatch/internal/logger"
	"dumpwatch/internal/middleware"
	"dumpwatch/internal/repository"
	"dumpwatch/internal/service/catalog"
	"dumpwatch/internal/service/media"
	"dumpwatch/internal/service/websocket"
)

// Repositories groups the catalog repositories used by the API.
type Repositories struct {
	Events    repository.EventRepository
	Cameras   repository.CameraRepository
	Locations repository.LocationRepository
}

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", filepath.Clean("/"+path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(cfg *config.Config, logger *logger.Logger, hub *websocket.HubService,
	sync *catalog.Synchronizer, repos Repositories, store media.Store) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// API endpoints
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(hub, logger))
	mux.HandleFunc("/api/events", handler.GetEventsHandler(sync, repos.Events, repos.Locations, logger))
	mux.HandleFunc("/api/events/sync", handler.SyncEventsHandler(sync, logger))
	mux.HandleFunc("/api/events/video", handler.EventVideoHandler(repos.Events, store, logger))
	mux.HandleFunc("/api/events/plate", handler.PlateImageHandler(repos.Events, store, logger))
	mux.HandleFunc("/api/events/delete", handler.DeleteEventHandler(sync, logger))
	mux.HandleFunc("/api/cameras", handler.CamerasHandler(repos.Cameras, logger))

	// Log endpoints
	for _, name := range []string{"info", "warning", "error"} {
		file := name + ".log"
		mux.HandleFunc("/logs/"+name, handler.ShowLogsHandler(cfg, file))
		mux.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(logger, file))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /events -> /static/events.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	return middleware.AuthMiddleware(mux)
}
