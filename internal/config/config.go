package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	Password string

	EvidenceRoot   string
	MediaRoot      string
	LogDirectory   string
	LogLevel       string
	CameraRegistry string
	CameraSources  []string

	VehicleModelPath  string
	VehicleLabelsPath string
	WasteModelPath    string
	WasteLabelsPath   string
	PlateModelPath    string
	VehicleConfidence float64
	WasteConfidence   float64
	PlateConfidence   float64
	ActorLabels       []string
	WasteLabel        string
	GroundRatio       float64 // waste boxes whose bottom edge is above H*GroundRatio are ignored, 0 disables

	ActorLeaveTime   time.Duration
	WastePersistTime time.Duration
	ResetDelay       time.Duration
	VideoDuration    time.Duration
	VideoCodec       string
	VideoFPS         float64

	IoUThreshold      float64
	DistanceThreshold float64
	TrackMaxAge       time.Duration
	PlatePadX         float64
	PlatePadY         float64
	ScaleFactor       float64
	PlateScanInterval time.Duration

	CatalogDriver string
	CatalogDSN    string
	SyncInterval  time.Duration // 0 means on-demand only

	MediaBackend string
	S3Bucket     string
	S3Prefix     string

	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	BroadcastFrames bool
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnvAsInt("PORT", 8080),
		Password: getEnv("PASSWORD", "changeme"),

		EvidenceRoot:   getEnv("EVIDENCE_ROOT", filepath.Join(".", "evidence")),
		MediaRoot:      getEnv("MEDIA_ROOT", filepath.Join(".", "media")),
		LogDirectory:   getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		CameraRegistry: getEnv("CAMERA_REGISTRY", filepath.Join(".", "cameras.json")),
		CameraSources:  getEnvAsList("CAMERA_SOURCES", nil),

		VehicleModelPath:  getEnv("VEHICLE_MODEL_PATH", filepath.Join(".", "models", "yolov8n.onnx")),
		VehicleLabelsPath: getEnv("VEHICLE_LABELS_PATH", filepath.Join(".", "models", "coco.names")),
		WasteModelPath:    getEnv("WASTE_MODEL_PATH", filepath.Join(".", "models", "waste.onnx")),
		WasteLabelsPath:   getEnv("WASTE_LABELS_PATH", filepath.Join(".", "models", "waste.names")),
		PlateModelPath:    getEnv("PLATE_MODEL_PATH", filepath.Join(".", "models", "plate.onnx")),
		VehicleConfidence: getEnvAsFloat("VEHICLE_CONF", 0.4),
		WasteConfidence:   getEnvAsFloat("WASTE_CONF", 0.25),
		PlateConfidence:   getEnvAsFloat("PLATE_CONF", 0.4),
		ActorLabels:       getEnvAsList("ACTOR_LABELS", []string{"car", "truck", "bus", "motorcycle"}),
		WasteLabel:        getEnv("WASTE_LABEL", "waste"),
		GroundRatio:       getEnvAsFloat("GROUND_RATIO", 0.55),

		ActorLeaveTime:   getEnvAsSeconds("ACTOR_LEAVE_TIME", time.Second),
		WastePersistTime: getEnvAsSeconds("WASTE_PERSIST_TIME", 2*time.Second),
		ResetDelay:       getEnvAsSeconds("RESET_DELAY", 8*time.Second),
		VideoDuration:    getEnvAsInterval("VIDEO_DURATION", 10*time.Second),
		VideoCodec:       getEnv("VIDEO_CODEC", "mp4v"),
		VideoFPS:         getEnvAsFloat("VIDEO_FPS", 20),

		IoUThreshold:      getEnvAsFloat("IOU_THRES", 0.3),
		DistanceThreshold: getEnvAsFloat("DIST_THRES", 80),
		TrackMaxAge:       getEnvAsInterval("TRACK_MAX_AGE", 5*time.Second),
		PlatePadX:         getEnvAsFloat("PLATE_PAD_X", 0.35),
		PlatePadY:         getEnvAsFloat("PLATE_PAD_Y", 0.45),
		ScaleFactor:       getEnvAsFloat("SCALE_FACTOR", 2.5),
		PlateScanInterval: getEnvAsInterval("PLATE_SCAN_INTERVAL", 3*time.Second),

		CatalogDriver: getEnv("CATALOG_DRIVER", "sqlite"),
		CatalogDSN:    getEnv("CATALOG_DSN", filepath.Join(".", "data", "catalog.db")),
		SyncInterval:  getEnvAsSeconds("SYNC_INTERVAL", time.Minute),

		MediaBackend: getEnv("MEDIA_BACKEND", "fs"),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		S3Prefix:     getEnv("S3_PREFIX", ""),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "dumpwatch"),
		MQTTTopic:    getEnv("MQTT_TOPIC", "dumpwatch/events"),

		BroadcastFrames: getEnvAsBool("BROADCAST_FRAMES", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsSeconds accepts fractional seconds ("2.5") or a Go duration ("2500ms").
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil && seconds >= 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	return defaultValue
}

// getEnvAsInterval is getEnvAsSeconds for values that must be positive.
func getEnvAsInterval(key string, defaultValue time.Duration) time.Duration {
	if d := getEnvAsSeconds(key, defaultValue); d > 0 {
		return d
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
