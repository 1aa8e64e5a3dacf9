package repository

import (
	"context"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/model"
)

// EventRepository defines the catalog operations on dumping events.
type EventRepository interface {
	// Create operations
	// Insert stores ev with its plates. It returns false without error when an
	// entry with the same event id already exists.
	Insert(ctx context.Context, ev *model.DumpingEvent) (bool, error)

	// Read operations
	GetByEventID(ctx context.Context, eventID string) (*model.DumpingEvent, error)
	List(ctx context.Context, filter *dto.EventFilters) ([]model.DumpingEvent, error)
	Count(ctx context.Context, filter *dto.EventFilters) (int, error)

	// Update operations
	ReplacePlates(ctx context.Context, eventID string, plates []model.PlateDetection, processed bool) error

	// Delete operations
	Delete(ctx context.Context, eventID string) error
}

// CameraRepository defines the catalog operations on cameras.
type CameraRepository interface {
	GetOrCreate(ctx context.Context, cam *model.Camera) (*model.Camera, error)
	GetByCameraID(ctx context.Context, cameraID string) (*model.Camera, error)
	List(ctx context.Context) ([]model.Camera, error)
}

// LocationRepository defines the catalog operations on legal-disposal locations.
type LocationRepository interface {
	Insert(ctx context.Context, loc *model.LegalLocation) (int64, error)
	FindByName(ctx context.Context, name string) (*model.LegalLocation, error)
	List(ctx context.Context) ([]model.LegalLocation, error)
}
