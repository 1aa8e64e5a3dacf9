package app

import (
	"context"
	"fmt"

	"dumpwatch/internal/config"
	"dumpwatch/internal/repository"
	"dumpwatch/internal/repository/gormdb"
	"dumpwatch/internal/repository/sqlite"
	"dumpwatch/internal/service/media"
)

// Catalog bundles the repositories of one catalog backend.
type Catalog struct {
	Events    repository.EventRepository
	Cameras   repository.CameraRepository
	Locations repository.LocationRepository
	close     func() error
}

func (c *Catalog) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// OpenCatalog opens the backend named by CATALOG_DRIVER:
//
//	sqlite       database/sql with go-sqlite3 (default)
//	postgres     gorm on PostgreSQL, CATALOG_DSN is a libpq DSN
//	gorm-sqlite  gorm on SQLite
func OpenCatalog(cfg *config.Config) (*Catalog, error) {
	switch cfg.CatalogDriver {
	case "", "sqlite":
		db, err := sqlite.New(cfg.CatalogDSN)
		if err != nil {
			return nil, err
		}
		return &Catalog{
			Events:    sqlite.NewEventRepository(db),
			Cameras:   sqlite.NewCameraRepository(db),
			Locations: sqlite.NewLocationRepository(db),
			close:     db.Close,
		}, nil

	case "postgres", "gorm-sqlite":
		driver := cfg.CatalogDriver
		if driver == "gorm-sqlite" {
			driver = "sqlite"
		}
		db, err := gormdb.Open(driver, cfg.CatalogDSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get catalog connection: %w", err)
		}
		return &Catalog{
			Events:    gormdb.NewEventRepository(db),
			Cameras:   gormdb.NewCameraRepository(db),
			Locations: gormdb.NewLocationRepository(db),
			close:     sqlDB.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported catalog driver %q", cfg.CatalogDriver)
}

// OpenMedia opens the store named by MEDIA_BACKEND: fs (default) or s3.
func OpenMedia(ctx context.Context, cfg *config.Config) (media.Store, error) {
	switch cfg.MediaBackend {
	case "", "fs":
		return media.NewFileStore(cfg.MediaRoot)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the s3 media backend")
		}
		return media.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix)
	}
	return nil, fmt.Errorf("unsupported media backend %q", cfg.MediaBackend)
}
