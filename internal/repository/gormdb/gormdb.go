// Package gormdb is the gorm-backed catalog used when the evidence catalog
// lives in PostgreSQL. The same code runs on SQLite for local setups.
package gormdb

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type cameraRow struct {
	ID       int64  `gorm:"primaryKey"`
	CameraID string `gorm:"not null;uniqueIndex"`
	Location string
	Ward     string
	City     string
}

func (cameraRow) TableName() string { return "cameras" }

type locationRow struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"not null;uniqueIndex"`
	Ward string
	City string
}

func (locationRow) TableName() string { return "legal_locations" }

type eventRow struct {
	ID              int64  `gorm:"primaryKey"`
	EventID         string `gorm:"not null;uniqueIndex"`
	CameraID        string `gorm:"not null;index"`
	Location        string
	LegalLocationID *int64
	Timestamp       time.Time `gorm:"not null;index"`
	Actor           string
	VideoKey        string
	PlateProcessed  bool
	CreatedAt       time.Time
	Plates          []plateRow `gorm:"foreignKey:EventID;references:EventID;constraint:OnDelete:CASCADE"`
}

func (eventRow) TableName() string { return "dumping_events" }

type plateRow struct {
	ID         int64  `gorm:"primaryKey"`
	EventID    string `gorm:"not null;index"`
	PlateID    int
	ImageKey   string
	Confidence float64
	FrameTime  string
}

func (plateRow) TableName() string { return "event_plates" }

// Open connects to the catalog and migrates its schema. driver is
// "postgres" or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported catalog driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if err := db.AutoMigrate(&cameraRow{}, &locationRow{}, &eventRow{}, &plateRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}
	return db, nil
}
