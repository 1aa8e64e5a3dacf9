package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"dumpwatch/internal/model"
)

// CameraRepository implements repository.CameraRepository for SQLite.
type CameraRepository struct {
	db *DB
}

func NewCameraRepository(db *DB) *CameraRepository {
	return &CameraRepository{db: db}
}

// GetOrCreate returns the camera row for cam.CameraID, creating it from cam when missing.
func (r *CameraRepository) GetOrCreate(ctx context.Context, cam *model.Camera) (*model.Camera, error) {
	r.db.Lock()
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT OR IGNORE INTO cameras (camera_id, location, ward, city) VALUES (?, ?, ?, ?)
	`, cam.CameraID, cam.Location, cam.Ward, cam.City)
	r.db.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to insert camera: %w", err)
	}

	got, err := r.GetByCameraID(ctx, cam.CameraID)
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, fmt.Errorf("camera %s vanished after insert", cam.CameraID)
	}
	return got, nil
}

// GetByCameraID retrieves a camera by its camera id.
func (r *CameraRepository) GetByCameraID(ctx context.Context, cameraID string) (*model.Camera, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var cam model.Camera
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, camera_id, location, ward, city FROM cameras WHERE camera_id = ?
	`, cameraID).Scan(&cam.ID, &cam.CameraID, &cam.Location, &cam.Ward, &cam.City)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	return &cam, nil
}

// List returns every camera ordered by camera id.
func (r *CameraRepository) List(ctx context.Context) ([]model.Camera, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `SELECT id, camera_id, location, ward, city FROM cameras ORDER BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()

	var cameras []model.Camera
	for rows.Next() {
		var cam model.Camera
		if err := rows.Scan(&cam.ID, &cam.CameraID, &cam.Location, &cam.Ward, &cam.City); err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		cameras = append(cameras, cam)
	}
	return cameras, rows.Err()
}
