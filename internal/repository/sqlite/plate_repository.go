package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"dumpwatch/internal/model"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// insertPlates adds the plates of one event inside tx.
func insertPlates(ctx context.Context, tx *sql.Tx, eventID string, plates []model.PlateDetection) error {
	if len(plates) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO event_plates (event_id, plate_id, image_key, confidence, frame_time)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range plates {
		if _, err := stmt.ExecContext(ctx, eventID, p.PlateID, p.ImageKey, p.Confidence, p.FrameTime); err != nil {
			return fmt.Errorf("failed to insert plate: %w", err)
		}
	}
	return nil
}

// platesByEventID retrieves the plates of an event ordered by plate id.
func platesByEventID(ctx context.Context, q queryer, eventID string) ([]model.PlateDetection, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, event_id, plate_id, image_key, confidence, frame_time
		FROM event_plates WHERE event_id = ? ORDER BY plate_id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plates: %w", err)
	}
	defer rows.Close()

	var plates []model.PlateDetection
	for rows.Next() {
		var p model.PlateDetection
		if err := rows.Scan(&p.ID, &p.EventID, &p.PlateID, &p.ImageKey, &p.Confidence, &p.FrameTime); err != nil {
			return nil, fmt.Errorf("failed to scan plate: %w", err)
		}
		plates = append(plates, p)
	}
	return plates, rows.Err()
}
