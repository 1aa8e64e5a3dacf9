package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/model"
)

// EventRepository implements repository.EventRepository for SQLite.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, event_id, camera_id, location, legal_location_id, timestamp, actor, video_key, plate_processed, created_at`

// Insert adds a new event with its plates. The UNIQUE event_id constraint
// turns a second insert of the same event into a no-op.
func (r *EventRepository) Insert(ctx context.Context, ev *model.DumpingEvent) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO dumping_events
			(event_id, camera_id, location, legal_location_id, timestamp, actor, video_key, plate_processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.EventID, ev.CameraID, ev.Location, nullInt64(ev.LegalLocationID), ev.Timestamp.UTC(),
		ev.Actor, ev.VideoKey, ev.PlateProcessed)
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if id, err := result.LastInsertId(); err == nil {
		ev.ID = id
	}
	if err := insertPlates(ctx, tx, ev.EventID, ev.Plates); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit event: %w", err)
	}
	return true, nil
}

// GetByEventID retrieves an event with its plates.
func (r *EventRepository) GetByEventID(ctx context.Context, eventID string) (*model.DumpingEvent, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `SELECT `+eventColumns+` FROM dumping_events WHERE event_id = ?`, eventID)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	if ev.Plates, err = platesByEventID(ctx, r.db.Conn(), eventID); err != nil {
		return nil, err
	}
	return ev, nil
}

// List retrieves events newest first. Events sharing a timestamp are ordered
// by event id so the listing is stable.
func (r *EventRepository) List(ctx context.Context, filter *dto.EventFilters) ([]model.DumpingEvent, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	query := `SELECT ` + eventColumns + ` FROM dumping_events WHERE 1=1` + where +
		` ORDER BY timestamp DESC, event_id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	var events []model.DumpingEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	for i := range events {
		if events[i].Plates, err = platesByEventID(ctx, r.db.Conn(), events[i].EventID); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// Count returns the number of events matching the filter.
func (r *EventRepository) Count(ctx context.Context, filter *dto.EventFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM dumping_events WHERE 1=1`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// ReplacePlates swaps the plate rows of an event and updates its processed flag.
func (r *EventRepository) ReplacePlates(ctx context.Context, eventID string, plates []model.PlateDetection, processed bool) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_plates WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("failed to delete plates: %w", err)
	}
	if err := insertPlates(ctx, tx, eventID, plates); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE dumping_events SET plate_processed = ? WHERE event_id = ?`, processed, eventID); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return tx.Commit()
}

// Delete removes an event and its plates.
func (r *EventRepository) Delete(ctx context.Context, eventID string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().ExecContext(ctx, `DELETE FROM event_plates WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("failed to delete plates: %w", err)
	}
	if _, err := r.db.Conn().ExecContext(ctx, `DELETE FROM dumping_events WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func buildWhere(filter *dto.EventFilters) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}
	where := ""
	args := []interface{}{}

	if filter.Camera != "" {
		where += " AND camera_id = ?"
		args = append(args, filter.Camera)
	}
	if filter.Actor != "" {
		where += " AND actor = ?"
		args = append(args, filter.Actor)
	}
	if !filter.DateAfter.IsZero() {
		where += " AND timestamp >= ?"
		args = append(args, filter.DateAfter.UTC())
	}
	if !filter.DateBefore.IsZero() {
		where += " AND timestamp <= ?"
		args = append(args, filter.DateBefore.UTC())
	}
	return where, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*model.DumpingEvent, error) {
	var (
		ev        model.DumpingEvent
		legalID   sql.NullInt64
		createdAt sql.NullTime
		ts        time.Time
	)
	err := row.Scan(&ev.ID, &ev.EventID, &ev.CameraID, &ev.Location, &legalID, &ts,
		&ev.Actor, &ev.VideoKey, &ev.PlateProcessed, &createdAt)
	if err != nil {
		return nil, err
	}
	if legalID.Valid {
		id := legalID.Int64
		ev.LegalLocationID = &id
	}
	ev.Timestamp = ts.Local()
	if createdAt.Valid {
		ev.CreatedAt = createdAt.Time
	}
	return &ev, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
