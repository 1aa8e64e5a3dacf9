package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"dumpwatch/internal/model"
)

// LocationRepository implements repository.LocationRepository for SQLite.
type LocationRepository struct {
	db *DB
}

func NewLocationRepository(db *DB) *LocationRepository {
	return &LocationRepository{db: db}
}

func (r *LocationRepository) Insert(ctx context.Context, loc *model.LegalLocation) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO legal_locations (name, ward, city) VALUES (?, ?, ?)
	`, loc.Name, loc.Ward, loc.City)
	if err != nil {
		return 0, fmt.Errorf("failed to insert location: %w", err)
	}
	return result.LastInsertId()
}

// FindByName returns the location with exactly this name, or nil.
func (r *LocationRepository) FindByName(ctx context.Context, name string) (*model.LegalLocation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var loc model.LegalLocation
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, name, ward, city FROM legal_locations WHERE name = ?
	`, name).Scan(&loc.ID, &loc.Name, &loc.Ward, &loc.City)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return &loc, nil
}

func (r *LocationRepository) List(ctx context.Context) ([]model.LegalLocation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `SELECT id, name, ward, city FROM legal_locations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locs []model.LegalLocation
	for rows.Next() {
		var loc model.LegalLocation
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Ward, &loc.City); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}
