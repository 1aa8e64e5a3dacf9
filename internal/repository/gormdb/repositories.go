package gormdb

import (
	"context"
	"errors"
	"fmt"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Insert(ctx context.Context, ev *model.DumpingEvent) (bool, error) {
	row := toEventRow(ev)
	inserted := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plates := row.Plates
		row.Plates = nil

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true
		if len(plates) > 0 {
			return tx.Create(&plates).Error
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}
	if inserted {
		ev.ID = row.ID
	}
	return inserted, nil
}

func (r *EventRepository) GetByEventID(ctx context.Context, eventID string) (*model.DumpingEvent, error) {
	var row eventRow
	err := r.db.WithContext(ctx).
		Preload("Plates", func(db *gorm.DB) *gorm.DB { return db.Order("plate_id") }).
		Where("event_id = ?", eventID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	ev := fromEventRow(row)
	return &ev, nil
}

func (r *EventRepository) List(ctx context.Context, filter *dto.EventFilters) ([]model.DumpingEvent, error) {
	q := applyFilter(r.db.WithContext(ctx).Model(&eventRow{}), filter).
		Preload("Plates", func(db *gorm.DB) *gorm.DB { return db.Order("plate_id") }).
		Order("timestamp DESC").
		Order("event_id DESC")
	if filter != nil && filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}

	var rows []eventRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	events := make([]model.DumpingEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, fromEventRow(row))
	}
	return events, nil
}

func (r *EventRepository) Count(ctx context.Context, filter *dto.EventFilters) (int, error) {
	var count int64
	if err := applyFilter(r.db.WithContext(ctx).Model(&eventRow{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return int(count), nil
}

func (r *EventRepository) ReplacePlates(ctx context.Context, eventID string, plates []model.PlateDetection, processed bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", eventID).Delete(&plateRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete plates: %w", err)
		}
		if rows := toPlateRows(eventID, plates); len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to insert plates: %w", err)
			}
		}
		return tx.Model(&eventRow{}).Where("event_id = ?", eventID).Update("plate_processed", processed).Error
	})
}

func (r *EventRepository) Delete(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", eventID).Delete(&plateRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete plates: %w", err)
		}
		if err := tx.Where("event_id = ?", eventID).Delete(&eventRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		return nil
	})
}

func applyFilter(q *gorm.DB, filter *dto.EventFilters) *gorm.DB {
	if filter == nil {
		return q
	}
	if filter.Camera != "" {
		q = q.Where("camera_id = ?", filter.Camera)
	}
	if filter.Actor != "" {
		q = q.Where("actor = ?", filter.Actor)
	}
	if !filter.DateAfter.IsZero() {
		q = q.Where("timestamp >= ?", filter.DateAfter.UTC())
	}
	if !filter.DateBefore.IsZero() {
		q = q.Where("timestamp <= ?", filter.DateBefore.UTC())
	}
	return q
}

type CameraRepository struct {
	db *gorm.DB
}

func NewCameraRepository(db *gorm.DB) *CameraRepository {
	return &CameraRepository{db: db}
}

func (r *CameraRepository) GetOrCreate(ctx context.Context, cam *model.Camera) (*model.Camera, error) {
	row := cameraRow{CameraID: cam.CameraID, Location: cam.Location, Ward: cam.Ward, City: cam.City}
	err := r.db.WithContext(ctx).
		Where(cameraRow{CameraID: cam.CameraID}).
		Attrs(row).
		FirstOrCreate(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get or create camera: %w", err)
	}
	return &model.Camera{ID: row.ID, CameraID: row.CameraID, Location: row.Location, Ward: row.Ward, City: row.City}, nil
}

func (r *CameraRepository) GetByCameraID(ctx context.Context, cameraID string) (*model.Camera, error) {
	var row cameraRow
	err := r.db.WithContext(ctx).Where("camera_id = ?", cameraID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	return &model.Camera{ID: row.ID, CameraID: row.CameraID, Location: row.Location, Ward: row.Ward, City: row.City}, nil
}

func (r *CameraRepository) List(ctx context.Context) ([]model.Camera, error) {
	var rows []cameraRow
	if err := r.db.WithContext(ctx).Order("camera_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	cams := make([]model.Camera, 0, len(rows))
	for _, row := range rows {
		cams = append(cams, model.Camera{ID: row.ID, CameraID: row.CameraID, Location: row.Location, Ward: row.Ward, City: row.City})
	}
	return cams, nil
}

type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

func (r *LocationRepository) Insert(ctx context.Context, loc *model.LegalLocation) (int64, error) {
	row := locationRow{Name: loc.Name, Ward: loc.Ward, City: loc.City}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("failed to insert location: %w", err)
	}
	return row.ID, nil
}

func (r *LocationRepository) FindByName(ctx context.Context, name string) (*model.LegalLocation, error) {
	var row locationRow
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return &model.LegalLocation{ID: row.ID, Name: row.Name, Ward: row.Ward, City: row.City}, nil
}

func (r *LocationRepository) List(ctx context.Context) ([]model.LegalLocation, error) {
	var rows []locationRow
	if err := r.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	locs := make([]model.LegalLocation, 0, len(rows))
	for _, row := range rows {
		locs = append(locs, model.LegalLocation{ID: row.ID, Name: row.Name, Ward: row.Ward, City: row.City})
	}
	return locs, nil
}

func toEventRow(ev *model.DumpingEvent) eventRow {
	return eventRow{
		EventID:         ev.EventID,
		CameraID:        ev.CameraID,
		Location:        ev.Location,
		LegalLocationID: ev.LegalLocationID,
		Timestamp:       ev.Timestamp.UTC(),
		Actor:           ev.Actor,
		VideoKey:        ev.VideoKey,
		PlateProcessed:  ev.PlateProcessed,
		Plates:          toPlateRows(ev.EventID, ev.Plates),
	}
}

func toPlateRows(eventID string, plates []model.PlateDetection) []plateRow {
	rows := make([]plateRow, 0, len(plates))
	for _, p := range plates {
		rows = append(rows, plateRow{
			EventID:    eventID,
			PlateID:    p.PlateID,
			ImageKey:   p.ImageKey,
			Confidence: p.Confidence,
			FrameTime:  p.FrameTime,
		})
	}
	return rows
}

func fromEventRow(row eventRow) model.DumpingEvent {
	ev := model.DumpingEvent{
		ID:              row.ID,
		EventID:         row.EventID,
		CameraID:        row.CameraID,
		Location:        row.Location,
		LegalLocationID: row.LegalLocationID,
		Timestamp:       row.Timestamp.Local(),
		Actor:           row.Actor,
		VideoKey:        row.VideoKey,
		PlateProcessed:  row.PlateProcessed,
		CreatedAt:       row.CreatedAt,
	}
	for _, p := range row.Plates {
		ev.Plates = append(ev.Plates, model.PlateDetection{
			ID:         p.ID,
			EventID:    p.EventID,
			PlateID:    p.PlateID,
			ImageKey:   p.ImageKey,
			Confidence: p.Confidence,
			FrameTime:  p.FrameTime,
		})
	}
	return ev
}
