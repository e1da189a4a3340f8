package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-asrama-api/internal/models"
)

// LocationRepository persists geolocation ping history.
type LocationRepository struct {
	db *sqlx.DB
}

// NewLocationRepository constructs the repository.
func NewLocationRepository(db *sqlx.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Create appends a ping to the history table.
func (r *LocationRepository) Create(ctx context.Context, ping *models.LocationPing) error {
	if ping.ID == "" {
		ping.ID = uuid.NewString()
	}
	if ping.RecordedAt.IsZero() {
		ping.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO location_pings (id, institution_id, student_id, leave_id, latitude, longitude, accuracy, recorded_at)
	VALUES (:id, :institution_id, :student_id, :leave_id, :latitude, :longitude, :accuracy, :recorded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, ping); err != nil {
		return fmt.Errorf("create location ping: %w", err)
	}
	return nil
}

// ListByStudent returns recent pings for a student, newest first.
func (r *LocationRepository) ListByStudent(ctx context.Context, studentID, institutionID string, limit int) ([]models.LocationPing, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT id, institution_id, student_id, leave_id, latitude, longitude, accuracy, recorded_at
	FROM location_pings WHERE student_id = $1 AND institution_id = $2
	ORDER BY recorded_at DESC LIMIT %d`, limit)
	var pings []models.LocationPing
	if err := r.db.SelectContext(ctx, &pings, query, studentID, institutionID); err != nil {
		return nil, fmt.Errorf("list location pings: %w", err)
	}
	return pings, nil
}
