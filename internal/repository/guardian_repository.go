package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-asrama-api/internal/models"
)

const guardianColumns = `id, institution_id, user_id, student_id, full_name, phone, email, created_at`

// GuardianRepository provides database access to guardian links.
type GuardianRepository struct {
	db *sqlx.DB
}

// NewGuardianRepository creates a new GuardianRepository.
func NewGuardianRepository(db *sqlx.DB) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// Create inserts a new guardian link.
func (r *GuardianRepository) Create(ctx context.Context, guardian *models.Guardian) error {
	if guardian.ID == "" {
		guardian.ID = uuid.NewString()
	}
	if guardian.CreatedAt.IsZero() {
		guardian.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO guardians (id, institution_id, user_id, student_id, full_name, phone, email, created_at)
	VALUES (:id, :institution_id, :user_id, :student_id, :full_name, :phone, :email, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, guardian); err != nil {
		return fmt.Errorf("create guardian: %w", err)
	}
	return nil
}

// FindByUserID resolves the guardian profile of a parent login account.
func (r *GuardianRepository) FindByUserID(ctx context.Context, userID, institutionID string) (*models.Guardian, error) {
	query := fmt.Sprintf(`SELECT %s FROM guardians WHERE user_id = $1 AND institution_id = $2 LIMIT 1`, guardianColumns)
	var guardian models.Guardian
	if err := r.db.GetContext(ctx, &guardian, query, userID, institutionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find guardian by user: %w", err)
	}
	return &guardian, nil
}

// FindByStudentID resolves the guardian linked to a student.
func (r *GuardianRepository) FindByStudentID(ctx context.Context, studentID, institutionID string) (*models.Guardian, error) {
	query := fmt.Sprintf(`SELECT %s FROM guardians WHERE student_id = $1 AND institution_id = $2 LIMIT 1`, guardianColumns)
	var guardian models.Guardian
	if err := r.db.GetContext(ctx, &guardian, query, studentID, institutionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find guardian by student: %w", err)
	}
	return &guardian, nil
}
