package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-asrama-api/internal/models"
)

const leaveColumns = `id, institution_id, student_id, reason, type, out_date, in_date, out_time, in_time,
       status, parent_approval_status, parent_approved_by, parent_approved_at, parent_rejection_reason,
       approved_by, approved_at, rejection_reason, status_history, created_at`

// LeaveRepository persists leave aggregates. Every read and write is scoped
// by institution; no query may cross the tenant boundary.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository constructs the repository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

// Create inserts a new leave row.
func (r *LeaveRepository) Create(ctx context.Context, leave *models.Leave) error {
	if leave.ID == "" {
		leave.ID = uuid.NewString()
	}
	if leave.CreatedAt.IsZero() {
		leave.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO leaves
	(id, institution_id, student_id, reason, type, out_date, in_date, out_time, in_time,
	 status, parent_approval_status, parent_approved_by, parent_approved_at, parent_rejection_reason,
	 approved_by, approved_at, rejection_reason, status_history, created_at)
	VALUES (:id, :institution_id, :student_id, :reason, :type, :out_date, :in_date, :out_time, :in_time,
	 :status, :parent_approval_status, :parent_approved_by, :parent_approved_at, :parent_rejection_reason,
	 :approved_by, :approved_at, :rejection_reason, :status_history, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, leave); err != nil {
		return fmt.Errorf("create leave: %w", err)
	}
	return nil
}

// GetByID fetches a leave by identifier within an institution.
func (r *LeaveRepository) GetByID(ctx context.Context, id, institutionID string) (*models.Leave, error) {
	query := fmt.Sprintf(`SELECT %s FROM leaves WHERE id = $1 AND institution_id = $2`, leaveColumns)
	var leave models.Leave
	if err := r.db.GetContext(ctx, &leave, query, id, institutionID); err != nil {
		return nil, err
	}
	return &leave, nil
}

// List returns leaves matching the filter, newest first. InstitutionID is
// mandatory; an empty value matches nothing rather than everything.
func (r *LeaveRepository) List(ctx context.Context, filter models.LeaveFilter) ([]models.Leave, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT ")
	builder.WriteString(leaveColumns)
	builder.WriteString(" FROM leaves WHERE institution_id = $1")
	args := []interface{}{filter.InstitutionID}

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		builder.WriteString(fmt.Sprintf(" AND student_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		builder.WriteString(fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		builder.WriteString(fmt.Sprintf(" AND type = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var leaves []models.Leave
	if err := r.db.SelectContext(ctx, &leaves, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list leaves: %w", err)
	}
	return leaves, nil
}

// UpdateLeaveStatusParams carries the full post-transition snapshot plus the
// status the row is expected to still hold.
type UpdateLeaveStatusParams struct {
	ID                    string
	InstitutionID         string
	ExpectedStatus        models.LeaveStatus
	Status                models.LeaveStatus
	ParentApprovalStatus  models.ParentApprovalStatus
	ParentApprovedBy      *string
	ParentApprovedAt      *time.Time
	ParentRejectionReason *string
	ApprovedBy            *string
	ApprovedAt            *time.Time
	RejectionReason       *string
	StatusHistory         models.LeaveStatusHistory
}

// UpdateStatus commits a transition as a conditional write keyed on the
// expected current status. Zero matched rows means another writer moved the
// record first; the caller re-reads and reports the real state.
func (r *LeaveRepository) UpdateStatus(ctx context.Context, params UpdateLeaveStatusParams) error {
	const query = `UPDATE leaves SET
	 status = :status,
	 parent_approval_status = :parent_approval_status,
	 parent_approved_by = :parent_approved_by,
	 parent_approved_at = :parent_approved_at,
	 parent_rejection_reason = :parent_rejection_reason,
	 approved_by = :approved_by,
	 approved_at = :approved_at,
	 rejection_reason = :rejection_reason,
	 status_history = :status_history
	WHERE id = :id AND institution_id = :institution_id AND status = :expected_status`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                      params.ID,
		"institution_id":          params.InstitutionID,
		"expected_status":         params.ExpectedStatus,
		"status":                  params.Status,
		"parent_approval_status":  params.ParentApprovalStatus,
		"parent_approved_by":      params.ParentApprovedBy,
		"parent_approved_at":      params.ParentApprovedAt,
		"parent_rejection_reason": params.ParentRejectionReason,
		"approved_by":             params.ApprovedBy,
		"approved_at":             params.ApprovedAt,
		"rejection_reason":        params.RejectionReason,
		"status_history":          params.StatusHistory,
	})
	if err != nil {
		return fmt.Errorf("update leave status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check leave update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
