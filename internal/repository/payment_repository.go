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

const feeColumns = `id, institution_id, student_id, description, amount_cents, currency, due_date, status, paid_at, gateway_ref, reminder_sent, created_at`

// PaymentRepository persists hostel fee invoices.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a fee invoice.
func (r *PaymentRepository) Create(ctx context.Context, fee *models.Fee) error {
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	if fee.Status == "" {
		fee.Status = models.FeeStatusPending
	}
	if fee.CreatedAt.IsZero() {
		fee.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO fees (id, institution_id, student_id, description, amount_cents, currency, due_date, status, paid_at, gateway_ref, reminder_sent, created_at)
	VALUES (:id, :institution_id, :student_id, :description, :amount_cents, :currency, :due_date, :status, :paid_at, :gateway_ref, :reminder_sent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, fee); err != nil {
		return fmt.Errorf("create fee: %w", err)
	}
	return nil
}

// GetByID fetches a fee invoice within an institution.
func (r *PaymentRepository) GetByID(ctx context.Context, id, institutionID string) (*models.Fee, error) {
	query := fmt.Sprintf(`SELECT %s FROM fees WHERE id = $1 AND institution_id = $2`, feeColumns)
	var fee models.Fee
	if err := r.db.GetContext(ctx, &fee, query, id, institutionID); err != nil {
		return nil, err
	}
	return &fee, nil
}

// List returns fee invoices matching the filter, earliest due first.
func (r *PaymentRepository) List(ctx context.Context, filter models.FeeFilter) ([]models.Fee, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT ")
	builder.WriteString(feeColumns)
	builder.WriteString(" FROM fees WHERE institution_id = $1")
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
	if filter.DueBefore != nil {
		args = append(args, *filter.DueBefore)
		builder.WriteString(fmt.Sprintf(" AND due_date <= $%d", len(args)))
	}
	builder.WriteString(" ORDER BY due_date ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var fees []models.Fee
	if err := r.db.SelectContext(ctx, &fees, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list fees: %w", err)
	}
	return fees, nil
}

// MarkPaid records a gateway capture; conditional on the invoice still
// being unpaid so double captures cannot both land.
func (r *PaymentRepository) MarkPaid(ctx context.Context, id, institutionID, gatewayRef string, paidAt time.Time) error {
	const query = `UPDATE fees SET status = $4, paid_at = $5, gateway_ref = $6
	WHERE id = $1 AND institution_id = $2 AND status <> $3`
	result, err := r.db.ExecContext(ctx, query, id, institutionID, models.FeeStatusPaid, models.FeeStatusPaid, paidAt, gatewayRef)
	if err != nil {
		return fmt.Errorf("mark fee paid: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check fee update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkReminderSent stamps the invoice so the reminder job skips it next run.
func (r *PaymentRepository) MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE fees SET reminder_sent = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, sentAt); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

// ListDueForReminder returns unpaid invoices falling due before the cutoff
// that have not been reminded yet.
func (r *PaymentRepository) ListDueForReminder(ctx context.Context, cutoff time.Time) ([]models.Fee, error) {
	query := fmt.Sprintf(`SELECT %s FROM fees
	WHERE status = $1 AND due_date <= $2 AND reminder_sent IS NULL
	ORDER BY due_date ASC LIMIT 500`, feeColumns)
	var fees []models.Fee
	if err := r.db.SelectContext(ctx, &fees, query, models.FeeStatusPending, cutoff); err != nil {
		return nil, fmt.Errorf("list fees due for reminder: %w", err)
	}
	return fees, nil
}
